package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
)

// CircuitBreakerProvider fails fast with domain.ErrCircuitOpen once the
// wrapped provider has failed MaxFailures times in a row. After Timeout a
// single probe request is let through.
type CircuitBreakerProvider struct {
	inner   domain.LLMProvider
	breaker *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewCircuitBreakerProvider wraps inner. Zero config values pick 5 failures,
// a 30s open period and a 60s counting interval.
func NewCircuitBreakerProvider(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*domain.ChatResponse](breakerSettings(inner.Name(), cfg, logger)),
	}
}

func breakerSettings(provider string, cfg config.CircuitBreakerConfig, logger *slog.Logger) gobreaker.Settings {
	trip := orDefault(cfg.MaxFailures, 5)
	return gobreaker.Settings{
		Name:        "llm:" + provider,
		MaxRequests: 1,
		Interval:    orDefault(cfg.Interval, time.Minute),
		Timeout:     orDefault(cfg.Timeout, 30*time.Second),
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= trip },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: providerHealthy,
	}
}

// providerHealthy reports whether err leaves the provider's health record
// untouched. Cancelled calls and rejected input are the caller's doing.
func providerHealthy(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, domain.ErrInvalidInput):
		return true
	}
	return false
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Chat implements domain.LLMProvider.
func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("provider %q: %w: %v", p.inner.Name(), domain.ErrCircuitOpen, err)
	}
	return resp, err
}

func (p *CircuitBreakerProvider) Name() string  { return p.inner.Name() }
func (p *CircuitBreakerProvider) Model() string { return modelOf(p.inner) }

// State is exposed for the debug endpoints and tests.
func (p *CircuitBreakerProvider) State() gobreaker.State { return p.breaker.State() }

var _ domain.LLMProvider = (*CircuitBreakerProvider)(nil)
