package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tutor-dispatch/internal/domain"
)

var _ domain.LLMProvider = (*FailoverProvider)(nil)

// FailoverProvider asks each provider in turn until one answers.
type FailoverProvider struct {
	chain  []domain.LLMProvider
	logger *slog.Logger
}

// NewFailoverProvider tries primary first, then fallbacks in order.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	chain := make([]domain.LLMProvider, 0, 1+len(fallbacks))
	chain = append(chain, primary)
	chain = append(chain, fallbacks...)
	return &FailoverProvider{chain: chain, logger: logger}
}

// Chat stops early when ctx is done or the request itself is invalid, since
// no other provider would do better.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var failures []string
	var last error
	for i, p := range f.chain {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover succeeded", "provider", p.Name(), "attempt", i+1)
			}
			return resp, nil
		}
		if ctx.Err() != nil || errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		f.logger.Warn("llm provider failed", "provider", p.Name(), "attempt", i+1, "error", err)
		failures = append(failures, fmt.Sprintf("%s: %v", p.Name(), err))
		last = err
	}
	return nil, fmt.Errorf("%w: [%s] (last: %w)", domain.ErrAllProvidersFailed, strings.Join(failures, "; "), last)
}

// Name returns the primary's name with a +failover suffix.
func (f *FailoverProvider) Name() string { return f.chain[0].Name() + "+failover" }

// Model reports the primary's model.
func (f *FailoverProvider) Model() string { return modelOf(f.chain[0]) }

// modelOf returns p's model when it reports one.
func modelOf(p domain.LLMProvider) string {
	if mn, ok := p.(domain.ModelNamer); ok {
		return mn.Model()
	}
	return ""
}
