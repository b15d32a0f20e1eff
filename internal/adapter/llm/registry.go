package llm

import (
	"fmt"
	"log/slog"

	"tutor-dispatch/internal/domain"
)

// Registry indexes the configured providers by name. It is filled once at
// startup and read-only afterwards.
type Registry struct {
	byName map[string]domain.LLMProvider
	names  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]domain.LLMProvider{}}
}

// Register indexes p under its own name.
func (r *Registry) Register(p domain.LLMProvider) error { return r.RegisterAs(p.Name(), p) }

// RegisterAs indexes p under name. Names are unique.
func (r *Registry) RegisterAs(name string, p domain.LLMProvider) error {
	if _, dup := r.byName[name]; dup {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("provider %q", name))
	}
	r.byName[name] = p
	r.names = append(r.names, name)
	return nil
}

func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
}

// List returns provider names in registration order.
func (r *Registry) List() []string {
	return append([]string(nil), r.names...)
}

// WithFailover returns primary alone when fallbacks is empty, otherwise a
// FailoverProvider trying primary and then each fallback in order.
func (r *Registry) WithFailover(primary string, fallbacks []string, logger *slog.Logger) (domain.LLMProvider, error) {
	p, err := r.Get(primary)
	if err != nil {
		return nil, err
	}
	if len(fallbacks) == 0 {
		return p, nil
	}
	chain := make([]domain.LLMProvider, 0, len(fallbacks))
	for _, name := range fallbacks {
		fb, err := r.Get(name)
		if err != nil {
			return nil, fmt.Errorf("failover: %w", err)
		}
		chain = append(chain, fb)
	}
	return NewFailoverProvider(p, chain, logger), nil
}
