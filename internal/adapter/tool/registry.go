package tool

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"tutor-dispatch/internal/domain"
)

// Registry is an ordered set of tools. Order matters: it is the order the
// model sees in its function list.
type Registry struct {
	mu      sync.RWMutex
	tools   []domain.Tool
	logger   *slog.Logger
	validate bool
	limiter  func() *RateLimiter
}

type RegistryOption func(*Registry)

// WithRateLimit gives every registered tool its own limiter from newLimiter.
func WithRateLimit(newLimiter func() *RateLimiter) RegistryOption {
	return func(r *Registry) { r.limiter = newLimiter }
}

// WithArgumentValidation checks call arguments against each tool's schema.
// A schema that does not compile is logged and the tool registered without it.
func WithArgumentValidation() RegistryOption {
	return func(r *Registry) { r.validate = true }
}

// NewRegistry returns an empty registry. A nil logger means slog.Default.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(t.Name()) >= 0 {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("tool %q", t.Name()))
	}
	r.tools = append(r.tools, r.wrap(t))
	return nil
}

// wrap applies validation inside the rate limit, so rejected arguments still
// spend budget.
func (r *Registry) wrap(t domain.Tool) domain.Tool {
	if r.validate {
		if v, err := WithSchemaValidation(t); err != nil {
			r.logger.Warn("tool registered without schema validation", "tool", t.Name(), "error", err)
		} else {
			t = v
		}
	}
	if r.limiter != nil {
		t = &RateLimitedTool{inner: t, limiter: r.limiter()}
	}
	return t
}

func (r *Registry) indexOf(name string) int {
	return slices.IndexFunc(r.tools, func(t domain.Tool) bool { return t.Name() == name })
}

func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(name); i >= 0 {
		return r.tools[i], nil
	}
	return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tools)
}

// Schemas lists tool schemas for function calling, in registration order.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolSchema, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Schema()
	}
	return out
}

// Subset builds a registry of the named tools in the order given. The tools
// are shared, wrappers and limiters included, so a specialist's calls count
// against the same budget as everyone else's.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub := NewRegistry(nil)
	for _, name := range names {
		i := r.indexOf(name)
		if i < 0 {
			return nil, domain.NewDomainError("Registry.Subset", domain.ErrToolNotFound, name)
		}
		if sub.indexOf(name) < 0 {
			sub.tools = append(sub.tools, r.tools[i])
		}
	}
	return sub, nil
}
