package multiagent

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tutor-dispatch/internal/domain"
)

// Registry maps short keys ("math", "physics") to specialist agents. Keys
// keep registration order. It is populated at startup and only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]domain.Agent),
		logger: logger,
	}
}

// Register adds an agent under key. A blank or already used key is an error.
func (r *Registry) Register(key string, agent domain.Agent) error {
	if strings.TrimSpace(key) == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent key is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[key]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("agent %q", key))
	}
	r.agents[key] = agent
	r.order = append(r.order, key)
	r.logger.Info("agent registered", "agent_key", key, "name", agent.Name())
	return nil
}

// Get returns the agent for key. The not-found error lists the valid keys.
func (r *Registry) Get(key string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[key]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrAgentNotFound,
			fmt.Sprintf("agent %q (available: %s)", key, strings.Join(r.order, ", ")))
	}
	return a, nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[key]
	return ok
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Capabilities describes every agent by key.
func (r *Registry) Capabilities() map[string]domain.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]domain.Capability, len(r.agents))
	for key, a := range r.agents {
		caps[key] = a.Capability()
	}
	return caps
}

// Each calls fn for every agent in registration order.
func (r *Registry) Each(fn func(key string, a domain.Agent)) {
	r.mu.RLock()
	keys := append([]string(nil), r.order...)
	agents := make([]domain.Agent, len(keys))
	for i, k := range keys {
		agents[i] = r.agents[k]
	}
	r.mu.RUnlock()

	for i, k := range keys {
		fn(k, agents[i])
	}
}
