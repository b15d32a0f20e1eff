package llm

import (
	"fmt"

	"tutor-dispatch/internal/domain"
)

// Model roles accepted in llm.model_routing.
const (
	RoleRouting    = "routing"
	RoleSpecialist = "specialist"
	RoleTutor      = "tutor"
)

// Roles holds the provider each pipeline stage talks to.
type Roles struct {
	Routing    domain.LLMProvider
	Specialist domain.LLMProvider
	Tutor      domain.LLMProvider
}

// ResolveRoles picks a provider per role from mapping. Unmapped roles, and
// roles mapped to "" or "default", get fallback.
func (r *Registry) ResolveRoles(mapping map[string]string, fallback domain.LLMProvider) (Roles, error) {
	var out Roles
	slots := []struct {
		role string
		dst  *domain.LLMProvider
	}{
		{RoleRouting, &out.Routing},
		{RoleSpecialist, &out.Specialist},
		{RoleTutor, &out.Tutor},
	}
	for _, s := range slots {
		p, err := r.forRole(s.role, mapping[s.role], fallback)
		if err != nil {
			return Roles{}, err
		}
		*s.dst = p
	}
	return out, nil
}

func (r *Registry) forRole(role, name string, fallback domain.LLMProvider) (domain.LLMProvider, error) {
	if name != "" && name != "default" {
		p, err := r.Get(name)
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", role, err)
		}
		return p, nil
	}
	if fallback == nil {
		return nil, fmt.Errorf("role %q: %w: no default provider", role, domain.ErrProviderNotFound)
	}
	return fallback, nil
}
