package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"tutor-dispatch/internal/domain"
)

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// stubProvider answers with a fixed text, or chatFunc when set.
type stubProvider struct {
	name     string
	model    string
	chatFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
	calls    atomic.Int32
}

func (s *stubProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.calls.Add(1)
	if s.chatFunc != nil {
		return s.chatFunc(ctx, req)
	}
	return &domain.ChatResponse{Parts: []domain.Part{{Text: "ok from " + s.name}}}, nil
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return s.model }

func failingProvider(name string, err error) *stubProvider {
	return &stubProvider{name: name, chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, err
	}}
}

func TestResolveRoles(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"flash", "pro"} {
		if err := reg.Register(&stubProvider{name: n}); err != nil {
			t.Fatal(err)
		}
	}

	roles, err := reg.ResolveRoles(map[string]string{
		RoleRouting:    "flash",
		RoleSpecialist: "pro",
		RoleTutor:      "default",
	}, &stubProvider{name: "fallback"})
	if err != nil {
		t.Fatalf("ResolveRoles: %v", err)
	}
	got := map[string]string{
		RoleRouting:    roles.Routing.Name(),
		RoleSpecialist: roles.Specialist.Name(),
		RoleTutor:      roles.Tutor.Name(),
	}
	want := map[string]string{RoleRouting: "flash", RoleSpecialist: "pro", RoleTutor: "fallback"}
	for role, w := range want {
		if got[role] != w {
			t.Errorf("%s = %q, want %q", role, got[role], w)
		}
	}
}

func TestResolveRolesUnmappedUsesFallback(t *testing.T) {
	roles, err := NewRegistry().ResolveRoles(nil, &stubProvider{name: "gemini"})
	if err != nil {
		t.Fatal(err)
	}
	if roles.Routing.Name() != "gemini" || roles.Tutor.Name() != "gemini" {
		t.Errorf("roles = %+v", roles)
	}
}

func TestResolveRolesMissingProvider(t *testing.T) {
	_, err := NewRegistry().ResolveRoles(map[string]string{RoleRouting: "ghost"}, &stubProvider{name: "gemini"})
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestResolveRolesNoFallback(t *testing.T) {
	if _, err := NewRegistry().ResolveRoles(nil, nil); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubProvider{name: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterAs("a", &stubProvider{name: "inner"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&stubProvider{name: "b"}); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if got := reg.List(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("List = %v", got)
	}
	if _, err := reg.Get("missing"); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestRegistryWithFailover(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"gemini", "local"} {
		if err := reg.Register(&stubProvider{name: n}); err != nil {
			t.Fatal(err)
		}
	}

	p, err := reg.WithFailover("gemini", nil, newTestLogger())
	if err != nil || p.Name() != "gemini" {
		t.Fatalf("no fallbacks: %v, %v", p, err)
	}
	p, err = reg.WithFailover("gemini", []string{"local"}, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*FailoverProvider); !ok {
		t.Errorf("expected *FailoverProvider, got %T", p)
	}
	if _, err := reg.WithFailover("gemini", []string{"ghost"}, newTestLogger()); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
	if _, err := reg.WithFailover("ghost", nil, newTestLogger()); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}
