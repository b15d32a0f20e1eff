package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/usecase/multiagent"
)

// --- Mocks ---

type mockProvider struct {
	name     string
	model    string
	chatFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)

	mu       sync.Mutex
	requests []domain.ChatRequest
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.chatFunc == nil {
		return textResponse("ok"), nil
	}
	return m.chatFunc(ctx, req)
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) Model() string { return m.model }

func (m *mockProvider) calls() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var errUpstream = errors.New("upstream unavailable")

// failingProvider errors on every call.
func failingProvider() *mockProvider {
	return &mockProvider{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, errUpstream
	}}
}

type step func(req domain.ChatRequest) (*domain.ChatResponse, error)

// scriptedProvider replays steps in order and fails once they run out.
func scriptedProvider(steps ...step) *mockProvider {
	var mu sync.Mutex
	idx := 0
	return &mockProvider{model: "test-model", chatFunc: func(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(steps) {
			return nil, fmt.Errorf("unexpected call %d", idx+1)
		}
		s := steps[idx]
		idx++
		return s(req)
	}}
}

func reply(text string) step {
	return func(domain.ChatRequest) (*domain.ChatResponse, error) { return textResponse(text), nil }
}

func fail(err error) step {
	return func(domain.ChatRequest) (*domain.ChatResponse, error) { return nil, err }
}

func callTool(name, args string) step {
	return func(domain.ChatRequest) (*domain.ChatResponse, error) { return toolCallResponse(name, args), nil }
}

func textResponse(text string) *domain.ChatResponse {
	return &domain.ChatResponse{Parts: []domain.Part{{Text: text}}}
}

func toolCallResponse(name, args string) *domain.ChatResponse {
	return &domain.ChatResponse{Parts: []domain.Part{{
		ToolCall: &domain.ToolCall{ID: "call_1", Name: name, Arguments: json.RawMessage(args)},
	}}}
}

// userContent returns the last user message of a request.
func userContent(req domain.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func systemContent(req domain.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			return m.Content
		}
	}
	return ""
}

func hasFunction(req domain.ChatRequest, name string) bool {
	for _, t := range req.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

type mockToolExecutor struct {
	tools map[string]domain.Tool
	order []string
}

func newToolExecutor(tools ...domain.Tool) *mockToolExecutor {
	m := &mockToolExecutor{tools: make(map[string]domain.Tool)}
	for _, t := range tools {
		m.tools[t.Name()] = t
		m.order = append(m.order, t.Name())
	}
	return m
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.NewDomainError("mockToolExecutor.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.tools[n].Schema())
	}
	return out
}

// staticTool returns a fixed result and records the arguments it saw.
type staticTool struct {
	name   string
	result string
	isErr  bool

	mu   sync.Mutex
	args []string
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static test tool " + t.name }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t *staticTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	t.mu.Lock()
	t.args = append(t.args, string(params))
	t.mu.Unlock()
	return &domain.ToolResult{Content: t.result, IsError: t.isErr}, nil
}

func (t *staticTool) seen() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.args...)
}

type errorTool struct {
	name string
}

func (t *errorTool) Name() string        { return t.name }
func (t *errorTool) Description() string { return "error test tool" }
func (t *errorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description()}
}
func (t *errorTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return nil, fmt.Errorf("tool execution failed")
}

type panicTool struct {
	name string
}

func (t *panicTool) Name() string        { return t.name }
func (t *panicTool) Description() string { return "panicking test tool" }
func (t *panicTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description()}
}
func (t *panicTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	panic("boom")
}

// --- Builders ---

func newMathSpecialist(llm domain.LLMProvider, tools domain.ToolExecutor, strategy ToolStrategy) *Specialist {
	return NewSpecialist(SpecialistDeps{
		Persona:  MathPersona(),
		LLM:      llm,
		Tools:    tools,
		Strategy: strategy,
		Logger:   testLogger(),
	})
}

// tutorRegistry registers plain math and physics specialists on llm.
func tutorRegistry(llm domain.LLMProvider, keys ...string) *multiagent.Registry {
	reg := multiagent.NewRegistry(testLogger())
	if len(keys) == 0 {
		keys = []string{"math", "physics"}
	}
	for _, k := range keys {
		p := MathPersona()
		conf := DefaultConfidences(0.9)
		if k == "physics" {
			p = PhysicsPersona()
			conf = DefaultConfidences(0.85)
		}
		_ = reg.Register(k, NewSpecialist(SpecialistDeps{
			Persona:     p,
			LLM:         llm,
			Confidences: conf,
			Logger:      testLogger(),
		}))
	}
	return reg
}

func containsLine(lines []string, sub string) bool {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}
