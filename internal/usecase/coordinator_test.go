package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-dispatch/internal/domain"
)

// tutorProvider answers every call the coordinator makes, keyed on the shape
// of the request. enhanceErr makes the enhancement call fail.
func tutorProvider(routeTo, routeArgs string, enhanceErr error) *mockProvider {
	return &mockProvider{model: "test-model", chatFunc: func(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		switch {
		case hasFunction(req, HandleGeneralFunction):
			return toolCallResponse(routeTo, routeArgs), nil
		case strings.HasPrefix(systemContent(req), "You are Math Tutor"):
			return textResponse("x = 5"), nil
		case strings.HasPrefix(systemContent(req), "You are Physics Tutor"):
			return textResponse("F = 6 N"), nil
		case strings.Contains(userContent(req), "Specialist Response:"):
			if enhanceErr != nil {
				return nil, enhanceErr
			}
			return textResponse("Enhanced: x = 5"), nil
		case strings.Contains(userContent(req), "direct educational assistance"):
			return textResponse("Napoleon was a French emperor."), nil
		}
		return nil, errors.New("unexpected request")
	}}
}

func newTestCoordinator(t *testing.T, llm domain.LLMProvider, sessions *SessionStore) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(CoordinatorDeps{
		Agents:     tutorRegistry(llm),
		RoutingLLM: llm,
		TutorLLM:   llm,
		Sessions:   sessions,
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	return c
}

const routeMath = `{"query":"Solve 2x + 5 = 15","reasoning":"linear equation"}`

func TestCoordinatorDelegates(t *testing.T) {
	llm := tutorProvider("route_to_math_agent", routeMath, nil)
	c := newTestCoordinator(t, llm, nil)

	resp := c.Process(context.Background(), domain.TaskRequest{Query: "Solve 2x + 5 = 15"})

	assert.Equal(t, "Enhanced: x = 5", resp.Content)
	assert.Equal(t, 0.9, resp.Confidence)
	assert.Equal(t, []string{"AI Tutor Coordinator", "Math Agent", "test-model"}, resp.Sources)

	md := resp.Metadata
	assert.Equal(t, "AI Tutor Coordinator", md["coordinator"])
	assert.Equal(t, "function_calling", md["routing_method"])
	assert.Equal(t, "math", md["delegated_to"])
	assert.Equal(t, "Math Tutor", md["delegated_to_name"])
	assert.Equal(t, "linear equation", md["routing_reasoning"])
	assert.Equal(t, true, md["enhanced"])
	assert.Contains(t, md, "specialist_execution_time_ms")
	assert.Contains(t, md, "total_execution_time_ms")
	specMeta, ok := md["specialist_metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Math Agent", specMeta["agent"])
	assert.GreaterOrEqual(t, resp.ExecutionTimeMS, 0.0)
	assert.Len(t, llm.calls(), 3, "route, specialist, enhance")
}

func TestCoordinatorEnhancementFallback(t *testing.T) {
	llm := tutorProvider("route_to_math_agent", routeMath, errUpstream)
	c := newTestCoordinator(t, llm, nil)

	resp := c.Process(context.Background(), domain.TaskRequest{Query: "Solve 2x + 5 = 15"})

	assert.Equal(t, "I've connected you with our Math Tutor: x = 5", resp.Content)
	assert.Equal(t, 0.9, resp.Confidence, "specialist confidence is kept")
	assert.Equal(t, false, resp.Metadata["enhanced"])
}

func TestCoordinatorHandlesDirectly(t *testing.T) {
	llm := tutorProvider("handle_general_query", `{"query":"Who was Napoleon?","reasoning":"history question"}`, nil)
	c := newTestCoordinator(t, llm, nil)

	resp := c.Process(context.Background(), domain.TaskRequest{Query: "Who was Napoleon?"})

	assert.Equal(t, "Napoleon was a French emperor.", resp.Content)
	assert.Equal(t, 0.7, resp.Confidence)
	assert.Equal(t, []string{"AI Tutor Coordinator", "test-model"}, resp.Sources)
	assert.Equal(t, "general_tutor", resp.Metadata["mode"])
	assert.Equal(t, "history question", resp.Metadata["routing_reasoning"])
	assert.Equal(t, []string{
		"Math Tutor (algebra, calculus, equations)",
		"Physics Tutor (mechanics, electricity, forces)",
	}, resp.Metadata["specialists_available"])

	calls := llm.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, userContent(calls[1]), "Routing Decision: history question")
	assert.Contains(t, userContent(calls[1]), "Available Specialists: Math Tutor (algebra, calculus, equations)")
}

func TestCoordinatorAlwaysFailingProvider(t *testing.T) {
	tests := []struct {
		query     string
		delegated bool
	}{
		{"Solve 2x + 5 = 15", true},
		{"What is the voltage across the resistor?", true},
		{"Who was Napoleon?", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c := newTestCoordinator(t, failingProvider(), nil)

			resp := c.Process(context.Background(), domain.TaskRequest{Query: tt.query})

			assert.NotEmpty(t, resp.Content)
			assert.InDelta(t, 0.1, resp.Confidence, 1e-9)
			require.NotEmpty(t, resp.Sources)
			assert.Equal(t, "AI Tutor Coordinator", resp.Sources[0])
			if tt.delegated {
				assert.Equal(t, "keyword_fallback", resp.Metadata["routing_method"])
				assert.Equal(t, false, resp.Metadata["enhanced"])
				assert.True(t, strings.HasPrefix(resp.Content, "I've connected you with our "), resp.Content)
			} else {
				assert.Equal(t, fmt.Sprintf("I'd be happy to help with your question: %s. However, I encountered a technical issue. "+
					"Could you please rephrase your question?", tt.query), resp.Content)
				assert.Equal(t, []string{"AI Tutor Coordinator"}, resp.Sources)
			}
		})
	}
}

func TestCoordinatorBlankQuery(t *testing.T) {
	llm := &mockProvider{}
	c := newTestCoordinator(t, llm, nil)

	resp := c.Process(context.Background(), domain.TaskRequest{Query: "   "})

	assert.True(t, strings.HasPrefix(resp.Content, "I encountered an error while processing your request: "), resp.Content)
	assert.Equal(t, 0.1, resp.Confidence)
	assert.Equal(t, []string{"AI Tutor Coordinator"}, resp.Sources)
	assert.Empty(t, llm.calls())
}

func TestCoordinatorRecoversPanics(t *testing.T) {
	llm := &mockProvider{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		panic("provider exploded")
	}}
	c := newTestCoordinator(t, llm, nil)

	resp := c.Process(context.Background(), domain.TaskRequest{Query: "Solve x = 1"})

	assert.Contains(t, resp.Content, "provider exploded")
	assert.Equal(t, 0.1, resp.Confidence)
}

func TestCoordinatorProcessDirectRecoversPanics(t *testing.T) {
	llm := &mockProvider{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		panic("provider exploded")
	}}
	c := newTestCoordinator(t, llm, nil)

	var resp domain.AgentResponse
	require.NotPanics(t, func() {
		var err error
		resp, err = c.ProcessDirect(context.Background(), "math", domain.TaskRequest{Query: "Solve x = 1"})
		require.NoError(t, err)
	})
	assert.Contains(t, resp.Content, "provider exploded")
	assert.Equal(t, 0.1, resp.Confidence)
}

func TestCoordinatorProcessDirect(t *testing.T) {
	llm := tutorProvider("", "", nil)
	c := newTestCoordinator(t, llm, nil)

	resp, err := c.ProcessDirect(context.Background(), "physics", domain.TaskRequest{Query: "What force accelerates 2 kg at 3 m/s²?"})
	require.NoError(t, err)
	assert.Equal(t, "F = 6 N", resp.Content)
	assert.Equal(t, 0.85, resp.Confidence)
	assert.Len(t, llm.calls(), 1, "no routing call")

	_, err = c.ProcessDirect(context.Background(), "chemistry", domain.TaskRequest{Query: "What is NaCl?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.Equal(t, domain.CodeAgentNotFound, domain.ErrorCodeOf(err))
	assert.Contains(t, err.Error(), "math, physics")

	_, err = c.ProcessDirect(context.Background(), "math", domain.TaskRequest{Query: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCoordinatorAnswerAgentUsed(t *testing.T) {
	delegating := newTestCoordinator(t, tutorProvider("route_to_math_agent", routeMath, nil), nil)
	a, err := delegating.Answer(context.Background(), domain.TaskRequest{Query: "Solve 2x + 5 = 15"})
	require.NoError(t, err)
	assert.Equal(t, "Math Tutor (via Coordinator)", a.AgentUsed)

	direct := newTestCoordinator(t, tutorProvider("handle_general_query", `{"query":"q","reasoning":"r"}`, nil), nil)
	a, err = direct.Answer(context.Background(), domain.TaskRequest{Query: "Who was Napoleon?"})
	require.NoError(t, err)
	assert.Equal(t, "AI Tutor Coordinator", a.AgentUsed)

	a, err = direct.AnswerDirect(context.Background(), "math", domain.TaskRequest{Query: "Solve 2x + 5 = 15"})
	require.NoError(t, err)
	assert.Equal(t, "Math Tutor (Direct)", a.AgentUsed)
	assert.Equal(t, "x = 5", a.Response.Content)

	_, err = direct.AnswerDirect(context.Background(), "history", domain.TaskRequest{Query: "q"})
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestCoordinatorSessionHistoryFeedsContext(t *testing.T) {
	llm := tutorProvider("route_to_math_agent", routeMath, nil)
	store := NewSessionStore(5, time.Hour, testLogger())
	c := newTestCoordinator(t, llm, store)
	ctx := context.Background()

	_, err := c.Answer(ctx, domain.TaskRequest{Query: "Solve 2x + 5 = 15", SessionID: "s1"})
	require.NoError(t, err)
	_, err = c.Answer(ctx, domain.TaskRequest{Query: "Now solve 3x = 9", SessionID: "s1", Context: "homework set 2"})
	require.NoError(t, err)

	calls := llm.calls()
	require.Len(t, calls, 6)
	second := userContent(calls[3])
	assert.Contains(t, second, "Context: Previous conversation:\nUser: Solve 2x + 5 = 15\nAI: Enhanced: x = 5\n")
	assert.Contains(t, second, "\n\nhomework set 2")
	assert.Contains(t, userContent(calls[4]), "Context: Previous conversation:", "specialist sees history")

	info := store.Info("s1")
	assert.Equal(t, 2, info.TurnCount)
	assert.Equal(t, []string{"Math Tutor (via Coordinator)"}, info.AgentsUsed)
	assert.Contains(t, store.GetContext("s1"), "User: Now solve 3x = 9\n")
}

func TestCoordinatorStatelessWithoutSessionID(t *testing.T) {
	store := NewSessionStore(5, time.Hour, testLogger())
	c := newTestCoordinator(t, tutorProvider("route_to_math_agent", routeMath, nil), store)

	_, err := c.Answer(context.Background(), domain.TaskRequest{Query: "Solve 2x + 5 = 15"})
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestCoordinatorConcurrentTurnsOnOneSession(t *testing.T) {
	store := NewSessionStore(5, time.Hour, testLogger())
	c := newTestCoordinator(t, tutorProvider("route_to_math_agent", routeMath, nil), store)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Answer(context.Background(), domain.TaskRequest{Query: fmt.Sprintf("Solve %dx = 1", i+1), SessionID: "shared"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, store.Info("shared").TurnCount)
}

func TestCoordinatorIntrospection(t *testing.T) {
	c := newTestCoordinator(t, &mockProvider{}, nil)

	prompts := c.SystemPrompts()
	assert.Contains(t, prompts["coordinator"], "routing student queries")
	assert.True(t, strings.HasPrefix(prompts["math"], "You are Math Tutor."))
	assert.True(t, strings.HasPrefix(prompts["physics"], "You are Physics Tutor."))

	scores := c.Scores("Solve 2x + 5 = 15")
	require.Len(t, scores, 2)
	assert.Greater(t, scores["math"], scores["physics"])

	caps := c.Capabilities()
	assert.Equal(t, "Physics Tutor", caps["physics"].Name)

	d := c.Route(context.Background(), domain.TaskRequest{Query: "Who was Napoleon?"})
	assert.Equal(t, domain.ActionHandleDirectly, d.Action)
}
