package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskRequest(t *testing.T) {
	req, err := NewTaskRequest("solve 2x+5=15", "", "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "solve 2x+5=15", req.Query)
	assert.Equal(t, "s1", req.SessionID)

	_, err = NewTaskRequest("   ", "", "", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTaskRequestCopies(t *testing.T) {
	orig := TaskRequest{Query: "a", Context: "ctx"}
	rewritten := orig.WithQuery("b")
	assert.Equal(t, "a", orig.Query)
	assert.Equal(t, "b", rewritten.Query)
	assert.Equal(t, "ctx", rewritten.Context)
}

func TestAgentResponseClonesDoNotAlias(t *testing.T) {
	resp := AgentResponse{
		Sources:  []string{"Math Agent"},
		Metadata: map[string]any{"agent": "Math Tutor"},
	}
	sources := resp.CloneSources()
	sources[0] = "changed"
	meta := resp.CloneMetadata()
	meta["agent"] = "changed"

	assert.Equal(t, "Math Agent", resp.Sources[0])
	assert.Equal(t, "Math Tutor", resp.Metadata["agent"])
	assert.NotNil(t, AgentResponse{}.CloneMetadata())
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-1))
	assert.Equal(t, 1.0, ClampConfidence(3))
	assert.Equal(t, 0.7, ClampConfidence(0.7))
}

func TestRoutingDecisionVariants(t *testing.T) {
	d := Delegate("math", "equation", "solve x", RoutingFunctionCalling)
	assert.True(t, d.IsDelegate())
	assert.Equal(t, "delegate(math): equation", d.String())

	h := HandleDirectly("history", "who was Napoleon", RoutingKeywordFallback)
	assert.False(t, h.IsDelegate())
	assert.Empty(t, h.AgentKey)

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "agent_key")
}

func TestChatResponseParts(t *testing.T) {
	resp := &ChatResponse{Parts: []Part{
		{Text: "Let me solve. "},
		{ToolCall: &ToolCall{Name: "equation_solver", Arguments: json.RawMessage(`{"equation":"x=1"}`)}},
		{Text: "Done."},
	}}
	assert.Equal(t, "Let me solve. Done.", resp.Text())
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "equation_solver", calls[0].Name)
	assert.False(t, resp.Empty())

	assert.True(t, (&ChatResponse{Parts: []Part{{Text: "  "}}}).Empty())
	var nilResp *ChatResponse
	assert.True(t, nilResp.Empty())
	assert.Equal(t, "", nilResp.Text())
}

func TestToolResultSuccess(t *testing.T) {
	assert.True(t, (&ToolResult{Content: "x = 5"}).Success())
	assert.False(t, (&ToolResult{Content: "bad", IsError: true}).Success())
	var r *ToolResult
	assert.False(t, r.Success())
}
