package domain

import (
	"context"
	"encoding/json"
)

// Tool is something a specialist may call while answering: the calculator,
// the equation solver, the formula table.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolSchema is what the model sees of a tool. Parameters is a JSON Schema
// object.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is one function call requested by the model. ID pairs the call
// with its result in the transcript.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult carries either the tool's output or, with IsError set, a
// message the model can read and act on. IsRetryable marks failures that
// may pass on a second attempt.
type ToolResult struct {
	Content     string `json:"content"`
	IsError     bool   `json:"is_error"`
	IsRetryable bool   `json:"is_retryable,omitempty"`
}

func (r *ToolResult) Success() bool { return r != nil && !r.IsError }

// ToolExecutor is the read side of a tool registry.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}
