package domain

import (
	"strings"
	"time"
)

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

// Part is one element of a model response: either free text or a structured
// tool invocation request.
type Part struct {
	Text     string    `json:"text,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// IsToolCall reports whether the part carries a tool invocation.
func (p Part) IsToolCall() bool { return p.ToolCall != nil }

// ChatResponse is returned from an LLM provider. Parts keep the order the
// model produced them in.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Parts     []Part    `json:"parts"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Text joins all text parts.
func (r *ChatResponse) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Parts {
		if p.ToolCall == nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the tool invocation parts in order.
func (r *ChatResponse) ToolCalls() []ToolCall {
	if r == nil {
		return nil
	}
	var calls []ToolCall
	for _, p := range r.Parts {
		if p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

// Empty reports whether the response carries neither text nor tool calls.
func (r *ChatResponse) Empty() bool {
	if r == nil {
		return true
	}
	for _, p := range r.Parts {
		if p.ToolCall != nil || strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
