package domain

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// TaskRequest is one student query. Values are passed by copy and never
// modified after construction.
type TaskRequest struct {
	Query     string `json:"query"`
	Context   string `json:"context,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// NewTaskRequest validates the query and returns a request.
func NewTaskRequest(query, extra, userID, sessionID string) (TaskRequest, error) {
	if strings.TrimSpace(query) == "" {
		return TaskRequest{}, NewDomainError("NewTaskRequest", ErrInvalidInput, "query is required")
	}
	return TaskRequest{Query: query, Context: extra, UserID: userID, SessionID: sessionID}, nil
}

// WithQuery returns a copy carrying a different query.
func (r TaskRequest) WithQuery(q string) TaskRequest {
	r.Query = q
	return r
}

// WithContext returns a copy carrying a different context block.
func (r TaskRequest) WithContext(c string) TaskRequest {
	r.Context = c
	return r
}

// AgentResponse is the result of one processing call.
type AgentResponse struct {
	Content         string         `json:"content"`
	Confidence      float64        `json:"confidence"`
	Sources         []string       `json:"sources"`
	Metadata        map[string]any `json:"metadata"`
	ExecutionTimeMS float64        `json:"execution_time_ms"`
}

// CloneSources returns a copy of the response sources so later stages can
// extend them without aliasing.
func (r AgentResponse) CloneSources() []string {
	return slices.Clone(r.Sources)
}

// CloneMetadata returns a shallow copy of the response metadata.
func (r AgentResponse) CloneMetadata() map[string]any {
	if r.Metadata == nil {
		return map[string]any{}
	}
	return maps.Clone(r.Metadata)
}

// ClampConfidence limits c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Capability summarizes a registered specialist.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Focus       string   `json:"focus"`
	Tools       []string `json:"tools"`
}

// Agent is the capability interface every specialist implements.
type Agent interface {
	// Name is the display name, e.g. "Math Tutor".
	Name() string
	// CanHandle is a keyword heuristic in [0,1]. Debug signal only.
	CanHandle(query string) float64
	// Process answers the request. It never returns an error; failures are
	// reported as low-confidence responses.
	Process(ctx context.Context, req TaskRequest) AgentResponse
	// SystemPrompt returns the full system prompt sent with each call.
	SystemPrompt() string
	// Capability describes the agent for listings.
	Capability() Capability
}
