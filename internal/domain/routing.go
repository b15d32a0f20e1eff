package domain

import "fmt"

// RoutingAction tags a RoutingDecision.
type RoutingAction string

const (
	ActionDelegate       RoutingAction = "delegate"
	ActionHandleDirectly RoutingAction = "handle_directly"
)

// RoutingMethod records how a decision was reached.
type RoutingMethod string

const (
	RoutingFunctionCalling RoutingMethod = "function_calling"
	RoutingKeywordFallback RoutingMethod = "keyword_fallback"
)

// RoutingDecision is either Delegate{AgentKey, Reasoning, Query} or
// HandleDirectly{Reasoning, Query}. AgentKey is empty for the latter.
type RoutingDecision struct {
	Action    RoutingAction `json:"action"`
	AgentKey  string        `json:"agent_key,omitempty"`
	Reasoning string        `json:"reasoning"`
	Query     string        `json:"query"`
	Method    RoutingMethod `json:"method"`
}

// Delegate builds a delegation decision.
func Delegate(agentKey, reasoning, query string, method RoutingMethod) RoutingDecision {
	return RoutingDecision{
		Action:    ActionDelegate,
		AgentKey:  agentKey,
		Reasoning: reasoning,
		Query:     query,
		Method:    method,
	}
}

// HandleDirectly builds a direct-answer decision.
func HandleDirectly(reasoning, query string, method RoutingMethod) RoutingDecision {
	return RoutingDecision{
		Action:    ActionHandleDirectly,
		Reasoning: reasoning,
		Query:     query,
		Method:    method,
	}
}

// IsDelegate reports whether the decision delegates to a specialist.
func (d RoutingDecision) IsDelegate() bool { return d.Action == ActionDelegate }

func (d RoutingDecision) String() string {
	if d.IsDelegate() {
		return fmt.Sprintf("delegate(%s): %s", d.AgentKey, d.Reasoning)
	}
	return fmt.Sprintf("handle_directly: %s", d.Reasoning)
}
