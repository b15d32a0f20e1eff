package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/tracer"
	"tutor-dispatch/internal/usecase/multiagent"
)

// Decision function names. Delegation functions are "route_to_{key}_agent".
const (
	HandleGeneralFunction = "handle_general_query"
	noDecisionReasoning   = "No clear specialization needed - handling as general query"
)

// decisionSchema is shared by every decision function.
const decisionSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "The query to be handled, rewritten if that helps the specialist"},
		"reasoning": {"type": "string", "description": "Brief explanation of this routing choice"}
	},
	"required": ["query", "reasoning"]
}`

// RouteFunctionName returns the delegation function name for an agent key.
func RouteFunctionName(key string) string { return "route_to_" + key + "_agent" }

// fallbackKeywords are scanned in order when the structured decision fails.
var fallbackKeywords = []struct {
	key   string
	words []string
}{
	{"math", []string{"solve", "calculate", "equation", "math", "formula"}},
	{"physics", []string{"force", "energy", "physics", "voltage", "current"}},
}

type decisionArgs struct {
	Query     string `json:"query"`
	Reasoning string `json:"reasoning"`
}

// DecisionRouter asks the model to pick one decision function and turns the
// answer into a RoutingDecision. It never fails: every error path ends in the
// keyword fallback.
type DecisionRouter struct {
	agents       *multiagent.Registry
	llm          llmCaller
	systemPrompt string
	functions    []domain.ToolSchema
	targets      map[string]string // function name → agent key, "" for direct
	validator    *jsonschema.Schema
	logger       *slog.Logger
}

// NewDecisionRouter builds the decision catalog from the registered agents.
func NewDecisionRouter(coordinator string, agents *multiagent.Registry, llm llmCaller, logger *slog.Logger) (*DecisionRouter, error) {
	validator, err := jsonschema.NewCompiler().Compile([]byte(decisionSchema))
	if err != nil {
		return nil, fmt.Errorf("compile decision schema: %w", err)
	}

	r := &DecisionRouter{
		agents:    agents,
		llm:       llm,
		targets:   make(map[string]string),
		validator: validator,
		logger:    logger,
	}

	var personas []Persona
	agents.Each(func(key string, a domain.Agent) {
		c := a.Capability()
		name := RouteFunctionName(key)
		r.functions = append(r.functions, domain.ToolSchema{
			Name:        name,
			Description: fmt.Sprintf("Route the query to the %s. %s", c.Name, c.Description),
			Parameters:  json.RawMessage(decisionSchema),
		})
		r.targets[name] = key
		personas = append(personas, Persona{Name: c.Name, Focus: c.Focus})
	})
	r.functions = append(r.functions, domain.ToolSchema{
		Name: HandleGeneralFunction,
		Description: "Handle the query directly as a general tutor for non-specialized topics like history, " +
			"literature, general knowledge, or mixed subjects",
		Parameters: json.RawMessage(decisionSchema),
	})
	r.targets[HandleGeneralFunction] = ""
	r.systemPrompt = RoutingSystemPrompt(coordinator, personas)
	return r, nil
}

// Functions returns the decision catalog sent to the model.
func (r *DecisionRouter) Functions() []domain.ToolSchema { return r.functions }

// SystemPrompt returns the routing system prompt.
func (r *DecisionRouter) SystemPrompt() string { return r.systemPrompt }

// Route makes one structured decision call.
func (r *DecisionRouter) Route(ctx context.Context, req domain.TaskRequest) domain.RoutingDecision {
	ctx, span := tracer.StartSpan(ctx, "coordinator.route")
	defer span.End()

	chatReq := plainRequest(r.systemPrompt, routingPrompt(req))
	chatReq.Tools = r.functions

	resp, err := r.llm.chat(ctx, chatReq)
	if errors.Is(err, domain.ErrEmptyResponse) {
		// An empty reply carries no decision, same as free text.
		resp, err = &domain.ChatResponse{}, nil
	}
	if err != nil {
		tracer.RecordError(span, err)
		r.logger.Warn("routing call failed, using keyword fallback", "error", err)
		return r.Fallback(req.Query, err)
	}

	decision, err := r.parse(resp, req.Query)
	switch {
	case errors.Is(err, domain.ErrNoStructuredDecision):
		r.logger.Warn("no structured routing decision", "text", preview(resp.Text(), 100))
		decision = domain.HandleDirectly(noDecisionReasoning, req.Query, domain.RoutingFunctionCalling)
	case err != nil:
		tracer.RecordError(span, err)
		r.logger.Warn("routing protocol violation, using keyword fallback", "error", err)
		decision = r.Fallback(req.Query, err)
	default:
		tracer.SetOK(span)
	}

	span.SetAttributes(
		tracer.StringAttr("routing.action", string(decision.Action)),
		tracer.StringAttr("routing.agent", decision.AgentKey),
		tracer.StringAttr("routing.method", string(decision.Method)),
	)
	r.logger.Info("routing decision",
		"action", decision.Action,
		"agent_key", decision.AgentKey,
		"method", decision.Method,
		"reasoning", decision.Reasoning,
	)
	return decision
}

// parse picks the first tool call naming a declared function and validates
// its arguments.
func (r *DecisionRouter) parse(resp *domain.ChatResponse, original string) (domain.RoutingDecision, error) {
	calls := resp.ToolCalls()
	if len(calls) == 0 {
		return domain.RoutingDecision{}, domain.ErrNoStructuredDecision
	}

	var call *domain.ToolCall
	for i := range calls {
		if _, ok := r.targets[calls[i].Name]; ok {
			call = &calls[i]
			break
		}
	}
	if call == nil {
		return domain.RoutingDecision{}, fmt.Errorf("%w: unknown function %q", domain.ErrRoutingViolation, calls[0].Name)
	}

	var raw any
	if err := json.Unmarshal(orEmptyObject(call.Arguments), &raw); err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("%w: %s arguments: %v", domain.ErrRoutingViolation, call.Name, err)
	}
	if result := r.validator.Validate(raw); !result.IsValid() {
		return domain.RoutingDecision{}, fmt.Errorf("%w: %s arguments: %s", domain.ErrRoutingViolation, call.Name, result.Error())
	}

	var args decisionArgs
	if err := json.Unmarshal(orEmptyObject(call.Arguments), &args); err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("%w: %s arguments: %v", domain.ErrRoutingViolation, call.Name, err)
	}
	query := args.Query
	if strings.TrimSpace(query) == "" {
		query = original
	}

	key := r.targets[call.Name]
	if key == "" {
		return domain.HandleDirectly(args.Reasoning, query, domain.RoutingFunctionCalling), nil
	}
	if !r.agents.Has(key) {
		return domain.RoutingDecision{}, fmt.Errorf("%w: agent %q is not registered", domain.ErrRoutingViolation, key)
	}
	return domain.Delegate(key, args.Reasoning, query, domain.RoutingFunctionCalling), nil
}

// Fallback routes on keywords alone. Only registered agents are candidates.
func (r *DecisionRouter) Fallback(query string, cause error) domain.RoutingDecision {
	lower := strings.ToLower(query)
	for _, set := range fallbackKeywords {
		if !r.agents.Has(set.key) {
			continue
		}
		for _, w := range set.words {
			if strings.Contains(lower, w) {
				return domain.Delegate(set.key,
					fmt.Sprintf("Fallback routing - detected %s keywords. Error: %v", set.key, cause),
					query, domain.RoutingKeywordFallback)
			}
		}
	}
	return domain.HandleDirectly(
		fmt.Sprintf("Fallback routing - no specialty detected. Error: %v", cause),
		query, domain.RoutingKeywordFallback)
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
