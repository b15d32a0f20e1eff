package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/tracer"
	"tutor-dispatch/internal/usecase/multiagent"
)

// DefaultCoordinatorName is the display name used in sources and agent_used.
const DefaultCoordinatorName = "AI Tutor Coordinator"

// CoordinatorDeps holds injected dependencies for the Coordinator.
type CoordinatorDeps struct {
	Name              string
	Agents            *multiagent.Registry
	RoutingLLM        domain.LLMProvider
	TutorLLM          domain.LLMProvider // enhancement and direct answers
	ModelLabel        string
	DirectConfidence  float64
	FailureConfidence float64
	CallTimeout       time.Duration
	Sessions          *SessionStore // nil = stateless
	Locker            *SessionLocker
	Logger            *slog.Logger
}

// Coordinator routes each query to a specialist or answers it directly.
type Coordinator struct {
	name       string
	agents     *multiagent.Registry
	router     *DecisionRouter
	tutor      llmCaller
	modelLabel string
	directConf float64
	failConf   float64
	sessions   *SessionStore
	locker     *SessionLocker
	logger     *slog.Logger
}

// Answer is a response together with the label of whoever produced it.
type Answer struct {
	Response  domain.AgentResponse
	AgentUsed string
}

// NewCoordinator wires the coordinator. It fails only when the decision
// schema cannot be compiled.
func NewCoordinator(deps CoordinatorDeps) (*Coordinator, error) {
	if deps.Name == "" {
		deps.Name = DefaultCoordinatorName
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Agents == nil {
		deps.Agents = multiagent.NewRegistry(deps.Logger)
	}
	if deps.TutorLLM == nil {
		deps.TutorLLM = deps.RoutingLLM
	}
	if deps.ModelLabel == "" {
		deps.ModelLabel = modelLabelOf(deps.TutorLLM)
	}
	if deps.DirectConfidence <= 0 {
		deps.DirectConfidence = 0.7
	}
	if deps.FailureConfidence <= 0 {
		deps.FailureConfidence = 0.1
	}
	if deps.Locker == nil {
		deps.Locker = NewSessionLocker()
	}

	logger := deps.Logger.With("component", "coordinator")
	router, err := NewDecisionRouter(deps.Name, deps.Agents, newLLMCaller(deps.RoutingLLM, deps.CallTimeout), logger)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		name:       deps.Name,
		agents:     deps.Agents,
		router:     router,
		tutor:      newLLMCaller(deps.TutorLLM, deps.CallTimeout),
		modelLabel: deps.ModelLabel,
		directConf: deps.DirectConfidence,
		failConf:   deps.FailureConfidence,
		sessions:   deps.Sessions,
		locker:     deps.Locker,
		logger:     logger,
	}, nil
}

// Name returns the coordinator display name.
func (c *Coordinator) Name() string { return c.name }

// Agents returns the specialist registry.
func (c *Coordinator) Agents() *multiagent.Registry { return c.agents }

// Sessions returns the session store, or nil when running stateless.
func (c *Coordinator) Sessions() *SessionStore { return c.sessions }

// ModelLabel returns the label reported for direct answers.
func (c *Coordinator) ModelLabel() string { return c.modelLabel }

// AgentKeys lists the specialist keys in registration order.
func (c *Coordinator) AgentKeys() []string { return c.agents.Keys() }

// SessionInfo describes a session. It reports Exists=false when running
// stateless.
func (c *Coordinator) SessionInfo(id string) domain.SessionInfo {
	if c.sessions == nil {
		return domain.SessionInfo{}
	}
	return c.sessions.Info(id)
}

// Route runs only the routing decision.
func (c *Coordinator) Route(ctx context.Context, req domain.TaskRequest) domain.RoutingDecision {
	return c.router.Route(ctx, req)
}

// Process routes and answers one request. It never returns an error; every
// failure becomes a low-confidence response.
func (c *Coordinator) Process(ctx context.Context, req domain.TaskRequest) domain.AgentResponse {
	resp, _ := c.process(ctx, req)
	return resp
}

// ProcessDirect sends the request straight to one specialist.
func (c *Coordinator) ProcessDirect(ctx context.Context, key string, req domain.TaskRequest) (domain.AgentResponse, error) {
	agent, err := c.agents.Get(key)
	if err != nil {
		return domain.AgentResponse{}, err
	}
	if _, err := domain.NewTaskRequest(req.Query, req.Context, req.UserID, req.SessionID); err != nil {
		return domain.AgentResponse{}, err
	}
	c.logger.Info("direct dispatch", "agent", key, "session_id", req.SessionID)
	return agent.Process(ctx, req), nil
}

// Answer runs Process inside the request's session: prior turns are added to
// the context and the new turn is recorded.
func (c *Coordinator) Answer(ctx context.Context, req domain.TaskRequest) (Answer, error) {
	return c.inSession(ctx, req, func(req domain.TaskRequest) (Answer, error) {
		resp, agentUsed := c.process(ctx, req)
		return Answer{Response: resp, AgentUsed: agentUsed}, nil
	})
}

// AnswerDirect is Answer for a named specialist.
func (c *Coordinator) AnswerDirect(ctx context.Context, key string, req domain.TaskRequest) (Answer, error) {
	agent, err := c.agents.Get(key)
	if err != nil {
		return Answer{}, err
	}
	return c.inSession(ctx, req, func(req domain.TaskRequest) (Answer, error) {
		resp, err := c.ProcessDirect(ctx, key, req)
		if err != nil {
			return Answer{}, err
		}
		return Answer{Response: resp, AgentUsed: agent.Name() + " (Direct)"}, nil
	})
}

func (c *Coordinator) inSession(ctx context.Context, req domain.TaskRequest, run func(domain.TaskRequest) (Answer, error)) (Answer, error) {
	if c.sessions == nil || req.SessionID == "" {
		return run(req)
	}

	unlock, err := c.locker.Lock(ctx, req.SessionID)
	if err != nil {
		return Answer{}, err
	}
	defer unlock()

	query := req.Query
	if history := c.sessions.GetContext(req.SessionID); history != "" {
		merged := "Previous conversation:\n" + history
		if req.Context != "" {
			merged += "\n\n" + req.Context
		}
		req = req.WithContext(merged)
	}

	out, err := run(req)
	if err != nil {
		return Answer{}, err
	}
	c.sessions.AddInteraction(req.SessionID, query, out.Response.Content, out.AgentUsed)
	return out, nil
}

// Scores returns every specialist's CanHandle score for the query.
func (c *Coordinator) Scores(query string) map[string]float64 {
	out := make(map[string]float64, c.agents.Len())
	c.agents.Each(func(key string, a domain.Agent) {
		out[key] = a.CanHandle(query)
	})
	return out
}

// SystemPrompts returns the routing prompt under "coordinator" and each
// specialist prompt under its key.
func (c *Coordinator) SystemPrompts() map[string]string {
	out := map[string]string{"coordinator": c.router.SystemPrompt()}
	c.agents.Each(func(key string, a domain.Agent) {
		out[key] = a.SystemPrompt()
	})
	return out
}

// Capabilities lists the registered specialists by key.
func (c *Coordinator) Capabilities() map[string]domain.Capability {
	return c.agents.Capabilities()
}

func (c *Coordinator) process(ctx context.Context, req domain.TaskRequest) (resp domain.AgentResponse, agentUsed string) {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, "coordinator.process",
		trace.WithAttributes(tracer.StringAttr("session.id", req.SessionID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("internal error: %v", r)
			tracer.RecordError(span, err)
			c.logger.Error("coordinator panic", "panic", r)
			resp, agentUsed = c.errorResponse(err, start), c.name
		}
	}()

	if _, err := domain.NewTaskRequest(req.Query, req.Context, req.UserID, req.SessionID); err != nil {
		tracer.RecordError(span, err)
		return c.errorResponse(err, start), c.name
	}

	c.logger.Info("processing query", "query", preview(req.Query, 100), "session_id", req.SessionID)
	decision := c.router.Route(ctx, req)

	if decision.IsDelegate() {
		agent, err := c.agents.Get(decision.AgentKey)
		if err != nil {
			c.logger.Warn("routed to unknown agent, using keyword fallback", "agent", decision.AgentKey)
			decision = c.router.Fallback(req.Query, err)
			if decision.IsDelegate() {
				agent, err = c.agents.Get(decision.AgentKey)
			}
		}
		if decision.IsDelegate() && err == nil {
			resp := c.delegate(ctx, agent, decision, req, start)
			tracer.SetOK(span)
			return resp, agent.Name() + " (via Coordinator)"
		}
	}

	resp = c.handleDirectly(ctx, decision, req, start)
	tracer.SetOK(span)
	return resp, c.name
}

func (c *Coordinator) delegate(ctx context.Context, agent domain.Agent, d domain.RoutingDecision, req domain.TaskRequest, start time.Time) domain.AgentResponse {
	c.logger.Info("delegating", "agent", d.AgentKey, "method", d.Method)
	reply := agent.Process(ctx, req.WithQuery(d.Query))

	content, enhanced := c.enhance(ctx, req.Query, d.Reasoning, agent.Name(), reply.Content)

	sources := append([]string{c.name}, reply.CloneSources()...)
	total := elapsedMS(start)
	c.logger.Info("delegation completed", "agent", d.AgentKey, "enhanced", enhanced, "duration_ms", total)
	trace.SpanFromContext(ctx).SetAttributes(
		tracer.StringAttr("routing.agent", d.AgentKey),
		tracer.FloatAttr("answer.confidence", reply.Confidence),
		tracer.BoolAttr("answer.enhanced", enhanced),
	)

	return domain.AgentResponse{
		Content:    content,
		Confidence: reply.Confidence,
		Sources:    sources,
		Metadata: map[string]any{
			"coordinator":                  c.name,
			"routing_method":               string(d.Method),
			"delegated_to":                 d.AgentKey,
			"delegated_to_name":            agent.Name(),
			"routing_reasoning":            d.Reasoning,
			"specialist_execution_time_ms": reply.ExecutionTimeMS,
			"total_execution_time_ms":      total,
			"specialist_metadata":          reply.CloneMetadata(),
			"enhanced":                     enhanced,
		},
		ExecutionTimeMS: total,
	}
}

// enhance rewrites the specialist answer in the coordinator's voice. The
// connection template is used when that call fails.
func (c *Coordinator) enhance(ctx context.Context, query, reasoning, specialist, content string) (string, bool) {
	text, err := c.tutor.text(ctx, "", enhancementPrompt(c.name, query, reasoning, specialist, content))
	if err != nil {
		c.logger.Warn("enhancement failed, using template", "error", err)
		return fmt.Sprintf("I've connected you with our %s: %s", specialist, content), false
	}
	return text, true
}

func (c *Coordinator) handleDirectly(ctx context.Context, d domain.RoutingDecision, req domain.TaskRequest, start time.Time) domain.AgentResponse {
	c.logger.Info("handling directly", "method", d.Method)

	var available []string
	c.agents.Each(func(_ string, a domain.Agent) {
		cp := a.Capability()
		available = append(available, fmt.Sprintf("%s (%s)", cp.Name, cp.Focus))
	})
	if available == nil {
		available = []string{}
	}

	meta := map[string]any{
		"agent":                 c.name,
		"mode":                  "general_tutor",
		"routing_reasoning":     d.Reasoning,
		"specialists_available": available,
	}

	text, err := c.tutor.text(ctx, "", generalTutorPrompt(req, d.Reasoning, available))
	if err != nil {
		c.logger.Warn("direct answer failed", "error", err)
		meta["error"] = err.Error()
		return domain.AgentResponse{
			Content: fmt.Sprintf("I'd be happy to help with your question: %s. However, I encountered a technical issue. "+
				"Could you please rephrase your question?", req.Query),
			Confidence:      c.failConf,
			Sources:         []string{c.name},
			Metadata:        meta,
			ExecutionTimeMS: elapsedMS(start),
		}
	}

	return domain.AgentResponse{
		Content:         text,
		Confidence:      c.directConf,
		Sources:         []string{c.name, c.modelLabel},
		Metadata:        meta,
		ExecutionTimeMS: elapsedMS(start),
	}
}

func (c *Coordinator) errorResponse(err error, start time.Time) domain.AgentResponse {
	return domain.AgentResponse{
		Content: fmt.Sprintf("I encountered an error while processing your request: %v. "+
			"Please try rephrasing your question.", err),
		Confidence:      c.failConf,
		Sources:         []string{c.name},
		Metadata:        map[string]any{"agent": c.name, "error": err.Error()},
		ExecutionTimeMS: elapsedMS(start),
	}
}
