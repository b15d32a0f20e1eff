package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/tracer"
)

// Confidences are the fixed confidence values a specialist reports.
type Confidences struct {
	Success        float64
	NoToolFallback float64
	Failure        float64
}

// DefaultConfidences returns the standard values for a given success level.
func DefaultConfidences(success float64) Confidences {
	return Confidences{Success: success, NoToolFallback: 0.7, Failure: 0.1}
}

// SpecialistDeps holds injected dependencies for a specialist.
type SpecialistDeps struct {
	Persona     Persona
	LLM         domain.LLMProvider
	Tools       domain.ToolExecutor // nil = no tools
	Strategy    ToolStrategy        // nil = ToolCallingStrategy
	Confidences Confidences
	ModelLabel  string
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Specialist is a subject tutor that may answer with the help of tools.
type Specialist struct {
	persona      Persona
	llm          llmCaller
	tools        domain.ToolExecutor
	schemas      []domain.ToolSchema
	strategy     ToolStrategy
	conf         Confidences
	modelLabel   string
	systemPrompt string
	logger       *slog.Logger
}

var _ domain.Agent = (*Specialist)(nil)

// NewSpecialist creates a specialist. The system prompt and tool catalog are
// fixed at construction.
func NewSpecialist(deps SpecialistDeps) *Specialist {
	if deps.Strategy == nil {
		deps.Strategy = ToolCallingStrategy{}
	}
	if deps.Confidences == (Confidences{}) {
		deps.Confidences = DefaultConfidences(0.9)
	}
	if deps.ModelLabel == "" {
		deps.ModelLabel = modelLabelOf(deps.LLM)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	var schemas []domain.ToolSchema
	if deps.Tools != nil {
		schemas = deps.Tools.Schemas()
	}

	return &Specialist{
		persona:      deps.Persona,
		llm:          newLLMCaller(deps.LLM, deps.CallTimeout),
		tools:        deps.Tools,
		schemas:      schemas,
		strategy:     deps.Strategy,
		conf:         deps.Confidences,
		modelLabel:   deps.ModelLabel,
		systemPrompt: BuildSystemPrompt(deps.Persona, schemas),
		logger:       deps.Logger.With("agent", deps.Persona.Name),
	}
}

// Key returns the registry key of the specialist.
func (s *Specialist) Key() string { return s.persona.Key }

// Name returns the display name.
func (s *Specialist) Name() string { return s.persona.Name }

// SystemPrompt returns the full system prompt.
func (s *Specialist) SystemPrompt() string { return s.systemPrompt }

// CanHandle scores the query with the persona heuristic. It is reported for
// debugging and never drives routing.
func (s *Specialist) CanHandle(query string) float64 {
	return s.persona.Heuristic.Score(query)
}

// ToolNames lists the tools the specialist may call, in catalog order.
func (s *Specialist) ToolNames() []string {
	names := make([]string, len(s.schemas))
	for i, sc := range s.schemas {
		names[i] = sc.Name
	}
	return names
}

// Capability describes the specialist for listings.
func (s *Specialist) Capability() domain.Capability {
	return domain.Capability{
		Name:        s.persona.Name,
		Description: s.persona.Description,
		Focus:       s.persona.Focus,
		Tools:       s.ToolNames(),
	}
}

func (s *Specialist) hasTool(name string) bool {
	for _, sc := range s.schemas {
		if sc.Name == name {
			return true
		}
	}
	return false
}

// Process answers the request. Failures become low-confidence responses.
func (s *Specialist) Process(ctx context.Context, req domain.TaskRequest) (resp domain.AgentResponse) {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, "specialist.process",
		trace.WithAttributes(
			tracer.StringAttr("agent.key", s.persona.Key),
			tracer.StringAttr("agent.strategy", s.strategy.Name()),
			tracer.IntAttr("agent.tools", len(s.schemas)),
		),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("internal error: %v", r)
			tracer.RecordError(span, err)
			resp = s.failure(err, start)
		}
	}()

	s.logger.Info("specialist started", "query", preview(req.Query, 100), "strategy", s.strategy.Name())
	user := BuildUserPrompt(req)

	if len(s.schemas) == 0 {
		text, err := s.llm.text(ctx, s.systemPrompt, user)
		if err != nil {
			tracer.RecordError(span, err)
			return s.failure(err, start)
		}
		tracer.SetOK(span)
		return s.success(text, "plain", nil, start)
	}

	g, err := s.strategy.Gather(ctx, s, req, user)
	if err != nil {
		s.logger.Warn("tool strategy failed, falling back to plain call", "error", err)
		text, ferr := s.llm.text(ctx, s.systemPrompt, user)
		if ferr != nil {
			tracer.RecordError(span, ferr)
			return s.failure(ferr, start)
		}
		tracer.SetOK(span)
		return domain.AgentResponse{
			Content:    text,
			Confidence: s.conf.NoToolFallback,
			Sources:    s.sources(),
			Metadata: map[string]any{
				"agent":           s.persona.Label,
				"tools_available": s.ToolNames(),
				"tools_error":     err.Error(),
				"fallback_mode":   true,
			},
			ExecutionTimeMS: elapsedMS(start),
		}
	}

	content := g.Text
	if g.Invoked > 0 {
		content = s.synthesize(ctx, req, g)
	}
	tracer.SetOK(span)
	return s.success(content, s.strategy.Name(), g.Calls, start)
}

// synthesize asks the model to explain the tool transcript. The raw transcript
// is returned when that call fails.
func (s *Specialist) synthesize(ctx context.Context, req domain.TaskRequest, g *Gathered) string {
	transcript := g.Transcript()
	calls := g.Calls
	if calls == nil {
		calls = []ToolInvocation{}
	}
	callsJSON, err := json.Marshal(calls)
	if err != nil {
		callsJSON = []byte("[]")
	}

	text, err := s.llm.text(ctx, "", formattingPrompt(s.persona.Subject, req.Query, transcript, string(callsJSON)))
	if err != nil {
		s.logger.Warn("formatting call failed, returning raw transcript", "error", err)
		return transcript
	}
	return text
}

func (s *Specialist) success(content, strategy string, calls []ToolInvocation, start time.Time) domain.AgentResponse {
	if calls == nil {
		calls = []ToolInvocation{}
	}
	elapsed := elapsedMS(start)
	s.logger.Info("specialist completed", "tool_calls", len(calls), "duration_ms", elapsed)
	return domain.AgentResponse{
		Content:    content,
		Confidence: s.conf.Success,
		Sources:    s.sources(),
		Metadata: map[string]any{
			"agent":           s.persona.Label,
			"tools_available": s.ToolNames(),
			"strategy":        strategy,
			"tool_calls":      calls,
			"system_prompt":   preview(s.systemPrompt, 200),
		},
		ExecutionTimeMS: elapsed,
	}
}

func (s *Specialist) failure(err error, start time.Time) domain.AgentResponse {
	s.logger.Error("specialist failed", "error", err)
	return domain.AgentResponse{
		Content: fmt.Sprintf("I encountered an error while processing your %s question: %v. Please try rephrasing your question.",
			s.persona.Subject, err),
		Confidence: s.conf.Failure,
		Sources:    []string{},
		Metadata: map[string]any{
			"agent": s.persona.Label,
			"error": err.Error(),
		},
		ExecutionTimeMS: elapsedMS(start),
	}
}

func (s *Specialist) sources() []string {
	return []string{s.persona.Label, s.modelLabel}
}

// execTool looks up and runs one tool. Panics inside the tool surface as
// errors.
func (s *Specialist) execTool(ctx context.Context, name string, args json.RawMessage) (res *domain.ToolResult, err error) {
	ctx, span := tracer.StartSpan(ctx, "tool."+name)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: tool %s panicked: %v", domain.ErrToolFailure, name, r)
		}
		if err != nil {
			tracer.RecordError(span, err)
		} else if res.Success() {
			tracer.SetOK(span)
		}
	}()

	if s.tools == nil {
		return nil, domain.NewDomainError("Specialist.execTool", domain.ErrToolNotFound, name)
	}
	t, err := s.tools.Get(name)
	if err != nil {
		return nil, err
	}
	res, err = t.Execute(ctx, args)
	if err == nil && res == nil {
		err = fmt.Errorf("%w: tool %s returned no result", domain.ErrToolFailure, name)
	}
	return res, err
}

// dispatch runs a model-requested tool call and appends the outcome to the
// transcript.
func (s *Specialist) dispatch(ctx context.Context, g *Gathered, name string, args json.RawMessage) {
	g.Invoked++
	res, err := s.execTool(ctx, name, args)
	switch {
	case err != nil:
		s.logger.Warn("tool execution error", "tool", name, "error", err)
		g.add(fmt.Sprintf("[Tool Execution Error]: %v", err))
	case res.IsError:
		s.logger.Info("tool call failed", "tool", name, "error", res.Content)
		g.add("[Tool Error]: " + res.Content)
	default:
		s.logger.Info("tool call", "tool", name, "result", preview(res.Content, 120))
		g.add(fmt.Sprintf("[Using %s]: %s", name, res.Content))
		g.Calls = append(g.Calls, ToolInvocation{Name: name, Arguments: normalizeArgs(args), Result: res.Content})
	}
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 || !json.Valid(args) {
		return json.RawMessage(`{}`)
	}
	return args
}

func modelLabelOf(p domain.LLMProvider) string {
	if mn, ok := p.(domain.ModelNamer); ok && mn.Model() != "" {
		return mn.Model()
	}
	if p != nil {
		return p.Name()
	}
	return "LLM"
}

// ToolInvocation records one successful tool call for the synthesis prompt.
type ToolInvocation struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    string          `json:"result"`
}

// Gathered is what a ToolStrategy collected before synthesis.
type Gathered struct {
	Text    string           // free text produced by the model
	Lines   []string         // transcript lines in order
	Calls   []ToolInvocation // successful tool calls
	Invoked int              // tool dispatches attempted
}

func (g *Gathered) add(line string) { g.Lines = append(g.Lines, line) }

// Transcript joins the transcript lines.
func (g *Gathered) Transcript() string { return strings.Join(g.Lines, "\n") }
