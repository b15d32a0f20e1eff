package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/usecase"
)

// RoutingMethod is reported by /health and /agents.
const RoutingMethod = "llm_function_calling"

// Tutor is the application surface the HTTP API drives.
type Tutor interface {
	Answer(ctx context.Context, req domain.TaskRequest) (usecase.Answer, error)
	AnswerDirect(ctx context.Context, key string, req domain.TaskRequest) (usecase.Answer, error)
	Route(ctx context.Context, req domain.TaskRequest) domain.RoutingDecision
	Capabilities() map[string]domain.Capability
	AgentKeys() []string
	Scores(query string) map[string]float64
	SystemPrompts() map[string]string
	SessionInfo(id string) domain.SessionInfo
	ModelLabel() string
	Name() string
}

// HandlerDeps holds the dependencies of the HTTP handlers.
type HandlerDeps struct {
	Tutor   Tutor
	Version string
}

// AskRequest is the body of POST /ask, /ask/:agent and /routing_info.
type AskRequest struct {
	Query     string `json:"query" binding:"required,notblank,max=8000"`
	Context   string `json:"context"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (r AskRequest) task() domain.TaskRequest {
	return domain.TaskRequest{Query: r.Query, Context: r.Context, UserID: r.UserID, SessionID: r.SessionID}
}

// AskResponse is the body returned by the ask endpoints.
type AskResponse struct {
	Answer          string         `json:"answer"`
	Confidence      float64        `json:"confidence"`
	AgentUsed       string         `json:"agent_used"`
	Sources         []string       `json:"sources"`
	ExecutionTimeMS float64        `json:"execution_time_ms"`
	Metadata        map[string]any `json:"metadata"`
}

// RoutingInfoResponse is the body returned by POST /routing_info.
type RoutingInfoResponse struct {
	Query           string                 `json:"query"`
	RoutingDecision domain.RoutingDecision `json:"routing_decision"`
	WouldDelegate   bool                   `json:"would_delegate"`
	TargetAgent     *string                `json:"target_agent"`
	Reasoning       string                 `json:"reasoning"`
}

// AgentScore is one row of the legacy score debug endpoint.
type AgentScore struct {
	AgentName        string   `json:"agent_name"`
	LegacyConfidence float64  `json:"legacy_confidence"`
	Tools            []string `json:"tools"`
}

func registerRoutes(r *gin.Engine, deps HandlerDeps, debug bool) {
	h := &handlers{deps: deps}
	r.GET("/", h.root)
	r.GET("/health", h.health)
	r.POST("/ask", h.ask)
	r.POST("/ask/:agent", h.askDirect)
	r.GET("/agents", h.agents)
	r.POST("/routing_info", h.routingInfo)
	r.GET("/sessions/:id", h.session)
	if debug {
		r.GET("/debug/agent_scores/:query", h.agentScores)
		r.GET("/system_prompts", h.systemPrompts)
	}
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "Not Found", domain.CodeNotFound)
	})
}

type handlers struct {
	deps HandlerDeps
}

func (h *handlers) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Multi-Agent AI Tutor is running!",
		"version": h.deps.Version,
		"features": []string{
			"LLM function-calling routing to specialist agents",
			"Math tutor with calculator, equation solver and formula lookup",
			"Physics tutor with calculator and formula lookup",
			"General knowledge tutor with keyword fallback routing",
			"Bounded per-session conversation memory",
			"Execution timing",
		},
	})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"agents_loaded":  len(h.deps.Tutor.AgentKeys()),
		"model":          h.deps.Tutor.ModelLabel(),
		"routing_method": RoutingMethod,
	})
}

func (h *handlers) ask(c *gin.Context) {
	var req AskRequest
	if !bind(c, &req) {
		return
	}
	answer, err := h.deps.Tutor.Answer(c.Request.Context(), req.task())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAskResponse(answer))
}

func (h *handlers) askDirect(c *gin.Context) {
	key := strings.ToLower(c.Param("agent"))
	var req AskRequest
	if !bind(c, &req) {
		return
	}
	answer, err := h.deps.Tutor.AnswerDirect(c.Request.Context(), key, req.task())
	if errors.Is(err, domain.ErrAgentNotFound) {
		writeError(c, http.StatusNotFound,
			fmt.Sprintf("Agent '%s' not found. Available agents: %s", c.Param("agent"), pyList(h.deps.Tutor.AgentKeys())),
			domain.CodeAgentNotFound)
		return
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAskResponse(answer))
}

func (h *handlers) agents(c *gin.Context) {
	caps := h.deps.Tutor.Capabilities()
	c.JSON(http.StatusOK, gin.H{
		"total_agents":   len(caps),
		"routing_method": RoutingMethod,
		"agents":         caps,
	})
}

func (h *handlers) routingInfo(c *gin.Context) {
	var req AskRequest
	if !bind(c, &req) {
		return
	}
	d := h.deps.Tutor.Route(c.Request.Context(), req.task())
	resp := RoutingInfoResponse{
		Query:           req.Query,
		RoutingDecision: d,
		WouldDelegate:   d.IsDelegate(),
		Reasoning:       d.Reasoning,
	}
	if d.IsDelegate() {
		resp.TargetAgent = &d.AgentKey
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) session(c *gin.Context) {
	info := h.deps.Tutor.SessionInfo(c.Param("id"))
	if info.AgentsUsed == nil {
		info.AgentsUsed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":       c.Param("id"),
		"exists":           info.Exists,
		"turn_count":       info.TurnCount,
		"agents_used":      info.AgentsUsed,
		"duration_seconds": info.Duration.Seconds(),
		"last_updated":     info.LastUpdated,
	})
}

func (h *handlers) agentScores(c *gin.Context) {
	query := c.Param("query")
	scores := h.deps.Tutor.Scores(query)
	caps := h.deps.Tutor.Capabilities()

	out := make(map[string]AgentScore, len(scores))
	for key, score := range scores {
		tools := caps[key].Tools
		if tools == nil {
			tools = []string{}
		}
		out[key] = AgentScore{AgentName: caps[key].Name, LegacyConfidence: score, Tools: tools}
	}
	c.JSON(http.StatusOK, gin.H{
		"query":                    query,
		"note":                     "Primary routing uses LLM function calling, not these legacy scores",
		"legacy_confidence_scores": out,
		"routing_decision":         h.deps.Tutor.Route(c.Request.Context(), domain.TaskRequest{Query: query}),
	})
}

type promptInfo struct {
	Name             string `json:"name"`
	FullSystemPrompt string `json:"full_system_prompt"`
}

func (h *handlers) systemPrompts(c *gin.Context) {
	caps := h.deps.Tutor.Capabilities()
	prompts := make(map[string]promptInfo)
	for key, text := range h.deps.Tutor.SystemPrompts() {
		name := caps[key].Name
		if key == "coordinator" {
			name = h.deps.Tutor.Name()
		}
		prompts[key] = promptInfo{Name: name, FullSystemPrompt: text}
	}
	c.JSON(http.StatusOK, gin.H{
		"note":    "These are the system prompts that guide each agent's behavior",
		"prompts": prompts,
	})
}

func toAskResponse(a usecase.Answer) AskResponse {
	sources := a.Response.Sources
	if sources == nil {
		sources = []string{}
	}
	md := a.Response.Metadata
	if md == nil {
		md = map[string]any{}
	}
	return AskResponse{
		Answer:          a.Response.Content,
		Confidence:      a.Response.Confidence,
		AgentUsed:       a.AgentUsed,
		Sources:         sources,
		ExecutionTimeMS: a.Response.ExecutionTimeMS,
		Metadata:        md,
	}
}

// bind decodes and validates the JSON body, writing a 422 on failure.
func bind(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, describeField(fe))
		}
		writeError(c, http.StatusUnprocessableEntity, strings.Join(msgs, "; "), domain.CodeInvalidInput)
		return false
	}
	writeError(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error(), domain.CodeInvalidInput)
	return false
}

func describeField(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

// pyList renders keys as ['math', 'physics'].
func pyList(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = "'" + k + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func writeDomainError(c *gin.Context, err error) {
	code := domain.ErrorCodeOf(err)
	status := statusFor(code)
	if code == domain.CodeUnknown && errors.Is(err, context.DeadlineExceeded) {
		status, code = http.StatusGatewayTimeout, domain.CodeTimeout
	}
	writeError(c, status, "Error processing request: "+err.Error(), code)
}

func writeError(c *gin.Context, status int, detail string, code domain.ErrorCode) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail, "code": string(code)})
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case domain.CodeNotFound, domain.CodeAgentNotFound:
		return http.StatusNotFound
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeProviderFailure, domain.CodeAllProvidersFailed, domain.CodeEmptyResponse:
		return http.StatusBadGateway
	case domain.CodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
