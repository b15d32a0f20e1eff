package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/infra/tracer"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider calls generateContent on the Gemini REST API directly.
// The genai type offers the same through Google's SDK.
type GeminiProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewGeminiProvider(cfg config.ProviderConfig, logger *slog.Logger) *GeminiProvider {
	return &GeminiProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: orDefault(strings.TrimRight(cfg.BaseURL, "/"), defaultGeminiBaseURL),
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

func (p *GeminiProvider) Name() string  { return p.name }
func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := orDefault(req.Model, p.model)
	ctx, span := tracer.StartSpan(ctx, "llm.chat", trace.WithAttributes(
		tracer.StringAttr("llm.provider", p.name),
		tracer.StringAttr("llm.model", model),
		tracer.IntAttr("llm.tools", len(req.Tools)),
	))
	defer span.End()

	resp, err := p.generate(ctx, model, newGenerateRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if c := resp.firstCandidate(); c != nil && c.FinishReason == "MAX_TOKENS" {
		p.logger.Warn("llm reply truncated at max_tokens", "provider", p.name, "max_tokens", req.MaxTokens)
	}

	out := resp.toDomain(model)
	setUsageAttrs(span, out.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, out)
	return out, nil
}

func (p *GeminiProvider) generate(ctx context.Context, model string, greq generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(greq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := p.baseURL + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	raw, err := postJSON(ctx, p.client, endpoint, body, map[string]string{"x-goog-api-key": p.apiKey})
	if err != nil {
		return nil, err
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode generateContent reply: %v", domain.ErrProviderFailure, err)
	}
	// A blocked prompt returns 200 with no candidates.
	if len(resp.Candidates) == 0 && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", domain.ErrProviderFailure, resp.PromptFeedback.BlockReason)
	}
	return &resp, nil
}

// Wire types for models/{model}:generateContent.

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []toolDecls       `json:"tools,omitempty"`
	ToolConfig        *toolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
}

type functionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type toolDecls struct {
	FunctionDeclarations []functionDecl `json:"functionDeclarations"`
}

type functionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolConfig struct {
	FunctionCallingConfig struct {
		Mode string `json:"mode"`
	} `json:"functionCallingConfig"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	ModelVersion string `json:"modelVersion,omitempty"`
	ResponseID   string `json:"responseId,omitempty"`
}

// newGenerateRequest joins system messages into one instruction and maps
// the assistant role to Gemini's "model".
func newGenerateRequest(req domain.ChatRequest) generateRequest {
	var out generateRequest
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &content{Parts: []part{{Text: strings.Join(system, "\n\n")}}}
	}

	if req.Temperature > 0 || req.MaxTokens > 0 {
		out.GenerationConfig = &generationConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature > 0 {
			temp := req.Temperature
			out.GenerationConfig.Temperature = &temp
		}
	}

	if len(req.Tools) == 0 {
		return out
	}
	decls := make([]functionDecl, len(req.Tools))
	for i, s := range req.Tools {
		decls[i] = functionDecl{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	out.Tools = []toolDecls{{FunctionDeclarations: decls}}
	out.ToolConfig = &toolConfig{}
	out.ToolConfig.FunctionCallingConfig.Mode = "AUTO"
	return out
}

func (r *generateResponse) firstCandidate() *candidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

func (r *generateResponse) toDomain(model string) *domain.ChatResponse {
	out := &domain.ChatResponse{
		ID:        r.ResponseID,
		Model:     orDefault(r.ModelVersion, model),
		CreatedAt: time.Now(),
	}
	if u := r.UsageMetadata; u != nil {
		out.Usage = domain.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	c := r.firstCandidate()
	if c == nil {
		return out
	}
	for _, p := range c.Content.Parts {
		if fc := p.FunctionCall; fc != nil {
			out.Parts = append(out.Parts, domain.Part{ToolCall: &domain.ToolCall{
				ID:        newCallID(fc.Name),
				Name:      fc.Name,
				Arguments: normalizeArguments(string(fc.Args)),
			}})
		} else if p.Text != "" {
			out.Parts = append(out.Parts, domain.Part{Text: p.Text})
		}
	}
	return out
}
