package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/infra/tracer"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider talks to any server speaking the OpenAI chat completions
// protocol: OpenAI itself, Ollama, vLLM, LM Studio and similar.
type OpenAIProvider struct {
	name     string
	model    string
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewOpenAIProvider creates a provider with configured timeouts. Local
// servers usually need no api_key.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		name:     cfg.Name,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		endpoint: base + "/chat/completions",
		client:   NewHTTPClient(cfg),
		logger:   logger,
	}
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Model() string { return p.model }

// Chat implements domain.LLMProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	ctx, span := tracer.StartSpan(ctx, "llm.chat", trace.WithAttributes(
		tracer.StringAttr("llm.provider", p.name),
		tracer.StringAttr("llm.model", req.Model),
		tracer.IntAttr("llm.tools", len(req.Tools)),
	))
	defer span.End()

	resp, err := p.complete(ctx, buildCompletionRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	out := resp.toDomain()
	if len(resp.Choices) > 0 && resp.Choices[0].FinishReason == "length" {
		p.logger.Warn("llm reply truncated at max_tokens", "provider", p.name, "max_tokens", req.MaxTokens)
	}
	setUsageAttrs(span, out.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, out)
	return out, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, creq chatCompletionRequest) (*chatCompletion, error) {
	body, err := json.Marshal(creq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	raw, err := postJSON(ctx, p.client, p.endpoint, body, headers)
	if err != nil {
		return nil, err
	}

	var resp chatCompletion
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode completion: %v", domain.ErrProviderFailure, err)
	}
	// Some compatible servers report failures in a 200 body.
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, resp.Error.Message)
	}
	return &resp, nil
}

// Wire types for POST /chat/completions.

type chatCompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []chatMessage  `json:"messages"`
	Tools       []functionTool `json:"tools,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	Refusal   string         `json:"refusal,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type functionTool struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatCompletion struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func buildCompletionRequest(req domain.ChatRequest) chatCompletionRequest {
	out := chatCompletionRequest{
		Model:     req.Model,
		Messages:  make([]chatMessage, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	for i, m := range req.Messages {
		out.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		out.Temperature = &temp
	}
	for _, s := range req.Tools {
		out.Tools = append(out.Tools, functionTool{
			Type:     "function",
			Function: functionDef{Name: s.Name, Description: s.Description, Parameters: s.Parameters},
		})
	}
	return out
}

// toDomain keeps the first choice only; the tutor never asks for n > 1.
func (c *chatCompletion) toDomain() *domain.ChatResponse {
	out := &domain.ChatResponse{
		ID:    c.ID,
		Model: c.Model,
		Usage: domain.Usage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(c.Created, 0),
	}
	if len(c.Choices) == 0 {
		return out
	}

	msg := c.Choices[0].Message
	switch {
	case msg.Content != "":
		out.Parts = append(out.Parts, domain.Part{Text: msg.Content})
	case msg.Refusal != "":
		out.Parts = append(out.Parts, domain.Part{Text: msg.Refusal})
	}
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = newCallID(tc.Function.Name)
		}
		out.Parts = append(out.Parts, domain.Part{ToolCall: &domain.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: normalizeArguments(tc.Function.Arguments),
		}})
	}
	return out
}
