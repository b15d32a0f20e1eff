package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/infra/tracer"
)

// genaiModels is the subset of *genai.Models the provider calls.
type genaiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIProvider implements domain.LLMProvider with the official Google GenAI SDK.
type GenAIProvider struct {
	name   string
	model  string
	models genaiModels
	logger *slog.Logger
}

// NewGenAIProvider creates a GenAI SDK client against the Gemini API backend.
func NewGenAIProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*GenAIProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: NewHTTPClient(cfg),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIProvider{
		name:   cfg.Name,
		model:  cfg.Model,
		models: client.Models,
		logger: logger,
	}, nil
}

// Chat implements domain.LLMProvider.
func (p *GenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.tools", len(req.Tools)),
		),
	)
	defer span.End()

	contents, gc, err := toGenAIRequest(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, err := p.models.GenerateContent(ctx, req.Model, contents, gc)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, mapGenAIError(ctx, err)
	}

	result := fromGenAIResponse(resp, req.Model)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)
	return result, nil
}

// Name implements domain.LLMProvider.
func (p *GenAIProvider) Name() string { return p.name }

// Model implements domain.ModelNamer.
func (p *GenAIProvider) Model() string { return p.model }

func toGenAIRequest(req domain.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	gc := &genai.GenerateContentConfig{}
	var (
		system   []*genai.Part
		contents []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, genai.NewPartFromText(m.Content))
		case domain.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{genai.NewPartFromText(m.Content)}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(m.Content)}})
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("%w: no user content", domain.ErrInvalidInput)
	}
	if len(system) > 0 {
		gc.SystemInstruction = &genai.Content{Parts: system}
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		gc.Temperature = &t
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema, err := genaiSchema(t.Parameters)
			if err != nil {
				return nil, nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			})
		}
		gc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, gc, nil
}

// genaiSchema converts a raw JSON Schema into the SDK's OpenAPI subset.
func genaiSchema(raw json.RawMessage) (*genai.Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return convSchema(&s), nil
}

func convSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	var enums []string
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       convSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = convSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}

func fromGenAIResponse(resp *genai.GenerateContentResponse, model string) *domain.ChatResponse {
	result := &domain.ChatResponse{Model: model, CreatedAt: time.Now()}
	if resp == nil {
		return result
	}
	result.ID = resp.ResponseID
	if resp.ModelVersion != "" {
		result.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return result
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part == nil:
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte(`{}`)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = newCallID(part.FunctionCall.Name)
			}
			result.Parts = append(result.Parts, domain.Part{ToolCall: &domain.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: args,
			}})
		case part.Text != "" && !part.Thought:
			result.Parts = append(result.Parts, domain.Part{Text: part.Text})
		}
	}
	return result
}

func mapGenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.Code, []byte(apiErr.Message))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return mapHTTPError(apiErrPtr.Code, []byte(apiErrPtr.Message))
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
}
