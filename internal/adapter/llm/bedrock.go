//go:build bedrock

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/infra/tracer"
)

const bedrockMaxTokens = 4096

type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider calls a Bedrock model through the Converse API with the
// default AWS credential chain.
type BedrockProvider struct {
	name   string
	model  string
	client converser
	logger *slog.Logger
}

func NewBedrockProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(orDefault(cfg.Region, "us-east-1")))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockProviderWithClient(cfg.Name, cfg.Model, bedrockruntime.NewFromConfig(awsCfg), logger), nil
}

func newBedrockProviderWithClient(name, model string, client converser, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{name: name, model: model, client: client, logger: logger}
}

func (p *BedrockProvider) Name() string  { return p.name }
func (p *BedrockProvider) Model() string { return p.model }

func (p *BedrockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := orDefault(req.Model, p.model)
	ctx, span := tracer.StartSpan(ctx, "llm.chat", trace.WithAttributes(
		tracer.StringAttr("llm.provider", p.name),
		tracer.StringAttr("llm.model", model),
		tracer.IntAttr("llm.tools", len(req.Tools)),
	))
	defer span.End()

	out, err := p.client.Converse(ctx, converseInput(model, req))
	if err != nil {
		err = mapBedrockError(err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if out.StopReason == types.StopReasonMaxTokens {
		p.logger.Warn("llm reply truncated at max_tokens", "provider", p.name)
	}

	resp := converseResponse(out, model)
	setUsageAttrs(span, resp.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, resp)
	return resp, nil
}

// converseInput moves system prompts into System and folds consecutive
// turns of the same role together, since Converse expects user and
// assistant turns to alternate.
func converseInput(model string, req domain.ChatRequest) *bedrockruntime.ConverseInput {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = bedrockMaxTokens
	}
	in := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))},
	}
	if req.Temperature > 0 {
		in.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}

	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			in.System = append(in.System, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == domain.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		block := &types.ContentBlockMemberText{Value: m.Content}
		if n := len(in.Messages); n > 0 && in.Messages[n-1].Role == role {
			in.Messages[n-1].Content = append(in.Messages[n-1].Content, block)
			continue
		}
		in.Messages = append(in.Messages, types.Message{Role: role, Content: []types.ContentBlock{block}})
	}

	if len(req.Tools) > 0 {
		cfg := &types.ToolConfiguration{}
		for _, t := range req.Tools {
			cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaDocument(t.Parameters))},
			}})
		}
		in.ToolConfig = cfg
	}
	return in
}

func schemaDocument(raw json.RawMessage) map[string]any {
	var schema map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &schema)
	}
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	return schema
}

func converseResponse(out *bedrockruntime.ConverseOutput, model string) *domain.ChatResponse {
	resp := &domain.ChatResponse{Model: model, CreatedAt: time.Now()}
	if u := out.Usage; u != nil {
		in, gen := int(aws.ToInt32(u.InputTokens)), int(aws.ToInt32(u.OutputTokens))
		resp.Usage = domain.Usage{PromptTokens: in, CompletionTokens: gen, TotalTokens: in + gen}
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return resp
	}
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			resp.Parts = append(resp.Parts, domain.Part{Text: b.Value})
		case *types.ContentBlockMemberToolUse:
			resp.Parts = append(resp.Parts, domain.Part{ToolCall: &domain.ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: documentJSON(b.Value.Input),
			}})
		}
	}
	return resp
}

// documentJSON renders tool input as JSON, falling back to {}.
func documentJSON(doc document.Interface) json.RawMessage {
	if doc == nil {
		return json.RawMessage(`{}`)
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

var bedrockErrorCodes = map[string]error{
	"ThrottlingException":         domain.ErrRateLimit,
	"TooManyRequestsException":    domain.ErrRateLimit,
	"AccessDeniedException":       domain.ErrAuthInvalid,
	"UnrecognizedClientException": domain.ErrAuthInvalid,
	"ValidationException":         domain.ErrInvalidInput,
	"ModelNotReadyException":      domain.ErrProviderFailure,
	"ServiceUnavailableException": domain.ErrProviderFailure,
	"InternalServerException":     domain.ErrProviderFailure,
	"ModelTimeoutException":       domain.ErrTimeout,
}

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel, ok := bedrockErrorCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %s", sentinel, err.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", domain.ErrTimeout, err.Error())
	}
	return domain.WrapOp("bedrock", err)
}
