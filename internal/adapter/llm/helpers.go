package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/tracer"
)

// Replies larger than this are cut off before decoding.
const maxResponseBody = 10 << 20

// postJSON sends body to url and returns the 200 response body. Other
// statuses come back as domain errors via mapHTTPError.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

// mapHTTPError classifies a failed call so the breaker, the failover chain
// and the HTTP layer can react to it. Statuses without a sentinel (400,
// 404) keep only the message.
func mapHTTPError(status int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", status, truncate(errorMessage(body), 512))
	var sentinel error
	switch {
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		sentinel = domain.ErrTimeout
	case status >= 500:
		sentinel = domain.ErrProviderFailure
	default:
		return fmt.Errorf("%s", detail)
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

// errorMessage pulls error.message out of the JSON error envelope that
// Gemini and OpenAI-style servers share, or returns body as text.
func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func logChatCompleted(logger *slog.Logger, provider string, resp *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", provider,
		"model", resp.Model,
		"parts", len(resp.Parts),
		"tokens", resp.Usage.TotalTokens,
	)
}

func setUsageAttrs(span trace.Span, u domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", u.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", u.CompletionTokens),
	)
}

// normalizeArguments turns model-written arguments into a JSON object.
// Truncated or single-quoted JSON is repaired; anything beyond repair is
// passed through for schema validation to reject.
func normalizeArguments(args string) json.RawMessage {
	if strings.TrimSpace(args) == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	if fixed, err := jsonrepair.JSONRepair(args); err == nil && json.Valid([]byte(fixed)) {
		return json.RawMessage(fixed)
	}
	return json.RawMessage(args)
}

// newCallID names a tool call for providers that do not assign ids.
func newCallID(tool string) string {
	return "call_" + tool + "_" + strings.ToLower(ulid.Make().String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
