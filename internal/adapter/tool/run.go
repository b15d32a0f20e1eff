package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/tracer"
)

// Execute decodes raw into P inside a span named spanName and runs h.
// Empty arguments decode as {}. h may return a string, a *domain.ToolResult
// (passed through untouched) or any JSON-encodable value. Its error becomes
// an error result the model can read, so Execute's own error is always nil.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	raw json.RawMessage,
	h func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName, trace.WithAttributes(tracer.StringAttr("tool.name", spanName)))
	defer span.End()

	var params P
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		tracer.RecordError(span, err)
		return ErrResult("invalid params: %v", err), nil
	}

	out, err := h(ctx, span, params)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Debug("tool call failed", "tool", spanName, "error", err)
		return &domain.ToolResult{IsError: true, IsRetryable: transient(err), Content: err.Error()}, nil
	}
	res := toResult(out)
	if res.IsError {
		tracer.RecordError(span, errors.New(res.Content))
	} else {
		tracer.SetOK(span)
	}
	return res, nil
}

func toResult(out any) *domain.ToolResult {
	switch v := out.(type) {
	case *domain.ToolResult:
		return v
	case string:
		return TextResult(v)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return ErrResult("failed to format response: %v", err)
	}
	return TextResult(string(data))
}

// ActionMap routes calls of a multi-action tool by the action name.
type ActionMap[P any] map[string]func(ctx context.Context, params P) (any, error)

// Dispatch builds a Handler that picks the entry of actions named by
// action(params). Unknown names fail with the sorted list of valid ones.
func Dispatch[P any](action func(P) string, actions ActionMap[P]) func(context.Context, trace.Span, P) (any, error) {
	valid := make([]string, 0, len(actions))
	for name := range actions {
		valid = append(valid, name)
	}
	slices.Sort(valid)

	return func(ctx context.Context, span trace.Span, params P) (any, error) {
		name := action(params)
		span.SetAttributes(tracer.StringAttr("tool.action", name))
		fn, ok := actions[name]
		if !ok {
			return nil, BadAction(name, valid...)
		}
		return fn(ctx, params)
	}
}

// ErrResult is a failure the model should see but that is not worth logging,
// such as a lookup miss.
func ErrResult(format string, args ...any) *domain.ToolResult {
	return &domain.ToolResult{IsError: true, Content: fmt.Sprintf(format, args...)}
}

func TextResult(s string) *domain.ToolResult { return &domain.ToolResult{Content: s} }

func BadAction(got string, valid ...string) error {
	return fmt.Errorf("unknown action %q (want: %s)", got, strings.Join(valid, ", "))
}

// transient reports whether asking again could succeed. Deadlines and rate
// limits qualify; a malformed expression never does.
func transient(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{context.DeadlineExceeded, domain.ErrTimeout, domain.ErrRateLimit, domain.ErrToolRate} {
		if errors.Is(err, target) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "try again")
}
