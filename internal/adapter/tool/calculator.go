package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/tracer"
)

// maxExpressionLength matches the max=500 validate tag on expression params.
const maxExpressionLength = 500

// CalculatorTool evaluates arithmetic expressions.
type CalculatorTool struct {
	logger *slog.Logger
}

// NewCalculatorTool creates a calculator tool.
func NewCalculatorTool(logger *slog.Logger) *CalculatorTool {
	return &CalculatorTool{logger: logger}
}

type calculatorParams struct {
	Expression string `json:"expression" validate:"notblank,max=500" jsonschema:"description=Arithmetic expression such as 2 * (3 + 4) or sqrt(16) + pi"`
}

func (t *CalculatorTool) Name() string { return "calculator" }
func (t *CalculatorTool) Description() string {
	return "Evaluate an arithmetic expression. Supports + - * / % ^ and parentheses, sqrt, sin, cos, tan, log, ln, exp, abs and the constants pi and e."
}

func (t *CalculatorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  ParametersFor(&calculatorParams{}),
	}
}

func (t *CalculatorTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.calculator", t.logger, params,
		func(ctx context.Context, span trace.Span, p calculatorParams) (any, error) {
			if err := checkParams(p); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("tool.expression", p.Expression))

			v, err := Calculate(p.Expression)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("%s = %s", p.Expression, formatNumber(v)), nil
		})
}

// Calculate evaluates expression after normalizing symbols.
func Calculate(expression string) (float64, error) {
	program, err := compileMath(normalizeMath(expression))
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	v, err := evalMath(program, nil)
	if err != nil {
		return 0, fmt.Errorf("evaluation failed: %w", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not a finite number (division by zero or domain error)")
	}
	return v, nil
}
