package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/tracer"
)

const (
	maxRoots      = 10
	rootTolerance = 1e-12
	secantSteps   = 200
	bisectSteps   = 200
)

var (
	// ErrNoSolution means the search found no real root.
	ErrNoSolution = errors.New("no real solution found")
	// ErrIdentity means every value satisfies the equation.
	ErrIdentity = errors.New("equation holds for every value")
)

// scanRanges are sampled for sign changes before bisection.
var scanRanges = []struct{ lo, hi, step float64 }{
	{-100, 100, 0.25},
	{-10000, 10000, 50},
}

// secantSeeds start secant searches for roots without a sign change.
var secantSeeds = []float64{-1000, -100, -10, -3, -1, -0.5, 0, 0.5, 1, 3, 10, 100, 1000}

// EquationSolverTool solves single-variable equations numerically.
type EquationSolverTool struct {
	logger *slog.Logger
}

// NewEquationSolverTool creates an equation solver tool.
func NewEquationSolverTool(logger *slog.Logger) *EquationSolverTool {
	return &EquationSolverTool{logger: logger}
}

type equationParams struct {
	Equation string `json:"equation" validate:"notblank,max=500" jsonschema:"description=Equation with exactly one equals sign such as 2x + 5 = 15"`
	Variable string `json:"variable,omitempty" jsonschema:"description=Variable to solve for. Detected from the equation when omitted"`
}

func (t *EquationSolverTool) Name() string { return "equation_solver" }
func (t *EquationSolverTool) Description() string {
	return "Solve an algebraic equation for one variable, for example 2x + 5 = 15 or x^2 - 4 = 0. Returns every real solution."
}

func (t *EquationSolverTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  ParametersFor(&equationParams{}),
	}
}

func (t *EquationSolverTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.equation_solver", t.logger, params,
		func(ctx context.Context, span trace.Span, p equationParams) (any, error) {
			if err := checkParams(p); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("tool.equation", p.Equation))
			return SolveEquation(p.Equation, p.Variable)
		})
}

// SolveEquation solves "lhs = rhs" for variable (detected when empty) and
// formats the roots as "x = -2, x = 2".
func SolveEquation(equation, variable string) (string, error) {
	sides := strings.Split(strings.ReplaceAll(equation, "==", "="), "=")
	if len(sides) != 2 {
		return "", fmt.Errorf("equation must contain exactly one '=' (got %q)", equation)
	}
	lhs, rhs := normalizeMath(sides[0]), normalizeMath(sides[1])
	if lhs == "" || rhs == "" {
		return "", fmt.Errorf("both sides of %q must be non-empty", equation)
	}

	variable = strings.TrimSpace(variable)
	if variable == "" {
		vars := freeVariables(lhs + " " + rhs)
		switch len(vars) {
		case 0:
			return "", fmt.Errorf("no variable found in %q", equation)
		case 1:
			variable = vars[0]
		default:
			return "", fmt.Errorf("multiple unknowns (%s); specify which variable to solve for", strings.Join(vars, ", "))
		}
	}

	// "x(x+1)" reads as multiplication once x is known to be the unknown.
	call := regexp.MustCompile(`\b` + regexp.QuoteMeta(variable) + `\s*\(`)
	diff := fmt.Sprintf("(%s) - (%s)", call.ReplaceAllString(lhs, variable+"*("), call.ReplaceAllString(rhs, variable+"*("))

	program, err := compileMath(diff, variable)
	if err != nil {
		return "", fmt.Errorf("invalid equation: %w", err)
	}
	f := func(x float64) float64 {
		v, err := evalMath(program, map[string]float64{variable: x})
		if err != nil {
			return math.NaN()
		}
		return v
	}

	roots, err := findRoots(f)
	if errors.Is(err, ErrIdentity) {
		return fmt.Sprintf("%s can be any value (the equation is an identity)", variable), nil
	}
	if err != nil {
		return "", fmt.Errorf("%w for %s in %q", err, variable, equation)
	}

	parts := make([]string, len(roots))
	for i, r := range roots {
		parts[i] = fmt.Sprintf("%s = %s", variable, formatRoot(r))
	}
	return strings.Join(parts, ", "), nil
}

// findRoots tries an exact linear solve, then scans for sign changes and
// runs secant searches from fixed seeds.
func findRoots(f func(float64) float64) ([]float64, error) {
	if root, ok, err := linearRoot(f); ok {
		if err != nil {
			return nil, err
		}
		return []float64{root}, nil
	}

	var roots []float64
	for _, r := range scanRanges {
		prevX, prevY := r.lo, f(r.lo)
		for x := r.lo + r.step; x <= r.hi; x += r.step {
			y := f(x)
			if isFinite(prevY) && isFinite(y) {
				switch {
				case prevY == 0:
					roots = append(roots, prevX)
				case prevY*y < 0:
					if root, ok := bisect(f, prevX, x); ok {
						roots = append(roots, root)
					}
				}
			}
			prevX, prevY = x, y
		}
	}
	for _, seed := range secantSeeds {
		if root, ok := secant(f, seed, seed+0.1); ok {
			roots = append(roots, root)
		}
	}

	roots = dedupeRoots(f, roots)
	if len(roots) == 0 {
		return nil, ErrNoSolution
	}
	if len(roots) > maxRoots {
		roots = roots[:maxRoots]
	}
	return roots, nil
}

// linearRoot reports ok when f is affine on a handful of probe points.
func linearRoot(f func(float64) float64) (float64, bool, error) {
	f0, f1 := f(0), f(1)
	if !isFinite(f0) || !isFinite(f1) {
		return 0, false, nil
	}
	slope := f1 - f0
	for _, x := range []float64{2, -3.7, 11.3} {
		y := f(x)
		want := f0 + slope*x
		if !isFinite(y) || math.Abs(y-want) > 1e-9*math.Max(1, math.Abs(want)) {
			return 0, false, nil
		}
	}
	if slope == 0 {
		if f0 == 0 {
			return 0, true, ErrIdentity
		}
		return 0, true, ErrNoSolution
	}
	return -f0 / slope, true, nil
}

func bisect(f func(float64) float64, lo, hi float64) (float64, bool) {
	flo := f(lo)
	for i := 0; i < bisectSteps; i++ {
		mid := (lo + hi) / 2
		fm := f(mid)
		if !isFinite(fm) {
			return 0, false
		}
		if fm == 0 || (hi-lo)/2 < 1e-13 {
			lo, hi = mid, mid
			break
		}
		if flo*fm < 0 {
			hi = mid
		} else {
			lo, flo = mid, fm
		}
	}
	root := (lo + hi) / 2
	// Poles flip sign too; keep only genuine zeros.
	if math.Abs(f(root)) > 1e-6 {
		return 0, false
	}
	return root, true
}

func secant(f func(float64) float64, x0, x1 float64) (float64, bool) {
	f0, f1 := f(x0), f(x1)
	for i := 0; i < secantSteps; i++ {
		if !isFinite(f0) || !isFinite(f1) {
			return 0, false
		}
		if math.Abs(f1) < rootTolerance {
			return x1, true
		}
		denom := f1 - f0
		if denom == 0 {
			break
		}
		x2 := x1 - f1*(x1-x0)/denom
		if !isFinite(x2) {
			return 0, false
		}
		x0, f0 = x1, f1
		x1, f1 = x2, f(x2)
	}
	return x1, isFinite(f1) && math.Abs(f1) < rootTolerance
}

// dedupeRoots merges roots closer than a relative 1e-6, keeping the member of
// each cluster with the smallest residual.
func dedupeRoots(f func(float64) float64, roots []float64) []float64 {
	sort.Float64s(roots)
	var out []float64
	var last float64
	for _, r := range roots {
		if n := len(out); n > 0 && math.Abs(last-r) < 1e-6*math.Max(1, math.Abs(r)) {
			if math.Abs(f(r)) < math.Abs(f(out[n-1])) {
				out[n-1] = r
			}
			last = r
			continue
		}
		out = append(out, r)
		last = r
	}
	return out
}

// formatRoot rounds to 6 decimal places to hide search noise.
func formatRoot(v float64) string {
	return formatNumber(roundTo(v, 6))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
