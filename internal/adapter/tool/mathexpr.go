package tool

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// unaryFunctions are callable from calculator and solver expressions.
// abs, floor, ceil and round come from expr's builtins.
var unaryFunctions = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"exp":   math.Exp,
	"ln":    math.Log,
	"log":   math.Log,
	"log10": math.Log10,
}

var builtinNames = map[string]bool{
	"abs": true, "floor": true, "ceil": true, "round": true, "max": true, "min": true,
}

var mathConstants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

var (
	symbolReplacer = strings.NewReplacer(
		"×", "*",
		"÷", "/",
		"−", "-",
		"π", "pi",
		"²", "^2",
		"³", "^3",
		"√(", "sqrt(",
		"**", "^",
	)
	sqrtSymbol     = regexp.MustCompile(`√\s*(\d+(?:\.\d+)?|[a-zA-Z]\w*)`)
	implicitNumber = regexp.MustCompile(`(^|[^\w.])(\d+(?:\.\d+)?)\s*([a-zA-Z(])`)
	implicitParen  = regexp.MustCompile(`\)\s*([\w(])`)
	identifier     = regexp.MustCompile(`[a-zA-Z_]\w*`)
)

var mathOptions = func() []expr.Option {
	opts := make([]expr.Option, 0, len(unaryFunctions))
	for name, fn := range unaryFunctions {
		opts = append(opts, unaryFunction(name, fn))
	}
	return opts
}()

func unaryFunction(name string, fn func(float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(params))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return fn(x), nil
	})
}

// normalizeMath rewrites typographic operators and inserts implicit
// multiplication: "2x" -> "2*x", "3(x+1)" -> "3*(x+1)", ")(" -> ")*(".
func normalizeMath(s string) string {
	s = symbolReplacer.Replace(strings.TrimSpace(s))
	s = sqrtSymbol.ReplaceAllString(s, "sqrt($1)")
	// Two passes catch adjacent matches that share a boundary character.
	for i := 0; i < 2; i++ {
		s = implicitNumber.ReplaceAllString(s, "$1$2*$3")
	}
	s = implicitParen.ReplaceAllString(s, ")*$1")
	return s
}

// freeVariables lists identifiers that are neither functions nor constants,
// in order of first appearance.
func freeVariables(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range identifier.FindAllString(s, -1) {
		if _, fn := unaryFunctions[id]; fn || builtinNames[id] {
			continue
		}
		if _, c := mathConstants[id]; c || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func mathEnv(vars map[string]float64) map[string]any {
	env := make(map[string]any, len(mathConstants)+len(vars))
	for k, v := range mathConstants {
		env[k] = v
	}
	for k, v := range vars {
		env[k] = v
	}
	return env
}

// compileMath compiles a normalized expression where each name in vars is a
// float64 variable.
func compileMath(input string, vars ...string) (*vm.Program, error) {
	decl := make(map[string]float64, len(vars))
	for _, v := range vars {
		decl[v] = 0
	}
	opts := append([]expr.Option{expr.Env(mathEnv(decl))}, mathOptions...)
	return expr.Compile(input, opts...)
}

func evalMath(p *vm.Program, vars map[string]float64) (float64, error) {
	out, err := expr.Run(p, mathEnv(vars))
	if err != nil {
		return 0, err
	}
	return toFloat(out)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expression does not evaluate to a number (got %T)", v)
	}
}

// formatNumber prints integers without a decimal point and everything else
// rounded to 10 decimal places.
func formatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	if r := math.Round(v); math.Abs(v-r) < 1e-9 && math.Abs(r) < 1e15 {
		return strconv.FormatFloat(r, 'f', -1, 64)
	}
	return strconv.FormatFloat(roundTo(v, 10), 'f', -1, 64)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
