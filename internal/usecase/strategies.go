package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"tutor-dispatch/internal/domain"
)

// Tool names the strategies know how to trigger directly.
const (
	toolCalculator     = "calculator"
	toolEquationSolver = "equation_solver"
	toolFormulaLookup  = "formula_lookup"
)

// Strategy names.
const (
	StrategyToolCalling = "tool_calling"
	StrategyManual      = "manual"
)

// ToolStrategy decides which tools run for a query and collects their output.
// A returned error means the model could not be reached and triggers the
// specialist's plain-call fallback.
type ToolStrategy interface {
	Name() string
	Gather(ctx context.Context, s *Specialist, req domain.TaskRequest, userPrompt string) (*Gathered, error)
}

// StrategyByName resolves a configured strategy name. Empty means tool calling.
func StrategyByName(name string) (ToolStrategy, error) {
	switch name {
	case "", StrategyToolCalling:
		return ToolCallingStrategy{}, nil
	case StrategyManual:
		return ManualStrategy{}, nil
	default:
		return nil, domain.NewDomainError("StrategyByName", domain.ErrInvalidInput,
			fmt.Sprintf("unknown strategy %q (want %s or %s)", name, StrategyToolCalling, StrategyManual))
	}
}

// ToolCallingStrategy sends the tool catalog as function declarations and
// runs whatever the model asks for, in response order.
type ToolCallingStrategy struct{}

func (ToolCallingStrategy) Name() string { return StrategyToolCalling }

func (ToolCallingStrategy) Gather(ctx context.Context, s *Specialist, req domain.TaskRequest, userPrompt string) (*Gathered, error) {
	chatReq := plainRequest(s.systemPrompt, userPrompt)
	chatReq.Tools = s.schemas

	resp, err := s.llm.chat(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	g := &Gathered{Text: resp.Text()}
	for _, part := range resp.Parts {
		if part.IsToolCall() {
			s.dispatch(ctx, g, part.ToolCall.Name, part.ToolCall.Arguments)
			continue
		}
		if strings.TrimSpace(part.Text) != "" {
			g.add(part.Text)
		}
	}

	if g.Invoked == 0 && s.hasTool(toolEquationSolver) && looksLikeEquation(req.Query) {
		s.logger.Warn("model skipped tools for an equation, solving directly")
		solveManually(ctx, s, g, req.Query)
	}
	return g, nil
}

// ManualStrategy selects tools with keyword and pattern triggers, runs them,
// then asks the model for a plain explanation.
type ManualStrategy struct{}

func (ManualStrategy) Name() string { return StrategyManual }

func (ManualStrategy) Gather(ctx context.Context, s *Specialist, req domain.TaskRequest, userPrompt string) (*Gathered, error) {
	g := &Gathered{}
	for _, tr := range triggersFor(req.Query) {
		if !s.hasTool(tr.tool) {
			continue
		}
		args, err := json.Marshal(tr.args)
		if err != nil {
			continue
		}
		s.dispatch(ctx, g, tr.tool, args)
	}

	text, err := s.llm.text(ctx, s.systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	g.Text = text
	g.Lines = append([]string{text}, g.Lines...)
	return g, nil
}

type trigger struct {
	tool string
	args map[string]string
}

var (
	formulaRequest = regexp.MustCompile(`(?i)formula\s+(?:for|of)\s+(?:the\s+|an?\s+)?([\p{L}' -]+?)\s*(?:[?.!,;]|$)`)
	arithmetic     = regexp.MustCompile(`[(\-]*\s*\d+(?:\.\d+)?\s*\)*(?:\s*[-+*/^%×÷]\s*[(\-]*\s*\d+(?:\.\d+)?\s*\)*)+`)
)

// triggersFor returns the tool calls the query asks for, at most one per tool.
func triggersFor(query string) []trigger {
	var out []trigger
	if looksLikeEquation(query) {
		if eq := extractEquation(query); eq != "" {
			out = append(out, trigger{toolEquationSolver, map[string]string{"equation": eq}})
		}
	}
	if m := formulaRequest.FindStringSubmatch(query); m != nil {
		out = append(out, trigger{toolFormulaLookup, map[string]string{"action": "lookup", "name": strings.TrimSpace(m[1])}})
	}
	if !strings.Contains(query, "=") {
		if m := arithmetic.FindString(query); m != "" {
			out = append(out, trigger{toolCalculator, map[string]string{"expression": strings.TrimSpace(m)}})
		}
	}
	return out
}

// solveManually runs equation_solver on the first equation in the query.
// Only a successful solve reaches the transcript.
func solveManually(ctx context.Context, s *Specialist, g *Gathered, query string) {
	eq := extractEquation(query)
	if eq == "" {
		return
	}
	args, _ := json.Marshal(map[string]string{"equation": eq})
	res, err := s.execTool(ctx, toolEquationSolver, args)
	if err != nil || !res.Success() {
		s.logger.Info("direct equation solve failed", "equation", eq)
		return
	}
	g.Invoked++
	g.add(fmt.Sprintf("[Manual equation solving]: %s → %s", eq, res.Content))
	g.Calls = append(g.Calls, ToolInvocation{Name: toolEquationSolver, Arguments: args, Result: res.Content})
}

// looksLikeEquation reports whether the query has "=" and mentions x, y or
// "solve".
func looksLikeEquation(query string) bool {
	if !strings.Contains(query, "=") {
		return false
	}
	lower := strings.ToLower(query)
	return strings.Contains(lower, "x") || strings.Contains(lower, "y") || strings.Contains(lower, "solve")
}

var (
	proseWord    = regexp.MustCompile(`[A-Za-z]{2,}`)
	lhsBoundary  = regexp.MustCompile(`[:?!;,]|\.\s`)
	rhsBoundary  = regexp.MustCompile(`[:?!;,]|\.(?:\s|$)`)
	mathFuncName = map[string]bool{
		"sqrt": true, "sin": true, "cos": true, "tan": true, "asin": true, "acos": true,
		"atan": true, "exp": true, "ln": true, "log": true, "log10": true, "abs": true,
		"floor": true, "ceil": true, "round": true, "pi": true,
	}
)

// extractEquation pulls the first "lhs = rhs" fragment out of free text,
// dropping surrounding prose such as "Solve" or "for x".
func extractEquation(query string) string {
	idx := strings.Index(query, "=")
	if idx < 0 {
		return ""
	}
	lhs, rhs := query[:idx], query[idx+1:]
	rhs = strings.TrimPrefix(rhs, "=")

	if locs := lhsBoundary.FindAllStringIndex(lhs, -1); len(locs) > 0 {
		lhs = lhs[locs[len(locs)-1][1]:]
	}
	if loc := lastProseWord(lhs); loc != nil {
		lhs = lhs[loc[1]:]
	}

	if loc := rhsBoundary.FindStringIndex(rhs); loc != nil {
		rhs = rhs[:loc[0]]
	}
	for _, loc := range proseWord.FindAllStringIndex(rhs, -1) {
		if !mathFuncName[strings.ToLower(rhs[loc[0]:loc[1]])] {
			rhs = rhs[:loc[0]]
			break
		}
	}

	lhs, rhs = strings.TrimSpace(lhs), strings.TrimSpace(rhs)
	if lhs == "" || rhs == "" {
		return ""
	}
	return lhs + " = " + rhs
}

func lastProseWord(s string) []int {
	locs := proseWord.FindAllStringIndex(s, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		if !mathFuncName[strings.ToLower(s[locs[i][0]:locs[i][1]])] {
			return locs[i]
		}
	}
	return nil
}
