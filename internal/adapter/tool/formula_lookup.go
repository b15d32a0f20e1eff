package tool

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tutor-dispatch/internal/domain"
)

//go:embed formulas.yaml
var defaultFormulas []byte

// Formula is one entry of the formula table.
type Formula struct {
	Key         string            `yaml:"key" json:"key"`
	Name        string            `yaml:"name" json:"name"`
	Subject     string            `yaml:"subject" json:"subject"`
	Formula     string            `yaml:"formula" json:"formula"`
	Description string            `yaml:"description" json:"description"`
	Variables   map[string]string `yaml:"variables" json:"variables,omitempty"`
	Aliases     []string          `yaml:"aliases" json:"aliases,omitempty"`
}

// FormulaBook is an immutable, ordered formula table.
type FormulaBook struct {
	formulas []Formula
}

// LoadFormulaBook reads the table from path, or the embedded default when
// path is empty.
func LoadFormulaBook(path string) (*FormulaBook, error) {
	data := defaultFormulas
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read formulas file: %w", err)
		}
		data = b
	}
	return ParseFormulaBook(data)
}

// ParseFormulaBook decodes a YAML formula table.
func ParseFormulaBook(data []byte) (*FormulaBook, error) {
	var doc struct {
		Formulas []Formula `yaml:"formulas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse formulas: %w", err)
	}
	seen := make(map[string]bool, len(doc.Formulas))
	for i, f := range doc.Formulas {
		if f.Key == "" || f.Formula == "" {
			return nil, fmt.Errorf("formula %d: key and formula are required", i)
		}
		if seen[f.Key] {
			return nil, fmt.Errorf("formula %q: duplicate key", f.Key)
		}
		seen[f.Key] = true
		if f.Name == "" {
			doc.Formulas[i].Name = f.Key
		}
	}
	return &FormulaBook{formulas: doc.Formulas}, nil
}

// Len returns the number of formulas.
func (b *FormulaBook) Len() int { return len(b.formulas) }

// Find returns the best match for name: an exact key, alias or name first,
// then a substring of the name or an alias.
func (b *FormulaBook) Find(name string) (Formula, bool) {
	q := normalizeFormulaQuery(name)
	if q == "" {
		return Formula{}, false
	}
	for _, f := range b.formulas {
		if q == normalizeFormulaQuery(f.Key) || q == normalizeFormulaQuery(f.Name) {
			return f, true
		}
		for _, a := range f.Aliases {
			if q == normalizeFormulaQuery(a) {
				return f, true
			}
		}
	}
	for _, f := range b.formulas {
		if strings.Contains(normalizeFormulaQuery(f.Name), q) || strings.Contains(q, normalizeFormulaQuery(f.Name)) {
			return f, true
		}
		for _, a := range f.Aliases {
			if containsWords(q, normalizeFormulaQuery(a)) {
				return f, true
			}
		}
	}
	return Formula{}, false
}

func containsWords(s, sub string) bool {
	return sub != "" && strings.Contains(" "+s+" ", " "+sub+" ")
}

// List returns formulas for subject, or all of them when subject is empty.
func (b *FormulaBook) List(subject string) []Formula {
	var out []Formula
	for _, f := range b.formulas {
		if subject == "" || strings.EqualFold(f.Subject, subject) {
			out = append(out, f)
		}
	}
	return out
}

// Format renders a formula for a tool transcript.
func (f Formula) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", f.Name, f.Formula)
	if f.Description != "" {
		sb.WriteString("\n" + f.Description)
	}
	if len(f.Variables) > 0 {
		keys := make([]string, 0, len(f.Variables))
		for k := range f.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nwhere:")
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n  %s = %s", k, f.Variables[k])
		}
	}
	return sb.String()
}

var formulaNoise = strings.NewReplacer(
	"'s", "", "’s", "", "_", " ", "-", " ", "?", "", ".", "",
)

func normalizeFormulaQuery(s string) string {
	s = formulaNoise.Replace(strings.ToLower(s))
	var words []string
	for _, w := range strings.Fields(s) {
		switch w {
		case "the", "a", "an", "for", "of", "formula", "equation", "law":
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

// FormulaLookupTool looks up math and physics formulas.
type FormulaLookupTool struct {
	book   *FormulaBook
	logger *slog.Logger
}

// NewFormulaLookupTool creates a formula lookup tool over book.
func NewFormulaLookupTool(book *FormulaBook, logger *slog.Logger) *FormulaLookupTool {
	return &FormulaLookupTool{book: book, logger: logger}
}

type formulaParams struct {
	Action  string `json:"action" jsonschema:"enum=lookup,enum=list,description=lookup finds one formula and list enumerates names"`
	Name    string `json:"name,omitempty" jsonschema:"description=Formula name or topic such as kinetic energy (for lookup)"`
	Subject string `json:"subject,omitempty" validate:"omitempty,oneof=math physics" jsonschema:"enum=math,enum=physics,description=Restrict list to one subject"`
}

func (t *FormulaLookupTool) Name() string { return "formula_lookup" }
func (t *FormulaLookupTool) Description() string {
	return "Look up a standard math or physics formula with its variables, or list the available formulas."
}

func (t *FormulaLookupTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  ParametersFor(&formulaParams{}),
	}
}

func (t *FormulaLookupTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.formula_lookup", t.logger, params,
		Dispatch(func(p formulaParams) string { return p.Action }, ActionMap[formulaParams]{
			"lookup": t.handleLookup,
			"list":   t.handleList,
		}),
	)
}

func (t *FormulaLookupTool) handleLookup(_ context.Context, p formulaParams) (any, error) {
	if err := requireText("name", p.Name); err != nil {
		return nil, err
	}
	f, ok := t.book.Find(p.Name)
	if !ok {
		names := make([]string, 0, t.book.Len())
		for _, f := range t.book.List(p.Subject) {
			names = append(names, f.Name)
		}
		return ErrResult("no formula found for %q; available: %s", p.Name, strings.Join(names, ", ")), nil
	}
	return f.Format(), nil
}

func (t *FormulaLookupTool) handleList(_ context.Context, p formulaParams) (any, error) {
	if err := checkParams(p); err != nil {
		return nil, err
	}
	formulas := t.book.List(p.Subject)
	lines := make([]string, len(formulas))
	for i, f := range formulas {
		lines[i] = fmt.Sprintf("- %s (%s): %s", f.Name, f.Subject, f.Formula)
	}
	return strings.Join(lines, "\n"), nil
}
