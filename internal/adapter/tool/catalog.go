package tool

import (
	"fmt"
	"log/slog"
	"time"

	"tutor-dispatch/internal/domain"
)

// Tool names shared by specialists and routing heuristics.
const (
	NameCalculator     = "calculator"
	NameEquationSolver = "equation_solver"
	NameFormulaLookup  = "formula_lookup"
)

// CatalogConfig configures the built-in tool set.
type CatalogConfig struct {
	FormulasFile       string
	RateLimitPerMinute int
}

// NewCatalog registers the built-in tools with schema validation and, when
// RateLimitPerMinute > 0, a per-tool call budget.
func NewCatalog(cfg CatalogConfig, logger *slog.Logger) (*Registry, error) {
	book, err := LoadFormulaBook(cfg.FormulasFile)
	if err != nil {
		return nil, err
	}

	opts := []RegistryOption{WithArgumentValidation()}
	if cfg.RateLimitPerMinute > 0 {
		opts = append(opts, WithRateLimit(func() *RateLimiter {
			return NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		}))
	}
	reg := NewRegistry(logger, opts...)

	for _, t := range []domain.Tool{
		NewCalculatorTool(logger),
		NewEquationSolverTool(logger),
		NewFormulaLookupTool(book, logger),
	} {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}
	return reg, nil
}
