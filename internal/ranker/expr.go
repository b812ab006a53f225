package ranker

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/dop251/goja"

	"github.com/me/nightsched/internal/scp"
	"github.com/me/nightsched/pkg/model"
)

// Expr scores candidates with a JavaScript expression. The expression sees
// `obs` (id, site, program, priority, remaining, iq, cc, too) and `night`,
// and must evaluate to a number. Runtime failures fall back to another
// ranker.
type Expr struct {
	source   string
	program  *goja.Program
	fallback scp.Ranker
	logger   *slog.Logger

	mu sync.Mutex
	vm *goja.Runtime
}

// NewExpr compiles expr. fallback is used when evaluation fails; nil means
// Default.
func NewExpr(expr string, fallback scp.Ranker, logger *slog.Logger) (*Expr, error) {
	prog, err := goja.Compile("ranker", expr, true)
	if err != nil {
		return nil, fmt.Errorf("compile ranker expression: %w", err)
	}
	if fallback == nil {
		fallback = Default{}
	}
	return &Expr{
		source:   expr,
		program:  prog,
		fallback: fallback,
		logger:   logger.With("component", "ranker"),
		vm:       goja.New(),
	}, nil
}

// Score implements scp.Ranker.
func (e *Expr) Score(night model.NightIndex, c scp.Candidate) float64 {
	v, err := e.eval(night, c)
	if err != nil {
		e.logger.Warn("ranker expression failed, using fallback",
			"observation", c.ObservationID, "night", int(night), "error", err)
		return e.fallback.Score(night, c)
	}
	return v
}

func (e *Expr) eval(night model.NightIndex, c scp.Candidate) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := map[string]any{
		"id":        c.ObservationID,
		"site":      string(c.Site),
		"program":   c.Program,
		"priority":  c.Priority,
		"remaining": c.RemainingSlots,
		"iq":        c.IQ,
		"cc":        c.CC,
		"too":       c.ToO,
	}
	if err := e.vm.Set("obs", obs); err != nil {
		return 0, fmt.Errorf("set obs: %w", err)
	}
	if err := e.vm.Set("night", int(night)); err != nil {
		return 0, fmt.Errorf("set night: %w", err)
	}

	val, err := e.vm.RunProgram(e.program)
	if err != nil {
		return 0, fmt.Errorf("JavaScript error: %w", err)
	}
	if goja.IsUndefined(val) || goja.IsNull(val) {
		return 0, fmt.Errorf("expression %q returned no value", e.source)
	}
	f := val.ToFloat()
	if math.IsNaN(f) {
		return 0, fmt.Errorf("expression %q returned non-number %v", e.source, val.Export())
	}
	return f, nil
}
