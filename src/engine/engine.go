// Package engine evaluates the template graph over a candidate field-value
// assignment: derived fields in topological order, margin backward-induction,
// multi-path cross-checks, and the validation report. Derivation is a pure
// function of the supplied values; the engine never mutates a snapshot and
// never fails on missing inputs, since absence is itself a value here.
package engine

import (
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/template"
	"github.com/username/finloader/backend/src/utils"
)

// Tolerances are the maximum discrepancies before two values are considered
// inconsistent. Currency is in absolute currency units, Percent in percentage
// points.
type Tolerances struct {
	Currency float64
	Percent  float64
}

// DefaultTolerances mirror the configuration defaults.
func DefaultTolerances() Tolerances {
	return Tolerances{Currency: 0.01, Percent: 0.01}
}

// Engine derives and verifies one statement type at a time against an
// immutable template graph. Safe for concurrent use across snapshots.
type Engine struct {
	graph *template.Graph
	tol   Tolerances
}

// New builds an engine over a resolved template graph.
func New(graph *template.Graph, tol Tolerances) *Engine {
	if tol.Currency <= 0 {
		tol.Currency = 0.01
	}
	if tol.Percent <= 0 {
		tol.Percent = 0.01
	}
	return &Engine{graph: graph, tol: tol}
}

// Graph exposes the underlying template graph.
func (e *Engine) Graph() *template.Graph { return e.graph }

// Result is the output of one derivation pass.
type Result struct {
	Values map[string]*float64
	States map[string]models.FieldState
	Flags  map[string]models.Flag
	Report models.ValidationReport
}

// Derive evaluates every field of one statement from the supplied assignment.
//
// Supplied may include values for derived fields (upstream classification
// often reports subtotals directly); those are cross-checked against the
// engine's own computation and kept as the chosen value, flagged on
// disagreement. Fields in corrected are analyst overrides: their values are
// authoritative and they are never re-flagged.
func (e *Engine) Derive(stmt models.StatementType, supplied map[string]*float64, annotations map[string]models.FlagAnnotation, corrected map[string]bool) Result {
	res := Result{
		Values: make(map[string]*float64),
		States: make(map[string]models.FieldState),
		Flags:  make(map[string]models.Flag),
	}

	// Seed from the supplied assignment. Unknown field ids are dropped; the
	// oracle is constrained to template labels but must not be trusted.
	for _, id := range e.graph.FieldOrder(stmt) {
		if v, ok := supplied[id]; ok && v != nil {
			val := *v
			res.Values[id] = &val
			res.States[id] = models.StateClassified
		} else {
			res.Values[id] = nil
			res.States[id] = models.StateUnset
		}
	}

	// Oracle-side ambiguity annotations become flags up front.
	for id, ann := range annotations {
		if _, ok := res.Values[id]; !ok {
			continue
		}
		if corrected[id] {
			continue
		}
		res.States[id] = models.StateFlagged
		res.Flags[id] = models.Flag{Reason: ann.Reason, Supplied: res.Values[id]}
	}

	// Two evaluation passes over the topological order: margin
	// backward-induction in the first pass can fill a dollar field whose
	// dependents were evaluated before the margin. The second pass only
	// fills values that are still null, so results stay deterministic.
	for pass := 0; pass < 2; pass++ {
		for _, f := range e.graph.ResolveOrder(stmt) {
			switch f.Kind {
			case template.KindDerived:
				e.deriveField(f, &res, corrected, pass)
			case template.KindMargin:
				e.deriveMargin(f, &res, corrected, pass)
			}
		}
	}

	res.Report = e.runChecks(stmt, &res, corrected)
	return res
}

// deriveField evaluates every formula path of a derived field, reconciles the
// paths with each other and with any supplied value, and settles state.
func (e *Engine) deriveField(f *template.Field, res *Result, corrected map[string]bool, pass int) {
	supplied := res.Values[f.ID]
	if pass > 0 && supplied != nil {
		// Already settled in the first pass.
		return
	}

	paths := make(map[string]float64)
	var ordered []string
	for _, formula := range f.Formulas {
		if v, ok := e.evalFormula(formula, res.Values); ok {
			paths[formula.Name] = v
			ordered = append(ordered, formula.Name)
		}
	}

	if len(paths) == 0 {
		// Every path has unresolved dependencies: keep whatever was
		// supplied (possibly null). Unreported propagates, never errors.
		return
	}

	if corrected[f.ID] {
		// Analyst override is authoritative; recomputation feeds dependents
		// through the corrected value, not around it.
		return
	}

	first := paths[ordered[0]]
	pathsAgree := true
	for _, name := range ordered[1:] {
		if !within(paths[name], first, e.tol.Currency) {
			pathsAgree = false
			break
		}
	}

	if supplied == nil {
		chosen := first
		res.Values[f.ID] = &chosen
		if !pathsAgree {
			// No upstream value to prefer; take the primary path but
			// surface every candidate for review.
			res.States[f.ID] = models.StateFlagged
			res.Flags[f.ID] = models.Flag{
				Reason:   "independent derivation paths disagree",
				Computed: clonePaths(paths),
			}
			return
		}
		if len(paths) > 1 {
			res.States[f.ID] = models.StateVerified
		} else if res.States[f.ID] == models.StateUnset {
			res.States[f.ID] = models.StateClassified
		}
		return
	}

	// Supplied and computed both exist: the supplied value is always the
	// chosen one, and disagreement beyond tolerance is flagged with both.
	mismatch := ""
	for _, name := range ordered {
		if !within(paths[name], *supplied, e.tol.Currency) {
			mismatch = name
			break
		}
	}
	if mismatch != "" {
		res.States[f.ID] = models.StateFlagged
		res.Flags[f.ID] = models.Flag{
			Reason:      "supplied value disagrees with derivation",
			Supplied:    supplied,
			Computed:    clonePaths(paths),
			Discrepancy: abs(*supplied - paths[mismatch]),
		}
		return
	}
	if res.States[f.ID] != models.StateFlagged {
		res.States[f.ID] = models.StateVerified
	}
}

// evalFormula computes one linear formula. Strict formulas are null if any
// operand is null. Aggregate formulas zero-fill a null operand only when
// another operand of the same coefficient sign is reported: missing siblings
// of a rollup genuinely mean zero, but a wholly unreported side of a
// difference is unknown, and filling it would pass the other side off as the
// result.
func (e *Engine) evalFormula(formula template.Formula, values map[string]*float64) (float64, bool) {
	total := 0.0
	var posSeen, negSeen, posNull, negNull bool
	for _, t := range formula.Terms {
		v := values[t.Field]
		if v == nil {
			if !formula.Aggregate {
				return 0, false
			}
			if t.Coeff < 0 {
				negNull = true
			} else {
				posNull = true
			}
			continue
		}
		total += t.Coeff * *v
		if t.Coeff < 0 {
			negSeen = true
		} else {
			posSeen = true
		}
	}
	if !posSeen && !negSeen {
		return 0, false
	}
	if (posNull && !posSeen) || (negNull && !negSeen) {
		return 0, false
	}
	return total, true
}

func within(a, b, tol float64) bool {
	return utils.WithinTolerance(a, b, tol)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clonePaths(paths map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(paths))
	for k, v := range paths {
		out[k] = v
	}
	return out
}
