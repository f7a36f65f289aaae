package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/username/finloader/backend/src/models"
)

// ErrCyclicFormula is returned when the formula graph has no topological
// order. This is a configuration error and fatal at load time.
var ErrCyclicFormula = errors.New("cyclic formula dependency")

// ErrUnknownField is returned when a formula, margin, or check references a
// field id that is not part of the template.
var ErrUnknownField = errors.New("formula references unknown field")

// Graph is the immutable firm template: every field, its section and formula,
// plus the validation checks. Built once at process start.
type Graph struct {
	fields map[string]*Field
	order  []string // canonical template order (declaration order)
	checks []Check

	// resolved evaluation order of derived and margin fields, per statement
	derivedOrder map[models.StatementType][]*Field
}

// NewGraph validates the field set and resolves the evaluation order.
// Fails with ErrCyclicFormula if the dependency graph has a cycle and
// ErrUnknownField if a formula references a field that does not exist.
func NewGraph(fields []Field, checks []Check) (*Graph, error) {
	g := &Graph{
		fields:       make(map[string]*Field, len(fields)),
		checks:       checks,
		derivedOrder: make(map[models.StatementType][]*Field),
	}

	for i := range fields {
		f := &fields[i]
		if _, dup := g.fields[f.ID]; dup {
			return nil, fmt.Errorf("duplicate template field %q", f.ID)
		}
		g.fields[f.ID] = f
		g.order = append(g.order, f.ID)
	}

	for _, id := range g.order {
		f := g.fields[id]
		for _, dep := range f.dependencies() {
			if _, ok := g.fields[dep]; !ok {
				return nil, fmt.Errorf("%w: %q -> %q", ErrUnknownField, f.ID, dep)
			}
		}
		if f.Kind == KindMargin && (f.Numerator == "" || f.Base == "") {
			return nil, fmt.Errorf("margin field %q must declare numerator and base", f.ID)
		}
	}

	for _, check := range checks {
		if _, ok := g.fields[check.Field]; !ok {
			return nil, fmt.Errorf("%w: check %q -> %q", ErrUnknownField, check.Name, check.Field)
		}
		for _, t := range check.Terms {
			if _, ok := g.fields[t.Field]; !ok {
				return nil, fmt.Errorf("%w: check %q -> %q", ErrUnknownField, check.Name, t.Field)
			}
		}
	}

	for _, stmt := range []models.StatementType{models.IncomeStatement, models.BalanceSheet} {
		resolved, err := g.resolveOrder(stmt)
		if err != nil {
			return nil, err
		}
		g.derivedOrder[stmt] = resolved
	}

	return g, nil
}

// resolveOrder topologically sorts the derived and margin fields of one
// statement so every dependency is evaluated before its dependents.
// Ties are broken by canonical template order to keep evaluation stable.
func (g *Graph) resolveOrder(stmt models.StatementType) ([]*Field, error) {
	const (
		white = 0 // unvisited
		gray  = 1 // on stack
		black = 2 // done
	)
	color := make(map[string]int)
	var sorted []*Field

	var visit func(id string, trail []string) error
	visit = func(id string, trail []string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: %s", ErrCyclicFormula, strings.Join(append(trail, id), " -> "))
		}
		color[id] = gray
		f := g.fields[id]
		for _, dep := range f.dependencies() {
			if err := visit(dep, append(trail, id)); err != nil {
				return err
			}
		}
		color[id] = black
		if f.Statement == stmt && f.Kind != KindLeaf {
			sorted = append(sorted, f)
		}
		return nil
	}

	for _, id := range g.order {
		f := g.fields[id]
		if f.Statement != stmt {
			continue
		}
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// Field looks up a template field by id.
func (g *Graph) Field(id string) (*Field, bool) {
	f, ok := g.fields[id]
	return f, ok
}

// SectionOf returns the section a field belongs to, or false for unknown ids.
func (g *Graph) SectionOf(id string) (Section, bool) {
	f, ok := g.fields[id]
	if !ok {
		return "", false
	}
	return f.Section, true
}

// FieldOrder returns every field id of one statement in canonical template
// order. This is the ordering used for finalized output and CSV export.
func (g *Graph) FieldOrder(stmt models.StatementType) []string {
	var ids []string
	for _, id := range g.order {
		if g.fields[id].Statement == stmt {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResolveOrder returns the derived and margin fields of one statement in
// dependency order. The slice is shared; callers must not mutate it.
func (g *Graph) ResolveOrder(stmt models.StatementType) []*Field {
	return g.derivedOrder[stmt]
}

// Checks returns the validation checks for one statement, in declaration order.
func (g *Graph) Checks(stmt models.StatementType) []Check {
	var out []Check
	for _, c := range g.checks {
		if c.Statement == stmt {
			out = append(out, c)
		}
	}
	return out
}

// Sections groups one statement's fields by consecutive section header, in
// canonical order, for the template endpoint.
func (g *Graph) Sections(stmt models.StatementType) []SectionGroup {
	var groups []SectionGroup
	for _, id := range g.FieldOrder(stmt) {
		sec := g.fields[id].Section
		if len(groups) == 0 || groups[len(groups)-1].Header != sec {
			groups = append(groups, SectionGroup{Header: sec})
		}
		groups[len(groups)-1].Fields = append(groups[len(groups)-1].Fields, id)
	}
	return groups
}

// SectionNames returns the section taxonomy for one statement in template
// order, without duplicates. The rule store uses this ordering.
func (g *Graph) SectionNames(stmt models.StatementType) []Section {
	seen := make(map[Section]bool)
	var out []Section
	for _, id := range g.FieldOrder(stmt) {
		sec := g.fields[id].Section
		if !seen[sec] {
			seen[sec] = true
			out = append(out, sec)
		}
	}
	return out
}

// AllSectionNames returns the full section taxonomy across both statements.
func (g *Graph) AllSectionNames() []Section {
	out := g.SectionNames(models.IncomeStatement)
	return append(out, g.SectionNames(models.BalanceSheet)...)
}
