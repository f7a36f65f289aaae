package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finloader/backend/src/models"
)

func TestNewGraphResolvesDependencyOrder(t *testing.T) {
	is := models.IncomeStatement
	fields := []Field{
		// Declared dependents-first to force the sort to reorder them.
		derived("c", is, SectionRevenue, sum("b rollup", "b")),
		derived("b", is, SectionRevenue, sum("a rollup", "a")),
		leaf("a", is, SectionRevenue),
	}

	g, err := NewGraph(fields, nil)
	require.NoError(t, err)

	order := g.ResolveOrder(is)
	require.Len(t, order, 2)
	assert.Equal(t, "b", order[0].ID)
	assert.Equal(t, "c", order[1].ID)
}

func TestNewGraphDetectsCycle(t *testing.T) {
	is := models.IncomeStatement
	fields := []Field{
		derived("a", is, SectionRevenue, sum("from b", "b")),
		derived("b", is, SectionRevenue, sum("from a", "a")),
	}

	_, err := NewGraph(fields, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicFormula)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestNewGraphRejectsUnknownFormulaField(t *testing.T) {
	is := models.IncomeStatement
	fields := []Field{
		derived("a", is, SectionRevenue, sum("rollup", "ghost")),
	}

	_, err := NewGraph(fields, nil)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestNewGraphRejectsUnknownCheckField(t *testing.T) {
	is := models.IncomeStatement
	fields := []Field{leaf("a", is, SectionRevenue)}
	checks := []Check{{
		Name:      "ghost check",
		Statement: is,
		Field:     "a",
		Terms:     []Term{{Field: "ghost", Coeff: 1}},
	}}

	_, err := NewGraph(fields, checks)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestNewGraphRejectsDuplicateField(t *testing.T) {
	is := models.IncomeStatement
	fields := []Field{
		leaf("a", is, SectionRevenue),
		leaf("a", is, SectionRevenue),
	}

	_, err := NewGraph(fields, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate template field")
}

func TestBuiltinGraphShape(t *testing.T) {
	g := BuiltinGraph()

	// Every derived and margin field appears after its dependencies.
	for _, stmt := range []models.StatementType{models.IncomeStatement, models.BalanceSheet} {
		for _, id := range g.FieldOrder(stmt) {
			f, ok := g.Field(id)
			require.True(t, ok)
			assert.Equal(t, stmt, f.Statement)
		}
		position := make(map[string]int)
		for i, f := range g.ResolveOrder(stmt) {
			position[f.ID] = i
		}
		for _, f := range g.ResolveOrder(stmt) {
			for _, formula := range f.Formulas {
				for _, term := range formula.Terms {
					dep, ok := g.Field(term.Field)
					require.True(t, ok)
					if dep.Kind != KindLeaf {
						assert.Less(t, position[term.Field], position[f.ID],
							"%s must resolve before %s", term.Field, f.ID)
					}
				}
			}
		}
	}

	sec, ok := g.SectionOf(GrossProfit)
	require.True(t, ok)
	assert.Equal(t, SectionCOGS, sec)
	_, ok = g.SectionOf("No Such Field")
	assert.False(t, ok)

	names := g.AllSectionNames()
	assert.Equal(t, SectionRevenue, names[0])
	assert.Contains(t, names, SectionAssets)
	assert.Contains(t, names, SectionEquity)
}
