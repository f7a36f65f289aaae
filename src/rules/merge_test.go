package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/template"
)

// stubPolicy returns a canned decision and records whether it was consulted.
type stubPolicy struct {
	decision Decision
	err      error
	calls    int
}

func (p *stubPolicy) Decide(_ context.Context, _ *Store, _ models.Instruction, _ template.Section) (Decision, error) {
	p.calls++
	return p.decision, p.err
}

func newTestMerger(t *testing.T, policy DecisionPolicy) *Merger {
	t.Helper()
	logger.InitLogger("error")
	return NewMerger(template.BuiltinGraph(), policy)
}

func sgaStore() *Store {
	s := NewStore("Acme Holdings")
	s.Sections = []Section{{
		Name: template.SectionOpEx,
		Rules: []Rule{{
			Text:             `The combined "SGA Expenses" line maps to Administrative Expenses.`,
			ReferencedFields: []string{template.Administrative},
		}},
	}}
	return s
}

func TestTargetSectionIsDestinationField(t *testing.T) {
	m := newTestMerger(t, &stubPolicy{})

	// First referenced field is the destination; later ones are sources and
	// must not steer the routing.
	sec, err := m.TargetSection(models.Instruction{
		Text:             `"Salaries" belongs under Compensation, not Administrative Expenses.`,
		ReferencedFields: []string{template.Compensation, template.Administrative},
	})
	require.NoError(t, err)
	assert.Equal(t, template.SectionOpEx, sec)

	_, err = m.TargetSection(models.Instruction{ReferencedFields: []string{"No Such Field"}})
	assert.ErrorIs(t, err, ErrMergeAmbiguous)
}

func TestMergeAppendsNewRule(t *testing.T) {
	policy := &stubPolicy{decision: Decision{Action: ActionAppend}}
	m := newTestMerger(t, policy)
	store := sgaStore()

	action, out, err := m.Merge(context.Background(), store, models.Instruction{
		Text:             `"Office Rent" maps to Rent Expense.`,
		ReferencedFields: []string{template.RentExpense},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionAppend, action)
	assert.Equal(t, 1, policy.calls)

	sec := out.Section(template.SectionOpEx)
	require.NotNil(t, sec)
	require.Len(t, sec.Rules, 2)
	assert.Equal(t, `"Office Rent" maps to Rent Expense.`, sec.Rules[1].Text)
	assert.False(t, sec.Rules[1].NeedsReview())

	// The input store is never mutated.
	assert.Equal(t, 1, store.RuleCount())
}

func TestMergeDiscardsExactDuplicateWithoutPolicy(t *testing.T) {
	policy := &stubPolicy{decision: Decision{Action: ActionAppend}}
	m := newTestMerger(t, policy)
	store := sgaStore()

	action, out, err := m.Merge(context.Background(), store, models.Instruction{
		// Same rule up to whitespace and case.
		Text:             "The combined  \"SGA Expenses\" line maps to administrative expenses.",
		ReferencedFields: []string{template.Administrative},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionDiscard, action)
	assert.Equal(t, 1, out.RuleCount())
	assert.Equal(t, 0, policy.calls, "duplicate detection must not consult the policy")
}

func TestMergeAmendRefinesRuleInPlace(t *testing.T) {
	amended := `The combined "SGA Expenses" line maps to Administrative Expenses, except the "Salaries" portion which maps to Compensation & Benefits.`
	policy := &stubPolicy{decision: Decision{
		Action:      ActionAmend,
		Section:     template.SectionOpEx,
		RuleIndex:   0,
		AmendedText: amended,
	}}
	m := newTestMerger(t, policy)

	action, out, err := m.Merge(context.Background(), sgaStore(), models.Instruction{
		Text:             `The "Salaries" portion of "SGA Expenses" maps to Compensation & Benefits.`,
		ReferencedFields: []string{template.Compensation, template.Administrative},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionAmend, action)

	sec := out.Section(template.SectionOpEx)
	require.Len(t, sec.Rules, 1)
	assert.Equal(t, amended, sec.Rules[0].Text)
	assert.Equal(t,
		[]string{template.Administrative, template.Compensation},
		sec.Rules[0].ReferencedFields)
}

func TestMergeAmendThatLosesAnchorsIsDemoted(t *testing.T) {
	policy := &stubPolicy{decision: Decision{
		Action:      ActionAmend,
		Section:     template.SectionOpEx,
		RuleIndex:   0,
		AmendedText: `"Salaries" maps to Compensation & Benefits.`, // loses "SGA Expenses"
	}}
	m := newTestMerger(t, policy)

	action, out, err := m.Merge(context.Background(), sgaStore(), models.Instruction{
		Text:             `"Salaries" maps to Compensation & Benefits.`,
		ReferencedFields: []string{template.Compensation},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionAppend, action)

	// Prior guidance survives untouched and the new rule is parked for review.
	assert.True(t, out.ContainsText("SGA Expenses"))
	sec := out.Section(template.SectionOpEx)
	require.Len(t, sec.Rules, 2)
	assert.True(t, sec.Rules[1].NeedsReview())
}

func TestMergeAmbiguousPolicyAppendsForReview(t *testing.T) {
	policy := &stubPolicy{err: fmt.Errorf("oracle verdict unparseable: %w", ErrMergeAmbiguous)}
	m := newTestMerger(t, policy)

	action, out, err := m.Merge(context.Background(), sgaStore(), models.Instruction{
		Text:             `"Misc Charges" needs a home.`,
		ReferencedFields: []string{template.OtherOperating},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionAppend, action)

	sec := out.Section(template.SectionOpEx)
	require.Len(t, sec.Rules, 2)
	assert.True(t, sec.Rules[1].NeedsReview())
}

func TestMergePolicyFailureIsFatal(t *testing.T) {
	policy := &stubPolicy{err: errors.New("oracle unreachable")}
	m := newTestMerger(t, policy)

	_, _, err := m.Merge(context.Background(), sgaStore(), models.Instruction{
		Text:             `"Misc Charges" maps to Other Operating Expenses.`,
		ReferencedFields: []string{template.OtherOperating},
	})
	assert.Error(t, err)
}

func TestMergeUndecidableSectionUsesBestGuess(t *testing.T) {
	policy := &stubPolicy{}
	m := newTestMerger(t, policy)

	action, out, err := m.Merge(context.Background(), sgaStore(), models.Instruction{
		Text:             `An instruction with no recognizable fields.`,
		ReferencedFields: []string{"No Such Field"},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionAppend, action)
	assert.Equal(t, 0, policy.calls)

	sec := out.Section(template.SectionOpEx)
	require.Len(t, sec.Rules, 2)
	assert.True(t, sec.Rules[1].NeedsReview())
}

func TestMergeIsIdempotent(t *testing.T) {
	policy := &stubPolicy{decision: Decision{Action: ActionAppend}}
	m := newTestMerger(t, policy)

	instruction := models.Instruction{
		Text:             `"Office Rent" maps to Rent Expense.`,
		ReferencedFields: []string{template.RentExpense},
	}

	_, once, err := m.Merge(context.Background(), sgaStore(), instruction)
	require.NoError(t, err)
	action, twice, err := m.Merge(context.Background(), once, instruction)
	require.NoError(t, err)

	assert.Equal(t, ActionDiscard, action)
	assert.Equal(t, once.RuleCount(), twice.RuleCount())
}

func TestMergeRejectsEmptyInstruction(t *testing.T) {
	m := newTestMerger(t, &stubPolicy{})
	_, _, err := m.Merge(context.Background(), sgaStore(), models.Instruction{Text: "   "})
	assert.Error(t, err)
}
