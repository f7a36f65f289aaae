package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/template"
)

// Action is the three-way merge decision.
type Action string

const (
	ActionDiscard Action = "DISCARD" // instruction already covered, store unchanged
	ActionAmend   Action = "AMEND"   // refine an existing rule in place
	ActionAppend  Action = "APPEND"  // wholly new rule
)

// ErrMergeAmbiguous signals that a policy could not settle on a target
// section or action. The engine recovers by appending under a best-guess
// section with the review marker; it is surfaced so callers can log it.
var ErrMergeAmbiguous = errors.New("merge decision ambiguous")

// Decision is a policy's verdict on one instruction.
type Decision struct {
	Action  Action
	Section template.Section
	// RuleIndex addresses the rule to amend within the target section.
	RuleIndex int
	// AmendedText is the full replacement text for AMEND. It must be a
	// superset of the old rule: the engine rejects amendments that lose the
	// old rule's label anchors.
	AmendedText string
	Detail      string
}

// DecisionPolicy is the pluggable similarity judgment behind the merge. The
// engine owns the three-way contract and the non-destructive rewrite; the
// policy owns intent matching (rule-based, oracle-backed, or a human).
type DecisionPolicy interface {
	Decide(ctx context.Context, store *Store, instruction models.Instruction, targetSection template.Section) (Decision, error)
}

// Merger integrates instructions into company rule stores.
type Merger struct {
	graph  *template.Graph
	policy DecisionPolicy
}

// NewMerger builds a merge engine over the template's section taxonomy.
func NewMerger(graph *template.Graph, policy DecisionPolicy) *Merger {
	return &Merger{graph: graph, policy: policy}
}

// TargetSection derives the section an instruction belongs to: the section of
// the destination (correct) field, which is the first referenced field. When
// a rule reclassifies an item across sections this lands the rule where the
// item should go, not where it was mis-routed from.
func (m *Merger) TargetSection(instruction models.Instruction) (template.Section, error) {
	for _, id := range instruction.ReferencedFields {
		if sec, ok := m.graph.SectionOf(id); ok {
			return sec, nil
		}
	}
	return "", fmt.Errorf("%w: no referenced field maps to a template section", ErrMergeAmbiguous)
}

// Merge integrates one instruction and returns the action taken plus the full
// updated store. The input store is never mutated; callers persist the
// returned document atomically. Merge never deletes or truncates an existing
// rule: an AMEND that would lose prior content is demoted to APPEND with the
// review marker.
func (m *Merger) Merge(ctx context.Context, store *Store, instruction models.Instruction) (Action, *Store, error) {
	text := strings.TrimSpace(instruction.Text)
	if text == "" {
		return "", nil, fmt.Errorf("instruction text is empty")
	}

	out := store.Clone()

	target, err := m.TargetSection(instruction)
	if err != nil {
		// Undecidable section: best guess is the first section that has
		// rules, else the first of the taxonomy. Marked for review.
		logger.L.Warn("Merge target section undecidable, routing to review",
			"company", store.Company, "referencedFields", instruction.ReferencedFields)
		target = m.bestGuessSection(out)
		m.append(out, instruction, target, true)
		return ActionAppend, out, nil
	}

	// Exact duplicates short-circuit before the policy runs. This makes
	// Merge idempotent regardless of how sophisticated the policy is.
	if sec := out.Section(target); sec != nil {
		for _, r := range sec.Rules {
			if normalizeRuleText(r.Text) == normalizeRuleText(text) {
				return ActionDiscard, out, nil
			}
		}
	}

	decision, err := m.policy.Decide(ctx, out, instruction, target)
	if err != nil {
		if errors.Is(err, ErrMergeAmbiguous) {
			m.append(out, instruction, target, true)
			return ActionAppend, out, nil
		}
		return "", nil, fmt.Errorf("merge policy: %w", err)
	}

	switch decision.Action {
	case ActionDiscard:
		return ActionDiscard, out, nil

	case ActionAmend:
		sec := out.Section(decision.Section)
		if sec == nil || decision.RuleIndex < 0 || decision.RuleIndex >= len(sec.Rules) {
			logger.L.Warn("Merge policy returned invalid amend target, appending instead",
				"company", store.Company, "section", decision.Section, "ruleIndex", decision.RuleIndex)
			m.append(out, instruction, target, true)
			return ActionAppend, out, nil
		}
		old := sec.Rules[decision.RuleIndex]
		amended := strings.TrimSpace(decision.AmendedText)
		if !preservesAnchors(old.Text, amended) {
			// The rewrite lost prior guidance. Refuse the in-place edit and
			// keep both the old rule and the new instruction.
			logger.L.Warn("Amend would lose existing rule content, appending instead",
				"company", store.Company, "section", decision.Section)
			m.append(out, instruction, target, true)
			return ActionAppend, out, nil
		}
		sec.Rules[decision.RuleIndex] = Rule{
			Text:             amended,
			ReferencedFields: mergeFields(old.ReferencedFields, instruction.ReferencedFields),
		}
		return ActionAmend, out, nil

	case ActionAppend:
		section := decision.Section
		if section == "" {
			section = target
		}
		m.append(out, instruction, section, false)
		return ActionAppend, out, nil

	default:
		m.append(out, instruction, target, true)
		return ActionAppend, out, nil
	}
}

func (m *Merger) append(store *Store, instruction models.Instruction, section template.Section, needsReview bool) {
	text := strings.TrimSpace(instruction.Text)
	if needsReview && !strings.Contains(text, ReviewMarker) {
		text = text + " " + ReviewMarker
	}
	sec := store.EnsureSection(section, m.graph.AllSectionNames())
	sec.Rules = append(sec.Rules, Rule{
		Text:             text,
		ReferencedFields: append([]string(nil), instruction.ReferencedFields...),
	})
}

func (m *Merger) bestGuessSection(store *Store) template.Section {
	if len(store.Sections) > 0 {
		return store.Sections[0].Name
	}
	taxonomy := m.graph.AllSectionNames()
	if len(taxonomy) > 0 {
		return taxonomy[0]
	}
	return "GENERAL"
}

// preservesAnchors verifies the non-destructive amend property: every quoted
// source-label anchor of the old text must survive in the new text, and the
// new text must still contain the old rule's normalized content or grow it.
func preservesAnchors(oldText, newText string) bool {
	if newText == "" {
		return false
	}
	for _, anchor := range quotedAnchors(oldText) {
		if !strings.Contains(newText, anchor) {
			return false
		}
	}
	// A genuine superset rewrite is at least as informative as the original;
	// a shorter rewrite lost something.
	return len(normalizeRuleText(newText)) >= len(normalizeRuleText(oldText))
}

func mergeFields(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range append(append([]string(nil), a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
