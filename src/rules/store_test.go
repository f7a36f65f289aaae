package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finloader/backend/src/template"
)

func TestEnsureSectionInsertsInTaxonomyOrder(t *testing.T) {
	taxonomy := []template.Section{
		template.SectionRevenue, template.SectionCOGS, template.SectionOpEx, template.SectionAssets,
	}

	s := NewStore("Acme Holdings")
	s.EnsureSection(template.SectionAssets, taxonomy).Rules = []Rule{{Text: "asset rule"}}
	s.EnsureSection(template.SectionRevenue, taxonomy).Rules = []Rule{{Text: "revenue rule"}}
	s.EnsureSection(template.SectionOpEx, taxonomy).Rules = []Rule{{Text: "opex rule"}}

	require.Len(t, s.Sections, 3)
	assert.Equal(t, template.SectionRevenue, s.Sections[0].Name)
	assert.Equal(t, template.SectionOpEx, s.Sections[1].Name)
	assert.Equal(t, template.SectionAssets, s.Sections[2].Name)

	// Re-ensuring an existing section returns it rather than duplicating.
	sec := s.EnsureSection(template.SectionOpEx, taxonomy)
	sec.Rules = append(sec.Rules, Rule{Text: "second opex rule"})
	require.Len(t, s.Sections, 3)
	assert.Len(t, s.Section(template.SectionOpEx).Rules, 2)
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewStore("Acme Holdings")
	s.Sections = []Section{{Name: template.SectionOpEx, Rules: []Rule{{Text: "original"}}}}

	c := s.Clone()
	c.Sections[0].Rules[0].Text = "mutated"
	c.Sections[0].Rules = append(c.Sections[0].Rules, Rule{Text: "extra"})

	assert.Equal(t, "original", s.Sections[0].Rules[0].Text)
	assert.Len(t, s.Sections[0].Rules, 1)
}

func TestQuotedAnchors(t *testing.T) {
	anchors := quotedAnchors(`The combined "SGA Expenses" line splits; 'Salaries' maps to Compensation.`)
	assert.Contains(t, anchors, "SGA Expenses")
	assert.Contains(t, anchors, "Salaries")
}

func TestValidateRejectsEmptySectionsAndRules(t *testing.T) {
	s := NewStore("Acme Holdings")
	s.Sections = []Section{{Name: template.SectionOpEx}}
	assert.Error(t, s.Validate())

	s.Sections[0].Rules = []Rule{{Text: "   "}}
	assert.Error(t, s.Validate())

	s.Sections[0].Rules = []Rule{{Text: "a real rule"}}
	assert.NoError(t, s.Validate())
}

func TestMarkdownRoundTrip(t *testing.T) {
	s := NewStore("Acme Holdings")
	s.Sections = []Section{
		{Name: template.SectionOpEx, Rules: []Rule{
			{Text: `The combined "SGA Expenses" line maps to Administrative Expenses.`},
			{Text: "A rule with a continuation line\nthat wraps onto a second line."},
		}},
		{Name: template.SectionAssets, Rules: []Rule{
			{Text: `"Cash at Bank" maps to Cash & Equivalents.`},
		}},
	}

	doc := RenderMarkdown(s)
	assert.Contains(t, doc, "# Acme Holdings — Classification Context")
	assert.Contains(t, doc, "### OPERATING EXPENSES")
	assert.Contains(t, doc, `- The combined "SGA Expenses" line maps to Administrative Expenses.`)

	parsed := ParseMarkdown("Acme Holdings", doc)
	require.Len(t, parsed.Sections, 2)
	assert.Equal(t, template.SectionOpEx, parsed.Sections[0].Name)
	require.Len(t, parsed.Sections[0].Rules, 2)
	assert.Equal(t,
		"A rule with a continuation line\nthat wraps onto a second line.",
		parsed.Sections[0].Rules[1].Text)
	assert.Equal(t, template.SectionAssets, parsed.Sections[1].Name)
}

func TestParseMarkdownKeepsUnknownSectionsDropsEmpty(t *testing.T) {
	doc := "# Acme — Classification Context\n" +
		"\n### ANALYST NOTES\n\n- Treat Q4 files with care.\n" +
		"\n### OPERATING EXPENSES\n\n" // no rules

	parsed := ParseMarkdown("Acme", doc)
	require.Len(t, parsed.Sections, 1)
	assert.Equal(t, template.Section("ANALYST NOTES"), parsed.Sections[0].Name)
	assert.Equal(t, "Treat Q4 files with care.", parsed.Sections[0].Rules[0].Text)
}
