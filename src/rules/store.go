// Package rules holds the per-company classification knowledge: the
// section-organized rule store document and the merge engine that integrates
// new instructions without ever destroying prior guidance.
package rules

import (
	"fmt"
	"strings"

	"github.com/username/finloader/backend/src/template"
)

// ReviewMarker is appended to rules the merge engine could not place with
// confidence. The oracle ignores marked rules until an analyst clears them.
const ReviewMarker = "[needs human review]"

// Rule is one standing classification instruction. Text preserves the
// company's exact source-label strings verbatim; they are the match anchors
// the classification oracle keys on.
type Rule struct {
	Text             string   `json:"text"`
	ReferencedFields []string `json:"referencedFields,omitempty"`
}

// NeedsReview reports whether the rule carries the review marker.
func (r Rule) NeedsReview() bool {
	return strings.Contains(r.Text, ReviewMarker)
}

// Section is an ordered list of rules under one template section header.
// Rules addressing the same decision sit adjacent to each other.
type Section struct {
	Name  template.Section `json:"name"`
	Rules []Rule           `json:"rules"`
}

// Store is the whole rule document for one company. Sections appear in the
// template's taxonomy order; empty sections are never persisted.
type Store struct {
	Company  string    `json:"company"`
	Sections []Section `json:"sections"`
}

// NewStore returns an empty rule store for a company.
func NewStore(company string) *Store {
	return &Store{Company: company}
}

// Clone deep-copies the store so merge operations can build the updated
// document without mutating the caller's copy.
func (s *Store) Clone() *Store {
	out := &Store{Company: s.Company, Sections: make([]Section, len(s.Sections))}
	for i, sec := range s.Sections {
		out.Sections[i] = Section{Name: sec.Name, Rules: append([]Rule(nil), sec.Rules...)}
	}
	return out
}

// Section returns a pointer to the named section, or nil.
func (s *Store) Section(name template.Section) *Section {
	for i := range s.Sections {
		if s.Sections[i].Name == name {
			return &s.Sections[i]
		}
	}
	return nil
}

// EnsureSection returns the named section, creating it in taxonomy order if
// absent. Order is the full section taxonomy from the template graph.
func (s *Store) EnsureSection(name template.Section, taxonomy []template.Section) *Section {
	if sec := s.Section(name); sec != nil {
		return sec
	}

	rank := func(n template.Section) int {
		for i, t := range taxonomy {
			if t == n {
				return i
			}
		}
		return len(taxonomy)
	}

	insertAt := len(s.Sections)
	for i, sec := range s.Sections {
		if rank(name) < rank(sec.Name) {
			insertAt = i
			break
		}
	}
	s.Sections = append(s.Sections, Section{})
	copy(s.Sections[insertAt+1:], s.Sections[insertAt:])
	s.Sections[insertAt] = Section{Name: name}
	return &s.Sections[insertAt]
}

// RuleCount returns the total number of rules across all sections.
func (s *Store) RuleCount() int {
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.Rules)
	}
	return n
}

// ContainsText reports whether any rule's text contains the given span.
// Used to assert the non-destructive merge property.
func (s *Store) ContainsText(span string) bool {
	for _, sec := range s.Sections {
		for _, r := range sec.Rules {
			if strings.Contains(r.Text, span) {
				return true
			}
		}
	}
	return false
}

// quotedAnchors extracts the quoted source-label strings from rule or
// instruction text. These are the spans a merge must never lose.
func quotedAnchors(text string) []string {
	var anchors []string
	for _, quote := range []string{`"`, `'`} {
		rest := text
		for {
			start := strings.Index(rest, quote)
			if start == -1 {
				break
			}
			end := strings.Index(rest[start+1:], quote)
			if end == -1 {
				break
			}
			anchor := rest[start+1 : start+1+end]
			if anchor != "" {
				anchors = append(anchors, anchor)
			}
			rest = rest[start+end+2:]
		}
	}
	return anchors
}

// normalizeRuleText collapses whitespace and case for duplicate detection.
// Anchors keep their exact spelling in the stored text; normalization is only
// ever used for comparison.
func normalizeRuleText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Validate checks structural invariants before a store is persisted: no empty
// sections, no empty rule text.
func (s *Store) Validate() error {
	for _, sec := range s.Sections {
		if len(sec.Rules) == 0 {
			return fmt.Errorf("section %q is empty", sec.Name)
		}
		for _, r := range sec.Rules {
			if strings.TrimSpace(r.Text) == "" {
				return fmt.Errorf("section %q contains a rule with empty text", sec.Name)
			}
		}
	}
	return nil
}
