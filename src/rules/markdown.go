package rules

import (
	"fmt"
	"strings"

	"github.com/username/finloader/backend/src/template"
)

// The persisted document format is deliberately plain markdown so analysts can
// read and hand-edit it:
//
//	# Acme Industrial — Classification Context
//
//	### OPERATING EXPENSES
//
//	- The combined "SGA Expenses" line maps to Administrative Expenses.
//	- ...
//
// Section headers are `### NAME`; each rule is one `- ` bullet (continuation
// lines indented). Anything before the first section header is the title
// block and preserved as-is.

// RenderMarkdown serializes a store to its canonical markdown form.
func RenderMarkdown(s *Store) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Classification Context\n", s.Company)
	for _, sec := range s.Sections {
		if len(sec.Rules) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n\n", sec.Name)
		for _, r := range sec.Rules {
			lines := strings.Split(strings.TrimSpace(r.Text), "\n")
			fmt.Fprintf(&b, "- %s\n", lines[0])
			for _, cont := range lines[1:] {
				fmt.Fprintf(&b, "  %s\n", strings.TrimSpace(cont))
			}
		}
	}
	return b.String()
}

// ParseMarkdown reads a persisted rule document back into a store. Unknown
// section headers are kept verbatim; analysts occasionally add their own
// groupings and the merge engine must not discard them.
func ParseMarkdown(company, doc string) *Store {
	s := NewStore(company)
	var current *Section

	flushRule := func(buf *strings.Builder) {
		if current == nil || buf.Len() == 0 {
			return
		}
		text := strings.TrimSpace(buf.String())
		if text != "" {
			current.Rules = append(current.Rules, Rule{Text: text})
		}
		buf.Reset()
	}

	var ruleBuf strings.Builder
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "### "):
			flushRule(&ruleBuf)
			name := template.Section(strings.TrimSpace(strings.TrimPrefix(trimmed, "### ")))
			s.Sections = append(s.Sections, Section{Name: name})
			current = &s.Sections[len(s.Sections)-1]
		case strings.HasPrefix(trimmed, "- "):
			flushRule(&ruleBuf)
			ruleBuf.WriteString(strings.TrimPrefix(trimmed, "- "))
		case trimmed == "" || strings.HasPrefix(trimmed, "# "):
			flushRule(&ruleBuf)
		default:
			// Continuation line of the current bullet.
			if ruleBuf.Len() > 0 {
				ruleBuf.WriteString("\n")
				ruleBuf.WriteString(trimmed)
			}
		}
	}
	flushRule(&ruleBuf)

	// Drop sections that parsed empty so the no-empty-sections invariant
	// holds even for hand-edited files.
	var kept []Section
	for _, sec := range s.Sections {
		if len(sec.Rules) > 0 {
			kept = append(kept, sec)
		}
	}
	s.Sections = kept
	return s
}
