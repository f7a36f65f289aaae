package template

import (
	"github.com/username/finloader/backend/src/models"
)

// Section is a heading in the firm template's fixed section taxonomy. The rule
// store for each company is organized by these same sections.
type Section string

const (
	SectionRevenue     Section = "REVENUE"
	SectionCOGS        Section = "COST OF GOODS SOLD"
	SectionOpEx        Section = "OPERATING EXPENSES"
	SectionBelowLine   Section = "BELOW THE LINE"
	SectionPretax      Section = "PRE-TAX AND NET INCOME"
	SectionEBITDA      Section = "EBITDA"
	SectionMargins     Section = "MARGINS"
	SectionAssets      Section = "ASSETS"
	SectionLiabilities Section = "LIABILITIES"
	SectionEquity      Section = "EQUITY"
)

// Kind distinguishes how a field gets its value.
type Kind string

const (
	KindLeaf    Kind = "leaf"    // populated directly from extracted data
	KindDerived Kind = "derived" // computed from other fields via a formula
	KindMargin  Kind = "margin"  // percentage paired with a dollar field and a base
)

// Unit is the measurement unit of a field value.
type Unit string

const (
	UnitCurrency Unit = "currency"
	UnitPercent  Unit = "percent"
)

// Term is one signed operand of a linear formula.
type Term struct {
	Field string  `yaml:"field"`
	Coeff float64 `yaml:"coeff"`
}

// Formula is a pure linear expression over sibling field ids. A derived field
// may carry several formulas; each is an independent derivation path and the
// engine cross-checks them against each other.
//
// When Aggregate is set, null operands are treated as zero once at least one
// operand is non-null (additive rollups distinguish "unreported" from a sum of
// reported siblings). Without it any null operand makes the result null.
type Formula struct {
	Name      string `yaml:"name"`
	Terms     []Term `yaml:"terms"`
	Aggregate bool   `yaml:"aggregate"`
}

// Field is one row of the firm template. Immutable after graph construction.
type Field struct {
	ID        string               `yaml:"id"`
	Statement models.StatementType `yaml:"statement"`
	Section   Section              `yaml:"section"`
	Kind      Kind                 `yaml:"kind"`
	Unit      Unit                 `yaml:"unit"`
	Formulas  []Formula            `yaml:"formulas,omitempty"`

	// Margin fields only: Numerator is the paired dollar field, Base the
	// denominator of the percentage.
	Numerator string `yaml:"numerator,omitempty"`
	Base      string `yaml:"base,omitempty"`
}

// dependencies returns every field id this field's value is computed from.
func (f *Field) dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	for _, formula := range f.Formulas {
		for _, t := range formula.Terms {
			add(t.Field)
		}
	}
	add(f.Numerator)
	add(f.Base)
	return deps
}

// Check is a vertical validation formula: Field should equal the linear
// combination of Terms within tolerance. Scope lists the fields the check
// certifies. AlwaysRun checks are evaluated even with missing operands
// (missing summed as zero, never a silent pass).
type Check struct {
	Name      string               `yaml:"name"`
	Statement models.StatementType `yaml:"statement"`
	Field     string               `yaml:"field"`
	Terms     []Term               `yaml:"terms"`
	Scope     []string             `yaml:"scope"`
	AlwaysRun bool                 `yaml:"alwaysRun"`
}

// SectionGroup is a rendered slice of the template for UI consumption:
// consecutive fields sharing a section header, in canonical order.
type SectionGroup struct {
	Header Section  `json:"header"`
	Fields []string `json:"fields"`
}
