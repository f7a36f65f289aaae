package models

// StatementType identifies which half of the firm template a snapshot covers.
type StatementType string

const (
	IncomeStatement StatementType = "income_statement"
	BalanceSheet    StatementType = "balance_sheet"
)

// FieldState tracks where a template field sits in the review lifecycle.
// Transitions: Unset -> Classified -> {Verified | Flagged} -> Corrected.
type FieldState string

const (
	StateUnset      FieldState = "UNSET"
	StateClassified FieldState = "CLASSIFIED"
	StateVerified   FieldState = "VERIFIED"
	StateFlagged    FieldState = "FLAGGED"
	StateCorrected  FieldState = "CORRECTED"
)

// CorrectionTag routes an analyst correction to its side effects.
type CorrectionTag string

const (
	TagOneOff          CorrectionTag = "one_off"
	TagCompanySpecific CorrectionTag = "company_specific"
	TagGeneralFix      CorrectionTag = "general_fix"
)

// CheckStatus is the outcome of a single validation check.
type CheckStatus string

const (
	CheckPass    CheckStatus = "PASS"
	CheckFail    CheckStatus = "FAIL"
	CheckSkipped CheckStatus = "SKIPPED"
)

// FlagAnnotation is the typed low-confidence marker attached to a field result
// by the classification oracle. It replaces the upstream convention of mangling
// the field key with a suffix.
type FlagAnnotation struct {
	Reason string `json:"reason"`
}

// Flag records reconciliation or classification ambiguity on one field.
// Supplied holds the value the oracle reported (nil when none); Computed holds
// every derivation-path result that participated in the disagreement, keyed by
// path name.
type Flag struct {
	Reason      string             `json:"reason"`
	Supplied    *float64           `json:"supplied,omitempty"`
	Computed    map[string]float64 `json:"computed,omitempty"`
	Discrepancy float64            `json:"discrepancy,omitempty"`
}

// LeafAssignment is the candidate field-value assignment produced by the
// classification oracle for one statement. Values may cover derived fields too
// (the oracle often reports subtotals directly); the engine cross-checks those
// against its own computation.
type LeafAssignment struct {
	Values      map[string]*float64       `json:"values"`
	Annotations map[string]FlagAnnotation `json:"annotations,omitempty"`
	Reasoning   map[string]string         `json:"reasoning,omitempty"`
}

// CheckResult is one evaluated validation check with its exact operands.
type CheckResult struct {
	CheckName     string             `json:"checkName"`
	Status        CheckStatus        `json:"status"`
	Operands      map[string]float64 `json:"operands"`
	ComputedValue *float64           `json:"computedValue,omitempty"`
	Expected      *float64           `json:"expected,omitempty"`
	Details       string             `json:"details"`
}

// ValidationReport is the ordered list of check results for one derivation pass.
type ValidationReport struct {
	Checks []CheckResult `json:"checks"`
}

// Failed returns the names of all failing checks.
func (r ValidationReport) Failed() []string {
	var names []string
	for _, c := range r.Checks {
		if c.Status == CheckFail {
			names = append(names, c.CheckName)
		}
	}
	return names
}

// Correction is an analyst override of a single field value.
// Reasoning is mandatory; superseded corrections on the same field are
// replaced, never accumulated.
type Correction struct {
	FieldID        string        `json:"fieldId"`
	OriginalValue  *float64      `json:"originalValue,omitempty"`
	CorrectedValue float64       `json:"correctedValue"`
	Reasoning      string        `json:"reasoning"`
	Tag            CorrectionTag `json:"tag"`
	Timestamp      string        `json:"timestamp"`
}

// Equal reports whether two corrections describe the same override.
// Timestamp and OriginalValue are filled in server-side, so they are ignored
// and a resubmitted correction is recognized as a no-op.
func (c Correction) Equal(o Correction) bool {
	return c.FieldID == o.FieldID && c.CorrectedValue == o.CorrectedValue &&
		c.Reasoning == o.Reasoning && c.Tag == o.Tag
}

// Snapshot is the working state of one (company, statement type, period)
// review. Supplied holds the post-correction oracle assignment; BaseSupplied
// preserves the pre-correction classified values so corrections can be
// reverted. Values is the full field mapping after derivation.
type Snapshot struct {
	ID            string                    `json:"id"`
	CompanyID     int64                     `json:"companyId"`
	CompanyName   string                    `json:"companyName"`
	StatementType StatementType             `json:"statementType"`
	Period        string                    `json:"period"`
	Version       int                       `json:"version"`
	Supplied      map[string]*float64       `json:"supplied"`
	BaseSupplied  map[string]*float64       `json:"baseSupplied"`
	Annotations   map[string]FlagAnnotation `json:"annotations,omitempty"`
	Values        map[string]*float64       `json:"values"`
	States        map[string]FieldState     `json:"states"`
	Flags         map[string]Flag           `json:"flags"`
	Reasoning     map[string]string         `json:"reasoning,omitempty"`
	Report        ValidationReport          `json:"report"`
	Corrections   []Correction              `json:"corrections"`
	CreatedAt     string                    `json:"createdAt"`
	UpdatedAt     string                    `json:"updatedAt"`
}

// ActiveCorrection returns the correction currently applied to fieldID, if any.
func (s *Snapshot) ActiveCorrection(fieldID string) (Correction, bool) {
	for _, c := range s.Corrections {
		if c.FieldID == fieldID {
			return c, true
		}
	}
	return Correction{}, false
}

// FlaggedFields returns the ids of all currently flagged fields.
func (s *Snapshot) FlaggedFields() []string {
	var out []string
	for id, state := range s.States {
		if state == StateFlagged {
			out = append(out, id)
		}
	}
	return out
}

// Instruction is a generalized classification instruction produced by the
// rewriting oracle from an accepted correction. Text carries the company's
// exact source-label strings; ReferencedFields is ordered with the destination
// (correct) field first.
type Instruction struct {
	Text             string   `json:"text"`
	ReferencedFields []string `json:"referenced_fields"`
}

// Company is one entry in the company registry. MarkdownFilename locates the
// company's rule store document under the company context directory.
type Company struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	MarkdownFilename string `json:"markdown_filename"`
	CreatedAt        string `json:"created_at"`
}

// FinalizedField is one row of a finalized statement, in template order.
type FinalizedField struct {
	FieldID   string        `json:"fieldId"`
	Statement StatementType `json:"statement"`
	Section   string        `json:"section"`
	Value     *float64      `json:"value"`
	State     FieldState    `json:"state"`
}

// FinalizedStatement is the reviewed output for one (company, period): both
// statements merged in template order.
type FinalizedStatement struct {
	CompanyID   int64            `json:"companyId"`
	CompanyName string           `json:"companyName"`
	Period      string           `json:"period"`
	Fields      []FinalizedField `json:"fields"`
	CreatedAt   string           `json:"createdAt"`
}

// QueuedCorrection is a company_specific correction awaiting the instruction
// pipeline, with the classification context the rewriter needs.
type QueuedCorrection struct {
	ID                  int64         `json:"id"`
	CompanyID           int64         `json:"companyId"`
	CompanyName         string        `json:"companyName"`
	Period              string        `json:"period"`
	StatementType       StatementType `json:"statementType"`
	FieldID             string        `json:"fieldId"`
	ClassifiedValue     *float64      `json:"classifiedValue,omitempty"`
	ClassifierReasoning string        `json:"classifierReasoning,omitempty"`
	CorrectedValue      float64       `json:"correctedValue"`
	AnalystReasoning    string        `json:"analystReasoning"`
	Processed           bool          `json:"processed"`
	CreatedAt           string        `json:"createdAt"`
}
