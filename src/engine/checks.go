package engine

import (
	"fmt"

	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/utils"
)

// runChecks evaluates every validation check of the statement, in declaration
// order, and flags the fields a failing check certifies. Checks never mutate
// values and are recomputed fresh on every pass.
func (e *Engine) runChecks(stmt models.StatementType, res *Result, corrected map[string]bool) models.ValidationReport {
	var report models.ValidationReport

	for _, check := range e.graph.Checks(stmt) {
		result := models.CheckResult{
			CheckName: check.Name,
			Operands:  make(map[string]float64),
		}

		missing := false
		computed := 0.0
		for _, t := range check.Terms {
			v := res.Values[t.Field]
			if v == nil {
				// AlwaysRun checks sum missing operands as zero so the
				// identity is still asserted, never silently passed.
				if !check.AlwaysRun {
					missing = true
				}
				result.Operands[t.Field] = 0
				continue
			}
			result.Operands[t.Field] = *v
			computed += t.Coeff * *v
		}

		expected := res.Values[check.Field]
		var expectedVal float64
		if expected != nil {
			expectedVal = *expected
		} else if !check.AlwaysRun {
			missing = true
		}
		result.Operands[check.Field] = expectedVal

		if missing {
			result.Status = models.CheckSkipped
			result.Details = "one or more operands unreported"
			report.Checks = append(report.Checks, result)
			continue
		}

		result.ComputedValue = &computed
		result.Expected = &expectedVal

		diff := utils.RoundFloat(expectedVal-computed, 2)
		if within(expectedVal, computed, e.tol.Currency) {
			result.Status = models.CheckPass
			result.Details = fmt.Sprintf("%s = %.2f, components sum to %.2f (difference %.2f)",
				check.Field, expectedVal, computed, diff)
		} else {
			result.Status = models.CheckFail
			result.Details = fmt.Sprintf("%s = %.2f but components sum to %.2f (difference %.2f)",
				check.Field, expectedVal, computed, diff)
			e.flagCheckScope(check.Name, check.Scope, diff, res, corrected)
		}
		report.Checks = append(report.Checks, result)
	}

	return report
}

// flagCheckScope marks every field a failed check certifies, without
// disturbing analyst-corrected fields or overwriting a more specific flag.
func (e *Engine) flagCheckScope(checkName string, scope []string, diff float64, res *Result, corrected map[string]bool) {
	for _, id := range scope {
		if corrected[id] {
			continue
		}
		if _, exists := res.Flags[id]; exists {
			continue
		}
		res.States[id] = models.StateFlagged
		res.Flags[id] = models.Flag{
			Reason:      fmt.Sprintf("validation check failed: %s", checkName),
			Supplied:    res.Values[id],
			Discrepancy: abs(diff),
		}
	}
}
