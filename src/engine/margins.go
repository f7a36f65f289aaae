package engine

import (
	"fmt"

	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/template"
)

// deriveMargin reconciles a percentage field with its paired dollar field.
//
// Cases, in order:
//   - base null: nothing can be induced either way; the margin (and a missing
//     dollar) stay null. Missing base is not an error.
//   - percent supplied, dollar null: backward-induce dollar = percent/100 * base.
//   - dollar known, percent null: percent = dollar/base * 100.
//   - both known: verify within the percent tolerance; on failure both fields
//     keep their values and both are flagged with the discrepancy.
func (e *Engine) deriveMargin(f *template.Field, res *Result, corrected map[string]bool, pass int) {
	pct := res.Values[f.ID]
	dollar := res.Values[f.Numerator]
	base := res.Values[f.Base]

	if base == nil || *base == 0 {
		return
	}

	if pct != nil && dollar == nil {
		if corrected[f.Numerator] {
			return
		}
		induced := *pct / 100 * *base
		res.Values[f.Numerator] = &induced
		if res.States[f.Numerator] == models.StateUnset {
			res.States[f.Numerator] = models.StateClassified
		}
		return
	}

	if dollar != nil && pct == nil {
		if corrected[f.ID] {
			return
		}
		computed := *dollar / *base * 100
		res.Values[f.ID] = &computed
		// The percent is fully determined by two sibling fields, so it is
		// verified, not merely classified.
		if res.States[f.ID] == models.StateUnset {
			res.States[f.ID] = models.StateVerified
		}
		return
	}

	if dollar != nil && pct != nil && pass == 0 {
		computed := *dollar / *base * 100
		if within(computed, *pct, e.tol.Percent) {
			if res.States[f.ID] == models.StateClassified {
				res.States[f.ID] = models.StateVerified
			}
			return
		}
		discrepancy := abs(computed - *pct)
		reason := fmt.Sprintf("reported margin disagrees with %s / %s", f.Numerator, f.Base)
		if !corrected[f.ID] {
			res.States[f.ID] = models.StateFlagged
			res.Flags[f.ID] = models.Flag{
				Reason:      reason,
				Supplied:    pct,
				Computed:    map[string]float64{"from " + f.Numerator: computed},
				Discrepancy: discrepancy,
			}
		}
		if !corrected[f.Numerator] {
			impliedDollar := *pct / 100 * *base
			res.States[f.Numerator] = models.StateFlagged
			res.Flags[f.Numerator] = models.Flag{
				Reason:      reason,
				Supplied:    dollar,
				Computed:    map[string]float64{"from " + f.ID: impliedDollar},
				Discrepancy: discrepancy,
			}
		}
	}
}
