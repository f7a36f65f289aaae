package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/template"
	"github.com/username/finloader/backend/src/utils"
)

func findCheck(t *testing.T, report models.ValidationReport, name string) models.CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.CheckName == name {
			return c
		}
	}
	t.Fatalf("check %q not in report", name)
	return models.CheckResult{}
}

func TestBalanceIdentityPassesOnBalancedSheet(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.BalanceSheet, map[string]*float64{
		template.CashEquivalents: utils.Ptr(8524798.71),
		template.LongTermDebt:    utils.Ptr(5124837.35),
		template.CommonStock:     utils.Ptr(3399961.36),
	}, nil, nil)

	identity := findCheck(t, res.Report, "Balance Sheet Identity")
	assert.Equal(t, models.CheckPass, identity.Status)
	require.NotNil(t, identity.Expected)
	assert.InDelta(t, 8524798.71, *identity.Expected, 0.001)
	require.NotNil(t, identity.ComputedValue)
	assert.InDelta(t, 8524798.71, *identity.ComputedValue, 0.001)
	assert.Empty(t, res.Report.Failed())
}

func TestBalanceIdentityRunsWithMissingComponents(t *testing.T) {
	e := newTestEngine(t)

	// Liabilities and equity are entirely unreported. The identity still
	// runs, summing the missing side as zero, and fails loudly.
	res := e.Derive(models.BalanceSheet, map[string]*float64{
		template.CashEquivalents: utils.Ptr(100.00),
	}, nil, nil)

	identity := findCheck(t, res.Report, "Balance Sheet Identity")
	assert.Equal(t, models.CheckFail, identity.Status)
	assert.Equal(t, "Total Assets = 100.00 but components sum to 0.00 (difference 100.00)", identity.Details)

	assert.Contains(t, res.Report.Failed(), "Balance Sheet Identity")
	assert.Equal(t, models.StateFlagged, res.States[template.TotalAssets])
	flag := res.Flags[template.TotalAssets]
	assert.Equal(t, "validation check failed: Balance Sheet Identity", flag.Reason)
	assert.InDelta(t, 100.00, flag.Discrepancy, 0.001)
	assert.Equal(t, models.StateFlagged, res.States[template.TotalLiabilities])
	assert.Equal(t, models.StateFlagged, res.States[template.TotalEquity])
}

func TestCheckSkippedWhenOperandUnreported(t *testing.T) {
	e := newTestEngine(t)

	// COGS depreciation is unreported, so the ordinary gross profit check
	// cannot be asserted and must not guess.
	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue: utils.Ptr(1000.00),
		template.COGS:         utils.Ptr(200.00),
	}, nil, nil)

	gp := findCheck(t, res.Report, "Gross Profit Check")
	assert.Equal(t, models.CheckSkipped, gp.Status)
	assert.Equal(t, "one or more operands unreported", gp.Details)
	assert.Nil(t, gp.ComputedValue)
}

func TestFailedCheckDoesNotOverwriteExistingFlag(t *testing.T) {
	e := newTestEngine(t)

	// Total assets are supplied in disagreement with the rollup, which
	// produces a specific reconciliation flag first. The identity check
	// also fails but must not replace that flag.
	res := e.Derive(models.BalanceSheet, map[string]*float64{
		template.CashEquivalents: utils.Ptr(100.00),
		template.TotalAssets:     utils.Ptr(250.00),
	}, nil, nil)

	flag := res.Flags[template.TotalAssets]
	assert.Equal(t, models.StateFlagged, res.States[template.TotalAssets])
	assert.NotEqual(t, "validation check failed: Balance Sheet Identity", flag.Reason)
	assert.NotEmpty(t, flag.Computed)
}

func TestFailedCheckSparesCorrectedFields(t *testing.T) {
	e := newTestEngine(t)

	corrected := map[string]bool{template.TotalAssets: true}
	res := e.Derive(models.BalanceSheet, map[string]*float64{
		template.CashEquivalents: utils.Ptr(100.00),
	}, nil, corrected)

	identity := findCheck(t, res.Report, "Balance Sheet Identity")
	assert.Equal(t, models.CheckFail, identity.Status)
	_, flagged := res.Flags[template.TotalAssets]
	assert.False(t, flagged)
	assert.Equal(t, models.StateFlagged, res.States[template.TotalLiabilities])
}
