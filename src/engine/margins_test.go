package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/template"
	"github.com/username/finloader/backend/src/utils"
)

func TestMarginBackwardInducesDollarValue(t *testing.T) {
	e := newTestEngine(t)

	// No path can compute EBITDA - Standard, but the reported margin pins it.
	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue:    utils.Ptr(3621577.27),
		template.EBITDAStdMargin: utils.Ptr(20.00),
	}, nil, nil)

	require.NotNil(t, res.Values[template.EBITDAStandard])
	assert.InDelta(t, 724315.454, *res.Values[template.EBITDAStandard], 0.001)
	assert.Equal(t, models.StateClassified, res.States[template.EBITDAStandard])

	// The induced dollar feeds dependents on the second pass.
	require.NotNil(t, res.Values[template.AdjEBITDAStandard])
	assert.InDelta(t, 724315.454, *res.Values[template.AdjEBITDAStandard], 0.001)
	require.NotNil(t, res.Values[template.AdjEBITDAStdMargin])
	assert.InDelta(t, 20.00, *res.Values[template.AdjEBITDAStdMargin], 0.001)
}

func TestMarginBackwardInducesGrossProfit(t *testing.T) {
	e := newTestEngine(t)

	// Only the margin and its base are reported. The cost side is unknown, so
	// no formula path produces a dollar figure; the margin pins it instead.
	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue:      utils.Ptr(3621577.27),
		template.GrossProfitMargin: utils.Ptr(88.05),
	}, nil, nil)

	require.NotNil(t, res.Values[template.GrossProfit])
	assert.InDelta(t, 3188798.79, *res.Values[template.GrossProfit], 0.01)
	assert.Equal(t, models.StateClassified, res.States[template.GrossProfit])

	_, flagged := res.Flags[template.GrossProfit]
	assert.False(t, flagged)
	_, flagged = res.Flags[template.GrossProfitMargin]
	assert.False(t, flagged)
}

func TestMarginReportedWithinToleranceVerifies(t *testing.T) {
	e := newTestEngine(t)

	// Computed margin is 88.0533; the statement reports 88.05. Within the
	// percent tolerance the reported figure is kept and verified.
	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue:      utils.Ptr(3621577.27),
		template.COGS:              utils.Ptr(432658.88),
		template.GrossProfitMargin: utils.Ptr(88.05),
	}, nil, nil)

	require.NotNil(t, res.Values[template.GrossProfitMargin])
	assert.InDelta(t, 88.05, *res.Values[template.GrossProfitMargin], 0.0001)
	assert.Equal(t, models.StateVerified, res.States[template.GrossProfitMargin])
	_, flagged := res.Flags[template.GrossProfitMargin]
	assert.False(t, flagged)
}

func TestMarginDisagreementFlagsBothFields(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue:      utils.Ptr(1000.00),
		template.COGS:              utils.Ptr(100.00),
		template.GrossProfitMargin: utils.Ptr(80.00),
	}, nil, nil)

	// Both values survive; both carry the discrepancy and each other's
	// implied counterpart.
	assert.Equal(t, models.StateFlagged, res.States[template.GrossProfitMargin])
	assert.Equal(t, models.StateFlagged, res.States[template.GrossProfit])

	pctFlag := res.Flags[template.GrossProfitMargin]
	require.NotNil(t, pctFlag.Supplied)
	assert.InDelta(t, 80.00, *pctFlag.Supplied, 0.001)
	assert.InDelta(t, 90.00, pctFlag.Computed["from "+template.GrossProfit], 0.001)
	assert.InDelta(t, 10.00, pctFlag.Discrepancy, 0.001)

	dollarFlag := res.Flags[template.GrossProfit]
	require.NotNil(t, dollarFlag.Supplied)
	assert.InDelta(t, 900.00, *dollarFlag.Supplied, 0.001)
	assert.InDelta(t, 800.00, dollarFlag.Computed["from "+template.GrossProfitMargin], 0.001)
}

func TestMarginMissingBaseStaysNull(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.GrossProfitMargin: utils.Ptr(88.05),
	}, nil, nil)

	assert.Nil(t, res.Values[template.GrossProfit])
	require.NotNil(t, res.Values[template.GrossProfitMargin])
	assert.InDelta(t, 88.05, *res.Values[template.GrossProfitMargin], 0.001)
}
