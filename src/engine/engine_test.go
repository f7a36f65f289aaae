package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/template"
	"github.com/username/finloader/backend/src/utils"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(template.BuiltinGraph(), DefaultTolerances())
}

func TestDeriveGrossProfitFromComponents(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue: utils.Ptr(3621577.27),
		template.COGS:         utils.Ptr(432658.88),
	}, nil, nil)

	require.NotNil(t, res.Values[template.GrossProfit])
	assert.InDelta(t, 3188918.39, *res.Values[template.GrossProfit], 0.001)
	assert.Equal(t, models.StateClassified, res.States[template.GrossProfit])

	// The margin is fully determined by its siblings.
	require.NotNil(t, res.Values[template.GrossProfitMargin])
	assert.InDelta(t, 88.0533, *res.Values[template.GrossProfitMargin], 0.001)
	assert.Equal(t, models.StateVerified, res.States[template.GrossProfitMargin])
}

func TestDeriveSuppliedSubtotalDisagreementFlags(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue: utils.Ptr(3621577.27),
		template.COGS:         utils.Ptr(432658.88),
		template.GrossProfit:  utils.Ptr(3000000.00),
	}, nil, nil)

	// The supplied value always wins; the disagreement is surfaced, not fixed.
	require.NotNil(t, res.Values[template.GrossProfit])
	assert.InDelta(t, 3000000.00, *res.Values[template.GrossProfit], 0.001)
	assert.Equal(t, models.StateFlagged, res.States[template.GrossProfit])

	flag, ok := res.Flags[template.GrossProfit]
	require.True(t, ok)
	assert.Equal(t, "supplied value disagrees with derivation", flag.Reason)
	require.NotNil(t, flag.Supplied)
	assert.InDelta(t, 3000000.00, *flag.Supplied, 0.001)
	assert.InDelta(t, 3188918.39, flag.Computed["revenue less cost of goods"], 0.001)
	assert.InDelta(t, 188918.39, flag.Discrepancy, 0.001)
}

func TestDeriveSuppliedSubtotalAgreementVerifies(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue: utils.Ptr(3621577.27),
		template.COGS:         utils.Ptr(432658.88),
		template.GrossProfit:  utils.Ptr(3188918.39),
	}, nil, nil)

	assert.Equal(t, models.StateVerified, res.States[template.GrossProfit])
	assert.Empty(t, res.Flags[template.GrossProfit].Reason)
}

func TestDeriveNullPropagation(t *testing.T) {
	e := newTestEngine(t)

	// Nothing supplied on the operating expense side: the strict NOI formula
	// must stay null rather than treating the missing rollup as zero.
	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue: utils.Ptr(1000.00),
		template.COGS:         utils.Ptr(100.00),
	}, nil, nil)

	assert.Nil(t, res.Values[template.TotalOperatingEx])
	assert.Nil(t, res.Values[template.NetOperatingIncome])
	assert.Equal(t, models.StateUnset, res.States[template.NetOperatingIncome])
}

func TestDeriveDifferenceWithUnreportedCostStaysNull(t *testing.T) {
	e := newTestEngine(t)

	// Revenue alone must not produce a gross profit equal to itself: an
	// unreported cost side is unknown, not zero.
	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.TotalRevenue: utils.Ptr(3621577.27),
	}, nil, nil)

	assert.Nil(t, res.Values[template.GrossProfit])
	assert.Equal(t, models.StateUnset, res.States[template.GrossProfit])
}

func TestDeriveDifferenceWithUnreportedMinuendStaysNull(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.COGS: utils.Ptr(432658.88),
	}, nil, nil)

	assert.Nil(t, res.Values[template.GrossProfit])
}

func TestDeriveNetIncomeRequiresTaxes(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.IncomeBeforeTaxes: utils.Ptr(500.00),
	}, nil, nil)
	assert.Nil(t, res.Values[template.NetIncome])

	res = e.Derive(models.IncomeStatement, map[string]*float64{
		template.IncomeBeforeTaxes: utils.Ptr(500.00),
		template.Taxes:             utils.Ptr(100.00),
	}, nil, nil)
	require.NotNil(t, res.Values[template.NetIncome])
	assert.InDelta(t, 400.00, *res.Values[template.NetIncome], 0.001)
}

func TestDeriveAggregateTreatsNullAsZero(t *testing.T) {
	e := newTestEngine(t)

	// One sibling reported is enough for an additive rollup.
	res := e.Derive(models.IncomeStatement, map[string]*float64{
		template.Administrative: utils.Ptr(250.00),
	}, nil, nil)

	require.NotNil(t, res.Values[template.TotalOperatingEx])
	assert.InDelta(t, 250.00, *res.Values[template.TotalOperatingEx], 0.001)
}

func TestDeriveMultiPathAgreementVerifies(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.BalanceSheet, map[string]*float64{
		template.CashEquivalents:    utils.Ptr(600.00),
		template.Inventory:          utils.Ptr(400.00),
		template.NetPPE:             utils.Ptr(1000.00),
		template.TotalCurrentAssets: utils.Ptr(1000.00),
		template.LongTermDebt:       utils.Ptr(1200.00),
		template.CommonStock:        utils.Ptr(800.00),
	}, nil, nil)

	// Both Total Assets paths resolve to 2000 and agree.
	require.NotNil(t, res.Values[template.TotalAssets])
	assert.InDelta(t, 2000.00, *res.Values[template.TotalAssets], 0.001)
	assert.Equal(t, models.StateVerified, res.States[template.TotalAssets])
}

func TestDeriveAnnotationBecomesFlag(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement,
		map[string]*float64{
			template.TotalRevenue: utils.Ptr(500.00),
		},
		map[string]models.FlagAnnotation{
			template.TotalRevenue: {Reason: "classifier low confidence"},
		}, nil)

	assert.Equal(t, models.StateFlagged, res.States[template.TotalRevenue])
	assert.Equal(t, "classifier low confidence", res.Flags[template.TotalRevenue].Reason)
}

func TestDeriveCorrectedFieldIsAuthoritative(t *testing.T) {
	e := newTestEngine(t)

	// Analyst says gross profit is 900 even though the components say 800.
	res := e.Derive(models.IncomeStatement,
		map[string]*float64{
			template.TotalRevenue: utils.Ptr(1000.00),
			template.COGS:         utils.Ptr(200.00),
			template.GrossProfit:  utils.Ptr(900.00),
		}, nil,
		map[string]bool{template.GrossProfit: true})

	require.NotNil(t, res.Values[template.GrossProfit])
	assert.InDelta(t, 900.00, *res.Values[template.GrossProfit], 0.001)
	_, flagged := res.Flags[template.GrossProfit]
	assert.False(t, flagged, "corrected fields must not be re-flagged")

	// Dependents consume the corrected value, not the recomputed one.
	require.NotNil(t, res.Values[template.GrossProfitMargin])
	assert.InDelta(t, 90.00, *res.Values[template.GrossProfitMargin], 0.001)
}

func TestDeriveUnknownSuppliedFieldIgnored(t *testing.T) {
	e := newTestEngine(t)

	res := e.Derive(models.IncomeStatement, map[string]*float64{
		"Imaginary Line Item":  utils.Ptr(123.45),
		template.TotalRevenue: utils.Ptr(500.00),
	}, nil, nil)

	_, exists := res.Values["Imaginary Line Item"]
	assert.False(t, exists)
	require.NotNil(t, res.Values[template.TotalRevenue])
}
