package template

import (
	"github.com/username/finloader/backend/src/models"
)

// Field ids of the firm template. These are the exact row labels of the
// loader template and double as map keys everywhere downstream.
const (
	GrossRevenue = "Gross Revenue"
	NetRevenue   = "Net Revenue"
	TotalRevenue = "Total Revenue"

	COGS              = "COGS"
	COGSDepreciation  = "COGS - Depreciation & Amortization"
	GrossProfit       = "Gross Profit"
	GrossProfitMargin = "Gross Profit Margin %"

	SalesMarketing   = "Sales & Marketing Expenses"
	Administrative   = "Administrative Expenses"
	Compensation     = "Compensation & Benefits Expense"
	ResearchDev      = "Research & Development"
	RentExpense      = "Rent Expense"
	ManagementFee    = "Management Fee Expense"
	OtherOperating   = "Other Operating Expenses"
	TotalOperatingEx = "Total Operating Expenses"

	NetOperatingIncome = "Net Operating Income"

	DepreciationAmort  = "Depreciation & Amortization"
	LossGainAssets     = "Loss/(Gain) on Assets, Debt, FX"
	NonOperatingEx     = "Non-Operating Expenses"
	NonOperatingExDA   = "Non-Operating Expenses - Depreciation & Amortization"
	InterestExpense    = "Interest Expense/(Income)"
	OtherIncome        = "Other Income"
	OtherExpenses      = "Other Expenses"
	TotalExpenseIncome = "Total Expense/(Income)"

	IncomeBeforeTaxes = "Income (Loss) Before Taxes"
	Taxes             = "Taxes"
	NetIncome         = "Net Income (Loss)"

	EBIT                 = "EBIT"
	EBITDAStandard       = "EBITDA - Standard"
	EBITDAAdjustments    = "EBITDA Adjustments"
	AdjEBITDAStandard    = "Adjusted EBITDA - Standard"
	EBITDAReported       = "EBITDA - Reported"
	AdjEBITDAReported    = "Adjusted EBITDA - Reported"
	CovenantEBITDA       = "Covenant EBITDA"
	EBITDAStdMargin      = "EBITDA - Standard Margin %"
	AdjEBITDAStdMargin   = "Adjusted EBITDA - Standard Margin %"
	AdjEBITDARepMargin   = "Adjusted EBITDA - Reported Margin %"
	CovenantEBITDAMargin = "Covenant EBITDA Margin %"

	CashEquivalents       = "Cash & Equivalents"
	AccountsReceivable    = "Accounts Receivable"
	Inventory             = "Inventory"
	PrepaidExpenses       = "Prepaid Expenses"
	OtherCurrentAssets    = "Other Current Assets"
	TotalCurrentAssets    = "Total Current Assets"
	NetPPE                = "Net Property, Plant & Equipment"
	IntangibleAssets      = "Intangible Assets"
	Goodwill              = "Goodwill"
	OtherNonCurrentAssets = "Other Non-Current Assets"
	TotalNonCurrentAssets = "Total Non-Current Assets"
	TotalAssets           = "Total Assets"

	AccountsPayable       = "Accounts Payable"
	AccruedLiabilities    = "Accrued Liabilities"
	ShortTermDebt         = "Short-Term Debt"
	CurrentPortionLTD     = "Current Portion of Long-Term Debt"
	OtherCurrentLiab      = "Other Current Liabilities"
	TotalCurrentLiab      = "Total Current Liabilities"
	LongTermDebt          = "Long-Term Debt"
	OtherNonCurrentLiab   = "Other Non-Current Liabilities"
	TotalNonCurrentLiab   = "Total Non-Current Liabilities"
	TotalLiabilities      = "Total Liabilities"

	CommonStock       = "Common Stock"
	AdditionalPaidIn  = "Additional Paid-In Capital"
	RetainedEarnings  = "Retained Earnings"
	OtherEquity       = "Other Equity"
	TotalEquity       = "Total Equity"
)

func leaf(id string, stmt models.StatementType, sec Section) Field {
	return Field{ID: id, Statement: stmt, Section: sec, Kind: KindLeaf, Unit: UnitCurrency}
}

func derived(id string, stmt models.StatementType, sec Section, formulas ...Formula) Field {
	return Field{ID: id, Statement: stmt, Section: sec, Kind: KindDerived, Unit: UnitCurrency, Formulas: formulas}
}

func margin(id string, sec Section, numerator, base string) Field {
	return Field{ID: id, Statement: models.IncomeStatement, Section: sec, Kind: KindMargin, Unit: UnitPercent, Numerator: numerator, Base: base}
}

func sum(name string, fields ...string) Formula {
	f := Formula{Name: name, Aggregate: true}
	for _, id := range fields {
		f.Terms = append(f.Terms, Term{Field: id, Coeff: 1})
	}
	return f
}

// BuiltinFields returns the compiled-in firm template, income statement first,
// each statement in canonical row order.
func BuiltinFields() []Field {
	is := models.IncomeStatement
	bs := models.BalanceSheet

	return []Field{
		leaf(GrossRevenue, is, SectionRevenue),
		leaf(NetRevenue, is, SectionRevenue),
		leaf(TotalRevenue, is, SectionRevenue),

		leaf(COGS, is, SectionCOGS),
		leaf(COGSDepreciation, is, SectionCOGS),
		derived(GrossProfit, is, SectionCOGS, Formula{
			Name:      "revenue less cost of goods",
			Aggregate: true,
			Terms: []Term{
				{Field: TotalRevenue, Coeff: 1},
				{Field: COGS, Coeff: -1},
				{Field: COGSDepreciation, Coeff: -1},
			},
		}),
		margin(GrossProfitMargin, SectionCOGS, GrossProfit, TotalRevenue),

		leaf(SalesMarketing, is, SectionOpEx),
		leaf(Administrative, is, SectionOpEx),
		leaf(Compensation, is, SectionOpEx),
		leaf(ResearchDev, is, SectionOpEx),
		leaf(RentExpense, is, SectionOpEx),
		leaf(ManagementFee, is, SectionOpEx),
		leaf(OtherOperating, is, SectionOpEx),
		derived(TotalOperatingEx, is, SectionOpEx,
			sum("operating expense rollup",
				SalesMarketing, Administrative, Compensation, ResearchDev,
				RentExpense, ManagementFee, OtherOperating)),
		derived(NetOperatingIncome, is, SectionOpEx, Formula{
			Name: "gross profit less operating expenses",
			Terms: []Term{
				{Field: GrossProfit, Coeff: 1},
				{Field: TotalOperatingEx, Coeff: -1},
			},
		}),

		leaf(DepreciationAmort, is, SectionBelowLine),
		leaf(LossGainAssets, is, SectionBelowLine),
		leaf(NonOperatingEx, is, SectionBelowLine),
		leaf(NonOperatingExDA, is, SectionBelowLine),
		leaf(InterestExpense, is, SectionBelowLine),
		leaf(OtherIncome, is, SectionBelowLine),
		leaf(OtherExpenses, is, SectionBelowLine),
		derived(TotalExpenseIncome, is, SectionBelowLine, Formula{
			Name:      "below the line rollup",
			Aggregate: true,
			Terms: []Term{
				{Field: DepreciationAmort, Coeff: 1},
				{Field: LossGainAssets, Coeff: 1},
				{Field: NonOperatingEx, Coeff: 1},
				{Field: NonOperatingExDA, Coeff: 1},
				{Field: InterestExpense, Coeff: 1},
				{Field: OtherIncome, Coeff: -1},
				{Field: OtherExpenses, Coeff: 1},
			},
		}),

		derived(IncomeBeforeTaxes, is, SectionPretax, Formula{
			Name: "operating income less below the line",
			Terms: []Term{
				{Field: NetOperatingIncome, Coeff: 1},
				{Field: TotalExpenseIncome, Coeff: -1},
			},
		}),
		leaf(Taxes, is, SectionPretax),
		derived(NetIncome, is, SectionPretax, Formula{
			Name:      "pre-tax income less taxes",
			Aggregate: true,
			Terms: []Term{
				{Field: IncomeBeforeTaxes, Coeff: 1},
				{Field: Taxes, Coeff: -1},
			},
		}),

		// EBIT carries two independent derivation paths; the engine
		// cross-checks them and flags disagreement.
		derived(EBIT, is, SectionEBITDA,
			Formula{
				Name:      "from pre-tax income",
				Aggregate: true,
				Terms: []Term{
					{Field: IncomeBeforeTaxes, Coeff: 1},
					{Field: InterestExpense, Coeff: 1},
				},
			},
			Formula{
				Name:      "from net income",
				Aggregate: true,
				Terms: []Term{
					{Field: NetIncome, Coeff: 1},
					{Field: Taxes, Coeff: 1},
					{Field: InterestExpense, Coeff: 1},
				},
			}),
		derived(EBITDAStandard, is, SectionEBITDA, Formula{
			Name:      "EBIT plus depreciation and amortization",
			Aggregate: true,
			Terms: []Term{
				{Field: EBIT, Coeff: 1},
				{Field: DepreciationAmort, Coeff: 1},
				{Field: COGSDepreciation, Coeff: 1},
				{Field: NonOperatingExDA, Coeff: 1},
			},
		}),
		leaf(EBITDAAdjustments, is, SectionEBITDA),
		derived(AdjEBITDAStandard, is, SectionEBITDA,
			sum("standard EBITDA plus adjustments", EBITDAStandard, EBITDAAdjustments)),
		leaf(EBITDAReported, is, SectionEBITDA),
		derived(AdjEBITDAReported, is, SectionEBITDA,
			sum("reported EBITDA plus adjustments", EBITDAReported, EBITDAAdjustments)),
		leaf(CovenantEBITDA, is, SectionEBITDA),

		margin(EBITDAStdMargin, SectionMargins, EBITDAStandard, TotalRevenue),
		margin(AdjEBITDAStdMargin, SectionMargins, AdjEBITDAStandard, TotalRevenue),
		margin(AdjEBITDARepMargin, SectionMargins, AdjEBITDAReported, TotalRevenue),
		margin(CovenantEBITDAMargin, SectionMargins, CovenantEBITDA, TotalRevenue),

		leaf(CashEquivalents, bs, SectionAssets),
		leaf(AccountsReceivable, bs, SectionAssets),
		leaf(Inventory, bs, SectionAssets),
		leaf(PrepaidExpenses, bs, SectionAssets),
		leaf(OtherCurrentAssets, bs, SectionAssets),
		derived(TotalCurrentAssets, bs, SectionAssets,
			sum("current assets rollup",
				CashEquivalents, AccountsReceivable, Inventory, PrepaidExpenses, OtherCurrentAssets)),
		leaf(NetPPE, bs, SectionAssets),
		leaf(IntangibleAssets, bs, SectionAssets),
		leaf(Goodwill, bs, SectionAssets),
		leaf(OtherNonCurrentAssets, bs, SectionAssets),
		derived(TotalNonCurrentAssets, bs, SectionAssets,
			sum("non-current assets rollup",
				NetPPE, IntangibleAssets, Goodwill, OtherNonCurrentAssets)),
		derived(TotalAssets, bs, SectionAssets,
			sum("current plus non-current", TotalCurrentAssets, TotalNonCurrentAssets),
			sum("from components",
				CashEquivalents, AccountsReceivable, Inventory, PrepaidExpenses, OtherCurrentAssets,
				NetPPE, IntangibleAssets, Goodwill, OtherNonCurrentAssets)),

		leaf(AccountsPayable, bs, SectionLiabilities),
		leaf(AccruedLiabilities, bs, SectionLiabilities),
		leaf(ShortTermDebt, bs, SectionLiabilities),
		leaf(CurrentPortionLTD, bs, SectionLiabilities),
		leaf(OtherCurrentLiab, bs, SectionLiabilities),
		derived(TotalCurrentLiab, bs, SectionLiabilities,
			sum("current liabilities rollup",
				AccountsPayable, AccruedLiabilities, ShortTermDebt, CurrentPortionLTD, OtherCurrentLiab)),
		leaf(LongTermDebt, bs, SectionLiabilities),
		leaf(OtherNonCurrentLiab, bs, SectionLiabilities),
		derived(TotalNonCurrentLiab, bs, SectionLiabilities,
			sum("non-current liabilities rollup", LongTermDebt, OtherNonCurrentLiab)),
		derived(TotalLiabilities, bs, SectionLiabilities,
			sum("current plus non-current", TotalCurrentLiab, TotalNonCurrentLiab),
			sum("from components",
				AccountsPayable, AccruedLiabilities, ShortTermDebt, CurrentPortionLTD, OtherCurrentLiab,
				LongTermDebt, OtherNonCurrentLiab)),

		leaf(CommonStock, bs, SectionEquity),
		leaf(AdditionalPaidIn, bs, SectionEquity),
		leaf(RetainedEarnings, bs, SectionEquity),
		leaf(OtherEquity, bs, SectionEquity),
		derived(TotalEquity, bs, SectionEquity,
			sum("equity rollup", CommonStock, AdditionalPaidIn, RetainedEarnings, OtherEquity)),
	}
}

// BuiltinChecks returns the compiled-in validation checks. The balance sheet
// identity is marked AlwaysRun: it is evaluated with missing components
// treated as zero, never silently passed.
func BuiltinChecks() []Check {
	is := models.IncomeStatement
	bs := models.BalanceSheet

	return []Check{
		{
			Name:      "Gross Profit Check",
			Statement: is,
			Field:     GrossProfit,
			Terms: []Term{
				{Field: TotalRevenue, Coeff: 1},
				{Field: COGS, Coeff: -1},
				{Field: COGSDepreciation, Coeff: -1},
			},
			Scope: []string{GrossProfit, TotalRevenue, COGS, COGSDepreciation},
		},
		{
			Name:      "Operating Expense Rollup",
			Statement: is,
			Field:     TotalOperatingEx,
			Terms: []Term{
				{Field: SalesMarketing, Coeff: 1},
				{Field: Administrative, Coeff: 1},
				{Field: Compensation, Coeff: 1},
				{Field: ResearchDev, Coeff: 1},
				{Field: RentExpense, Coeff: 1},
				{Field: ManagementFee, Coeff: 1},
				{Field: OtherOperating, Coeff: 1},
			},
			Scope: []string{TotalOperatingEx},
		},
		{
			Name:      "Net Operating Income Check",
			Statement: is,
			Field:     NetOperatingIncome,
			Terms: []Term{
				{Field: GrossProfit, Coeff: 1},
				{Field: TotalOperatingEx, Coeff: -1},
			},
			Scope: []string{NetOperatingIncome, GrossProfit, TotalOperatingEx},
		},
		{
			Name:      "Pre-Tax Income Check",
			Statement: is,
			Field:     IncomeBeforeTaxes,
			Terms: []Term{
				{Field: NetOperatingIncome, Coeff: 1},
				{Field: TotalExpenseIncome, Coeff: -1},
			},
			Scope: []string{IncomeBeforeTaxes, NetOperatingIncome, TotalExpenseIncome},
		},
		{
			Name:      "Net Income Check",
			Statement: is,
			Field:     NetIncome,
			Terms: []Term{
				{Field: IncomeBeforeTaxes, Coeff: 1},
				{Field: Taxes, Coeff: -1},
			},
			Scope: []string{NetIncome, IncomeBeforeTaxes, Taxes},
		},
		{
			Name:      "EBITDA Cross-Check",
			Statement: is,
			Field:     EBITDAStandard,
			Terms: []Term{
				{Field: EBIT, Coeff: 1},
				{Field: DepreciationAmort, Coeff: 1},
				{Field: COGSDepreciation, Coeff: 1},
				{Field: NonOperatingExDA, Coeff: 1},
			},
			Scope: []string{EBITDAStandard, EBIT},
		},
		{
			Name:      "Current Assets Rollup",
			Statement: bs,
			Field:     TotalCurrentAssets,
			Terms: []Term{
				{Field: CashEquivalents, Coeff: 1},
				{Field: AccountsReceivable, Coeff: 1},
				{Field: Inventory, Coeff: 1},
				{Field: PrepaidExpenses, Coeff: 1},
				{Field: OtherCurrentAssets, Coeff: 1},
			},
			Scope: []string{TotalCurrentAssets},
		},
		{
			Name:      "Total Assets Rollup",
			Statement: bs,
			Field:     TotalAssets,
			Terms: []Term{
				{Field: TotalCurrentAssets, Coeff: 1},
				{Field: TotalNonCurrentAssets, Coeff: 1},
			},
			Scope: []string{TotalAssets, TotalCurrentAssets, TotalNonCurrentAssets},
		},
		{
			Name:      "Current Liabilities Rollup",
			Statement: bs,
			Field:     TotalCurrentLiab,
			Terms: []Term{
				{Field: AccountsPayable, Coeff: 1},
				{Field: AccruedLiabilities, Coeff: 1},
				{Field: ShortTermDebt, Coeff: 1},
				{Field: CurrentPortionLTD, Coeff: 1},
				{Field: OtherCurrentLiab, Coeff: 1},
			},
			Scope: []string{TotalCurrentLiab},
		},
		{
			Name:      "Total Liabilities Rollup",
			Statement: bs,
			Field:     TotalLiabilities,
			Terms: []Term{
				{Field: TotalCurrentLiab, Coeff: 1},
				{Field: TotalNonCurrentLiab, Coeff: 1},
			},
			Scope: []string{TotalLiabilities, TotalCurrentLiab, TotalNonCurrentLiab},
		},
		{
			Name:      "Equity Rollup",
			Statement: bs,
			Field:     TotalEquity,
			Terms: []Term{
				{Field: CommonStock, Coeff: 1},
				{Field: AdditionalPaidIn, Coeff: 1},
				{Field: RetainedEarnings, Coeff: 1},
				{Field: OtherEquity, Coeff: 1},
			},
			Scope: []string{TotalEquity},
		},
		{
			Name:      "Balance Sheet Identity",
			Statement: bs,
			Field:     TotalAssets,
			Terms: []Term{
				{Field: TotalLiabilities, Coeff: 1},
				{Field: TotalEquity, Coeff: 1},
			},
			Scope:     []string{TotalAssets, TotalLiabilities, TotalEquity},
			AlwaysRun: true,
		},
	}
}

// BuiltinGraph builds the compiled-in template graph. Panics on error since
// the builtin definition is fixed at compile time.
func BuiltinGraph() *Graph {
	g, err := NewGraph(BuiltinFields(), BuiltinChecks())
	if err != nil {
		panic("builtin template graph invalid: " + err.Error())
	}
	return g
}
