package valuation

import (
	"fmt"

	"valuation_advisor/pkg/core/apperr"
)

// WACCInput parameters for calculating Cost of Capital.
// Market values share one currency-neutral scale; rates are fractions.
type WACCInput struct {
	MarketValueEquity float64
	MarketValueDebt   float64
	RiskFreeRate      float64
	Beta              float64
	MarketRiskPremium float64
	PreTaxCostOfDebt  float64
	TaxRate           float64
}

// WACCResult holds the calculated rates
type WACCResult struct {
	CostOfEquity       float64 `json:"cost_of_equity"`
	AfterTaxCostOfDebt float64 `json:"after_tax_cost_of_debt"`
	WeightEquity       float64 `json:"weight_equity"`
	WeightDebt         float64 `json:"weight_debt"`
	WACC               float64 `json:"wacc"`
}

// CostOfEquity applies CAPM: Ke = Rf + Beta * MRP
func CostOfEquity(riskFreeRate, beta, marketRiskPremium float64) float64 {
	return riskFreeRate + beta*marketRiskPremium
}

// CalculateWACC computes the Weighted Average Cost of Capital from market-value weights.
// It fails with ErrMissingCapitalStructure when E + D is zero, instead of dividing by zero.
func CalculateWACC(input WACCInput) (WACCResult, error) {
	e, d := input.MarketValueEquity, input.MarketValueDebt
	if e < 0 || d < 0 {
		return WACCResult{}, apperr.WithMessage(apperr.ErrMissingCapitalStructure,
			fmt.Sprintf("negative capital structure (equity=%.2f, debt=%.2f)", e, d))
	}
	v := e + d
	if v == 0 {
		return WACCResult{}, apperr.ErrMissingCapitalStructure
	}

	// 1. Cost of Equity (CAPM)
	ke := CostOfEquity(input.RiskFreeRate, input.Beta, input.MarketRiskPremium)

	// 2. Cost of Debt (After-tax)
	// Kd = PreTaxKd * (1 - t)
	kd := input.PreTaxCostOfDebt * (1 - input.TaxRate)

	// 3. Weights
	we := e / v
	wd := d / v

	// 4. WACC
	wacc := we*ke + wd*kd

	return WACCResult{
		CostOfEquity:       ke,
		AfterTaxCostOfDebt: kd,
		WeightEquity:       we,
		WeightDebt:         wd,
		WACC:               wacc,
	}, nil
}
