package calc

import (
	"fmt"
	"math"
)

// =============================================================================
// TIME VALUE OF MONEY
// =============================================================================

// FutureValue compounds a present value once per period.
// FV = PV * (1 + r)^n
func FutureValue(presentValue, rate float64, periods int) float64 {
	return presentValue * math.Pow(1+rate, float64(periods))
}

// CompoundInterestResult holds the outcome of a compounding schedule
type CompoundInterestResult struct {
	Principal      float64 `json:"principal"`
	FinalAmount    float64 `json:"final_amount"`
	InterestEarned float64 `json:"interest_earned"`
}

// CompoundInterest compounds principal n times per period.
// A = P * (1 + r/n)^(n*t)
func CompoundInterest(principal, rate float64, periods, compoundsPerPeriod int) (CompoundInterestResult, error) {
	if compoundsPerPeriod <= 0 {
		return CompoundInterestResult{}, fmt.Errorf("compounds per period must be positive, got %d", compoundsPerPeriod)
	}
	n := float64(compoundsPerPeriod)
	amount := principal * math.Pow(1+rate/n, n*float64(periods))
	return CompoundInterestResult{
		Principal:      principal,
		FinalAmount:    amount,
		InterestEarned: amount - principal,
	}, nil
}

// DiscountFactor returns 1 / (1 + r)^t.
func DiscountFactor(rate float64, period int) float64 {
	return 1 / math.Pow(1+rate, float64(period))
}

// PresentValue discounts a stream of cash flows received at the end of
// periods 1..n. It does not include any initial outlay.
func PresentValue(cashFlows []float64, rate float64) float64 {
	var pv float64
	for i, cf := range cashFlows {
		pv += cf * DiscountFactor(rate, i+1)
	}
	return pv
}

// NPVResult holds a net present value calculation
type NPVResult struct {
	NPV               float64 `json:"npv"`
	InitialInvestment float64 `json:"initial_investment"`
	TotalCashFlows    float64 `json:"total_cash_flows"`
	DiscountRate      float64 `json:"discount_rate"`
}

// NPV computes -I + sum(CF_t / (1+r)^t).
func NPV(initialInvestment float64, cashFlows []float64, discountRate float64) (NPVResult, error) {
	if discountRate <= -1 {
		return NPVResult{}, fmt.Errorf("discount rate must be greater than -100%%, got %.4f", discountRate)
	}
	var total float64
	for _, cf := range cashFlows {
		total += cf
	}
	return NPVResult{
		NPV:               PresentValue(cashFlows, discountRate) - initialInvestment,
		InitialInvestment: initialInvestment,
		TotalCashFlows:    total,
		DiscountRate:      discountRate,
	}, nil
}

// BreakEvenResult holds the break-even point in units and revenue
type BreakEvenResult struct {
	Units              float64 `json:"break_even_units"`
	Revenue            float64 `json:"break_even_revenue"`
	ContributionMargin float64 `json:"contribution_margin"`
}

// BreakEven returns FixedCosts / (Price - VariableCost).
// The price must exceed the variable cost per unit.
func BreakEven(fixedCosts, variableCostPerUnit, pricePerUnit float64) (BreakEvenResult, error) {
	margin := pricePerUnit - variableCostPerUnit
	if margin <= 0 {
		return BreakEvenResult{}, fmt.Errorf("price per unit (%.2f) must be greater than variable cost per unit (%.2f)", pricePerUnit, variableCostPerUnit)
	}
	units := fixedCosts / margin
	return BreakEvenResult{
		Units:              units,
		Revenue:            units * pricePerUnit,
		ContributionMargin: margin,
	}, nil
}
