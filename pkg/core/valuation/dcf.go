package valuation

import (
	"fmt"
	"math"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/calc"
)

// DCFInput encapsulates all inputs required for a Discounted Cash Flow valuation
type DCFInput struct {
	BaseCashFlow      float64 // Latest free cash flow (period 0)
	GrowthRate        float64 // Explicit-horizon growth, e.g. 0.08
	TerminalGrowth    float64 // Perpetuity growth, e.g. 0.025
	DiscountRate      float64 // WACC
	Horizon           int     // Number of projected periods
	NetDebt           float64
	SharesOutstanding float64 // 0 when unknown
}

// DCFResult holds the valuation outputs
type DCFResult struct {
	ProjectedCashFlows []float64 `json:"projected_cash_flows"`
	PVCashFlows        float64   `json:"pv_cash_flows"`
	TerminalValue      float64   `json:"terminal_value"`
	PVTerminal         float64   `json:"pv_terminal_value"`
	EnterpriseValue    float64   `json:"enterprise_value"`
	EquityValue        float64   `json:"equity_value"`
	SharePrice         float64   `json:"intrinsic_value_per_share"`
	HasSharePrice      bool      `json:"has_share_price"`
}

// CalculateDCF performs a single-growth-stage DCF with a Gordon growth terminal value.
// Terminal growth must be strictly below the discount rate.
func CalculateDCF(input DCFInput) (DCFResult, error) {
	if input.Horizon <= 0 {
		return DCFResult{}, fmt.Errorf("dcf horizon must be positive, got %d", input.Horizon)
	}
	if input.DiscountRate <= -1 {
		return DCFResult{}, fmt.Errorf("dcf discount rate must be greater than -100%%, got %.4f", input.DiscountRate)
	}
	if input.TerminalGrowth >= input.DiscountRate {
		return DCFResult{}, apperr.WithMessage(apperr.ErrInvalidGrowthAssumption,
			fmt.Sprintf("terminal growth %.4f must be below discount rate %.4f", input.TerminalGrowth, input.DiscountRate))
	}

	// 1. Project free cash flow
	projected := make([]float64, input.Horizon)
	cf := input.BaseCashFlow
	for i := range projected {
		cf *= 1 + input.GrowthRate
		projected[i] = cf
	}

	// 2. Discount explicit horizon
	pvFCF := calc.PresentValue(projected, input.DiscountRate)

	// 3. Terminal Value (Gordon Growth)
	// TV = FCF_n * (1 + g) / (WACC - g)
	terminalCF := projected[len(projected)-1] * (1 + input.TerminalGrowth)
	tv := terminalCF / (input.DiscountRate - input.TerminalGrowth)
	pvTerminal := tv * calc.DiscountFactor(input.DiscountRate, input.Horizon)

	// 4. Aggregation
	ev := pvFCF + pvTerminal
	if math.IsNaN(ev) || math.IsInf(ev, 0) {
		return DCFResult{}, fmt.Errorf("dcf produced a non-finite enterprise value")
	}
	eqVal := ev - input.NetDebt

	res := DCFResult{
		ProjectedCashFlows: projected,
		PVCashFlows:        pvFCF,
		TerminalValue:      tv,
		PVTerminal:         pvTerminal,
		EnterpriseValue:    ev,
		EquityValue:        eqVal,
	}
	if input.SharesOutstanding > 0 {
		res.SharePrice = eqVal / input.SharesOutstanding
		res.HasSharePrice = true
	}
	return res, nil
}
