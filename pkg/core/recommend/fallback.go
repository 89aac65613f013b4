package recommend

import (
	"fmt"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/valuation"
)

// Thresholds for the risk flags attached to a fallback recommendation.
const (
	leverageCeiling  = 2.0  // debt_to_equity above this flags leverage
	liquidityFloor   = 1.0  // current_ratio below this flags liquidity
	valuationCeiling = 40.0 // pe_ratio above this flags valuation
)

// Fallback derives a recommendation from metrics alone. It is pure and
// total: identical inputs give identical output and it never fails.
//
// BUY when the intrinsic value per share exceeds the market price by more
// than the margin, SELL when it falls short by more than the margin, HOLD
// otherwise or when the valuation rests on a missing capital structure or an
// invalid growth assumption.
func Fallback(m *valuation.MetricsResult, cfg Config) Recommendation {
	cfg = cfg.WithDefaults()
	rec := Recommendation{
		Stance:     StanceHold,
		Confidence: cfg.FallbackConfidence,
		Source:     SourceFallback,
	}
	if m == nil {
		rec.Rationale = "HOLD: no metrics available. " + FallbackMarker
		rec.RiskFlags = []RiskFlag{RiskDataQuality}
		return rec
	}

	flags := make(map[RiskFlag]bool)
	blocked := m.HasWarningCode(apperr.ErrMissingCapitalStructure.Code) ||
		m.HasWarningCode(apperr.ErrInvalidGrowthAssumption.Code)

	intrinsic, hasIntrinsic := m.IntrinsicValuePerShare()
	price, hasPrice := m.MarketPrice()

	var basis string
	switch {
	case blocked:
		basis = "valuation inputs are unreliable (missing capital structure or invalid growth assumption)"
		flags[RiskValuation] = true
	case !hasIntrinsic || !hasPrice || price <= 0:
		basis = "intrinsic value or market price unavailable"
	default:
		upside := (intrinsic - price) / price
		switch {
		case upside > cfg.FallbackMargin:
			rec.Stance = StanceBuy
		case upside < -cfg.FallbackMargin:
			rec.Stance = StanceSell
			flags[RiskValuation] = true
		}
		basis = fmt.Sprintf("intrinsic value %.2f vs market price %.2f (%+.1f%%, margin %.0f%%)",
			intrinsic, price, upside*100, cfg.FallbackMargin*100)
	}

	for _, w := range m.Warnings() {
		switch w.Code {
		case valuation.WarnDefaultAssumption, valuation.WarnMissingInput,
			apperr.ErrMissingCapitalStructure.Code, apperr.ErrInvalidGrowthAssumption.Code:
			flags[RiskDataQuality] = true
		}
	}
	if v, ok := m.Ratio(valuation.RatioDebtToEquity); ok && v > leverageCeiling {
		flags[RiskLeverage] = true
	}
	if v, ok := m.Ratio(valuation.RatioCurrent); ok && v < liquidityFloor {
		flags[RiskLiquidity] = true
	}
	if v, ok := m.Ratio(valuation.RatioProfitMargin); ok && v < 0 {
		flags[RiskProfitability] = true
	}
	if v, ok := m.Ratio(valuation.RatioPE); ok && v > valuationCeiling {
		flags[RiskValuation] = true
	}
	if g, _, ok := m.GrowthAssumptions(); ok && g < 0 {
		flags[RiskGrowth] = true
	}

	rec.RiskFlags = normalizeFlags(flags)
	rec.Rationale = fmt.Sprintf("%s for %s: %s. %s", rec.Stance, m.Symbol(), basis, FallbackMarker)
	return rec
}
