// Package recommend turns an assembled context document into a structured
// investment recommendation: it prompts the model, parses the reply under a
// strict contract and falls back to a deterministic rule when the reply is
// missing or invalid.
package recommend

import (
	"strings"
)

type Stance string

const (
	StanceBuy  Stance = "BUY"
	StanceHold Stance = "HOLD"
	StanceSell Stance = "SELL"
)

// RiskFlag is one of a fixed set of risk categories.
type RiskFlag string

const (
	RiskValuation     RiskFlag = "valuation"
	RiskLeverage      RiskFlag = "leverage"
	RiskLiquidity     RiskFlag = "liquidity"
	RiskProfitability RiskFlag = "profitability"
	RiskGrowth        RiskFlag = "growth"
	RiskDataQuality   RiskFlag = "data_quality"
	RiskMarket        RiskFlag = "market"
	RiskOther         RiskFlag = "other"
)

// AllRiskFlags lists every flag in canonical order.
var AllRiskFlags = []RiskFlag{
	RiskValuation, RiskLeverage, RiskLiquidity, RiskProfitability,
	RiskGrowth, RiskDataQuality, RiskMarket, RiskOther,
}

// Recommendation sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// FallbackMarker is included in every fallback rationale.
const FallbackMarker = "generated by fallback rule, model output unavailable or invalid."

// Recommendation is a value object; two recommendations with the same
// fields are interchangeable.
type Recommendation struct {
	Stance     Stance     `json:"stance"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale"`
	RiskFlags  []RiskFlag `json:"risk_flags"`
	Source     string     `json:"source"`
}

func (r Recommendation) IsFallback() bool { return r.Source == SourceFallback }

// HasRiskFlag reports whether f is set.
func (r Recommendation) HasRiskFlag(f RiskFlag) bool {
	for _, x := range r.RiskFlags {
		if x == f {
			return true
		}
	}
	return false
}

// normalizeFlags dedupes flags into canonical order. The result is never nil.
func normalizeFlags(flags map[RiskFlag]bool) []RiskFlag {
	out := []RiskFlag{}
	for _, f := range AllRiskFlags {
		if flags[f] {
			out = append(out, f)
		}
	}
	return out
}

func riskFlagList() string {
	names := make([]string, len(AllRiskFlags))
	for i, f := range AllRiskFlags {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
