package rag

import (
	"fmt"
	"math"
	"strings"

	"valuation_advisor/pkg/core/valuation"
)

// SummarizeMetrics renders a deterministic plain-text summary of a result.
// Identical results always produce identical text.
func SummarizeMetrics(m *valuation.MetricsResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s", m.Symbol())
	if m.Period() != "" {
		fmt.Fprintf(&b, " (%s)", m.Period())
	}
	b.WriteString("\n")

	if w, ok := m.WACCDetail(); ok {
		fmt.Fprintf(&b, "WACC: %s (cost of equity %s, after-tax cost of debt %s, equity weight %s)\n",
			pct(w.WACC), pct(w.CostOfEquity), pct(w.AfterTaxCostOfDebt), pct(w.WeightEquity))
	} else {
		b.WriteString("WACC: unavailable\n")
	}

	if d, ok := m.DCF(); ok {
		fmt.Fprintf(&b, "DCF enterprise value: %s; equity value: %s; terminal value: %s\n",
			amount(d.EnterpriseValue), amount(d.EquityValue), amount(d.TerminalValue))
		if g, tg, ok := m.GrowthAssumptions(); ok {
			fmt.Fprintf(&b, "Growth assumptions: %s for %d periods, %s terminal\n",
				pct(g), len(d.ProjectedCashFlows), pct(tg))
		}
	} else {
		b.WriteString("DCF: unavailable\n")
	}

	if v, ok := m.IntrinsicValuePerShare(); ok {
		fmt.Fprintf(&b, "Intrinsic value per share: %.2f\n", v)
	}
	if p, ok := m.MarketPrice(); ok {
		fmt.Fprintf(&b, "Market price: %.2f", p)
		if up, ok := m.Upside(); ok {
			fmt.Fprintf(&b, "; upside: %s", signedPct(up))
		}
		b.WriteString("\n")
	}

	names := m.RatioNames()
	if len(names) > 0 {
		b.WriteString("Ratios:")
		for _, name := range names {
			v, _ := m.Ratio(name)
			fmt.Fprintf(&b, " %s=%.4g", name, v)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Ratios: none available\n")
	}

	if ws := m.Warnings(); len(ws) > 0 {
		b.WriteString("Warnings:\n")
		for _, w := range ws {
			fmt.Fprintf(&b, "- %s: %s\n", w.Field, w.Reason)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func pct(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

func signedPct(f float64) string {
	return fmt.Sprintf("%+.1f%%", f*100)
}

// amount scales large currency-neutral figures for readability.
func amount(v float64) string {
	a := math.Abs(v)
	switch {
	case a >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case a >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case a >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
