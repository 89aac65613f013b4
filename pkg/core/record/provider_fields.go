package record

import (
	"fmt"
	"strconv"
	"strings"
)

// providerAliases maps data-provider field names onto line items.
// Snake-case line item names are always accepted as-is.
var providerAliases = map[string]LineItem{
	"totalRevenue":            Revenue,
	"total_revenue":           Revenue,
	"operatingIncome":         EBIT,
	"netIncome":               NetIncome,
	"freeCashflow":            FreeCashFlow,
	"freeCashFlow":            FreeCashFlow,
	"netDebt":                 NetDebt,
	"totalCash":               Cash,
	"cash":                    Cash,
	"sharesOutstanding":       SharesOutstanding,
	"effectiveTaxRate":        TaxRate,
	"riskFreeRate":            RiskFreeRate,
	"marketRiskPremium":       MarketRiskPremium,
	"costOfDebt":              CostOfDebt,
	"marketCap":               MarketCap,
	"totalDebt":               TotalDebt,
	"totalAssets":             TotalAssets,
	"totalEquity":             TotalEquity,
	"totalCurrentAssets":      CurrentAssets,
	"totalCurrentLiabilities": CurrentLiabilities,
	"currentPrice":            CurrentPrice,
	"revenueGrowth":           GrowthRate,
	"terminalGrowthRate":      TerminalGrowthRate,
}

// FromProviderFields builds a record from a loosely-typed provider payload.
// Unknown keys are ignored; nil or non-numeric values stay unknown.
func FromProviderFields(symbol, period string, raw map[string]any) FinancialRecord {
	rec := New(strings.ToUpper(strings.TrimSpace(symbol)), period)

	for key, value := range raw {
		item, ok := providerAliases[key]
		if !ok {
			item = LineItem(key)
			if !IsKnown(item) {
				continue
			}
		}
		if f, ok := toFloat(value); ok {
			rec.Set(item, f)
		}
	}

	if hist, ok := raw["revenue_history"].([]any); ok {
		for _, h := range hist {
			if f, ok := toFloat(h); ok {
				rec.RevenueHistory = append(rec.RevenueHistory, f)
			}
		}
	}
	return rec
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := parseNumber(n)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseNumber accepts plain numbers and percentages ("5%" -> 0.05).
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return 0, err
		}
		return f / 100, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseOverrides parses caller overrides written as "key=value".
// Keys may be line item names or provider aliases.
func ParseOverrides(pairs []string) (map[LineItem]float64, error) {
	out := make(map[LineItem]float64, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("override %q: expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		item, known := providerAliases[key]
		if !known {
			item = LineItem(key)
			if !IsKnown(item) {
				return nil, fmt.Errorf("override %q: unknown line item %q", pair, key)
			}
		}
		f, err := parseNumber(value)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", pair, err)
		}
		out[item] = f
	}
	return out, nil
}
