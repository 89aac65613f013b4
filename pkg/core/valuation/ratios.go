package valuation

import (
	"fmt"

	"valuation_advisor/pkg/core/calc"
	"valuation_advisor/pkg/core/record"
)

// Ratio names produced by ComputeRatios.
const (
	RatioPE           = "pe_ratio"
	RatioPriceToBook  = "price_to_book"
	RatioDebtToEquity = "debt_to_equity"
	RatioCurrent      = "current_ratio"
	RatioROE          = "roe"
	RatioROA          = "roa"
	RatioProfitMargin = "profit_margin"
	RatioEBITMargin   = "ebit_margin"
	RatioEVToEBIT     = "ev_to_ebit"
)

type ratioDef struct {
	name   string
	inputs []record.LineItem
	// split returns numerator and denominator from known inputs.
	split func(v func(record.LineItem) float64) (float64, float64)
	// positiveDen rejects non-positive denominators, not only zero.
	positiveDen bool
}

var ratioDefs = []ratioDef{
	{
		name:   RatioPE,
		inputs: []record.LineItem{record.MarketCap, record.NetIncome},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			return v(record.MarketCap), v(record.NetIncome)
		},
		positiveDen: true,
	},
	{
		name:   RatioPriceToBook,
		inputs: []record.LineItem{record.MarketCap, record.TotalEquity},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			return v(record.MarketCap), v(record.TotalEquity)
		},
	},
	{
		name:   RatioDebtToEquity,
		inputs: []record.LineItem{record.TotalDebt, record.TotalEquity},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			return v(record.TotalDebt), v(record.TotalEquity)
		},
	},
	{
		name:   RatioCurrent,
		inputs: []record.LineItem{record.CurrentAssets, record.CurrentLiabilities},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			return v(record.CurrentAssets), v(record.CurrentLiabilities)
		},
	},
	{
		name:   RatioROE,
		inputs: []record.LineItem{record.NetIncome, record.TotalEquity},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			return v(record.NetIncome), v(record.TotalEquity)
		},
	},
	{
		name:   RatioROA,
		inputs: []record.LineItem{record.NetIncome, record.TotalAssets},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			return v(record.NetIncome), v(record.TotalAssets)
		},
	},
	{
		name:   RatioProfitMargin,
		inputs: []record.LineItem{record.NetIncome, record.Revenue},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			return v(record.NetIncome), v(record.Revenue)
		},
	},
	{
		name:   RatioEBITMargin,
		inputs: []record.LineItem{record.EBIT, record.Revenue},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			return v(record.EBIT), v(record.Revenue)
		},
	},
	{
		name:   RatioEVToEBIT,
		inputs: []record.LineItem{record.MarketCap, record.TotalDebt, record.Cash, record.EBIT},
		split: func(v func(record.LineItem) float64) (float64, float64) {
			ev := v(record.MarketCap) + v(record.TotalDebt) - v(record.Cash)
			return ev, v(record.EBIT)
		},
	},
}

// ComputeRatios evaluates every ratio independently. A ratio with missing
// inputs or an unusable denominator is omitted and reported as a warning.
func ComputeRatios(rec record.FinancialRecord) (map[string]float64, []Warning) {
	ratios := make(map[string]float64, len(ratioDefs))
	var warnings []Warning

	get := func(item record.LineItem) float64 {
		v, _ := rec.Get(item)
		return v
	}

	for _, def := range ratioDefs {
		if missing := rec.MissingItems(def.inputs...); len(missing) > 0 {
			warnings = append(warnings, Warning{
				Field:  def.name,
				Reason: fmt.Sprintf("%s omitted: missing %s", def.name, joinItems(missing)),
				Code:   WarnMissingInput,
			})
			continue
		}

		num, den := def.split(get)
		if def.positiveDen && den < 0 {
			warnings = append(warnings, Warning{
				Field:  def.name,
				Reason: fmt.Sprintf("%s omitted: negative denominator", def.name),
				Code:   WarnOutOfRange,
			})
			continue
		}
		ratio, ok := calc.SafeDiv(num, den)
		if !ok {
			warnings = append(warnings, Warning{
				Field:  def.name,
				Reason: fmt.Sprintf("%s omitted: zero denominator", def.name),
				Code:   WarnZeroDenominator,
			})
			continue
		}
		ratios[def.name] = ratio
	}
	return ratios, warnings
}
