package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"valuation_advisor/pkg/core/calc"
	"valuation_advisor/pkg/core/valuation"
)

// Payload is the union of the inputs every mode reads; unused fields are ignored.
type Payload struct {
	PresentValue       float64   `json:"present_value"`
	Rate               float64   `json:"rate"`
	Periods            int       `json:"periods"`
	CompoundsPerPeriod int       `json:"compounds_per_period"`
	InitialInvestment  float64   `json:"initial_investment"`
	CashFlows          []float64 `json:"cash_flows"`
	FixedCosts         float64   `json:"fixed_costs"`
	VariableCost       float64   `json:"variable_cost"`
	Price              float64   `json:"price"`
	Series             []float64 `json:"series"`
	Current            float64   `json:"current"`
	Prior              float64   `json:"prior"`

	MarketValueEquity float64 `json:"market_value_equity"`
	MarketValueDebt   float64 `json:"market_value_debt"`
	RiskFreeRate      float64 `json:"risk_free_rate"`
	Beta              float64 `json:"beta"`
	MarketRiskPremium float64 `json:"market_risk_premium"`
	PreTaxCostOfDebt  float64 `json:"pre_tax_cost_of_debt"`
	TaxRate           float64 `json:"tax_rate"`

	BaseCashFlow      float64 `json:"base_cash_flow"`
	GrowthRate        float64 `json:"growth_rate"`
	TerminalGrowth    float64 `json:"terminal_growth"`
	DiscountRate      float64 `json:"discount_rate"`
	Horizon           int     `json:"horizon"`
	NetDebt           float64 `json:"net_debt"`
	SharesOutstanding float64 `json:"shares_outstanding"`
}

func main() {
	mode := flag.String("mode", "", "Mode: fv, compound, npv, breakeven, growth, cagr, wacc or dcf")
	dataStr := flag.String("data", "", "JSON data payload")
	flag.Parse()

	if *dataStr == "" {
		fmt.Fprintln(os.Stderr, "Error: No data provided")
		os.Exit(1)
	}

	var data Payload
	if err := json.Unmarshal([]byte(*dataStr), &data); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling data: %v\n", err)
		os.Exit(1)
	}

	out, err := run(*mode, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func run(mode string, data Payload) (any, error) {
	switch mode {
	case "fv":
		return map[string]float64{"future_value": calc.FutureValue(data.PresentValue, data.Rate, data.Periods)}, nil
	case "compound":
		n := data.CompoundsPerPeriod
		if n == 0 {
			n = 1
		}
		return calc.CompoundInterest(data.PresentValue, data.Rate, data.Periods, n)
	case "npv":
		return calc.NPV(data.InitialInvestment, data.CashFlows, data.Rate)
	case "breakeven":
		return calc.BreakEven(data.FixedCosts, data.VariableCost, data.Price)
	case "growth":
		return map[string]float64{"growth_rate": calc.GrowthRate(data.Current, data.Prior)}, nil
	case "cagr":
		g, ok := calc.SeriesCAGR(data.Series)
		if !ok {
			return nil, fmt.Errorf("cagr needs at least two positive endpoints")
		}
		return map[string]float64{"cagr": g}, nil
	case "wacc":
		return valuation.CalculateWACC(valuation.WACCInput{
			MarketValueEquity: data.MarketValueEquity,
			MarketValueDebt:   data.MarketValueDebt,
			RiskFreeRate:      data.RiskFreeRate,
			Beta:              data.Beta,
			MarketRiskPremium: data.MarketRiskPremium,
			PreTaxCostOfDebt:  data.PreTaxCostOfDebt,
			TaxRate:           data.TaxRate,
		})
	case "dcf":
		return valuation.CalculateDCF(valuation.DCFInput{
			BaseCashFlow:      data.BaseCashFlow,
			GrowthRate:        data.GrowthRate,
			TerminalGrowth:    data.TerminalGrowth,
			DiscountRate:      data.DiscountRate,
			Horizon:           data.Horizon,
			NetDebt:           data.NetDebt,
			SharesOutstanding: data.SharesOutstanding,
		})
	default:
		return nil, fmt.Errorf("unknown mode: %s", mode)
	}
}
