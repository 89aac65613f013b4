package valuation

import (
	"fmt"
	"strings"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/calc"
	"valuation_advisor/pkg/core/record"
)

// Config holds the assumptions the engine falls back to when a record is silent.
type Config struct {
	Horizon               int     `yaml:"horizon" json:"horizon"`
	DefaultTerminalGrowth float64 `yaml:"default_terminal_growth" json:"default_terminal_growth"`
	DefaultGrowthRate     float64 `yaml:"default_growth_rate" json:"default_growth_rate"`
	DefaultBeta           float64 `yaml:"default_beta" json:"default_beta"`
	WACCFlagCeiling       float64 `yaml:"wacc_flag_ceiling" json:"wacc_flag_ceiling"`
}

// DefaultConfig returns the documented engine defaults.
func DefaultConfig() Config {
	return Config{
		Horizon:               5,
		DefaultTerminalGrowth: 0.025,
		DefaultGrowthRate:     0.05,
		DefaultBeta:           1.0,
		WACCFlagCeiling:       0.50,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Horizon <= 0 {
		c.Horizon = d.Horizon
	}
	if c.DefaultTerminalGrowth == 0 {
		c.DefaultTerminalGrowth = d.DefaultTerminalGrowth
	}
	if c.DefaultGrowthRate == 0 {
		c.DefaultGrowthRate = d.DefaultGrowthRate
	}
	if c.DefaultBeta == 0 {
		c.DefaultBeta = d.DefaultBeta
	}
	if c.WACCFlagCeiling <= 0 {
		c.WACCFlagCeiling = d.WACCFlagCeiling
	}
	return c
}

// Engine computes WACC, DCF and ratios from a FinancialRecord.
// It performs no I/O and is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.WithDefaults()}
}

func (e *Engine) Config() Config { return e.cfg }

// computation accumulates warnings for one Compute call.
type computation struct {
	rec      record.FinancialRecord
	warnings []Warning

	tax     float64
	taxDone bool
}

func (c *computation) warn(field, code, format string, args ...any) {
	c.warnings = append(c.warnings, Warning{Field: field, Reason: fmt.Sprintf(format, args...), Code: code})
}

// taxRate resolves the effective tax rate once, warning on first use.
func (c *computation) taxRate() float64 {
	if c.taxDone {
		return c.tax
	}
	c.taxDone = true
	t, ok := c.rec.Get(record.TaxRate)
	switch {
	case !ok:
		c.warn(string(record.TaxRate), WarnDefaultAssumption, "tax_rate missing, assumed 0")
		t = 0
	case t < 0:
		c.warn(string(record.TaxRate), WarnOutOfRange, "tax_rate %.4f below 0, clamped to 0", t)
		t = 0
	case t > 1:
		c.warn(string(record.TaxRate), WarnOutOfRange, "tax_rate %.4f above 1, clamped to 1", t)
		t = 1
	}
	c.tax = t
	return t
}

// Compute builds an immutable MetricsResult. The only error is a structurally
// invalid record; every other condition becomes a warning on the result.
func (e *Engine) Compute(rec record.FinancialRecord) (*MetricsResult, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	c := &computation{rec: rec}
	res := &MetricsResult{symbol: rec.Symbol, period: rec.Period}

	wacc, waccErr := e.computeWACC(c)
	if wacc != nil {
		res.wacc = wacc
	}

	if waccErr != nil {
		code := apperr.CodeOf(waccErr)
		if code == "" {
			code = WarnMissingInput
		}
		c.warn("dcf", code, "dcf skipped: discount rate unavailable")
	} else {
		e.computeDCF(c, res, wacc.WACC)
	}

	e.computeMarket(c, res)

	ratios, ratioWarnings := ComputeRatios(rec)
	res.ratios = ratios
	c.warnings = append(c.warnings, ratioWarnings...)

	res.warnings = c.warnings
	return res, nil
}

func (e *Engine) computeWACC(c *computation) (*WACCResult, error) {
	rec := c.rec
	equity, hasEquity := rec.Get(record.MarketCap)
	debt, hasDebt := rec.Get(record.TotalDebt)

	if equity == 0 && debt == 0 {
		c.warn("wacc", apperr.ErrMissingCapitalStructure.Code,
			"wacc omitted: market_cap and total_debt are both zero or missing")
		return nil, apperr.ErrMissingCapitalStructure
	}
	if !hasEquity {
		c.warn(string(record.MarketCap), WarnMissingInput, "market_cap missing, equity weight treated as zero")
	}
	if !hasDebt {
		c.warn(string(record.TotalDebt), WarnMissingInput, "total_debt missing, debt weight treated as zero")
	}

	in := WACCInput{MarketValueEquity: equity, MarketValueDebt: debt}
	rf, hasRF := rec.Get(record.RiskFreeRate)
	in.RiskFreeRate = rf

	if equity > 0 {
		if missing := rec.MissingItems(record.RiskFreeRate, record.MarketRiskPremium); len(missing) > 0 {
			c.warn("wacc", WarnMissingInput, "wacc omitted: missing %s", joinItems(missing))
			return nil, fmt.Errorf("cost of equity inputs missing: %s", joinItems(missing))
		}
		in.MarketRiskPremium, _ = rec.Get(record.MarketRiskPremium)

		beta, ok := rec.Get(record.Beta)
		if !ok {
			beta = e.cfg.DefaultBeta
			c.warn(string(record.Beta), WarnDefaultAssumption, "beta missing, defaulted to %.2f", beta)
		}
		in.Beta = beta
	}

	if debt > 0 {
		kd, ok := rec.Get(record.CostOfDebt)
		if !ok {
			if !hasRF {
				c.warn("wacc", WarnMissingInput, "wacc omitted: missing cost_of_debt, risk_free_rate")
				return nil, fmt.Errorf("cost of debt inputs missing")
			}
			kd = rf
			c.warn(string(record.CostOfDebt), WarnDefaultAssumption, "cost_of_debt missing, defaulted to risk_free_rate")
		}
		in.PreTaxCostOfDebt = kd
		in.TaxRate = c.taxRate()
	}

	out, err := CalculateWACC(in)
	if err != nil {
		c.warn("wacc", apperr.CodeOf(err), "wacc omitted: %s", errMessage(err))
		return nil, err
	}
	if out.WACC < 0 || out.WACC > e.cfg.WACCFlagCeiling {
		c.warn("wacc", WarnOutOfRange, "wacc %.4f outside [0, %.2f]", out.WACC, e.cfg.WACCFlagCeiling)
	}
	return &out, nil
}

func (e *Engine) computeDCF(c *computation, res *MetricsResult, discountRate float64) {
	rec := c.rec

	base, ok := rec.Get(record.FreeCashFlow)
	if !ok {
		ebit, hasEBIT := rec.Get(record.EBIT)
		if !hasEBIT {
			c.warn("dcf", WarnMissingInput, "dcf skipped: missing free_cash_flow, ebit")
			return
		}
		base = ebit * (1 - c.taxRate())
		c.warn(string(record.FreeCashFlow), WarnDefaultAssumption, "free_cash_flow missing, using ebit after tax")
	}

	growth, ok := rec.Get(record.GrowthRate)
	if !ok {
		if g, derived := calc.SeriesCAGR(rec.RevenueHistory); derived {
			growth = g
		} else {
			growth = e.cfg.DefaultGrowthRate
			c.warn(string(record.GrowthRate), WarnDefaultAssumption, "growth rate missing, defaulted to %.4f", growth)
		}
	}

	terminal, ok := rec.Get(record.TerminalGrowthRate)
	if !ok {
		terminal = e.cfg.DefaultTerminalGrowth
		c.warn(string(record.TerminalGrowthRate), WarnDefaultAssumption, "terminal growth missing, defaulted to %.4f", terminal)
	}

	netDebt, ok := rec.Get(record.NetDebt)
	if !ok {
		debt, hasDebt := rec.Get(record.TotalDebt)
		cash, hasCash := rec.Get(record.Cash)
		switch {
		case hasDebt && hasCash:
			netDebt = debt - cash
		case hasDebt:
			netDebt = debt
			c.warn(string(record.NetDebt), WarnDefaultAssumption, "net_debt missing, using total_debt without cash")
		default:
			netDebt = 0
			c.warn(string(record.NetDebt), WarnDefaultAssumption, "net_debt missing, assumed 0")
		}
	}

	shares, _ := rec.Get(record.SharesOutstanding)
	if shares <= 0 {
		c.warn(string(record.SharesOutstanding), WarnMissingInput, "intrinsic value per share omitted: missing shares_outstanding")
	}

	out, err := CalculateDCF(DCFInput{
		BaseCashFlow:      base,
		GrowthRate:        growth,
		TerminalGrowth:    terminal,
		DiscountRate:      discountRate,
		Horizon:           e.cfg.Horizon,
		NetDebt:           netDebt,
		SharesOutstanding: shares,
	})
	if err != nil {
		code := apperr.CodeOf(err)
		if code == "" {
			code = WarnOutOfRange
		}
		c.warn("dcf", code, "dcf omitted: %s", errMessage(err))
		return
	}
	res.dcf = &out
	res.growthRate = growth
	res.terminalGrowth = terminal
}

func (e *Engine) computeMarket(c *computation, res *MetricsResult) {
	rec := c.rec
	price, ok := rec.Get(record.CurrentPrice)
	if !ok {
		mcap, hasCap := rec.Get(record.MarketCap)
		shares, hasShares := rec.Get(record.SharesOutstanding)
		if !hasCap || !hasShares || shares <= 0 {
			if res.dcf != nil && res.dcf.HasSharePrice {
				c.warn(string(record.CurrentPrice), WarnMissingInput, "upside omitted: missing current_price")
			}
			return
		}
		price = mcap / shares
	}
	if price <= 0 {
		c.warn(string(record.CurrentPrice), WarnOutOfRange, "upside omitted: non-positive current_price")
		return
	}
	res.marketPrice = &price

	if intrinsic, ok := res.IntrinsicValuePerShare(); ok {
		up := (intrinsic - price) / price
		res.upside = &up
	}
}

func joinItems(items []record.LineItem) string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = string(it)
	}
	return strings.Join(names, ", ")
}

func errMessage(err error) string {
	if ae, ok := err.(*apperr.AppError); ok {
		return ae.Message
	}
	return err.Error()
}
