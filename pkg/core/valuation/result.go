package valuation

import (
	"encoding/json"
	"sort"
)

// Warning codes attached to degraded metrics. Conditions from the error
// taxonomy reuse their apperr code.
const (
	WarnDefaultAssumption = "DEFAULT_ASSUMPTION"
	WarnMissingInput      = "MISSING_INPUT"
	WarnOutOfRange        = "OUT_OF_RANGE"
	WarnZeroDenominator   = "ZERO_DENOMINATOR"
)

// Warning records a metric computed under a degraded assumption, or omitted.
type Warning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// MetricsResult is the immutable output of Engine.Compute.
// Accessors return copies; nothing can mutate a result after creation.
type MetricsResult struct {
	symbol string
	period string

	wacc *WACCResult
	dcf  *DCFResult

	growthRate     float64
	terminalGrowth float64
	marketPrice    *float64
	upside         *float64

	ratios   map[string]float64
	warnings []Warning
}

func (m *MetricsResult) Symbol() string { return m.symbol }
func (m *MetricsResult) Period() string { return m.period }

// WACC returns the weighted average cost of capital as a fraction.
func (m *MetricsResult) WACC() (float64, bool) {
	if m.wacc == nil {
		return 0, false
	}
	return m.wacc.WACC, true
}

// WACCDetail returns the full WACC breakdown.
func (m *MetricsResult) WACCDetail() (WACCResult, bool) {
	if m.wacc == nil {
		return WACCResult{}, false
	}
	return *m.wacc, true
}

// DCF returns a copy of the discounted cash flow result.
func (m *MetricsResult) DCF() (DCFResult, bool) {
	if m.dcf == nil {
		return DCFResult{}, false
	}
	out := *m.dcf
	out.ProjectedCashFlows = append([]float64(nil), m.dcf.ProjectedCashFlows...)
	return out, true
}

// IntrinsicValuePerShare is the DCF equity value divided by shares outstanding.
func (m *MetricsResult) IntrinsicValuePerShare() (float64, bool) {
	if m.dcf == nil || !m.dcf.HasSharePrice {
		return 0, false
	}
	return m.dcf.SharePrice, true
}

// GrowthAssumptions returns the explicit-horizon and terminal growth used by the DCF.
func (m *MetricsResult) GrowthAssumptions() (growth, terminal float64, ok bool) {
	if m.dcf == nil {
		return 0, 0, false
	}
	return m.growthRate, m.terminalGrowth, true
}

func (m *MetricsResult) MarketPrice() (float64, bool) {
	if m.marketPrice == nil {
		return 0, false
	}
	return *m.marketPrice, true
}

// Upside is (intrinsic - price) / price.
func (m *MetricsResult) Upside() (float64, bool) {
	if m.upside == nil {
		return 0, false
	}
	return *m.upside, true
}

func (m *MetricsResult) Ratio(name string) (float64, bool) {
	v, ok := m.ratios[name]
	return v, ok
}

// Ratios returns a copy of every computed ratio.
func (m *MetricsResult) Ratios() map[string]float64 {
	out := make(map[string]float64, len(m.ratios))
	for k, v := range m.ratios {
		out[k] = v
	}
	return out
}

// RatioNames returns computed ratio names in sorted order.
func (m *MetricsResult) RatioNames() []string {
	names := make([]string, 0, len(m.ratios))
	for k := range m.ratios {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (m *MetricsResult) Warnings() []Warning {
	return append([]Warning(nil), m.warnings...)
}

// HasWarningCode reports whether any warning carries code.
func (m *MetricsResult) HasWarningCode(code string) bool {
	for _, w := range m.warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// WarningReasons returns the distinct warning reasons, sorted.
func (m *MetricsResult) WarningReasons() []string {
	seen := make(map[string]bool, len(m.warnings))
	var out []string
	for _, w := range m.warnings {
		if seen[w.Reason] {
			continue
		}
		seen[w.Reason] = true
		out = append(out, w.Reason)
	}
	sort.Strings(out)
	return out
}

type metricsJSON struct {
	Symbol                 string             `json:"symbol"`
	Period                 string             `json:"period"`
	WACC                   *WACCResult        `json:"wacc,omitempty"`
	DCF                    *DCFResult         `json:"dcf,omitempty"`
	GrowthRate             *float64           `json:"growth_rate,omitempty"`
	TerminalGrowth         *float64           `json:"terminal_growth_rate,omitempty"`
	IntrinsicValuePerShare *float64           `json:"intrinsic_value_per_share,omitempty"`
	MarketPrice            *float64           `json:"market_price,omitempty"`
	Upside                 *float64           `json:"upside,omitempty"`
	Ratios                 map[string]float64 `json:"ratios"`
	Warnings               []Warning          `json:"warnings"`
}

// MarshalJSON renders the result for callers; absent metrics are omitted.
func (m *MetricsResult) MarshalJSON() ([]byte, error) {
	out := metricsJSON{
		Symbol:      m.symbol,
		Period:      m.period,
		MarketPrice: m.marketPrice,
		Upside:      m.upside,
		Ratios:      m.Ratios(),
		Warnings:    m.Warnings(),
	}
	if out.Warnings == nil {
		out.Warnings = []Warning{}
	}
	if d, ok := m.WACCDetail(); ok {
		out.WACC = &d
	}
	if d, ok := m.DCF(); ok {
		out.DCF = &d
		g, tg := m.growthRate, m.terminalGrowth
		out.GrowthRate, out.TerminalGrowth = &g, &tg
	}
	if v, ok := m.IntrinsicValuePerShare(); ok {
		out.IntrinsicValuePerShare = &v
	}
	return json.Marshal(out)
}
