// Package record defines the FinancialRecord consumed by the metrics engine.
// Line items are optional: an absent key means "unknown", never zero.
package record

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"sync"

	"valuation_advisor/pkg/core/apperr"

	"github.com/go-playground/validator/v10"
)

// LineItem names a single financial statement or market input.
type LineItem string

const (
	Revenue            LineItem = "revenue"
	EBIT               LineItem = "ebit"
	NetIncome          LineItem = "net_income"
	FreeCashFlow       LineItem = "free_cash_flow"
	NetDebt            LineItem = "net_debt"
	Cash               LineItem = "cash_and_equivalents"
	SharesOutstanding  LineItem = "shares_outstanding"
	TaxRate            LineItem = "tax_rate"
	Beta               LineItem = "beta"
	RiskFreeRate       LineItem = "risk_free_rate"
	MarketRiskPremium  LineItem = "market_risk_premium"
	CostOfDebt         LineItem = "cost_of_debt"
	MarketCap          LineItem = "market_cap"
	TotalDebt          LineItem = "total_debt"
	TotalAssets        LineItem = "total_assets"
	TotalEquity        LineItem = "total_equity"
	CurrentAssets      LineItem = "current_assets"
	CurrentLiabilities LineItem = "current_liabilities"
	CurrentPrice       LineItem = "current_price"
	GrowthRate         LineItem = "revenue_growth_rate"
	TerminalGrowthRate LineItem = "terminal_growth_rate"
)

// KnownLineItems lists every line item the engine understands, in a stable order.
var KnownLineItems = []LineItem{
	Revenue, EBIT, NetIncome, FreeCashFlow, NetDebt, Cash, SharesOutstanding,
	TaxRate, Beta, RiskFreeRate, MarketRiskPremium, CostOfDebt, MarketCap,
	TotalDebt, TotalAssets, TotalEquity, CurrentAssets, CurrentLiabilities,
	CurrentPrice, GrowthRate, TerminalGrowthRate,
}

// IsKnown reports whether item is one of KnownLineItems.
func IsKnown(item LineItem) bool {
	for _, k := range KnownLineItems {
		if k == item {
			return true
		}
	}
	return false
}

// FinancialRecord is the per-run input of the pipeline.
// Percentages (tax rate, rates, growth) are fractions, e.g. 0.21.
type FinancialRecord struct {
	Symbol string               `json:"symbol" validate:"required,ticker"`
	Period string               `json:"period" validate:"required,max=16"`
	Items  map[LineItem]float64 `json:"items"`

	// RevenueHistory holds annual revenue, oldest first, for CAGR derivation.
	RevenueHistory []float64 `json:"revenue_history,omitempty"`
}

// New creates an empty record for the given identity.
func New(symbol, period string) FinancialRecord {
	return FinancialRecord{
		Symbol: symbol,
		Period: period,
		Items:  make(map[LineItem]float64),
	}
}

// Get returns the value of item and whether it is known.
func (r FinancialRecord) Get(item LineItem) (float64, bool) {
	v, ok := r.Items[item]
	return v, ok
}

// Has reports whether every listed item is known.
func (r FinancialRecord) Has(items ...LineItem) bool {
	for _, it := range items {
		if _, ok := r.Items[it]; !ok {
			return false
		}
	}
	return true
}

// Set records a value. NaN and infinities are treated as unknown and removed.
func (r *FinancialRecord) Set(item LineItem, value float64) {
	if r.Items == nil {
		r.Items = make(map[LineItem]float64)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		delete(r.Items, item)
		return
	}
	r.Items[item] = value
}

// Clone returns a deep copy of the record.
func (r FinancialRecord) Clone() FinancialRecord {
	out := FinancialRecord{
		Symbol: r.Symbol,
		Period: r.Period,
		Items:  make(map[LineItem]float64, len(r.Items)),
	}
	for k, v := range r.Items {
		out.Items[k] = v
	}
	if len(r.RevenueHistory) > 0 {
		out.RevenueHistory = append([]float64(nil), r.RevenueHistory...)
	}
	return out
}

// WithOverrides returns a copy of the record with overrides merged on top.
// The receiver is never modified.
func (r FinancialRecord) WithOverrides(overrides map[LineItem]float64) FinancialRecord {
	out := r.Clone()
	for k, v := range overrides {
		out.Set(k, v)
	}
	return out
}

// MissingItems returns the listed items that are unknown, sorted.
func (r FinancialRecord) MissingItems(items ...LineItem) []LineItem {
	var missing []LineItem
	for _, it := range items {
		if _, ok := r.Items[it]; !ok {
			missing = append(missing, it)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
			return tickerPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate checks the structural identity of the record (symbol and period).
// Missing line items are not a validation failure.
func (r FinancialRecord) Validate() error {
	if err := getValidator().Struct(r); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Wrap(apperr.ErrInvalidRecord,
				fmt.Errorf("field %s failed %q validation (value %q)", fe.Field(), fe.Tag(), fmt.Sprint(fe.Value())))
		}
		return apperr.Wrap(apperr.ErrInvalidRecord, err)
	}
	return nil
}
