package record

import (
	"errors"
	"math"
	"testing"

	"valuation_advisor/pkg/core/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     FinancialRecord
		wantErr bool
	}{
		{name: "valid", rec: New("AAPL", "FY2024")},
		{name: "dotted ticker", rec: New("BRK.B", "FY2024")},
		{name: "missing symbol", rec: New("", "FY2024"), wantErr: true},
		{name: "missing period", rec: New("AAPL", ""), wantErr: true},
		{name: "lower case symbol", rec: New("aapl", "FY2024"), wantErr: true},
		{name: "symbol too long", rec: New("ABCDEFGHIJKLM", "FY2024"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperr.ErrInvalidRecord))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestWithOverridesDoesNotMutate(t *testing.T) {
	base := New("AAPL", "FY2024")
	base.Set(Beta, 1.2)

	merged := base.WithOverrides(map[LineItem]float64{Beta: 1.5, TaxRate: 0.21})

	beta, _ := base.Get(Beta)
	assert.Equal(t, 1.2, beta)
	assert.False(t, base.Has(TaxRate))

	beta, _ = merged.Get(Beta)
	assert.Equal(t, 1.5, beta)
	assert.True(t, merged.Has(TaxRate))
}

func TestSetIgnoresNonFinite(t *testing.T) {
	rec := New("AAPL", "FY2024")
	rec.Set(Beta, 1.1)
	rec.Set(Beta, math.NaN())
	rec.Set(MarketCap, math.Inf(1))

	assert.False(t, rec.Has(Beta))
	assert.False(t, rec.Has(MarketCap))
}

func TestFromProviderFields(t *testing.T) {
	raw := map[string]any{
		"marketCap":         2.8e12,
		"currentPrice":      "185.5",
		"sharesOutstanding": 15.1e9,
		"effectiveTaxRate":  "21%",
		"beta":              nil,
		"sector":            "Technology",
		"total_debt":        1.2e11,
		"revenue_history":   []any{3.0e11, 3.5e11, 3.9e11},
	}

	rec := FromProviderFields(" aapl ", "FY2024", raw)

	assert.Equal(t, "AAPL", rec.Symbol)
	mc, ok := rec.Get(MarketCap)
	require.True(t, ok)
	assert.Equal(t, 2.8e12, mc)

	price, ok := rec.Get(CurrentPrice)
	require.True(t, ok)
	assert.Equal(t, 185.5, price)

	tax, ok := rec.Get(TaxRate)
	require.True(t, ok)
	assert.InDelta(t, 0.21, tax, 1e-12)

	assert.False(t, rec.Has(Beta), "nil provider value must stay unknown, not zero")
	assert.True(t, rec.Has(TotalDebt))
	assert.Len(t, rec.RevenueHistory, 3)
}

func TestParseOverrides(t *testing.T) {
	got, err := ParseOverrides([]string{"beta=1.3", "risk_free_rate=4%", "marketCap=1e9"})
	require.NoError(t, err)
	assert.Equal(t, 1.3, got[Beta])
	assert.InDelta(t, 0.04, got[RiskFreeRate], 1e-12)
	assert.Equal(t, 1e9, got[MarketCap])

	_, err = ParseOverrides([]string{"unknown_field=1"})
	assert.Error(t, err)

	_, err = ParseOverrides([]string{"beta"})
	assert.Error(t, err)

	_, err = ParseOverrides([]string{"beta=abc"})
	assert.Error(t, err)
}

func TestMissingItemsSorted(t *testing.T) {
	rec := New("MSFT", "FY2024")
	rec.Set(Revenue, 1)

	missing := rec.MissingItems(TotalEquity, Revenue, NetIncome)
	assert.Equal(t, []LineItem{NetIncome, TotalEquity}, missing)
}
