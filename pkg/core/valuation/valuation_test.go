package valuation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completeRecord carries every input the engine reads, so a compute
// over it produces no warnings.
func completeRecord() record.FinancialRecord {
	rec := record.New("AAPL", "FY2024")
	for k, v := range map[record.LineItem]float64{
		record.MarketCap:          2.8e12,
		record.TotalDebt:          120e9,
		record.Beta:               1.2,
		record.RiskFreeRate:       0.04,
		record.MarketRiskPremium:  0.05,
		record.CostOfDebt:         0.03,
		record.TaxRate:            0.21,
		record.FreeCashFlow:       100e9,
		record.GrowthRate:         0.05,
		record.TerminalGrowthRate: 0.025,
		record.NetDebt:            60e9,
		record.SharesOutstanding:  15e9,
		record.CurrentPrice:       190,
		record.Revenue:            390e9,
		record.EBIT:               120e9,
		record.NetIncome:          97e9,
		record.TotalAssets:        350e9,
		record.TotalEquity:        62e9,
		record.CurrentAssets:      143e9,
		record.CurrentLiabilities: 145e9,
		record.Cash:               60e9,
	} {
		rec.Set(k, v)
	}
	return rec
}

func TestCalculateWACC(t *testing.T) {
	tests := []struct {
		name    string
		input   WACCInput
		want    float64
		wantErr error
	}{
		{
			name: "equity only",
			input: WACCInput{
				MarketValueEquity: 100, RiskFreeRate: 0.04, Beta: 1.0, MarketRiskPremium: 0.06,
			},
			want: 0.10,
		},
		{
			name: "debt only uses after-tax cost of debt",
			input: WACCInput{
				MarketValueDebt: 100, PreTaxCostOfDebt: 0.05, TaxRate: 0.2,
			},
			want: 0.04,
		},
		{
			name: "mixed",
			input: WACCInput{
				MarketValueEquity: 60, MarketValueDebt: 40,
				RiskFreeRate: 0.03, Beta: 1.5, MarketRiskPremium: 0.05,
				PreTaxCostOfDebt: 0.06, TaxRate: 0.25,
			},
			// 0.6 * 0.105 + 0.4 * 0.045
			want: 0.081,
		},
		{
			name:    "zero capital structure",
			input:   WACCInput{RiskFreeRate: 0.04, Beta: 1, MarketRiskPremium: 0.05},
			wantErr: apperr.ErrMissingCapitalStructure,
		},
		{
			name:    "negative equity",
			input:   WACCInput{MarketValueEquity: -1, MarketValueDebt: 10},
			wantErr: apperr.ErrMissingCapitalStructure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateWACC(tt.input)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.WACC, 1e-12)
			assert.InDelta(t, 1.0, got.WeightEquity+got.WeightDebt, 1e-12)
		})
	}
}

func TestWACCMonotonicInCostOfDebt(t *testing.T) {
	base := WACCInput{
		MarketValueEquity: 500, MarketValueDebt: 300,
		RiskFreeRate: 0.04, Beta: 1.1, MarketRiskPremium: 0.055, TaxRate: 0.21,
	}
	prev := math.Inf(-1)
	for kd := 0.0; kd <= 0.20; kd += 0.005 {
		in := base
		in.PreTaxCostOfDebt = kd
		res, err := CalculateWACC(in)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.WACC, prev, "kd=%.3f", kd)
		prev = res.WACC
	}
}

func TestCalculateDCF(t *testing.T) {
	res, err := CalculateDCF(DCFInput{
		BaseCashFlow:      100,
		GrowthRate:        0.10,
		TerminalGrowth:    0.02,
		DiscountRate:      0.08,
		Horizon:           5,
		NetDebt:           200,
		SharesOutstanding: 10,
	})
	require.NoError(t, err)
	require.Len(t, res.ProjectedCashFlows, 5)
	assert.InDelta(t, 110, res.ProjectedCashFlows[0], 1e-9)
	assert.InDelta(t, 161.051, res.ProjectedCashFlows[4], 1e-9)

	// TV = 161.051 * 1.02 / 0.06
	assert.InDelta(t, 161.051*1.02/0.06, res.TerminalValue, 1e-6)
	assert.InDelta(t, res.PVCashFlows+res.PVTerminal, res.EnterpriseValue, 1e-9)
	assert.InDelta(t, res.EnterpriseValue-200, res.EquityValue, 1e-9)
	assert.True(t, res.HasSharePrice)
	assert.InDelta(t, res.EquityValue/10, res.SharePrice, 1e-9)
}

func TestCalculateDCFRejectsTerminalGrowthAtOrAboveDiscountRate(t *testing.T) {
	for _, tg := range []float64{0.08, 0.09, 0.5} {
		_, err := CalculateDCF(DCFInput{
			BaseCashFlow: 100, GrowthRate: 0.05, TerminalGrowth: tg, DiscountRate: 0.08, Horizon: 5,
		})
		require.Error(t, err, "tg=%.2f", tg)
		assert.True(t, errors.Is(err, apperr.ErrInvalidGrowthAssumption))
	}
}

func TestCalculateDCFPositiveEnterpriseValue(t *testing.T) {
	for _, dr := range []float64{0.03, 0.07, 0.12, 0.25} {
		for _, tg := range []float64{-0.02, 0.0, 0.02} {
			if tg >= dr {
				continue
			}
			res, err := CalculateDCF(DCFInput{
				BaseCashFlow: 50, GrowthRate: 0.04, TerminalGrowth: tg, DiscountRate: dr, Horizon: 5,
			})
			require.NoError(t, err)
			assert.Greater(t, res.EnterpriseValue, 0.0)
			assert.False(t, math.IsInf(res.EnterpriseValue, 0))
		}
	}
}

func TestCalculateDCFWithoutShares(t *testing.T) {
	res, err := CalculateDCF(DCFInput{
		BaseCashFlow: 10, GrowthRate: 0.03, TerminalGrowth: 0.02, DiscountRate: 0.09, Horizon: 3,
	})
	require.NoError(t, err)
	assert.False(t, res.HasSharePrice)

	_, err = CalculateDCF(DCFInput{BaseCashFlow: 10, DiscountRate: 0.09})
	assert.Error(t, err)
}

func TestEngineCompleteRecord(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	m, err := eng.Compute(completeRecord())
	require.NoError(t, err)

	// Ke = 0.04 + 1.2*0.05 = 0.10; Kd = 0.03*(1-0.21)
	// WACC = 2.8/2.92*0.10 + 0.12/2.92*0.0237 = 0.096864
	wacc, ok := m.WACC()
	require.True(t, ok)
	assert.InDelta(t, 0.096864, wacc, 1e-5)
	assert.Empty(t, m.Warnings())

	iv, ok := m.IntrinsicValuePerShare()
	require.True(t, ok)
	assert.Greater(t, iv, 0.0)

	up, ok := m.Upside()
	require.True(t, ok)
	assert.InDelta(t, (iv-190)/190, up, 1e-12)

	assert.Len(t, m.Ratios(), len(ratioDefs))
	pe, ok := m.Ratio(RatioPE)
	require.True(t, ok)
	assert.InDelta(t, 2.8e12/97e9, pe, 1e-9)
}

func TestEngineMissingCapitalStructure(t *testing.T) {
	rec := completeRecord()
	rec.Set(record.MarketCap, 0)
	rec.Set(record.TotalDebt, 0)

	m, err := NewEngine(DefaultConfig()).Compute(rec)
	require.NoError(t, err)

	_, ok := m.WACC()
	assert.False(t, ok)
	_, ok = m.DCF()
	assert.False(t, ok)
	assert.True(t, m.HasWarningCode(apperr.ErrMissingCapitalStructure.Code))

	// Unrelated ratios are still produced.
	_, ok = m.Ratio(RatioCurrent)
	assert.True(t, ok)
	_, ok = m.Ratio(RatioROA)
	assert.True(t, ok)
}

func TestEngineInvalidGrowthBecomesWarning(t *testing.T) {
	rec := completeRecord()
	rec.Set(record.TerminalGrowthRate, 0.2)

	m, err := NewEngine(DefaultConfig()).Compute(rec)
	require.NoError(t, err)
	_, ok := m.WACC()
	assert.True(t, ok)
	_, ok = m.IntrinsicValuePerShare()
	assert.False(t, ok)
	assert.True(t, m.HasWarningCode(apperr.ErrInvalidGrowthAssumption.Code))
}

func TestEngineDefaultsAndDegradedInputs(t *testing.T) {
	rec := completeRecord()
	delete(rec.Items, record.Beta)
	delete(rec.Items, record.GrowthRate)
	delete(rec.Items, record.NetIncome)
	rec.RevenueHistory = []float64{100, 110, 121}

	m, err := NewEngine(DefaultConfig()).Compute(rec)
	require.NoError(t, err)

	d, ok := m.WACCDetail()
	require.True(t, ok)
	assert.InDelta(t, 0.04+1.0*0.05, d.CostOfEquity, 1e-12)

	g, _, ok := m.GrowthAssumptions()
	require.True(t, ok)
	assert.InDelta(t, 0.10, g, 1e-9)

	fields := map[string]bool{}
	for _, w := range m.Warnings() {
		fields[w.Field] = true
	}
	assert.True(t, fields[string(record.Beta)])
	assert.False(t, fields[string(record.GrowthRate)], "growth derived from revenue history")
	for _, name := range []string{RatioPE, RatioROE, RatioROA, RatioProfitMargin} {
		assert.True(t, fields[name], name)
		_, ok := m.Ratio(name)
		assert.False(t, ok, name)
	}
	_, ok = m.Ratio(RatioDebtToEquity)
	assert.True(t, ok)
}

func TestEngineTaxRateClamped(t *testing.T) {
	rec := completeRecord()
	rec.Set(record.TaxRate, 1.5)

	m, err := NewEngine(DefaultConfig()).Compute(rec)
	require.NoError(t, err)
	d, ok := m.WACCDetail()
	require.True(t, ok)
	assert.Equal(t, 0.0, d.AfterTaxCostOfDebt)
	assert.True(t, m.HasWarningCode(WarnOutOfRange))
}

func TestEngineRejectsInvalidRecord(t *testing.T) {
	rec := completeRecord()
	rec.Symbol = ""
	_, err := NewEngine(DefaultConfig()).Compute(rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRecord))
}

func TestComputeRatiosZeroDenominator(t *testing.T) {
	rec := record.New("ZZ", "FY2024")
	rec.Set(record.CurrentAssets, 10)
	rec.Set(record.CurrentLiabilities, 0)
	rec.Set(record.NetIncome, -5)
	rec.Set(record.MarketCap, 100)

	ratios, warnings := ComputeRatios(rec)
	_, ok := ratios[RatioCurrent]
	assert.False(t, ok)
	_, ok = ratios[RatioPE]
	assert.False(t, ok)

	codes := map[string]string{}
	for _, w := range warnings {
		codes[w.Field] = w.Code
	}
	assert.Equal(t, WarnZeroDenominator, codes[RatioCurrent])
	assert.Equal(t, WarnOutOfRange, codes[RatioPE])
	assert.Equal(t, WarnMissingInput, codes[RatioROE])
}

func TestMetricsResultIsImmutable(t *testing.T) {
	m, err := NewEngine(DefaultConfig()).Compute(completeRecord())
	require.NoError(t, err)

	r := m.Ratios()
	r[RatioPE] = -1
	pe, _ := m.Ratio(RatioPE)
	assert.NotEqual(t, -1.0, pe)

	d, _ := m.DCF()
	d.ProjectedCashFlows[0] = -1
	d2, _ := m.DCF()
	assert.NotEqual(t, -1.0, d2.ProjectedCashFlows[0])
}

func TestMetricsResultJSON(t *testing.T) {
	rec := completeRecord()
	rec.Set(record.MarketCap, 0)
	rec.Set(record.TotalDebt, 0)
	m, err := NewEngine(DefaultConfig()).Compute(rec)
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "AAPL", out["symbol"])
	_, hasWACC := out["wacc"]
	assert.False(t, hasWACC)
	assert.NotEmpty(t, out["warnings"])
}
