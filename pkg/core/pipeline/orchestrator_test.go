package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/config"
	"valuation_advisor/pkg/core/knowledge"
	"valuation_advisor/pkg/core/llm"
	"valuation_advisor/pkg/core/recommend"
	"valuation_advisor/pkg/core/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockModel struct {
	mu        sync.Mutex
	Response  string
	Err       error
	Calls     int
	LastInput string
}

func (m *MockModel) Name() string { return "mock" }

func (m *MockModel) GenerateResponse(ctx context.Context, prompt, system string, opts llm.Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastInput = prompt
	return m.Response, m.Err
}

type MockRetriever struct {
	Hits []knowledge.ScoredChunk
}

func (m *MockRetriever) Query(ctx context.Context, text string, k int) ([]knowledge.ScoredChunk, error) {
	if len(m.Hits) > k {
		return m.Hits[:k], nil
	}
	return m.Hits, nil
}

// completeRecord carries every line item the engine reads.
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

func newOrchestrator(model llm.Provider, retriever knowledge.Retriever, records ...record.FinancialRecord) *Orchestrator {
	return NewOrchestrator(NewStaticProvider(records...), model, retriever, config.Default())
}

const validReply = `{"stance":"HOLD","confidence":0.62,"rationale":"Priced near intrinsic value.","risk_flags":["valuation"]}`

// --- Tests ---

func TestRun_CompleteRecord(t *testing.T) {
	model := &MockModel{Response: validReply}
	retriever := &MockRetriever{Hits: []knowledge.ScoredChunk{
		{Chunk: knowledge.Chunk{Source: "wacc.md", Text: "WACC blends the cost of equity and debt."}, Score: 0.8},
	}}
	o := newOrchestrator(model, retriever, completeRecord())

	res, err := o.Run(context.Background(), Request{Symbol: "aapl"})
	require.NoError(t, err)

	wacc, ok := res.Metrics.WACC()
	require.True(t, ok)
	// Ke = 0.04 + 1.2*0.05 = 0.10, Kd = 0.03*(1-0.21) = 0.0237
	// WACC = 2.8/2.92*0.10 + 0.12/2.92*0.0237 = 0.096864
	assert.InDelta(t, 0.0969, wacc, 0.001)
	assert.Empty(t, res.Metrics.Warnings())

	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, "FY2024", res.Period)
	assert.Equal(t, recommend.SourceModel, res.Recommendation.Source)
	assert.Equal(t, recommend.StanceHold, res.Recommendation.Stance)
	assert.Len(t, res.Context.Segments, 2)

	assert.Equal(t, 1, model.Calls)
	assert.Contains(t, model.LastInput, "WACC blends the cost of equity and debt.")
}

func TestRun_MissingCapitalStructureFallsBack(t *testing.T) {
	model := &MockModel{Err: apperr.ErrGenerationUnavailable}
	o := newOrchestrator(model, nil, completeRecord())

	res, err := o.Run(context.Background(), Request{
		Symbol:    "AAPL",
		Overrides: map[record.LineItem]float64{record.MarketCap: 0, record.TotalDebt: 0},
	})
	require.NoError(t, err)

	_, hasWACC := res.Metrics.WACC()
	assert.False(t, hasWACC)
	assert.True(t, res.Metrics.HasWarningCode(apperr.ErrMissingCapitalStructure.Code))
	// Ratios that do not need the capital structure survive.
	_, hasCurrent := res.Metrics.Ratio("current_ratio")
	assert.True(t, hasCurrent)

	assert.True(t, res.Recommendation.IsFallback())
	assert.Contains(t, res.Recommendation.Rationale, recommend.FallbackMarker)
}

func TestRun_UnknownStanceFallsBack(t *testing.T) {
	model := &MockModel{Response: "STANCE: MAYBE\nCONFIDENCE: 0.9\nRATIONALE: unsure\nRISK FLAGS: none"}
	o := newOrchestrator(model, nil, completeRecord())

	res, err := o.Run(context.Background(), Request{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, recommend.SourceFallback, res.Recommendation.Source)
	assert.Contains(t, res.Recommendation.Rationale, "generated by fallback rule, model output unavailable or invalid.")
}

func TestRun_InvalidRecordAborts(t *testing.T) {
	o := newOrchestrator(&MockModel{Response: validReply}, nil)

	_, err := o.Run(context.Background(), Request{Symbol: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRecord))

	// Unknown symbol: provider miss degrades to an empty record without a period.
	_, err = o.Run(context.Background(), Request{Symbol: "MSFT"})
	assert.True(t, errors.Is(err, apperr.ErrInvalidRecord))

	// Supplying the identity lets overrides stand in for the missing data.
	res, err := o.Run(context.Background(), Request{
		Symbol:    "MSFT",
		Period:    "FY2024",
		Overrides: map[record.LineItem]float64{record.CurrentAssets: 2, record.CurrentLiabilities: 1},
	})
	require.NoError(t, err)
	v, ok := res.Metrics.Ratio("current_ratio")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestRun_OverridesDoNotLeakBetweenRuns(t *testing.T) {
	o := newOrchestrator(&MockModel{Response: validReply}, nil, completeRecord())
	ctx := context.Background()

	_, err := o.Run(ctx, Request{Symbol: "AAPL", Overrides: map[record.LineItem]float64{record.Beta: 2.0}})
	require.NoError(t, err)

	res, err := o.Run(ctx, Request{Symbol: "AAPL"})
	require.NoError(t, err)
	detail, ok := res.Metrics.WACCDetail()
	require.True(t, ok)
	assert.InDelta(t, 0.04+1.2*0.05, detail.CostOfEquity, 1e-12)
}

func TestRunBatch(t *testing.T) {
	model := &MockModel{Response: validReply}
	var records []record.FinancialRecord
	var reqs []Request
	for i := 0; i < 6; i++ {
		rec := completeRecord()
		rec.Symbol = fmt.Sprintf("SYM%d", i)
		records = append(records, rec)
		reqs = append(reqs, Request{Symbol: rec.Symbol})
	}
	reqs = append(reqs, Request{Symbol: "bad symbol!", Period: "FY2024"})

	o := newOrchestrator(model, nil, records...)
	o.SetConcurrency(3)
	items := o.RunBatch(context.Background(), reqs)

	require.Len(t, items, 7)
	for i, item := range items[:6] {
		require.NoError(t, item.Err)
		assert.Equal(t, fmt.Sprintf("SYM%d", i), item.Result.Symbol)
		assert.Equal(t, recommend.SourceModel, item.Result.Recommendation.Source)
	}
	assert.True(t, errors.Is(items[6].Err, apperr.ErrInvalidRecord))
	assert.Nil(t, items[6].Result)
	assert.Equal(t, 6, model.Calls)
}

func TestRun_CancelledContextStillReturnsResult(t *testing.T) {
	o := newOrchestrator(&MockModel{Response: validReply}, nil, completeRecord())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx, Request{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.True(t, res.Recommendation.IsFallback())
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL.json"), []byte(`{
		"period": "FY2024",
		"marketCap": 2800000000000,
		"currentPrice": "190.5",
		"effectiveTaxRate": "21%",
		"beta": null,
		"revenue_history": [300, 330, 363]
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MSFT.yaml"), []byte("period: FY2023\ntotal_debt: 50\nmarket_cap: 3000\n"), 0o644))

	p := NewFileProvider(dir)
	ctx := context.Background()

	rec, err := p.Fetch(ctx, "aapl", "")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", rec.Symbol)
	assert.Equal(t, "FY2024", rec.Period)
	price, _ := rec.Get(record.CurrentPrice)
	assert.Equal(t, 190.5, price)
	tax, _ := rec.Get(record.TaxRate)
	assert.InDelta(t, 0.21, tax, 1e-12)
	assert.False(t, rec.Has(record.Beta))
	assert.Equal(t, []float64{300, 330, 363}, rec.RevenueHistory)

	rec, err = p.Fetch(ctx, "MSFT", "FY2024")
	require.NoError(t, err)
	assert.Equal(t, "FY2024", rec.Period)
	debt, _ := rec.Get(record.TotalDebt)
	assert.Equal(t, 50.0, debt)

	_, err = p.Fetch(ctx, "GOOG", "")
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
	_, err = p.Fetch(ctx, "../AAPL", "")
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
}

func TestRun_WithFileProvider(t *testing.T) {
	dir := t.TempDir()
	body := strings.Join([]string{
		`{"period":"FY2024"`,
		`"marketCap":2.8e12`, `"totalDebt":1.2e11`, `"beta":1.2`,
		`"riskFreeRate":0.04`, `"marketRiskPremium":0.05`, `"costOfDebt":0.03`,
		`"effectiveTaxRate":0.21}`,
	}, ",")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL.json"), []byte(body), 0o644))

	o := NewOrchestrator(NewFileProvider(dir), &MockModel{Response: validReply}, nil, config.Default())
	res, err := o.Run(context.Background(), Request{Symbol: "AAPL"})
	require.NoError(t, err)
	wacc, ok := res.Metrics.WACC()
	require.True(t, ok)
	// Ke = 0.04 + 1.2*0.05 = 0.10, Kd = 0.03*(1-0.21) = 0.0237
	// WACC = 2.8/2.92*0.10 + 0.12/2.92*0.0237 = 0.096864
	assert.InDelta(t, 0.0969, wacc, 0.001)
}
