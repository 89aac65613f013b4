package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"valuation_advisor/pkg/core/knowledge"
	"valuation_advisor/pkg/core/record"
	"valuation_advisor/pkg/core/valuation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	hits    []knowledge.ScoredChunk
	err     error
	queries []string
	ks      []int
}

func (f *fakeRetriever) Query(_ context.Context, text string, k int) ([]knowledge.ScoredChunk, error) {
	f.queries = append(f.queries, text)
	f.ks = append(f.ks, k)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func hit(source, text string, score float64) knowledge.ScoredChunk {
	return knowledge.ScoredChunk{Chunk: knowledge.Chunk{Source: source, Text: text}, Score: score}
}

func metricsFor(t *testing.T, items map[record.LineItem]float64) *valuation.MetricsResult {
	t.Helper()
	rec := record.New("AAPL", "FY2024")
	for k, v := range items {
		rec.Set(k, v)
	}
	m, err := valuation.NewEngine(valuation.DefaultConfig()).Compute(rec)
	require.NoError(t, err)
	return m
}

func sampleMetrics(t *testing.T) *valuation.MetricsResult {
	return metricsFor(t, map[record.LineItem]float64{
		record.MarketCap:          2.8e12,
		record.TotalDebt:          120e9,
		record.RiskFreeRate:       0.04,
		record.MarketRiskPremium:  0.05,
		record.CostOfDebt:         0.03,
		record.TaxRate:            0.21,
		record.FreeCashFlow:       100e9,
		record.SharesOutstanding:  15e9,
		record.CurrentPrice:       190,
		record.NetIncome:          97e9,
		record.CurrentAssets:      143e9,
		record.CurrentLiabilities: 145e9,
	})
}

func TestSummarizeMetricsIsDeterministic(t *testing.T) {
	m := sampleMetrics(t)
	s1 := SummarizeMetrics(m)
	s2 := SummarizeMetrics(m)
	assert.Equal(t, s1, s2)

	assert.Contains(t, s1, "Symbol: AAPL (FY2024)")
	assert.Contains(t, s1, "WACC: ")
	assert.Contains(t, s1, "current_ratio=")
	// beta was defaulted, so the warning shows up.
	assert.Contains(t, s1, "- beta: beta missing")
}

func TestSummarizeMetricsWithoutCapitalStructure(t *testing.T) {
	m := metricsFor(t, map[record.LineItem]float64{
		record.MarketCap:   0,
		record.TotalDebt:   0,
		record.NetIncome:   10,
		record.Revenue:     100,
		record.TotalAssets: 50,
	})
	s := SummarizeMetrics(m)
	assert.Contains(t, s, "WACC: unavailable")
	assert.Contains(t, s, "DCF: unavailable")
	assert.Contains(t, s, "profit_margin=0.1")
}

func TestBuildQuery(t *testing.T) {
	m := sampleMetrics(t)
	q := BuildQuery(" aapl ", m)
	assert.True(t, strings.HasPrefix(q, "AAPL valuation"))
	for _, reason := range m.WarningReasons() {
		assert.Contains(t, q, reason)
	}
	assert.Equal(t, "MSFT valuation", BuildQuery("MSFT", nil))
}

func TestAssembleOrdersByRelevanceWithinBudget(t *testing.T) {
	m := sampleMetrics(t)
	r := &fakeRetriever{hits: []knowledge.ScoredChunk{
		hit("wacc.md", "WACC blends equity and debt costs.", 0.9),
		hit("dcf.md", "DCF discounts projected free cash flow.", 0.7),
		hit("noise.md", "Unrelated text.", 0),
	}}
	a := NewAssembler(r, Config{BudgetChars: 4000, TopK: 5})
	doc := a.Assemble(context.Background(), m, "AAPL")

	require.Len(t, doc.Segments, 3)
	assert.Equal(t, SourceMetrics, doc.Summary().Source)
	retrieved := doc.Retrieved()
	assert.Equal(t, "knowledge:wacc.md", retrieved[0].Source)
	assert.Equal(t, "knowledge:dcf.md", retrieved[1].Source)
	assert.LessOrEqual(t, doc.Size(), doc.Budget)

	require.Len(t, r.ks, 1)
	assert.Equal(t, 5, r.ks[0])
	assert.Equal(t, BuildQuery("AAPL", m), r.queries[0])
}

func TestAssembleNeverExceedsBudget(t *testing.T) {
	m := sampleMetrics(t)
	summarySize := Segment{Source: SourceMetrics, Text: SummarizeMetrics(m)}.Size()

	var hits []knowledge.ScoredChunk
	for i := 0; i < 3; i++ {
		hits = append(hits, hit(fmt.Sprintf("n%d", i), strings.Repeat("é", 150+i*40), 0.9-float64(i)*0.1))
	}

	for _, budget := range []int{1, summarySize, summarySize + 100, summarySize + 200, summarySize + 400, summarySize + 1000} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			doc := NewAssembler(&fakeRetriever{hits: hits}, Config{BudgetChars: budget, TopK: 3}).
				Assemble(context.Background(), m, "AAPL")
			require.NotEmpty(t, doc.Segments)
			assert.Equal(t, SourceMetrics, doc.Segments[0].Source)
			if budget >= summarySize {
				assert.LessOrEqual(t, doc.Size(), budget)
			} else {
				assert.Len(t, doc.Segments, 1)
			}
			for i := 2; i < len(doc.Segments); i++ {
				assert.GreaterOrEqual(t, doc.Segments[i-1].Score, doc.Segments[i].Score)
			}
		})
	}
}

func TestAssembleDropsLowerRelevanceFirst(t *testing.T) {
	m := sampleMetrics(t)
	summarySize := Segment{Source: SourceMetrics, Text: SummarizeMetrics(m)}.Size()
	first := hit("a", strings.Repeat("x", 100), 0.9)
	second := hit("b", strings.Repeat("y", 10), 0.8)

	budget := summarySize + 2 + Segment{Source: "knowledge:a", Text: first.Chunk.Text}.Size()
	doc := NewAssembler(&fakeRetriever{hits: []knowledge.ScoredChunk{first, second}}, Config{BudgetChars: budget}).
		Assemble(context.Background(), m, "AAPL")

	require.Len(t, doc.Segments, 2)
	assert.Equal(t, "knowledge:a", doc.Segments[1].Source)
	assert.Equal(t, budget, doc.Size())
}

func TestAssembleRetrievalFailureKeepsSummary(t *testing.T) {
	m := sampleMetrics(t)
	doc := NewAssembler(&fakeRetriever{err: errors.New("store offline")}, DefaultConfig()).
		Assemble(context.Background(), m, "AAPL")
	require.Len(t, doc.Segments, 1)
	assert.Equal(t, SummarizeMetrics(m), doc.Summary().Text)

	doc = NewAssembler(nil, Config{}).Assemble(context.Background(), m, "AAPL")
	require.Len(t, doc.Segments, 1)
	assert.Equal(t, DefaultBudgetChars, doc.Budget)
}

func TestAssembleWithVectorStore(t *testing.T) {
	store := knowledge.NewVectorStore()
	require.NoError(t, store.Upsert(context.Background(), []knowledge.Chunk{
		{Source: "defs", Text: "only chunk", Embedding: []float64{1, 0}},
	}))
	// Without an embedder the store cannot embed the query; assembly degrades.
	doc := NewAssembler(store, DefaultConfig()).Assemble(context.Background(), sampleMetrics(t), "AAPL")
	assert.Len(t, doc.Segments, 1)
}
