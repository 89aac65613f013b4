package rag

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"valuation_advisor/pkg/core/knowledge"
	"valuation_advisor/pkg/core/logger"
	"valuation_advisor/pkg/core/valuation"
)

const (
	DefaultBudgetChars = 4000
	DefaultTopK        = 3
)

// Config bounds the context document.
type Config struct {
	BudgetChars int `yaml:"budget_chars" json:"budget_chars"`
	TopK        int `yaml:"top_k" json:"top_k"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{BudgetChars: DefaultBudgetChars, TopK: DefaultTopK}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.BudgetChars <= 0 {
		c.BudgetChars = d.BudgetChars
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	return c
}

// Assembler builds context documents. It holds a reference to the shared
// knowledge store but never writes to it.
type Assembler struct {
	retriever knowledge.Retriever
	cfg       Config
}

// NewAssembler creates an assembler. A nil retriever yields summary-only documents.
func NewAssembler(retriever knowledge.Retriever, cfg Config) *Assembler {
	return &Assembler{retriever: retriever, cfg: cfg.WithDefaults()}
}

// BuildQuery derives the retrieval query from the symbol and the distinct
// warning reasons of the result.
func BuildQuery(symbol string, m *valuation.MetricsResult) string {
	parts := []string{strings.ToUpper(strings.TrimSpace(symbol)) + " valuation"}
	if m != nil {
		parts = append(parts, m.WarningReasons()...)
	}
	return strings.Join(parts, "; ")
}

// Assemble returns the context document for one run. The metrics summary is
// always the first segment. Retrieved segments follow in relevance order and
// the first one that would push the document past the budget ends assembly.
// Retrieval failures degrade to a summary-only document.
func (a *Assembler) Assemble(ctx context.Context, m *valuation.MetricsResult, symbol string) *Document {
	start := time.Now()
	doc := &Document{
		Symbol:   symbol,
		Period:   m.Period(),
		Budget:   a.cfg.BudgetChars,
		Segments: []Segment{{Source: SourceMetrics, Text: SummarizeMetrics(m)}},
	}
	if a.retriever == nil {
		return doc
	}

	query := BuildQuery(symbol, m)
	hits, err := a.retriever.Query(ctx, query, a.cfg.TopK)
	if err != nil {
		logger.Get().Warnw("[CONTEXT] Retrieval failed, using metrics summary only",
			"symbol", symbol, "error", err)
		return doc
	}

	size := doc.Segments[0].Size()
	sepLen := utf8.RuneCountInString(segmentSeparator)
	dropped := 0
	for i, hit := range hits {
		if hit.Score <= 0 {
			dropped++
			continue
		}
		seg := Segment{Source: sourceLabel(hit.Chunk), Text: hit.Chunk.Text, Score: hit.Score}
		next := size + sepLen + seg.Size()
		if next > a.cfg.BudgetChars {
			dropped += len(hits) - i
			break
		}
		doc.Segments = append(doc.Segments, seg)
		size = next
	}

	logger.Get().Debugw("[CONTEXT] Assembled context",
		"symbol", symbol, "segments", len(doc.Segments), "dropped", dropped,
		"size", size, "budget", a.cfg.BudgetChars, "elapsed", time.Since(start))
	return doc
}

func sourceLabel(c knowledge.Chunk) string {
	if c.Source == "" {
		return "knowledge"
	}
	return "knowledge:" + c.Source
}
