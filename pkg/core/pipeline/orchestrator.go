package pipeline

import (
	"context"
	"strings"
	"time"

	"valuation_advisor/pkg/core/config"
	"valuation_advisor/pkg/core/knowledge"
	"valuation_advisor/pkg/core/llm"
	"valuation_advisor/pkg/core/logger"
	"valuation_advisor/pkg/core/prompt"
	"valuation_advisor/pkg/core/rag"
	"valuation_advisor/pkg/core/recommend"
	"valuation_advisor/pkg/core/record"
	"valuation_advisor/pkg/core/valuation"

	"golang.org/x/sync/errgroup"
)

const DefaultBatchConcurrency = 4

// Request is one caller invocation: a symbol, an optional period and
// overrides for missing or incorrect line items.
type Request struct {
	Symbol    string                      `json:"symbol"`
	Period    string                      `json:"period,omitempty"`
	Overrides map[record.LineItem]float64 `json:"overrides,omitempty"`
}

// Result is the response payload of one run.
type Result struct {
	Symbol         string                   `json:"symbol"`
	Period         string                   `json:"period"`
	Metrics        *valuation.MetricsResult `json:"metrics"`
	Recommendation recommend.Recommendation `json:"recommendation"`
	Context        *rag.Document            `json:"context,omitempty"`
	Elapsed        time.Duration            `json:"elapsed_ns"`
}

// BatchItem pairs a request with its outcome.
type BatchItem struct {
	Request Request
	Result  *Result
	Err     error
}

// Orchestrator runs the data flow record -> metrics -> context -> generation
// -> parse for independent requests. The knowledge store is the only state
// shared between runs.
type Orchestrator struct {
	provider    DataProvider
	engine      *valuation.Engine
	assembler   *rag.Assembler
	generator   *recommend.Generator
	parser      *recommend.Parser
	concurrency int
}

// NewOrchestrator wires the pipeline stages from cfg. provider may be nil
// when every request carries a complete record through overrides; retriever
// may be nil to run without knowledge retrieval.
func NewOrchestrator(provider DataProvider, model llm.Provider, retriever knowledge.Retriever, cfg config.Config) *Orchestrator {
	parser, err := recommend.NewSchemaParser(prompt.Get(), cfg.Recommendation)
	if err != nil {
		logger.Get().Warnw("[PIPELINE] Response schema unusable, requiring every field",
			"prompt", cfg.Recommendation.PromptID, "error", err)
		parser = recommend.NewParser(cfg.Recommendation)
	}
	return &Orchestrator{
		provider:    provider,
		engine:      valuation.NewEngine(cfg.Valuation),
		assembler:   rag.NewAssembler(retriever, cfg.Context),
		generator:   recommend.NewGenerator(model, prompt.Get(), cfg.Recommendation),
		parser:      parser,
		concurrency: DefaultBatchConcurrency,
	}
}

// SetGenerator allows injecting a generator with a custom prompt registry.
func (o *Orchestrator) SetGenerator(g *recommend.Generator) {
	o.generator = g
}

// SetConcurrency bounds how many runs RunBatch executes at once.
func (o *Orchestrator) SetConcurrency(n int) {
	if n > 0 {
		o.concurrency = n
	}
}

// Run executes one full pipeline run. The only error is a structurally
// invalid record; every other condition degrades to warnings on the
// metrics or a fallback recommendation.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	log := logger.Get()
	start := time.Now()
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	rec := o.fetch(ctx, symbol, req.Period)
	rec = rec.WithOverrides(req.Overrides)

	metrics, err := o.engine.Compute(rec)
	if err != nil {
		log.Errorw("[PIPELINE] Run aborted", "symbol", symbol, "period", rec.Period, "error", err)
		return nil, err
	}

	doc := o.assembler.Assemble(ctx, metrics, rec.Symbol)
	raw := o.generator.Generate(ctx, doc)
	rcm := o.parser.Parse(raw, metrics)

	res := &Result{
		Symbol:         rec.Symbol,
		Period:         rec.Period,
		Metrics:        metrics,
		Recommendation: rcm,
		Context:        doc,
		Elapsed:        time.Since(start),
	}
	log.Infow("[PIPELINE] Run complete",
		"symbol", res.Symbol, "period", res.Period,
		"stance", rcm.Stance, "source", rcm.Source,
		"warnings", len(metrics.Warnings()), "elapsed", res.Elapsed)
	return res, nil
}

// fetch loads the base record. Provider failures leave an empty record with
// the requested identity so overrides can still complete it.
func (o *Orchestrator) fetch(ctx context.Context, symbol, period string) record.FinancialRecord {
	base := record.New(symbol, period)
	if o.provider == nil || symbol == "" {
		return base
	}
	rec, err := o.provider.Fetch(ctx, symbol, period)
	if err != nil {
		logger.Get().Warnw("[PIPELINE] Data provider returned no record",
			"symbol", symbol, "period", period, "error", err)
		return base
	}
	if rec.Symbol == "" {
		rec.Symbol = symbol
	}
	if period != "" {
		rec.Period = period
	}
	return rec
}

// RunBatch executes requests concurrently. Each item carries its own result
// or error; one failed run never cancels the others.
func (o *Orchestrator) RunBatch(ctx context.Context, reqs []Request) []BatchItem {
	items := make([]BatchItem, len(reqs))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, req := range reqs {
		items[i].Request = req
		g.Go(func() error {
			items[i].Result, items[i].Err = o.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return items
}
