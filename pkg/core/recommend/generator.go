package recommend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/llm"
	"valuation_advisor/pkg/core/logger"
	"valuation_advisor/pkg/core/prompt"
	"valuation_advisor/pkg/core/rag"
)

// Generator renders the recommendation prompt and calls the model once.
type Generator struct {
	provider llm.Provider
	prompts  *prompt.Registry
	cfg      Config
}

// NewGenerator creates a generator. A nil registry uses the global prompt library.
func NewGenerator(provider llm.Provider, prompts *prompt.Registry, cfg Config) *Generator {
	if prompts == nil {
		prompts = prompt.Get()
	}
	return &Generator{provider: provider, prompts: prompts, cfg: cfg.WithDefaults()}
}

// BuildPrompt returns the system and user prompts for doc. The prompt's
// response schema, when it declares one, is embedded in the user prompt.
func (g *Generator) BuildPrompt(doc *rag.Document) (system, user string, err error) {
	pt, err := g.prompts.GetPrompt(g.cfg.PromptID)
	if err != nil {
		return "", "", err
	}
	schema := ""
	if pt.ResponseSchemaID != "" {
		s, err := g.prompts.GetSchema(pt.ResponseSchemaID)
		if err != nil {
			return "", "", err
		}
		if schema, err = s.Compact(); err != nil {
			return "", "", err
		}
	}
	ctx := prompt.NewContext().
		Set("Symbol", doc.Symbol).
		Set("Period", doc.Period).
		Set("Context", doc.Render()).
		Set("RiskFlags", riskFlagList()).
		Set("RationaleLimit", strconv.Itoa(g.cfg.RationaleLimit)).
		Set("Schema", schema)
	user, err = prompt.RenderUserPrompt(pt, ctx)
	if err != nil {
		return "", "", err
	}
	return pt.SystemPrompt, user, nil
}

type generation struct {
	text string
	err  error
}

// Generate returns the raw model output for doc, or "" when the model is
// unavailable, times out, the caller cancels or the prompt cannot be built.
// It never returns an error; callers treat "" as a parse failure.
func (g *Generator) Generate(ctx context.Context, doc *rag.Document) string {
	log := logger.Get()
	if g.provider == nil {
		log.Warnw("[GENERATOR] No model provider configured", "symbol", doc.Symbol)
		return ""
	}

	system, user, err := g.BuildPrompt(doc)
	if err != nil {
		log.Warnw("[GENERATOR] Prompt unavailable", "symbol", doc.Symbol, "prompt", g.cfg.PromptID, "error", err)
		return ""
	}

	if err := ctx.Err(); err != nil {
		log.Warnw("[GENERATOR] Generation skipped", "symbol", doc.Symbol, "error", describe(err))
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout())
	defer cancel()

	start := time.Now()
	done := make(chan generation, 1)
	go func() {
		text, err := g.provider.GenerateResponse(ctx, user, system, llm.Options{
			MaxTokens:   g.cfg.MaxTokens,
			Temperature: llm.Temperature(g.cfg.Temperature),
			JSONMode:    true,
		})
		done <- generation{text: text, err: err}
	}()

	var res generation
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		log.Warnw("[GENERATOR] Generation unavailable",
			"symbol", doc.Symbol, "provider", g.provider.Name(),
			"code", apperr.ErrGenerationUnavailable.Code, "elapsed", time.Since(start),
			"error", describe(res.err))
		return ""
	}

	log.Infow("[GENERATOR] Generation complete",
		"symbol", doc.Symbol, "provider", g.provider.Name(),
		"chars", len(res.text), "elapsed", time.Since(start))
	return strings.TrimSpace(res.text)
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return fmt.Sprint(err)
	}
}
