package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"valuation_advisor/pkg/core/agent"
	"valuation_advisor/pkg/core/config"
	"valuation_advisor/pkg/core/knowledge"
	"valuation_advisor/pkg/core/logger"
	"valuation_advisor/pkg/core/pipeline"
	"valuation_advisor/pkg/core/prompt"
	"valuation_advisor/pkg/core/record"
	"valuation_advisor/pkg/core/store"
)

// overrideFlags collects repeated -set key=value flags.
type overrideFlags []string

func (o *overrideFlags) String() string     { return strings.Join(*o, ",") }
func (o *overrideFlags) Set(v string) error { *o = append(*o, v); return nil }

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the YAML config (empty for defaults)")
	symbols := flag.String("symbol", "", "Ticker symbol, or a comma separated list for a batch run")
	period := flag.String("period", "", "Fiscal period (defaults to the data file's period)")
	dataDir := flag.String("data", "data/companies", "Directory holding <SYMBOL>.json or <SYMBOL>.yaml records")
	provider := flag.String("provider", "", "Override the active model provider (ollama, openai_compat, gemini)")
	showContext := flag.Bool("context", false, "Include the assembled context document in the output")
	var overrides overrideFlags
	flag.Var(&overrides, "set", "Override a line item, e.g. -set beta=1.1 -set tax_rate=21% (repeatable)")
	flag.Parse()

	if *symbols == "" {
		fmt.Fprintln(os.Stderr, "Error: -symbol is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Env)
	defer logger.Sync()
	log := logger.Get()

	if _, err := os.Stat(cfg.PromptsDir); err == nil {
		if err := prompt.LoadFromDirectory(cfg.PromptsDir); err != nil {
			log.Warnw("[PROMPT] Using embedded prompts", "dir", cfg.PromptsDir, "error", err)
		}
	}

	overrideMap, err := record.ParseOverrides(overrides)
	if err != nil {
		log.Fatalw("Invalid override", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mgr := agent.NewManager(cfg.Models)
	if *provider != "" {
		if err := mgr.SetGlobalProvider(*provider); err != nil {
			log.Fatalw("Unknown provider", "provider", *provider, "error", err)
		}
	}

	var retriever knowledge.Retriever
	ks, err := store.OpenKnowledge(ctx, cfg, mgr.GetEmbedder())
	if err != nil {
		log.Warnw("[STORE] Knowledge store unavailable, running without retrieval", "error", err)
	} else {
		retriever = ks
	}
	defer store.Close()

	orch := pipeline.NewOrchestrator(
		pipeline.NewFileProvider(*dataDir),
		mgr.GetProvider(agent.AgentRecommendation),
		retriever,
		cfg,
	)

	var reqs []pipeline.Request
	for _, s := range strings.Split(*symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			reqs = append(reqs, pipeline.Request{Symbol: s, Period: *period, Overrides: overrideMap})
		}
	}

	exit := 0
	var out []any
	for _, item := range orch.RunBatch(ctx, reqs) {
		if item.Err != nil {
			exit = 1
			out = append(out, map[string]string{"symbol": item.Request.Symbol, "error": item.Err.Error()})
			continue
		}
		if !*showContext {
			item.Result.Context = nil
		}
		out = append(out, item.Result)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var payload any = out
	if len(out) == 1 {
		payload = out[0]
	}
	if err := enc.Encode(payload); err != nil {
		log.Fatalw("Failed to write output", "error", err)
	}
	if exit != 0 {
		logger.Sync()
		os.Exit(exit)
	}
}
