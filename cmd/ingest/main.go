package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"valuation_advisor/pkg/core/agent"
	"valuation_advisor/pkg/core/config"
	"valuation_advisor/pkg/core/knowledge"
	"valuation_advisor/pkg/core/logger"
	"valuation_advisor/pkg/core/store"
)

var ingestible = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".html": true, ".htm": true}

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the YAML config (empty for defaults)")
	dir := flag.String("dir", "", "Ingest every .txt, .md and .html file below this directory")
	url := flag.String("url", "", "Fetch and ingest the paragraphs of one web page")
	query := flag.String("query", "", "After ingesting, print the top matches for this query")
	topK := flag.Int("k", 3, "Number of matches printed for -query")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Env)
	defer logger.Sync()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	embedder := agent.NewManager(cfg.Models).GetEmbedder()
	ks, err := store.OpenKnowledge(ctx, cfg, embedder)
	if err != nil {
		log.Fatalw("[STORE] Cannot open knowledge store", "error", err)
	}
	defer store.Close()

	ing := knowledge.NewIngestor(ks, embedder,
		knowledge.WithChunking(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap),
		knowledge.WithEmbedRateLimit(cfg.Knowledge.EmbedRateLimit),
		knowledge.WithConcurrency(cfg.Knowledge.EmbedConcurrency),
	)

	files := flag.Args()
	if *dir != "" {
		err := filepath.WalkDir(*dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && ingestible[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			log.Fatalw("Cannot walk directory", "dir", *dir, "error", err)
		}
	}

	total, failed := 0, 0
	for _, path := range files {
		n, err := ing.IngestFile(ctx, path)
		if err != nil {
			failed++
			log.Warnw("[KNOWLEDGE] Skipping file", "path", path, "error", err)
			continue
		}
		total += n
	}

	if *url != "" {
		n, err := ingestURL(ctx, ing, *url)
		if err != nil {
			failed++
			log.Warnw("[KNOWLEDGE] Skipping page", "url", *url, "error", err)
		}
		total += n
	}

	if cfg.Knowledge.Backend != config.BackendMemory && total > 0 {
		if err := ks.Flush(ctx); err != nil {
			log.Fatalw("[STORE] Flush failed", "error", err)
		}
	}
	log.Infow("[KNOWLEDGE] Ingestion finished", "chunks", total, "failed", failed, "stored", ks.Len())

	if *query != "" {
		hits, err := ks.Query(ctx, *query, *topK)
		if err != nil {
			log.Fatalw("Query failed", "error", err)
		}
		for i, h := range hits {
			fmt.Printf("%d. [%.3f] %s\n   %s\n", i+1, h.Score, h.Chunk.Source, preview(h.Chunk.Text, 160))
		}
	}
}

func ingestURL(ctx context.Context, ing *knowledge.Ingestor, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", res.StatusCode)
	}
	return ing.IngestHTML(ctx, url, res.Body)
}

func preview(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
