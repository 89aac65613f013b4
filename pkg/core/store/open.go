package store

import (
	"context"
	"fmt"

	"valuation_advisor/pkg/core/config"
	"valuation_advisor/pkg/core/knowledge"
	"valuation_advisor/pkg/core/logger"
)

// OpenKnowledge builds the knowledge store for the configured backend and
// restores its persisted chunks.
func OpenKnowledge(ctx context.Context, cfg config.Config, embedder knowledge.Embedder) (*knowledge.VectorStore, error) {
	opts := []knowledge.Option{knowledge.WithEmbedder(embedder)}

	switch cfg.Knowledge.Backend {
	case config.BackendMemory:
		return knowledge.NewVectorStore(opts...), nil
	case config.BackendFile:
		opts = append(opts, knowledge.WithPersister(knowledge.NewFileSnapshot(cfg.Knowledge.SnapshotPath)))
	case config.BackendPostgres:
		if err := InitDB(ctx, cfg.Store.DatabaseURL); err != nil {
			return nil, err
		}
		repo := NewKnowledgeRepo(GetPool())
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, knowledge.WithPersister(repo))
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Knowledge.Backend)
	}

	ks := knowledge.NewVectorStore(opts...)
	if err := ks.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore knowledge store: %w", err)
	}
	logger.Get().Infow("[STORE] Knowledge store ready",
		"backend", cfg.Knowledge.Backend, "chunks", ks.Len())
	return ks, nil
}
