package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/config"
	"valuation_advisor/pkg/core/knowledge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeRepoWithoutPool(t *testing.T) {
	repo := NewKnowledgeRepo(nil)
	ctx := context.Background()

	_, err := repo.Load(ctx)
	assert.True(t, errors.Is(err, apperr.ErrStoreUnavailable))
	assert.True(t, errors.Is(repo.Save(ctx, nil), apperr.ErrStoreUnavailable))
	assert.True(t, errors.Is(repo.EnsureSchema(ctx), apperr.ErrStoreUnavailable))
}

func TestKnowledgeRepoRoundTrip(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, InitDB(ctx, ""))
	repo := NewKnowledgeRepo(GetPool())
	require.NoError(t, repo.EnsureSchema(ctx))

	vs := knowledge.NewVectorStore(knowledge.WithPersister(repo))
	require.NoError(t, vs.Upsert(ctx, []knowledge.Chunk{
		{Source: "repo-test", Text: "repo test chunk one", Embedding: []float64{1, 0}},
		{Source: "repo-test", Text: "repo test chunk two", Embedding: []float64{0, 1}},
	}))
	require.NoError(t, vs.Flush(ctx))

	restored := knowledge.NewVectorStore(knowledge.WithPersister(repo))
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, 2, restored.Len())

	got, err := restored.QueryVector([]float64{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "repo test chunk two", got[0].Chunk.Text)

	require.NoError(t, repo.Save(ctx, nil))
}

func TestOpenKnowledgeFileBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Knowledge.Backend = config.BackendFile
	cfg.Knowledge.SnapshotPath = filepath.Join(t.TempDir(), "kb.json")
	ctx := context.Background()

	ks, err := OpenKnowledge(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, ks.Upsert(ctx, []knowledge.Chunk{{Source: "s", Text: "t", Embedding: []float64{1}}}))
	require.NoError(t, ks.Flush(ctx))

	again, err := OpenKnowledge(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len())

	cfg.Knowledge.Backend = config.BackendMemory
	mem, err := OpenKnowledge(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Len())

	cfg.Knowledge.Backend = "s3"
	_, err = OpenKnowledge(ctx, cfg, nil)
	assert.Error(t, err)
}
