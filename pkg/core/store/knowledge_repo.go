package store

import (
	"context"
	"fmt"
	"time"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/knowledge"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const knowledgeSchema = `
	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id          TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		source_type TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL UNIQUE,
		embedding   DOUBLE PRECISION[] NOT NULL,
		inserted_at TIMESTAMPTZ NOT NULL,
		seq         BIGINT NOT NULL
	)
`

const upsertChunkSQL = `
	INSERT INTO knowledge_chunks (id, source, source_type, content, embedding, inserted_at, seq)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (content)
	DO UPDATE SET
		source = EXCLUDED.source,
		source_type = EXCLUDED.source_type,
		embedding = EXCLUDED.embedding,
		inserted_at = EXCLUDED.inserted_at,
		seq = EXCLUDED.seq
`

// KnowledgeRepo persists the knowledge chunk set in Postgres.
// It implements knowledge.Persister.
type KnowledgeRepo struct {
	pool *pgxpool.Pool
}

// NewKnowledgeRepo creates a new knowledge repository
func NewKnowledgeRepo(pool *pgxpool.Pool) *KnowledgeRepo {
	return &KnowledgeRepo{pool: pool}
}

var _ knowledge.Persister = (*KnowledgeRepo)(nil)

// EnsureSchema creates the chunk table if it does not exist.
func (r *KnowledgeRepo) EnsureSchema(ctx context.Context) error {
	if r.pool == nil {
		return apperr.ErrStoreUnavailable
	}
	if _, err := r.pool.Exec(ctx, knowledgeSchema); err != nil {
		return fmt.Errorf("failed to create knowledge schema: %w", err)
	}
	return nil
}

// Load returns every persisted chunk ordered by insertion sequence.
func (r *KnowledgeRepo) Load(ctx context.Context) ([]knowledge.Chunk, error) {
	if r.pool == nil {
		return nil, apperr.ErrStoreUnavailable
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, source, source_type, content, embedding, inserted_at, seq
		FROM knowledge_chunks
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge chunks: %w", err)
	}
	defer rows.Close()

	var chunks []knowledge.Chunk
	for rows.Next() {
		var (
			c          knowledge.Chunk
			sourceType string
			insertedAt time.Time
			seq        int64
		)
		if err := rows.Scan(&c.ID, &c.Source, &sourceType, &c.Text, &c.Embedding, &insertedAt, &seq); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge chunk: %w", err)
		}
		c.SourceType = knowledge.SourceType(sourceType)
		c.InsertedAt = insertedAt
		c.Seq = uint64(seq)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Save replaces the persisted set with chunks in a single transaction.
func (r *KnowledgeRepo) Save(ctx context.Context, chunks []knowledge.Chunk) error {
	if r.pool == nil {
		return apperr.ErrStoreUnavailable
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ids := make([]string, len(chunks))
		batch := &pgx.Batch{}
		for i, c := range chunks {
			ids[i] = c.ID
			batch.Queue(upsertChunkSQL,
				c.ID, c.Source, string(c.SourceType), c.Text, c.Embedding, c.InsertedAt, int64(c.Seq))
		}

		if batch.Len() > 0 {
			br := tx.SendBatch(ctx, batch)
			for range chunks {
				if _, err := br.Exec(); err != nil {
					br.Close()
					return fmt.Errorf("failed to upsert knowledge chunk: %w", err)
				}
			}
			if err := br.Close(); err != nil {
				return fmt.Errorf("failed to flush knowledge batch: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks WHERE id <> ALL($1::text[])`, ids); err != nil {
			return fmt.Errorf("failed to prune knowledge chunks: %w", err)
		}
		return nil
	})
}
