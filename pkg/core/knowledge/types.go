// Package knowledge implements the embedding-indexed store of short text
// chunks (financial definitions, prior analyses) used to ground
// recommendations. Embedding vectors are opaque to the store; they come
// from an external Embedder.
package knowledge

import (
	"context"
	"time"
)

// =============================================================================
// SOURCE TYPES
// =============================================================================

// SourceType identifies where a chunk's text was ingested from
type SourceType string

const (
	SourceText     SourceType = "TEXT"     // Plain text notes
	SourceMarkdown SourceType = "MARKDOWN" // Markdown notes and definitions
	SourceWeb      SourceType = "WEB"      // Saved article pages
)

// =============================================================================
// CHUNK (Semantic Unit for RAG)
// =============================================================================

// Chunk is a unit of retrievable text. Chunks are immutable once stored;
// the store hands out copies.
type Chunk struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"` // e.g. "definitions/wacc.md"
	SourceType SourceType `json:"source_type,omitempty"`
	Text       string     `json:"text"`
	Embedding  []float64  `json:"embedding"`

	// Insertion order; later upserts of the same text refresh both.
	InsertedAt time.Time `json:"inserted_at"`
	Seq        uint64    `json:"seq"`
}

func (c Chunk) clone() Chunk {
	c.Embedding = append([]float64(nil), c.Embedding...)
	return c
}

// ScoredChunk pairs a chunk with its cosine similarity to a query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Persister stores the full chunk set across runs.
type Persister interface {
	Load(ctx context.Context) ([]Chunk, error)
	Save(ctx context.Context, chunks []Chunk) error
}

// Retriever is the read side consumed by context assembly.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]ScoredChunk, error)
}
