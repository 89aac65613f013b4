package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/logger"

	"github.com/google/uuid"
)

// =============================================================================
// IN-MEMORY VECTOR STORE
// =============================================================================

// VectorStore keeps chunks in memory and answers cosine-similarity queries.
// Readers never observe a partially applied Upsert.
type VectorStore struct {
	mu     sync.RWMutex
	chunks []Chunk        // ordered by Seq
	byText map[string]int // text -> index into chunks
	dim    int            // 0 until the first upsert
	seq    uint64

	embedder  Embedder
	persister Persister
	now       func() time.Time
}

// Option configures a VectorStore.
type Option func(*VectorStore)

// WithEmbedder sets the embedder used by Query.
func WithEmbedder(e Embedder) Option {
	return func(s *VectorStore) { s.embedder = e }
}

// WithPersister sets where Restore and Flush read and write.
func WithPersister(p Persister) Option {
	return func(s *VectorStore) { s.persister = p }
}

// WithDimension fixes the embedding dimension up front.
func WithDimension(dim int) Option {
	return func(s *VectorStore) { s.dim = dim }
}

// WithClock replaces time.Now for insertion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *VectorStore) { s.now = now }
}

// NewVectorStore creates an empty store.
func NewVectorStore(opts ...Option) *VectorStore {
	s := &VectorStore{
		byText: make(map[string]int),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of stored chunks.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Dimension returns the fixed embedding dimension, or 0 if not yet known.
func (s *VectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Upsert stores chunks keyed by their exact text. Re-inserting a known text
// replaces its embedding and source and refreshes its insertion order without
// adding an entry. The batch is applied atomically: on error nothing changes.
func (s *VectorStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	// Validate and copy outside the lock.
	prepared := make([]Chunk, 0, len(chunks))
	batchDim := 0
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("chunk %d: empty text", i)
		}
		if len(c.Embedding) == 0 {
			return apperr.WithMessage(apperr.ErrDimensionMismatch, fmt.Sprintf("chunk %d: empty embedding", i))
		}
		if batchDim == 0 {
			batchDim = len(c.Embedding)
		} else if len(c.Embedding) != batchDim {
			return apperr.WithMessage(apperr.ErrDimensionMismatch,
				fmt.Sprintf("chunk %d: dimension %d, batch uses %d", i, len(c.Embedding), batchDim))
		}
		for _, v := range c.Embedding {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("chunk %d: non-finite embedding value", i)
			}
		}
		prepared = append(prepared, c.clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 && batchDim != s.dim {
		return apperr.WithMessage(apperr.ErrDimensionMismatch,
			fmt.Sprintf("batch dimension %d, store uses %d", batchDim, s.dim))
	}
	s.dim = batchDim

	now := s.now()
	for _, c := range prepared {
		s.seq++
		c.Seq = s.seq
		c.InsertedAt = now

		if idx, ok := s.byText[c.Text]; ok {
			c.ID = s.chunks[idx].ID
			if c.Source == "" {
				c.Source = s.chunks[idx].Source
			}
			s.removeAt(idx)
		} else if c.ID == "" {
			c.ID = uuid.NewString()
		}
		s.byText[c.Text] = len(s.chunks)
		s.chunks = append(s.chunks, c)
	}
	return nil
}

// removeAt deletes chunks[idx] keeping Seq order. Caller holds the write lock.
func (s *VectorStore) removeAt(idx int) {
	delete(s.byText, s.chunks[idx].Text)
	copy(s.chunks[idx:], s.chunks[idx+1:])
	s.chunks = s.chunks[:len(s.chunks)-1]
	for i := idx; i < len(s.chunks); i++ {
		s.byText[s.chunks[i].Text] = i
	}
}

// Query embeds text and returns at most k chunks ordered by descending
// similarity. The embedding call runs without holding the store lock.
func (s *VectorStore) Query(ctx context.Context, text string, k int) ([]ScoredChunk, error) {
	if k <= 0 || s.Len() == 0 {
		return []ScoredChunk{}, nil
	}
	if s.embedder == nil {
		return nil, apperr.WithMessage(apperr.ErrStoreUnavailable, "knowledge store has no embedder")
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.QueryVector(vec, k)
}

// QueryVector ranks stored chunks by cosine similarity to vec.
// Ties are broken by most recently inserted first.
func (s *VectorStore) QueryVector(vec []float64, k int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.chunks) == 0 {
		return []ScoredChunk{}, nil
	}
	if len(vec) != s.dim {
		return nil, apperr.WithMessage(apperr.ErrDimensionMismatch,
			fmt.Sprintf("query dimension %d, store uses %d", len(vec), s.dim))
	}

	qNorm := norm(vec)
	scored := make([]ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		scored = append(scored, ScoredChunk{Chunk: c, Score: cosine(vec, qNorm, c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Seq > scored[j].Chunk.Seq
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	for i := range scored {
		scored[i].Chunk = scored[i].Chunk.clone()
	}
	return scored, nil
}

// Snapshot returns copies of all chunks in insertion order.
func (s *VectorStore) Snapshot() []Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chunk, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = c.clone()
	}
	return out
}

// Restore replaces the store contents with the persisted chunk set.
func (s *VectorStore) Restore(ctx context.Context) error {
	if s.persister == nil {
		return apperr.ErrStoreUnavailable
	}
	chunks, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })

	byText := make(map[string]int, len(chunks))
	restored := make([]Chunk, 0, len(chunks))
	dim := 0
	var seq uint64
	for _, c := range chunks {
		if dim == 0 {
			dim = len(c.Embedding)
		} else if len(c.Embedding) != dim {
			return apperr.WithMessage(apperr.ErrDimensionMismatch,
				fmt.Sprintf("persisted chunk %s has dimension %d, expected %d", c.ID, len(c.Embedding), dim))
		}
		if idx, dup := byText[c.Text]; dup {
			restored[idx] = c.clone()
		} else {
			byText[c.Text] = len(restored)
			restored = append(restored, c.clone())
		}
		if c.Seq > seq {
			seq = c.Seq
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = restored
	s.byText = byText
	s.seq = seq
	if dim != 0 {
		s.dim = dim
	}
	logger.Get().Infow("[KNOWLEDGE] Restored chunks", "chunks", len(restored), "dimension", s.dim)
	return nil
}

// Flush writes the current chunk set to the persister.
// The snapshot is taken under the read lock; the write happens outside it.
func (s *VectorStore) Flush(ctx context.Context) error {
	if s.persister == nil {
		return apperr.ErrStoreUnavailable
	}
	chunks := s.Snapshot()
	if err := s.persister.Save(ctx, chunks); err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}
	logger.Get().Infow("[KNOWLEDGE] Flushed chunks", "chunks", len(chunks))
	return nil
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero length.
func cosine(q []float64, qNorm float64, v []float64) float64 {
	vNorm := norm(v)
	if qNorm == 0 || vNorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += q[i] * v[i]
	}
	return dot / (qNorm * vNorm)
}
