package knowledge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"valuation_advisor/pkg/core/logger"
	"valuation_advisor/pkg/core/utils"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultEmbedRateLimit   = 5 // embedding calls per second
	DefaultEmbedConcurrency = 4
)

// Ingestor splits documents into chunks, embeds them and upserts the
// result into a VectorStore as one batch.
type Ingestor struct {
	store       *VectorStore
	embedder    Embedder
	limiter     *rate.Limiter
	chunkSize   int
	overlap     int
	concurrency int
}

// IngestOption configures the ingestor
type IngestOption func(*Ingestor)

// WithChunking sets the splitter size and overlap in characters.
func WithChunking(size, overlap int) IngestOption {
	return func(i *Ingestor) {
		i.chunkSize = size
		i.overlap = overlap
	}
}

// WithEmbedRateLimit caps embedding calls per second.
func WithEmbedRateLimit(perSecond int) IngestOption {
	return func(i *Ingestor) {
		if perSecond > 0 {
			i.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// WithConcurrency sets how many embedding calls run at once.
func WithConcurrency(n int) IngestOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// NewIngestor creates an ingestor writing into store.
func NewIngestor(store *VectorStore, embedder Embedder, opts ...IngestOption) *Ingestor {
	i := &Ingestor{
		store:       store,
		embedder:    embedder,
		limiter:     rate.NewLimiter(rate.Limit(DefaultEmbedRateLimit), DefaultEmbedRateLimit),
		chunkSize:   DefaultChunkSize,
		overlap:     DefaultChunkOverlap,
		concurrency: DefaultEmbedConcurrency,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestText splits plain text and stores the chunks. Returns the chunk count.
func (i *Ingestor) IngestText(ctx context.Context, source, text string) (int, error) {
	return i.ingest(ctx, source, SourceText, text)
}

// IngestMarkdown renders markdown to plain text before splitting.
func (i *Ingestor) IngestMarkdown(ctx context.Context, source, markdown string) (int, error) {
	return i.ingest(ctx, source, SourceMarkdown, utils.MarkdownToText(markdown))
}

// IngestHTML keeps the paragraph text of an article page.
func (i *Ingestor) IngestHTML(ctx context.Context, source string, r io.Reader) (int, error) {
	text, err := ExtractParagraphs(r)
	if err != nil {
		return 0, err
	}
	return i.ingest(ctx, source, SourceWeb, text)
}

// IngestFile dispatches on the file extension (.md, .html/.htm, anything else as text).
func (i *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	source := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return i.IngestHTML(ctx, source, f)
	case ".md", ".markdown":
		data, err := io.ReadAll(f)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
		return i.IngestMarkdown(ctx, source, string(data))
	default:
		data, err := io.ReadAll(f)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
		return i.IngestText(ctx, source, string(data))
	}
}

// ExtractParagraphs returns the text of every <p> element, one per block.
func ExtractParagraphs(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var paras []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.Join(strings.Fields(p.Text()), " "); t != "" {
			paras = append(paras, t)
		}
	})
	return strings.Join(paras, "\n\n"), nil
}

func (i *Ingestor) ingest(ctx context.Context, source string, kind SourceType, text string) (int, error) {
	start := time.Now()
	pieces := SplitText(text, i.chunkSize, i.overlap)
	if len(pieces) == 0 {
		return 0, nil
	}

	chunks := make([]Chunk, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx, piece := range pieces {
		g.Go(func() error {
			if err := i.limiter.Wait(gctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
			vec, err := i.embedder.Embed(gctx, piece)
			if err != nil {
				return fmt.Errorf("embed chunk %d of %s: %w", idx, source, err)
			}
			chunks[idx] = Chunk{Source: source, SourceType: kind, Text: piece, Embedding: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := i.store.Upsert(ctx, chunks); err != nil {
		return 0, err
	}
	logger.Get().Infow("[KNOWLEDGE] Ingested document",
		"source", source, "type", kind, "chunks", len(chunks), "elapsed", time.Since(start))
	return len(chunks), nil
}
