package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	gai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiEmbedModel = "text-embedding-004"

// GeminiEmbedder computes embeddings through the Gemini embedding model.
// The client is created lazily on first use and reused.
type GeminiEmbedder struct {
	Model  string
	APIKey string // falls back to GEMINI_API_KEY

	once    sync.Once
	client  *gai.Client
	initErr error
}

var _ Embedder = (*GeminiEmbedder)(nil)

func (e *GeminiEmbedder) init(ctx context.Context) error {
	e.once.Do(func() {
		apiKey := e.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			e.initErr = fmt.Errorf("GEMINI_API_KEY environment variable not set")
			return
		}
		e.client, e.initErr = gai.NewClient(ctx, option.WithAPIKey(apiKey))
	})
	return e.initErr
}

// Embed returns the embedding of text as float64 values.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := e.init(ctx); err != nil {
		return nil, unavailable("gemini_embed", err)
	}
	model := e.Model
	if model == "" {
		model = DefaultGeminiEmbedModel
	}

	res, err := e.client.EmbeddingModel(model).EmbedContent(ctx, gai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embedding returned no values")
	}
	out := make([]float64, len(res.Embedding.Values))
	for i, v := range res.Embedding.Values {
		out[i] = float64(v)
	}
	return out, nil
}

// Close releases the underlying client.
func (e *GeminiEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
