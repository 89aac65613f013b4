package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultOllamaModel      = "gemma:2b"
	DefaultOllamaEmbedModel = "nomic-embed-text"
)

// OllamaProvider talks to a local Ollama runtime over /api/generate.
type OllamaProvider struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Ensure interface compliance
var _ Provider = (*OllamaProvider)(nil)

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) baseURL() string {
	if p.BaseURL == "" {
		return DefaultOllamaHost
	}
	return strings.TrimRight(p.BaseURL, "/")
}

func (p *OllamaProvider) client() *http.Client {
	if p.HTTPClient == nil {
		return defaultHTTPClient()
	}
	return p.HTTPClient
}

// GenerateResponse runs a single non-streaming generation.
func (p *OllamaProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, opts Options) (string, error) {
	model := p.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	if opts.Model != "" {
		model = opts.Model
	}

	reqBody := ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt,
		System: systemPrompt,
		Stream: false,
	}
	if opts.JSONMode {
		reqBody.Format = "json"
	}
	runtimeOpts := map[string]any{}
	if opts.MaxTokens > 0 {
		runtimeOpts["num_predict"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		runtimeOpts["temperature"] = *opts.Temperature
	}
	if len(runtimeOpts) > 0 {
		reqBody.Options = runtimeOpts
	}

	var out ollamaGenerateResponse
	if err := p.post(ctx, "/api/generate", reqBody, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("OLLAMA_ERROR: %s", out.Error)
	}
	return out.Response, nil
}

func (p *OllamaProvider) post(ctx context.Context, path string, body, out any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("OLLAMA_MARSHAL_ERROR: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL()+path, bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("OLLAMA_REQ_CREATE_ERROR: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client().Do(req)
	if err != nil {
		return unavailable("ollama", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return readError("OLLAMA", res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("OLLAMA_UNMARSHAL_ERROR: %v", err)
	}
	return nil
}

// OllamaEmbedder computes embeddings with a local Ollama model.
type OllamaEmbedder struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed calls /api/embeddings.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	model := e.Model
	if model == "" {
		model = DefaultOllamaEmbedModel
	}
	p := &OllamaProvider{BaseURL: e.BaseURL, HTTPClient: e.HTTPClient}

	var out ollamaEmbedResponse
	if err := p.post(ctx, "/api/embeddings", ollamaEmbedRequest{Model: model, Prompt: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("OLLAMA_EMPTY_EMBEDDING: model %s returned no vector", model)
	}
	return out.Embedding, nil
}
