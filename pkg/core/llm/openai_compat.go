package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const DefaultOpenAICompatURL = "http://localhost:8080"

// OpenAICompatProvider speaks the OpenAI chat completions protocol served by
// llama-server, LM Studio and similar local runtimes.
type OpenAICompatProvider struct {
	BaseURL    string
	Model      string
	APIKey     string // optional; falls back to OPENAI_COMPAT_API_KEY
	HTTPClient *http.Client
}

var _ Provider = (*OpenAICompatProvider)(nil)

type chatRequest struct {
	Messages       []Message       `json:"messages"`
	Model          string          `json:"model,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAICompatProvider) Name() string { return "openai_compat" }

func (p *OpenAICompatProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, opts Options) (string, error) {
	model := p.Model
	if opts.Model != "" {
		model = opts.Model
	}

	var messages []Message
	if systemPrompt != "" {
		messages = append(messages, Message{Content: systemPrompt, Role: "system"})
	}
	messages = append(messages, Message{Content: prompt, Role: "user"})

	reqBody := chatRequest{
		Messages:    messages,
		Model:       model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      false,
	}
	if opts.JSONMode {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	var response chatResponse
	body, err := p.post(ctx, "/v1/chat/completions", reqBody, &response)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("OPENAI_COMPAT_NO_CHOICES: %s", string(body))
	}
	return response.Choices[0].Message.Content, nil
}

// OpenAICompatEmbedder calls /v1/embeddings on the same kind of runtime.
type OpenAICompatEmbedder struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

var _ Embedder = (*OpenAICompatEmbedder)(nil)

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAICompatEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	p := &OpenAICompatProvider{BaseURL: e.BaseURL, APIKey: e.APIKey, HTTPClient: e.HTTPClient}
	var response embeddingResponse
	if _, err := p.post(ctx, "/v1/embeddings", embeddingRequest{Input: text, Model: e.Model}, &response); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 || len(response.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("OPENAI_COMPAT_EMPTY_EMBEDDING")
	}
	return response.Data[0].Embedding, nil
}

func (p *OpenAICompatProvider) post(ctx context.Context, path string, reqBody, out any) ([]byte, error) {
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAICompatURL
	}
	apiKey := p.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_COMPAT_API_KEY")
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("OPENAI_COMPAT_MARSHAL_ERROR: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+path, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("OPENAI_COMPAT_REQ_CREATE_ERROR: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := p.HTTPClient
	if client == nil {
		client = defaultHTTPClient()
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, unavailable("openai_compat", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, readError("OPENAI_COMPAT", res)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return nil, fmt.Errorf("OPENAI_COMPAT_READ_BODY_ERROR: %v", err)
	}
	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return nil, fmt.Errorf("OPENAI_COMPAT_UNMARSHAL_ERROR: %v", err)
	}
	return buf.Bytes(), nil
}
