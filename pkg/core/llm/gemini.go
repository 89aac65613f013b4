package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements the Provider interface for Google's Gemini models.
type GeminiProvider struct {
	Model  string // e.g. "gemini-2.0-flash"
	APIKey string // falls back to GEMINI_API_KEY
}

// Ensure interface compliance
var _ Provider = (*GeminiProvider)(nil)

func (p *GeminiProvider) Name() string { return "gemini" }

// GenerateResponse sends a generateContent request to the Gemini API using the official GenAI SDK.
func (p *GeminiProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, opts Options) (string, error) {
	apiKey := p.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return "", unavailable("gemini", fmt.Errorf("GEMINI_API_KEY environment variable not set"))
	}

	// Determine model
	model := p.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	if opts.Model != "" {
		model = opts.Model
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", unavailable("gemini", fmt.Errorf("failed to create GenAI client: %w", err))
	}

	// Prepare Config
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.1)), // SDK expects *float32
	}
	if opts.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	// Add System Instruction if present
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: systemPrompt},
			},
		}
	}

	result, err := client.Models.GenerateContent(
		ctx,
		model,
		genai.Text(prompt),
		config,
	)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return result.Text(), nil
}
