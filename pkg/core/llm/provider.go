package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"valuation_advisor/pkg/core/apperr"
)

// Options bounds a single generation call.
type Options struct {
	Model       string   // overrides the provider default when set
	MaxTokens   int      // 0 leaves the runtime default
	Temperature *float64 // nil leaves the runtime default
	JSONMode    bool     // ask the runtime for a JSON object
}

// Temperature returns a pointer for Options.Temperature.
func Temperature(t float64) *float64 { return &t }

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, opts Options) (string, error)
	// Name identifies the provider in logs.
	Name() string
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

const defaultHTTPTimeout = 120 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// unavailable marks transport-level failures so callers can tell an absent
// runtime from a bad response.
func unavailable(provider string, err error) error {
	return apperr.Wrap(apperr.ErrGenerationUnavailable, fmt.Errorf("%s: %w", provider, err))
}

// readError drains a non-2xx body into an error.
func readError(provider string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%s_API_ERROR: status=%d body=%s", provider, res.StatusCode, string(body))
}
