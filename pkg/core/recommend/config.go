package recommend

import (
	"time"

	"valuation_advisor/pkg/core/prompt"
)

const (
	DefaultTimeoutSeconds     = 60
	DefaultMaxTokens          = 512
	DefaultTemperature        = 0.2
	DefaultFallbackMargin     = 0.15
	DefaultFallbackConfidence = 0.30
	DefaultRationaleLimit     = 1200
)

// Config controls generation limits, parsing bounds and the fallback rule.
type Config struct {
	TimeoutSeconds     int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxTokens          int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature        float64 `yaml:"temperature" json:"temperature"`
	FallbackMargin     float64 `yaml:"fallback_margin" json:"fallback_margin"`
	FallbackConfidence float64 `yaml:"fallback_confidence" json:"fallback_confidence"`
	RationaleLimit     int     `yaml:"rationale_limit" json:"rationale_limit"`
	PromptID           string  `yaml:"prompt_id" json:"prompt_id"`
}

func DefaultConfig() Config {
	return Config{
		TimeoutSeconds:     DefaultTimeoutSeconds,
		MaxTokens:          DefaultMaxTokens,
		Temperature:        DefaultTemperature,
		FallbackMargin:     DefaultFallbackMargin,
		FallbackConfidence: DefaultFallbackConfidence,
		RationaleLimit:     DefaultRationaleLimit,
		PromptID:           prompt.PromptIDs.RecommendationInvestment,
	}
}

// WithDefaults fills zero or out-of-range fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = d.TimeoutSeconds
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.FallbackMargin <= 0 {
		c.FallbackMargin = d.FallbackMargin
	}
	if c.FallbackConfidence <= 0 || c.FallbackConfidence > 1 {
		c.FallbackConfidence = d.FallbackConfidence
	}
	if c.RationaleLimit <= 0 {
		c.RationaleLimit = d.RationaleLimit
	}
	if c.PromptID == "" {
		c.PromptID = d.PromptID
	}
	return c
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
