// Package config loads the runtime configuration: a YAML file layered over
// documented defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"valuation_advisor/pkg/core/agent"
	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/knowledge"
	"valuation_advisor/pkg/core/rag"
	"valuation_advisor/pkg/core/recommend"
	"valuation_advisor/pkg/core/valuation"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Knowledge store backends.
const (
	BackendMemory   = "memory"   // in-process only
	BackendFile     = "file"     // JSON snapshot file
	BackendPostgres = "postgres" // knowledge_chunks table
)

type Config struct {
	Env            string           `yaml:"env"`
	PromptsDir     string           `yaml:"prompts_dir"`
	Models         agent.Config     `yaml:"models"`
	Valuation      valuation.Config `yaml:"valuation"`
	Context        rag.Config       `yaml:"context"`
	Recommendation recommend.Config `yaml:"recommendation"`
	Knowledge      KnowledgeConfig  `yaml:"knowledge"`
	Store          StoreConfig      `yaml:"store"`
}

type KnowledgeConfig struct {
	Backend          string `yaml:"backend"`
	SnapshotPath     string `yaml:"snapshot_path"`
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	EmbedRateLimit   int    `yaml:"embed_rate_limit"` // calls per second
	EmbedConcurrency int    `yaml:"embed_concurrency"`
}

type StoreConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Env:        "development",
		PromptsDir: "resources",
		Models: agent.Config{
			ActiveProvider:    agent.ProviderOllama,
			EmbeddingProvider: agent.ProviderOllama,
		},
		Valuation:      valuation.DefaultConfig(),
		Context:        rag.DefaultConfig(),
		Recommendation: recommend.DefaultConfig(),
		Knowledge: KnowledgeConfig{
			Backend:          BackendFile,
			SnapshotPath:     "data/knowledge.json",
			ChunkSize:        knowledge.DefaultChunkSize,
			ChunkOverlap:     knowledge.DefaultChunkOverlap,
			EmbedRateLimit:   knowledge.DefaultEmbedRateLimit,
			EmbedConcurrency: knowledge.DefaultEmbedConcurrency,
		},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then environment overrides. Zero values in the file keep their defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over cfg.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperr.Wrap(apperr.ErrConfig, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Env, "APP_ENV")
	set(&c.Store.DatabaseURL, "DATABASE_URL")
	set(&c.Knowledge.SnapshotPath, "KNOWLEDGE_SNAPSHOT")
	set(&c.Knowledge.Backend, "KNOWLEDGE_BACKEND")
	set(&c.Models.ActiveProvider, "LLM_PROVIDER")

	if v := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); v != "" {
		c.setProvider(agent.ProviderOllama, func(p *agent.ProviderConfig) { p.BaseURL = v })
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		c.setProvider(agent.ProviderGemini, func(p *agent.ProviderConfig) { p.APIKey = v })
	}
}

func (c *Config) setProvider(name string, fn func(*agent.ProviderConfig)) {
	if c.Models.Providers == nil {
		c.Models.Providers = make(map[string]agent.ProviderConfig)
	}
	p := c.Models.Providers[name]
	fn(&p)
	c.Models.Providers[name] = p
}

func (c *Config) fillDefaults() {
	d := Default()
	c.Valuation = c.Valuation.WithDefaults()
	c.Context = c.Context.WithDefaults()
	c.Recommendation = c.Recommendation.WithDefaults()
	if c.Models.ActiveProvider == "" {
		c.Models.ActiveProvider = d.Models.ActiveProvider
	}
	if c.Knowledge.Backend == "" {
		c.Knowledge.Backend = d.Knowledge.Backend
	}
	if c.Knowledge.ChunkSize <= 0 {
		c.Knowledge.ChunkSize = d.Knowledge.ChunkSize
	}
	if c.Knowledge.ChunkOverlap < 0 {
		c.Knowledge.ChunkOverlap = d.Knowledge.ChunkOverlap
	}
	if c.Knowledge.EmbedRateLimit <= 0 {
		c.Knowledge.EmbedRateLimit = d.Knowledge.EmbedRateLimit
	}
	if c.Knowledge.EmbedConcurrency <= 0 {
		c.Knowledge.EmbedConcurrency = d.Knowledge.EmbedConcurrency
	}
}

// Validate rejects combinations that cannot run.
func (c Config) Validate() error {
	var problems []string
	switch c.Models.ActiveProvider {
	case agent.ProviderOllama, agent.ProviderOpenAICompat, agent.ProviderGemini:
	default:
		problems = append(problems, fmt.Sprintf("unknown models.active_provider %q", c.Models.ActiveProvider))
	}
	switch c.Knowledge.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Knowledge.SnapshotPath == "" {
			problems = append(problems, "knowledge.snapshot_path is required for the file backend")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url (or DATABASE_URL) is required for the postgres backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown knowledge.backend %q", c.Knowledge.Backend))
	}
	if c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		problems = append(problems, "knowledge.chunk_overlap must be smaller than chunk_size")
	}
	if c.Valuation.Horizon <= 0 {
		problems = append(problems, "valuation.horizon must be positive")
	}
	if len(problems) > 0 {
		return apperr.WithMessage(apperr.ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}
