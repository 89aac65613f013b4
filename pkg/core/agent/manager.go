package agent

import (
	"fmt"
	"sort"
	"strings"

	"valuation_advisor/pkg/core/llm"
	"valuation_advisor/pkg/core/logger"
)

// Provider names understood by the manager.
const (
	ProviderOllama       = "ollama"
	ProviderOpenAICompat = "openai_compat"
	ProviderGemini       = "gemini"
)

// AgentRecommendation is the agent type used for investment recommendations.
const AgentRecommendation = "recommendation"

type Config struct {
	ActiveProvider    string                    `yaml:"active_provider"`
	EmbeddingProvider string                    `yaml:"embedding_provider"`
	Providers         map[string]ProviderConfig `yaml:"providers"`
	Agents            map[string]AgentConfig    `yaml:"agents"`
}

// ProviderConfig points a provider at a runtime.
type ProviderConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	APIKey     string `yaml:"api_key"`
}

type AgentConfig struct {
	Provider    string `yaml:"provider"` // Optional override
	Description string `yaml:"description"`
}

type Manager struct {
	config    Config
	providers map[string]llm.Provider
	embedders map[string]llm.Embedder
}

func NewManager(config Config) *Manager {
	if config.ActiveProvider == "" {
		config.ActiveProvider = ProviderOllama
	}
	if config.EmbeddingProvider == "" {
		config.EmbeddingProvider = config.ActiveProvider
	}
	pc := func(name string) ProviderConfig { return config.Providers[name] }

	ollama, compat, gemini := pc(ProviderOllama), pc(ProviderOpenAICompat), pc(ProviderGemini)
	return &Manager{
		config: config,
		providers: map[string]llm.Provider{
			ProviderOllama:       &llm.OllamaProvider{BaseURL: ollama.BaseURL, Model: ollama.Model},
			ProviderOpenAICompat: &llm.OpenAICompatProvider{BaseURL: compat.BaseURL, Model: compat.Model, APIKey: compat.APIKey},
			ProviderGemini:       &llm.GeminiProvider{Model: gemini.Model, APIKey: gemini.APIKey},
		},
		embedders: map[string]llm.Embedder{
			ProviderOllama:       &llm.OllamaEmbedder{BaseURL: ollama.BaseURL, Model: ollama.EmbedModel},
			ProviderOpenAICompat: &llm.OpenAICompatEmbedder{BaseURL: compat.BaseURL, Model: compat.EmbedModel, APIKey: compat.APIKey},
			ProviderGemini:       &llm.GeminiEmbedder{Model: gemini.EmbedModel, APIKey: gemini.APIKey},
		},
	}
}

// Register adds or replaces a provider under name.
func (m *Manager) Register(name string, p llm.Provider) {
	m.providers[name] = p
}

func (m *Manager) GetProvider(agentType string) llm.Provider {
	// 1. Check for agent-specific override
	if agentConfig, ok := m.config.Agents[agentType]; ok && agentConfig.Provider != "" {
		if p, ok := m.providers[agentConfig.Provider]; ok {
			return p
		}
	}

	// 2. Use global active provider
	if p, ok := m.providers[m.config.ActiveProvider]; ok {
		return p
	}

	// 3. Fallback
	return m.providers[ProviderOllama]
}

// GetEmbedder returns the configured embedding provider.
func (m *Manager) GetEmbedder() llm.Embedder {
	if e, ok := m.embedders[m.config.EmbeddingProvider]; ok {
		return e
	}
	return m.embedders[ProviderOllama]
}

func (m *Manager) SetGlobalProvider(newProvider string) error {
	if _, ok := m.providers[newProvider]; !ok {
		return fmt.Errorf("provider %s not found (available: %s)", newProvider, strings.Join(m.providerNames(), ", "))
	}
	m.config.ActiveProvider = newProvider
	logger.Get().Infow("[AGENT] Global provider set", "provider", newProvider)
	return nil
}

func (m *Manager) providerNames() []string {
	names := make([]string, 0, len(m.providers))
	for k := range m.providers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
