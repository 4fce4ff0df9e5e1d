package llm

import (
	"net/http"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// FactoryConfig holds deployment-wide adapter settings.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// BaseURLs overrides the default API root per provider.
	BaseURLs map[domain.Provider]string
	// HTTPClient is shared by every adapter the factory builds.
	HTTPClient *http.Client
}

// Factory builds adapters for the fixed provider set. It performs no I/O.
type Factory struct {
	cfg FactoryConfig
}

// NewFactory creates a Factory. A nil HTTPClient gives every adapter its own default client.
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{cfg: cfg}
}

// Create returns the adapter for provider. Deployment base URL and client
// settings fill in whatever cfg leaves empty.
func (f *Factory) Create(provider domain.Provider, cfg Config) (Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = f.cfg.BaseURLs[provider]
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = f.cfg.HTTPClient
	}
	return NewProvider(provider, cfg)
}

// NewProvider creates the adapter for provider. Returns
// *domain.UnsupportedProviderError for names outside the supported set.
func NewProvider(provider domain.Provider, cfg Config) (Provider, error) {
	switch provider {
	case domain.ProviderDeepSeek:
		return NewDeepSeekProvider(cfg), nil
	case domain.ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case domain.ProviderClaude:
		return NewClaudeProvider(cfg), nil
	case domain.ProviderGemini:
		return NewGeminiProvider(cfg), nil
	default:
		return nil, &domain.UnsupportedProviderError{Provider: string(provider)}
	}
}
