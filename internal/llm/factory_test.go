package llm

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// Compile-time interface checks.
var (
	_ Provider = (*DeepSeekProvider)(nil)
	_ Provider = (*OpenAIProvider)(nil)
	_ Provider = (*ClaudeProvider)(nil)
	_ Provider = (*GeminiProvider)(nil)
)

func TestNewProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider domain.Provider
		model    string
	}{
		{domain.ProviderDeepSeek, "deepseek-chat"},
		{domain.ProviderOpenAI, "gpt-4o"},
		{domain.ProviderClaude, "claude-3-5-sonnet-20241022"},
		{domain.ProviderGemini, "gemini-1.5-pro"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			t.Parallel()

			p, err := NewProvider(tt.provider, Config{APIKey: "k", Model: tt.model})
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.provider, p.Provider())
			assert.Equal(t, tt.model, p.Model())
		})
	}
}

func TestNewProvider_Unsupported(t *testing.T) {
	t.Parallel()

	for _, name := range []domain.Provider{"", "mistral", "anthropic"} {
		p, err := NewProvider(name, Config{APIKey: "k", Model: "m"})
		assert.Nil(t, p)

		var upe *domain.UnsupportedProviderError
		require.ErrorAs(t, err, &upe)
		assert.Equal(t, string(name), upe.Provider)
	}
}

func TestFactory_Create_FillsDeploymentSettings(t *testing.T) {
	t.Parallel()

	client := &http.Client{Timeout: 5 * time.Second}
	f := NewFactory(FactoryConfig{
		BaseURLs:   map[domain.Provider]string{domain.ProviderDeepSeek: "http://proxy.local/v1"},
		HTTPClient: client,
	})

	p, err := f.Create(domain.ProviderDeepSeek, Config{APIKey: "k", Model: "deepseek-chat"})
	require.NoError(t, err)

	ds, ok := p.(*DeepSeekProvider)
	require.True(t, ok)
	assert.Equal(t, "http://proxy.local/v1", ds.baseURL)
	assert.Same(t, client, ds.client)

	p, err = f.Create(domain.ProviderOpenAI, Config{APIKey: "k", Model: "gpt-4o", BaseURL: "http://explicit"})
	require.NoError(t, err)
	assert.Equal(t, "http://explicit", p.(*OpenAIProvider).baseURL)

	p, err = f.Create(domain.ProviderGemini, Config{APIKey: "k", Model: "gemini-1.5-pro"})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiBaseURL, p.(*GeminiProvider).baseURL)
}
