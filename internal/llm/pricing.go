package llm

import "github.com/helixir/paper-analysis-service/internal/domain"

// providerPricing holds per-thousand-token pricing in USD.
type providerPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// pricing maps providers to their approximate token costs.
var pricing = map[domain.Provider]providerPricing{
	domain.ProviderDeepSeek: {InputPer1K: 0.00014, OutputPer1K: 0.00028},
	domain.ProviderOpenAI:   {InputPer1K: 0.03, OutputPer1K: 0.06},
	domain.ProviderClaude:   {InputPer1K: 0.015, OutputPer1K: 0.075},
	domain.ProviderGemini:   {InputPer1K: 0.00025, OutputPer1K: 0.0005},
}

// EstimateCost returns the approximate USD cost of tokensUsed for provider,
// assuming half the tokens were input and half output.
// Returns 0 for unknown providers and non-positive token counts.
func EstimateCost(provider domain.Provider, tokensUsed int) float64 {
	p, ok := pricing[provider]
	if !ok || tokensUsed <= 0 {
		return 0
	}
	half := float64(tokensUsed) * 0.5
	return half*p.InputPer1K/1000 + half*p.OutputPer1K/1000
}
