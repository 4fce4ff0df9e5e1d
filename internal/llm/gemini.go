package llm

import (
	"context"
	"net/http"
	"net/url"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// DefaultGeminiBaseURL is the Generative Language API root.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// generateContentRequest is the request body for models/{model}:generateContent.
type generateContentRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// generateContentResponse is the response body from generateContent.
type generateContentResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

// GeminiProvider implements Provider using the Gemini generateContent API.
// The key travels as a query parameter.
type GeminiProvider struct {
	transport
	cfg     Config
	baseURL string
}

// NewGeminiProvider creates a new GeminiProvider with the given configuration.
func NewGeminiProvider(cfg Config) *GeminiProvider {
	return &GeminiProvider{
		transport: transport{provider: domain.ProviderGemini, client: cfg.httpClient()},
		cfg:       cfg,
		baseURL:   cfg.baseURL(DefaultGeminiBaseURL),
	}
}

func (p *GeminiProvider) keyQuery() string {
	return "?" + url.Values{"key": {p.cfg.APIKey}}.Encode()
}

// Chat maps assistant turns to the "model" role and moves the system message
// into systemInstruction.
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	if err := ValidateMessages(messages); err != nil {
		return nil, err
	}

	system, turns := splitSystem(messages)
	req := generateContentRequest{
		Contents: make([]geminiContent, 0, len(turns)),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     p.cfg.temperature(),
			MaxOutputTokens: p.cfg.maxTokens(),
		},
	}
	for _, m := range turns {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	endpoint := p.baseURL + "/models/" + url.PathEscape(p.cfg.Model) + ":generateContent" + p.keyQuery()

	var resp generateContentResponse
	if err := p.postJSON(ctx, endpoint, nil, req, &resp); err != nil {
		return nil, err
	}

	out := &ChatResponse{
		TokensUsed: resp.UsageMetadata.PromptTokenCount + resp.UsageMetadata.CandidatesTokenCount,
		Model:      p.cfg.Model,
	}
	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		out.Content = resp.Candidates[0].Content.Parts[0].Text
	}
	return out, nil
}

// ValidateAPIKey lists models with the key.
func (p *GeminiProvider) ValidateAPIKey(ctx context.Context) bool {
	return isSuccess(p.probe(ctx, http.MethodGet, p.baseURL+"/models"+p.keyQuery(), nil, nil))
}

// EstimateCost implements Provider.
func (p *GeminiProvider) EstimateCost(tokensUsed int) float64 {
	return EstimateCost(domain.ProviderGemini, tokensUsed)
}

// Provider returns the provider name.
func (p *GeminiProvider) Provider() domain.Provider {
	return domain.ProviderGemini
}

// Model returns the model identifier being used.
func (p *GeminiProvider) Model() string {
	return p.cfg.Model
}
