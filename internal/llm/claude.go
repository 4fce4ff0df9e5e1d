package llm

import (
	"context"
	"net/http"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

const (
	// DefaultClaudeBaseURL is the Anthropic API root.
	DefaultClaudeBaseURL = "https://api.anthropic.com/v1"

	// anthropicAPIVersion is the Anthropic API version header value.
	anthropicAPIVersion = "2023-06-01"
)

// messagesRequest is the request body for the Anthropic Messages API.
type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// contentBlock represents a content block in the Anthropic Messages API response.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// messagesResponse is the response body from the Anthropic Messages API.
type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

// anthropicUsage contains token usage information from the Anthropic API.
type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ClaudeProvider implements Provider using the Anthropic Messages API.
type ClaudeProvider struct {
	transport
	cfg     Config
	baseURL string
}

// NewClaudeProvider creates a new ClaudeProvider with the given configuration.
func NewClaudeProvider(cfg Config) *ClaudeProvider {
	return &ClaudeProvider{
		transport: transport{provider: domain.ProviderClaude, client: cfg.httpClient()},
		cfg:       cfg,
		baseURL:   cfg.baseURL(DefaultClaudeBaseURL),
	}
}

func (p *ClaudeProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": anthropicAPIVersion,
	}
}

// Chat hoists the system message into the request's system field and sends
// the remaining turns as messages.
func (p *ClaudeProvider) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	if err := ValidateMessages(messages); err != nil {
		return nil, err
	}

	system, turns := splitSystem(messages)
	temperature := p.cfg.temperature()
	req := messagesRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.maxTokens(),
		System:      system,
		Messages:    turns,
		Temperature: &temperature,
	}

	var resp messagesResponse
	if err := p.postJSON(ctx, p.baseURL+"/messages", p.headers(), req, &resp); err != nil {
		return nil, err
	}

	out := &ChatResponse{
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Model:      resp.Model,
	}
	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			out.Content = block.Text
			break
		}
	}
	return out, nil
}

// ValidateAPIKey sends a one-token message. Anthropic has no key check
// endpoint, so a 400 also counts as a valid key.
func (p *ClaudeProvider) ValidateAPIKey(ctx context.Context) bool {
	req := messagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: 1,
		Messages:  []Message{{Role: RoleUser, Content: "test"}},
	}
	status := p.probe(ctx, http.MethodPost, p.baseURL+"/messages", p.headers(), req)
	return isSuccess(status) || status == http.StatusBadRequest
}

// EstimateCost implements Provider.
func (p *ClaudeProvider) EstimateCost(tokensUsed int) float64 {
	return EstimateCost(domain.ProviderClaude, tokensUsed)
}

// Provider returns the provider name.
func (p *ClaudeProvider) Provider() domain.Provider {
	return domain.ProviderClaude
}

// Model returns the model identifier being used.
func (p *ClaudeProvider) Model() string {
	return p.cfg.Model
}
