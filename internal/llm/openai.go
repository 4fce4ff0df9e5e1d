package llm

import (
	"context"
	"net/http"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

const (
	// DefaultOpenAIBaseURL is the OpenAI API root.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// DefaultDeepSeekBaseURL is the DeepSeek API root.
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// chatRequest is the request body for an OpenAI-compatible chat completions API.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// chatChoice represents a single choice in a chat completions response.
type chatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// chatUsage contains token usage information from a chat completions response.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatResponse is the response body from an OpenAI-compatible chat completions API.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// chatCompletionsClient talks to any vendor exposing the OpenAI chat completions
// shape with bearer authentication. OpenAI and DeepSeek share it.
type chatCompletionsClient struct {
	transport
	cfg     Config
	baseURL string
}

func newChatCompletionsClient(provider domain.Provider, cfg Config, defaultBaseURL string) chatCompletionsClient {
	return chatCompletionsClient{
		transport: transport{provider: provider, client: cfg.httpClient()},
		cfg:       cfg,
		baseURL:   cfg.baseURL(defaultBaseURL),
	}
}

func (c *chatCompletionsClient) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// Chat sends the conversation to /chat/completions. Roles are passed through unchanged.
func (c *chatCompletionsClient) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	if err := ValidateMessages(messages); err != nil {
		return nil, err
	}

	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.temperature(),
		MaxTokens:   c.cfg.maxTokens(),
	}

	var resp chatResponse
	if err := c.postJSON(ctx, c.baseURL+"/chat/completions", c.authHeaders(), req, &resp); err != nil {
		return nil, err
	}

	out := &ChatResponse{
		TokensUsed: resp.Usage.TotalTokens,
		Model:      resp.Model,
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
	}
	return out, nil
}

// ValidateAPIKey lists models with the key; any 2xx means the key is usable.
func (c *chatCompletionsClient) ValidateAPIKey(ctx context.Context) bool {
	return isSuccess(c.probe(ctx, http.MethodGet, c.baseURL+"/models", c.authHeaders(), nil))
}

// EstimateCost implements Provider.
func (c *chatCompletionsClient) EstimateCost(tokensUsed int) float64 {
	return EstimateCost(c.provider, tokensUsed)
}

// Provider returns the provider name.
func (c *chatCompletionsClient) Provider() domain.Provider {
	return c.provider
}

// Model returns the model identifier being used.
func (c *chatCompletionsClient) Model() string {
	return c.cfg.Model
}

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
type OpenAIProvider struct {
	chatCompletionsClient
}

// NewOpenAIProvider creates a new OpenAIProvider with the given configuration.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	return &OpenAIProvider{newChatCompletionsClient(domain.ProviderOpenAI, cfg, DefaultOpenAIBaseURL)}
}

// DeepSeekProvider implements Provider using DeepSeek's OpenAI-compatible API.
type DeepSeekProvider struct {
	chatCompletionsClient
}

// NewDeepSeekProvider creates a new DeepSeekProvider with the given configuration.
func NewDeepSeekProvider(cfg Config) *DeepSeekProvider {
	return &DeepSeekProvider{newChatCompletionsClient(domain.ProviderDeepSeek, cfg, DefaultDeepSeekBaseURL)}
}
