// Package llm provides chat-completion adapters for the supported LLM vendors.
//
// Every adapter satisfies Provider. Each one translates the uniform message
// list into its vendor's wire format, performs exactly one HTTP call per Chat
// and never retries. Non-2xx vendor responses surface as *ProviderError.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

const (
	// DefaultTemperature is used when Config.Temperature is nil.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is used when Config.MaxTokens is zero.
	DefaultMaxTokens = 4000

	// DefaultTimeout is the HTTP timeout when no client is supplied.
	DefaultTimeout = 120 * time.Second

	maxResponseBytes = 10 << 20
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the normalized result of a chat call.
type ChatResponse struct {
	Content string
	// TokensUsed is the total of input and output tokens, zero when the vendor omits usage.
	TokensUsed int
	Model      string
}

// Provider is the uniform contract over one vendor's chat API.
//
// Implementations should:
//   - Hoist or translate roles as their wire format requires
//   - Return *ProviderError for non-2xx responses, carrying status and raw body
//   - Never retry a failed call
//   - Be safe for concurrent use
type Provider interface {
	// Chat sends the conversation and returns the first completion.
	Chat(ctx context.Context, messages []Message) (*ChatResponse, error)

	// ValidateAPIKey performs the cheapest authenticated call the vendor offers.
	ValidateAPIKey(ctx context.Context) bool

	// EstimateCost approximates the USD cost of tokensUsed, split evenly
	// between input and output tokens.
	EstimateCost(tokensUsed int) float64

	// Provider returns the provider name.
	Provider() domain.Provider

	// Model returns the model identifier being used.
	Model() string
}

// Config holds the parameters needed to create an adapter.
type Config struct {
	// APIKey is the decrypted vendor key.
	APIKey string
	// Model is the model identifier (e.g., "deepseek-chat").
	Model string
	// Temperature overrides DefaultTemperature when set.
	Temperature *float64
	// MaxTokens overrides DefaultMaxTokens when positive.
	MaxTokens int
	// BaseURL overrides the vendor's default API root.
	BaseURL string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

func (c Config) temperature() float64 {
	if c.Temperature != nil {
		return *c.Temperature
	}
	return DefaultTemperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return DefaultMaxTokens
}

func (c Config) baseURL(fallback string) string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fallback
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// ValidateMessages enforces the conversation shape every adapter accepts:
// at least one user message and at most one system message.
func ValidateMessages(messages []Message) error {
	var users, systems int
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			users++
		case RoleSystem:
			systems++
		case RoleAssistant:
		default:
			return domain.NewValidationError("messages", fmt.Sprintf("unknown role %q", m.Role))
		}
	}
	if users == 0 {
		return domain.NewValidationError("messages", "at least one user message is required")
	}
	if systems > 1 {
		return domain.NewValidationError("messages", "at most one system message is allowed")
	}
	return nil
}

// splitSystem separates the system message from the conversation.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// transport performs the HTTP exchange shared by all adapters.
type transport struct {
	provider domain.Provider
	client   *http.Client
}

// do sends a request with an optional JSON body and returns the status and raw body.
func (t transport) do(ctx context.Context, method, endpoint string, headers map[string]string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: failed to marshal request: %w", t.provider, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: failed to create request: %w", t.provider, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: request failed: %w", t.provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s: failed to read response body: %w", t.provider, err)
	}
	return resp.StatusCode, respBody, nil
}

// postJSON posts payload and decodes a 2xx response into out.
func (t transport) postJSON(ctx context.Context, endpoint string, headers map[string]string, payload, out any) error {
	status, body, err := t.do(ctx, http.MethodPost, endpoint, headers, payload)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &ProviderError{Provider: t.provider, StatusCode: status, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to unmarshal response: %w", t.provider, err)
	}
	return nil
}

// probe issues a request and reports the status, or 0 on transport failure.
func (t transport) probe(ctx context.Context, method, endpoint string, headers map[string]string, payload any) int {
	status, _, err := t.do(ctx, method, endpoint, headers, payload)
	if err != nil {
		return 0
	}
	return status
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
