package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_Chat(t *testing.T) {
	t.Parallel()

	srv := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "test-api-key", r.URL.Query().Get("key"))

		var req generateContentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "You are an expert reviewer.", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 3)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "model", req.Contents[1].Role)
		assert.Equal(t, "user", req.Contents[2].Role)
		assert.InDelta(t, 0.2, req.GenerationConfig.Temperature, 0.001)
		assert.Equal(t, 2048, req.GenerationConfig.MaxOutputTokens)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"## What\nY"}]}}],"usageMetadata":{"promptTokenCount":80,"candidatesTokenCount":40,"totalTokenCount":120}}`))
	})

	temp := 0.2
	p := NewGeminiProvider(Config{APIKey: "test-api-key", Model: "gemini-1.5-pro", BaseURL: srv.URL, Temperature: &temp, MaxTokens: 2048})
	resp, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are an expert reviewer."},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleUser, Content: "analyse"},
	})
	require.NoError(t, err)

	assert.Equal(t, "## What\nY", resp.Content)
	assert.Equal(t, 120, resp.TokensUsed)
	assert.Equal(t, "gemini-1.5-pro", resp.Model)
}

func TestGeminiProvider_Chat_NoSystemInstruction(t *testing.T) {
	t.Parallel()

	srv := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, has := raw["systemInstruction"]
		assert.False(t, has)
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	p := NewGeminiProvider(Config{APIKey: "k", Model: "gemini-1.5-flash", BaseURL: srv.URL})
	resp, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
}

func TestGeminiProvider_Chat_ProviderError(t *testing.T) {
	t.Parallel()

	srv := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	})

	p := NewGeminiProvider(Config{APIKey: "k", Model: "gemini-1.5-flash", BaseURL: srv.URL})
	_, err := p.Chat(context.Background(), testConversation())

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Contains(t, pe.Body, "API key not valid")
}

func TestGeminiProvider_ValidateAPIKey(t *testing.T) {
	t.Parallel()

	srv := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		if r.URL.Query().Get("key") == "good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})

	good := NewGeminiProvider(Config{APIKey: "good", Model: "gemini-1.5-flash", BaseURL: srv.URL})
	bad := NewGeminiProvider(Config{APIKey: "bad", Model: "gemini-1.5-flash", BaseURL: srv.URL})

	assert.True(t, good.ValidateAPIKey(context.Background()))
	assert.False(t, bad.ValidateAPIKey(context.Background()))
}
