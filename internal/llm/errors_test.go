package llm

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

func TestProviderError_Error(t *testing.T) {
	t.Parallel()

	err := &ProviderError{Provider: domain.ProviderDeepSeek, StatusCode: 401, Body: `{"error":"invalid key"}`}
	assert.Equal(t, `deepseek API error: 401 - {"error":"invalid key"}`, err.Error())
	assert.True(t, errors.Is(err, domain.ErrExternalAPI))
	assert.True(t, err.IsAuthError())
	assert.False(t, err.IsRateLimited())
}

func TestProviderError_TruncatesLongBody(t *testing.T) {
	t.Parallel()

	err := &ProviderError{Provider: domain.ProviderGemini, StatusCode: 500, Body: strings.Repeat("x", 5000)}
	msg := err.Error()
	assert.Less(t, len(msg), 1200)
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.Len(t, err.Body, 5000)
}

func TestProviderError_TruncatesAtRuneBoundary(t *testing.T) {
	t.Parallel()

	// Two-byte runes start at odd offsets, so the byte cap lands mid-rune.
	body := "x" + strings.Repeat("é", 1000)
	msg := (&ProviderError{Provider: domain.ProviderClaude, StatusCode: 502, Body: body}).Error()

	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "é..."))
	prefix := "claude API error: 502 - "
	assert.Equal(t, body[:maxErrorBodyInMessage-1], strings.TrimSuffix(strings.TrimPrefix(msg, prefix), "..."))
}

func TestProviderError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status      int
		auth, limit bool
	}{
		{401, true, false},
		{403, true, false},
		{429, false, true},
		{500, false, false},
	}
	for _, tt := range tests {
		err := &ProviderError{Provider: domain.ProviderOpenAI, StatusCode: tt.status}
		assert.Equal(t, tt.auth, err.IsAuthError(), "status %d", tt.status)
		assert.Equal(t, tt.limit, err.IsRateLimited(), "status %d", tt.status)
	}
}
