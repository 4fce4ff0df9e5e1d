package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input    string
		expected Provider
		wantErr  bool
	}{
		{"deepseek", ProviderDeepSeek, false},
		{"OpenAI", ProviderOpenAI, false},
		{" claude ", ProviderClaude, false},
		{"gemini", ProviderGemini, false},
		{"mistral", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProvider(tt.input)
			if tt.wantErr {
				var upe *UnsupportedProviderError
				require.ErrorAs(t, err, &upe)
				assert.Equal(t, tt.input, upe.Provider)
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		expected bool
	}{
		{TaskStatusPending, false},
		{TaskStatusProcessing, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.IsTerminal())
		})
	}
}

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		allowed  bool
	}{
		{TaskStatusPending, TaskStatusProcessing, true},
		{TaskStatusPending, TaskStatusFailed, true},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusProcessing, TaskStatusProcessing, true},
		{TaskStatusProcessing, TaskStatusCompleted, true},
		{TaskStatusProcessing, TaskStatusFailed, true},
		{TaskStatusProcessing, TaskStatusPending, false},
		{TaskStatusCompleted, TaskStatusFailed, false},
		{TaskStatusFailed, TaskStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTaskUpdate_Apply(t *testing.T) {
	processing := TaskStatusProcessing
	completed := TaskStatusCompleted

	t.Run("progress must not decrease", func(t *testing.T) {
		task := &AnalysisTask{ID: uuid.New(), Status: TaskStatusProcessing, Progress: 30}
		p := 10
		err := TaskUpdate{Progress: &p}.Apply(task)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, 30, task.Progress)
	})

	t.Run("terminal task rejects further updates", func(t *testing.T) {
		task := &AnalysisTask{ID: uuid.New(), Status: TaskStatusCompleted, Progress: 100}
		p := 100
		assert.ErrorIs(t, TaskUpdate{Progress: &p}.Apply(task), ErrInvalidTransition)
		assert.ErrorIs(t, TaskUpdate{Status: &processing}.Apply(task), ErrInvalidTransition)
	})

	t.Run("completion sets all fields", func(t *testing.T) {
		task := &AnalysisTask{ID: uuid.New(), Status: TaskStatusProcessing, Progress: 80}
		p, tokens, cost := 100, 1200, 0.00025
		now := time.Now()
		err := TaskUpdate{
			Status:       &completed,
			Progress:     &p,
			TokensUsed:   &tokens,
			CostEstimate: &cost,
			CompletedAt:  &now,
		}.Apply(task)
		require.NoError(t, err)
		assert.Equal(t, TaskStatusCompleted, task.Status)
		assert.Equal(t, 100, task.Progress)
		assert.Equal(t, 1200, *task.TokensUsed)
		assert.InDelta(t, 0.00025, *task.CostEstimate, 1e-12)
		assert.Equal(t, now, *task.CompletedAt)
	})
}

func TestSelectCredential(t *testing.T) {
	creds := []*Credential{
		{ID: 1, Provider: ProviderOpenAI, IsActive: true},
		{ID: 2, Provider: ProviderDeepSeek, IsActive: false, IsDefault: true},
		{ID: 3, Provider: ProviderDeepSeek, IsActive: true},
		{ID: 4, Provider: ProviderClaude, IsActive: true, IsDefault: true},
		{ID: 5, Provider: ProviderOpenAI, IsActive: true, IsDefault: true},
	}

	tests := []struct {
		name     string
		provider Provider
		wantID   int64
	}{
		{"provider default preferred", ProviderOpenAI, 5},
		{"inactive default skipped", ProviderDeepSeek, 3},
		{"no provider takes first active default", "", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectCredential(creds, tt.provider)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, SelectCredential(creds, ProviderGemini))
		assert.Nil(t, SelectCredential(creds[:3], ""))
	})
}

func TestNotFoundError(t *testing.T) {
	t.Run("error message", func(t *testing.T) {
		err := NewNotFoundError(EntityPaper, "42")
		assert.Equal(t, "paper not found: 42", err.Error())
	})

	t.Run("unwrap returns ErrNotFound", func(t *testing.T) {
		err := fmt.Errorf("load: %w", NewNotFoundError(EntityAnalysisTask, "abc"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, IsTaskNotFound(err))
		assert.False(t, IsPaperNotFound(err))
	})
}

func TestTypedErrorsUnwrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{
			name:     "validation",
			err:      NewValidationError("query", "cannot be empty"),
			sentinel: ErrInvalidInput,
			message:  "validation error: query: cannot be empty",
		},
		{
			name:     "no api key with provider",
			err:      &NoAPIKeyConfiguredError{UserID: 1, Provider: ProviderDeepSeek},
			sentinel: ErrPreconditionFailed,
			message:  "no active deepseek API key configured for user 1",
		},
		{
			name:     "no default api key",
			err:      &NoAPIKeyConfiguredError{UserID: 7},
			sentinel: ErrPreconditionFailed,
			message:  "no default API key configured for user 7",
		},
		{
			name:     "rate limit",
			err:      NewRateLimitError("arxiv", 3),
			sentinel: ErrRateLimited,
			message:  "arxiv rate limit exceeded after 3 attempts, try again later",
		},
		{
			name:     "decryption",
			err:      NewDecryptionError("malformed ciphertext"),
			sentinel: ErrDecryption,
			message:  "failed to decrypt data: malformed ciphertext",
		},
		{
			name:     "already exists",
			err:      NewAlreadyExistsError(EntityPaper, "2401.00001"),
			sentinel: ErrAlreadyExists,
			message:  "paper already exists: 2401.00001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestNewEvent(t *testing.T) {
	taskID := uuid.New()
	evt, err := NewEvent(EventTypeAnalysisStarted, taskID.String(), "analysis_task", AnalysisStartedPayload{
		TaskID:   taskID,
		UserID:   1,
		PaperID:  2,
		Provider: ProviderGemini,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, 1, evt.EventVersion)
	assert.Equal(t, EventTypeAnalysisStarted, evt.EventType)
	assert.Contains(t, string(evt.Payload), `"provider":"gemini"`)
	assert.Contains(t, string(evt.Payload), taskID.String())
}

func TestPaper_HasFullText(t *testing.T) {
	p := &Paper{FullText: "  \n\t"}
	assert.False(t, p.HasFullText())

	p.FullText = "Introduction"
	assert.True(t, p.HasFullText())

	p.Authors = []string{"A. Author", "B. Author"}
	assert.Equal(t, "A. Author, B. Author", p.AuthorList())
}
