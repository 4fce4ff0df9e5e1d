package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

func TestValidateMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		messages []Message
		wantErr  bool
	}{
		{
			name:     "system and user",
			messages: []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}},
		},
		{
			name:     "multi turn",
			messages: []Message{{Role: RoleUser, Content: "u"}, {Role: RoleAssistant, Content: "a"}, {Role: RoleUser, Content: "u2"}},
		},
		{
			name:     "no user",
			messages: []Message{{Role: RoleSystem, Content: "s"}},
			wantErr:  true,
		},
		{
			name:     "two systems",
			messages: []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleSystem, Content: "s2"}, {Role: RoleUser, Content: "u"}},
			wantErr:  true,
		},
		{
			name:     "unknown role",
			messages: []Message{{Role: "tool", Content: "x"}, {Role: RoleUser, Content: "u"}},
			wantErr:  true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateMessages(tt.messages)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSplitSystem(t *testing.T) {
	t.Parallel()

	system, rest := splitSystem([]Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleAssistant, Content: "ok"},
	})

	assert.Equal(t, "be terse", system)
	require.Len(t, rest, 2)
	assert.Equal(t, RoleUser, rest[0].Role)
	assert.Equal(t, RoleAssistant, rest[1].Role)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	assert.InDelta(t, DefaultTemperature, cfg.temperature(), 1e-9)
	assert.Equal(t, DefaultMaxTokens, cfg.maxTokens())
	assert.Equal(t, "fallback", cfg.baseURL("fallback"))
	assert.NotNil(t, cfg.httpClient())

	zero := 0.0
	cfg = Config{Temperature: &zero, MaxTokens: 10}
	assert.Zero(t, cfg.temperature())
	assert.Equal(t, 10, cfg.maxTokens())
}
