package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})
}

func TestUserIDContext(t *testing.T) {
	t.Run("stores and retrieves user ID", func(t *testing.T) {
		ctx := WithUserID(context.Background(), 42)

		userID, ok := UserIDFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, int64(42), userID)
	})

	t.Run("reports missing user", func(t *testing.T) {
		userID, ok := UserIDFromContext(context.Background())
		assert.False(t, ok)
		assert.Zero(t, userID)
	})

	t.Run("ignores values of the wrong type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), userIDKey, "42")
		_, ok := UserIDFromContext(ctx)
		assert.False(t, ok)
	})
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithUserID(WithRequestID(context.Background(), "req-9"), 5)

	logger := LoggerFromContext(ctx, zerolog.New(&buf))
	logger.Info().Msg("hello")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "req-9", logEntry["request_id"])
	assert.Equal(t, float64(5), logEntry["user_id"])
}
