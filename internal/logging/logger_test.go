package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("writes JSON at the configured level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := New(Config{Level: "warn", Format: "json", Output: buf})

		logger.Info().Msg("hidden")
		logger.Warn().Str("target", "artist/42").Msg("visible")

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 1)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(lines[0], &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "visible", entry["message"])
		assert.Equal(t, "artist/42", entry["target"])
	})

	t.Run("falls back to info on unknown level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := New(Config{Level: "loud", Output: buf})

		logger.Debug().Msg("hidden")
		logger.Info().Msg("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("text format is human readable", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := New(Config{Level: "info", Format: "text", Output: buf})

		logger.Info().Msg("hello")

		assert.Contains(t, buf.String(), "hello")
		assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})
}

func TestWithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "info", Output: buf})

	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))

	tagged := WithContext(ctx, logger)
	tagged.Info().Msg("tagged")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)

	assert.Empty(t, RequestID(context.Background()))
}
