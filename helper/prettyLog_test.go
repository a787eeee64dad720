package helper

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedHandler(level slog.Level) (*PrettyHandler, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	opts := PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: level,
		},
	}
	return NewPrettyHandler(buf, opts), buf
}

func TestNewPrettyHandler(t *testing.T) {
	handler, _ := newBufferedHandler(slog.LevelInfo)

	assert.NotNil(t, handler, "Expected NewPrettyHandler to return a non-nil handler")
	assert.NotNil(t, handler.Handler, "Expected handler to have a non-nil Handler field")
	assert.NotNil(t, handler.l, "Expected handler to have a non-nil logger field")
}

func TestPrettyHandlerHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("Handle renders level, message and attributes", func(t *testing.T) {
		handler, buf := newBufferedHandler(slog.LevelInfo)

		record := slog.NewRecord(time.Now(), slog.LevelInfo, "Ingested interaction", 0)
		record.AddAttrs(
			slog.Int("num_chunks", 3),
			slog.Int("num_entities", 2),
		)

		err := handler.Handle(ctx, record)
		require.NoError(t, err, "Expected Handle to not return an error")

		output := buf.String()
		assert.Contains(t, output, "INFO:", "Expected output to contain INFO level")
		assert.Contains(t, output, "Ingested interaction", "Expected output to contain the message")
		assert.Contains(t, output, "num_chunks", "Expected output to contain attribute key")
		assert.Contains(t, output, "3", "Expected output to contain attribute value")
	})

	t.Run("Handle renders each level label", func(t *testing.T) {
		levels := map[slog.Level]string{
			slog.LevelDebug: "DEBUG:",
			slog.LevelInfo:  "INFO:",
			slog.LevelWarn:  "WARN:",
			slog.LevelError: "ERROR:",
		}
		for level, label := range levels {
			handler, buf := newBufferedHandler(slog.LevelDebug)

			record := slog.NewRecord(time.Now(), level, "vector upsert exhausted", 0)
			record.AddAttrs(slog.String("operation", "upsert chunk vector"))

			err := handler.Handle(ctx, record)
			require.NoError(t, err, "Expected Handle to not return an error")

			output := buf.String()
			assert.Contains(t, output, label, "Expected output to contain level label")
			assert.Contains(t, output, "vector upsert exhausted", "Expected output to contain the message")
		}
	})

	t.Run("Handle with no attributes renders empty JSON object", func(t *testing.T) {
		handler, buf := newBufferedHandler(slog.LevelInfo)

		record := slog.NewRecord(time.Now(), slog.LevelInfo, "simple message", 0)

		err := handler.Handle(ctx, record)
		require.NoError(t, err, "Expected Handle to not return an error")

		output := buf.String()
		assert.Contains(t, output, "simple message", "Expected output to contain the message")
		assert.Contains(t, output, "{}", "Expected output to contain empty JSON object for attributes")
	})

	t.Run("Handle formats timestamp as [HH:MM:SS.mmm]", func(t *testing.T) {
		handler, buf := newBufferedHandler(slog.LevelInfo)

		record := slog.NewRecord(time.Now(), slog.LevelInfo, "time test", 0)

		err := handler.Handle(ctx, record)
		require.NoError(t, err, "Expected Handle to not return an error")

		assert.Regexp(t, `\[\d{2}:\d{2}:\d{2}\.\d{3}\]`, buf.String(),
			"Expected output to contain properly formatted timestamp")
	})
}
