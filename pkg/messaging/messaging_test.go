package messaging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// logEntry is one line written by a JSON slog handler.
type logEntry map[string]any

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&c.buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (c *logCapture) entries(t *testing.T) []logEntry {
	t.Helper()
	var out []logEntry
	dec := json.NewDecoder(&c.buf)
	for dec.More() {
		var e logEntry
		require.NoError(t, dec.Decode(&e))
		out = append(out, e)
	}
	return out
}

// find returns the entries with the given level and message.
func find(entries []logEntry, level, msg string) []logEntry {
	var out []logEntry
	for _, e := range entries {
		if e["level"] == level && e["msg"] == msg {
			out = append(out, e)
		}
	}
	return out
}

