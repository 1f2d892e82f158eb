package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_JSONAddsServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf, ServiceName: "svc", Environment: "test"})

	logger.With("user_id", "u1").Info("connected", "attempt", 2)
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "connected", rec["msg"])
	assert.Equal(t, "svc", rec["service"])
	assert.Equal(t, "test", rec["environment"])
	assert.Equal(t, "u1", rec["user_id"])
	assert.Equal(t, float64(2), rec["attempt"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "text", Output: &buf, ServiceName: "svc"})

	logger.WithGroup("poller").Debug("tick", "target", "notifications")

	out := buf.String()
	assert.Contains(t, out, "msg=tick")
	assert.Contains(t, out, "poller.target=notifications")
	assert.NotContains(t, out, "environment=")
}

func TestLogPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf})

	LogPanic(logger, "boom")

	assert.Contains(t, buf.String(), `"panic":"boom"`)
	assert.Contains(t, buf.String(), "stack_trace")
}
