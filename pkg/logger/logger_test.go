package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := defaultLogger
	SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { defaultLogger = prev })
	return &buf
}

func TestFromContextAttachesFields(t *testing.T) {
	buf := captureJSON(t)

	ctx := WithContext(context.Background(), RequestIDKey, "req-1")
	ctx = WithContext(ctx, ProjectIDKey, "p-1")
	Info(ctx, "research phase completed", "phase", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "p-1", line["project_id"])
	assert.EqualValues(t, 2, line["phase"])
	assert.NotContains(t, line, "trace_id")
}

func TestErrorAddsErrorField(t *testing.T) {
	buf := captureJSON(t)

	Error(context.Background(), "generation failed", assert.AnError, "project_id", "p-2")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, assert.AnError.Error(), line["error"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestSetupWritesToFile(t *testing.T) {
	prev := defaultLogger
	t.Cleanup(func() { defaultLogger = prev })

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Setup(Config{Level: "info", Format: "json", Output: path}))
	Info(context.Background(), "hello")

	_, err := openOutput(filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}
