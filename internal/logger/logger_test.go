package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/config"
)

func TestInitWriter_JSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	Info("hidden")
	Warn("index built", "collection", "pages", "count", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "index built", rec["msg"])
	assert.Equal(t, "pages", rec["collection"])
	assert.EqualValues(t, 3, rec["count"])
}

func TestInitWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(config.LogConfig{Level: "info", Format: "text"}, &buf)

	L().Info("retrieved", "k", 10)
	assert.Contains(t, buf.String(), "msg=retrieved")
	assert.Contains(t, buf.String(), "k=10")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
