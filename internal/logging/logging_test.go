package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewHandler_AutoFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, FormatAuto, slog.LevelInfo))

	logger.Debug("hidden")
	logger.Info("price resolved", "provider", "aws_cnr", "flavor", "t3.large")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "price resolved", line["msg"])
	assert.Equal(t, "aws_cnr", line["provider"])
}

func TestNewHandler_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, FormatText, slog.LevelWarn))

	logger.Info("hidden")
	logger.Warn("cache write failed", "function", "gcp.resolve_flavor_price")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "cache write failed")
	assert.Contains(t, out, "function=gcp.resolve_flavor_price")
	assert.NotContains(t, out, "\033[")
}
