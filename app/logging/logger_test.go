package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, closer := New(config.LoggingConfig{
		Level:    "info",
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	Component(logger, "dispatcher").Info("message sent", "message_id", 42)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"dispatcher"`)
	assert.Contains(t, string(data), `"message_id":42`)
}

func TestNew_StdoutCloserIsNoop(t *testing.T) {
	logger, closer := New(config.LoggingConfig{Level: "debug", Output: "stdout"})
	require.NotNil(t, logger)
	assert.NoError(t, closer.Close())
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}
