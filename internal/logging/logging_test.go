package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/syncbot/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_MirrorsToFile(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "git-automation.log")

	logger, closer, err := New(Options{Level: "info", File: path, Stdout: &stdout})
	require.NoError(t, err)

	logger.Info("pulled changes", "commits", 2)
	logger.Debug("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, stdout.String(), string(data))
	assert.Contains(t, string(data), "pulled changes")
	assert.Contains(t, string(data), "commits=2")
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")

	for _, msg := range []string{"first run", "second run"} {
		logger, closer, err := New(Options{File: path, Stdout: &bytes.Buffer{}})
		require.NoError(t, err)
		logger.Info(msg)
		require.NoError(t, closer.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first run")
	assert.Contains(t, lines[1], "second run")
}

func TestNew_JSON(t *testing.T) {
	var stdout bytes.Buffer
	logger, _, err := New(Options{Format: "json", Stdout: &stdout})
	require.NoError(t, err)

	logger.Warn("push rejected", "branch", "main")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "push rejected", entry["msg"])
	assert.Equal(t, "main", entry["branch"])
}

func TestNew_Rotating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotating.log")

	logger, closer, err := New(Options{File: path, MaxSizeMB: 1, Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	logger.Info("rotated sink")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated sink")
}

func TestNew_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, _, err := New(Options{File: filepath.Join(blocker, "sub", "app.log")})
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	opts := FromConfig(config.LogConfig{Level: "debug", Format: "json", File: "x.log", MaxSizeMB: 5})
	assert.Equal(t, Options{Level: "debug", Format: "json", File: "x.log", MaxSizeMB: 5}, opts)
}
