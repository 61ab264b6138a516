package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"TRACE":   LevelTrace,
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"OFF":     LevelOff,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("LOUD")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestValidate_Format(t *testing.T) {
	assert.NoError(t, Config{Format: "json"}.Validate())
	assert.ErrorIs(t, Config{Format: "xml"}.Validate(), ErrUnknownFormat)
}

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "WARNING", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "pool", "loader")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "loader", rec["pool"])
}

func TestNew_TraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Config{Level: "TRACE"}, &buf)
	require.NoError(t, err)

	logger.Log(context.Background(), LevelTrace, "deep")

	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestNew_OffDropsEverything(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Config{Level: "OFF"}, &buf)
	require.NoError(t, err)

	logger.Error("nothing")

	assert.Empty(t, buf.String())
}

func TestNew_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asyncload.log")
	logger, closer, err := New(Config{File: path, MaxSizeMB: 1, MaxBackups: 1}, nil)
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNew_InvalidConfig(t *testing.T) {
	_, _, err := New(Config{Level: "nope"}, nil)
	assert.ErrorIs(t, err, ErrUnknownLevel)
}
