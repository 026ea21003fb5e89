package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StdoutOnly(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(&buf, Config{Level: slog.LevelWarn})
	require.NoError(t, err)
	defer closer.Close()

	l.Info("hidden")
	l.Warn("shown", slog.String("k", "v"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "k=v")
}

func TestNew_TeesIntoFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	l, closer, err := New(&buf, Config{Level: slog.LevelInfo, File: path})
	require.NoError(t, err)

	l.Info("streak created", slog.String("id", "abc"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "streak created")
	assert.Contains(t, buf.String(), "streak created")
}

func TestNewCLI_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewCLI(&buf, slog.LevelInfo)

	l.Debug("noise")
	l.Info("checked in", "streak", "Run")

	assert.NotContains(t, buf.String(), "noise")
	assert.Contains(t, buf.String(), "checked in")
	assert.Contains(t, buf.String(), "Run")
}
