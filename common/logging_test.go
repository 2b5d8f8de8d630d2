package common

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "export.log")

	logger, closer, err := SetupLogger(&LoggingOpts{
		JSON:    true,
		Service: "sd-export",
		Version: "test",
		File:    path,
	})
	require.NoError(t, err)

	logger.Info("hello", "key", "value")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "sd-export", line["service"])
	assert.Equal(t, "test", line["version"])
	assert.Equal(t, "value", line["key"])

	fi, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), fi.Mode().Perm(), "Log directory should be private")
}

func TestSetupLogger_Output(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := SetupLogger(&LoggingOpts{Debug: true, Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.NotContains(t, buf.String(), "service=", "No service attribute when unset")
}

func TestSetupLogger_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := SetupLogger(&LoggingOpts{Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestSetupLogger_RefusesStderr(t *testing.T) {
	_, _, err := SetupLogger(&LoggingOpts{Output: os.Stderr})
	assert.Error(t, err)
}

func TestSetupLogger_UnwritableFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, _, err := SetupLogger(&LoggingOpts{File: filepath.Join(blocker, "export.log")})
	assert.Error(t, err, "A log path under a regular file cannot be created")
}
