package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_DevelopmentRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Defaults()
	cfg.Level = "info"

	logger, err := New(cfg, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("sale recorded", zap.Int64("sale_id", 7))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "sale recorded")
	assert.Contains(t, out, `"sale_id": 7`)
}

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Mode: "production", Level: "info"}, &buf)
	require.NoError(t, err)

	logger.Info("store imported", zap.String("path", "/tmp/x.db"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "store imported", entry["msg"])
	assert.Equal(t, "/tmp/x.db", entry["path"])
}

func TestNew_FileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "stockbook.log")
	cfg := Defaults()
	cfg.Level = "debug"
	cfg.File = file

	logger, err := New(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	logger.Debug("to file")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Mode: "fancy", Level: "info"}, nil)
	assert.Error(t, err)
}
