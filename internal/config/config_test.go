package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockbook/internal/catalog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stockbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/data", "stockbook", "inventory.db"), cfg.Store)
	assert.Equal(t, catalog.PolicyNullify, cfg.DeletePolicy())
	assert.Equal(t, "development", cfg.Logging.Mode)
	assert.Equal(t, filepath.Join("/data", "stockbook", "media"), cfg.MediaPath())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
store: /srv/shop.db
catalog:
  category_delete_policy: restrict
backup:
  best_effort_checkpoint: true
display:
  locale: es-MX
logging:
  mode: production
  level: info
`)
	t.Setenv("STOCKBOOK_DB", "/override.db")
	t.Setenv("STOCKBOOK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/override.db", cfg.Store)
	assert.Equal(t, catalog.PolicyRestrict, cfg.DeletePolicy())
	assert.True(t, cfg.Backup.BestEffortCheckpoint)
	assert.Equal(t, "es-MX", cfg.Display.Locale)
	assert.Equal(t, "$", cfg.Display.Currency, "unset keys keep defaults")
	assert.Equal(t, "production", cfg.Logging.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "stor: /typo.db\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsBadPolicy(t *testing.T) {
	t.Setenv("STOCKBOOK_CATALOG_CATEGORY_DELETE_POLICY", "cascade")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Store)
}
