// Package config loads stockbook settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, STOCKBOOK_*
// environment variables, then command-line flags (applied by the caller).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stockbook/internal/catalog"
	"github.com/roach88/stockbook/internal/logging"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "STOCKBOOK_"

// Config is the full application configuration.
type Config struct {
	// Store is the active store file.
	Store string `yaml:"store" env:"DB"`
	// MediaDir holds product and profile images. Defaults to "media" next to
	// the store.
	MediaDir string `yaml:"media_dir" env:"MEDIA_DIR"`

	Catalog CatalogConfig  `yaml:"catalog" envPrefix:"CATALOG_"`
	Backup  BackupConfig   `yaml:"backup" envPrefix:"BACKUP_"`
	Display DisplayConfig  `yaml:"display" envPrefix:"DISPLAY_"`
	Logging logging.Config `yaml:"logging" envPrefix:"LOG_"`
}

// CatalogConfig configures catalog behavior.
type CatalogConfig struct {
	CategoryDeletePolicy string `yaml:"category_delete_policy" env:"CATEGORY_DELETE_POLICY"`
}

// BackupConfig configures backups.
type BackupConfig struct {
	// BestEffortCheckpoint lets a plain backup continue, marked degraded,
	// when the WAL checkpoint fails.
	BestEffortCheckpoint bool `yaml:"best_effort_checkpoint" env:"BEST_EFFORT_CHECKPOINT"`
}

// DisplayConfig controls how amounts are shown in text output.
type DisplayConfig struct {
	Locale   string `yaml:"locale" env:"LOCALE"`
	Currency string `yaml:"currency" env:"CURRENCY"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store:   DefaultStorePath(),
		Catalog: CatalogConfig{CategoryDeletePolicy: string(catalog.PolicyNullify)},
		Display: DisplayConfig{Locale: "en", Currency: "$"},
		Logging: logging.Defaults(),
	}
}

// DefaultStorePath is $XDG_DATA_HOME/stockbook/inventory.db, falling back
// to the user config directory, then the working directory.
func DefaultStorePath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "stockbook", "inventory.db")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "stockbook", "inventory.db")
	}
	return "inventory.db"
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment. An empty path skips the file; a named file that
// does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("load config: parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// decodeYAML rejects unknown keys so typos do not silently fall back to
// defaults.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks values that have a closed set of options.
func (c Config) Validate() error {
	if c.Store == "" {
		return errors.New("store path must not be empty")
	}
	if _, err := catalog.ParseCategoryDeletePolicy(c.Catalog.CategoryDeletePolicy); err != nil {
		return err
	}
	return nil
}

// DeletePolicy returns the parsed category delete policy.
func (c Config) DeletePolicy() catalog.CategoryDeletePolicy {
	p, err := catalog.ParseCategoryDeletePolicy(c.Catalog.CategoryDeletePolicy)
	if err != nil {
		return catalog.PolicyNullify
	}
	return p
}

// MediaPath returns MediaDir, or "media" beside the store when unset.
func (c Config) MediaPath() string {
	if c.MediaDir != "" {
		return c.MediaDir
	}
	return filepath.Join(filepath.Dir(c.Store), "media")
}
