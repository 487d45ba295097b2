// Package logging builds the zap logger shared by the inventory packages.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects encoder, level and optional rotated file output.
type Config struct {
	// Mode is "development" (console encoder) or "production" (JSON).
	Mode string `yaml:"mode" env:"MODE"`
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`

	// File, when set, also writes JSON logs there, rotated by size.
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Mode:       "development",
		Level:      "warn",
		MaxSizeMB:  64,
		MaxBackups: 7,
		MaxAgeDays: 7,
	}
}

// New builds a logger writing to console (stderr when nil) and, if
// cfg.File is set, to a rotating file.
func New(cfg Config, console io.Writer) (*zap.Logger, error) {
	if console == nil {
		console = os.Stderr
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	var encoder zapcore.Encoder
	switch cfg.Mode {
	case "", "development":
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case "production":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("logging: unknown mode %q (want development or production)", cfg.Mode)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(console), level),
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
