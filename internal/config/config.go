// Package config loads opshistory settings from defaults, an optional
// YAML or JSON file and OPSHISTORY_* environment variables, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/history"
)

// Config is the full application configuration.
type Config struct {
	History history.Config `json:"history" yaml:"history"`
	Archive ArchiveConfig  `json:"archive" yaml:"archive"`
	Log     LogConfig      `json:"log" yaml:"log"`
}

// ArchiveConfig configures the session archive.
type ArchiveConfig struct {
	// DBPath overrides the default ~/.opshistory/archive.db.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		History: history.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load merges defaults, the file at path (if any) and the environment.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("OPSHISTORY_COUNT_LIMIT"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPSHISTORY_COUNT_LIMIT: %w", err)
		}
		cfg.History.CountLimit = i
	}
	if v := os.Getenv("OPSHISTORY_MEMORY_BUDGET_MB"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OPSHISTORY_MEMORY_BUDGET_MB: %w", err)
		}
		cfg.History.MemoryBudgetMB = f
	}
	if v := os.Getenv("OPSHISTORY_AUTO_CLEANUP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OPSHISTORY_AUTO_CLEANUP: %w", err)
		}
		cfg.History.AutoCleanup = b
	}
	if v := os.Getenv("OPSHISTORY_CODEC"); v != "" {
		cfg.History.Codec = codec.Kind(v)
	}
	if v := os.Getenv("OPSHISTORY_EMBED_PAYLOADS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OPSHISTORY_EMBED_PAYLOADS: %w", err)
		}
		cfg.History.EmbedPayloads = b
	}
	if v := os.Getenv("OPSHISTORY_DEBUG_LOG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OPSHISTORY_DEBUG_LOG: %w", err)
		}
		cfg.History.DebugLog = b
	}
	if v := os.Getenv("OPSHISTORY_DB"); v != "" {
		cfg.Archive.DBPath = v
	}
	if v := os.Getenv("OPSHISTORY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OPSHISTORY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.History.Validate(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

// NewLogger builds the process logger described by c.
func NewLogger(c LogConfig, w io.Writer) (*slog.Logger, error) {
	lvl, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
