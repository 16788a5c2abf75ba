// Package config loads the YAML settings file used by the genstore command.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
	"github.com/jward/genstore/internal/undo"
)

// Config holds store settings.
type Config struct {
	// Backend is "sqlite" or "badger".
	Backend      string `yaml:"backend"`
	ReadOnly     bool   `yaml:"read_only"`
	UndoCapacity int    `yaml:"undo_capacity"`
	// Language is a BCP 47 tag used to collate sorted handle lists.
	Language string `yaml:"language"`
	LogLevel string `yaml:"log_level"`
	// IDFormats maps a kind name to its printf template, e.g. person: "I%04d".
	IDFormats map[string]string `yaml:"id_formats"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Backend:      kv.BackendSQLite,
		UndoCapacity: undo.DefaultCapacity,
		Language:     "en",
		LogLevel:     "info",
		IDFormats:    map[string]string{},
	}
}

// Load reads path and applies it over Default. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	switch c.Backend {
	case "", kv.BackendSQLite, kv.BackendBadger:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.UndoCapacity < 0 {
		return fmt.Errorf("undo_capacity must not be negative")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	for name := range c.IDFormats {
		if _, err := model.ParseKind(name); err != nil {
			return fmt.Errorf("id_formats: %w", err)
		}
	}
	return nil
}

// Formats returns IDFormats keyed by kind.
func (c Config) Formats() map[model.Kind]string {
	out := make(map[model.Kind]string, len(c.IDFormats))
	for name, format := range c.IDFormats {
		if k, err := model.ParseKind(name); err == nil {
			out[k] = format
		}
	}
	return out
}
