// Package config loads optional run configuration from a YAML file.
// Flags always override file values; the file only supplies defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store backend names accepted by Config.Store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds processing defaults.
//
// Example file:
//
//	store: sqlite
//	database: ./payflow.db
//	workers: 4
//	verbose: true
type Config struct {
	// Store selects the transaction store backend: "memory" or "sqlite".
	Store string `yaml:"store"`

	// Database is the SQLite database path. Only used when Store is
	// "sqlite".
	Database string `yaml:"database"`

	// Workers is the number of concurrent processing shards. 0 or 1 means
	// sequential.
	Workers int `yaml:"workers"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Store: StoreMemory}
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("invalid store backend %q: must be %q or %q", c.Store, StoreMemory, StoreSQLite)
	}
	if c.Store == StoreSQLite && c.Database == "" {
		return fmt.Errorf("store %q requires a database path", StoreSQLite)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}
