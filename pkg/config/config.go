// Package config handles inqgraph configuration via a YAML file and
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (INQGRAPH_*)
//  2. Config file (config.yaml)
//  3. Built-in defaults
//
// Environment variables:
//   - INQGRAPH_DATA_DIR      - model/snapshot store directory
//   - INQGRAPH_SCHEMA_FILE   - ontology + constraints YAML (empty: built-in)
//   - INQGRAPH_LOG_LEVEL     - debug | info | warn | error
//   - INQGRAPH_LOG_FORMAT    - json | console
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the process-level settings for the engines and CLI.
type Config struct {
	// DataDir is where the Badger model/snapshot store lives.
	DataDir string `yaml:"data_dir"`

	// SchemaFile points at the ontology+constraints YAML. Empty means the
	// built-in default schema.
	SchemaFile string `yaml:"schema_file"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the shared zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (optional; empty skips the file), applies INQGRAPH_*
// environment overrides and validates. A malformed file or invalid value is
// fatal at construction.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("INQGRAPH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("INQGRAPH_SCHEMA_FILE"); v != "" {
		c.SchemaFile = v
	}
	if v := os.Getenv("INQGRAPH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("INQGRAPH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate fails fast on invalid settings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console", "text":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Logging.Format)
	}
	return nil
}
