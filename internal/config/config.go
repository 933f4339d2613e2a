// Package config loads the optional YAML configuration of a run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/mtime-rewind/internal/state"
)

// FileName is the configuration file looked up directly under the root.
const FileName = ".mtime-rewind.yaml"

// Config represents the complete mtime-rewind configuration
type Config struct {
	State StateConfig `yaml:"state"`
	Scan  ScanConfig  `yaml:"scan"`
}

// StateConfig configures where and how state is persisted
type StateConfig struct {
	File   string       `yaml:"file"`
	Format state.Format `yaml:"format"`
}

// ScanConfig configures tree enumeration and hashing
type ScanConfig struct {
	Exclude       []string `yaml:"exclude"`
	IncludeHidden bool     `yaml:"include_hidden"`
	CacheDirTag   bool     `yaml:"cachedir_tag"`
	Workers       int      `yaml:"workers"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		State: StateConfig{
			File:   state.DefaultFileName,
			Format: state.FormatJSON,
		},
		Scan: ScanConfig{
			CacheDirTag: true,
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Keys absent from the file keep their defaults
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Resolve picks the configuration for a run over root. An explicit path must
// exist; otherwise FileName under root is used when present, and defaults
// when not. The returned path is empty when defaults are used.
func Resolve(explicit, root string) (*Config, string, error) {
	if explicit != "" {
		cfg, err := Load(explicit)
		return cfg, explicit, err
	}

	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), "", nil
		}
		return nil, "", fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg, err := Load(path)
	return cfg, path, err
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.State.File = os.ExpandEnv(c.State.File)
	for i, p := range c.Scan.Exclude {
		c.Scan.Exclude[i] = os.ExpandEnv(p)
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.State.File == "" {
		c.State.File = state.DefaultFileName
	}
	if c.State.Format == "" {
		c.State.Format = state.FormatJSON
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := state.ValidateFileName(c.State.File); err != nil {
		return fmt.Errorf("state.file: %w", err)
	}

	switch c.State.Format {
	case state.FormatJSON, state.FormatSQLite:
		// valid
	default:
		return fmt.Errorf("invalid state.format: %s (must be json or sqlite)", c.State.Format)
	}

	if c.Scan.Workers < 0 {
		return fmt.Errorf("scan.workers must not be negative: %d", c.Scan.Workers)
	}

	for _, p := range c.Scan.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid scan.exclude pattern: %q", p)
		}
	}

	return nil
}
