// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for qaindex.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "snapshot.file").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig selects the log level and an optional rotating log file.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level,omitempty"`

	// File routes logs to a rotating file instead of stderr.
	File string `yaml:"file,omitempty"`

	MaxSizeMB  int `yaml:"max_size_mb,omitempty"`
	MaxBackups int `yaml:"max_backups,omitempty"`
	MaxAgeDays int `yaml:"max_age_days,omitempty"`
}

// Generic returns the configuration as plain maps, the shape it has in
// YAML, for display.
func (c *Config) Generic() (map[string]any, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: encoding: %w", err)
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return out, nil
}
