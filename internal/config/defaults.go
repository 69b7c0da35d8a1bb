package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file name looked up in each search
// directory.
const FileName = "qaindex.yaml"

// DefaultYAML is the configuration used when no file exists: the JSON
// snapshot under the data directory and the store with default scoring.
const DefaultYAML = `version: "1"
modules:
  snapshot.file: {}
  store.qaindex: {}
`

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultYAML), &cfg); err != nil {
		panic(fmt.Sprintf("config: built-in default: %v", err))
	}
	return &cfg
}

// SearchPaths lists candidate config files in lookup order:
// $XDG_CONFIG_HOME/qaindex/qaindex.yaml (or ~/.config/qaindex/qaindex.yaml),
// then ./qaindex.yaml.
func SearchPaths() []string {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "qaindex", FileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "qaindex", FileName))
	}

	return append(candidates, FileName)
}

// ResolvePath returns the first existing file of SearchPaths, or
// ErrNotFound.
func ResolvePath() (string, error) {
	candidates := SearchPaths()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNotFound, candidates)
}
