package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by ResolvePath when no config file exists.
var ErrNotFound = errors.New("config: no configuration file found")

// envPattern matches $${...} (an escaped literal), ${VAR} and
// ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// expandEnv substitutes environment variables line by line so every
// unresolved variable (set neither in the environment nor by a default)
// is reported with its line number.
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error
	lines := bytes.SplitAfter(raw, []byte("\n"))
	for i, line := range lines {
		lines[i] = envPattern.ReplaceAllFunc(line, func(match []byte) []byte {
			if bytes.HasPrefix(match, []byte("$$")) {
				return match[1:]
			}
			subs := envPattern.FindSubmatch(match)
			name := string(subs[1])
			if value, ok := os.LookupEnv(name); ok {
				return []byte(value)
			}
			if subs[2] != nil {
				return subs[2]
			}
			errs = append(errs, fmt.Errorf("line %d: unresolved variable %s", i+1, name))
			return match
		})
	}
	return bytes.Join(lines, nil), errors.Join(errs...)
}
