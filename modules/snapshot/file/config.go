package file

import (
	"fmt"
	"path/filepath"
)

const defaultFileName = "qa-index.json"

// Config holds the file snapshot module configuration.
type Config struct {
	// Path is the snapshot file. Defaults to {DataDir}/qa-index.json.
	Path string `yaml:"path"`

	// Backup keeps the previous snapshot at {Path}.bak.
	Backup bool `yaml:"backup"`
}

func (c *Config) defaults(dataDir string) {
	if c.Path == "" && dataDir != "" {
		c.Path = filepath.Join(dataDir, defaultFileName)
	}
}

func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("file: path is required")
	}
	if filepath.Base(c.Path) == "." || filepath.Base(c.Path) == string(filepath.Separator) {
		return fmt.Errorf("file: path %q is not a file", c.Path)
	}
	return nil
}
