package sqlite

import "fmt"

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "qaindex.db"
	defaultKeep        = 5
)

// Config holds the SQLite snapshot module configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/qaindex.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode so readers never block the writer.
	// Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// Keep is the number of snapshot generations retained. Defaults to 5.
	Keep int `yaml:"keep"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.Keep == 0 {
		c.Keep = defaultKeep
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	if c.Keep < 1 {
		return fmt.Errorf("sqlite: keep must be at least 1, got %d", c.Keep)
	}
	return nil
}
