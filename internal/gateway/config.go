package gateway

import "time"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string                     `yaml:"bind"`
	Auth            AuthConfig                 `yaml:"auth"`
	Ingest          map[string]IngestSourceCfg `yaml:"ingest"`
	ReadTimeout     time.Duration              `yaml:"read_timeout"`
	WriteTimeout    time.Duration              `yaml:"write_timeout"`
	ShutdownTimeout time.Duration              `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies on write endpoints.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// EventBuffer is the per-client queue of the event stream. Clients
	// that fall this far behind are disconnected.
	EventBuffer int `yaml:"event_buffer"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8741"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
}

// AuthConfig configures authentication for the operator API.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`

	// ReadToken is a bearer token limited to retrieval (GET) routes,
	// for agents that only fetch context.
	ReadToken string `yaml:"read_token"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || a.ReadToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// IngestSourceCfg holds per-source ingestion configuration. Payloads are
// accepted only when signed with Secret.
type IngestSourceCfg struct {
	Secret string `yaml:"secret"`

	// Tags are added to every exchange logged from this source.
	Tags []string `yaml:"tags"`
}
