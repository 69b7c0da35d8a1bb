package store

import (
	"fmt"

	"github.com/flemzord/qaindex/internal/scoring"
)

// Counter names accepted by Config.Counter.
const (
	CounterWords = "words"
	CounterChars = "chars"
)

// Config holds the store module configuration.
type Config struct {
	// Policy names the significance scoring policy.
	Policy string `yaml:"policy"`

	// Verify checks index consistency before every commit. Defaults to true.
	Verify *bool `yaml:"verify"`

	// Counter selects how a_tokens is computed: "words" or "chars".
	Counter string `yaml:"counter"`

	// CharsPerToken is the ratio used by the "chars" counter.
	CharsPerToken float64 `yaml:"chars_per_token"`

	// MaxTokens caps the keyword set derived from each question.
	MaxTokens int `yaml:"max_tokens"`
}

func (c *Config) defaults() {
	if c.Policy == "" {
		c.Policy = scoring.DefaultPolicy
	}
	if c.Verify == nil {
		v := true
		c.Verify = &v
	}
	if c.Counter == "" {
		c.Counter = CounterWords
	}
	if c.CharsPerToken == 0 {
		c.CharsPerToken = 4
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 20
	}
}

func (c *Config) validate() error {
	if _, err := scoring.Lookup(c.Policy); err != nil {
		return fmt.Errorf("store: policy: %w", err)
	}
	switch c.Counter {
	case CounterWords, CounterChars:
	default:
		return fmt.Errorf("store: counter must be %q or %q, got %q", CounterWords, CounterChars, c.Counter)
	}
	if c.CharsPerToken <= 0 {
		return fmt.Errorf("store: chars_per_token must be positive, got %v", c.CharsPerToken)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("store: max_tokens must be at least 1, got %d", c.MaxTokens)
	}
	return nil
}

func (c *Config) verifyEnabled() bool {
	return c.Verify == nil || *c.Verify
}
