package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/qaindex/internal/core"
)

// snapshotNamespace groups the interchangeable persistence backends.
const snapshotNamespace = "snapshot"

var logLevels = []string{"", "debug", "info", "warn", "error"}

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present,
// checks that all referenced module IDs exist in the registry,
// and that at most one snapshot backend is configured.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateBackends(cfg)...)
	errs = append(errs, validateLog(cfg.Log)...)

	return errors.Join(errs...)
}

// validateBackends rejects configs with more than one snapshot backend:
// both would register the same service and the last one would win.
func validateBackends(cfg *Config) []error {
	available := core.GetModulesByNamespace(snapshotNamespace)
	names := make([]string, 0, len(available))
	var configured []string
	for _, info := range available {
		id := string(info.ID)
		names = append(names, id)
		if _, ok := cfg.Modules[id]; ok {
			configured = append(configured, id)
		}
	}

	var errs []error
	if len(configured) > 1 {
		errs = append(errs, fmt.Errorf("config: only one snapshot backend may be configured, got %s", strings.Join(configured, ", ")))
	}
	if _, ok := cfg.Modules["store.qaindex"]; ok && len(configured) == 0 {
		errs = append(errs, fmt.Errorf("config: store.qaindex requires a snapshot backend (one of %s)", strings.Join(names, ", ")))
	}
	return errs
}

func validateLog(l LogConfig) []error {
	var errs []error
	if !slices.Contains(logLevels, strings.ToLower(l.Level)) {
		errs = append(errs, fmt.Errorf("config: log.level %q must be one of debug, info, warn, error", l.Level))
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		errs = append(errs, errors.New("config: log rotation limits must not be negative"))
	}
	return errs
}
