// Package app assembles qaindex from its configuration: it resolves the
// config file, builds the logger, loads the configured modules and either
// runs them until a shutdown signal (serve) or hands the provisioned store
// to a one-shot command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/qaindex/internal/config"
	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/reload"
)

// ConfigPathService publishes the loaded config file path to modules.
const ConfigPathService = "config.path"

// Params configures how the application is assembled.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath is used, then the built-in default.
	ConfigPath string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// Verbose forces debug logging regardless of log.level.
	Verbose bool

	// LogOutput receives logs when no log file is configured.
	// Defaults to os.Stderr.
	LogOutput io.Writer

	// PollInterval is how often the config file is checked for changes.
	// Zero means reload.DefaultPollInterval.
	PollInterval time.Duration
}

func (p Params) dataDir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return DefaultDataDir()
}

// LoadConfig returns the validated configuration and the path it came
// from. The path is empty when the built-in default is used.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := config.ResolvePath()
		switch {
		case errors.Is(err, config.ErrNotFound):
			return config.Default(), "", nil
		case err != nil:
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Build loads (configures, provisions and validates) the modules of cfg
// without starting them.
func Build(cfg *config.Config, logger *slog.Logger, dataDir, cfgPath string) (*core.App, error) {
	appCtx := core.NewAppContext(logger, dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	if cfgPath != "" {
		appCtx.RegisterService(ConfigPathService, cfgPath)
	}

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}
	return application, nil
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled or a shutdown signal is received. SIGHUP and changes to the
// config file restart the modules with the new configuration; a config
// that fails to load leaves the running modules in place.
func Run(ctx context.Context, params Params) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	logger, closeLog := NewLogger(cfg.Log, params.Verbose, params.LogOutput)
	defer closeLog()
	if cfgPath == "" {
		logger.Info("no configuration file found, using built-in default")
	}

	dataDir := params.dataDir()
	handler := reload.NewHandler(func(c *config.Config) (*core.App, error) {
		return Build(c, logger, dataDir, cfgPath)
	}, logger)
	if err := handler.Start(cfg); err != nil {
		return err
	}
	defer func() {
		handler.Stop()
		logger.Info("shutdown complete")
	}()

	// --- signal handling ---
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	// --- file watcher ---
	var changes <-chan string
	if cfgPath != "" {
		watcher := reload.NewWatcher(cfgPath, params.PollInterval)
		watchCtx, cancelWatch := context.WithCancel(ctx)
		watchDone := make(chan struct{})
		go func() {
			watcher.Run(watchCtx)
			close(watchDone)
		}()
		defer func() {
			cancelWatch()
			<-watchDone
		}()
		changes = watcher.Changes()
	}

	// --- main event loop ---
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case <-hup:
			if cfgPath == "" {
				logger.Warn("SIGHUP ignored: running on the built-in default config")
				continue
			}
			logger.Info("SIGHUP received, reloading configuration")
			if err := handler.Reload(ctx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		case path := <-changes:
			logger.Info("config file changed, reloading", "path", path)
			if err := handler.Reload(ctx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/qaindex if set, otherwise ~/.local/share/qaindex.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "qaindex")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "qaindex")
	}
	return filepath.Join(home, ".local", "share", "qaindex")
}

// Describe returns a one-line summary of where the config came from.
func Describe(cfgPath string) string {
	if cfgPath == "" {
		return "built-in default configuration"
	}
	return fmt.Sprintf("configuration from %s", cfgPath)
}
