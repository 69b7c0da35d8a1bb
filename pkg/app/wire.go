package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/flemzord/qaindex/internal/config"
	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/qaindex"
	"github.com/flemzord/qaindex/modules/store"

	// Compiled-in modules register themselves from init().
	_ "github.com/flemzord/qaindex/internal/cron"
	_ "github.com/flemzord/qaindex/internal/gateway"
	_ "github.com/flemzord/qaindex/internal/telemetry"
	_ "github.com/flemzord/qaindex/modules/snapshot/file"
	_ "github.com/flemzord/qaindex/modules/snapshot/sqlite"
)

// ErrNoStore is returned by Open when the configuration has no
// store.qaindex module.
var ErrNoStore = errors.New("app: store.qaindex is not configured")

// Instance is a provisioned, not started, module set for one-shot
// commands: every module is configured and validated, but no listener
// or scheduler runs.
type Instance struct {
	App        *core.App
	Store      *qaindex.Store
	Config     *config.Config
	ConfigPath string
	DataDir    string
	Logger     *slog.Logger

	closeLog func()
}

// Open loads the configuration and provisions its modules.
func Open(params Params) (*Instance, error) {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	// One-shot commands print results on stdout; logs stay quiet unless
	// asked for.
	out := params.LogOutput
	if out == nil && !params.Verbose {
		out = io.Discard
	}
	logger, closeLog := NewLogger(cfg.Log, params.Verbose, out)

	dataDir := params.dataDir()
	application, err := Build(cfg, logger, dataDir, cfgPath)
	if err != nil {
		closeLog()
		return nil, err
	}

	st, err := StoreOf(application)
	if err != nil {
		application.Stop()
		closeLog()
		return nil, err
	}

	return &Instance{
		App:        application,
		Store:      st,
		Config:     cfg,
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		Logger:     logger,
		closeLog:   closeLog,
	}, nil
}

// Service looks up a service registered by one of the loaded modules.
func (i *Instance) Service(name string) (any, bool) {
	return i.App.Context().Service(name)
}

// Close releases module resources and the log file.
func (i *Instance) Close() {
	i.App.Stop()
	i.closeLog()
}

// StoreOf returns the store published by the store.qaindex module.
func StoreOf(application *core.App) (*qaindex.Store, error) {
	st, err := core.Require[*qaindex.Store](application.Context(), store.StoreService)
	if errors.Is(err, core.ErrNoService) {
		return nil, ErrNoStore
	}
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return st, nil
}
