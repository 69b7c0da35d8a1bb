// Package reload restarts the module set when the configuration changes,
// either on SIGHUP or when the config file is modified on disk.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/qaindex/internal/config"
	"github.com/flemzord/qaindex/internal/core"
)

// BuildFunc loads (but does not start) the modules of a validated config.
type BuildFunc func(cfg *config.Config) (*core.App, error)

// Handler owns the running module set and swaps it for a new one on
// reload. The new set is provisioned before the old one stops, so a
// config that fails to load leaves the running modules untouched.
type Handler struct {
	mu      sync.Mutex
	build   BuildFunc
	logger  *slog.Logger
	current *core.App
	active  *config.Config
}

// NewHandler creates a reload handler.
func NewHandler(build BuildFunc, logger *slog.Logger) *Handler {
	return &Handler{build: build, logger: logger}
}

// Start builds and starts the initial module set.
func (h *Handler) Start(cfg *config.Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	app, err := h.build(cfg)
	if err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}
	h.current, h.active = app, cfg
	return nil
}

// Reload loads a fresh config from disk, validates it and restarts the
// modules with it.
func (h *Handler) Reload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.ReloadConfig(ctx, cfg)
}

// ReloadConfig restarts the modules with an already validated config. If
// the new modules fail to start, the previous config is started again.
func (h *Handler) ReloadConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := h.build(cfg)
	if err != nil {
		return fmt.Errorf("loading modules: %w", err)
	}

	if h.current != nil {
		h.current.Stop()
	}
	if err := next.Start(); err != nil {
		h.current = nil
		if h.active == nil {
			return fmt.Errorf("starting modules: %w", err)
		}
		h.logger.Error("new configuration failed to start, restoring previous", "error", err)
		return errors.Join(fmt.Errorf("starting modules: %w", err), h.restore())
	}

	h.current, h.active = next, cfg
	h.logger.Info("configuration reloaded successfully")
	return nil
}

func (h *Handler) restore() error {
	prev, err := h.build(h.active)
	if err != nil {
		return fmt.Errorf("restoring previous config: %w", err)
	}
	if err := prev.Start(); err != nil {
		return fmt.Errorf("restoring previous config: %w", err)
	}
	h.current = prev
	return nil
}

// Current returns the running module set, nil before Start or after a
// failed restore.
func (h *Handler) Current() *core.App {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Stop stops the running module set.
func (h *Handler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		h.current.Stop()
		h.current = nil
	}
}
