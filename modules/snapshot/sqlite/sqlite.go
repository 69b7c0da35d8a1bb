// Package sqlite implements a SQLite-backed snapshot module for the QA
// index. It uses modernc.org/sqlite (pure Go, no CGO) in WAL mode and keeps
// the last few committed documents for audit.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/qaindex/internal/core"
	"gopkg.in/yaml.v3"
)

// ServiceName is the service under which snapshot backends register.
const ServiceName = "qaindex.snapshots"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides qaindex.SnapshotStore backed by a SQLite database.
type Module struct {
	config    Config
	logger    *slog.Logger
	snapshots *Snapshots
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "snapshot.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	snaps, err := Open(context.TODO(), m.config)
	if err != nil {
		return err
	}
	m.snapshots = snaps
	ctx.RegisterService(ServiceName, snaps)

	m.logger.Info("sqlite snapshot module provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"keep", m.config.Keep,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	return m.snapshots.Ping(context.TODO())
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.logger != nil {
		m.logger.Info("sqlite snapshot module stopping")
	}
	if m.snapshots != nil {
		return m.snapshots.Close()
	}
	return nil
}

// Snapshots returns the snapshot store.
func (m *Module) Snapshots() *Snapshots {
	return m.snapshots
}
