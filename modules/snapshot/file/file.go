// Package file implements the default snapshot module: the QA index
// document kept as a single JSON file and replaced atomically on every
// commit.
package file

import (
	"context"
	"fmt"
	"log/slog"

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

// Module provides qaindex.SnapshotStore backed by a JSON file.
type Module struct {
	config    Config
	logger    *slog.Logger
	snapshots *Snapshots
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "snapshot.file",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("file: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.defaults(ctx.DataDir)

	m.snapshots = New(m.config.Path, m.config.Backup)
	ctx.RegisterService(ServiceName, m.snapshots)

	m.logger.Info("file snapshot module provisioned",
		"path", m.config.Path,
		"backup", m.config.Backup,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	return nil
}

// Snapshots returns the snapshot store.
func (m *Module) Snapshots() *Snapshots {
	return m.snapshots
}
