package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/qaindex"
)

// Service names.
const (
	ServiceName      = "cron.scheduler"
	ReportDirService = "cron.report_dir"
)

const storeService = "qaindex.store"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// ExtractionConfig configures the extraction job.
type ExtractionConfig struct {
	Enabled   *bool  `yaml:"enabled"` // default true
	Schedule  string `yaml:"schedule"`
	Hours     int    `yaml:"hours"`
	Session   string `yaml:"session"`
	OutputDir string `yaml:"output_dir"`
}

// ArchiveConfig configures the idle-session archive job.
type ArchiveConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Schedule   string        `yaml:"schedule"`
	MaxIdle    time.Duration `yaml:"max_idle"`
	ArchiveDir string        `yaml:"archive_dir"`
}

// Config holds the scheduler module configuration.
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

func (c *Config) defaults(dataDir string) {
	if c.Extraction.Enabled == nil {
		v := true
		c.Extraction.Enabled = &v
	}
	if c.Extraction.Schedule == "" {
		c.Extraction.Schedule = "0 * * * *"
	}
	if c.Extraction.Hours == 0 {
		c.Extraction.Hours = 1
	}
	if c.Extraction.OutputDir == "" {
		c.Extraction.OutputDir = filepath.Join(dataDir, "extractions")
	}
	if c.Archive.Schedule == "" {
		c.Archive.Schedule = "*/30 * * * *"
	}
	if c.Archive.MaxIdle == 0 {
		c.Archive.MaxIdle = 7 * 24 * time.Hour
	}
	if c.Archive.ArchiveDir == "" {
		c.Archive.ArchiveDir = filepath.Join(dataDir, "archive")
	}
}

func (c *Config) validate() error {
	var errs []error
	if *c.Extraction.Enabled {
		if err := ParseSchedule(c.Extraction.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("extraction: %w", err))
		}
		if c.Extraction.Hours < 1 {
			errs = append(errs, fmt.Errorf("cron: extraction: hours must be >= 1, got %d", c.Extraction.Hours))
		}
		if c.Extraction.Session != "" {
			if err := qaindex.ValidateSessionID(c.Extraction.Session); err != nil {
				errs = append(errs, fmt.Errorf("cron: extraction: %w", err))
			}
		}
	}
	if c.Archive.Enabled {
		if err := ParseSchedule(c.Archive.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
		if c.Archive.MaxIdle <= 0 {
			errs = append(errs, fmt.Errorf("cron: archive: max_idle must be positive, got %s", c.Archive.MaxIdle))
		}
	}
	return errors.Join(errs...)
}

// Module runs the periodic QA index jobs.
type Module struct {
	config    Config
	logger    *slog.Logger
	appCtx    *core.AppContext
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.scheduler",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The store is resolved at Start
// because the store module may be provisioned after this one.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.appCtx = ctx
	m.config.defaults(ctx.DataDir)
	m.scheduler = NewScheduler(m.logger)
	ctx.RegisterService(ServiceName, m.scheduler)
	ctx.RegisterService(ReportDirService, m.config.Extraction.OutputDir)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	store, err := core.Require[*qaindex.Store](m.appCtx, storeService)
	if err != nil {
		return fmt.Errorf("cron: store.qaindex module is required: %w", err)
	}

	if *m.config.Extraction.Enabled {
		ec := m.config.Extraction
		if err := m.scheduler.RegisterJob(&ExtractionJob{
			Store:        store,
			Hours:        ec.Hours,
			SessionID:    ec.Session,
			OutputDir:    ec.OutputDir,
			Logger:       m.logger,
			ScheduleExpr: ec.Schedule,
		}); err != nil {
			return err
		}
	}
	if m.config.Archive.Enabled {
		ac := m.config.Archive
		if err := m.scheduler.RegisterJob(&ArchiveIdleJob{
			Store:        store,
			MaxIdle:      ac.MaxIdle,
			ArchiveDir:   ac.ArchiveDir,
			Logger:       m.logger,
			ScheduleExpr: ac.Schedule,
		}); err != nil {
			return err
		}
	}
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

// Scheduler returns the module's scheduler.
func (m *Module) Scheduler() *Scheduler {
	return m.scheduler
}

// ReportDir is where extraction runs are saved.
func (m *Module) ReportDir() string {
	return m.config.Extraction.OutputDir
}
