// Package store provides the store.qaindex module. It assembles a
// qaindex.Store from the configured scoring policy and text collaborators
// on top of whichever snapshot backend registered itself, and publishes
// the store and its Prometheus registry for the other modules.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/qaindex"
	"github.com/flemzord/qaindex/internal/scoring"
	"github.com/flemzord/qaindex/internal/textproc"
)

// Service names.
const (
	SnapshotsService = "qaindex.snapshots"
	StoreService     = "qaindex.store"
	MetricsService   = "qaindex.metrics"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Module wires the QA index store.
type Module struct {
	config   Config
	logger   *slog.Logger
	store    *qaindex.Store
	registry *prometheus.Registry
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.qaindex",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("store: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. A snapshot module must have been
// provisioned first.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.defaults()
	if err := m.config.validate(); err != nil {
		return err
	}

	snapshots, err := core.Require[qaindex.SnapshotStore](ctx, SnapshotsService)
	if errors.Is(err, core.ErrNoService) {
		return errors.New("store: no snapshot backend configured (enable snapshot.file or snapshot.sqlite)")
	}
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	policy, err := scoring.Lookup(m.config.Policy)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokenizer := textproc.Tokenizer{MaxTokens: m.config.MaxTokens, MinRunes: 2}
	st, err := qaindex.New(snapshots, qaindex.Options{
		Scorer:    policy,
		Tokenizer: tokenizer.Tokenize,
		Counter:   m.counter(),
		Logger:    m.logger,
		Verify:    m.config.verifyEnabled(),
		Metrics:   qaindex.NewMetrics(m.registry),
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	m.store = st

	ctx.RegisterService(StoreService, st)
	ctx.RegisterService(MetricsService, m.registry)

	m.logger.Info("qaindex store provisioned",
		"policy", m.config.Policy,
		"counter", m.config.Counter,
		"verify", m.config.verifyEnabled(),
		"location", st.Location(),
	)
	return nil
}

// Validate implements core.Validator. It loads the current snapshot so a
// corrupt or unreadable document fails startup instead of the first write.
func (m *Module) Validate() error {
	if _, err := m.store.Stats(context.Background()); err != nil {
		return fmt.Errorf("store: load snapshot: %w", err)
	}
	return nil
}

// Store returns the provisioned store.
func (m *Module) Store() *qaindex.Store {
	return m.store
}

// Registry returns the Prometheus registry holding the store metrics.
func (m *Module) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Module) counter() qaindex.Counter {
	if m.config.Counter == CounterChars {
		return textproc.NewCharEstimator(m.config.CharsPerToken).Estimate
	}
	return textproc.CountWords
}
