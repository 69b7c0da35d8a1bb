// Package gateway provides the gateway.http module: an operator HTTP API
// over the QA index, Prometheus metrics, signed exchange ingestion and a
// WebSocket stream of committed mutations. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/cron"
	"github.com/flemzord/qaindex/internal/qaindex"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	addr       net.Addr
	metrics    *Metrics
	dispatcher *IngestDispatcher
	events     *eventHub
	startedAt  time.Time

	// Resolved lazily at Start() via service registry.
	store      *qaindex.Store
	gatherer   prometheus.Gatherer
	scheduler  *cron.Scheduler
	configPath string
	reportDir  string
	cancel     context.CancelFunc
	unsub      func()
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = &Metrics{}
	g.dispatcher = NewIngestDispatcher(g.logger)
	g.events = newEventHub(g.config.EventBuffer, g.metrics)

	ctx.RegisterService("gateway.metrics", g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	for source, cfg := range g.config.Ingest {
		if cfg.Secret == "" {
			return fmt.Errorf("gateway: ingest source %q requires a secret", source)
		}
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no auth configured, operator API disabled")
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolve(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.unsub = g.store.Subscribe(g.events.publish)
	g.registerIngest()

	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		cancel()
		g.unsub()
		return errors.New("gateway: listen failed: " + err.Error())
	}
	g.addr = ln.Addr()

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr.String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolve binds the store (required) and the optional services.
func (g *Gateway) resolve() error {
	store, err := core.Require[*qaindex.Store](g.appCtx, "qaindex.store")
	if err != nil {
		return fmt.Errorf("gateway: store.qaindex module is required: %w", err)
	}
	g.store = store
	g.gatherer = core.Optional[prometheus.Gatherer](g.appCtx, "qaindex.metrics")
	g.scheduler = core.Optional[*cron.Scheduler](g.appCtx, cron.ServiceName)
	g.reportDir = core.Optional[string](g.appCtx, cron.ReportDirService)
	g.configPath = core.Optional[string](g.appCtx, "config.path")
	return nil
}

// registerIngest binds every configured ingest source to the store.
func (g *Gateway) registerIngest() {
	for source, cfg := range g.config.Ingest {
		g.dispatcher.Register(source, &exchangeIngester{store: g.store, tags: cfg.Tags, metrics: g.metrics}, cfg.Secret)
		g.logger.Info("ingest source configured", "source", source)
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	if g.unsub != nil {
		g.unsub()
	}
	// Ends event streams, which Shutdown does not wait for.
	g.cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// Addr returns the bound address once started.
func (g *Gateway) Addr() net.Addr {
	return g.addr
}
