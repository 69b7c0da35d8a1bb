// Package telemetry provides the telemetry.otlp module, which installs a
// global OpenTelemetry tracer provider exporting spans over OTLP/HTTP.
// Without this module the store's spans go to the no-op provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/qaindex/internal/core"
)

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

// Config holds the OTLP exporter configuration.
type Config struct {
	// Endpoint is host:port of the collector. Defaults to localhost:4318.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS.
	Insecure bool `yaml:"insecure"`

	// ServiceName is reported as service.name. Defaults to "qaindex".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces kept, in [0,1]. Defaults to 1.
	SampleRatio *float64 `yaml:"sample_ratio"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.ServiceName == "" {
		c.ServiceName = "qaindex"
	}
	if c.SampleRatio == nil {
		r := 1.0
		c.SampleRatio = &r
	}
}

func (c *Config) validate() error {
	if r := *c.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be in [0,1], got %v", r)
	}
	return nil
}

// Module owns the tracer provider.
type Module struct {
	config   Config
	logger   *slog.Logger
	provider *sdktrace.TracerProvider

	// exporter replaces the OTLP exporter in tests.
	exporter sdktrace.SpanExporter
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry.otlp",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("telemetry: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The exporter connects lazily, so
// an unreachable collector does not fail startup.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.defaults()
	if err := m.config.validate(); err != nil {
		return err
	}

	exporter := m.exporter
	if exporter == nil {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(m.config.Endpoint)}
		if m.config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(m.config.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(m.config.Headers))
		}
		var err error
		exporter, err = otlptracehttp.New(context.Background(), opts...)
		if err != nil {
			return fmt.Errorf("telemetry: create exporter: %w", err)
		}
	}

	res := resource.NewSchemaless(attribute.String("service.name", m.config.ServiceName))
	m.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(*m.config.SampleRatio))),
	)
	otel.SetTracerProvider(m.provider)

	m.logger.Info("OpenTelemetry tracer initialized",
		"endpoint", m.config.Endpoint,
		"service", m.config.ServiceName,
		"sample_ratio", *m.config.SampleRatio,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.provider == nil {
		return errors.New("telemetry: tracer provider not initialized")
	}
	return nil
}

// Stop implements core.Stopper. Pending spans are flushed.
func (m *Module) Stop(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}

// TracerProvider returns the installed provider.
func (m *Module) TracerProvider() *sdktrace.TracerProvider {
	return m.provider
}
