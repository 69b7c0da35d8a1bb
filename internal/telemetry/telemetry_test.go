package telemetry

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/qaindex"
)

// Not parallel: installs the global tracer provider.
func TestModule_ExportsStoreSpans(t *testing.T) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("service_name: qaindex-test\n"), &node); err != nil {
		t.Fatal(err)
	}
	exporter := tracetest.NewInMemoryExporter()
	m := &Module{exporter: exporter}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(core.NewAppContext(slog.Default(), t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	if otel.GetTracerProvider() != m.TracerProvider() {
		t.Fatal("global tracer provider not installed")
	}

	st, err := qaindex.New(qaindex.NewMemorySnapshots(), qaindex.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.AppendQuestion(context.Background(), "s1", "Are spans exported?", time.Time{}, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.TracerProvider().ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, span := range exporter.GetSpans() {
		if span.Name == "qaindex.append_question" {
			found = true
		}
	}
	if !found {
		t.Errorf("spans = %v, want qaindex.append_question", exporter.GetSpans().Snapshots())
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ratio   float64
		wantErr bool
	}{
		{name: "all", ratio: 1},
		{name: "none", ratio: 0},
		{name: "half", ratio: 0.5},
		{name: "negative", ratio: -0.1, wantErr: true},
		{name: "above one", ratio: 1.5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Config{SampleRatio: &tt.ratio}
			c.defaults()
			if err := c.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
