package cron

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/qaindex/internal/core"
)

func configured(t *testing.T, src string) *Module {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatal(err)
	}
	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return m
}

func TestModule_Lifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	m := configured(t, "archive:\n  enabled: true\n  max_idle: 48h\n")
	ctx := core.NewAppContext(slog.Default(), dir)
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.config.Archive.MaxIdle != 48*time.Hour {
		t.Errorf("MaxIdle = %v, want 48h", m.config.Archive.MaxIdle)
	}
	if m.ReportDir() != filepath.Join(dir, "extractions") {
		t.Errorf("ReportDir() = %q", m.ReportDir())
	}

	ctx.RegisterService(storeService, newStore(t, t0))
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	jobs := m.Scheduler().Jobs()
	if !slices.Equal(jobs, []string{"qa_extraction", "session_archive"}) {
		t.Errorf("Jobs() = %v", jobs)
	}
	if svc, ok := ctx.Service(ServiceName); !ok || svc != m.Scheduler() {
		t.Error("scheduler service not registered")
	}
}

func TestModule_StartWithoutStore(t *testing.T) {
	t.Parallel()

	m := configured(t, "{}\n")
	if err := m.Provision(core.NewAppContext(slog.Default(), t.TempDir())); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		wantErr bool
	}{
		{name: "defaults", src: "{}"},
		{name: "bad extraction schedule", src: "extraction:\n  schedule: hourly\n", wantErr: true},
		{name: "negative hours", src: "extraction:\n  hours: -2\n", wantErr: true},
		{name: "bad session", src: "extraction:\n  session: \"bad id\"\n", wantErr: true},
		{name: "disabled extraction ignores schedule", src: "extraction:\n  enabled: false\n  schedule: nope\n"},
		{name: "archive negative idle", src: "archive:\n  enabled: true\n  max_idle: -1h\n", wantErr: true},
		{name: "archive disabled", src: "archive:\n  schedule: nope\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var c Config
			if err := yaml.Unmarshal([]byte(tt.src), &c); err != nil {
				t.Fatal(err)
			}
			c.defaults("/data")
			err := c.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
