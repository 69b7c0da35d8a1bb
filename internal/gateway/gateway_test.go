package gateway

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/qaindex"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	info := (&Gateway{}).ModuleInfo()
	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want gateway.http", info.ID)
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatal(err)
	}
	if g.config.Bind != "127.0.0.1:8741" {
		t.Errorf("Bind = %q, want loopback default", g.config.Bind)
	}
	if g.config.MaxBodyBytes != 1<<20 || g.config.EventBuffer != 64 {
		t.Errorf("config = %+v", g.config)
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{name: "defaults", yaml: "{}"},
		{name: "bad bind", yaml: "bind: not-an-address", wantErr: true},
		{name: "ingest without secret", yaml: "ingest:\n  agent:\n    tags: [x]\n", wantErr: true},
		{name: "ingest with secret", yaml: "ingest:\n  agent:\n    secret: s3cret\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{}
			if err := g.Configure(mustYAMLNode(t, tt.yaml)); err != nil {
				t.Fatal(err)
			}
			if err := g.Provision(core.NewAppContext(testLogger(), t.TempDir())); err != nil {
				t.Fatal(err)
			}
			if err := g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateway_StartRequiresStore(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "bind: 127.0.0.1:0")); err != nil {
		t.Fatal(err)
	}
	if err := g.Provision(core.NewAppContext(testLogger(), t.TempDir())); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err == nil {
		t.Fatal("Start without a store should fail")
	}
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	store, err := qaindex.New(qaindex.NewMemorySnapshots(), qaindex.Options{Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	appCtx.RegisterService("qaindex.store", store)

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "bind: 127.0.0.1:0")); err != nil {
		t.Fatal(err)
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = g.Stop(context.Background()) })

	resp, err := http.Get(fmt.Sprintf("http://%s/health", g.Addr()))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestGateway_StopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := (&Gateway{}).Stop(context.Background()); err != nil {
		t.Errorf("Stop() = %v, want nil", err)
	}
}
