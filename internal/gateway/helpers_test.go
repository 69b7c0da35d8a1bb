package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/qaindex"
)

const testToken = "test-token"

var t0 = time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustYAMLNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return node.Content[0]
}

// testGateway is a provisioned gateway whose router is served by
// httptest rather than a real listener.
type testGateway struct {
	*Gateway
	store   *qaindex.Store
	appCtx  *core.AppContext
	handler http.Handler
}

func newTestGateway(t *testing.T, cfgYAML string) *testGateway {
	t.Helper()

	reg := prometheus.NewRegistry()
	store, err := qaindex.New(qaindex.NewMemorySnapshots(), qaindex.Options{
		Logger:  testLogger(),
		Verify:  true,
		Metrics: qaindex.NewMetrics(reg),
	})
	if err != nil {
		t.Fatal(err)
	}

	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	appCtx.RegisterService("qaindex.store", store)
	appCtx.RegisterService("qaindex.metrics", reg)

	g := &Gateway{}
	if cfgYAML == "" {
		cfgYAML = "auth:\n  bearer_token: " + testToken + "\n"
	}
	if err := g.Configure(mustYAMLNode(t, cfgYAML)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	g.registerIngest()
	g.startedAt = time.Now()

	return &testGateway{Gateway: g, store: store, appCtx: appCtx, handler: g.buildRouter()}
}

// do sends an authenticated request and returns the recorder.
func (tg *testGateway) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	tg.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func timeMinutes(n int) time.Duration { return time.Duration(n) * time.Minute }

func timeNow() time.Time { return time.Now().UTC().Add(-time.Minute) }

func httptestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(tg *testGateway, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	tg.handler.ServeHTTP(rr, req)
	return rr
}
