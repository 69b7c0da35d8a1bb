package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const ingestYAML = `
auth:
  bearer_token: test-token
ingest:
  agent:
    secret: s3cret
    tags: [agent]
`

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postIngest(tg *testGateway, source, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ingest/"+source, strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Signature-256", signature)
	}
	return serve(tg, req)
}

func TestIngest_SingleExchange(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, ingestYAML)

	body := `{"session_id":"s1","question":"Is ingestion signed?","answer":"Yes, with HMAC.","tags":["security"],"significance":0.9}`
	rr := postIngest(tg, "agent", body, sign(body, "s3cret"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if got := decodeJSON[map[string]any](t, rr); got["logged"] != float64(1) {
		t.Errorf("response = %v", got)
	}

	sess, err := tg.store.Session(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	e := sess.QASequence[0]
	if e.User != "agent" {
		t.Errorf("User = %q, want source name as default author", e.User)
	}
	if !e.HasTag("security") || !e.HasTag("agent") {
		t.Errorf("TopicTags = %v, want payload and source tags", e.TopicTags)
	}
	if tg.metrics.Snapshot().Ingested != 1 {
		t.Error("ingest should be counted")
	}
}

func TestIngest_Batch(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, ingestYAML)

	body := `[
		{"session_id":"s1","question":"first?","answer":"one","author":"bot"},
		{"session_id":"s1","question":"second?","answer":"two","author":"bot"}
	]`
	rr := postIngest(tg, "agent", body, sign(body, "s3cret"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	sess, err := tg.store.Session(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.QASequence) != 2 || sess.QASequence[1].Q != "second?" || sess.QASequence[0].User != "bot" {
		t.Errorf("session = %+v", sess.QASequence)
	}
}

func TestIngest_BatchStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, ingestYAML)

	body := `[{"session_id":"s1","question":"ok?","answer":"yes"},{"session_id":"s1","question":"","answer":"no"}]`
	rr := postIngest(tg, "agent", body, sign(body, "s3cret"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	sess, err := tg.store.Session(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.QASequence) != 1 {
		t.Errorf("entries = %d, want 1 logged before the failure", len(sess.QASequence))
	}
}

func TestIngest_Rejections(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, ingestYAML)
	body := `{"session_id":"s1","question":"q?","answer":"a"}`

	tests := []struct {
		name      string
		source    string
		body      string
		signature string
		want      int
	}{
		{name: "missing signature", source: "agent", body: body, want: http.StatusUnauthorized},
		{name: "wrong secret", source: "agent", body: body, signature: sign(body, "other"), want: http.StatusUnauthorized},
		{name: "tampered body", source: "agent", body: body + " ", signature: sign(body, "s3cret"), want: http.StatusUnauthorized},
		{name: "unknown source", source: "ghost", body: body, signature: sign(body, "s3cret"), want: http.StatusNotFound},
		{name: "malformed payload", source: "agent", body: "{oops", signature: sign("{oops", "s3cret"), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := postIngest(tg, tt.source, tt.body, tt.signature)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestIngestDispatcher_WrongMethod(t *testing.T) {
	t.Parallel()

	d := NewIngestDispatcher(testLogger())
	rr := httptest.NewRecorder()
	d.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ingest/agent", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestValidateHMAC(t *testing.T) {
	t.Parallel()

	body := []byte(`{"x":1}`)
	good := sign(string(body), "k")
	if !validateHMAC(body, good, "k") {
		t.Error("valid signature rejected")
	}
	if validateHMAC(body, strings.TrimPrefix(good, "sha256="), "k") {
		t.Error("signature without prefix accepted")
	}
	if validateHMAC(body, "", "k") {
		t.Error("empty signature accepted")
	}
}
