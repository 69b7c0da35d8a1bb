package qaindex_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/qaindex/internal/qaindex"
)

var t0 = time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC)

// at returns t0 plus n minutes.
func at(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Minute)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// scoreFunc adapts a function to qaindex.Scorer.
type scoreFunc func(q, a string, tags []string) float64

func (f scoreFunc) Score(q, a string, tags []string) float64 { return f(q, a, tags) }

func fixedScore(v float64) scoreFunc {
	return func(string, string, []string) float64 { return v }
}

type harness struct {
	store     *qaindex.Store
	snapshots *qaindex.MemorySnapshots
	clock     *fakeClock
	metrics   *qaindex.Metrics

	mu       sync.Mutex
	warnings []qaindex.Warning
}

func (h *harness) Warnings() []qaindex.Warning {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]qaindex.Warning(nil), h.warnings...)
}

// newHarness builds a verifying store on in-memory snapshots. opts fields
// left zero get test defaults.
func newHarness(t *testing.T, opts qaindex.Options) *harness {
	t.Helper()
	return newHarnessOn(t, qaindex.NewMemorySnapshots(), opts)
}

func newHarnessOn(t *testing.T, snaps *qaindex.MemorySnapshots, opts qaindex.Options) *harness {
	t.Helper()

	h := &harness{
		snapshots: snaps,
		clock:     &fakeClock{now: at(1000)},
		metrics:   qaindex.NewMetrics(prometheus.NewRegistry()),
	}
	if opts.Scorer == nil {
		opts.Scorer = fixedScore(0.9)
	}
	if opts.Clock == nil {
		opts.Clock = h.clock.Now
	}
	if opts.OnWarning == nil {
		opts.OnWarning = func(w qaindex.Warning) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.warnings = append(h.warnings, w)
		}
	}
	if opts.Metrics == nil {
		opts.Metrics = h.metrics
	}
	opts.Verify = true

	store, err := qaindex.New(snaps, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.store = store
	return h
}

func (h *harness) ask(t *testing.T, session, q string, ts time.Time) qaindex.Record {
	t.Helper()
	rec, err := h.store.AppendQuestion(context.Background(), session, q, ts, "tester")
	if err != nil {
		t.Fatalf("AppendQuestion(%s, %q): %v", session, q, err)
	}
	return rec
}

func (h *harness) answer(t *testing.T, session string, seq int, a string, tags ...string) qaindex.Record {
	t.Helper()
	rec, err := h.store.RecordAnswer(context.Background(), session, seq, qaindex.AnswerInput{
		Answer:    a,
		TopicTags: tags,
	})
	if err != nil {
		t.Fatalf("RecordAnswer(%s#%d): %v", session, seq, err)
	}
	return rec
}

func (h *harness) doc(t *testing.T) *qaindex.Document {
	t.Helper()
	doc, err := h.store.Document(context.Background())
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	return doc
}

func ptr[T any](v T) *T { return &v }

func seqs(records []qaindex.Record) []int {
	out := make([]int, 0, len(records))
	for _, r := range records {
		out = append(out, r.Seq)
	}
	return out
}

// failingSnapshots wraps MemorySnapshots and fails writes on demand.
type failingSnapshots struct {
	*qaindex.MemorySnapshots
	mu       sync.Mutex
	failNext bool
}

var errDiskFull = errors.New("disk full")

func (f *failingSnapshots) FailNextWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = true
}

func (f *failingSnapshots) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	fail := f.failNext
	f.failNext = false
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.MemorySnapshots.Write(ctx, data)
}

// rawSnapshots serves fixed bytes.
type rawSnapshots struct {
	mu   sync.Mutex
	data []byte
}

func (r *rawSnapshots) Read(context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return nil, qaindex.ErrNoSnapshot
	}
	return append([]byte(nil), r.data...), nil
}

func (r *rawSnapshots) Write(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append([]byte(nil), data...)
	return nil
}
