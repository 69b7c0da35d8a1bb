package qaindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/qaindex/internal/scoring"
	"github.com/flemzord/qaindex/internal/textproc"
)

// Tokenizer maps question text to a set of normalized keyword tokens.
type Tokenizer func(text string) []string

// Hasher maps question text to a fixed-width digest.
type Hasher func(text string) string

// Counter counts the tokens of an answer for a_tokens.
type Counter func(text string) int

// Scorer estimates the long-term value of an answer in [0,1].
// *scoring.Policy implements it.
type Scorer interface {
	Score(question, answer string, tags []string) float64
}

// Options configures a Store. Zero values select the defaults.
type Options struct {
	Scorer    Scorer    // default: scoring.DefaultPolicy
	Tokenizer Tokenizer // default: textproc.Tokenize
	Hasher    Hasher    // default: textproc.Hash
	Counter   Counter   // default: textproc.CountWords
	Clock     func() time.Time
	Logger    *slog.Logger

	// Verify runs Verify on every document before it is written and
	// aborts the commit on failure.
	Verify bool

	// OnWarning receives non-fatal conditions. Default: logged at warn.
	OnWarning func(Warning)

	Metrics *Metrics
	Tracer  trace.Tracer // default: otel.Tracer("qaindex")
}

// Store is the indexed QA history. All mutations are serialized by an
// in-process writer lock and committed as whole-document replacements;
// reads load the last committed snapshot without taking the lock.
// Writers in other processes need an external lock.
type Store struct {
	snapshots SnapshotStore
	location  string

	scorer    Scorer
	tokenize  Tokenizer
	hash      Hasher
	count     Counter
	clock     func() time.Time
	logger    *slog.Logger
	verify    bool
	onWarning func(Warning)
	metrics   *Metrics
	tracer    trace.Tracer

	mu     sync.Mutex
	events broker
}

// New creates a store on top of a snapshot store.
func New(snapshots SnapshotStore, opts Options) (*Store, error) {
	if snapshots == nil {
		return nil, errors.New("qaindex: snapshot store is required")
	}

	s := &Store{
		snapshots: snapshots,
		scorer:    opts.Scorer,
		tokenize:  opts.Tokenizer,
		hash:      opts.Hasher,
		count:     opts.Counter,
		clock:     opts.Clock,
		logger:    opts.Logger,
		verify:    opts.Verify,
		onWarning: opts.OnWarning,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
	}
	if l, ok := snapshots.(Locator); ok {
		s.location = l.Location()
	}

	if s.scorer == nil {
		p, err := scoring.Lookup(scoring.DefaultPolicy)
		if err != nil {
			return nil, fmt.Errorf("qaindex: default scorer: %w", err)
		}
		s.scorer = p
	}
	if s.tokenize == nil {
		s.tokenize = textproc.Tokenize
	}
	if s.hash == nil {
		s.hash = textproc.Hash
	}
	if s.count == nil {
		s.count = textproc.CountWords
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.onWarning == nil {
		s.onWarning = func(w Warning) {
			s.logger.Warn("qaindex warning", "kind", w.Kind, "hash", w.Hash, "message", w.Message)
		}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("qaindex")
	}
	return s, nil
}

// Subscribe registers fn for every committed mutation and returns a
// function that removes it. fn runs on the committing goroutine.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	return s.events.subscribe(fn)
}

// Hash returns the digest the store computes for a question.
func (s *Store) Hash(question string) string {
	return s.hash(question)
}

// Location names where the snapshot is kept, if the backend reports it.
func (s *Store) Location() string {
	return s.location
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// txn collects the side effects of one mutation. They are only released
// after the snapshot was written.
type txn struct {
	now       time.Time
	warnings  []Warning
	events    []Event
	discarded int
	noop      bool
}

func (tx *txn) event(op Op, sessionID string, seq int) {
	tx.events = append(tx.events, Event{Op: op, SessionID: sessionID, Seq: seq, At: tx.now})
}

// load reads and decodes the last committed snapshot. A store that was
// never written yields an empty document.
func (s *Store) load(ctx context.Context) (*Document, error) {
	data, err := s.snapshots.Read(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.location, Err: err}
	}

	doc, warnings, err := s.decode(data, true)
	if err != nil {
		return nil, &PersistenceError{Op: "decode", Path: s.location, Err: err}
	}
	for _, w := range warnings {
		s.metrics.observeWarning(w)
		s.onWarning(w)
	}
	return doc, nil
}

// update runs fn inside one load/mutate/commit transaction. Nothing is
// written when fn fails or marks the transaction as a no-op.
func (s *Store) update(ctx context.Context, op Op, attrs []attribute.KeyValue, fn func(doc *Document, tx *txn) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "qaindex."+string(op), trace.WithAttributes(attrs...))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(op)+" failed")
			s.metrics.observeFailure(op, err)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}

	tx := &txn{now: s.now()}
	if err := fn(doc, tx); err != nil {
		return err
	}
	if tx.noop {
		span.SetAttributes(attribute.Bool("noop", true))
		return nil
	}

	Recompute(doc, tx.now)
	if s.verify {
		if err := Verify(doc); err != nil {
			return fmt.Errorf("qaindex: %s: %w", op, err)
		}
	}

	data, err := Encode(doc)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.location, Err: err}
	}
	if err := s.snapshots.Write(ctx, data); err != nil {
		return &PersistenceError{Op: "write", Path: s.location, Err: err}
	}

	s.metrics.observeCommit(op, time.Since(start), doc.Metadata)
	for range tx.discarded {
		s.metrics.observeDiscard()
	}
	for _, w := range tx.warnings {
		s.metrics.observeWarning(w)
		s.onWarning(w)
	}
	for _, ev := range tx.events {
		s.events.publish(ev)
	}
	span.SetAttributes(attribute.Int("entries", doc.Metadata.TotalQAPairs))
	s.logger.Debug("qaindex commit", "op", op, "entries", doc.Metadata.TotalQAPairs, "bytes", len(data))
	return nil
}

// view loads the last committed snapshot for a read-only query.
func (s *Store) view(ctx context.Context, name string, attrs []attribute.KeyValue, fn func(doc *Document) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "qaindex."+name, trace.WithAttributes(attrs...))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, name+" failed")
		}
	}()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(doc)
}

func validSignificance(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
