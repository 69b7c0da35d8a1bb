package qaindex

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// overlapChunk is the number of candidates scored per goroutine.
const overlapChunk = 2048

// Recent returns the last window entries of a session in ascending seq
// order. A window of 0 means DefaultWindow.
func (s *Store) Recent(ctx context.Context, sessionID string, window int) ([]Record, error) {
	switch {
	case window < 0:
		return nil, invalid("window", "must not be negative")
	case window == 0:
		window = DefaultWindow
	}

	var out []Record
	err := s.view(ctx, "recent", sessionAttrs(sessionID, 0), func(doc *Document) error {
		sess := doc.Session(sessionID)
		if sess == nil {
			return sessionNotFound(sessionID)
		}
		out = recent(sess, window)
		return nil
	})
	return out, err
}

func recent(sess *Session, window int) []Record {
	entries := sess.QASequence
	if len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, record(sess.SessionID, e))
	}
	return out
}

// Latest returns the n most recent entries across all sessions, oldest
// first.
func (s *Store) Latest(ctx context.Context, n int) ([]Record, error) {
	if n < 1 {
		return nil, invalid("n", "must be >= 1")
	}

	var out []Record
	err := s.view(ctx, "latest", nil, func(doc *Document) error {
		refs := doc.Index.ByRecency
		if len(refs) > n {
			refs = refs[:n]
		}
		out = make([]Record, 0, len(refs))
		for i := len(refs) - 1; i >= 0; i-- {
			if e := doc.Lookup(refs[i].Ref()); e != nil {
				out = append(out, record(refs[i].Session, e))
			}
		}
		return nil
	})
	return out, err
}

// RangeQuery selects entries with Since <= timestamp < Until. A zero bound
// is open. An empty SessionID searches every session.
type RangeQuery struct {
	SessionID string
	Since     time.Time
	Until     time.Time
}

func (q RangeQuery) contains(ts time.Time) bool {
	if !q.Since.IsZero() && ts.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !ts.Before(q.Until) {
		return false
	}
	return true
}

// Range is the time-ranged variant of Recent. Results are in chronological
// order.
func (s *Store) Range(ctx context.Context, q RangeQuery) ([]Record, error) {
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		return nil, invalid("range", "since must be before until")
	}

	out := []Record{}
	err := s.view(ctx, "range", sessionAttrs(q.SessionID, 0), func(doc *Document) error {
		if q.SessionID != "" {
			sess := doc.Session(q.SessionID)
			if sess == nil {
				return sessionNotFound(q.SessionID)
			}
			for _, e := range sess.QASequence {
				if q.contains(e.Timestamp) {
					out = append(out, record(sess.SessionID, e))
				}
			}
			return nil
		}

		refs := doc.Index.ByRecency
		for i := len(refs) - 1; i >= 0; i-- {
			if !q.contains(refs[i].Timestamp) {
				continue
			}
			if e := doc.Lookup(refs[i].Ref()); e != nil {
				out = append(out, record(refs[i].Session, e))
			}
		}
		return nil
	})
	return out, err
}

// ByTopic returns the entries tagged with topic in first-tagged order. An
// unknown topic yields an empty result.
func (s *Store) ByTopic(ctx context.Context, topic string) ([]Record, error) {
	return s.ByTopicRange(ctx, topic, time.Time{}, time.Time{})
}

// ByTopicRange is ByTopic restricted to since <= timestamp < until, with
// zero bounds open.
func (s *Store) ByTopicRange(ctx context.Context, topic string, since, until time.Time) ([]Record, error) {
	q := RangeQuery{Since: since, Until: until}
	out := []Record{}
	err := s.view(ctx, "by_topic", []attribute.KeyValue{attribute.String("topic", topic)}, func(doc *Document) error {
		for _, ref := range doc.Index.ByTopic[topic] {
			e := doc.Lookup(ref)
			if e == nil || !q.contains(e.Timestamp) {
				continue
			}
			out = append(out, record(ref.Session, e))
		}
		return nil
	})
	return out, err
}

// ByHash resolves a question hash to the entry that last used it.
func (s *Store) ByHash(ctx context.Context, hash string) (Record, error) {
	var out Record
	err := s.view(ctx, "by_hash", []attribute.KeyValue{attribute.String("hash", hash)}, func(doc *Document) error {
		ref, ok := doc.Index.BySemanticHash[hash]
		if !ok {
			return &NotFoundError{Entity: "hash", Key: hash}
		}
		e := doc.Lookup(ref)
		if e == nil {
			return &NotFoundError{Entity: "hash", Key: hash}
		}
		out = record(ref.Session, e)
		return nil
	})
	return out, err
}

// OverlapQuery configures ByTokenOverlap.
type OverlapQuery struct {
	Text  string
	Limit int

	// MinSignificance drops entries whose stored answer scores below it.
	MinSignificance float64

	// RequireAnswer drops entries without stored answer text.
	RequireAnswer bool

	// SessionID restricts the search to one session when set.
	SessionID string
}

// ByTokenOverlap ranks entries by the Jaccard overlap between the query
// tokens and their question tokens. Entries without overlap are dropped.
// Ties go to the most recent entry. This is the only query linear in the
// number of entries; candidates are scored in parallel chunks.
func (s *Store) ByTokenOverlap(ctx context.Context, q OverlapQuery) ([]Match, error) {
	if q.Limit < 1 {
		return nil, invalid("limit", "must be >= 1")
	}
	if !validSignificance(q.MinSignificance) {
		return nil, invalid("min_significance", fmt.Sprintf("%v outside [0,1]", q.MinSignificance))
	}

	query := s.tokenize(q.Text)
	out := []Match{}
	if len(query) == 0 {
		return out, nil
	}

	attrs := []attribute.KeyValue{attribute.Int("limit", q.Limit), attribute.Int("query_tokens", len(query))}
	err := s.view(ctx, "by_token_overlap", attrs, func(doc *Document) error {
		var candidates []placed
		for i, sess := range doc.Sessions {
			if q.SessionID != "" && sess.SessionID != q.SessionID {
				continue
			}
			for _, e := range sess.QASequence {
				candidates = append(candidates, placed{session: sess.SessionID, order: i, entry: e})
			}
		}
		if q.SessionID != "" && doc.Session(q.SessionID) == nil {
			return sessionNotFound(q.SessionID)
		}

		matches, err := scoreOverlap(ctx, query, candidates, q)
		if err != nil {
			return err
		}
		slices.SortFunc(matches, compareMatches)
		if len(matches) > q.Limit {
			matches = matches[:q.Limit]
		}
		out = matches
		return nil
	})
	return out, err
}

func scoreOverlap(ctx context.Context, query []string, candidates []placed, q OverlapQuery) ([]Match, error) {
	set := make(map[string]struct{}, len(query))
	for _, t := range query {
		set[t] = struct{}{}
	}

	chunks := (len(candidates) + overlapChunk - 1) / overlapChunk
	results := make([][]Match, chunks)

	g, gctx := errgroup.WithContext(ctx)
	for c := range chunks {
		lo := c * overlapChunk
		hi := min(lo+overlapChunk, len(candidates))
		g.Go(func() error {
			var part []Match
			for i, p := range candidates[lo:hi] {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				e := p.entry
				if q.RequireAnswer && !e.HasAnswer() {
					continue
				}
				if e.HasAnswer() && e.ASignificance < q.MinSignificance {
					continue
				}
				score := jaccard(set, e.QTokens)
				if score == 0 {
					continue
				}
				part = append(part, Match{Record: record(p.session, e), Score: score})
			}
			results[c] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

func jaccard(query map[string]struct{}, tokens []string) float64 {
	inter := 0
	distinct := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, dup := distinct[t]; dup {
			continue
		}
		distinct[t] = struct{}{}
		if _, ok := query[t]; ok {
			inter++
		}
	}
	union := len(query) + len(distinct) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func compareMatches(a, b Match) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SessionID, b.SessionID); c != 0 {
		return c
	}
	return cmp.Compare(b.Seq, a.Seq)
}

// Topics lists every topic with its entry count, most used first.
func (s *Store) Topics(ctx context.Context) ([]TopicSummary, error) {
	out := []TopicSummary{}
	err := s.view(ctx, "topics", nil, func(doc *Document) error {
		for topic, refs := range doc.Index.ByTopic {
			out = append(out, TopicSummary{Topic: topic, Count: len(refs)})
		}
		slices.SortFunc(out, func(a, b TopicSummary) int {
			if c := cmp.Compare(b.Count, a.Count); c != 0 {
				return c
			}
			return cmp.Compare(a.Topic, b.Topic)
		})
		return nil
	})
	return out, err
}

// Session returns a full session.
func (s *Store) Session(ctx context.Context, sessionID string) (Session, error) {
	var out Session
	err := s.view(ctx, "session", sessionAttrs(sessionID, 0), func(doc *Document) error {
		sess := doc.Session(sessionID)
		if sess == nil {
			return sessionNotFound(sessionID)
		}
		out = *sess
		return nil
	})
	return out, err
}

// Sessions summarizes every active session in creation order.
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	var out []SessionSummary
	err := s.view(ctx, "sessions", nil, func(doc *Document) error {
		out = summarize(doc)
		return nil
	})
	return out, err
}

func summarize(doc *Document) []SessionSummary {
	out := make([]SessionSummary, 0, len(doc.Sessions))
	for _, sess := range doc.Sessions {
		sum := SessionSummary{
			SessionID:   sess.SessionID,
			Created:     sess.Created,
			LastUpdated: sess.LastUpdated,
			Entries:     len(sess.QASequence),
		}
		for _, e := range sess.QASequence {
			if e.HasAnswer() {
				sum.StoredAnswers++
			}
		}
		out = append(out, sum)
	}
	return out
}

// Stats returns the aggregate metadata and per-session counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := s.view(ctx, "stats", nil, func(doc *Document) error {
		out = Stats{Metadata: doc.Metadata, PerSession: summarize(doc)}
		return nil
	})
	return out, err
}

// Document returns the last committed document.
func (s *Store) Document(ctx context.Context) (*Document, error) {
	var out *Document
	err := s.view(ctx, "document", nil, func(doc *Document) error {
		out = doc
		return nil
	})
	return out, err
}
