package qaindex

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

// indexAppend adds a new entry to by_semantic_hash and by_recency. It
// returns a warning when the hash already pointed at another entry.
func indexAppend(doc *Document, sessionID string, e *Entry) *Warning {
	ref := Ref{Session: sessionID, Seq: e.Seq}

	var w *Warning
	if prev, ok := doc.Index.BySemanticHash[e.QHash]; ok && prev != ref {
		w = &Warning{
			Kind:     WarningHashCollision,
			Message:  fmt.Sprintf("hash %s moved from %s#%d to %s#%d", e.QHash, prev.Session, prev.Seq, ref.Session, ref.Seq),
			Hash:     e.QHash,
			Previous: &prev,
			Current:  ref,
		}
	}
	doc.Index.BySemanticHash[e.QHash] = ref

	// Descending by timestamp; an entry tied with existing ones goes first.
	recency := doc.Index.ByRecency
	i := sort.Search(len(recency), func(i int) bool {
		return !recency[i].Timestamp.After(e.Timestamp)
	})
	doc.Index.ByRecency = slices.Insert(recency, i, RecencyRef{
		Session:   sessionID,
		Seq:       e.Seq,
		Timestamp: e.Timestamp,
	})
	return w
}

// indexTags reconciles by_topic after an entry's tags changed from old to
// current. Existing references keep their position.
func indexTags(doc *Document, ref Ref, old, current []string) {
	for _, t := range old {
		if slices.Contains(current, t) {
			continue
		}
		refs := slices.DeleteFunc(doc.Index.ByTopic[t], func(r Ref) bool { return r == ref })
		if len(refs) == 0 {
			delete(doc.Index.ByTopic, t)
			continue
		}
		doc.Index.ByTopic[t] = refs
	}
	for _, t := range current {
		refs := doc.Index.ByTopic[t]
		if slices.Contains(refs, ref) {
			continue
		}
		doc.Index.ByTopic[t] = append(refs, ref)
	}
}

// indexRemoveSession drops every reference into the session. Hashes that
// pointed into it move to the latest remaining entry with the same hash.
func indexRemoveSession(doc *Document, sessionID string) {
	for t, refs := range doc.Index.ByTopic {
		refs = slices.DeleteFunc(refs, func(r Ref) bool { return r.Session == sessionID })
		if len(refs) == 0 {
			delete(doc.Index.ByTopic, t)
			continue
		}
		doc.Index.ByTopic[t] = refs
	}

	doc.Index.ByRecency = slices.DeleteFunc(doc.Index.ByRecency, func(r RecencyRef) bool {
		return r.Session == sessionID
	})

	orphaned := make(map[string]struct{})
	for h, ref := range doc.Index.BySemanticHash {
		if ref.Session == sessionID {
			orphaned[h] = struct{}{}
			delete(doc.Index.BySemanticHash, h)
		}
	}
	if len(orphaned) == 0 {
		return
	}

	for h, ref := range hashWinners(doc) {
		if _, ok := orphaned[h]; ok {
			doc.Index.BySemanticHash[h] = ref
		}
	}
}

// hashWinners maps every question hash to the entry with the highest
// ordinal carrying it.
func hashWinners(doc *Document) map[string]Ref {
	refs := make(map[string]Ref)
	best := make(map[string]int64)
	for _, s := range doc.Sessions {
		for _, e := range s.QASequence {
			if o, ok := best[e.QHash]; ok && o >= e.Ordinal {
				continue
			}
			best[e.QHash] = e.Ordinal
			refs[e.QHash] = Ref{Session: s.SessionID, Seq: e.Seq}
		}
	}
	return refs
}

// assignOrdinals numbers entries that have no ordinal, in replay order,
// after the highest ordinal already present.
func assignOrdinals(doc *Document) {
	var missing bool
	for _, s := range doc.Sessions {
		for _, e := range s.QASequence {
			doc.Appended = max(doc.Appended, e.Ordinal)
			if e.Ordinal <= 0 {
				missing = true
			}
		}
	}
	if !missing {
		return
	}
	for _, p := range replayOrder(doc) {
		if p.entry.Ordinal <= 0 {
			doc.Appended++
			p.entry.Ordinal = doc.Appended
		}
	}
}

type placed struct {
	session string
	order   int
	entry   *Entry
}

// replayOrder lists all entries by timestamp, then session position, then seq.
func replayOrder(doc *Document) []placed {
	var all []placed
	for i, s := range doc.Sessions {
		for _, e := range s.QASequence {
			all = append(all, placed{session: s.SessionID, order: i, entry: e})
		}
	}
	slices.SortStableFunc(all, func(a, b placed) int {
		if c := a.entry.Timestamp.Compare(b.entry.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.order, b.order); c != 0 {
			return c
		}
		return cmp.Compare(a.entry.Seq, b.entry.Seq)
	})
	return all
}

// Rebuild recomputes all three indices by replaying the session log.
// Topic references follow replay order and hash collisions resolve to the
// entry appended last.
func Rebuild(doc *Document) {
	doc.reindexSessions()
	assignOrdinals(doc)

	byTopic := map[string][]Ref{}
	order := replayOrder(doc)
	recency := make([]RecencyRef, len(order))

	for i, p := range order {
		ref := Ref{Session: p.session, Seq: p.entry.Seq}
		for _, t := range p.entry.TopicTags {
			if !slices.Contains(byTopic[t], ref) {
				byTopic[t] = append(byTopic[t], ref)
			}
		}
		recency[len(order)-1-i] = RecencyRef{
			Session:   p.session,
			Seq:       p.entry.Seq,
			Timestamp: p.entry.Timestamp,
		}
	}

	doc.Index = Index{
		ByTopic:        byTopic,
		ByRecency:      recency,
		BySemanticHash: hashWinners(doc),
	}
}

// Verify checks that the session log is well formed and that the indices
// and metadata agree with it. The returned error wraps ErrInconsistent and
// joins every violation found.
func Verify(doc *Document) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if doc.Version != SchemaVersion {
		fail("version %d, want %d", doc.Version, SchemaVersion)
	}
	if doc.Structure != Structure {
		fail("structure %q, want %q", doc.Structure, Structure)
	}

	type tagged struct {
		ref   Ref
		topic string
	}
	entries := make(map[Ref]*Entry)
	ordinals := make(map[int64]Ref)
	tags := make(map[tagged]struct{})
	seen := make(map[string]struct{}, len(doc.Sessions))

	for _, s := range doc.Sessions {
		if _, dup := seen[s.SessionID]; dup {
			fail("session %q appears twice", s.SessionID)
		}
		seen[s.SessionID] = struct{}{}

		for i, e := range s.QASequence {
			if e.Seq != i+1 {
				fail("session %q: position %d holds seq %d", s.SessionID, i+1, e.Seq)
			}
			ref := Ref{Session: s.SessionID, Seq: e.Seq}
			entries[ref] = e
			switch prev, dup := ordinals[e.Ordinal]; {
			case e.Ordinal < 1 || e.Ordinal > doc.Appended:
				fail("%s#%d: ordinal %d outside 1..%d", s.SessionID, e.Seq, e.Ordinal, doc.Appended)
			case dup:
				fail("%s#%d: ordinal %d already used by %s#%d", s.SessionID, e.Seq, e.Ordinal, prev.Session, prev.Seq)
			default:
				ordinals[e.Ordinal] = ref
			}
			for _, t := range e.TopicTags {
				tags[tagged{ref, t}] = struct{}{}
			}

			if e.ASignificance < 0 || e.ASignificance > 1 || math.IsNaN(e.ASignificance) {
				fail("%s#%d: significance %v outside [0,1]", s.SessionID, e.Seq, e.ASignificance)
			}
			if !e.Answered() && (e.A != nil || e.ASignificance != 0) {
				fail("%s#%d: unanswered entry carries an answer or score", s.SessionID, e.Seq)
			}
			if e.A == nil && e.ATokens != 0 {
				fail("%s#%d: a_tokens %d without answer", s.SessionID, e.Seq, e.ATokens)
			}
		}
	}

	for topic, refs := range doc.Index.ByTopic {
		if len(refs) == 0 {
			fail("by_topic[%q] is empty", topic)
		}
		dedup := make(map[Ref]struct{}, len(refs))
		for _, ref := range refs {
			if _, dup := dedup[ref]; dup {
				fail("by_topic[%q] lists %s#%d twice", topic, ref.Session, ref.Seq)
			}
			dedup[ref] = struct{}{}
			if _, ok := tags[tagged{ref, topic}]; !ok {
				fail("by_topic[%q] lists %s#%d which lacks the tag", topic, ref.Session, ref.Seq)
			}
		}
	}
	for tg := range tags {
		if !slices.Contains(doc.Index.ByTopic[tg.topic], tg.ref) {
			fail("by_topic[%q] misses %s#%d", tg.topic, tg.ref.Session, tg.ref.Seq)
		}
	}

	for h, ref := range doc.Index.BySemanticHash {
		e, ok := entries[ref]
		switch {
		case !ok:
			fail("by_semantic_hash[%s] points at missing %s#%d", h, ref.Session, ref.Seq)
		case e.QHash != h:
			fail("by_semantic_hash[%s] points at %s#%d with hash %s", h, ref.Session, ref.Seq, e.QHash)
		}
	}
	for h, want := range hashWinners(doc) {
		got, ok := doc.Index.BySemanticHash[h]
		switch {
		case !ok:
			fail("by_semantic_hash misses %s", h)
		case got != want:
			fail("by_semantic_hash[%s] = %s#%d, last appended is %s#%d", h, got.Session, got.Seq, want.Session, want.Seq)
		}
	}

	if len(doc.Index.ByRecency) != len(entries) {
		fail("by_recency has %d refs for %d entries", len(doc.Index.ByRecency), len(entries))
	}
	listed := make(map[Ref]struct{}, len(doc.Index.ByRecency))
	for i, r := range doc.Index.ByRecency {
		ref := r.Ref()
		if _, dup := listed[ref]; dup {
			fail("by_recency lists %s#%d twice", r.Session, r.Seq)
		}
		listed[ref] = struct{}{}
		e, ok := entries[ref]
		switch {
		case !ok:
			fail("by_recency points at missing %s#%d", r.Session, r.Seq)
		case !e.Timestamp.Equal(r.Timestamp):
			fail("by_recency timestamp of %s#%d differs from entry", r.Session, r.Seq)
		}
		if i > 0 && r.Timestamp.After(doc.Index.ByRecency[i-1].Timestamp) {
			fail("by_recency out of order at position %d", i)
		}
	}

	want := computeMetadata(doc)
	got := doc.Metadata
	if got.TotalQAPairs != want.TotalQAPairs ||
		got.StoredAnswers != want.StoredAnswers ||
		got.Sessions != want.Sessions ||
		got.Topics != want.Topics ||
		math.Abs(got.AvgSignificance-want.AvgSignificance) > 1e-9 ||
		math.Abs(got.CompressionRatio-want.CompressionRatio) > 1e-9 {
		fail("metadata %+v differs from recomputation %+v", got, want)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInconsistent, errors.Join(errs...))
}
