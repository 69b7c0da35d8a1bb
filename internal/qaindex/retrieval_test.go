package qaindex_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/flemzord/qaindex/internal/qaindex"
)

func sevenEntries(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, qaindex.Options{})
	for i := 1; i <= 7; i++ {
		h.ask(t, "s", fmt.Sprintf("question %d", i), at(i))
	}
	return h
}

func TestRecent(t *testing.T) {
	t.Parallel()
	h := sevenEntries(t)
	ctx := context.Background()

	got, err := h.store.Recent(ctx, "s", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seqs(got), []int{3, 4, 5, 6, 7}) {
		t.Errorf("Recent(5) = %v, want [3 4 5 6 7]", seqs(got))
	}

	got, err = h.store.Recent(ctx, "s", 100)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seqs(got), []int{1, 2, 3, 4, 5, 6, 7}) {
		t.Errorf("Recent(100) = %v, want all 7", seqs(got))
	}

	if _, err := h.store.Recent(ctx, "unknown", 5); !errors.Is(err, qaindex.ErrNotFound) {
		t.Errorf("unknown session: err = %v, want ErrNotFound", err)
	}
	got, err = h.store.Recent(ctx, "s", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seqs(got), []int{3, 4, 5, 6, 7}) {
		t.Errorf("Recent(0) = %v, want the default window [3 4 5 6 7]", seqs(got))
	}
	if _, err := h.store.Recent(ctx, "s", -1); !errors.Is(err, qaindex.ErrValidation) {
		t.Errorf("window -1: err = %v, want ErrValidation", err)
	}
}

func TestByTopic_SingleTaggedEntry(t *testing.T) {
	t.Parallel()
	h := sevenEntries(t)
	h.answer(t, "s", 6, "design notes", "memory_design")
	h.answer(t, "s", 2, "other", "misc")

	got, err := h.store.ByTopic(context.Background(), "memory_design")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Seq != 6 || got[0].SessionID != "s" {
		t.Errorf("ByTopic(memory_design) = %v, want exactly s#6", seqs(got))
	}

	got, err = h.store.ByTopic(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("unknown topic: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("unknown topic = %#v, want empty", got)
	}
}

func TestByTopic_FirstTaggedOrder(t *testing.T) {
	t.Parallel()
	h := sevenEntries(t)
	ctx := context.Background()
	h.answer(t, "s", 5, "a", "go")
	h.answer(t, "s", 2, "a", "go")
	if _, err := h.store.UpdateTags(ctx, "s", 7, []string{"go"}); err != nil {
		t.Fatal(err)
	}
	// Re-tagging an entry that already has the topic keeps its position.
	if _, err := h.store.UpdateTags(ctx, "s", 5, []string{"go", "extra"}); err != nil {
		t.Fatal(err)
	}

	got, err := h.store.ByTopic(ctx, "go")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seqs(got), []int{5, 2, 7}) {
		t.Errorf("ByTopic(go) = %v, want [5 2 7]", seqs(got))
	}

	ranged, err := h.store.ByTopicRange(ctx, "go", at(2), at(7))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seqs(ranged), []int{5, 2}) {
		t.Errorf("ByTopicRange = %v, want [5 2]", seqs(ranged))
	}
}

func TestLatestAndRange(t *testing.T) {
	t.Parallel()
	h := newHarness(t, qaindex.Options{})
	ctx := context.Background()
	h.ask(t, "a", "a1", at(1))
	h.ask(t, "b", "b1", at(2))
	h.ask(t, "a", "a2", at(3))
	h.ask(t, "b", "b2", at(4))

	latest, err := h.store.Latest(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range latest {
		got = append(got, r.Q)
	}
	if !slices.Equal(got, []string{"b1", "a2", "b2"}) {
		t.Errorf("Latest(3) = %v, want [b1 a2 b2]", got)
	}

	all, err := h.store.Range(ctx, qaindex.RangeQuery{Since: at(2), Until: at(4)})
	if err != nil {
		t.Fatal(err)
	}
	got = got[:0]
	for _, r := range all {
		got = append(got, r.Q)
	}
	if !slices.Equal(got, []string{"b1", "a2"}) {
		t.Errorf("Range[2,4) = %v, want [b1 a2]", got)
	}

	sess, err := h.store.Range(ctx, qaindex.RangeQuery{SessionID: "a", Since: at(2)})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seqs(sess), []int{2}) {
		t.Errorf("Range(a, since 2) = %v, want [2]", seqs(sess))
	}

	if _, err := h.store.Range(ctx, qaindex.RangeQuery{Since: at(4), Until: at(2)}); !errors.Is(err, qaindex.ErrValidation) {
		t.Errorf("inverted range: err = %v, want ErrValidation", err)
	}
	if _, err := h.store.Latest(ctx, 0); !errors.Is(err, qaindex.ErrValidation) {
		t.Errorf("Latest(0): err = %v, want ErrValidation", err)
	}
}

func TestByTokenOverlap(t *testing.T) {
	t.Parallel()
	h := newHarness(t, qaindex.Options{Scorer: fixedScore(0.9)})
	ctx := context.Background()

	h.ask(t, "s", "memory index design", at(1))
	h.ask(t, "s", "memory index design notes", at(2))
	h.ask(t, "s", "unrelated cooking recipe", at(3))
	h.ask(t, "s", "index design", at(4))
	h.ask(t, "t", "memory index", at(5))
	h.answer(t, "s", 1, "kept")
	if _, err := h.store.RecordAnswer(ctx, "s", 4, qaindex.AnswerInput{Answer: "low", Significance: ptr(0.65)}); err != nil {
		t.Fatal(err)
	}

	matches, err := h.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{Text: "index design memory?? no wait: index DESIGN", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	// Query tokens: index, design, memory, no, wait.
	type key struct {
		session string
		seq     int
	}
	var order []key
	for _, m := range matches {
		order = append(order, key{m.SessionID, m.Seq})
	}
	// s#1 3/5, s#2 3/6, then t#1 and s#4 tie at 2/5 and the newer wins.
	want := []key{{"s", 1}, {"s", 2}, {"t", 1}, {"s", 4}}
	if !slices.Equal(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if matches[0].Score != 3.0/5 || matches[3].Score != 2.0/5 {
		t.Errorf("scores = %v, %v; want 0.6, 0.4", matches[0].Score, matches[3].Score)
	}

	limited, err := h.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{Text: "memory index design", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].Seq != 1 || limited[0].SessionID != "s" || limited[0].Score != 1 {
		t.Errorf("limited = %+v", limited)
	}

	answered, err := h.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{Text: "memory index design", Limit: 10, RequireAnswer: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(answered) != 2 {
		t.Fatalf("RequireAnswer: %d matches, want 2", len(answered))
	}

	strict, err := h.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{Text: "memory index design", Limit: 10, RequireAnswer: true, MinSignificance: 0.8})
	if err != nil {
		t.Fatal(err)
	}
	if len(strict) != 1 || strict[0].Seq != 1 {
		t.Errorf("MinSignificance 0.8: %+v", strict)
	}

	scoped, err := h.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{Text: "memory index", Limit: 10, SessionID: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].SessionID != "t" {
		t.Errorf("session filter: %+v", scoped)
	}

	none, err := h.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{Text: "?!", Limit: 10})
	if err != nil || len(none) != 0 {
		t.Errorf("tokenless query = %v, %v", none, err)
	}

	if _, err := h.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{Text: "x", Limit: 0}); !errors.Is(err, qaindex.ErrValidation) {
		t.Errorf("limit 0: err = %v, want ErrValidation", err)
	}
	if _, err := h.store.ByTokenOverlap(ctx, qaindex.OverlapQuery{Text: "memory", Limit: 1, SessionID: "zz"}); !errors.Is(err, qaindex.ErrNotFound) {
		t.Errorf("unknown session: err = %v, want ErrNotFound", err)
	}
}

func TestByTokenOverlap_ManyCandidates(t *testing.T) {
	t.Parallel()

	// Build the document directly so the test does not pay for thousands
	// of commits.
	doc := qaindex.NewDocument()
	sess := &qaindex.Session{SessionID: "bulk", Created: at(0), LastUpdated: at(0)}
	for i := 1; i <= 5000; i++ {
		tokens := []string{"filler", fmt.Sprintf("n%d", i)}
		if i%1000 == 0 {
			tokens = []string{"needle", "haystack"}
		}
		sess.QASequence = append(sess.QASequence, &qaindex.Entry{
			Seq:       i,
			Timestamp: at(i),
			User:      "u",
			Q:         fmt.Sprintf("q%d", i),
			QTokens:   tokens,
			QHash:     fmt.Sprintf("h%d", i),
			TopicTags: []string{},
		})
	}
	doc.Sessions = append(doc.Sessions, sess)
	qaindex.Rebuild(doc)
	qaindex.Recompute(doc, at(6000))
	data, err := qaindex.Encode(doc)
	if err != nil {
		t.Fatal(err)
	}

	store, err := qaindex.New(&rawSnapshots{data: data}, qaindex.Options{})
	if err != nil {
		t.Fatal(err)
	}
	matches, err := store.ByTokenOverlap(context.Background(), qaindex.OverlapQuery{Text: "needle haystack", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, m := range matches {
		got = append(got, m.Seq)
		if m.Score != 1 {
			t.Errorf("seq %d score = %v, want 1", m.Seq, m.Score)
		}
	}
	if !slices.Equal(got, []int{5000, 4000, 3000}) {
		t.Errorf("top 3 = %v, want [5000 4000 3000]", got)
	}
}

func TestTopicsSessionsStats(t *testing.T) {
	t.Parallel()
	h := newHarness(t, qaindex.Options{})
	ctx := context.Background()
	h.ask(t, "a", "q1", at(1))
	h.ask(t, "a", "q2", at(2))
	h.ask(t, "b", "q3", at(3))
	h.answer(t, "a", 1, "x", "go", "sql")
	h.answer(t, "a", 2, "y", "go")
	h.answer(t, "b", 1, "z", "alpha")

	topics, err := h.store.Topics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []qaindex.TopicSummary{{Topic: "go", Count: 2}, {Topic: "alpha", Count: 1}, {Topic: "sql", Count: 1}}
	if !slices.Equal(topics, want) {
		t.Errorf("Topics = %v, want %v", topics, want)
	}

	sessions, err := h.store.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "a" || sessions[0].Entries != 2 || sessions[0].StoredAnswers != 2 {
		t.Errorf("Sessions = %+v", sessions)
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalQAPairs != 3 || stats.Sessions != 2 || stats.Topics != 3 || len(stats.PerSession) != 2 {
		t.Errorf("Stats = %+v", stats)
	}

	sess, err := h.store.Session(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Created.Equal(at(3)) || len(sess.QASequence) != 1 {
		t.Errorf("Session(b) = %+v", sess)
	}
	if _, err := h.store.Session(ctx, "zz"); !errors.Is(err, qaindex.ErrNotFound) {
		t.Errorf("Session(zz): err = %v", err)
	}
}
