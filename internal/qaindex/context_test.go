package qaindex_test

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/qaindex/internal/qaindex"
	"github.com/flemzord/qaindex/internal/textproc"
)

func TestContextWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, qaindex.Options{Scorer: fixedScore(0.5)})
	ctx := context.Background()
	for i, q := range []string{"q1", "q2", "q3"} {
		h.ask(t, "s", q, at(i))
	}
	if _, err := h.store.RecordAnswer(ctx, "s", 2, qaindex.AnswerInput{Answer: "kept", Significance: ptr(0.9)}); err != nil {
		t.Fatal(err)
	}
	h.answer(t, "s", 3, "discarded")

	items, err := h.store.ContextWindow(ctx, "s", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Seq != 2 || !items[0].HasAnswer || items[0].Answer != "kept" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Seq != 3 || items[1].HasAnswer || items[1].Answer != "" || items[1].Question != "q3" {
		t.Errorf("items[1] = %+v", items[1])
	}

	all, err := h.store.ContextWindow(ctx, "s", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Seq != 1 {
		t.Errorf("ContextWindow(0) = %+v, want the default window over all 3 entries", all)
	}
	if _, err := h.store.ContextWindow(ctx, "s", -2); !errors.Is(err, qaindex.ErrValidation) {
		t.Errorf("ContextWindow(-2) error = %v, want ErrValidation", err)
	}
}

func TestFormatContext(t *testing.T) {
	t.Parallel()

	items := []qaindex.ContextItem{
		{Seq: 4, Question: "What changed?", Answer: "Two things.\nFirst the index.", HasAnswer: true},
		{Seq: 5, Question: "And then?"},
	}
	got := qaindex.FormatContext(items, qaindex.FormatOptions{})
	want := "## Recent Conversation Context\n\n" +
		"**[4]** What changed?\n" +
		"> Two things.\n> First the index.\n\n" +
		"**[5]** And then?\n\n"
	if got != want {
		t.Errorf("FormatContext =\n%q\nwant\n%q", got, want)
	}

	got = qaindex.FormatContext(items[:1], qaindex.FormatOptions{Heading: "## Memory", MaxAnswerChars: 3})
	want = "## Memory\n\n**[4]** What changed?\n> Two...\n\n"
	if got != want {
		t.Errorf("truncated =\n%q\nwant\n%q", got, want)
	}

	if got := qaindex.FormatContext(nil, qaindex.FormatOptions{}); got != "" {
		t.Errorf("FormatContext(nil) = %q, want empty", got)
	}
}

func TestTrimToBudget(t *testing.T) {
	t.Parallel()

	items := []qaindex.ContextItem{
		{Seq: 1, Question: "aaaaaaaa"},
		{Seq: 2, Question: "bbbb", Answer: "cccc"},
		{Seq: 3, Question: "dddddddd", Answer: "eeee"},
	}
	// Costs with 4 chars per token: 3, 4 and 5.
	est := textproc.NewCharEstimator(4)
	estimate := func(s string) int { return est.Estimate(s) }

	got := qaindex.TrimToBudget(items, 9, estimate)
	if len(got) != 2 || got[0].Seq != 2 {
		t.Errorf("budget 9 kept %+v, want seq 2 and 3", got)
	}
	if got := qaindex.TrimToBudget(items, 0, estimate); len(got) != 3 {
		t.Errorf("budget 0 kept %d items, want all", len(got))
	}
	if got := qaindex.TrimToBudget(items, 1, estimate); len(got) != 0 {
		t.Errorf("budget 1 kept %d items, want none", len(got))
	}
}
