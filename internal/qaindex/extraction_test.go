package qaindex_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/qaindex/internal/qaindex"
)

func TestExtractWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, qaindex.Options{})
	ctx := context.Background()
	h.ask(t, "a", "before window", at(0))
	h.ask(t, "a", "inside one", at(61))
	h.ask(t, "b", "inside two", at(90))
	h.ask(t, "a", "at until", at(120))
	h.answer(t, "a", 2, "answered")

	w := qaindex.Window{Since: at(60), Until: at(120)}
	x, err := h.store.ExtractWindow(ctx, w)
	if err != nil {
		t.Fatal(err)
	}
	if len(x.Records) != 2 || x.Records[0].Q != "inside one" || x.Records[1].Q != "inside two" {
		t.Fatalf("records = %+v", x.Records)
	}
	if len(x.Answers()) != 1 || len(x.Questions()) != 2 {
		t.Errorf("answers = %d questions = %d, want 1 and 2", len(x.Answers()), len(x.Questions()))
	}
	for _, r := range x.Records {
		if r.ExtractedAt == nil || !r.ExtractedAt.Equal(at(1000)) {
			t.Errorf("%s#%d extracted_at = %v", r.SessionID, r.Seq, r.ExtractedAt)
		}
	}

	// Re-running over the same window is a read.
	writes := h.snapshots.Writes()
	h.clock.Set(at(2000))
	again, err := h.store.ExtractWindow(ctx, w)
	if err != nil {
		t.Fatal(err)
	}
	if h.snapshots.Writes() != writes {
		t.Error("repeated extraction wrote a snapshot")
	}
	if len(again.Records) != 2 || !again.Records[0].ExtractedAt.Equal(at(1000)) {
		t.Errorf("repeated extraction = %+v", again.Records)
	}

	// Extracted answers are frozen; scores and tags are not.
	_, err = h.store.RecordAnswer(ctx, "a", 2, qaindex.AnswerInput{Answer: "rewritten"})
	if !errors.Is(err, qaindex.ErrValidation) {
		t.Errorf("re-answer after extraction: err = %v, want ErrValidation", err)
	}
	if _, err := h.store.UpdateSignificance(ctx, "a", 2, 0.99); err != nil {
		t.Errorf("UpdateSignificance after extraction: %v", err)
	}
	if _, err := h.store.UpdateTags(ctx, "a", 2, []string{"late"}); err != nil {
		t.Errorf("UpdateTags after extraction: %v", err)
	}
}

func TestExtractWindow_SessionAndValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, qaindex.Options{})
	ctx := context.Background()
	h.ask(t, "a", "one", at(1))
	h.ask(t, "b", "two", at(2))

	x, err := h.store.ExtractWindow(ctx, qaindex.Window{SessionID: "b", Since: at(0)})
	if err != nil {
		t.Fatal(err)
	}
	if len(x.Records) != 1 || x.Records[0].SessionID != "b" {
		t.Errorf("records = %+v", x.Records)
	}
	if !x.Window.Until.Equal(at(1000)) {
		t.Errorf("open until = %v, want clock time", x.Window.Until)
	}

	if _, err := h.store.ExtractWindow(ctx, qaindex.Window{Since: at(5), Until: at(5)}); !errors.Is(err, qaindex.ErrValidation) {
		t.Errorf("empty window: err = %v, want ErrValidation", err)
	}
	if _, err := h.store.ExtractWindow(ctx, qaindex.Window{SessionID: "zz", Since: at(0)}); !errors.Is(err, qaindex.ErrNotFound) {
		t.Errorf("unknown session: err = %v, want ErrNotFound", err)
	}
}

func TestHourWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 30, 15, 0, 0, 0, time.UTC)
	w := qaindex.HourWindow("s", 2, now)
	if !w.Since.Equal(now.Add(-2*time.Hour)) || !w.Until.Equal(now) || w.SessionID != "s" {
		t.Errorf("HourWindow = %+v", w)
	}
}
