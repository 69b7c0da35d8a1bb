package extract_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/qaindex/internal/extract"
	"github.com/flemzord/qaindex/internal/qaindex"
)

var t0 = time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC)

func rec(session string, seq int, q string, score float64, stored bool, tags ...string) qaindex.Record {
	e := qaindex.Entry{
		Seq:       seq,
		Timestamp: t0.Add(time.Duration(seq) * time.Minute),
		User:      "alice",
		Q:         q,
		TopicTags: tags,
	}
	if score >= 0 {
		at := e.Timestamp
		e.AnsweredAt = &at
		e.ASignificance = score
		if stored {
			a := "answer to " + q
			e.A = &a
			e.ATokens = 3
		}
	}
	return qaindex.Record{SessionID: session, Entry: e}
}

func extraction(records ...qaindex.Record) qaindex.Extraction {
	return qaindex.Extraction{
		Window:  qaindex.Window{Since: t0, Until: t0.Add(time.Hour)},
		Records: records,
		TakenAt: t0.Add(time.Hour),
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	r := extract.Analyze(extraction(
		rec("s1", 1, "How do I index topics?", 0.9, true, "index"),
		rec("s1", 2, "Why is the cache cold?", 0.4, false, "cache", "index"),
		rec("s1", 3, "What about hashes?", -1, false),
		rec("s2", 1, "Explain retention", 0.7, true, "index"),
	))

	if r.RunID == "" {
		t.Error("RunID is empty")
	}
	if r.TotalQuestions != 4 || r.TotalAnswers != 3 || r.StoredAnswers != 2 {
		t.Errorf("counts = %d/%d/%d, want 4/3/2", r.TotalQuestions, r.TotalAnswers, r.StoredAnswers)
	}
	if r.Topics["index"] != 3 || r.Topics["cache"] != 1 {
		t.Errorf("Topics = %v", r.Topics)
	}
	if len(r.High) != 1 || r.High[0].Seq != 1 || r.High[0].SessionID != "s1" {
		t.Errorf("High = %+v", r.High)
	}
	if len(r.Low) != 1 || r.Low[0].Seq != 2 || r.Low[0].Stored {
		t.Errorf("Low = %+v", r.Low)
	}
	if len(r.Missing) != 1 || r.Missing[0] != (qaindex.Ref{Session: "s1", Seq: 3}) {
		t.Errorf("Missing = %+v", r.Missing)
	}
	want := (0.9 + 0.4 + 0.7) / 3
	if diff := r.AvgSignificance - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AvgSignificance = %v, want %v", r.AvgSignificance, want)
	}
	if len(r.Patterns) != 1 || r.Patterns[0] != "Focus topic: index" {
		t.Errorf("Patterns = %v", r.Patterns)
	}
}

func TestAnalyze_QualityPatterns(t *testing.T) {
	t.Parallel()

	var good, poor []qaindex.Record
	for i := 1; i <= 6; i++ {
		good = append(good, rec("s", i, "q", 0.95, true))
		poor = append(poor, rec("s", i, "q", 0.1, false))
	}

	if r := extract.Analyze(extraction(good...)); !contains(r.Patterns, "High quality conversation period") {
		t.Errorf("good patterns = %v", r.Patterns)
	}
	if r := extract.Analyze(extraction(poor...)); !contains(r.Patterns, "Low quality or off-topic conversation") {
		t.Errorf("poor patterns = %v", r.Patterns)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	t.Parallel()

	r := extract.Analyze(extraction())
	if r.TotalQuestions != 0 || r.AvgSignificance != 0 || len(r.Patterns) != 0 {
		t.Errorf("Analyze(empty) = %+v", r)
	}
	if r.High == nil || r.Missing == nil {
		t.Error("empty lists must encode as [] not null")
	}
}

func TestTopTopics(t *testing.T) {
	t.Parallel()

	got := extract.TopTopics(map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("TopTopics() = %v", got)
	}
	for i, w := range want {
		if got[i].Topic != w {
			t.Errorf("TopTopics()[%d] = %q, want %q", i, got[i].Topic, w)
		}
	}
}

func TestSaveAndLatestReport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if _, err := extract.LatestReport(dir); !errors.Is(err, extract.ErrNoReport) {
		t.Fatalf("LatestReport(empty) error = %v, want ErrNoReport", err)
	}

	x1 := extraction(rec("s1", 1, "first", 0.9, true))
	r1 := extract.Analyze(x1)
	if _, err := extract.Save(dir, x1, r1); err != nil {
		t.Fatalf("Save: %v", err)
	}

	x2 := extraction(rec("s1", 2, "second", 0.9, true))
	x2.TakenAt = x1.TakenAt.Add(time.Hour)
	r2 := extract.Analyze(x2)
	runDir, err := extract.Save(dir, x2, r2)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(runDir, extract.ExtractionFile)); err != nil {
		t.Errorf("extraction file missing: %v", err)
	}

	// A run directory without a report is ignored.
	if err := os.Mkdir(filepath.Join(dir, "partial"), 0o700); err != nil {
		t.Fatal(err)
	}

	latest, err := extract.LatestReport(dir)
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if latest.RunID != r2.RunID {
		t.Errorf("LatestReport().RunID = %q, want %q", latest.RunID, r2.RunID)
	}
	if !latest.CreatedAt.Equal(x2.TakenAt) {
		t.Errorf("CreatedAt = %v, want %v", latest.CreatedAt, x2.TakenAt)
	}
}

func TestFormatAnalysis(t *testing.T) {
	t.Parallel()

	r := extract.Analyze(extraction(
		rec("s1", 1, "How do I index topics?", 0.9, true, "index"),
		rec("s1", 2, "Cache?", -1, false, "cache"),
	))
	out := extract.FormatAnalysis(r)

	for _, want := range []string{
		extract.AnalysisHeading,
		"- Questions: 2",
		"- Answers: 1",
		"- index: 1x",
		"- [1] How do I index topics? (sig: 0.90)",
		"Focus topic: cache",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatAnalysis() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatReport(t *testing.T) {
	t.Parallel()

	r := extract.Analyze(extraction(
		rec("s1", 1, "How do I index topics?", 0.9, true, "index"),
		rec("s1", 2, "Cache?", -1, false),
	))
	out := extract.FormatReport(r)

	for _, want := range []string{
		"Run:     " + r.RunID,
		"Answers:   1 (1 stored)",
		"[s1#1] How do I index topics? (sig: 0.90)",
		"Questions without answers: 1",
		"[s1#2]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatReport() missing %q in:\n%s", want, out)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
