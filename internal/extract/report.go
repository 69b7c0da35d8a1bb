// Package extract analyses extraction windows of the QA index into
// reports and keeps them on disk, one directory per run.
package extract

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/qaindex/internal/qaindex"
)

// Significance bands used by Analyze.
const (
	HighSignificance = 0.85
	LowSignificance  = 0.5
)

// previewRunes bounds question previews in reports.
const previewRunes = 80

// AnswerNote points at one answer in a report.
type AnswerNote struct {
	SessionID    string  `json:"session_id"`
	Seq          int     `json:"seq"`
	QPreview     string  `json:"q_preview"`
	Significance float64 `json:"significance"`
	Tokens       int     `json:"tokens"`
	Stored       bool    `json:"stored"`
}

// Report summarizes one extraction window.
type Report struct {
	RunID           string         `json:"run_id"`
	Window          qaindex.Window `json:"period"`
	CreatedAt       time.Time      `json:"created_at"`
	TotalQuestions  int            `json:"total_questions"`
	TotalAnswers    int            `json:"total_answers"`
	StoredAnswers   int            `json:"stored_answers"`
	AvgSignificance float64        `json:"avg_significance"`
	Topics          map[string]int `json:"topics"`
	High            []AnswerNote   `json:"high_significance_answers"`
	Low             []AnswerNote   `json:"low_significance_answers"`
	Missing         []qaindex.Ref  `json:"missing_answers"`
	Patterns        []string       `json:"patterns"`
}

// Analyze builds a report for an extraction. Answers discarded by
// retention still count as answered; their retained score is used.
func Analyze(x qaindex.Extraction) Report {
	r := Report{
		RunID:          uuid.NewString(),
		Window:         x.Window,
		CreatedAt:      x.TakenAt,
		TotalQuestions: len(x.Records),
		Topics:         map[string]int{},
		High:           []AnswerNote{},
		Low:            []AnswerNote{},
		Missing:        []qaindex.Ref{},
		Patterns:       []string{},
	}

	var sum float64
	for _, rec := range x.Records {
		for _, tag := range rec.TopicTags {
			r.Topics[tag]++
		}
		if !rec.Answered() {
			r.Missing = append(r.Missing, rec.Ref())
			continue
		}

		r.TotalAnswers++
		sum += rec.ASignificance
		if rec.HasAnswer() {
			r.StoredAnswers++
		}

		note := AnswerNote{
			SessionID:    rec.SessionID,
			Seq:          rec.Seq,
			QPreview:     preview(rec.Q, previewRunes),
			Significance: rec.ASignificance,
			Tokens:       rec.ATokens,
			Stored:       rec.HasAnswer(),
		}
		switch {
		case rec.ASignificance >= HighSignificance:
			r.High = append(r.High, note)
		case rec.ASignificance < LowSignificance:
			r.Low = append(r.Low, note)
		}
	}
	if r.TotalAnswers > 0 {
		r.AvgSignificance = sum / float64(r.TotalAnswers)
	}

	bySignificance := func(a, b AnswerNote) int {
		return cmp.Compare(b.Significance, a.Significance)
	}
	slices.SortStableFunc(r.High, bySignificance)
	slices.SortStableFunc(r.Low, func(a, b AnswerNote) int { return bySignificance(b, a) })

	if r.TotalAnswers > 5 {
		switch {
		case r.AvgSignificance > 0.8:
			r.Patterns = append(r.Patterns, "High quality conversation period")
		case r.AvgSignificance < 0.5:
			r.Patterns = append(r.Patterns, "Low quality or off-topic conversation")
		}
	}
	if top := TopTopics(r.Topics, 1); len(top) == 1 {
		r.Patterns = append(r.Patterns, fmt.Sprintf("Focus topic: %s", top[0].Topic))
	}
	if n := len(r.Missing); n > 0 && n*2 > r.TotalQuestions {
		r.Patterns = append(r.Patterns, fmt.Sprintf("Most questions unanswered (%d of %d)", n, r.TotalQuestions))
	}
	return r
}

// TopTopics returns up to n topics by count, ties broken by name.
func TopTopics(topics map[string]int, n int) []qaindex.TopicSummary {
	out := make([]qaindex.TopicSummary, 0, len(topics))
	for t, c := range topics {
		out = append(out, qaindex.TopicSummary{Topic: t, Count: c})
	}
	slices.SortFunc(out, func(a, b qaindex.TopicSummary) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
