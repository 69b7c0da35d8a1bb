package extract

import (
	"fmt"
	"strings"
	"time"
)

// AnalysisHeading titles the block produced by FormatAnalysis.
const AnalysisHeading = "## Conversation Analysis (from last extraction)"

// FormatAnalysis renders the short markdown block appended to a context
// window: counts, the top three topics, the two best answers and the
// detected patterns.
func FormatAnalysis(r Report) string {
	var sb strings.Builder
	sb.WriteString(AnalysisHeading)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Period: %s\n", period(r))
	fmt.Fprintf(&sb, "- Questions: %d\n", r.TotalQuestions)
	fmt.Fprintf(&sb, "- Answers: %d\n", r.TotalAnswers)

	if top := TopTopics(r.Topics, 3); len(top) > 0 {
		sb.WriteString("\nMain topics:\n")
		for _, t := range top {
			fmt.Fprintf(&sb, "- %s: %dx\n", t.Topic, t.Count)
		}
	}
	if len(r.High) > 0 {
		sb.WriteString("\nKey answers:\n")
		for _, a := range r.High[:min(2, len(r.High))] {
			fmt.Fprintf(&sb, "- [%d] %s (sig: %.2f)\n", a.Seq, preview(a.QPreview, 60), a.Significance)
		}
	}
	if len(r.Patterns) > 0 {
		sb.WriteString("\nPatterns:\n")
		for _, p := range r.Patterns {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	return sb.String()
}

// FormatReport renders the full plain-text report printed by the CLI.
func FormatReport(r Report) string {
	var sb strings.Builder
	sb.WriteString("CONVERSATION ANALYSIS REPORT\n")
	sb.WriteString("============================\n\n")
	fmt.Fprintf(&sb, "Run:     %s\n", r.RunID)
	fmt.Fprintf(&sb, "Period:  %s\n", period(r))
	if r.Window.SessionID != "" {
		fmt.Fprintf(&sb, "Session: %s\n", r.Window.SessionID)
	}
	fmt.Fprintf(&sb, "\nQuestions: %d\nAnswers:   %d (%d stored)\nTopics:    %d\n",
		r.TotalQuestions, r.TotalAnswers, r.StoredAnswers, len(r.Topics))

	if len(r.High) > 0 {
		fmt.Fprintf(&sb, "\nHigh significance answers (>= %.2f):\n", HighSignificance)
		for _, a := range r.High[:min(5, len(r.High))] {
			fmt.Fprintf(&sb, "  [%s#%d] %s (sig: %.2f)\n", a.SessionID, a.Seq, preview(a.QPreview, 60), a.Significance)
		}
	}
	if len(r.Low) > 0 {
		fmt.Fprintf(&sb, "\nLow significance answers (< %.2f): %d\n", LowSignificance, len(r.Low))
	}
	if top := TopTopics(r.Topics, 5); len(top) > 0 {
		sb.WriteString("\nTopics discussed:\n")
		for _, t := range top {
			fmt.Fprintf(&sb, "  %s: %d question(s)\n", t.Topic, t.Count)
		}
	}
	if len(r.Missing) > 0 {
		fmt.Fprintf(&sb, "\nQuestions without answers: %d\n", len(r.Missing))
		for _, ref := range r.Missing[:min(3, len(r.Missing))] {
			fmt.Fprintf(&sb, "  [%s#%d]\n", ref.Session, ref.Seq)
		}
	}
	if len(r.Patterns) > 0 {
		sb.WriteString("\nPatterns:\n")
		for _, p := range r.Patterns {
			fmt.Fprintf(&sb, "  - %s\n", p)
		}
	}
	return sb.String()
}

func period(r Report) string {
	return r.Window.Since.UTC().Format(time.RFC3339) + " to " + r.Window.Until.UTC().Format(time.RFC3339)
}
