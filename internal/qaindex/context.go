package qaindex

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultContextHeading titles the rendered context block.
const DefaultContextHeading = "## Recent Conversation Context"

// ContextItem is one entry of the context window. Answer is empty when no
// answer text is stored.
type ContextItem struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer,omitempty"`
	HasAnswer bool      `json:"has_answer"`
}

// ContextWindow returns the last window entries of a session as context
// items. Every question is included; answers only where text is stored.
func (s *Store) ContextWindow(ctx context.Context, sessionID string, window int) ([]ContextItem, error) {
	records, err := s.Recent(ctx, sessionID, window)
	if err != nil {
		return nil, err
	}
	items := make([]ContextItem, 0, len(records))
	for _, r := range records {
		items = append(items, ContextItem{
			Seq:       r.Seq,
			Timestamp: r.Timestamp,
			Question:  r.Q,
			Answer:    r.Answer(),
			HasAnswer: r.HasAnswer(),
		})
	}
	return items, nil
}

// TrimToBudget drops the oldest items until the estimated token count of
// the rest fits maxTokens. A maxTokens <= 0 keeps everything.
func TrimToBudget(items []ContextItem, maxTokens int, estimate func(string) int) []ContextItem {
	if maxTokens <= 0 || estimate == nil {
		return items
	}
	used := 0
	start := len(items)
	for i := len(items) - 1; i >= 0; i-- {
		cost := estimate(items[i].Question) + estimate(items[i].Answer)
		if used+cost > maxTokens {
			break
		}
		used += cost
		start = i
	}
	return items[start:]
}

// FormatOptions controls FormatContext.
type FormatOptions struct {
	// Heading replaces DefaultContextHeading.
	Heading string

	// MaxAnswerChars truncates displayed answers to that many runes and
	// appends "...". 0 disables truncation.
	MaxAnswerChars int
}

// FormatContext renders context items as a markdown block. Returns an empty
// string if there are no items.
func FormatContext(items []ContextItem, opts FormatOptions) string {
	if len(items) == 0 {
		return ""
	}
	heading := opts.Heading
	if heading == "" {
		heading = DefaultContextHeading
	}

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n\n")
	for _, it := range items {
		fmt.Fprintf(&b, "**[%d]** %s\n", it.Seq, it.Question)
		if it.HasAnswer {
			b.WriteString("> ")
			answer := truncateRunes(it.Answer, opts.MaxAnswerChars)
			b.WriteString(strings.ReplaceAll(answer, "\n", "\n> "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
