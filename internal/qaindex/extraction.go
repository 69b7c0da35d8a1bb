package qaindex

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Window selects entries with since <= timestamp < until, optionally
// restricted to one session.
type Window struct {
	SessionID string    `json:"session_id,omitempty"`
	Since     time.Time `json:"since"`
	Until     time.Time `json:"until"`
}

// HourWindow returns the window covering the last hours hours before now.
func HourWindow(sessionID string, hours int, now time.Time) Window {
	now = now.UTC()
	return Window{
		SessionID: sessionID,
		Since:     now.Add(-time.Duration(hours) * time.Hour),
		Until:     now,
	}
}

// Extraction is a read-only copy of the entries of a window.
type Extraction struct {
	Window  Window    `json:"window"`
	Records []Record  `json:"records"`
	TakenAt time.Time `json:"taken_at"`
}

// Questions returns every extracted record.
func (x Extraction) Questions() []Record {
	return x.Records
}

// Answers returns the records with stored answer text.
func (x Extraction) Answers() []Record {
	var out []Record
	for _, r := range x.Records {
		if r.HasAnswer() {
			out = append(out, r)
		}
	}
	return out
}

// ExtractWindow hands the entries of a window to an external consumer.
// Entries seen for the first time get extracted_at set in the same commit;
// from then on their answer can no longer be re-recorded. Calling it again
// over the same window returns the same records and writes nothing.
func (s *Store) ExtractWindow(ctx context.Context, w Window) (Extraction, error) {
	if w.SessionID != "" {
		if err := ValidateSessionID(w.SessionID); err != nil {
			return Extraction{}, err
		}
	}
	if w.Until.IsZero() {
		w.Until = s.now()
	}
	w.Since = w.Since.UTC()
	w.Until = w.Until.UTC()
	if !w.Since.Before(w.Until) {
		return Extraction{}, invalid("window", "since must be before until")
	}

	attrs := []attribute.KeyValue{
		attribute.String("session_id", w.SessionID),
		attribute.String("since", w.Since.Format(time.RFC3339)),
		attribute.String("until", w.Until.Format(time.RFC3339)),
	}

	out := Extraction{Window: w, Records: []Record{}}
	err := s.update(ctx, OpExtract, attrs, func(doc *Document, tx *txn) error {
		if w.SessionID != "" && doc.Session(w.SessionID) == nil {
			return sessionNotFound(w.SessionID)
		}

		marked := 0
		for _, p := range replayOrder(doc) {
			if w.SessionID != "" && p.session != w.SessionID {
				continue
			}
			if p.entry.Timestamp.Before(w.Since) || !p.entry.Timestamp.Before(w.Until) {
				continue
			}
			if p.entry.ExtractedAt == nil {
				at := tx.now
				p.entry.ExtractedAt = &at
				marked++
			}
			out.Records = append(out.Records, record(p.session, p.entry))
		}

		out.TakenAt = tx.now
		if marked == 0 {
			tx.noop = true
			return nil
		}
		tx.event(OpExtract, w.SessionID, 0)
		return nil
	})
	return out, err
}
