// Package qaindex stores a conversational assistant's question/answer
// history as an append-only log per session with three derived indices
// (topic, recency, question hash) and a significance-gated retention rule
// for answers.
//
// The whole state is one Document. Every mutation loads the last committed
// snapshot, applies the change together with all index and metadata updates,
// and atomically replaces the snapshot through a SnapshotStore.
package qaindex

import (
	"slices"
	"time"
)

const (
	// SchemaVersion is the document version written by this package.
	SchemaVersion = 2

	// Structure tags every document produced by this package.
	Structure = "qa-sequence-indexed"

	// RetentionThreshold gates answer text: an answer is persisted only when
	// its significance is strictly above this value.
	RetentionThreshold = 0.6

	// DefaultWindow is the number of entries returned by Recent and
	// ContextWindow when the caller passes 0. Negative windows are invalid.
	DefaultWindow = 5

	// UnknownAuthor is stored when a question has no author.
	UnknownAuthor = "unknown"
)

// Ref points at one entry.
type Ref struct {
	Session string `json:"session"`
	Seq     int    `json:"seq"`
}

// RecencyRef is a Ref with the entry timestamp, as kept in by_recency.
type RecencyRef struct {
	Session   string    `json:"session"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// Ref drops the timestamp.
func (r RecencyRef) Ref() Ref {
	return Ref{Session: r.Session, Seq: r.Seq}
}

// Entry is one question and its optional answer.
type Entry struct {
	Seq           int        `json:"seq"`
	Timestamp     time.Time  `json:"timestamp"`
	User          string     `json:"user"`
	Q             string     `json:"q"`
	QTokens       []string   `json:"q_tokens"`
	QHash         string     `json:"q_hash"`
	A             *string    `json:"a"`
	ASignificance float64    `json:"a_significance"`
	ATokens       int        `json:"a_tokens"`
	TopicTags     []string   `json:"topic_tags"`
	AnsweredAt    *time.Time `json:"answered_at,omitempty"`
	ExtractedAt   *time.Time `json:"extracted_at,omitempty"`

	// Ordinal is the entry's position in the store-wide append order.
	// Timestamps only order entries within a session; the hash index
	// resolves to the highest ordinal.
	Ordinal int64 `json:"ordinal,omitempty"`
}

// HasAnswer reports whether answer text is stored.
func (e Entry) HasAnswer() bool {
	return e.A != nil
}

// Answered reports whether an answer was ever recorded, including one
// that retention discarded.
func (e Entry) Answered() bool {
	return e.AnsweredAt != nil
}

// Answer returns the stored answer text or "".
func (e Entry) Answer() string {
	if e.A == nil {
		return ""
	}
	return *e.A
}

// HasTag reports whether the entry carries the topic.
func (e Entry) HasTag(topic string) bool {
	return slices.Contains(e.TopicTags, topic)
}

func cloneEntry(e *Entry) Entry {
	c := *e
	c.QTokens = append([]string(nil), e.QTokens...)
	c.TopicTags = append([]string(nil), e.TopicTags...)
	if e.A != nil {
		a := *e.A
		c.A = &a
	}
	if e.AnsweredAt != nil {
		t := *e.AnsweredAt
		c.AnsweredAt = &t
	}
	if e.ExtractedAt != nil {
		t := *e.ExtractedAt
		c.ExtractedAt = &t
	}
	return c
}

// Session is one conversation.
type Session struct {
	SessionID   string    `json:"session_id"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
	QASequence  []*Entry  `json:"qa_sequence"`
}

// Entry returns the entry with the given seq, or nil.
func (s *Session) Entry(seq int) *Entry {
	if seq < 1 || seq > len(s.QASequence) {
		return nil
	}
	return s.QASequence[seq-1]
}

// LastSeq is the seq of the newest entry, 0 when empty.
func (s *Session) LastSeq() int {
	return len(s.QASequence)
}

// Index holds the derived lookup structures.
type Index struct {
	ByTopic        map[string][]Ref `json:"by_topic"`
	ByRecency      []RecencyRef     `json:"by_recency"`
	BySemanticHash map[string]Ref   `json:"by_semantic_hash"`
}

// Metadata is recomputed from the sessions on every commit.
type Metadata struct {
	TotalQAPairs     int       `json:"total_qa_pairs"`
	StoredAnswers    int       `json:"stored_answers"`
	AvgSignificance  float64   `json:"avg_significance"`
	CompressionRatio float64   `json:"compression_ratio"`
	Sessions         int       `json:"sessions"`
	Topics           int       `json:"topics"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Document is the complete persisted state.
type Document struct {
	Version   int        `json:"version"`
	Structure string     `json:"structure"`
	Appended  int64      `json:"appended"` // highest ordinal handed out
	Sessions  []*Session `json:"sessions"`
	Index     Index      `json:"index"`
	Metadata  Metadata   `json:"metadata"`

	sessionPos map[string]int
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Version:   SchemaVersion,
		Structure: Structure,
		Sessions:  []*Session{},
		Index: Index{
			ByTopic:        map[string][]Ref{},
			ByRecency:      []RecencyRef{},
			BySemanticHash: map[string]Ref{},
		},
	}
}

// Session returns the session with the given id, or nil.
func (d *Document) Session(id string) *Session {
	if d.sessionPos == nil {
		d.reindexSessions()
	}
	i, ok := d.sessionPos[id]
	if !ok {
		return nil
	}
	return d.Sessions[i]
}

// Lookup resolves a reference, or returns nil.
func (d *Document) Lookup(ref Ref) *Entry {
	s := d.Session(ref.Session)
	if s == nil {
		return nil
	}
	return s.Entry(ref.Seq)
}

func (d *Document) addSession(s *Session) {
	if d.sessionPos == nil {
		d.reindexSessions()
	}
	d.sessionPos[s.SessionID] = len(d.Sessions)
	d.Sessions = append(d.Sessions, s)
}

func (d *Document) removeSession(id string) *Session {
	s := d.Session(id)
	if s == nil {
		return nil
	}
	i := d.sessionPos[id]
	d.Sessions = append(d.Sessions[:i], d.Sessions[i+1:]...)
	d.reindexSessions()
	return s
}

func (d *Document) reindexSessions() {
	d.sessionPos = make(map[string]int, len(d.Sessions))
	for i, s := range d.Sessions {
		d.sessionPos[s.SessionID] = i
	}
}

// Record is an entry together with its session id.
type Record struct {
	SessionID string `json:"session_id"`
	Entry
}

// Ref returns the record's reference.
func (r Record) Ref() Ref {
	return Ref{Session: r.SessionID, Seq: r.Seq}
}

func record(sessionID string, e *Entry) Record {
	return Record{SessionID: sessionID, Entry: cloneEntry(e)}
}

// Match is a record with its token-overlap score.
type Match struct {
	Record
	Score float64 `json:"score"`
}

// TopicSummary is one topic with its entry count.
type TopicSummary struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// SessionSummary describes a session without its entries.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	Created       time.Time `json:"created"`
	LastUpdated   time.Time `json:"last_updated"`
	Entries       int       `json:"entries"`
	StoredAnswers int       `json:"stored_answers"`
}

// Stats is the metadata plus per-session counts.
type Stats struct {
	Metadata
	PerSession []SessionSummary `json:"per_session"`
}
