package qaindex

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@/-]{0,127}$`)

// ValidateSessionID rejects empty or malformed session ids.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return &ValidationError{
			Field:     "session_id",
			Reason:    "must match " + sessionIDPattern.String(),
			SessionID: id,
		}
	}
	return nil
}

// AnswerInput is the answer recorded on an existing entry.
type AnswerInput struct {
	Answer    string
	TopicTags []string

	// Significance overrides the scorer when set. Retention still applies.
	Significance *float64
}

// ExchangeInput is a question and its answer logged together.
type ExchangeInput struct {
	SessionID    string
	Question     string
	Answer       string
	Author       string
	Timestamp    time.Time
	TopicTags    []string
	Significance *float64
}

// AppendQuestion adds a question to the session, creating the session on
// first use. A zero timestamp means now. Timestamps must not go backwards
// within a session.
func (s *Store) AppendQuestion(ctx context.Context, sessionID, question string, ts time.Time, author string) (Record, error) {
	if err := checkQuestion(sessionID, question); err != nil {
		return Record{}, err
	}

	var out Record
	err := s.update(ctx, OpAppendQuestion, sessionAttrs(sessionID, 0), func(doc *Document, tx *txn) error {
		sess, e, err := s.appendEntry(doc, tx, sessionID, question, ts, author)
		if err != nil {
			return err
		}
		tx.event(OpAppendQuestion, sess.SessionID, e.Seq)
		out = record(sess.SessionID, e)
		return nil
	})
	return out, err
}

// RecordAnswer sets the answer of an entry. Re-recording overwrites the
// answer, its score and its tags. The answer text is kept only when the
// significance is above RetentionThreshold; otherwise only the score is
// stored. An entry already handed to extraction with an answer cannot be
// answered again.
func (s *Store) RecordAnswer(ctx context.Context, sessionID string, seq int, in AnswerInput) (Record, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return Record{}, err
	}
	if seq < 1 {
		return Record{}, invalidEntry(sessionID, seq, "seq", "must be >= 1")
	}
	tags, err := checkAnswer(sessionID, seq, in.Answer, in.TopicTags, in.Significance)
	if err != nil {
		return Record{}, err
	}
	in.TopicTags = tags

	var out Record
	err = s.update(ctx, OpRecordAnswer, sessionAttrs(sessionID, seq), func(doc *Document, tx *txn) error {
		sess, e, err := lookupEntry(doc, sessionID, seq)
		if err != nil {
			return err
		}
		if err := s.applyAnswer(doc, tx, sess, e, in); err != nil {
			return err
		}
		tx.event(OpRecordAnswer, sessionID, seq)
		out = record(sessionID, e)
		return nil
	})
	return out, err
}

// LogExchange appends a question and records its answer in one commit.
func (s *Store) LogExchange(ctx context.Context, in ExchangeInput) (Record, error) {
	if err := checkQuestion(in.SessionID, in.Question); err != nil {
		return Record{}, err
	}
	tags, err := checkAnswer(in.SessionID, 0, in.Answer, in.TopicTags, in.Significance)
	if err != nil {
		return Record{}, err
	}

	var out Record
	err = s.update(ctx, OpLogExchange, sessionAttrs(in.SessionID, 0), func(doc *Document, tx *txn) error {
		sess, e, err := s.appendEntry(doc, tx, in.SessionID, in.Question, in.Timestamp, in.Author)
		if err != nil {
			return err
		}
		answer := AnswerInput{Answer: in.Answer, TopicTags: tags, Significance: in.Significance}
		if err := s.applyAnswer(doc, tx, sess, e, answer); err != nil {
			return err
		}
		tx.event(OpLogExchange, sess.SessionID, e.Seq)
		out = record(sess.SessionID, e)
		return nil
	})
	return out, err
}

// UpdateSignificance overrides the score of an answered entry. Retention is
// not re-evaluated: a discarded answer stays discarded.
func (s *Store) UpdateSignificance(ctx context.Context, sessionID string, seq int, value float64) (Record, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return Record{}, err
	}
	if seq < 1 {
		return Record{}, invalidEntry(sessionID, seq, "seq", "must be >= 1")
	}
	if !validSignificance(value) {
		return Record{}, invalidEntry(sessionID, seq, "significance", fmt.Sprintf("%v outside [0,1]", value))
	}

	var out Record
	err := s.update(ctx, OpUpdateSignificance, sessionAttrs(sessionID, seq), func(doc *Document, tx *txn) error {
		sess, e, err := lookupEntry(doc, sessionID, seq)
		if err != nil {
			return err
		}
		if !e.Answered() {
			return invalidEntry(sessionID, seq, "significance", "entry has no recorded answer")
		}
		e.ASignificance = value
		sess.LastUpdated = tx.now
		tx.event(OpUpdateSignificance, sessionID, seq)
		out = record(sessionID, e)
		return nil
	})
	return out, err
}

// UpdateTags replaces the topic tags of an entry. An empty list clears them.
func (s *Store) UpdateTags(ctx context.Context, sessionID string, seq int, tags []string) (Record, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return Record{}, err
	}
	if seq < 1 {
		return Record{}, invalidEntry(sessionID, seq, "seq", "must be >= 1")
	}
	clean, err := cleanTags(sessionID, seq, tags)
	if err != nil {
		return Record{}, err
	}

	var out Record
	err = s.update(ctx, OpUpdateTags, sessionAttrs(sessionID, seq), func(doc *Document, tx *txn) error {
		sess, e, err := lookupEntry(doc, sessionID, seq)
		if err != nil {
			return err
		}
		old := e.TopicTags
		e.TopicTags = clean
		indexTags(doc, Ref{Session: sessionID, Seq: seq}, old, clean)
		sess.LastUpdated = tx.now
		tx.event(OpUpdateTags, sessionID, seq)
		out = record(sessionID, e)
		return nil
	})
	return out, err
}

// Archive removes a session and all its index references and returns it
// for cold storage.
func (s *Store) Archive(ctx context.Context, sessionID string) (Session, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return Session{}, err
	}

	var out Session
	err := s.update(ctx, OpArchive, sessionAttrs(sessionID, 0), func(doc *Document, tx *txn) error {
		sess := doc.removeSession(sessionID)
		if sess == nil {
			return sessionNotFound(sessionID)
		}
		indexRemoveSession(doc, sessionID)
		tx.event(OpArchive, sessionID, 0)
		out = *sess
		return nil
	})
	return out, err
}

// Reindex rebuilds every index from the log and commits the result.
func (s *Store) Reindex(ctx context.Context) error {
	return s.update(ctx, OpReindex, nil, func(doc *Document, tx *txn) error {
		Rebuild(doc)
		tx.event(OpReindex, "", 0)
		return nil
	})
}

// Check verifies the committed snapshot as stored, without repairing it.
func (s *Store) Check(ctx context.Context) error {
	data, err := s.snapshots.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil
		}
		return &PersistenceError{Op: "read", Path: s.location, Err: err}
	}
	doc, _, err := s.decode(data, false)
	if err != nil {
		return &PersistenceError{Op: "decode", Path: s.location, Err: err}
	}
	return Verify(doc)
}

func (s *Store) appendEntry(doc *Document, tx *txn, sessionID, question string, ts time.Time, author string) (*Session, *Entry, error) {
	if ts.IsZero() {
		ts = tx.now
	}
	ts = ts.UTC()
	if author == "" {
		author = UnknownAuthor
	}

	sess := doc.Session(sessionID)
	if sess != nil && sess.LastSeq() > 0 {
		last := sess.Entry(sess.LastSeq())
		if ts.Before(last.Timestamp) {
			return nil, nil, &ValidationError{
				Field:     "timestamp",
				Reason:    fmt.Sprintf("%s is before the last entry at %s", ts.Format(time.RFC3339Nano), last.Timestamp.Format(time.RFC3339Nano)),
				SessionID: sessionID,
			}
		}
	}
	if sess == nil {
		sess = &Session{
			SessionID:  sessionID,
			Created:    ts,
			QASequence: []*Entry{},
		}
		doc.addSession(sess)
	}

	e := &Entry{
		Seq:       sess.LastSeq() + 1,
		Timestamp: ts,
		User:      author,
		Q:         question,
		QTokens:   nonNil(s.tokenize(question)),
		QHash:     s.hash(question),
		TopicTags: []string{},
	}
	doc.Appended++
	e.Ordinal = doc.Appended
	sess.QASequence = append(sess.QASequence, e)
	sess.LastUpdated = tx.now

	if w := indexAppend(doc, sessionID, e); w != nil {
		tx.warnings = append(tx.warnings, *w)
	}
	return sess, e, nil
}

func (s *Store) applyAnswer(doc *Document, tx *txn, sess *Session, e *Entry, in AnswerInput) error {
	if e.ExtractedAt != nil && e.Answered() {
		return invalidEntry(sess.SessionID, e.Seq, "answer", "entry was already extracted with its answer")
	}

	var score float64
	if in.Significance != nil {
		score = *in.Significance
	} else {
		score = s.scorer.Score(e.Q, in.Answer, in.TopicTags)
		if !validSignificance(score) {
			return fmt.Errorf("qaindex: scorer returned %v for %s#%d", score, sess.SessionID, e.Seq)
		}
	}

	old := e.TopicTags
	e.TopicTags = in.TopicTags
	indexTags(doc, Ref{Session: sess.SessionID, Seq: e.Seq}, old, in.TopicTags)

	if score > RetentionThreshold {
		a := in.Answer
		e.A = &a
		e.ATokens = s.count(a)
	} else {
		e.A = nil
		e.ATokens = 0
		tx.discarded++
	}
	e.ASignificance = score
	at := tx.now
	e.AnsweredAt = &at
	sess.LastUpdated = tx.now
	return nil
}

func lookupEntry(doc *Document, sessionID string, seq int) (*Session, *Entry, error) {
	sess := doc.Session(sessionID)
	if sess == nil {
		return nil, nil, sessionNotFound(sessionID)
	}
	e := sess.Entry(seq)
	if e == nil {
		return nil, nil, entryNotFound(sessionID, seq)
	}
	return sess, e, nil
}

func checkQuestion(sessionID, question string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if strings.TrimSpace(question) == "" {
		return &ValidationError{Field: "q", Reason: "question is empty", SessionID: sessionID}
	}
	return nil
}

func checkAnswer(sessionID string, seq int, answer string, tags []string, significance *float64) ([]string, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, invalidEntry(sessionID, seq, "a", "answer is empty")
	}
	if significance != nil && !validSignificance(*significance) {
		return nil, invalidEntry(sessionID, seq, "significance", fmt.Sprintf("%v outside [0,1]", *significance))
	}
	return cleanTags(sessionID, seq, tags)
}

// cleanTags trims tags and drops duplicates, keeping first occurrences.
func cleanTags(sessionID string, seq int, tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, invalidEntry(sessionID, seq, "topic_tags", "empty tag")
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func sessionAttrs(sessionID string, seq int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("session_id", sessionID)}
	if seq > 0 {
		attrs = append(attrs, attribute.Int("seq", seq))
	}
	return attrs
}
