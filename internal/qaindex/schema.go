package qaindex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema accepts version 1 documents written by the original
// scripts and the current version. Unknown properties are allowed.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "structure", "sessions"],
  "properties": {
    "version": {"type": "integer", "enum": [1, 2]},
    "structure": {"const": "qa-sequence-indexed"},
    "appended": {"type": "integer", "minimum": 0},
    "sessions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["session_id", "qa_sequence"],
        "properties": {
          "session_id": {"type": "string", "minLength": 1},
          "created": {"type": "string"},
          "last_updated": {"type": "string"},
          "qa_sequence": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["seq", "timestamp", "q"],
              "properties": {
                "seq": {"type": "integer", "minimum": 1},
                "timestamp": {"type": "string"},
                "user": {"type": "string"},
                "q": {"type": "string"},
                "q_tokens": {"type": "array", "items": {"type": "string"}},
                "q_hash": {"type": "string"},
                "a": {"type": ["string", "null"]},
                "a_significance": {"type": "number", "minimum": 0, "maximum": 1},
                "a_tokens": {"type": "integer", "minimum": 0},
                "topic_tags": {"type": "array", "items": {"type": "string"}},
                "answered_at": {"type": "string"},
                "extracted_at": {"type": "string"},
                "ordinal": {"type": "integer", "minimum": 1}
              }
            }
          }
        }
      }
    },
    "index": {
      "type": "object",
      "properties": {
        "by_topic": {"type": "object"},
        "by_recency": {"type": "array"},
        "by_semantic_hash": {"type": "object"}
      }
    },
    "metadata": {"type": "object"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	})
	return compiledSchema, schemaErr
}

// ValidateJSON checks raw snapshot bytes against the document schema.
func ValidateJSON(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("qaindex: compile schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("qaindex: validate schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	descs := result.Errors()
	msgs := make([]string, 0, min(len(descs), 3))
	for i, d := range descs {
		if i == 3 {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(descs)-3))
			break
		}
		msgs = append(msgs, d.String())
	}
	return fmt.Errorf("qaindex: schema: %s", strings.Join(msgs, "; "))
}

// Encode serializes a document as indented JSON without HTML escaping.
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("qaindex: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decode validates, upgrades and normalizes a snapshot. Missing optional
// fields take their defaults: user "unknown", topic_tags empty, q_tokens
// and q_hash recomputed, created/last_updated taken from the entries,
// ordinals assigned in timestamp order after the highest stored one.
// Indices are rebuilt when absent. With repair set, metadata is recomputed
// and indices that disagree with the log are rebuilt and reported as a
// warning; without it the stored indices and metadata are kept as found.
func (s *Store) decode(data []byte, repair bool) (*Document, []Warning, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("qaindex: decode: %w", err)
	}

	if doc.Version == 1 {
		upgradeV1(&doc)
	}
	if err := s.normalize(&doc); err != nil {
		return nil, nil, err
	}

	missing := doc.Index.ByTopic == nil || doc.Index.ByRecency == nil || doc.Index.BySemanticHash == nil
	if missing {
		Rebuild(&doc)
	}
	if !repair {
		return &doc, nil, nil
	}

	Recompute(&doc, doc.Metadata.LastUpdated)
	if missing {
		return &doc, nil, nil
	}
	if err := Verify(&doc); err != nil {
		Rebuild(&doc)
		return &doc, []Warning{{Kind: WarningIndexRebuilt, Message: err.Error()}}, nil
	}
	return &doc, nil, nil
}

// upgradeV1 marks entries from version 1 documents that carry an answer
// or a score as answered at their own timestamp. Version 1 hashed the raw
// question, so hashes are dropped and recomputed from the normalized text.
func upgradeV1(doc *Document) {
	for _, sess := range doc.Sessions {
		for _, e := range sess.QASequence {
			if e == nil {
				continue
			}
			e.QHash = ""
			if e.A != nil || e.ASignificance != 0 {
				ts := e.Timestamp
				e.AnsweredAt = &ts
			}
		}
	}
	doc.Version = SchemaVersion
}

func (s *Store) normalize(doc *Document) error {
	if doc.Sessions == nil {
		doc.Sessions = []*Session{}
	}

	var errs []error
	seen := make(map[string]struct{}, len(doc.Sessions))
	for _, sess := range doc.Sessions {
		if _, dup := seen[sess.SessionID]; dup {
			errs = append(errs, fmt.Errorf("session %q appears twice", sess.SessionID))
		}
		seen[sess.SessionID] = struct{}{}

		if sess.QASequence == nil {
			sess.QASequence = []*Entry{}
		}
		for i, e := range sess.QASequence {
			if e == nil {
				errs = append(errs, fmt.Errorf("session %q: null entry at position %d", sess.SessionID, i+1))
				continue
			}
			if e.Seq != i+1 {
				errs = append(errs, fmt.Errorf("session %q: position %d holds seq %d", sess.SessionID, i+1, e.Seq))
			}
			s.normalizeEntry(e)
		}

		if len(sess.QASequence) > 0 && sess.QASequence[0] != nil {
			if sess.Created.IsZero() {
				sess.Created = sess.QASequence[0].Timestamp
			}
			if last := sess.QASequence[len(sess.QASequence)-1]; last != nil && sess.LastUpdated.IsZero() {
				sess.LastUpdated = last.Timestamp
			}
		}
		if sess.LastUpdated.IsZero() {
			sess.LastUpdated = sess.Created
		}
		sess.Created = sess.Created.UTC()
		sess.LastUpdated = sess.LastUpdated.UTC()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("qaindex: decode: %w", err)
	}
	doc.reindexSessions()
	assignOrdinals(doc)
	return nil
}

func (s *Store) normalizeEntry(e *Entry) {
	e.Timestamp = e.Timestamp.UTC()
	if e.User == "" {
		e.User = UnknownAuthor
	}
	if e.QTokens == nil {
		e.QTokens = nonNil(s.tokenize(e.Q))
	}
	if e.QHash == "" {
		e.QHash = s.hash(e.Q)
	}
	if e.TopicTags == nil {
		e.TopicTags = []string{}
	}
	if e.A == nil {
		e.ATokens = 0
	}
	if e.AnsweredAt != nil {
		t := e.AnsweredAt.UTC()
		e.AnsweredAt = &t
	}
	if e.ExtractedAt != nil {
		t := e.ExtractedAt.UTC()
		e.ExtractedAt = &t
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
