package qaindex

import "time"

// Recompute replaces the document metadata with a fresh computation from
// the sessions, stamped with now.
func Recompute(doc *Document, now time.Time) {
	m := computeMetadata(doc)
	m.LastUpdated = now.UTC()
	doc.Metadata = m
}

func computeMetadata(doc *Document) Metadata {
	var (
		m      Metadata
		sum    float64
		topics = make(map[string]struct{})
	)
	m.Sessions = len(doc.Sessions)
	for _, s := range doc.Sessions {
		m.TotalQAPairs += len(s.QASequence)
		for _, e := range s.QASequence {
			if e.HasAnswer() {
				m.StoredAnswers++
				sum += e.ASignificance
			}
			for _, t := range e.TopicTags {
				topics[t] = struct{}{}
			}
		}
	}
	m.Topics = len(topics)
	if m.StoredAnswers > 0 {
		m.AvgSignificance = sum / float64(m.StoredAnswers)
	}
	if m.TotalQAPairs > 0 {
		m.CompressionRatio = float64(m.StoredAnswers) / float64(m.TotalQAPairs)
	}
	return m
}
