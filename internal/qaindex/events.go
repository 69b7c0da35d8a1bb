package qaindex

import (
	"sync"
	"time"
)

// WarningKind classifies a non-fatal condition.
type WarningKind string

const (
	// WarningHashCollision: an appended question reused a hash already
	// indexed for another entry; the new entry wins.
	WarningHashCollision WarningKind = "hash_collision"

	// WarningIndexRebuilt: a loaded snapshot had indices that disagreed
	// with its log and they were rebuilt in memory.
	WarningIndexRebuilt WarningKind = "index_rebuilt"
)

// Warning is reported through Options.OnWarning after a successful commit
// (collisions) or a load (rebuilds).
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Message  string      `json:"message"`
	Hash     string      `json:"hash,omitempty"`
	Previous *Ref        `json:"previous,omitempty"`
	Current  Ref         `json:"current"`
}

// Op names a committed mutation.
type Op string

const (
	OpAppendQuestion     Op = "append_question"
	OpRecordAnswer       Op = "record_answer"
	OpUpdateSignificance Op = "update_significance"
	OpUpdateTags         Op = "update_tags"
	OpArchive            Op = "archive"
	OpLogExchange        Op = "log_exchange"
	OpExtract            Op = "extract"
	OpReindex            Op = "reindex"
)

// Event describes one committed mutation.
type Event struct {
	Op        Op        `json:"op"`
	SessionID string    `json:"session_id,omitempty"`
	Seq       int       `json:"seq,omitempty"`
	At        time.Time `json:"at"`
}

// broker fans committed events out to subscribers. Handlers run
// synchronously on the committing goroutine and must not block.
type broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func (b *broker) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *broker) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(ev)
	}
}
