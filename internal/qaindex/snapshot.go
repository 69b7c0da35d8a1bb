package qaindex

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSnapshot is returned by SnapshotStore.Read when nothing was ever
// committed. The store then starts from an empty document.
var ErrNoSnapshot = errors.New("qaindex: no snapshot")

// SnapshotStore persists the encoded document as one unit.
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Read returns the last committed snapshot.
	Read(ctx context.Context) ([]byte, error)

	// Write atomically replaces the committed snapshot. On error the
	// previous snapshot must remain readable.
	Write(ctx context.Context, data []byte) error
}

// Locator is implemented by snapshot stores that can name where they keep
// the snapshot. The location appears in PersistenceError.
type Locator interface {
	Location() string
}

// MemorySnapshots keeps the snapshot in process memory.
type MemorySnapshots struct {
	mu     sync.RWMutex
	data   []byte
	writes int
}

// NewMemorySnapshots creates an empty in-memory snapshot store.
func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{}
}

// Compile-time interface check.
var _ SnapshotStore = (*MemorySnapshots)(nil)

// Read returns a copy of the last written snapshot.
func (m *MemorySnapshots) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), m.data...), nil
}

// Write replaces the snapshot with a copy of data.
func (m *MemorySnapshots) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

// Writes returns how many snapshots were written.
func (m *MemorySnapshots) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Location implements Locator.
func (m *MemorySnapshots) Location() string {
	return "memory"
}
