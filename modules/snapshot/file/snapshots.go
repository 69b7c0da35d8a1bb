package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/flemzord/qaindex/internal/qaindex"
)

// Snapshots keeps the document in one JSON file. Writes go to a temporary
// file in the same directory which is synced and renamed over the target,
// so readers see either the old or the new document.
type Snapshots struct {
	path   string
	backup bool

	// mu orders writes from this process; rename keeps reads lock-free.
	mu sync.Mutex
}

// Compile-time interface guards.
var (
	_ qaindex.SnapshotStore = (*Snapshots)(nil)
	_ qaindex.Locator       = (*Snapshots)(nil)
)

// New returns a file snapshot store for path. The directory is created on
// first write.
func New(path string, backup bool) *Snapshots {
	return &Snapshots{path: path, backup: backup}
}

// Read returns the file contents.
func (s *Snapshots) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, qaindex.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", s.path, err)
	}
	return data, nil
}

// Write atomically replaces the file.
func (s *Snapshots) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("file: create directory %s: %w", dir, err)
	}

	if s.backup {
		prev, err := os.ReadFile(s.path)
		switch {
		case err == nil:
			if err := writeAtomic(s.BackupPath(), prev); err != nil {
				return fmt.Errorf("file: backup: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("file: read for backup %s: %w", s.path, err)
		}
	}

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("file: %w", err)
	}
	return nil
}

// BackupPath is where the previous snapshot is kept when backups are on.
func (s *Snapshots) BackupPath() string {
	return s.path + ".bak"
}

// Location implements qaindex.Locator.
func (s *Snapshots) Location() string {
	return s.path
}

// writeAtomic replaces path with data through a synced temp file in the
// same directory, then syncs the directory so the rename is durable.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := renameio.WriteFile(path, data, 0o600, renameio.WithTempDir(dir)); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s: %w", dir, err)
	}
	defer func() { _ = d.Close() }()
	// Some filesystems reject fsync on directories; the rename is done.
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}
