package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is used when NewWatcher is given no interval.
const DefaultPollInterval = 5 * time.Second

// Watcher reports when a configuration file's content changes. File
// system notifications on the parent directory trigger an early check;
// the poll interval is the fallback when notifications are unavailable.
// A stat change alone (touch, editor save of identical bytes) is not
// reported; a content change is reported even when the editor preserved
// the modification time.
type Watcher struct {
	path     string
	interval time.Duration
	changes  chan string
}

// NewWatcher returns a watcher for path. A non-positive interval means
// DefaultPollInterval.
func NewWatcher(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{path: path, interval: interval, changes: make(chan string, 1)}
}

// Changes delivers the watched path after each content change. Changes
// that arrive while one is pending are coalesced.
func (w *Watcher) Changes() <-chan string { return w.changes }

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if fw, err := fsnotify.NewWatcher(); err == nil {
		defer fw.Close()
		// Editors replace files by rename, so watch the directory.
		if fw.Add(filepath.Dir(w.path)) == nil {
			events, errs = fw.Events, fw.Errors
		}
	}

	// Bursts of events from a single save settle before the check.
	settle := min(w.interval, 100*time.Millisecond)
	debounce := time.NewTimer(settle)
	debounce.Stop()
	defer debounce.Stop()

	last := w.snapshot(fileState{})
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
			} else if filepath.Clean(ev.Name) == filepath.Clean(w.path) {
				debounce.Reset(settle)
			}
			continue
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
			continue
		case <-debounce.C:
		case <-ticker.C:
		}

		last = w.check(last)
	}
}

func (w *Watcher) check(last fileState) fileState {
	cur := w.snapshot(last)
	if cur.missing() {
		return last
	}
	if cur.contentChanged(last) {
		select {
		case w.changes <- w.path:
		default:
		}
	}
	return cur
}

// fileState is what the watcher remembers between polls. The digest is
// only recomputed when the stat fields move.
type fileState struct {
	modTime time.Time
	size    int64
	digest  [sha256.Size]byte
}

func (s fileState) missing() bool { return s.modTime.IsZero() }

func (s fileState) statChanged(prev fileState) bool {
	return !s.modTime.Equal(prev.modTime) || s.size != prev.size
}

func (s fileState) contentChanged(prev fileState) bool {
	return s.digest != prev.digest
}

func (w *Watcher) snapshot(prev fileState) fileState {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileState{}
	}
	cur := fileState{modTime: info.ModTime(), size: info.Size(), digest: prev.digest}
	if prev.missing() || cur.statChanged(prev) {
		data, err := os.ReadFile(w.path)
		if err != nil {
			return fileState{}
		}
		cur.digest = sha256.Sum256(data)
	}
	return cur
}
