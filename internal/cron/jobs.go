package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/flemzord/qaindex/internal/extract"
	"github.com/flemzord/qaindex/internal/qaindex"
)

// Extractor is the subset of *qaindex.Store used by ExtractionJob.
type Extractor interface {
	ExtractWindow(ctx context.Context, w qaindex.Window) (qaindex.Extraction, error)
}

// Archiver is the subset of *qaindex.Store used by ArchiveIdleJob.
type Archiver interface {
	Sessions(ctx context.Context) ([]qaindex.SessionSummary, error)
	Session(ctx context.Context, id string) (qaindex.Session, error)
	Archive(ctx context.Context, id string) (qaindex.Session, error)
}

// Compile-time interface checks.
var (
	_ Extractor = (*qaindex.Store)(nil)
	_ Archiver  = (*qaindex.Store)(nil)
	_ Job       = (*ExtractionJob)(nil)
	_ Job       = (*ArchiveIdleJob)(nil)
)

// ExtractionJob extracts the last Hours hours of exchanges, analyses them
// and saves the extraction and report under OutputDir.
type ExtractionJob struct {
	Store        Extractor
	Hours        int    // 0 = 1
	SessionID    string // empty = every session
	OutputDir    string
	Logger       *slog.Logger
	Clock        func() time.Time
	ScheduleExpr string // empty = default "0 * * * *"
}

// Name implements Job.
func (j *ExtractionJob) Name() string {
	if j.SessionID != "" {
		return "qa_extraction:" + j.SessionID
	}
	return "qa_extraction"
}

// Schedule implements Job.
func (j *ExtractionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run extracts the window ending now. Empty windows write nothing.
func (j *ExtractionJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: extraction cancelled: %w", ctx.Err())
	}

	hours := j.Hours
	if hours <= 0 {
		hours = 1
	}
	x, err := j.Store.ExtractWindow(ctx, qaindex.HourWindow(j.SessionID, hours, now(j.Clock)))
	if err != nil {
		return fmt.Errorf("cron: extraction: %w", err)
	}
	if len(x.Records) == 0 {
		j.Logger.Debug("cron: extraction window empty", "session", j.SessionID, "hours", hours)
		return nil
	}

	report := extract.Analyze(x)
	dir, err := extract.Save(j.OutputDir, x, report)
	if err != nil {
		return fmt.Errorf("cron: extraction: %w", err)
	}

	j.Logger.Info("cron: extraction saved",
		"run", report.RunID,
		"dir", dir,
		"questions", report.TotalQuestions,
		"answers", report.TotalAnswers,
	)
	return nil
}

// ArchiveIdleJob archives sessions not updated for MaxIdle, writing each
// archived session as JSON into ArchiveDir before it leaves the store.
type ArchiveIdleJob struct {
	Store        Archiver
	MaxIdle      time.Duration
	ArchiveDir   string
	Logger       *slog.Logger
	Clock        func() time.Time
	ScheduleExpr string // empty = default "*/30 * * * *"
}

// Name implements Job.
func (j *ArchiveIdleJob) Name() string {
	return "session_archive"
}

// Schedule implements Job.
func (j *ArchiveIdleJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/30 * * * *"
}

// Run archives every idle session. A failure on one session does not stop
// the others; all failures are returned joined.
func (j *ArchiveIdleJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: archive cancelled: %w", ctx.Err())
	}
	if j.MaxIdle <= 0 {
		return errors.New("cron: archive: max idle must be positive")
	}

	sessions, err := j.Store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("cron: archive: list sessions: %w", err)
	}

	cutoff := now(j.Clock).Add(-j.MaxIdle)
	var (
		errs     []error
		archived int
	)
	for _, s := range sessions {
		if !s.LastUpdated.Before(cutoff) {
			continue
		}
		if err := j.archive(ctx, s.SessionID); err != nil {
			errs = append(errs, err)
			continue
		}
		archived++
	}

	if archived > 0 {
		j.Logger.Info("cron: archived idle sessions", "count", archived, "dir", j.ArchiveDir)
	}
	return errors.Join(errs...)
}

// archive writes the session to a fresh file before removing it so a
// failed write never loses data, then replaces that file with the session
// as removed.
func (j *ArchiveIdleJob) archive(ctx context.Context, id string) error {
	sess, err := j.Store.Session(ctx, id)
	if err != nil {
		return fmt.Errorf("cron: archive %s: %w", id, err)
	}
	path, err := freeArchivePath(j.ArchiveDir, id, now(j.Clock))
	if err != nil {
		return err
	}
	if err := writeSession(path, sess); err != nil {
		return err
	}

	removed, err := j.Store.Archive(ctx, id)
	if err != nil {
		return fmt.Errorf("cron: archive %s: %w", id, err)
	}
	return writeSession(path, removed)
}

// archiveStamp orders archive files of one session by archive time.
const archiveStamp = "20060102T150405.000000000Z"

// ArchivePath names the archive file of a session archived at the given
// time. The id is query-escaped, so distinct ids never share a file name
// and ArchivedSessionID recovers the id.
func ArchivePath(dir, sessionID string, archivedAt time.Time) string {
	return filepath.Join(dir, url.QueryEscape(sessionID)+"."+archivedAt.UTC().Format(archiveStamp)+".json")
}

// ArchivedSessionID returns the session id encoded in an archive file name.
func ArchivedSessionID(path string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	// Drop the generation suffix added on a name clash.
	if i := strings.LastIndexByte(name, '-'); i > 0 && strings.IndexByte(name[i:], '.') < 0 {
		name = name[:i]
	}
	if len(name) <= len(archiveStamp)+1 {
		return "", fmt.Errorf("cron: %s is not an archive file", path)
	}
	id, err := url.QueryUnescape(name[:len(name)-len(archiveStamp)-1])
	if err != nil {
		return "", fmt.Errorf("cron: %s is not an archive file: %w", path, err)
	}
	return id, nil
}

// freeArchivePath returns ArchivePath, or the first "-N" variant of it
// that does not exist yet. Existing archive files are never overwritten.
func freeArchivePath(dir, sessionID string, archivedAt time.Time) (string, error) {
	base := ArchivePath(dir, sessionID, archivedAt)
	path := base
	for n := 1; ; n++ {
		_, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("cron: archive %s: %w", sessionID, err)
		}
		path = strings.TrimSuffix(base, ".json") + "-" + strconv.Itoa(n) + ".json"
	}
}

func writeSession(path string, s qaindex.Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cron: archive directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("cron: encode session %s: %w", s.SessionID, err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("cron: write %s: %w", path, err)
	}
	return nil
}

func now(clock func() time.Time) time.Time {
	if clock != nil {
		return clock().UTC()
	}
	return time.Now().UTC()
}
