package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/qaindex/internal/qaindex"
)

// Snapshots stores each committed document as a new row and prunes all
// but the newest Keep rows in the same transaction.
type Snapshots struct {
	db   *sql.DB
	path string
	keep int
}

// Compile-time interface guards.
var (
	_ qaindex.SnapshotStore = (*Snapshots)(nil)
	_ qaindex.Locator       = (*Snapshots)(nil)
)

// Generation describes one retained snapshot.
type Generation struct {
	ID        int64     `json:"generation"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Read returns the newest snapshot.
func (s *Snapshots) Read(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM snapshots ORDER BY generation DESC LIMIT 1",
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, qaindex.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read snapshot: %w", err)
	}
	return data, nil
}

// Write inserts a new generation and prunes old ones atomically.
func (s *Snapshots) Write(ctx context.Context, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (document, size) VALUES (?, ?)",
		data, len(data),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert snapshot: %w", err)
	}
	gen, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: snapshot generation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM snapshots WHERE generation <= ?",
		gen-int64(s.keep),
	); err != nil {
		return fmt.Errorf("sqlite: prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit snapshot: %w", err)
	}
	return nil
}

// Generations lists the retained snapshots, newest first.
func (s *Snapshots) Generations(ctx context.Context) ([]Generation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT generation, size, created_at FROM snapshots ORDER BY generation DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Generation
	for rows.Next() {
		var (
			g       Generation
			created string
		)
		if err := rows.Scan(&g.ID, &g.Size, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan generation: %w", err)
		}
		if g.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("sqlite: generation %d created_at: %w", g.ID, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ReadGeneration returns the document of one retained generation.
func (s *Snapshots) ReadGeneration(ctx context.Context, id int64) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM snapshots WHERE generation = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: generation %d: %w", id, qaindex.ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read generation %d: %w", id, err)
	}
	return data, nil
}

// Location implements qaindex.Locator.
func (s *Snapshots) Location() string {
	return s.path
}

// Ping checks the database connection.
func (s *Snapshots) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Snapshots) Close() error {
	return s.db.Close()
}
