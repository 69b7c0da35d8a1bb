package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/flemzord/qaindex/internal/qaindex"
)

// File names inside a run directory.
const (
	ReportFile     = "analysis.json"
	ExtractionFile = "extraction.json"
)

// ErrNoReport is returned by LatestReport when no run has been saved.
var ErrNoReport = errors.New("extract: no analysis report")

// Save writes the extraction and its report to <dir>/<run-id>/ and
// returns the run directory.
func Save(dir string, x qaindex.Extraction, r Report) (string, error) {
	if r.RunID == "" {
		return "", errors.New("extract: report has no run id")
	}
	runDir := filepath.Join(dir, r.RunID)
	if err := os.MkdirAll(runDir, 0o700); err != nil {
		return "", fmt.Errorf("extract: create run directory: %w", err)
	}
	if err := writeJSON(filepath.Join(runDir, ExtractionFile), x); err != nil {
		return "", err
	}
	// The report goes last so a run directory with a report is complete.
	if err := writeJSON(filepath.Join(runDir, ReportFile), r); err != nil {
		return "", err
	}
	return runDir, nil
}

// LoadReport reads the report of one run directory.
func LoadReport(runDir string) (Report, error) {
	var r Report
	data, err := os.ReadFile(filepath.Join(runDir, ReportFile))
	if err != nil {
		return r, fmt.Errorf("extract: read report: %w", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("extract: decode report %s: %w", runDir, err)
	}
	return r, nil
}

// LatestReport returns the most recently created report under dir.
// Run directories without a readable report are skipped.
func LatestReport(dir string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Report{}, ErrNoReport
	}
	if err != nil {
		return Report{}, fmt.Errorf("extract: list %s: %w", dir, err)
	}

	var (
		latest Report
		found  bool
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		r, err := LoadReport(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if !found || r.CreatedAt.After(latest.CreatedAt) {
			latest, found = r, true
		}
	}
	if !found {
		return Report{}, ErrNoReport
	}
	return latest, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("extract: encode %s: %w", filepath.Base(path), err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("extract: write %s: %w", path, err)
	}
	return nil
}
