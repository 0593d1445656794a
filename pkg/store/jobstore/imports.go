package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sidequest-dev/foreman/pkg/engine"
)

const summarySuffix = "-summary.json"

// ImportResult counts one bulk import pass.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportReports bulk-loads historical report summaries (*-summary.json)
// from dir. Files are keyed by name, so re-importing the same directory is
// a no-op. onFile, when non-nil, runs once per matched file.
func (s *Store) ImportReports(ctx context.Context, dir string, onFile func(name string)) (ImportResult, error) {
	var res ImportResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("reading report directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, summarySuffix) {
			continue
		}
		if onFile != nil {
			onFile(name)
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warnw("skipping unreadable report summary", "file", name, "error", err)
			res.Skipped++
			continue
		}
		if !json.Valid(raw) {
			log.Warnw("skipping malformed report summary", "file", name)
			res.Skipped++
			continue
		}
		var head struct {
			ScanType string `json:"scan_type"`
		}
		_ = json.Unmarshal(raw, &head)

		created, err := s.backend.upsertReport(ctx, &ReportRecord{
			Filename:   name,
			ScanType:   head.ScanType,
			Summary:    raw,
			ImportedAt: s.clock.Now().UTC(),
		})
		if err != nil {
			return res, fmt.Errorf("importing report %s: %w", name, err)
		}
		if created {
			res.Imported++
		} else {
			res.Skipped++
		}
	}
	log.Infow("report import finished", "dir", dir, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

// ImportLogs bulk-loads historical job records (<prefix>-<id>.json) from
// dir. Each file holds one serialised job; the embedded job_id is the
// upsert key, so re-imports overwrite rather than duplicate.
func (s *Store) ImportLogs(ctx context.Context, dir string, onFile func(name string)) (ImportResult, error) {
	var res ImportResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("reading log directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, summarySuffix) {
			continue
		}
		if onFile != nil {
			onFile(name)
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warnw("skipping unreadable job log", "file", name, "error", err)
			res.Skipped++
			continue
		}
		var job engine.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			log.Warnw("skipping malformed job log", "file", name, "error", err)
			res.Skipped++
			continue
		}
		if job.ID == "" {
			log.Warnw("skipping job log with no job_id", "file", name)
			res.Skipped++
			continue
		}
		if err := s.backend.upsertJob(ctx, recordFromJob(&job)); err != nil {
			return res, fmt.Errorf("importing job log %s: %w", name, err)
		}
		s.mirror.put(&job)
		res.Imported++
	}
	log.Infow("job log import finished", "dir", dir, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}
