package reports

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

func sampleScan() *Scan {
	started := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	completed := started.Add(83 * time.Second)
	return &Scan{
		ReportID:  "scan_20250310_001",
		ScanName:  "Nightly duplication sweep",
		ScanType:  "intra-project",
		StartedAt: &started, CompletedAt: &completed,
		Repositories: []Repository{{
			Name:       "sidequest",
			Path:       "/code/sidequest",
			TotalFiles: 15,
			TotalLines: 2500,
			Languages:  []string{"javascript"},
		}},
		Metrics: Metrics{
			TotalFilesAnalyzed:    15,
			TotalDuplicateGroups:  12,
			TotalDuplicatedLines:  300,
			DuplicationPercentage: 12.0,
			QuickWins:             5,
			PotentialLOCReduction: 250,
		},
		Warnings: []string{"3 files skipped: unreadable"},
	}
}

func TestEmitWritesFourArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	c, err := NewCoordinator(dir)
	require.NoError(t, err)

	arts, err := c.Emit(context.Background(), sampleScan())
	require.NoError(t, err)

	for _, path := range []string{arts.HTML, arts.Markdown, arts.JSON, arts.Summary} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Positive(t, info.Size())
	}

	base := strings.TrimSuffix(filepath.Base(arts.HTML), ".html")
	require.Equal(t, "intra-project-sidequest-2025-03-10-090123", base)
	require.Equal(t, base+"-summary.json", filepath.Base(arts.Summary))

	raw, err := os.ReadFile(arts.Summary)
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(raw, &summary))
	require.Equal(t, "scan_20250310_001", summary["report_id"])
	require.Equal(t, "intra-project", summary["scan_type"])
	require.EqualValues(t, 83, summary["scan_duration_seconds"])
	require.Equal(t, "moderate", summary["duplication_severity"])
	require.EqualValues(t, 33, summary["opportunity_score"])

	metrics, ok := summary["metrics"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 12, metrics["total_duplicate_groups"])
	require.EqualValues(t, 250, metrics["potential_loc_reduction"])
}

func TestEmitEscapesScanSuppliedStrings(t *testing.T) {
	scan := sampleScan()
	scan.ScanName = `<script>alert("pwn")</script>`
	scan.Repositories[0].Name = "repo & <b>bold</b>"

	c, err := NewCoordinator(t.TempDir())
	require.NoError(t, err)
	arts, err := c.Emit(context.Background(), scan)
	require.NoError(t, err)

	html, err := os.ReadFile(arts.HTML)
	require.NoError(t, err)
	require.NotContains(t, string(html), "<script>alert")
	require.Contains(t, string(html), "&lt;script&gt;")
	require.NotContains(t, string(html), "<b>bold</b>")
}

func TestNilTimestampsYieldNullDuration(t *testing.T) {
	scan := sampleScan()
	scan.StartedAt = nil

	c, err := NewCoordinator(t.TempDir())
	require.NoError(t, err)
	arts, err := c.Emit(context.Background(), scan)
	require.NoError(t, err)

	raw, err := os.ReadFile(arts.Summary)
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(raw, &summary))
	v, present := summary["scan_duration_seconds"]
	require.True(t, present)
	require.Nil(t, v)

	md, err := os.ReadFile(arts.Markdown)
	require.NoError(t, err)
	require.Contains(t, string(md), "duration unknown")
}

func TestSeverityThresholds(t *testing.T) {
	cases := []struct {
		pct  float64
		want string
	}{
		{0, "minimal"}, {4.9, "minimal"},
		{5, "low"}, {9.9, "low"},
		{10, "moderate"}, {19.9, "moderate"},
		{20, "high"}, {39.9, "high"},
		{40, "critical"}, {95, "critical"},
	}
	for _, tc := range cases {
		scan := &Scan{Metrics: Metrics{DuplicationPercentage: tc.pct}}
		require.Equal(t, tc.want, scan.Severity(), "pct=%v", tc.pct)
	}
}

func TestOpportunityScoreWeighting(t *testing.T) {
	scan := sampleScan()
	// dup 12/40 → 30, quick wins 5/10 → 50, loc 250/2500 → 10.
	// 30*0.35 + 50*0.40 + 10*0.25 = 33.0
	require.InDelta(t, 33.0, scan.OpportunityScore(), 0.001)

	// Factors cap at 100 and the score itself caps at 100.
	scan.Metrics.DuplicationPercentage = 95
	scan.Metrics.QuickWins = 40
	scan.Metrics.PotentialLOCReduction = 2500
	require.InDelta(t, 100.0, scan.OpportunityScore(), 0.001)
}

func TestBaseNameForMultiRepoScan(t *testing.T) {
	scan := sampleScan()
	scan.ScanType = "cross-project"
	scan.Repositories = append(scan.Repositories, Repository{Name: "Other Repo!", Path: "/code/other"})

	c, err := NewCoordinator(t.TempDir())
	require.NoError(t, err)
	arts, err := c.Emit(context.Background(), scan)
	require.NoError(t, err)
	require.Equal(t, "cross-project-sidequest-and-1-more-2025-03-10-090123.json",
		filepath.Base(arts.JSON))
}

func TestPruneRemovesOldFilesAndSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCoordinator(dir, WithMaxAge(30*24*time.Hour))
	require.NoError(t, err)

	old := time.Now().Add(-40 * 24 * time.Hour)
	for _, name := range []string{"stale-1.html", "stale-1-summary.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(path, old, old))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh.html"), []byte("x"), 0o644))

	sub := filepath.Join(dir, "archive")
	require.NoError(t, os.Mkdir(sub, 0o755))
	nested := filepath.Join(sub, "ancient.html")
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(nested, old, old))
	require.NoError(t, os.Chtimes(sub, old, old))

	removed, err := c.Prune(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = os.Stat(filepath.Join(dir, "fresh.html"))
	require.NoError(t, err)
	_, err = os.Stat(nested)
	require.NoError(t, err, "files inside subdirectories must survive")
	_, err = os.Stat(filepath.Join(dir, "stale-1.html"))
	require.True(t, os.IsNotExist(err))
}

func TestResolveRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCoordinator(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.html"), []byte("x"), 0o644))

	path, err := c.Resolve("ok.html")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ok.html"), path)

	var verr *faults.ValidationError
	for _, bad := range []string{"", "../secrets", "a/b.html", `a\b.html`, "..", "x..y"} {
		_, err := c.Resolve(bad)
		require.Error(t, err, "name %q must be rejected", bad)
		require.ErrorAs(t, err, &verr, "name %q must be a validation error", bad)
	}

	_, err = c.Resolve("missing.html")
	require.ErrorIs(t, err, faults.ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCoordinator(dir)
	require.NoError(t, err)

	older := time.Now().Add(-time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.html"), []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.html"), older, older))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.html"), []byte("xy"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	list, err := c.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "new.html", list[0].Name)
	require.Equal(t, "old.html", list[1].Name)
	require.EqualValues(t, 2, list[0].SizeBytes)
}
