// Package reports renders scan results into the artifact set the dashboard
// and CLI consume: an HTML page, a Markdown digest, the full JSON record,
// and a compact summary JSON for history imports.
package reports

import (
	"math"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("reports")

// Repository describes one scanned repository.
type Repository struct {
	Name       string   `json:"repository_name"`
	Path       string   `json:"repository_path"`
	TotalFiles int      `json:"total_files"`
	TotalLines int      `json:"total_lines"`
	Languages  []string `json:"languages,omitempty"`
}

// Metrics carries the statistical outcome of a scan.
type Metrics struct {
	TotalFilesAnalyzed    int     `json:"total_files_analyzed"`
	TotalDuplicateGroups  int     `json:"total_duplicate_groups"`
	TotalDuplicatedLines  int     `json:"total_duplicated_lines"`
	DuplicationPercentage float64 `json:"duplication_percentage"`
	QuickWins             int     `json:"quick_wins"`
	PotentialLOCReduction int     `json:"potential_loc_reduction"`
	TotalSuggestions      int     `json:"total_suggestions,omitempty"`
}

// Scan is a completed scan ready to be rendered.
type Scan struct {
	ReportID        string       `json:"report_id"`
	ScanName        string       `json:"scan_name,omitempty"`
	ScanType        string       `json:"scan_type"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	Repositories    []Repository `json:"repositories"`
	Metrics         Metrics      `json:"metrics"`
	Recommendations []string     `json:"recommendations,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
}

// Duration reports the scan's wall time in seconds, or nil when either
// timestamp is missing.
func (s *Scan) Duration() *float64 {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return nil
	}
	d := s.CompletedAt.Sub(*s.StartedAt).Seconds()
	return &d
}

// ScannedAt is the best timestamp for "when did this scan happen".
func (s *Scan) ScannedAt() *time.Time {
	if s.CompletedAt != nil {
		return s.CompletedAt
	}
	return s.StartedAt
}

// TotalFiles sums files across every repository.
func (s *Scan) TotalFiles() int {
	n := 0
	for _, r := range s.Repositories {
		n += r.TotalFiles
	}
	return n
}

// TotalLines sums lines across every repository.
func (s *Scan) TotalLines() int {
	n := 0
	for _, r := range s.Repositories {
		n += r.TotalLines
	}
	return n
}

// Severity buckets the duplication percentage.
func (s *Scan) Severity() string {
	switch pct := s.Metrics.DuplicationPercentage; {
	case pct < 5:
		return "minimal"
	case pct < 10:
		return "low"
	case pct < 20:
		return "moderate"
	case pct < 40:
		return "high"
	default:
		return "critical"
	}
}

// OpportunityScore estimates the benefit of consolidation on a 0-100
// scale, weighting duplication percentage, quick wins and the achievable
// LOC reduction.
func (s *Scan) OpportunityScore() float64 {
	dupFactor := math.Min(s.Metrics.DuplicationPercentage/40*100, 100)
	quickWinFactor := math.Min(float64(s.Metrics.QuickWins)/10*100, 100)
	locFactor := 0.0
	if total := s.TotalLines(); total > 0 {
		locFactor = float64(s.Metrics.PotentialLOCReduction) / float64(total) * 100
	}
	score := dupFactor*0.35 + quickWinFactor*0.40 + locFactor*0.25
	return math.Round(math.Min(score, 100)*100) / 100
}

// Recommendation picks the headline advice for the digest.
func (s *Scan) Recommendation() string {
	switch {
	case s.Metrics.QuickWins >= 5:
		return "Immediate action recommended - many quick wins available"
	case s.Metrics.DuplicationPercentage >= 10:
		return "Moderate duplication detected - prioritize high-impact consolidations"
	default:
		return "Low duplication - focus on preventing new duplicates"
	}
}

// Summary is the compact record written to <base>-summary.json and
// re-imported by the history loader.
type Summary struct {
	ReportID            string     `json:"report_id"`
	ScanType            string     `json:"scan_type"`
	ScannedAt           *time.Time `json:"scanned_at"`
	ScanDurationSeconds *float64   `json:"scan_duration_seconds"`
	Repositories        []string   `json:"repositories"`
	TotalFiles          int        `json:"total_files"`
	TotalLines          int        `json:"total_lines"`
	Metrics             Metrics    `json:"metrics"`
	DuplicationSeverity string     `json:"duplication_severity"`
	OpportunityScore    float64    `json:"opportunity_score"`
}

// Summarize flattens a scan into its summary record.
func Summarize(s *Scan) Summary {
	names := make([]string, 0, len(s.Repositories))
	for _, r := range s.Repositories {
		names = append(names, r.Name)
	}
	return Summary{
		ReportID:            s.ReportID,
		ScanType:            s.ScanType,
		ScannedAt:           s.ScannedAt(),
		ScanDurationSeconds: s.Duration(),
		Repositories:        names,
		TotalFiles:          s.TotalFiles(),
		TotalLines:          s.TotalLines(),
		Metrics:             s.Metrics,
		DuplicationSeverity: s.Severity(),
		OpportunityScore:    s.OpportunityScore(),
	}
}
