package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/raulk/clock"
	"go.uber.org/multierr"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

// DefaultMaxAge is how long artifacts live before Prune removes them.
const DefaultMaxAge = 30 * 24 * time.Hour

// Coordinator owns one output directory and writes the four artifacts for
// each finished scan into it.
type Coordinator struct {
	dir    string
	maxAge time.Duration
	clock  clock.Clock
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithMaxAge overrides the prune age.
func WithMaxAge(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d <= 0 {
			return errors.New("max age must be positive")
		}
		c.maxAge = d
		return nil
	}
}

// WithClock substitutes the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) error {
		if clk == nil {
			return errors.New("clock must not be nil")
		}
		c.clock = clk
		return nil
	}
}

// NewCoordinator builds a coordinator writing into dir.
func NewCoordinator(dir string, opts ...Option) (*Coordinator, error) {
	if dir == "" {
		return nil, errors.New("reports: output directory must not be empty")
	}
	c := &Coordinator{dir: dir, maxAge: DefaultMaxAge, clock: clock.New()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Dir returns the artifact directory.
func (c *Coordinator) Dir() string { return c.dir }

// Artifacts names the four files one Emit produced.
type Artifacts struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	JSON     string `json:"json"`
	Summary  string `json:"summary"`
}

// Emit renders scan into <base>.html, <base>.md, <base>.json and
// <base>-summary.json under the coordinator's directory, creating it if
// absent.
func (c *Coordinator) Emit(ctx context.Context, scan *Scan) (Artifacts, error) {
	if scan == nil {
		return Artifacts{}, errors.New("reports: scan must not be nil")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("creating report directory: %w", err)
	}

	base := c.baseName(scan)
	arts := Artifacts{
		HTML:     filepath.Join(c.dir, base+".html"),
		Markdown: filepath.Join(c.dir, base+".md"),
		JSON:     filepath.Join(c.dir, base+".json"),
		Summary:  filepath.Join(c.dir, base+"-summary.json"),
	}

	html, err := renderHTML(scan)
	if err != nil {
		return Artifacts{}, fmt.Errorf("rendering html report: %w", err)
	}
	md, err := renderMarkdown(scan)
	if err != nil {
		return Artifacts{}, fmt.Errorf("rendering markdown report: %w", err)
	}
	full, err := json.MarshalIndent(scan, "", "  ")
	if err != nil {
		return Artifacts{}, fmt.Errorf("marshaling full report: %w", err)
	}
	summary, err := json.MarshalIndent(Summarize(scan), "", "  ")
	if err != nil {
		return Artifacts{}, fmt.Errorf("marshaling report summary: %w", err)
	}

	for path, body := range map[string][]byte{
		arts.HTML:     html,
		arts.Markdown: md,
		arts.JSON:     full,
		arts.Summary:  summary,
	} {
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return Artifacts{}, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
		}
	}
	log.Infow("report emitted", "report_id", scan.ReportID, "base", base, "dir", c.dir)
	return arts, nil
}

// baseName derives the shared file stem from scan type, repository names
// and the scan date.
func (c *Coordinator) baseName(scan *Scan) string {
	repo := "scan"
	switch n := len(scan.Repositories); {
	case n == 1:
		repo = slugify(scan.Repositories[0].Name)
	case n > 1:
		repo = fmt.Sprintf("%s-and-%d-more", slugify(scan.Repositories[0].Name), n-1)
	}
	at := c.clock.Now().UTC()
	if t := scan.ScannedAt(); t != nil {
		at = t.UTC()
	}
	return fmt.Sprintf("%s-%s-%s", slugify(scan.ScanType), repo, at.Format("2006-01-02-150405"))
}

// slugify lowercases and strips anything outside [a-z0-9-].
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "scan"
	}
	if len(out) > 40 {
		out = strings.Trim(out[:40], "-")
	}
	return out
}

// Prune removes top-level artifacts whose modification time is older than
// the configured age. Subdirectories are left alone. It reports how many
// files were removed.
func (c *Coordinator) Prune(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading report directory: %w", err)
	}
	cutoff := c.clock.Now().Add(-c.maxAge)

	removed := 0
	var errs error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infow("pruned old report artifacts", "removed", removed, "max_age", c.maxAge)
	}
	return removed, errs
}

// ArtifactInfo describes one stored artifact for listings.
type ArtifactInfo struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// List returns the top-level artifacts, newest first.
func (c *Coordinator) List() ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading report directory: %w", err)
	}
	out := make([]ArtifactInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, ArtifactInfo{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ModifiedAt.After(out[j].ModifiedAt)
	})
	return out, nil
}

// Resolve maps an artifact name to its path, rejecting anything that
// could escape the report directory.
func (c *Coordinator) Resolve(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", faults.NewValidationError("invalid report filename", "filename")
	}
	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("report %s: %w", name, faults.ErrNotFound)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("report %s: %w", name, faults.ErrNotFound)
	}
	return path, nil
}

// Remove deletes one artifact by name.
func (c *Coordinator) Remove(name string) error {
	path, err := c.Resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}
