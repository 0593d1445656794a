// Package activity keeps a bounded in-memory feed of recent orchestrator
// happenings for the dashboard. Job and retry events are converted into
// human-readable records; the feed never grows past its cap.
package activity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"

	"github.com/sidequest-dev/foreman/pkg/events"
)

var log = logging.Logger("activity")

const (
	// DefaultMax bounds the ring.
	DefaultMax = 50
	// DefaultRecent is the page size when a query asks for no limit.
	DefaultRecent = 20
)

// Activity is one feed entry.
type Activity struct {
	ID         int64        `json:"id"`
	Type       string       `json:"type"`
	Timestamp  time.Time    `json:"timestamp"`
	JobID      string       `json:"job_id,omitempty"`
	PipelineID string       `json:"pipeline_id,omitempty"`
	Message    string       `json:"message,omitempty"`
	Icon       string       `json:"icon,omitempty"`
	Error      *ErrorRecord `json:"error,omitempty"`
}

// ErrorRecord is the sanitised error carried by failure activities.
type ErrorRecord struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Feed is the bounded ring of activities. Safe for concurrent use.
type Feed struct {
	clock clock.Clock
	pub   events.Publisher

	mu     sync.Mutex
	nextID int64
	items  []Activity
	max    int
}

// Option configures a Feed.
type Option func(*Feed) error

// WithMax overrides the ring size.
func WithMax(n int) Option {
	return func(f *Feed) error {
		if n <= 0 {
			return errors.New("feed size must be positive")
		}
		f.max = n
		return nil
	}
}

// WithClock substitutes the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(f *Feed) error {
		if c == nil {
			return errors.New("clock must not be nil")
		}
		f.clock = c
		return nil
	}
}

// WithPublisher routes activity:new announcements onto the event bus.
func WithPublisher(pub events.Publisher) Option {
	return func(f *Feed) error {
		if pub == nil {
			return errors.New("publisher must not be nil")
		}
		f.pub = pub
		return nil
	}
}

// NewFeed builds an empty feed.
func NewFeed(opts ...Option) (*Feed, error) {
	f := &Feed{
		clock: clock.New(),
		pub:   events.NopPublisher{},
		max:   DefaultMax,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Add stamps a monotonic id and timestamp onto the partial record, appends
// it, trims the ring, and announces it on the activity channel.
func (f *Feed) Add(partial Activity) Activity {
	f.mu.Lock()
	f.nextID++
	partial.ID = f.nextID
	partial.Timestamp = f.clock.Now().UTC()
	f.items = append(f.items, partial)
	if len(f.items) > f.max {
		f.items = f.items[len(f.items)-f.max:]
	}
	f.mu.Unlock()

	f.pub.Publish(events.ActivityNew(partial))
	return partial
}

// Recent returns the newest n activities, newest first. n <= 0 means
// DefaultRecent.
func (f *Feed) Recent(n int) []Activity {
	if n <= 0 {
		n = DefaultRecent
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.items) {
		n = len(f.items)
	}
	out := make([]Activity, n)
	for i := 0; i < n; i++ {
		out[i] = f.items[len(f.items)-1-i]
	}
	return out
}

// Stats summarises the feed's contents.
type Stats struct {
	TypeCount map[string]int `json:"type_count"`
	Recent    RecentCounts   `json:"recent_activities"`
	Oldest    *time.Time     `json:"oldest,omitempty"`
	Newest    *time.Time     `json:"newest,omitempty"`
}

// RecentCounts buckets activity volume by age.
type RecentCounts struct {
	LastHour int `json:"last_hour"`
	LastDay  int `json:"last_day"`
	Total    int `json:"total"`
}

func (f *Feed) Stats() Stats {
	now := f.clock.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := Stats{
		TypeCount: make(map[string]int),
		Recent:    RecentCounts{Total: len(f.items)},
	}
	for _, a := range f.items {
		stats.TypeCount[a.Type]++
		age := now.Sub(a.Timestamp)
		if age <= time.Hour {
			stats.Recent.LastHour++
		}
		if age <= 24*time.Hour {
			stats.Recent.LastDay++
		}
	}
	if len(f.items) > 0 {
		oldest := f.items[0].Timestamp
		newest := f.items[len(f.items)-1].Timestamp
		stats.Oldest = &oldest
		stats.Newest = &newest
	}
	return stats
}

// Clear empties the feed. Ids stay monotonic across a clear.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}

// icons per activity type, matching what the dashboard renders.
var icons = map[string]string{
	events.TypeJobCreated:       "plus",
	events.TypeJobStarted:       "play",
	events.TypeJobCompleted:     "check",
	events.TypeJobFailed:        "x",
	events.TypeRetryCreated:     "refresh",
	events.TypeRetryMaxAttempts: "alert",
}

// Publish converts job and retry events into feed entries, letting the
// feed sit directly in the event fan-out. Messages without a usable job
// reference are dropped silently.
func (f *Feed) Publish(msg events.Message) {
	icon, listening := icons[msg.Type]
	if !listening {
		return
	}
	jobID := stringField(msg, "job_id")
	if jobID == "" {
		jobID = stringField(msg, "original_id")
	}
	if jobID == "" {
		return
	}

	entry := Activity{
		Type:       msg.Type,
		JobID:      jobID,
		PipelineID: stringField(msg, "job_type"),
		Icon:       icon,
	}
	switch msg.Type {
	case events.TypeJobCreated:
		entry.Message = fmt.Sprintf("Job %s created", jobID)
	case events.TypeJobStarted:
		entry.Message = fmt.Sprintf("Job %s started", jobID)
	case events.TypeJobCompleted:
		entry.Message = fmt.Sprintf("Job %s completed", jobID)
	case events.TypeJobFailed:
		raw, _ := msg.Field("error")
		rec := SanitizeError(raw)
		entry.Error = &rec
		entry.Message = fmt.Sprintf("Job %s failed: %s", jobID, rec.Message)
	case events.TypeRetryCreated:
		rec := SanitizeError(fieldOr(msg, "reason", nil))
		entry.Error = &rec
		entry.Message = fmt.Sprintf("Retry %v scheduled for job %s: %s",
			fieldOr(msg, "attempt", "?"), jobID, rec.Message)
	case events.TypeRetryMaxAttempts:
		entry.Message = fmt.Sprintf("Job %s exhausted its retries", jobID)
	}
	f.Add(entry)
}

func stringField(msg events.Message, name string) string {
	v, ok := msg.Field(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func fieldOr(msg events.Message, name string, fallback any) any {
	if v, ok := msg.Field(name); ok {
		return v
	}
	return fallback
}

// SanitizeError normalises whatever rode along in an error field into a
// record with a non-empty message. It never panics, whatever the payload.
func SanitizeError(v any) ErrorRecord {
	switch err := v.(type) {
	case nil:
		return ErrorRecord{Message: "Job failed with no error details"}
	case ErrorRecord:
		if err.Message == "" {
			err.Message = "Unknown error"
		}
		return err
	case error:
		if msg := err.Error(); msg != "" {
			return ErrorRecord{Message: msg}
		}
		return ErrorRecord{Message: "Unknown error"}
	case string:
		if err == "" {
			return ErrorRecord{Message: "Unknown error"}
		}
		return ErrorRecord{Message: err}
	case map[string]any:
		rec := ErrorRecord{}
		if m, ok := err["message"].(string); ok && m != "" {
			rec.Message = m
		}
		if c, ok := err["code"].(string); ok {
			rec.Code = c
		}
		if rec.Message == "" {
			rec.Message = "Unknown error"
		}
		return rec
	case bool, int, int64, float64:
		return ErrorRecord{Message: fmt.Sprintf("%v", err)}
	default:
		log.Debugw("unrecognised error payload in activity", "payload_type", fmt.Sprintf("%T", v))
		return ErrorRecord{Message: "Unknown error"}
	}
}
