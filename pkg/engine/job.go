package engine

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

// Status is a job's place in its lifecycle. Terminal statuses are final:
// no transition ever leaves them.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// Terminal reports whether a job in this status can still change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one execution attempt of a pipeline. The engine is the single
// writer; everything handed outside the engine is a clone.
type Job struct {
	ID          string          `json:"job_id"`
	PipelineID  string          `json:"pipeline_id"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *faults.Detail  `json:"error,omitempty"`
	GitContext  json.RawMessage `json:"git_context,omitempty"`

	// RetryOf names the original job this one retries; Retrying marks a
	// failed job whose retry successor is now authoritative.
	RetryOf  string `json:"retry_of,omitempty"`
	Retrying bool   `json:"retrying,omitempty"`

	// MaxRetries caps this job's retry family. Zero means the worker's
	// default applies. Retry jobs inherit the original's value.
	MaxRetries int `json:"max_retries,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Input != nil {
		c.Input = append(json.RawMessage(nil), j.Input...)
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.GitContext != nil {
		c.GitContext = append(json.RawMessage(nil), j.GitContext...)
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

// Duration is the wall time between start and completion. Either timestamp
// missing yields nil.
func (j *Job) Duration() *time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return nil
	}
	d := j.CompletedAt.Sub(*j.StartedAt)
	return &d
}

var retrySuffix = regexp.MustCompile(`(-retry\d+)+$`)

// StripRetrySuffix removes every trailing -retryN token from id, yielding
// the original id that keys the retry family. The function is a fixed
// point on already-stripped ids.
func StripRetrySuffix(id string) string {
	return retrySuffix.ReplaceAllString(id, "")
}

// RetryID derives the id of retry number attempt for an original job id.
func RetryID(originalID string, attempt int) string {
	return originalID + "-retry" + strconv.Itoa(attempt)
}
