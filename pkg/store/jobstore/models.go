package jobstore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/sidequest-dev/foreman/pkg/engine"
	"github.com/sidequest-dev/foreman/pkg/faults"
)

// JobRecord is the durable row for one job. Opaque payloads live in JSON
// columns; everything the dashboard filters on is a real column.
type JobRecord struct {
	ID          string    `gorm:"primaryKey;size:160"`
	PipelineID  string    `gorm:"size:128;not null;index:idx_jobs_pipeline_created,priority:1"`
	Status      string    `gorm:"size:16;not null;index"`
	CreatedAt   time.Time `gorm:"index:idx_jobs_pipeline_created,priority:2"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	Input       datatypes.JSON
	Result      datatypes.JSON
	Error       datatypes.JSON
	GitContext  datatypes.JSON
	RetryOf     string `gorm:"size:160"`
	Retrying    bool
	MaxRetries  int
	UpdatedAt   time.Time
}

func (JobRecord) TableName() string { return "jobs" }

// ReportRecord is one imported historical report summary, keyed by its
// source filename so re-imports stay idempotent.
type ReportRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Filename   string `gorm:"uniqueIndex;size:256;not null"`
	ScanType   string `gorm:"size:32"`
	Summary    datatypes.JSON
	ImportedAt time.Time
}

func (ReportRecord) TableName() string { return "reports" }

// recordFromJob flattens a job into its durable row.
func recordFromJob(job *engine.Job) *JobRecord {
	rec := &JobRecord{
		ID:          job.ID,
		PipelineID:  job.PipelineID,
		Status:      string(job.Status),
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Input:       datatypes.JSON(job.Input),
		Result:      datatypes.JSON(job.Result),
		GitContext:  datatypes.JSON(job.GitContext),
		RetryOf:     job.RetryOf,
		Retrying:    job.Retrying,
		MaxRetries:  job.MaxRetries,
	}
	if job.Error != nil {
		if raw, err := json.Marshal(job.Error); err == nil {
			rec.Error = datatypes.JSON(raw)
		}
	}
	return rec
}

// jobFromRecord rebuilds the in-memory job. Malformed stored JSON turns
// into nil fields rather than a failed read.
func jobFromRecord(rec *JobRecord) *engine.Job {
	job := &engine.Job{
		ID:          rec.ID,
		PipelineID:  rec.PipelineID,
		Status:      engine.Status(rec.Status),
		CreatedAt:   rec.CreatedAt,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		Input:       safeJSONParse("input", rec.ID, rec.Input),
		Result:      safeJSONParse("result", rec.ID, rec.Result),
		GitContext:  safeJSONParse("git_context", rec.ID, rec.GitContext),
		RetryOf:     rec.RetryOf,
		Retrying:    rec.Retrying,
		MaxRetries:  rec.MaxRetries,
	}
	if raw := safeJSONParse("error", rec.ID, rec.Error); raw != nil {
		var detail faults.Detail
		if err := json.Unmarshal(raw, &detail); err == nil {
			job.Error = &detail
		} else {
			log.Warnw("discarding malformed error detail", "record", rec.ID, "error", err)
		}
	}
	return job
}

// safeJSONParse validates a stored payload. Malformed JSON comes back nil
// with a warning; reads never fail on bad stored bytes.
func safeJSONParse(field, id string, raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		log.Warnw("discarding malformed stored JSON", "field", field, "record", id)
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
