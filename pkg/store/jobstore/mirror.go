package jobstore

import (
	"sort"
	"sync"

	"github.com/sidequest-dev/foreman/pkg/engine"
)

// DefaultQueryLimit applies when a query asks for no explicit page size.
const DefaultQueryLimit = 10

// Tab names map dashboard groupings onto sets of statuses.
const (
	TabActive    = "active"
	TabCompleted = "completed"
	TabFailed    = "failed"
)

// Query narrows and pages a job listing. Status and Tab compose; an empty
// query returns everything newest first.
type Query struct {
	Status       engine.Status
	Tab          string
	Limit        int
	Offset       int
	IncludeTotal bool
}

func (q Query) matches(job *engine.Job) bool {
	if q.Status != "" && job.Status != q.Status {
		return false
	}
	switch q.Tab {
	case "", "all":
		return true
	case TabActive:
		return !job.Status.Terminal()
	case TabCompleted:
		return job.Status == engine.StatusCompleted
	case TabFailed:
		return job.Status == engine.StatusFailed || job.Status == engine.StatusCancelled
	default:
		return false
	}
}

// mirror is the in-memory copy of every job the store has seen. All reads
// are served from here so a degraded database is invisible to readers.
type mirror struct {
	mu         sync.RWMutex
	jobs       map[string]*engine.Job
	order      []string            // insertion order, oldest first
	byPipeline map[string][]string // insertion order per pipeline
}

func newMirror() *mirror {
	return &mirror{
		jobs:       make(map[string]*engine.Job),
		byPipeline: make(map[string][]string),
	}
}

// put inserts or replaces one job. First sight of an id fixes its position
// in recency order; later writes update the payload in place.
func (m *mirror) put(job *engine.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.jobs[job.ID]; !seen {
		m.order = append(m.order, job.ID)
		m.byPipeline[job.PipelineID] = append(m.byPipeline[job.PipelineID], job.ID)
	}
	m.jobs[job.ID] = job.Clone()
}

func (m *mirror) get(id string) (*engine.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

func (m *mirror) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// page walks ids newest first, applies the query, and returns one page plus
// the total number of matches.
func (m *mirror) page(ids []string, q Query) ([]*engine.Job, int) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	var (
		out     []*engine.Job
		matched int
	)
	for i := len(ids) - 1; i >= 0; i-- {
		job, ok := m.jobs[ids[i]]
		if !ok || !q.matches(job) {
			continue
		}
		if matched >= q.Offset && len(out) < limit {
			out = append(out, job.Clone())
		}
		matched++
		if !q.IncludeTotal && len(out) >= limit {
			break
		}
	}
	return out, matched
}

func (m *mirror) jobsFor(pipelineID string, q Query) ([]*engine.Job, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.page(m.byPipeline[pipelineID], q)
}

func (m *mirror) allJobs(q Query) ([]*engine.Job, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.page(m.order, q)
}

// last returns the most recently created job for a pipeline.
func (m *mirror) last(pipelineID string) (*engine.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byPipeline[pipelineID]
	if len(ids) == 0 {
		return nil, false
	}
	job, ok := m.jobs[ids[len(ids)-1]]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

func (m *mirror) counts(pipelineID string) map[engine.Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[engine.Status]int)
	for _, id := range m.byPipeline[pipelineID] {
		if job, ok := m.jobs[id]; ok {
			out[job.Status]++
		}
	}
	return out
}

// PipelineStats summarises one pipeline's job history.
type PipelineStats struct {
	PipelineID string                `json:"pipeline_id"`
	Total      int                   `json:"total"`
	Counts     map[engine.Status]int `json:"counts"`
	LastJobID  string                `json:"last_job_id,omitempty"`
	LastStatus engine.Status         `json:"last_status,omitempty"`
}

func (m *mirror) pipelineStats() []PipelineStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.byPipeline))
	for name := range m.byPipeline {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]PipelineStats, 0, len(names))
	for _, name := range names {
		ids := m.byPipeline[name]
		stats := PipelineStats{
			PipelineID: name,
			Total:      len(ids),
			Counts:     make(map[engine.Status]int),
		}
		for _, id := range ids {
			if job, ok := m.jobs[id]; ok {
				stats.Counts[job.Status]++
			}
		}
		if last, ok := m.jobs[ids[len(ids)-1]]; ok {
			stats.LastJobID = last.ID
			stats.LastStatus = last.Status
		}
		out = append(out, stats)
	}
	return out
}
