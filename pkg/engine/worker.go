package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

// Executor runs a single job attempt. It receives a clone of the job, must
// honor ctx cancellation, and returns the raw result document on success.
// Wrap an error with faults.Permanent to bypass the retry machinery.
type Executor interface {
	Execute(ctx context.Context, job *Job) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job *Job) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, job *Job) (json.RawMessage, error) {
	return f(ctx, job)
}

// Kind selects the event vocabulary a pipeline speaks. Scan pipelines get
// scan:* lifecycle events alongside the job:* ones.
type Kind string

const (
	KindTask Kind = "task"
	KindScan Kind = "scan"
)

const (
	// DefaultMaxConcurrent bounds simultaneous executions per pipeline
	// when the config leaves it unset.
	DefaultMaxConcurrent = 5

	// DefaultMaxRetries is the retry budget applied when neither the
	// submission nor the pipeline names one.
	DefaultMaxRetries = 3
)

// WorkerConfig describes one pipeline's execution parameters.
type WorkerConfig struct {
	PipelineID    string
	Kind          Kind
	MaxConcurrent int // 0 means DefaultMaxConcurrent
	QueueCapacity int // 0 means unbounded
	MaxRetries    int // 0 means DefaultMaxRetries
	Executor      Executor
}

// Worker owns one pipeline's FIFO queue and concurrency slots. The engine
// drives it; the worker never touches job state itself.
type Worker struct {
	cfg WorkerConfig

	mu        sync.Mutex
	queue     []string
	reserved  int
	active    int
	completed uint64
	failed    uint64

	wake     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewWorker validates cfg, applies defaults and returns a worker ready for
// the engine to attach a dispatch loop to.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.PipelineID == "" {
		return nil, fmt.Errorf("worker config: pipeline id is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("worker config: pipeline %q has no executor", cfg.PipelineID)
	}
	if cfg.Kind == "" {
		cfg.Kind = KindTask
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Worker{
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}, nil
}

func (w *Worker) PipelineID() string { return w.cfg.PipelineID }

func (w *Worker) Kind() Kind { return w.cfg.Kind }

// reserve claims a queue position without appending yet, so the caller can
// announce the job before dispatch can see it. Fails with
// faults.ErrQueueFull once queue plus reservations hit capacity.
func (w *Worker) reserve() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cfg.QueueCapacity > 0 && len(w.queue)+w.reserved >= w.cfg.QueueCapacity {
		return fmt.Errorf("pipeline %q at capacity %d: %w", w.cfg.PipelineID, w.cfg.QueueCapacity, faults.ErrQueueFull)
	}
	w.reserved++
	return nil
}

// enqueueReserved converts a reservation into a queued id.
func (w *Worker) enqueueReserved(jobID string) {
	w.mu.Lock()
	if w.reserved > 0 {
		w.reserved--
	}
	w.queue = append(w.queue, jobID)
	w.mu.Unlock()
	w.signal()
}

// unreserve releases a reservation that will not be used.
func (w *Worker) unreserve() {
	w.mu.Lock()
	if w.reserved > 0 {
		w.reserved--
	}
	w.mu.Unlock()
}

// tryDequeue pops the oldest queued id if a concurrency slot is free,
// claiming the slot for the caller.
func (w *Worker) tryDequeue() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active >= w.cfg.MaxConcurrent || len(w.queue) == 0 {
		return "", false
	}
	id := w.queue[0]
	w.queue = w.queue[1:]
	w.active++
	return id, true
}

// removeQueued drops jobID from the queue without claiming a slot. False
// means dispatch already popped it.
func (w *Worker) removeQueued(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, id := range w.queue {
		if id == jobID {
			w.queue = append(w.queue[:i], w.queue[i+1:]...)
			return true
		}
	}
	return false
}

// drainQueued empties the queue and returns the ids in FIFO order.
func (w *Worker) drainQueued() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := w.queue
	w.queue = nil
	return ids
}

// releaseSlot frees a concurrency slot and nudges dispatch.
func (w *Worker) releaseSlot() {
	w.mu.Lock()
	w.active--
	w.mu.Unlock()
	w.signal()
}

func (w *Worker) markCompleted() {
	w.mu.Lock()
	w.completed++
	w.mu.Unlock()
}

func (w *Worker) markFailed() {
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
}

// signal wakes the dispatch loop; a full wake channel already has one
// pending.
func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Stop halts dispatch for this worker. In-flight executions finish under
// the engine's control.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopped) })
}

// WorkerStats is a point-in-time snapshot of one pipeline's load.
type WorkerStats struct {
	PipelineID    string `json:"pipeline_id"`
	Kind          Kind   `json:"kind"`
	Queued        int    `json:"queued"`
	Active        int    `json:"active"`
	Completed     uint64 `json:"completed"`
	Failed        uint64 `json:"failed"`
	MaxConcurrent int    `json:"max_concurrent"`
	QueueCapacity int    `json:"queue_capacity,omitempty"`
}

func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStats{
		PipelineID:    w.cfg.PipelineID,
		Kind:          w.cfg.Kind,
		Queued:        len(w.queue),
		Active:        w.active,
		Completed:     w.completed,
		Failed:        w.failed,
		MaxConcurrent: w.cfg.MaxConcurrent,
		QueueCapacity: w.cfg.QueueCapacity,
	}
}
