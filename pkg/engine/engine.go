package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"go.uber.org/multierr"

	"github.com/sidequest-dev/foreman/pkg/events"
	"github.com/sidequest-dev/foreman/pkg/faults"
)

var log = logging.Logger("engine")

// Persister stores job snapshots. Persistence is best-effort from the
// engine's point of view: a failing store degrades durability, never
// execution.
type Persister interface {
	SaveJob(ctx context.Context, job *Job) error
}

// Engine owns every job's lifecycle: admission, dispatch, execution,
// failure classification, retry scheduling and cancellation. It is the
// single writer of job state; every job handed out is a clone.
type Engine struct {
	registry  *Registry
	pub       events.Publisher
	persister Persister
	clock     clock.Clock

	disabled           []string
	cancelQueuedOnStop bool

	mu        sync.Mutex
	started   bool
	stopping  bool
	jobs      map[string]*Job
	order     []string // insertion order, newest last
	running   map[string]context.CancelFunc
	pending   map[string]*pendingRetry
	submitted uint64
	completed uint64
	failed    uint64
	cancelled uint64
	retries   uint64

	tracker *retryTracker

	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
	execCtx        context.Context
	execCancel     context.CancelFunc
	wg             sync.WaitGroup

	sessionID string
}

// Option configures an Engine.
type Option func(*Engine) error

// WithPublisher routes lifecycle events to pub. Defaults to a no-op.
func WithPublisher(pub events.Publisher) Option {
	return func(e *Engine) error {
		if pub == nil {
			return fmt.Errorf("nil publisher")
		}
		e.pub = pub
		return nil
	}
}

// WithPersister writes every job transition through p.
func WithPersister(p Persister) Option {
	return func(e *Engine) error {
		e.persister = p
		return nil
	}
}

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) error {
		if c == nil {
			return fmt.Errorf("nil clock")
		}
		e.clock = c
		return nil
	}
}

// WithDisabledPipelines registers ids that submissions may name but must
// be refused with ErrPipelineDisabled.
func WithDisabledPipelines(ids ...string) Option {
	return func(e *Engine) error {
		e.disabled = append(e.disabled, ids...)
		return nil
	}
}

// WithCancelQueuedOnStop drains still-queued jobs as cancelled during Stop
// instead of leaving them queued in memory.
func WithCancelQueuedOnStop() Option {
	return func(e *Engine) error {
		e.cancelQueuedOnStop = true
		return nil
	}
}

// New assembles an engine over the pipeline factories. Workers are built
// lazily on first submission to each pipeline.
func New(factories map[string]WorkerFactory, opts ...Option) (*Engine, error) {
	e := &Engine{
		pub:       events.NopPublisher{},
		clock:     clock.New(),
		jobs:      make(map[string]*Job),
		running:   make(map[string]context.CancelFunc),
		pending:   make(map[string]*pendingRetry),
		tracker:   newRetryTracker(),
		sessionID: mustSessionID(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("engine option: %w", err)
		}
	}
	e.registry = NewRegistry(factories, e.disabled, e.attachWorker)
	InitMetrics()
	return e, nil
}

func mustSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("failed to generate session ID: %v", err))
	}
	return id.String()
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("failed to generate job ID: %v", err))
	}
	return id.String()
}

// Start makes the engine accept submissions. The lifecycle contexts are
// detached from ctx: fx hands Start a short-lived context that must not
// tear the engine down when it expires.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.dispatchCtx, e.dispatchCancel = context.WithCancel(context.Background())
	e.execCtx, e.execCancel = context.WithCancel(context.Background())
	log.Infow("engine started", "session", e.sessionID, "pipelines", len(e.registry.factories))
	return nil
}

// Stop halts dispatch, waits for running jobs to finish and abandons
// pending retries. When ctx expires first, in-flight executors are
// cancelled and Stop reports the deadline error.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started || e.stopping {
		e.mu.Unlock()
		return nil
	}
	e.stopping = true
	e.mu.Unlock()

	e.dispatchCancel()

	if e.cancelQueuedOnStop {
		e.cancelAllQueued()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		log.Warnw("stop deadline reached, cancelling in-flight jobs", "session", e.sessionID)
		e.execCancel()
		select {
		case <-done:
			waitErr = ctx.Err()
		case <-time.After(5 * time.Second):
			waitErr = fmt.Errorf("executors did not exit: %w", ctx.Err())
		}
	}

	err := e.registry.Shutdown(ctx)
	e.execCancel()
	log.Infow("engine stopped", "session", e.sessionID)
	return multierr.Append(waitErr, err)
}

// Registry exposes the worker registry for stats and support queries.
func (e *Engine) Registry() *Registry { return e.registry }

type submitOptions struct {
	maxRetries int
	gitContext json.RawMessage
}

// SubmitOption tweaks a single submission.
type SubmitOption func(*submitOptions)

// WithMaxRetries overrides the pipeline's retry budget for this job. The
// absolute retry cap still applies on top.
func WithMaxRetries(n int) SubmitOption {
	return func(o *submitOptions) { o.maxRetries = n }
}

// WithGitContext attaches repository state captured at submission time.
func WithGitContext(raw json.RawMessage) SubmitOption {
	return func(o *submitOptions) { o.gitContext = raw }
}

// Submit admits a job for pipelineID and returns its queued snapshot.
// Admission is the only blocking step: it fails fast with
// faults.ErrQueueFull when the pipeline is saturated, and no job record
// survives a rejected submission.
func (e *Engine) Submit(ctx context.Context, pipelineID string, input json.RawMessage, opts ...SubmitOption) (*Job, error) {
	e.mu.Lock()
	if !e.started || e.stopping {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine not running")
	}
	e.mu.Unlock()

	w, err := e.registry.Get(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}
	maxRetries := so.maxRetries
	if maxRetries <= 0 {
		maxRetries = w.cfg.MaxRetries
	}

	if err := w.reserve(); err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	job := &Job{
		ID:         newJobID(),
		PipelineID: pipelineID,
		Status:     StatusQueued,
		CreatedAt:  now,
		Input:      cloneRaw(input),
		GitContext: cloneRaw(so.gitContext),
		MaxRetries: maxRetries,
	}

	e.mu.Lock()
	e.jobs[job.ID] = job
	e.order = append(e.order, job.ID)
	e.submitted++
	snapshot := job.Clone()
	e.mu.Unlock()

	e.persist(snapshot)
	e.publish(events.JobCreated(job.ID, pipelineID))
	w.enqueueReserved(job.ID)

	log.Debugw("job submitted", "job", job.ID, "pipeline", pipelineID)
	return snapshot, nil
}

// Get returns a snapshot of the job, if known.
func (e *Engine) Get(jobID string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// Recent returns up to limit job snapshots, newest submission first.
// limit <= 0 means all.
func (e *Engine) Recent(limit int) []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.order) {
		limit = len(e.order)
	}
	out := make([]*Job, 0, limit)
	for i := len(e.order) - 1; i >= 0 && len(out) < limit; i-- {
		if job := e.jobs[e.order[i]]; job != nil {
			out = append(out, job.Clone())
		}
	}
	return out
}

// RetryState returns the retry record for a job's family. Any member id
// works; the record is keyed by the stripped original id.
func (e *Engine) RetryState(jobID string) (RetryRecord, bool) {
	return e.tracker.get(StripRetrySuffix(jobID))
}

// Cancel transitions jobID out of the pipeline: queued jobs leave the
// queue, running jobs get their execution context cancelled, and a pending
// retry anywhere in the job's family is abandoned. Terminal jobs with no
// pending retry are a no-op. The return reports whether anything changed.
func (e *Engine) Cancel(jobID string) bool {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return e.cancelPendingRetry(StripRetrySuffix(jobID))
	}

	switch job.Status {
	case StatusQueued:
		now := e.clock.Now().UTC()
		job.Status = StatusCancelled
		job.CompletedAt = &now
		e.cancelled++
		snapshot := job.Clone()
		e.mu.Unlock()

		if w, ok := e.registry.Peek(snapshot.PipelineID); ok {
			w.removeQueued(jobID)
		}
		e.persist(snapshot)
		e.publishStats()
		log.Debugw("cancelled queued job", "job", jobID)
		return true

	case StatusRunning:
		now := e.clock.Now().UTC()
		job.Status = StatusCancelled
		job.CompletedAt = &now
		cancelExec := e.running[jobID]
		delete(e.running, jobID)
		e.cancelled++
		snapshot := job.Clone()
		e.mu.Unlock()

		if cancelExec != nil {
			cancelExec()
		}
		e.persist(snapshot)
		e.publishStats()
		log.Debugw("cancelled running job", "job", jobID)
		return true

	default:
		e.mu.Unlock()
		return e.cancelPendingRetry(StripRetrySuffix(jobID))
	}
}

// cancelPendingRetry abandons the family's scheduled retry if one exists.
// The failed predecessor keeps its terminal status; only its retrying
// annotation is cleared, since the successor will never materialise.
func (e *Engine) cancelPendingRetry(originalID string) bool {
	e.mu.Lock()
	p, ok := e.pending[originalID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.pending, originalID)

	failedID := originalID
	if p.attempt > 1 {
		failedID = RetryID(originalID, p.attempt-1)
	}
	var snapshot *Job
	if job := e.jobs[failedID]; job != nil && job.Retrying {
		job.Retrying = false
		snapshot = job.Clone()
	}
	e.mu.Unlock()

	close(p.done)
	if snapshot != nil {
		e.persist(snapshot)
	}
	log.Debugw("cancelled pending retry", "original", originalID, "retry", p.retryID)
	return true
}

// Stats aggregates engine counters with per-pipeline worker snapshots.
type Stats struct {
	Submitted      uint64                 `json:"submitted"`
	Completed      uint64                 `json:"completed"`
	Failed         uint64                 `json:"failed"`
	Cancelled      uint64                 `json:"cancelled"`
	Retries        uint64                 `json:"retries"`
	Queued         int                    `json:"queued"`
	Active         int                    `json:"active"`
	PendingRetries int                    `json:"pending_retries"`
	TrackedJobs    int                    `json:"tracked_jobs"`
	Pipelines      map[string]WorkerStats `json:"pipelines"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := Stats{
		Submitted:      e.submitted,
		Completed:      e.completed,
		Failed:         e.failed,
		Cancelled:      e.cancelled,
		Retries:        e.retries,
		PendingRetries: len(e.pending),
		TrackedJobs:    len(e.jobs),
	}
	e.mu.Unlock()

	s.Pipelines = make(map[string]WorkerStats)
	for _, ws := range e.registry.Stats() {
		s.Queued += ws.Queued
		s.Active += ws.Active
		s.Pipelines[ws.PipelineID] = ws
	}
	return s
}

// attachWorker starts the dispatch loop for a freshly constructed worker.
func (e *Engine) attachWorker(w *Worker) {
	e.mu.Lock()
	if !e.started || e.stopping {
		e.mu.Unlock()
		log.Warnw("worker constructed outside engine lifetime", "pipeline", w.PipelineID())
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go e.dispatchLoop(w)
	log.Debugw("pipeline worker attached", "pipeline", w.PipelineID(), "kind", w.Kind())
}

// dispatchLoop moves queued ids into running executions while slots last.
// Strictly FIFO within the pipeline; pipelines do not starve each other
// because every worker runs its own loop.
func (e *Engine) dispatchLoop(w *Worker) {
	defer e.wg.Done()
	for {
		select {
		case <-e.dispatchCtx.Done():
			return
		case <-w.stopped:
			return
		case <-w.wake:
		}
		for {
			id, ok := w.tryDequeue()
			if !ok {
				break
			}
			e.wg.Add(1)
			go e.runJob(w, id)
		}
	}
}

// runJob executes one attempt. The status check after execution is the
// single decision point for the cancel race: any post-cancellation outcome
// is dropped.
func (e *Engine) runJob(w *Worker, jobID string) {
	defer e.wg.Done()
	defer w.releaseSlot()

	e.mu.Lock()
	job := e.jobs[jobID]
	if job == nil || job.Status != StatusQueued {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &now
	jobCtx, cancel := context.WithCancel(e.execCtx)
	e.running[jobID] = cancel
	snapshot := job.Clone()
	e.mu.Unlock()
	defer cancel()

	e.persist(snapshot)
	e.publish(events.JobStarted(jobID, snapshot.PipelineID))

	isScan := w.Kind() == KindScan
	if isScan {
		scanType, paths := describeScan(snapshot.Input)
		e.publish(events.ScanStarted(jobID, scanType, paths...))
	}
	e.recordInFlight()

	result, execErr := e.execute(jobCtx, w, snapshot)

	e.mu.Lock()
	delete(e.running, jobID)
	e.mu.Unlock()

	if execErr == nil {
		e.completeSuccess(w, jobID, result, isScan)
	} else {
		e.completeFailure(w, jobID, execErr, isScan)
	}
	e.recordInFlight()
}

// execute runs the pipeline executor, converting panics into errors so a
// misbehaving executor cannot take the engine down.
func (e *Engine) execute(ctx context.Context, w *Worker, job *Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("executor panicked",
				"job", job.ID,
				"pipeline", job.PipelineID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return w.cfg.Executor.Execute(ctx, job)
}

// completeSuccess finalises a successful attempt. Drops the outcome when
// the job was cancelled mid-run.
func (e *Engine) completeSuccess(w *Worker, jobID string, result json.RawMessage, isScan bool) {
	e.mu.Lock()
	job := e.jobs[jobID]
	if job == nil || job.Status != StatusRunning {
		e.mu.Unlock()
		log.Debugw("dropping outcome of cancelled job", "job", jobID)
		return
	}
	now := e.clock.Now().UTC()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Result = cloneRaw(result)
	e.completed++
	snapshot := job.Clone()
	e.mu.Unlock()

	var dur time.Duration
	if d := snapshot.Duration(); d != nil {
		dur = *d
	}

	w.markCompleted()
	e.persist(snapshot)
	if isScan {
		e.publish(events.ScanCompleted(jobID, dur, ScanMetrics(result)))
	}
	e.publish(events.JobCompleted(jobID, snapshot.PipelineID, dur))
	e.publishStats()

	if JobSuccess != nil {
		JobSuccess.Inc(context.Background(), PipelineAttr(snapshot.PipelineID))
	}
	if JobDuration != nil {
		JobDuration.Record(context.Background(), dur, PipelineAttr(snapshot.PipelineID))
	}
	log.Debugw("job completed", "job", jobID, "pipeline", snapshot.PipelineID, "duration", dur)
}

// completeFailure finalises a failed attempt: classify, update the family's
// retry record, then either schedule the next retry or let the failure
// stand. Drops the outcome when the job was cancelled mid-run.
func (e *Engine) completeFailure(w *Worker, jobID string, execErr error, isScan bool) {
	decision := faults.Classify(execErr)

	e.mu.Lock()
	job := e.jobs[jobID]
	if job == nil || job.Status.Terminal() {
		e.mu.Unlock()
		log.Debugw("dropping outcome of cancelled job", "job", jobID)
		return
	}
	now := e.clock.Now().UTC()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.Error = faults.DetailOf(execErr)
	e.failed++

	originalID := StripRetrySuffix(jobID)
	maxAttempts := job.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = w.cfg.MaxRetries
	}
	rec := e.tracker.fail(originalID, maxAttempts, decision.Reason, now)

	exhausted := rec.Attempts >= rec.MaxAttempts || rec.Attempts >= AbsoluteRetryCap
	willRetry := decision.Category == faults.Retryable && !exhausted && !e.stopping

	var p *pendingRetry
	if willRetry {
		job.Retrying = true
		e.retries++
		p = &pendingRetry{
			originalID: originalID,
			retryID:    RetryID(originalID, rec.Attempts),
			attempt:    rec.Attempts,
			done:       make(chan struct{}),
		}
		e.pending[originalID] = p
	}
	snapshot := job.Clone()
	e.mu.Unlock()

	var dur time.Duration
	if d := snapshot.Duration(); d != nil {
		dur = *d
	}

	w.markFailed()
	e.persist(snapshot)
	if isScan {
		msg := "scan failed"
		if snapshot.Error != nil {
			msg = snapshot.Error.Message
		}
		e.publish(events.ScanFailed(jobID, msg))
	}
	e.publish(events.JobFailed(jobID, snapshot.PipelineID, faults.Info(execErr), willRetry))

	switch {
	case willRetry:
		e.publish(events.RetryCreated(originalID, p.retryID, rec.Attempts, rec.MaxAttempts, decision.Reason, decision.Delay))
		if JobRetries != nil {
			JobRetries.Inc(context.Background(), PipelineAttr(snapshot.PipelineID))
		}
		log.Infow("retry scheduled",
			"job", jobID,
			"retry", p.retryID,
			"attempt", rec.Attempts,
			"max_attempts", rec.MaxAttempts,
			"delay", decision.Delay,
			"reason", decision.Reason)
		e.wg.Add(1)
		go e.retryAfter(w, snapshot, p, decision.Delay)
	case decision.Category == faults.Retryable && exhausted:
		e.publish(events.RetryMaxAttempts(originalID, rec.Attempts))
		log.Warnw("retries exhausted", "original", originalID, "attempts", rec.Attempts, "max_attempts", rec.MaxAttempts)
	default:
		log.Warnw("job failed terminally", "job", jobID, "reason", decision.Reason, "error", execErr)
	}
	e.publishStats()

	if JobFailure != nil {
		JobFailure.Inc(context.Background(), PipelineAttr(snapshot.PipelineID))
	}
	if JobDuration != nil {
		JobDuration.Record(context.Background(), dur, PipelineAttr(snapshot.PipelineID))
	}
}

// retryAfter waits out the classifier's delay, then materialises and
// enqueues the retry job. Cancellation wins any race with the timer
// because whoever removes p from the pending map first owns the outcome.
func (e *Engine) retryAfter(w *Worker, original *Job, p *pendingRetry, delay time.Duration) {
	defer e.wg.Done()

	timer := e.clock.Timer(delay)
	defer timer.Stop()
	select {
	case <-p.done:
		return
	case <-e.dispatchCtx.Done():
		return
	case <-timer.C:
	}

	e.mu.Lock()
	if e.pending[p.originalID] != p {
		e.mu.Unlock()
		return
	}
	delete(e.pending, p.originalID)
	now := e.clock.Now().UTC()
	retry := &Job{
		ID:         p.retryID,
		PipelineID: original.PipelineID,
		Status:     StatusQueued,
		CreatedAt:  now,
		Input:      cloneRaw(original.Input),
		GitContext: cloneRaw(original.GitContext),
		RetryOf:    p.originalID,
		MaxRetries: original.MaxRetries,
	}
	e.jobs[retry.ID] = retry
	e.order = append(e.order, retry.ID)
	snapshot := retry.Clone()
	e.mu.Unlock()

	e.persist(snapshot)
	e.publish(events.JobCreated(retry.ID, retry.PipelineID))

	if err := w.reserve(); err != nil {
		// The queue filled up while the retry waited. Run the failure
		// machinery so the family converges instead of vanishing.
		log.Warnw("retry enqueue failed", "job", retry.ID, "error", err)
		e.completeFailure(w, retry.ID, err, w.Kind() == KindScan)
		return
	}
	w.enqueueReserved(retry.ID)
	log.Debugw("retry enqueued", "job", retry.ID, "original", p.originalID)
}

// cancelAllQueued flips every still-queued job to cancelled. Used by Stop
// under the drain policy.
func (e *Engine) cancelAllQueued() {
	e.mu.Lock()
	now := e.clock.Now().UTC()
	var snapshots []*Job
	for _, job := range e.jobs {
		if job.Status == StatusQueued {
			job.Status = StatusCancelled
			t := now
			job.CompletedAt = &t
			e.cancelled++
			snapshots = append(snapshots, job.Clone())
		}
	}
	e.mu.Unlock()

	for _, s := range snapshots {
		if w, ok := e.registry.Peek(s.PipelineID); ok {
			w.removeQueued(s.ID)
		}
		e.persist(s)
	}
	if len(snapshots) > 0 {
		log.Infow("cancelled queued jobs on stop", "count", len(snapshots))
	}
}

// persist writes a snapshot through the configured store. Failures are
// logged and swallowed: the store runs its own degraded-mode machinery and
// the engine never blocks execution on durability.
func (e *Engine) persist(job *Job) {
	if e.persister == nil || job == nil {
		return
	}
	if err := e.persister.SaveJob(context.Background(), job); err != nil {
		log.Warnw("persisting job failed", "job", job.ID, "status", job.Status, "error", err)
	}
}

func (e *Engine) publish(msg events.Message) {
	if e.pub != nil {
		e.pub.Publish(msg)
	}
}

// publishStats pushes a counter snapshot onto the stats channel. Called on
// terminal transitions so dashboards track load without polling.
func (e *Engine) publishStats() {
	s := e.Stats()
	e.publish(events.StatsUpdate(map[string]any{
		"submitted": s.Submitted,
		"completed": s.Completed,
		"failed":    s.Failed,
		"cancelled": s.Cancelled,
		"retries":   s.Retries,
		"queued":    s.Queued,
		"active":    s.Active,
	}))
}

func (e *Engine) recordInFlight() {
	if JobsInFlight == nil {
		return
	}
	total := 0
	for _, ws := range e.registry.Stats() {
		total += ws.Active
	}
	JobsInFlight.Record(context.Background(), int64(total))
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
