// Package jobstore persists job and report records with an in-memory fast
// path. Reads always come from the in-memory mirror; durable writes that
// fail are queued and drained again once the database recovers, so callers
// never see a persistence outage.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sidequest-dev/foreman/pkg/engine"
	"github.com/sidequest-dev/foreman/pkg/events"
)

var log = logging.Logger("jobstore")

const (
	// MaxPersistFailures is the write-failure count that trips degraded mode.
	MaxPersistFailures = 5
	// MaxRecoveryAttempts is the number of failed recoveries before the
	// store gives up and reports itself down.
	MaxRecoveryAttempts = 10

	recoveryBaseDelay = time.Second
	recoveryMaxDelay  = time.Minute
)

// HealthStatus summarises the store's relationship with its database.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusDown     HealthStatus = "down"
)

// State is the persistence state machine, exposed verbatim through Health.
type State struct {
	Initialized         bool   `json:"initialized"`
	DegradedMode        bool   `json:"degraded_mode"`
	Down                bool   `json:"down"`
	PersistFailureCount int    `json:"persist_failure_count"`
	RecoveryAttempts    int    `json:"recovery_attempts"`
	QueuedWrites        int    `json:"queued_writes"`
	DBPath              string `json:"db_path,omitempty"`
}

// HealthReport is the full state plus a status and a human message.
type HealthReport struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message"`
	State   State        `json:"state"`
}

// backend is the durable side of the store. gormBackend is the real one;
// tests substitute a scriptable fake to drive the degraded machine.
type backend interface {
	migrate(ctx context.Context) error
	loadJobs(ctx context.Context) ([]*JobRecord, error)
	upsertJob(ctx context.Context, rec *JobRecord) error
	upsertReport(ctx context.Context, rec *ReportRecord) (bool, error)
	ping(ctx context.Context) error
	close() error
}

type gormBackend struct {
	db *gorm.DB
}

func (g *gormBackend) migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&JobRecord{}, &ReportRecord{})
}

func (g *gormBackend) loadJobs(ctx context.Context) ([]*JobRecord, error) {
	var recs []*JobRecord
	err := g.db.WithContext(ctx).Order("created_at ASC").Find(&recs).Error
	return recs, err
}

func (g *gormBackend) upsertJob(ctx context.Context, rec *JobRecord) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

func (g *gormBackend) upsertReport(ctx context.Context, rec *ReportRecord) (bool, error) {
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filename"}},
		DoNothing: true,
	}).Create(rec)
	return res.RowsAffected > 0, res.Error
}

func (g *gormBackend) ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *gormBackend) close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Store is the single writer over the durable record. It satisfies
// engine.Persister.
type Store struct {
	backend backend
	mirror  *mirror
	queue   *writeQueue
	clock   clock.Clock
	pub     events.Publisher

	mu     sync.Mutex
	st     State
	boff   *backoff.ExponentialBackOff
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store) error

// WithClock substitutes the recovery timer source.
func WithClock(c clock.Clock) Option {
	return func(s *Store) error {
		if c == nil {
			return errors.New("clock must not be nil")
		}
		s.clock = c
		return nil
	}
}

// WithPublisher routes store alerts onto the event bus.
func WithPublisher(pub events.Publisher) Option {
	return func(s *Store) error {
		if pub == nil {
			return errors.New("publisher must not be nil")
		}
		s.pub = pub
		return nil
	}
}

// WithDBPath records the database location for health reporting.
func WithDBPath(path string) Option {
	return func(s *Store) error {
		s.st.DBPath = path
		return nil
	}
}

// New wraps a gorm handle in a Store. Call Init before use.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("jobstore: database handle must not be nil")
	}
	return newWithBackend(&gormBackend{db: db}, opts...)
}

func newWithBackend(b backend, opts ...Option) (*Store, error) {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = recoveryBaseDelay
	boff.RandomizationFactor = 0
	boff.Multiplier = 2
	boff.MaxInterval = recoveryMaxDelay
	s := &Store{
		backend: b,
		mirror:  newMirror(),
		queue:   newWriteQueue(),
		clock:   clock.New(),
		pub:     events.NopPublisher{},
		boff:    boff,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	InitMetrics()
	return s, nil
}

// Init migrates the schema and warms the mirror from existing rows. It is
// idempotent; a second call is a no-op.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.st.Initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.backend.migrate(ctx); err != nil {
		return fmt.Errorf("migrating job store schema: %w", err)
	}
	recs, err := s.backend.loadJobs(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted jobs: %w", err)
	}
	for _, rec := range recs {
		s.mirror.put(jobFromRecord(rec))
	}

	s.mu.Lock()
	s.st.Initialized = true
	s.mu.Unlock()
	log.Infow("job store initialized", "jobs", len(recs), "path", s.st.DBPath)
	return nil
}

// SaveJob upserts one job. The write always lands in the mirror; a durable
// failure is absorbed into the write queue and the degraded machine, so the
// caller only sees an error for invalid input or a closed store.
func (s *Store) SaveJob(ctx context.Context, job *engine.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("jobstore: job must have an id")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("jobstore: store is closed")
	}
	deferred := s.st.DegradedMode || s.st.Down
	s.mu.Unlock()

	s.mirror.put(job)

	if deferred {
		s.queue.push(job)
		s.syncQueueGauge(ctx)
		return nil
	}
	if err := s.backend.upsertJob(ctx, recordFromJob(job)); err != nil {
		s.noteWriteFailure(ctx, job, err)
	}
	return nil
}

// noteWriteFailure queues the failed write and advances the failure count,
// tripping degraded mode at the threshold.
func (s *Store) noteWriteFailure(ctx context.Context, job *engine.Job, err error) {
	s.queue.push(job)

	s.mu.Lock()
	s.st.PersistFailureCount++
	count := s.st.PersistFailureCount
	s.st.QueuedWrites = s.queue.len()
	var delay time.Duration
	entered := false
	if count >= MaxPersistFailures && !s.st.DegradedMode {
		s.st.DegradedMode = true
		entered = true
		s.boff.Reset()
		delay = s.boff.NextBackOff()
	}
	s.mu.Unlock()

	log.Warnw("durable write failed, queued for retry",
		"job", job.ID, "failures", count, "error", err)
	if PersistFailures != nil {
		PersistFailures.Inc(ctx)
	}
	if entered {
		log.Errorw("entering degraded mode, serving and buffering from memory",
			"failures", count, "queued", s.queue.len())
		if DegradedEntries != nil {
			DegradedEntries.Inc(ctx)
		}
		s.scheduleRecovery(delay)
	}
	s.syncQueueGauge(ctx)
}

func (s *Store) scheduleRecovery(delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := s.clock.Timer(delay)
		defer timer.Stop()
		select {
		case <-s.stop:
			return
		case <-timer.C:
		}
		s.attemptRecovery()
	}()
}

// attemptRecovery tries one full drain. Success restores healthy state;
// failure schedules the next attempt until the cap, then declares the
// store down and raises an alert.
func (s *Store) attemptRecovery() {
	ctx := context.Background()
	err := s.flush(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if err == nil {
		s.st.DegradedMode = false
		s.st.Down = false
		s.st.PersistFailureCount = 0
		s.st.RecoveryAttempts = 0
		s.st.QueuedWrites = s.queue.len()
		s.boff.Reset()
		s.mu.Unlock()
		log.Infow("durable writes recovered, queue drained")
		if RecoverySuccesses != nil {
			RecoverySuccesses.Inc(ctx)
		}
		// Writes that raced into the queue during the drain are swept here;
		// anything this pass misses rides the next failure cycle.
		if s.queue.len() > 0 {
			if ferr := s.flush(ctx); ferr != nil {
				log.Warnw("post-recovery sweep left writes queued", "error", ferr)
			}
		}
		s.syncQueueGauge(ctx)
		return
	}

	s.st.RecoveryAttempts++
	attempts := s.st.RecoveryAttempts
	s.st.QueuedWrites = s.queue.len()
	if attempts >= MaxRecoveryAttempts {
		s.st.Down = true
		queued := s.queue.len()
		s.mu.Unlock()
		log.Errorw("durable storage is down, automatic recovery exhausted",
			"attempts", attempts, "queued", queued, "error", err)
		if RecoveryFailures != nil {
			RecoveryFailures.Inc(ctx)
		}
		s.pub.Publish(events.AlertHighImpact("persistence store is down", map[string]any{
			"recovery_attempts": attempts,
			"queued_writes":     queued,
			"error":             err.Error(),
		}))
		return
	}
	delay := s.boff.NextBackOff()
	s.mu.Unlock()

	log.Warnw("recovery attempt failed",
		"attempt", attempts, "next_delay", delay, "error", err)
	if RecoveryFailures != nil {
		RecoveryFailures.Inc(ctx)
	}
	s.scheduleRecovery(delay)
}

// flush drains queued writes in insertion order. The first record that
// fails stays queued and aborts the drain; a record replaced mid-drain by
// a newer payload also stays queued.
func (s *Store) flush(ctx context.Context) error {
	if err := s.backend.ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	for _, entry := range s.queue.snapshot() {
		if err := s.backend.upsertJob(ctx, recordFromJob(entry.job)); err != nil {
			return fmt.Errorf("draining queued write %s: %w", entry.id, err)
		}
		s.queue.removeIfSeq(entry.id, entry.seq)
	}
	return nil
}

// GetJob returns one job by id from the mirror.
func (s *Store) GetJob(id string) (*engine.Job, bool) {
	return s.mirror.get(id)
}

// GetJobs lists one pipeline's jobs, most recent first, with the query's
// filters and paging applied. The second return is the total match count.
func (s *Store) GetJobs(pipelineID string, q Query) ([]*engine.Job, int) {
	return s.mirror.jobsFor(pipelineID, q)
}

// GetAllJobs lists jobs across every pipeline, most recent first.
func (s *Store) GetAllJobs(q Query) ([]*engine.Job, int) {
	return s.mirror.allJobs(q)
}

// GetLastJob returns the most recently created job for a pipeline.
func (s *Store) GetLastJob(pipelineID string) (*engine.Job, bool) {
	return s.mirror.last(pipelineID)
}

// GetJobCounts returns the per-status job counts for a pipeline.
func (s *Store) GetJobCounts(pipelineID string) map[engine.Status]int {
	return s.mirror.counts(pipelineID)
}

// GetAllPipelineStats summarises every pipeline seen by the store.
func (s *Store) GetAllPipelineStats() []PipelineStats {
	return s.mirror.pipelineStats()
}

// JobCount reports how many jobs the mirror holds.
func (s *Store) JobCount() int {
	return s.mirror.len()
}

// Health reports the store's current status, a human message, and the full
// persistence state.
func (s *Store) Health() HealthReport {
	s.mu.Lock()
	st := s.st
	s.mu.Unlock()
	st.QueuedWrites = s.queue.len()

	switch {
	case st.Down:
		return HealthReport{
			Status: StatusDown,
			Message: fmt.Sprintf("durable storage unavailable after %d recovery attempts; %d writes held in memory",
				st.RecoveryAttempts, st.QueuedWrites),
			State: st,
		}
	case st.DegradedMode:
		return HealthReport{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("durable writes failing; %d writes queued for recovery", st.QueuedWrites),
			State:   st,
		}
	default:
		return HealthReport{Status: StatusHealthy, Message: "durable writes healthy", State: st}
	}
}

// Close stops recovery, attempts a final flush of queued writes even in
// degraded mode, and releases the database. It is idempotent.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()

	var errs error
	if s.queue.len() > 0 {
		if err := s.flush(ctx); err != nil {
			log.Warnw("final flush left queued writes behind",
				"queued", s.queue.len(), "error", err)
			errs = multierr.Append(errs, err)
		}
	}
	return multierr.Append(errs, s.backend.close())
}

func (s *Store) syncQueueGauge(ctx context.Context) {
	if QueuedWrites != nil {
		QueuedWrites.Record(ctx, int64(s.queue.len()))
	}
}
