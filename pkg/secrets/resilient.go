package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/raulk/clock"
	"github.com/sony/gobreaker"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

const (
	// DefaultFailureThreshold trips the breaker after this many consecutive
	// upstream failures.
	DefaultFailureThreshold = 3
	// DefaultSuccessThreshold closes a half-open breaker after this many
	// consecutive probe successes.
	DefaultSuccessThreshold = 2
	// DefaultTimeout is how long the breaker stays open before probing.
	DefaultTimeout = 60 * time.Second
	// DefaultFallbackTTL is how long the in-process fallback copy is
	// trusted before re-reading the snapshot file.
	DefaultFallbackTTL = 5 * time.Minute

	backoffBase = time.Second
	backoffMax  = time.Minute

	fallbackKey = "snapshot"
)

// ErrNoFallback reports that the upstream is unavailable and no fallback
// snapshot could be loaded.
var ErrNoFallback = errors.New("secrets unavailable and no fallback snapshot")

// Resilient wraps a Source with a three-state circuit breaker. While the
// breaker is open, calls are served from a file-backed snapshot instead of
// hitting the upstream.
type Resilient struct {
	source  Source
	breaker *gobreaker.CircuitBreaker
	clock   clock.Clock

	fallbackPath string
	fallbackTTL  time.Duration
	mem          *gocache.Cache

	mu               sync.Mutex
	totalCalls       uint64
	totalSuccesses   uint64
	totalFailures    uint64
	consecutiveFails int
	currentBackoff   time.Duration
	nextAttempt      time.Time
	lastError        *faults.Detail
	usingFallback    bool

	timeout time.Duration
	failTh  uint32
	succTh  uint32
}

// Option configures a Resilient wrapper.
type Option func(*Resilient) error

// WithFailureThreshold overrides the consecutive-failure trip count.
func WithFailureThreshold(n uint32) Option {
	return func(r *Resilient) error {
		if n == 0 {
			return errors.New("failure threshold must be positive")
		}
		r.failTh = n
		return nil
	}
}

// WithSuccessThreshold overrides the half-open close count.
func WithSuccessThreshold(n uint32) Option {
	return func(r *Resilient) error {
		if n == 0 {
			return errors.New("success threshold must be positive")
		}
		r.succTh = n
		return nil
	}
}

// WithTimeout overrides how long the breaker stays open.
func WithTimeout(d time.Duration) Option {
	return func(r *Resilient) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		r.timeout = d
		return nil
	}
}

// WithFallbackPath points the wrapper at its snapshot file.
func WithFallbackPath(path string) Option {
	return func(r *Resilient) error {
		r.fallbackPath = path
		return nil
	}
}

// WithFallbackTTL overrides the in-process snapshot staleness window.
func WithFallbackTTL(d time.Duration) Option {
	return func(r *Resilient) error {
		if d <= 0 {
			return errors.New("fallback ttl must be positive")
		}
		r.fallbackTTL = d
		return nil
	}
}

// WithClock substitutes the time source used for health reporting.
func WithClock(c clock.Clock) Option {
	return func(r *Resilient) error {
		if c == nil {
			return errors.New("clock must not be nil")
		}
		r.clock = c
		return nil
	}
}

// NewResilient wraps source. The zero configuration trips after 3
// consecutive failures, probes after 60s, and closes again after 2 probe
// successes.
func NewResilient(source Source, opts ...Option) (*Resilient, error) {
	if source == nil {
		return nil, errors.New("secrets: source must not be nil")
	}
	r := &Resilient{
		source:      source,
		clock:       clock.New(),
		fallbackTTL: DefaultFallbackTTL,
		timeout:     DefaultTimeout,
		failTh:      DefaultFailureThreshold,
		succTh:      DefaultSuccessThreshold,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	// expired snapshot copies are purged lazily; the hourly sweep only
	// bounds memory.
	r.mem = gocache.New(r.fallbackTTL, time.Hour)
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "secrets",
		MaxRequests: r.succTh,
		Timeout:     r.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.failTh
		},
		OnStateChange: r.onStateChange,
	})
	InitMetrics()
	return r, nil
}

func (r *Resilient) onStateChange(name string, from, to gobreaker.State) {
	r.mu.Lock()
	switch to {
	case gobreaker.StateOpen:
		r.nextAttempt = r.clock.Now().Add(r.timeout)
	case gobreaker.StateClosed:
		r.nextAttempt = time.Time{}
		r.consecutiveFails = 0
		r.currentBackoff = 0
	}
	r.mu.Unlock()

	if to == gobreaker.StateOpen {
		log.Warnw("secret breaker opened", "from", from.String(), "retry_at", r.timeout)
		if BreakerOpens != nil {
			BreakerOpens.Inc(context.Background())
		}
		return
	}
	log.Infow("secret breaker state change", "from", from.String(), "to", to.String())
}

// Fetch returns the current secret set. Upstream failures and an open
// breaker both fall back to the snapshot; the caller only sees an error
// when no snapshot is available either.
func (r *Resilient) Fetch(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	r.totalCalls++
	r.mu.Unlock()

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.source.Fetch(ctx)
	})
	if err == nil {
		secrets := out.(map[string]string)
		r.noteSuccess(secrets)
		return secrets, nil
	}

	r.noteFailure(err)
	fb, fbErr := r.fallback()
	if fbErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFallback, err)
	}
	if FallbackServes != nil {
		FallbackServes.Inc(ctx)
	}
	return fb, nil
}

// Get fetches one secret by name.
func (r *Resilient) Get(ctx context.Context, key string) (string, error) {
	secrets, err := r.Fetch(ctx)
	if err != nil {
		return "", err
	}
	value, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("secret %q: %w", key, faults.ErrNotFound)
	}
	return value, nil
}

func (r *Resilient) noteSuccess(secrets map[string]string) {
	r.mu.Lock()
	r.totalSuccesses++
	r.consecutiveFails = 0
	r.currentBackoff = 0
	r.usingFallback = false
	r.lastError = nil
	r.mu.Unlock()
	r.persistSnapshot(secrets)
}

func (r *Resilient) noteFailure(err error) {
	shortCircuit := errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)

	r.mu.Lock()
	r.totalFailures++
	r.usingFallback = true
	if !shortCircuit {
		r.consecutiveFails++
		r.currentBackoff = expBackoff(r.consecutiveFails)
		r.lastError = faults.DetailOf(err)
	}
	r.mu.Unlock()

	if shortCircuit {
		log.Debugw("secret fetch short-circuited", "error", err)
		return
	}
	log.Warnw("secret fetch failed", "error", err)
}

// expBackoff reports min(base*2^(n-1), max) for the nth failure.
func expBackoff(n int) time.Duration {
	d := backoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}

// fallback serves the in-process snapshot copy, reloading from disk when
// the copy has gone stale.
func (r *Resilient) fallback() (map[string]string, error) {
	if v, ok := r.mem.Get(fallbackKey); ok {
		return v.(map[string]string), nil
	}
	if r.fallbackPath == "" {
		return nil, errors.New("no fallback path configured")
	}
	raw, err := os.ReadFile(r.fallbackPath)
	if err != nil {
		return nil, fmt.Errorf("reading fallback snapshot: %w", err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(raw, &secrets); err != nil {
		return nil, fmt.Errorf("parsing fallback snapshot: %w", err)
	}
	r.mem.Set(fallbackKey, secrets, gocache.DefaultExpiration)
	log.Infow("serving secrets from fallback snapshot", "path", r.fallbackPath, "keys", len(secrets))
	return secrets, nil
}

// persistSnapshot rewrites the fallback file after a successful upstream
// fetch and refreshes the in-process copy.
func (r *Resilient) persistSnapshot(secrets map[string]string) {
	r.mem.Set(fallbackKey, secrets, gocache.DefaultExpiration)
	if r.fallbackPath == "" {
		return
	}
	raw, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		log.Warnw("marshaling fallback snapshot", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.fallbackPath), 0o755); err != nil {
		log.Warnw("creating fallback snapshot directory", "error", err)
		return
	}
	if err := os.WriteFile(r.fallbackPath, raw, 0o600); err != nil {
		log.Warnw("writing fallback snapshot", "path", r.fallbackPath, "error", err)
	}
}

// Health is a point-in-time view of the breaker and its counters.
type Health struct {
	State               string         `json:"state"`
	TotalCalls          uint64         `json:"total_calls"`
	TotalSuccesses      uint64         `json:"total_successes"`
	TotalFailures       uint64         `json:"total_failures"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	SuccessRate         float64        `json:"success_rate"`
	CurrentBackoffMS    int64          `json:"current_backoff_ms"`
	NextAttemptTime     *time.Time     `json:"next_attempt_time,omitempty"`
	WaitTimeMS          int64          `json:"wait_time_ms"`
	UsingFallback       bool           `json:"using_fallback"`
	LastError           *faults.Detail `json:"last_error,omitempty"`
}

func (r *Resilient) Health() Health {
	// Read the breaker state before taking r.mu: the lazy open->half-open
	// transition inside State() fires onStateChange, which locks r.mu.
	state := r.breaker.State().String()

	r.mu.Lock()
	defer r.mu.Unlock()

	h := Health{
		State:               state,
		TotalCalls:          r.totalCalls,
		TotalSuccesses:      r.totalSuccesses,
		TotalFailures:       r.totalFailures,
		ConsecutiveFailures: r.consecutiveFails,
		SuccessRate:         1,
		CurrentBackoffMS:    r.currentBackoff.Milliseconds(),
		UsingFallback:       r.usingFallback,
		LastError:           r.lastError,
	}
	if r.totalCalls > 0 {
		h.SuccessRate = float64(r.totalSuccesses) / float64(r.totalCalls)
	}
	if !r.nextAttempt.IsZero() {
		t := r.nextAttempt
		h.NextAttemptTime = &t
		if wait := r.nextAttempt.Sub(r.clock.Now()); wait > 0 {
			h.WaitTimeMS = wait.Milliseconds()
		}
	}
	return h
}
