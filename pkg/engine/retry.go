package engine

import (
	"sync"
	"time"
)

// AbsoluteRetryCap bounds any job family's failure count regardless of the
// requested retry budget. It is the circuit breaker on runaway retry loops:
// once a family has failed this many times no further retry is created.
const AbsoluteRetryCap = 5

// RetryRecord tracks one retry family, keyed by the original job id. The
// same record follows the family across every -retryN successor.
type RetryRecord struct {
	OriginalID  string    `json:"original_id"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastReason  string    `json:"last_reason,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type retryTracker struct {
	mu      sync.Mutex
	records map[string]*RetryRecord
}

func newRetryTracker() *retryTracker {
	return &retryTracker{records: make(map[string]*RetryRecord)}
}

// fail records one more failure for originalID, creating the record on
// first failure, and returns a snapshot of the updated record.
func (t *retryTracker) fail(originalID string, maxAttempts int, reason string, now time.Time) RetryRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.records[originalID]
	if rec == nil {
		rec = &RetryRecord{OriginalID: originalID, MaxAttempts: maxAttempts}
		t.records[originalID] = rec
	}
	rec.Attempts++
	rec.LastReason = reason
	rec.UpdatedAt = now
	return *rec
}

func (t *retryTracker) get(originalID string) (RetryRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[originalID]
	if !ok {
		return RetryRecord{}, false
	}
	return *rec, true
}

func (t *retryTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// pendingRetry is a scheduled retry whose delay has not elapsed yet.
// Closing done cancels it; the timer goroutine and cancellation race is
// settled under the engine lock by whoever removes it from the pending map.
type pendingRetry struct {
	originalID string
	retryID    string
	attempt    int
	done       chan struct{}
}
