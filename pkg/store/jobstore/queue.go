package jobstore

import (
	"sync"

	"github.com/sidequest-dev/foreman/pkg/engine"
)

// queueEntry is one deferred durable write. seq identifies the payload
// version so a drain can tell whether the entry changed under it.
type queueEntry struct {
	id  string
	seq uint64
	job *engine.Job
}

// writeQueue holds writes that could not reach the database. At most one
// entry exists per job id; a newer write for the same id replaces the
// payload but keeps the id's original position, so drains stay in first
// insertion order.
type writeQueue struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]*queueEntry
	order   []string
}

func newWriteQueue() *writeQueue {
	return &writeQueue{entries: make(map[string]*queueEntry)}
}

func (q *writeQueue) push(job *engine.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	if e, ok := q.entries[job.ID]; ok {
		e.seq = q.seq
		e.job = job.Clone()
		return
	}
	q.entries[job.ID] = &queueEntry{id: job.ID, seq: q.seq, job: job.Clone()}
	q.order = append(q.order, job.ID)
}

func (q *writeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// snapshot returns the queued entries in insertion order. Payloads are the
// live pointers; callers only read them.
func (q *writeQueue) snapshot() []queueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queueEntry, 0, len(q.order))
	for _, id := range q.order {
		if e, ok := q.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// removeIfSeq drops the entry only when its payload has not been replaced
// since the snapshot. A newer payload stays queued for the next drain.
func (q *writeQueue) removeIfSeq(id string, seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.seq != seq {
		return false
	}
	delete(q.entries, id)
	for i, qid := range q.order {
		if qid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}
