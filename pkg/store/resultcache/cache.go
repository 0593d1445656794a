// Package resultcache memoises rendered results responses so repeated
// polls for the same job and format skip re-rendering. Entries are
// invalidated when their job reaches a terminal state.
package resultcache

import (
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sidequest-dev/foreman/pkg/events"
)

// DefaultSize bounds the cache when no explicit size is given.
const DefaultSize = 128

// Key addresses one rendered response.
type Key struct {
	JobID  string
	Format string
}

func (k Key) String() string { return k.JobID + ":" + k.Format }

// Cache is a bounded LRU over rendered payloads. Safe for concurrent use.
type Cache struct {
	lru      *lru.Cache[Key, []byte]
	capacity int
	pub      events.Publisher

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache) error

// WithPublisher routes cache:* events onto the event bus.
func WithPublisher(pub events.Publisher) Option {
	return func(c *Cache) error {
		if pub == nil {
			return errors.New("publisher must not be nil")
		}
		c.pub = pub
		return nil
	}
}

// New builds a cache holding up to size entries; size <= 0 means
// DefaultSize.
func New(size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	inner, err := lru.New[Key, []byte](size)
	if err != nil {
		return nil, err
	}
	c := &Cache{lru: inner, capacity: size, pub: events.NopPublisher{}}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get returns the cached payload for key, announcing the hit or miss.
func (c *Cache) Get(key Key) ([]byte, bool) {
	payload, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
		c.pub.Publish(events.CacheHit(key.String()))
		return payload, true
	}
	c.misses.Add(1)
	c.pub.Publish(events.CacheMiss(key.String()))
	return nil, false
}

// Put stores a rendered payload. The payload is copied so later mutation
// by the caller cannot corrupt the cache.
func (c *Cache) Put(key Key, payload []byte) {
	c.lru.Add(key, append([]byte(nil), payload...))
}

// Invalidate drops every cached format for a job and reports how many
// entries were removed.
func (c *Cache) Invalidate(jobID string) int {
	removed := 0
	for _, key := range c.lru.Keys() {
		if key.JobID != jobID {
			continue
		}
		if c.lru.Remove(key) {
			removed++
			c.invalidations.Add(1)
			c.pub.Publish(events.CacheInvalidate(key.String()))
		}
	}
	return removed
}

// Publish lets the cache sit on the event bus as a subscriber: a terminal
// job event invalidates that job's entries. Cancellation has no bus type
// of its own, so the cancel handler invalidates explicitly.
func (c *Cache) Publish(msg events.Message) {
	switch msg.Type {
	case events.TypeJobCompleted, events.TypeJobFailed:
		if id, ok := msg.Field("job_id"); ok {
			if jobID, ok := id.(string); ok && jobID != "" {
				c.Invalidate(jobID)
			}
		}
	}
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Size          int    `json:"size"`
	Capacity      int    `json:"capacity"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

func (c *Cache) Stats() Stats {
	return Stats{
		Size:          c.lru.Len(),
		Capacity:      c.capacity,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
