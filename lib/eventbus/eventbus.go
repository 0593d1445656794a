// Package eventbus implements a channel-filtered publish/subscribe fan-out.
// Subscribers register a transport send function and a set of channel names;
// broadcasts deliver to every subscriber whose set contains the channel.
// Delivery is best-effort and per-subscriber FIFO: each subscriber has its
// own buffered outbound queue and writer goroutine, so one slow or broken
// transport never affects the others.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
)

var log = logging.Logger("eventbus")

const (
	// DefaultProbeInterval is how often subscriber transports are probed
	// for liveness. Probe failures drop the subscriber.
	DefaultProbeInterval = 30 * time.Second
	// DefaultBufferSize is the per-subscriber outbound queue depth. When a
	// subscriber's queue is full further messages to it are dropped.
	DefaultBufferSize = 64
)

// SendFunc delivers one message over a subscriber's transport.
type SendFunc[T any] func(msg T) error

// ProbeFunc checks that a subscriber's transport is still alive.
type ProbeFunc func() error

type Config struct {
	ProbeInterval time.Duration
	BufferSize    int
	Clock         clock.Clock
}

type Option func(c *Config) error

func WithProbeInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return errors.New("probe interval must be positive")
		}
		c.ProbeInterval = d
		return nil
	}
}

func WithBufferSize(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return errors.New("buffer size must be at least 1")
		}
		c.BufferSize = n
		return nil
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Config) error {
		if clk == nil {
			return errors.New("clock cannot be nil")
		}
		c.Clock = clk
		return nil
	}
}

// ClientInfo is a point-in-time snapshot of one subscriber.
type ClientInfo struct {
	ID          string    `json:"client_id"`
	Channels    []string  `json:"channels"`
	ConnectedAt time.Time `json:"connected_at"`
	Dropped     uint64    `json:"dropped_messages"`
}

type subscriber[T any] struct {
	id          string
	channels    mapset.Set[string]
	connectedAt time.Time
	send        SendFunc[T]
	probe       ProbeFunc
	outbound    chan T
	done        chan struct{}
	closeOnce   sync.Once
	dropped     atomic.Uint64
}

func (s *subscriber[T]) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Bus fans messages out to registered subscribers.
type Bus[T any] struct {
	cfg Config

	mu   sync.RWMutex
	subs map[string]*subscriber[T]

	// shutdown management
	stateMu     sync.Mutex
	stopping    bool
	startCtx    context.Context
	startCancel context.CancelFunc
	startWg     sync.WaitGroup
}

func New[T any](opts ...Option) (*Bus[T], error) {
	c := &Config{
		ProbeInterval: DefaultProbeInterval,
		BufferSize:    DefaultBufferSize,
		Clock:         clock.New(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return &Bus[T]{
		cfg:  *c,
		subs: make(map[string]*subscriber[T]),
	}, nil
}

func (b *Bus[T]) Start(ctx context.Context) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.startCtx != nil {
		return errors.New("event bus already started")
	}
	b.startCtx, b.startCancel = context.WithCancel(ctx)

	b.startWg.Add(1)
	go b.probeLoop()

	log.Info("event bus started")
	return nil
}

// Stop rejects new registrations, disconnects every subscriber and waits
// for the writer goroutines to drain, up to ctx's deadline.
func (b *Bus[T]) Stop(ctx context.Context) error {
	b.stateMu.Lock()
	if b.startCtx == nil {
		b.stateMu.Unlock()
		return errors.New("event bus not started")
	}
	if b.stopping {
		b.stateMu.Unlock()
		return errors.New("event bus already stopping")
	}
	b.stopping = true
	b.startCancel()
	b.stateMu.Unlock()

	b.mu.Lock()
	for _, sub := range b.subs {
		sub.close()
	}
	b.subs = make(map[string]*subscriber[T])
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.startWg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("event bus stop timeout: %w", ctx.Err())
	case <-done:
		log.Info("event bus stopped")
		return nil
	}
}

// Register adds a subscriber. A second registration under the same id
// replaces the first. The probe may be nil for transports with no cheap
// liveness check.
func (b *Bus[T]) Register(id string, send SendFunc[T], probe ProbeFunc, channels ...string) error {
	if send == nil {
		return errors.New("subscriber send function cannot be nil")
	}
	b.stateMu.Lock()
	if b.startCtx == nil {
		b.stateMu.Unlock()
		return errors.New("event bus not started")
	}
	if b.stopping {
		b.stateMu.Unlock()
		return errors.New("event bus is stopping")
	}
	b.stateMu.Unlock()

	sub := &subscriber[T]{
		id:          id,
		channels:    mapset.NewSet[string](channels...),
		connectedAt: b.cfg.Clock.Now().UTC(),
		send:        send,
		probe:       probe,
		outbound:    make(chan T, b.cfg.BufferSize),
		done:        make(chan struct{}),
	}

	b.mu.Lock()
	if prev, ok := b.subs[id]; ok {
		log.Warnw("replacing existing subscriber", "client_id", id)
		prev.close()
	}
	b.subs[id] = sub
	b.mu.Unlock()

	b.startWg.Add(1)
	go b.writeLoop(sub)

	log.Debugw("subscriber registered", "client_id", id, "channels", channels)
	return nil
}

// Deregister removes a subscriber and stops its writer.
func (b *Bus[T]) Deregister(id string) bool {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	sub.close()
	log.Debugw("subscriber deregistered", "client_id", id)
	return true
}

// Subscribe adds channels to a subscriber's set and returns the resulting
// set, sorted. Adding an already-held channel is a no-op.
func (b *Bus[T]) Subscribe(id string, channels ...string) ([]string, error) {
	b.mu.RLock()
	sub, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown subscriber %q", id)
	}
	for _, ch := range channels {
		sub.channels.Add(ch)
	}
	return sortedChannels(sub), nil
}

// Unsubscribe removes channels from a subscriber's set.
func (b *Bus[T]) Unsubscribe(id string, channels ...string) ([]string, error) {
	b.mu.RLock()
	sub, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown subscriber %q", id)
	}
	for _, ch := range channels {
		sub.channels.Remove(ch)
	}
	return sortedChannels(sub), nil
}

// Channels returns a subscriber's current channel set, sorted.
func (b *Bus[T]) Channels(id string) ([]string, bool) {
	b.mu.RLock()
	sub, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return sortedChannels(sub), true
}

// Broadcast queues msg for every subscriber listening on channel. An empty
// channel delivers to all live subscribers. Returns the number of
// subscribers the message was queued for; subscribers with a full buffer
// are skipped.
func (b *Bus[T]) Broadcast(msg T, channel string) int {
	b.mu.RLock()
	targets := make([]*subscriber[T], 0, len(b.subs))
	for _, sub := range b.subs {
		if channel == "" || sub.channels.ContainsOne(channel) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	queued := 0
	for _, sub := range targets {
		if b.enqueue(sub, msg) {
			queued++
		}
	}
	return queued
}

// SendToClient queues msg for a single subscriber regardless of its
// channel set. Returns false if the subscriber is unknown or its buffer
// is full.
func (b *Bus[T]) SendToClient(id string, msg T) bool {
	b.mu.RLock()
	sub, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	return b.enqueue(sub, msg)
}

// ClientInfo snapshots every live subscriber, ordered by id.
func (b *Bus[T]) ClientInfo() []ClientInfo {
	b.mu.RLock()
	infos := make([]ClientInfo, 0, len(b.subs))
	for _, sub := range b.subs {
		infos = append(infos, ClientInfo{
			ID:          sub.id,
			Channels:    sortedChannels(sub),
			ConnectedAt: sub.connectedAt,
			Dropped:     sub.dropped.Load(),
		})
	}
	b.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of live subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus[T]) enqueue(sub *subscriber[T], msg T) bool {
	select {
	case <-sub.done:
		return false
	default:
	}
	select {
	case sub.outbound <- msg:
		return true
	default:
		sub.dropped.Add(1)
		log.Debugw("subscriber buffer full, dropping message", "client_id", sub.id)
		return false
	}
}

func (b *Bus[T]) writeLoop(sub *subscriber[T]) {
	defer b.startWg.Done()
	for {
		select {
		case <-b.startCtx.Done():
			return
		case <-sub.done:
			return
		case msg := <-sub.outbound:
			if err := sub.send(msg); err != nil {
				log.Debugw("dropping subscriber after send failure", "client_id", sub.id, "error", err)
				b.Deregister(sub.id)
				return
			}
		}
	}
}

func (b *Bus[T]) probeLoop() {
	defer b.startWg.Done()
	ticker := b.cfg.Clock.Ticker(b.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.startCtx.Done():
			return
		case <-ticker.C:
			b.probeAll()
		}
	}
}

func (b *Bus[T]) probeAll() {
	b.mu.RLock()
	targets := make([]*subscriber[T], 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.probe != nil {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.probe(); err != nil {
			log.Infow("dropping unresponsive subscriber", "client_id", sub.id, "error", err)
			b.Deregister(sub.id)
		}
	}
}

func sortedChannels[T any](sub *subscriber[T]) []string {
	channels := sub.channels.ToSlice()
	sort.Strings(channels)
	return channels
}
