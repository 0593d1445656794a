package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// WorkerFactory builds a pipeline's worker on first use. Factories may be
// expensive (spawning helper processes, warming caches), so the registry
// runs at most MaxWorkerInits of them at a time.
type WorkerFactory func(ctx context.Context) (*Worker, error)

// MaxWorkerInits bounds concurrent factory runs across all pipelines.
const MaxWorkerInits = 3

var (
	ErrUnknownPipeline  = errors.New("unknown pipeline")
	ErrPipelineDisabled = errors.New("pipeline disabled")
)

// Registry hands out one memoised worker per pipeline, constructing it
// lazily on first request. Concurrent requests for the same pipeline share
// a single construction.
type Registry struct {
	factories map[string]WorkerFactory
	disabled  map[string]struct{}
	gate      *semaphore.Weighted
	onCreate  func(*Worker)

	mu       sync.Mutex
	workers  map[string]*Worker
	building map[string]chan struct{}
}

// NewRegistry builds a registry over the given factories. Disabled ids are
// known but not runnable: requests for them fail with ErrPipelineDisabled
// instead of ErrUnknownPipeline. onCreate, when set, runs once for every
// successfully constructed worker; the engine uses it to attach dispatch.
func NewRegistry(factories map[string]WorkerFactory, disabled []string, onCreate func(*Worker)) *Registry {
	r := &Registry{
		factories: factories,
		disabled:  make(map[string]struct{}, len(disabled)),
		gate:      semaphore.NewWeighted(MaxWorkerInits),
		onCreate:  onCreate,
		workers:   make(map[string]*Worker),
		building:  make(map[string]chan struct{}),
	}
	for _, id := range disabled {
		r.disabled[id] = struct{}{}
	}
	return r
}

// Get returns the worker for pipelineID, constructing it on first use. A
// failed construction is not memoised; the next Get tries again.
func (r *Registry) Get(ctx context.Context, pipelineID string) (*Worker, error) {
	for {
		r.mu.Lock()
		if w, ok := r.workers[pipelineID]; ok {
			r.mu.Unlock()
			return w, nil
		}
		if _, ok := r.disabled[pipelineID]; ok {
			r.mu.Unlock()
			return nil, fmt.Errorf("pipeline %q: %w", pipelineID, ErrPipelineDisabled)
		}
		factory, ok := r.factories[pipelineID]
		if !ok {
			r.mu.Unlock()
			return nil, fmt.Errorf("pipeline %q: %w", pipelineID, ErrUnknownPipeline)
		}
		if wait, ok := r.building[pipelineID]; ok {
			r.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		wait := make(chan struct{})
		r.building[pipelineID] = wait
		r.mu.Unlock()

		w, err := r.construct(ctx, pipelineID, factory)

		r.mu.Lock()
		delete(r.building, pipelineID)
		if err == nil {
			r.workers[pipelineID] = w
		}
		r.mu.Unlock()
		close(wait)

		if err != nil {
			return nil, fmt.Errorf("initializing pipeline %q: %w", pipelineID, err)
		}
		if r.onCreate != nil {
			r.onCreate(w)
		}
		return w, nil
	}
}

func (r *Registry) construct(ctx context.Context, pipelineID string, factory WorkerFactory) (*Worker, error) {
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.gate.Release(1)
	w, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("factory returned nil worker")
	}
	if w.cfg.PipelineID != pipelineID {
		return nil, fmt.Errorf("factory returned worker for %q", w.cfg.PipelineID)
	}
	return w, nil
}

// Peek returns the worker only if it was already constructed.
func (r *Registry) Peek(pipelineID string) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[pipelineID]
	return w, ok
}

// IsSupported reports whether pipelineID is known and enabled.
func (r *Registry) IsSupported(pipelineID string) bool {
	if _, ok := r.disabled[pipelineID]; ok {
		return false
	}
	_, ok := r.factories[pipelineID]
	return ok
}

// SupportedPipelines lists enabled pipeline ids, sorted.
func (r *Registry) SupportedPipelines() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		if _, off := r.disabled[id]; off {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats snapshots every constructed worker, sorted by pipeline id.
func (r *Registry) Stats() []WorkerStats {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	stats := make([]WorkerStats, 0, len(workers))
	for _, w := range workers {
		stats = append(stats, w.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].PipelineID < stats[j].PipelineID })
	return stats
}

// Shutdown stops dispatch on every constructed worker and closes executors
// that hold resources.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	var errs error
	for _, w := range workers {
		w.Stop()
		if closer, ok := w.cfg.Executor.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("closing pipeline %q executor: %w", w.cfg.PipelineID, err))
			}
		}
	}
	return errs
}
