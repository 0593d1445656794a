package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func nopExecutor() Executor {
	return ExecutorFunc(func(context.Context, *Job) (json.RawMessage, error) {
		return nil, nil
	})
}

func TestRegistryConstructsLazilyAndMemoises(t *testing.T) {
	var built atomic.Int32
	reg := NewRegistry(map[string]WorkerFactory{
		"scan": func(context.Context) (*Worker, error) {
			built.Add(1)
			time.Sleep(10 * time.Millisecond)
			return NewWorker(WorkerConfig{PipelineID: "scan", Executor: nopExecutor()})
		},
	}, nil, nil)

	require.Zero(t, built.Load(), "construction waits for first use")

	const callers = 8
	workers := make([]*Worker, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := reg.Get(context.Background(), "scan")
			require.NoError(t, err)
			workers[i] = w
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, built.Load(), "concurrent callers share one construction")
	for _, w := range workers[1:] {
		require.Same(t, workers[0], w)
	}
}

func TestRegistryUnknownAndDisabled(t *testing.T) {
	reg := NewRegistry(map[string]WorkerFactory{
		"scan": func(context.Context) (*Worker, error) {
			return NewWorker(WorkerConfig{PipelineID: "scan", Executor: nopExecutor()})
		},
	}, []string{"legacy-export"}, nil)

	_, err := reg.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownPipeline)

	_, err = reg.Get(context.Background(), "legacy-export")
	require.ErrorIs(t, err, ErrPipelineDisabled)

	require.True(t, reg.IsSupported("scan"))
	require.False(t, reg.IsSupported("legacy-export"))
	require.False(t, reg.IsSupported("nope"))
}

func TestRegistrySupportedPipelinesSorted(t *testing.T) {
	factory := func(id string) WorkerFactory {
		return func(context.Context) (*Worker, error) {
			return NewWorker(WorkerConfig{PipelineID: id, Executor: nopExecutor()})
		}
	}
	reg := NewRegistry(map[string]WorkerFactory{
		"zeta":  factory("zeta"),
		"alpha": factory("alpha"),
		"mid":   factory("mid"),
		"off":   factory("off"),
	}, []string{"off"}, nil)

	require.Equal(t, []string{"alpha", "mid", "zeta"}, reg.SupportedPipelines())
}

func TestRegistryFailedConstructionIsNotMemoised(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry(map[string]WorkerFactory{
		"fragile": func(context.Context) (*Worker, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("warmup failed")
			}
			return NewWorker(WorkerConfig{PipelineID: "fragile", Executor: nopExecutor()})
		},
	}, nil, nil)

	_, err := reg.Get(context.Background(), "fragile")
	require.Error(t, err)

	w, err := reg.Get(context.Background(), "fragile")
	require.NoError(t, err)
	require.NotNil(t, w)
	require.EqualValues(t, 2, calls.Load())
}

func TestRegistryBoundsConcurrentConstruction(t *testing.T) {
	var current, peak atomic.Int32
	factories := make(map[string]WorkerFactory)
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("pipeline-%d", i)
		factories[id] = func(context.Context) (*Worker, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(15 * time.Millisecond)
			current.Add(-1)
			return NewWorker(WorkerConfig{PipelineID: id, Executor: nopExecutor()})
		}
	}
	reg := NewRegistry(factories, nil, nil)

	var wg sync.WaitGroup
	for id := range factories {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := reg.Get(context.Background(), id)
			require.NoError(t, err)
		}(id)
	}
	wg.Wait()

	require.LessOrEqual(t, peak.Load(), int32(MaxWorkerInits))
	require.Len(t, reg.Stats(), 8)
}

func TestRegistryOnCreateHookRuns(t *testing.T) {
	var attached []string
	var mu sync.Mutex
	reg := NewRegistry(map[string]WorkerFactory{
		"scan": func(context.Context) (*Worker, error) {
			return NewWorker(WorkerConfig{PipelineID: "scan", Executor: nopExecutor()})
		},
	}, nil, func(w *Worker) {
		mu.Lock()
		attached = append(attached, w.PipelineID())
		mu.Unlock()
	})

	_, err := reg.Get(context.Background(), "scan")
	require.NoError(t, err)
	_, err = reg.Get(context.Background(), "scan")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"scan"}, attached, "hook runs once per construction")
}

func TestRegistryFactoryWiring(t *testing.T) {
	reg := NewRegistry(map[string]WorkerFactory{
		"mismatched": func(context.Context) (*Worker, error) {
			return NewWorker(WorkerConfig{PipelineID: "other", Executor: nopExecutor()})
		},
		"nil": func(context.Context) (*Worker, error) {
			return nil, nil
		},
	}, nil, nil)

	_, err := reg.Get(context.Background(), "mismatched")
	require.Error(t, err)

	_, err = reg.Get(context.Background(), "nil")
	require.Error(t, err)
}

func TestWorkerConfigDefaults(t *testing.T) {
	w, err := NewWorker(WorkerConfig{PipelineID: "p", Executor: nopExecutor()})
	require.NoError(t, err)
	st := w.Stats()
	require.Equal(t, DefaultMaxConcurrent, st.MaxConcurrent)
	require.Equal(t, KindTask, st.Kind)
	require.Zero(t, st.QueueCapacity)

	_, err = NewWorker(WorkerConfig{Executor: nopExecutor()})
	require.Error(t, err, "pipeline id is required")

	_, err = NewWorker(WorkerConfig{PipelineID: "p"})
	require.Error(t, err, "executor is required")
}
