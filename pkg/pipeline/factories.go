package pipeline

import (
	"context"

	"github.com/sidequest-dev/foreman/pkg/engine"
)

// Factories turns every enabled catalog entry into a worker factory for
// the engine's registry. Disabled entries are skipped here; pass
// Catalog.Disabled to the registry so submissions to them fail with the
// disabled error rather than the unknown one.
func Factories(cat *Catalog, secrets SecretProvider) map[string]engine.WorkerFactory {
	out := make(map[string]engine.WorkerFactory, len(cat.specs))
	for i := range cat.specs {
		spec := cat.specs[i]
		if !spec.IsEnabled() {
			continue
		}
		out[spec.ID] = factoryFor(spec, secrets)
	}
	return out
}

func factoryFor(spec Spec, secrets SecretProvider) engine.WorkerFactory {
	return func(ctx context.Context) (*engine.Worker, error) {
		kind := engine.Kind(spec.Kind)
		if kind == "" {
			kind = engine.KindTask
		}
		log.Debugw("building pipeline worker", "pipeline_id", spec.ID, "kind", kind)
		return engine.NewWorker(engine.WorkerConfig{
			PipelineID:    spec.ID,
			Kind:          kind,
			MaxConcurrent: spec.MaxConcurrent,
			QueueCapacity: spec.QueueCapacity,
			MaxRetries:    spec.MaxRetries,
			Executor:      NewRunner(spec, secrets),
		})
	}
}
