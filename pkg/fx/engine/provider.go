// Package engine wires the pipeline catalog, its worker factories and the
// job engine itself.
package engine

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/pkg/activity"
	"github.com/sidequest-dev/foreman/pkg/config/app"
	"github.com/sidequest-dev/foreman/pkg/engine"
	"github.com/sidequest-dev/foreman/pkg/events"
	"github.com/sidequest-dev/foreman/pkg/pipeline"
	"github.com/sidequest-dev/foreman/pkg/secrets"
	"github.com/sidequest-dev/foreman/pkg/store/jobstore"
	"github.com/sidequest-dev/foreman/pkg/store/resultcache"
)

var Module = fx.Module("engine",
	fx.Provide(
		ProvideCatalog,
		ProvideEngine,
	),
	fx.Invoke(
		StartStatsBroadcast,
	),
)

// ProvideCatalog loads the pipeline catalog and applies the configured
// default retry budget to specs that do not set their own.
func ProvideCatalog(cfg app.EngineConfig) (*pipeline.Catalog, error) {
	cat, err := pipeline.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	cat.SetDefaultMaxRetries(cfg.MaxRetries)
	return cat, nil
}

// Params carries everything the engine needs.
type Params struct {
	fx.In

	Cfg     app.AppConfig
	Catalog *pipeline.Catalog
	Secrets *secrets.Resilient
	Store   *jobstore.Store
	Feed    *activity.Feed
	Cache   *resultcache.Cache
	Pub     events.Publisher
}

// ProvideEngine builds the engine over the catalog's worker factories and
// ties its scheduler to the fx lifecycle. Engine events fan out to the
// broadcast publisher, the activity feed and the result cache so each
// reacts without polling.
func ProvideEngine(lc fx.Lifecycle, params Params) (*engine.Engine, error) {
	factories := pipeline.Factories(params.Catalog, params.Secrets)

	opts := []engine.Option{
		engine.WithPublisher(events.MultiPublisher{params.Pub, params.Feed, params.Cache}),
		engine.WithPersister(params.Store),
	}
	disabled := append(params.Catalog.Disabled(), params.Cfg.Engine.DisabledPipelines...)
	if len(disabled) > 0 {
		opts = append(opts, engine.WithDisabledPipelines(disabled...))
	}
	if params.Cfg.Engine.CancelQueuedOnStop {
		opts = append(opts, engine.WithCancelQueuedOnStop())
	}

	eng, err := engine.New(factories, opts...)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return eng.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return eng.Stop(ctx)
		},
	})

	return eng, nil
}

// StartStatsBroadcast publishes a stats heartbeat on a fixed interval so
// dashboards converge even when no job changes state.
func StartStatsBroadcast(lc fx.Lifecycle, eng *engine.Engine, pub events.Publisher, cfg app.EventsConfig) {
	if cfg.StatsInterval <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(cfg.StatsInterval)
				defer ticker.Stop()
				for {
					select {
					case <-loopCtx.Done():
						return
					case <-ticker.C:
						s := eng.Stats()
						pub.Publish(events.StatsUpdate(map[string]any{
							"submitted": s.Submitted,
							"completed": s.Completed,
							"failed":    s.Failed,
							"cancelled": s.Cancelled,
							"retries":   s.Retries,
							"queued":    s.Queued,
							"active":    s.Active,
						}))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
