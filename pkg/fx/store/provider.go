// Package store wires the persistence components: the gorm-backed job
// store and the rendered-results cache.
package store

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/sidequest-dev/foreman/pkg/config/app"
	"github.com/sidequest-dev/foreman/pkg/events"
	"github.com/sidequest-dev/foreman/pkg/store/jobstore"
	"github.com/sidequest-dev/foreman/pkg/store/resultcache"
)

var Module = fx.Module("store",
	fx.Provide(
		NewJobStore,
		NewResultCache,
	),
)

// JobStoreParams carries the job store dependencies. The database handle
// is named so further gorm handles can coexist in the container.
type JobStoreParams struct {
	fx.In

	DB  *gorm.DB `name:"jobstore_db"`
	Cfg app.StorageConfig
	Pub events.Publisher
}

// NewJobStore builds the job store and runs migration plus mirror warm-up
// on start.
func NewJobStore(lc fx.Lifecycle, params JobStoreParams) (*jobstore.Store, error) {
	store, err := jobstore.New(params.DB,
		jobstore.WithPublisher(params.Pub),
		jobstore.WithDBPath(params.Cfg.JobStore.DBPath),
	)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.Init(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return store.Close(ctx)
		},
	})

	return store, nil
}

// NewResultCache builds the LRU over rendered results documents.
func NewResultCache(cfg app.EventsConfig, pub events.Publisher) (*resultcache.Cache, error) {
	return resultcache.New(cfg.ResultCache.Size, resultcache.WithPublisher(pub))
}
