// Package app assembles the fx modules that make up the foreman runtime.
package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/pkg/config/app"
	"github.com/sidequest-dev/foreman/pkg/fx/activity"
	"github.com/sidequest-dev/foreman/pkg/fx/admin"
	"github.com/sidequest-dev/foreman/pkg/fx/api"
	"github.com/sidequest-dev/foreman/pkg/fx/bus"
	"github.com/sidequest-dev/foreman/pkg/fx/database"
	"github.com/sidequest-dev/foreman/pkg/fx/echo"
	"github.com/sidequest-dev/foreman/pkg/fx/engine"
	"github.com/sidequest-dev/foreman/pkg/fx/reports"
	"github.com/sidequest-dev/foreman/pkg/fx/root"
	"github.com/sidequest-dev/foreman/pkg/fx/secrets"
	"github.com/sidequest-dev/foreman/pkg/fx/store"
	"github.com/sidequest-dev/foreman/pkg/health"
)

func CommonModules(cfg app.AppConfig) fx.Option {
	var modules = []fx.Option{
		// Supply top level config, and it's sub-configs
		// this allows dependencies to be taken on, for example, app.ServerConfig or app.EventsConfig
		// instead of needing to depend on the top level app.AppConfig
		fx.Supply(cfg),
		fx.Supply(cfg.Server),
		fx.Supply(cfg.Storage),
		fx.Supply(cfg.Engine),
		fx.Supply(cfg.Secrets),
		fx.Supply(cfg.Events),
		fx.Supply(cfg.Reports),

		echo.ModuleDefaults, // Echo server with middleware and route registration
		database.Module,     // gorm handle for the job store
		bus.Module,          // subscriber bus and broadcast publisher
		store.Module,        // job store and result cache
		secrets.Module,      // breaker-guarded secret source
		activity.Module,     // in-memory activity feed
		reports.Module,      // report artifacts and retention sweep
		engine.Module,       // pipeline catalog and job engine
		api.Module,          // scan API routes
		root.Module,         // service banner on /
		admin.Module,        // operator endpoints
		health.Module,       // liveness and readiness routes

		fx.Invoke(markReady),
	}

	return fx.Module("common", modules...)
}

// markReady flips the readiness gate once every other component has
// started, and drops it again before teardown begins. Invoked last so its
// hook lands after every module's own.
func markReady(lc fx.Lifecycle, checker *health.Checker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			checker.SetReady(true)
			return nil
		},
		OnStop: func(context.Context) error {
			checker.SetReady(false)
			return nil
		},
	})
}
