// Package api wires the scan API handler into the HTTP server.
package api

import (
	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/lib/eventbus"
	"github.com/sidequest-dev/foreman/pkg/api"
	"github.com/sidequest-dev/foreman/pkg/engine"
	echofx "github.com/sidequest-dev/foreman/pkg/fx/echo"
	"github.com/sidequest-dev/foreman/pkg/events"
	"github.com/sidequest-dev/foreman/pkg/reports"
	"github.com/sidequest-dev/foreman/pkg/store/resultcache"
)

var Module = fx.Module("api",
	fx.Provide(
		fx.Annotate(
			NewRoutes,
			fx.ResultTags(`group:"route_registrar"`),
		),
	),
)

// Params carries the handler dependencies.
type Params struct {
	fx.In

	Engine  *engine.Engine
	Reports *reports.Coordinator
	Cache   *resultcache.Cache
	Bus     *eventbus.Bus[events.Message]
}

// NewRoutes builds the scan API handler for route registration.
func NewRoutes(params Params) echofx.RouteRegistrar {
	return api.NewHandler(params.Engine, params.Reports, params.Cache, params.Bus)
}
