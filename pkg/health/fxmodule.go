package health

import (
	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/pkg/engine"
	echofx "github.com/sidequest-dev/foreman/pkg/fx/echo"
	"github.com/sidequest-dev/foreman/pkg/secrets"
	"github.com/sidequest-dev/foreman/pkg/store/jobstore"
)

// ComponentParams collects the components whose state feeds the health
// endpoint. All are optional so partial deployments (e.g. import runs)
// still get a working checker.
type ComponentParams struct {
	fx.In

	Store   *jobstore.Store    `optional:"true"`
	Secrets *secrets.Resilient `optional:"true"`
	Engine  *engine.Engine     `optional:"true"`
}

func registerComponentChecks(checker *Checker, params ComponentParams) {
	if params.Store != nil {
		checker.AddCheck(StoreCheck(params.Store))
	}
	if params.Secrets != nil {
		checker.AddCheck(SecretsCheck(params.Secrets))
	}
	if params.Engine != nil {
		checker.AddCheck(EngineCheck(params.Engine))
	}
}

// Module provides health check functionality
var Module = fx.Module("health",
	fx.Provide(
		NewChecker,
		fx.Annotate(
			NewHandler,
			fx.As(new(echofx.RouteRegistrar)),
			fx.ResultTags(`group:"route_registrar"`),
		),
	),
	fx.Invoke(registerComponentChecks),
)
