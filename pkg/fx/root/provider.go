// Package root wires the service banner onto the root route.
package root

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/pkg/config/app"
	echofx "github.com/sidequest-dev/foreman/pkg/fx/echo"
	"github.com/sidequest-dev/foreman/pkg/server"
)

// Module contributes the banner to the route_registrar group.
var Module = fx.Module("root-handler",
	fx.Provide(
		fx.Annotate(
			NewHandler,
			fx.As(new(echofx.RouteRegistrar)),
			fx.ResultTags(`group:"route_registrar"`),
		),
	),
)

var _ echofx.RouteRegistrar = (*Handler)(nil)

// Handler serves the banner: version and build info, plus the public URL
// when one is configured.
type Handler struct {
	publicURL string
}

func NewHandler(cfg app.ServerConfig) *Handler {
	h := &Handler{}
	if cfg.PublicURL != nil {
		h.publicURL = cfg.PublicURL.String()
	}
	return h
}

// RegisterRoutes mounts the banner on GET /.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", echo.WrapHandler(server.NewHandler(h.publicURL)))
}
