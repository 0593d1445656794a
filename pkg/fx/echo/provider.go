// Package echo provides the fx module around the Echo HTTP server: the
// instance itself, middleware collection, route registration, and the
// start/stop lifecycle.
package echo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/pkg/config/app"
)

var log = logging.Logger("fx/echo")

var Module = fx.Module("echo",
	fx.Provide(
		NewEcho,
	),
	fx.Invoke(
		MountRoutes,
		Serve,
	),
)

// ModuleDefaults provides the Echo instance together with the default
// middleware stack (request logging, panic recovery, HTTP metrics).
var ModuleDefaults = fx.Module("echo-with-defaults",
	Module,
	DefaultMiddlewareModule,
)

// RouteRegistrar is implemented by services that mount Echo routes.
type RouteRegistrar interface {
	RegisterRoutes(e *echo.Echo)
}

// Params allows other modules to contribute middleware to the Echo instance.
type Params struct {
	fx.In

	Middleware []echo.MiddlewareFunc `group:"echo-middleware"`
}

// NewEcho creates the Echo instance and applies collected middleware in
// group order.
func NewEcho(params Params) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler

	for _, m := range params.Middleware {
		e.Use(m)
	}

	return e
}

// Server ties the Echo instance to the fx lifecycle.
type Server struct {
	echo *echo.Echo
	addr string
}

// Address returns the listen address the server was configured with.
func (s *Server) Address() string {
	return s.addr
}

func (s *Server) start() {
	log.Infof("http server listening on %s", s.addr)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server stopped unexpectedly: %v", err)
		}
	}()
}

func (s *Server) stop(ctx context.Context) error {
	log.Info("draining http server")
	return s.echo.Shutdown(ctx)
}

// Serve starts the HTTP listener on fx start and drains it on stop.
func Serve(cfg app.AppConfig, e *echo.Echo, lc fx.Lifecycle) *Server {
	s := &Server{
		echo: e,
		addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.start()
			return nil
		},
		OnStop: s.stop,
	})

	return s
}

// Registrars collects every route registrar contributed to the group.
type Registrars struct {
	fx.In

	All []RouteRegistrar `group:"route_registrar"`
}

// MountRoutes mounts each registrar's routes on the shared Echo instance.
func MountRoutes(e *echo.Echo, regs Registrars) {
	log.Infof("mounting routes from %d registrars", len(regs.All))
	for _, r := range regs.All {
		r.RegisterRoutes(e)
	}
}
