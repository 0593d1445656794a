// Package admin wires operator endpoints, currently just remote shutdown.
package admin

import (
	"net/http"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	echofx "github.com/sidequest-dev/foreman/pkg/fx/echo"
)

var log = logging.Logger("fx/admin")

// Module provides the operator endpoints.
var Module = fx.Module("admin",
	fx.Provide(
		fx.Annotate(
			NewHandler,
			fx.As(new(echofx.RouteRegistrar)),
			fx.ResultTags(`group:"route_registrar"`),
		),
	),
)

var _ echofx.RouteRegistrar = (*Handler)(nil)

// Ack is the payload returned when a shutdown request is accepted. The
// shutdown CLI command decodes it to echo the server's message back to
// the operator.
type Ack struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Handler asks the fx application to stop when the shutdown endpoint is hit.
type Handler struct {
	shutdowner fx.Shutdowner
	shutting   atomic.Bool
}

func NewHandler(shutdowner fx.Shutdowner) *Handler {
	return &Handler{shutdowner: shutdowner}
}

// RegisterRoutes mounts the admin group.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Group("/admin").POST("/shutdown", h.handleShutdown)
}

// handleShutdown triggers a graceful stop of the whole application. Repeat
// requests while the stop is in flight get a 503.
func (h *Handler) handleShutdown(c echo.Context) error {
	if !h.shutting.CompareAndSwap(false, true) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is already shutting down")
	}

	log.Info("received shutdown request via admin endpoint")
	if err := h.shutdowner.Shutdown(); err != nil {
		log.Errorf("failed to shutdown gracefully: %v", err)
		return err
	}

	return c.JSON(http.StatusAccepted, Ack{
		Success:   true,
		Message:   "shutdown initiated",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
