package health

import (
	"net/http"

	"github.com/labstack/echo/v4"

	echofx "github.com/sidequest-dev/foreman/pkg/fx/echo"
)

var _ echofx.RouteRegistrar = (*Handler)(nil)

// Handler serves the health surfaces: /health (and its /healthz alias)
// runs the registered component checks, /livez answers whenever the
// process can serve requests, /readyz flips once startup completes.
type Handler struct {
	checker *Checker
}

func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/healthz", h.Health)
	e.GET("/livez", h.Liveness)
	e.GET("/readyz", h.Readiness)
}

// respond picks the HTTP code for a health response. A degraded status
// still answers 200: the process keeps serving while a component catches
// up, and the body carries the detail.
func respond(c echo.Context, resp Response) error {
	code := http.StatusOK
	if resp.Status == StatusFailed {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func (h *Handler) Health(c echo.Context) error {
	return respond(c, h.checker.HealthCheck(c.Request().Context()))
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, h.checker.LivenessCheck())
}

func (h *Handler) Readiness(c echo.Context) error {
	return respond(c, h.checker.ReadinessCheck())
}
