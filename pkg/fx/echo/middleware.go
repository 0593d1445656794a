package echo

import (
	"net/http"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideRequestLogger provides request logging through our logging system.
func ProvideRequestLogger() echo.MiddlewareFunc {
	return RequestLogger(logging.Logger("server"))
}

// ProvideRecoverMiddleware provides the Echo recover middleware
func ProvideRecoverMiddleware() echo.MiddlewareFunc {
	return echomiddleware.Recover()
}

// ProvideTelemetryMiddleware provides HTTP server metrics via otelecho. The
// instruments it emits are aggregated with the bucket views installed by the
// telemetry provider.
func ProvideTelemetryMiddleware() echo.MiddlewareFunc {
	return otelecho.Middleware("foreman")
}

// DefaultMiddlewareModule provides common middleware for the Echo server
var DefaultMiddlewareModule = fx.Module("echo-default-middleware",
	fx.Provide(
		fx.Annotate(
			ProvideRecoverMiddleware,
			fx.ResultTags(`group:"echo-middleware"`),
		),
		fx.Annotate(
			ProvideRequestLogger,
			fx.ResultTags(`group:"echo-middleware"`),
		),
		fx.Annotate(
			ProvideTelemetryMiddleware,
			fx.ResultTags(`group:"echo-middleware"`),
		),
	),
)

// RequestLogger logs request outcomes at a level keyed to the response
// status: 5xx as errors, 4xx as warnings, everything else as info.
func RequestLogger(logger *logging.ZapEventLogger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:        true,
		LogLatency:       true,
		LogRemoteIP:      true,
		LogHost:          true,
		LogURI:           true,
		LogUserAgent:     true,
		LogStatus:        true,
		LogContentLength: true,
		LogResponseSize:  true,
		LogError:         true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.String("host", v.Host),
				zap.String("remote_ip", v.RemoteIP),
				zap.Duration("latency", v.Latency),
				zap.String("user_agent", v.UserAgent),
				zap.String("content_length", v.ContentLength),
				zap.Int64("response_size", v.ResponseSize),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= http.StatusInternalServerError:
				logger.WithOptions(zap.Fields(fields...)).Error("server error")
			case v.Status >= http.StatusBadRequest:
				logger.WithOptions(zap.Fields(fields...)).Warn("client error")
			default:
				logger.WithOptions(zap.Fields(fields...)).Info("request completed")
			}
			return nil
		},
	})
}
