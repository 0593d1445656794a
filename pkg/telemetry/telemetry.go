// Package telemetry wraps the OpenTelemetry metrics SDK for foreman's
// instrumentation. Metrics export over OTLP/HTTP to any compatible
// collector.
//
// Most code goes through the process-global instance:
//
//	telemetry.Initialize(ctx, telemetry.Config{
//	    ServiceName:    "foreman",
//	    ServiceVersion: build.Version,
//	    Endpoint:       "localhost:4318",
//	})
//	defer telemetry.Shutdown(ctx)
//
// Packages then declare their instruments once and record freely:
//
//	counter, _ := telemetry.Global().NewCounter(telemetry.CounterConfig{
//	    Name:        "engine_job_success",
//	    Description: "Jobs that completed successfully",
//	})
//	counter.Inc(ctx, telemetry.StringAttr("pipeline_id", "code-analysis"))
//
//	timer, _ := telemetry.Global().NewTimer(telemetry.TimerConfig{
//	    Name:       "engine_job_duration",
//	    Boundaries: telemetry.LatencyBoundaries,
//	})
//	op := timer.Start(ctx)
//	defer op.End()
//
// Before Initialize runs (or when it is skipped because no endpoint is
// configured) the global instance is a no-op, so recording sites never
// guard against a missing provider. Tests inject a manual-reader meter
// through NewWithMeter.
package telemetry

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var log = logging.Logger("telemetry")

// Telemetry owns a meter and, when it was built by New, the exporting
// provider behind it.
type Telemetry struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
}

// New builds an exporting instance from cfg. The returned instance owns
// its provider; call Shutdown to flush and stop exporting.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	provider, err := newMeterProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Telemetry{
		meter:    provider.Meter(cfg.ServiceName),
		provider: provider,
	}, nil
}

// NewWithMeter wraps an externally owned meter. Shutdown is a no-op;
// whoever built the meter's provider flushes it. Used by tests with
// manual readers.
func NewWithMeter(meter metric.Meter) *Telemetry {
	return &Telemetry{meter: meter}
}

// Meter exposes the underlying meter for callers that register their own
// observables.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Shutdown flushes pending metrics and stops the provider, when this
// instance owns one.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StringAttr is shorthand for a string attribute.
func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Int64Attr is shorthand for an int64 attribute.
func Int64Attr(key string, value int64) attribute.KeyValue {
	return attribute.Int64(key, value)
}

// LatencyBoundaries covers job and pipeline execution times in
// milliseconds, from sub-second dispatches up to multi-minute analysis
// runs.
var LatencyBoundaries = []float64{
	0.1, 0.5, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000,
	30000, 60000, 120000, 300000, 600000,
}
