package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const defaultPublishInterval = 30 * time.Second

// Config describes the service identity and collector connection for
// metric export. Endpoint is the OTLP/HTTP collector address and is
// required: callers that want telemetry off skip initialization entirely
// and rely on the no-op global.
type Config struct {
	ServiceName     string
	ServiceVersion  string
	InstanceID      string
	Environment     string
	Endpoint        string
	Insecure        bool
	Headers         map[string]string
	PublishInterval time.Duration
}

func newMeterProvider(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("metrics endpoint is required")
	}

	exporter, err := otlpmetrichttp.New(ctx, cfg.exporterOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, err
	}

	interval := cfg.PublishInterval
	if interval <= 0 {
		interval = defaultPublishInterval
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		),
		// HTTP histograms get buckets sized for long-running scan
		// submissions and report downloads.
		sdkmetric.WithView(
			HTTPServerRequestDurationView,
			HTTPServerRequestBodySizeView,
			HTTPServerResponseBodySizeView,
		),
	)
	otel.SetMeterProvider(provider)
	return provider, nil
}

func (c Config) exporterOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(c.Endpoint)}
	if c.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(c.Headers))
	}
	return opts
}

func (c Config) resource(ctx context.Context) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(c.ServiceName),
		semconv.ServiceVersionKey.String(c.ServiceVersion),
	}
	if c.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceIDKey.String(c.InstanceID))
	}
	if c.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", c.Environment))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}
	return res, nil
}
