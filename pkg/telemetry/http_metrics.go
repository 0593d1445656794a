package telemetry

import (
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconvhttp "go.opentelemetry.io/otel/semconv/v1.37.0/httpconv"
)

// HTTPServerDurationBounds extends the default middleware buckets (0.005-10s
// from the otelecho instrumentation) to capture long scan submissions and
// report downloads up to 10 minutes.
var HTTPServerDurationBounds = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1,
	0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
	30, 60, 120, 300, 600,
}

// HTTPBodySizeBounds buckets request/response body sizes (bytes) up to 1 GiB,
// sized for report payloads and bulk result imports.
var HTTPBodySizeBounds = []float64{
	1 << 10, 4 << 10, 16 << 10, 64 << 10, 256 << 10,
	1 << 20, 4 << 20, 16 << 20, 64 << 20, 256 << 20,
	1 << 30,
}

var (
	HTTPServerRequestDurationView = sdkmetric.NewView(
		sdkmetric.Instrument{
			Name:        semconvhttp.ServerRequestDuration{}.Name(),
			Description: semconvhttp.ServerRequestDuration{}.Description(),
			Kind:        sdkmetric.InstrumentKindHistogram,
			Unit:        semconvhttp.ServerRequestDuration{}.Unit(),
		},
		sdkmetric.Stream{
			Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: HTTPServerDurationBounds,
			},
		},
	)
	HTTPServerRequestBodySizeView = sdkmetric.NewView(
		sdkmetric.Instrument{
			Name:        semconvhttp.ServerRequestBodySize{}.Name(),
			Description: semconvhttp.ServerRequestBodySize{}.Description(),
			Kind:        sdkmetric.InstrumentKindHistogram,
			Unit:        semconvhttp.ServerRequestBodySize{}.Unit(),
		},
		sdkmetric.Stream{
			Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: HTTPBodySizeBounds,
			},
		},
	)
	HTTPServerResponseBodySizeView = sdkmetric.NewView(
		sdkmetric.Instrument{
			Name:        semconvhttp.ServerResponseBodySize{}.Name(),
			Description: semconvhttp.ServerResponseBodySize{}.Description(),
			Kind:        sdkmetric.InstrumentKindHistogram,
			Unit:        semconvhttp.ServerResponseBodySize{}.Unit(),
		},
		sdkmetric.Stream{
			Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: HTTPBodySizeBounds,
			},
		},
	)
)
