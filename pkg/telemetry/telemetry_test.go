package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/sidequest-dev/foreman/pkg/telemetry"
)

// newTestTelemetry wires a Telemetry onto a manual reader so tests can
// pull recorded metrics synchronously.
func newTestTelemetry(t *testing.T) (*telemetry.Telemetry, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() {
		require.NoError(t, provider.Shutdown(context.Background()))
	})
	return telemetry.NewWithMeter(provider.Meter("foreman-test")), reader
}

func collect(t *testing.T, reader *metric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func metricByName(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func attrValue(set map[string]string, dp metricdata.HistogramDataPoint[float64]) bool {
	for k, want := range set {
		got, ok := dp.Attributes.Value(attribute.Key(k))
		if !ok || got.AsString() != want {
			return false
		}
	}
	return true
}

func TestCounterAggregatesAcrossSeries(t *testing.T) {
	ctx := context.Background()
	tel, reader := newTestTelemetry(t)

	counter, err := tel.NewCounter(telemetry.CounterConfig{
		Name:        "engine_job_success",
		Description: "Jobs that completed successfully",
	})
	require.NoError(t, err)

	counter.Inc(ctx)
	counter.Add(ctx, 4)
	counter.Inc(ctx, telemetry.StringAttr("pipeline_id", "duplicate-detection"))

	m, ok := metricByName(collect(t, reader), "engine_job_success")
	require.True(t, ok)
	require.Equal(t, "Jobs that completed successfully", m.Description)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.True(t, sum.IsMonotonic)

	var bare, attributed int64
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Len() == 0 {
			bare = dp.Value
		} else {
			attributed = dp.Value
		}
	}
	require.Equal(t, int64(5), bare, "unattributed series sums Inc and Add")
	require.Equal(t, int64(1), attributed, "pipeline series tracked separately")
}

func TestCounterConfiguredAttributesRideAlong(t *testing.T) {
	ctx := context.Background()
	tel, reader := newTestTelemetry(t)

	counter, err := tel.NewCounter(telemetry.CounterConfig{
		Name:       "store_queued_writes_total",
		Attributes: map[string]string{"component": "jobstore"},
	})
	require.NoError(t, err)

	counter.Inc(ctx)

	m, ok := metricByName(collect(t, reader), "store_queued_writes_total")
	require.True(t, ok)
	sum := m.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)

	v, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("component"))
	require.True(t, ok, "configured attribute attached to the recording")
	require.Equal(t, "jobstore", v.AsString())
}

func TestGaugeKeepsLastValuePerSeries(t *testing.T) {
	ctx := context.Background()
	tel, reader := newTestTelemetry(t)

	gauge, err := tel.NewGauge(telemetry.GaugeConfig{
		Name: "engine_jobs_in_flight",
		Unit: "{job}",
	})
	require.NoError(t, err)

	gauge.Record(ctx, 12)
	gauge.Record(ctx, 3)
	gauge.Record(ctx, 7, telemetry.StringAttr("pipeline_id", "code-analysis"))

	m, ok := metricByName(collect(t, reader), "engine_jobs_in_flight")
	require.True(t, ok)
	require.Equal(t, "{job}", m.Unit)

	data, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	for _, dp := range data.DataPoints {
		if dp.Attributes.Len() == 0 {
			require.Equal(t, int64(3), dp.Value, "bare series holds the last recording")
		} else {
			require.Equal(t, int64(7), dp.Value)
		}
	}
}

func TestTimerConvertsDurationsToMilliseconds(t *testing.T) {
	ctx := context.Background()
	tel, reader := newTestTelemetry(t)

	timer, err := tel.NewTimer(telemetry.TimerConfig{
		Name:       "engine_job_duration",
		Boundaries: telemetry.LatencyBoundaries,
	})
	require.NoError(t, err)

	timer.Record(ctx, 25*time.Millisecond)
	timer.Record(ctx, 150*time.Millisecond)
	timer.Record(ctx, 1500*time.Microsecond) // fractional milliseconds survive

	m, ok := metricByName(collect(t, reader), "engine_job_duration")
	require.True(t, ok)
	require.Equal(t, "ms", m.Unit, "unit defaults to milliseconds")

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	require.Equal(t, uint64(3), hist.DataPoints[0].Count)
	require.InDelta(t, 176.5, hist.DataPoints[0].Sum, 0.001)
}

func TestStopwatchMergesAttributes(t *testing.T) {
	ctx := context.Background()
	tel, reader := newTestTelemetry(t)

	timer, err := tel.NewTimer(telemetry.TimerConfig{Name: "scan_phase_duration"})
	require.NoError(t, err)

	op := timer.Start(ctx, telemetry.StringAttr("phase", "parse"))
	time.Sleep(5 * time.Millisecond)
	op.End(telemetry.StringAttr("outcome", "ok"))

	m, ok := metricByName(collect(t, reader), "scan_phase_duration")
	require.True(t, ok)
	hist := m.Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)

	dp := hist.DataPoints[0]
	require.Equal(t, uint64(1), dp.Count)
	require.GreaterOrEqual(t, dp.Sum, 5.0, "at least the slept 5ms")
	require.True(t, attrValue(map[string]string{"phase": "parse", "outcome": "ok"}, dp),
		"Start and End attributes both present")
}

func TestInfoReportsOneWithLabels(t *testing.T) {
	ctx := context.Background()
	tel, reader := newTestTelemetry(t)

	info, err := tel.NewInfo(telemetry.InfoConfig{
		Name:        "foreman_server_info",
		Description: "Build and runtime information",
		Labels:      map[string]string{"version": "v0.3.0", "commit": "abc123"},
	})
	require.NoError(t, err)

	info.Record(ctx, telemetry.StringAttr("environment", "staging"))

	m, ok := metricByName(collect(t, reader), "foreman_server_info")
	require.True(t, ok)
	data, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)

	dp := data.DataPoints[0]
	require.Equal(t, 1.0, dp.Value, "info metrics always report 1")
	for key, want := range map[string]string{
		"version":     "v0.3.0",
		"commit":      "abc123",
		"environment": "staging",
	} {
		v, ok := dp.Attributes.Value(attribute.Key(key))
		require.True(t, ok, "label %s present", key)
		require.Equal(t, want, v.AsString())
	}
}

func TestShutdownWithoutProviderIsNoop(t *testing.T) {
	tel := telemetry.NewWithMeter(metric.NewMeterProvider().Meter("bare"))
	require.NoError(t, tel.Shutdown(context.Background()))
}
