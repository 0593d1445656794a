package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// tagset holds the attributes an instrument was built with. Recordings
// merge them with call-site attributes; the merge allocates per call
// because otel retains the option's backing slice.
type tagset []attribute.KeyValue

func newTagset(labels map[string]string) tagset {
	if len(labels) == 0 {
		return nil
	}
	ts := make(tagset, 0, len(labels))
	for k, v := range labels {
		ts = append(ts, attribute.String(k, v))
	}
	return ts
}

func (ts tagset) measurement(extra []attribute.KeyValue) metric.MeasurementOption {
	if len(ts) == 0 {
		return metric.WithAttributes(extra...)
	}
	merged := make([]attribute.KeyValue, 0, len(ts)+len(extra))
	merged = append(merged, ts...)
	merged = append(merged, extra...)
	return metric.WithAttributes(merged...)
}

// CounterConfig names a monotonic counter. Attributes ride along on every
// recording.
type CounterConfig struct {
	Name        string
	Description string
	Unit        string
	Attributes  map[string]string
}

// Counter is a monotonically increasing int64 metric.
type Counter struct {
	inner metric.Int64Counter
	tags  tagset
}

// NewCounter builds a counter on this instance's meter.
func (t *Telemetry) NewCounter(cfg CounterConfig) (*Counter, error) {
	opts := []metric.Int64CounterOption{metric.WithDescription(cfg.Description)}
	if cfg.Unit != "" {
		opts = append(opts, metric.WithUnit(cfg.Unit))
	}
	c, err := t.meter.Int64Counter(cfg.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating counter %s: %w", cfg.Name, err)
	}
	return &Counter{inner: c, tags: newTagset(cfg.Attributes)}, nil
}

// Add records a delta.
func (c *Counter) Add(ctx context.Context, delta int64, extra ...attribute.KeyValue) {
	c.inner.Add(ctx, delta, c.tags.measurement(extra))
}

// Inc adds one.
func (c *Counter) Inc(ctx context.Context, extra ...attribute.KeyValue) {
	c.Add(ctx, 1, extra...)
}

// GaugeConfig names a last-value gauge.
type GaugeConfig struct {
	Name        string
	Description string
	Unit        string
	Attributes  map[string]string
}

// Gauge reports the most recently recorded value per attribute set.
type Gauge struct {
	inner metric.Int64Gauge
	tags  tagset
}

// NewGauge builds a gauge on this instance's meter.
func (t *Telemetry) NewGauge(cfg GaugeConfig) (*Gauge, error) {
	opts := []metric.Int64GaugeOption{metric.WithDescription(cfg.Description)}
	if cfg.Unit != "" {
		opts = append(opts, metric.WithUnit(cfg.Unit))
	}
	g, err := t.meter.Int64Gauge(cfg.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gauge %s: %w", cfg.Name, err)
	}
	return &Gauge{inner: g, tags: newTagset(cfg.Attributes)}, nil
}

// Record sets the gauge's current value.
func (g *Gauge) Record(ctx context.Context, value int64, extra ...attribute.KeyValue) {
	g.inner.Record(ctx, value, g.tags.measurement(extra))
}

// TimerConfig names a duration histogram. Boundaries are bucket edges in
// the configured unit; the unit defaults to milliseconds.
type TimerConfig struct {
	Name        string
	Description string
	Unit        string
	Attributes  map[string]string
	Boundaries  []float64
}

// Timer records durations into a float64 histogram.
type Timer struct {
	inner metric.Float64Histogram
	tags  tagset
}

// NewTimer builds a timer on this instance's meter.
func (t *Telemetry) NewTimer(cfg TimerConfig) (*Timer, error) {
	unit := cfg.Unit
	if unit == "" {
		unit = "ms"
	}
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(cfg.Description),
		metric.WithUnit(unit),
	}
	if len(cfg.Boundaries) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(cfg.Boundaries...))
	}
	h, err := t.meter.Float64Histogram(cfg.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating timer %s: %w", cfg.Name, err)
	}
	return &Timer{inner: h, tags: newTagset(cfg.Attributes)}, nil
}

// Record logs one duration, converted to milliseconds with the fraction
// kept so sub-millisecond work still lands in the right bucket.
func (t *Timer) Record(ctx context.Context, d time.Duration, extra ...attribute.KeyValue) {
	t.inner.Record(ctx, float64(d)/float64(time.Millisecond), t.tags.measurement(extra))
}

// Stopwatch measures one operation against its parent timer.
type Stopwatch struct {
	ctx   context.Context
	timer *Timer
	began time.Time
	extra []attribute.KeyValue
}

// Start begins timing an operation. End records the elapsed time.
func (t *Timer) Start(ctx context.Context, extra ...attribute.KeyValue) *Stopwatch {
	return &Stopwatch{ctx: ctx, timer: t, began: time.Now(), extra: extra}
}

// End records the time elapsed since Start, merging any extra attributes
// with those given to Start.
func (s *Stopwatch) End(extra ...attribute.KeyValue) {
	attrs := make([]attribute.KeyValue, 0, len(s.extra)+len(extra))
	attrs = append(attrs, s.extra...)
	attrs = append(attrs, extra...)
	s.timer.Record(s.ctx, time.Since(s.began), attrs...)
}

// InfoConfig names an info metric: a gauge pinned to 1 whose labels carry
// the payload (version strings, endpoints, other metadata).
type InfoConfig struct {
	Name        string
	Description string
	Labels      map[string]string
}

// Info exposes textual metadata as metric labels.
type Info struct {
	inner metric.Float64Gauge
	tags  tagset
}

// NewInfo builds an info metric on this instance's meter.
func (t *Telemetry) NewInfo(cfg InfoConfig) (*Info, error) {
	g, err := t.meter.Float64Gauge(cfg.Name,
		metric.WithDescription(cfg.Description),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating info %s: %w", cfg.Name, err)
	}
	return &Info{inner: g, tags: newTagset(cfg.Labels)}, nil
}

// Record re-asserts the info payload with value 1, merging any extra
// attributes alongside the configured labels.
func (i *Info) Record(ctx context.Context, extra ...attribute.KeyValue) {
	i.inner.Record(ctx, 1, i.tags.measurement(extra))
}
