package telemetry

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// hostGauges holds the observables sampled on each collector pull.
type hostGauges struct {
	cpuUtil   metric.Float64ObservableGauge
	memUsed   metric.Int64ObservableGauge
	memTotal  metric.Int64ObservableGauge
	diskUsed  metric.Int64ObservableGauge
	diskFree  metric.Int64ObservableGauge
	diskTotal metric.Int64ObservableGauge
}

func newHostGauges(meter metric.Meter) (*hostGauges, error) {
	bytesGauge := func(name, desc string) (metric.Int64ObservableGauge, error) {
		g, err := meter.Int64ObservableGauge(name,
			metric.WithDescription(desc),
			metric.WithUnit("By"),
		)
		if err != nil {
			return nil, fmt.Errorf("creating %s gauge: %w", name, err)
		}
		return g, nil
	}

	var g hostGauges
	var err error
	if g.cpuUtil, err = meter.Float64ObservableGauge("system_cpu_utilization",
		metric.WithDescription("System-wide CPU utilization as a fraction (0-1)"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("creating cpu utilization gauge: %w", err)
	}
	if g.memUsed, err = bytesGauge("system_memory_used_bytes", "System memory used in bytes"); err != nil {
		return nil, err
	}
	if g.memTotal, err = bytesGauge("system_memory_total_bytes", "System memory total in bytes"); err != nil {
		return nil, err
	}
	if g.diskUsed, err = bytesGauge("foreman_datadir_used_bytes", "Bytes used on the filesystem backing the foreman data-dir"); err != nil {
		return nil, err
	}
	if g.diskFree, err = bytesGauge("foreman_datadir_free_bytes", "Free bytes on the filesystem backing the foreman data-dir"); err != nil {
		return nil, err
	}
	if g.diskTotal, err = bytesGauge("foreman_datadir_total_bytes", "Total bytes on the filesystem backing the foreman data-dir"); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *hostGauges) all() []metric.Observable {
	return []metric.Observable{
		g.cpuUtil, g.memUsed, g.memTotal, g.diskUsed, g.diskFree, g.diskTotal,
	}
}

// sample reads the host and reports into o. Each probe is independent so
// one failing source never suppresses the others.
func (g *hostGauges) sample(o metric.Observer, dataDir string, pathAttr attribute.KeyValue) {
	// cpu.Percent reports 0-100; the gauge wants a 0-1 fraction.
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		o.ObserveFloat64(g.cpuUtil, pcts[0]/100.0)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		o.ObserveInt64(g.memUsed, int64(vm.Used))
		o.ObserveInt64(g.memTotal, int64(vm.Total))
	}
	if usage, err := disk.Usage(dataDir); err == nil {
		opt := metric.WithAttributes(pathAttr)
		o.ObserveInt64(g.diskUsed, int64(usage.Used), opt)
		o.ObserveInt64(g.diskFree, int64(usage.Free), opt)
		o.ObserveInt64(g.diskTotal, int64(usage.Total), opt)
	}
}

// StartHostMetrics exports host metrics (CPU, memory, data-dir disk usage)
// via the global meter until ctx is cancelled. The data-dir path rides on
// the disk metrics so the volume holding job state and reports can be told
// apart from any other mount.
func StartHostMetrics(ctx context.Context, dataDir string) error {
	if dataDir == "" {
		return fmt.Errorf("dataDir is required to start host metrics")
	}

	meter := Global().Meter()
	gauges, err := newHostGauges(meter)
	if err != nil {
		return err
	}

	pathAttr := attribute.String("path", dataDir)
	reg, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			gauges.sample(o, dataDir, pathAttr)
			return nil
		},
		gauges.all()...,
	)
	if err != nil {
		return fmt.Errorf("registering host metrics callback: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := reg.Unregister(); err != nil {
			log.Debugw("failed to unregister host metrics callback", "error", err)
		}
	}()
	return nil
}
