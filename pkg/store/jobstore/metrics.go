package jobstore

import (
	"sync"

	"github.com/sidequest-dev/foreman/pkg/telemetry"
)

var (
	PersistFailures   *telemetry.Counter
	DegradedEntries   *telemetry.Counter
	RecoverySuccesses *telemetry.Counter
	RecoveryFailures  *telemetry.Counter
	QueuedWrites      *telemetry.Gauge

	metricsOnce sync.Once
)

// InitMetrics initializes all job store metrics lazily
func InitMetrics() {
	metricsOnce.Do(func() {
		tel := telemetry.Global()

		var err error

		PersistFailures, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "store_persist_failures",
			Description: "Durable job writes that failed and were queued",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize store_persist_failures metric", "error", err)
		}
		DegradedEntries, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "store_degraded_entries",
			Description: "Transitions into degraded mode",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize store_degraded_entries metric", "error", err)
		}
		RecoverySuccesses, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "store_recovery_successes",
			Description: "Recovery attempts that drained the write queue",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize store_recovery_successes metric", "error", err)
		}
		RecoveryFailures, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "store_recovery_failures",
			Description: "Recovery attempts that could not drain the write queue",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize store_recovery_failures metric", "error", err)
		}
		QueuedWrites, err = tel.NewGauge(telemetry.GaugeConfig{
			Name:        "store_queued_writes",
			Description: "Writes waiting in the recovery queue",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize store_queued_writes metric", "error", err)
		}
	})
}
