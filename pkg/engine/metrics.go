package engine

import (
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sidequest-dev/foreman/pkg/telemetry"
)

var (
	JobDuration  *telemetry.Timer
	JobSuccess   *telemetry.Counter
	JobFailure   *telemetry.Counter
	JobRetries   *telemetry.Counter
	JobsInFlight *telemetry.Gauge

	metricsOnce sync.Once
)

// InitMetrics initializes all engine metrics lazily
func InitMetrics() {
	metricsOnce.Do(func() {
		tel := telemetry.Global()

		var err error

		JobDuration, err = tel.NewTimer(telemetry.TimerConfig{
			Name:        "engine_job_duration",
			Description: "Duration of job execution in milliseconds",
			Unit:        "ms",
			Boundaries:  telemetry.LatencyBoundaries,
		})
		if err != nil {
			log.Warnw("failed to initialize engine_job_duration metric", "error", err)
		}
		JobSuccess, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "engine_job_success",
			Description: "Number of jobs that completed successfully",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize engine_job_success metric", "error", err)
		}
		JobFailure, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "engine_job_failure",
			Description: "Number of jobs that failed terminally",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize engine_job_failure metric", "error", err)
		}
		JobRetries, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "engine_job_retries",
			Description: "Number of retry jobs created",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize engine_job_retries metric", "error", err)
		}
		JobsInFlight, err = tel.NewGauge(telemetry.GaugeConfig{
			Name:        "engine_jobs_in_flight",
			Description: "Jobs currently executing across all pipelines",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize engine_jobs_in_flight metric", "error", err)
		}
	})
}

// Attribute helpers for consistent labeling
func PipelineAttr(id string) attribute.KeyValue {
	return telemetry.StringAttr("pipeline_id", id)
}
