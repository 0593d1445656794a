package secrets

import (
	"sync"

	"github.com/sidequest-dev/foreman/pkg/telemetry"
)

var (
	BreakerOpens   *telemetry.Counter
	FallbackServes *telemetry.Counter

	metricsOnce sync.Once
)

// InitMetrics initializes all secret resilience metrics lazily
func InitMetrics() {
	metricsOnce.Do(func() {
		tel := telemetry.Global()

		var err error

		BreakerOpens, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "secrets_breaker_opens",
			Description: "Times the secret fetch breaker tripped open",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize secrets_breaker_opens metric", "error", err)
		}
		FallbackServes, err = tel.NewCounter(telemetry.CounterConfig{
			Name:        "secrets_fallback_serves",
			Description: "Secret fetches served from the fallback snapshot",
			Unit:        "count",
		})
		if err != nil {
			log.Warnw("failed to initialize secrets_fallback_serves metric", "error", err)
		}
	})
}
