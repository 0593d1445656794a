// Package secrets wires the breaker-guarded secret provider that pipeline
// executors draw credentials from.
package secrets

import (
	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/pkg/config/app"
	"github.com/sidequest-dev/foreman/pkg/secrets"
)

var Module = fx.Module("secrets",
	fx.Provide(
		NewResilientSource,
	),
)

// NewResilientSource wraps the environment source in the circuit breaker.
// Zero-valued thresholds keep the breaker defaults.
func NewResilientSource(cfg app.SecretsConfig, storageCfg app.StorageConfig) (*secrets.Resilient, error) {
	source := secrets.EnvSource{Prefix: cfg.EnvPrefix}

	var opts []secrets.Option
	if cfg.FailureThreshold > 0 {
		opts = append(opts, secrets.WithFailureThreshold(cfg.FailureThreshold))
	}
	if cfg.SuccessThreshold > 0 {
		opts = append(opts, secrets.WithSuccessThreshold(cfg.SuccessThreshold))
	}
	if cfg.BreakerTimeout > 0 {
		opts = append(opts, secrets.WithTimeout(cfg.BreakerTimeout))
	}
	if cfg.FallbackTTL > 0 {
		opts = append(opts, secrets.WithFallbackTTL(cfg.FallbackTTL))
	}
	if storageCfg.Secrets.FallbackPath != "" {
		opts = append(opts, secrets.WithFallbackPath(storageCfg.Secrets.FallbackPath))
	}

	return secrets.NewResilient(source, opts...)
}
