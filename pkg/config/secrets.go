package config

import (
	"time"

	"github.com/sidequest-dev/foreman/pkg/config/app"
)

// SecretsConfig configures the resilient secret source.
type SecretsConfig struct {
	// EnvPrefix selects which environment variables are exposed to
	// pipelines, with the prefix stripped
	EnvPrefix string `mapstructure:"env_prefix" validate:"required" toml:"env_prefix"`
	// FailureThreshold trips the breaker open after this many
	// consecutive upstream failures
	FailureThreshold uint32 `mapstructure:"failure_threshold" validate:"omitempty,min=1" toml:"failure_threshold,omitempty"`
	// SuccessThreshold closes a half-open breaker after this many probe
	// successes
	SuccessThreshold uint32 `mapstructure:"success_threshold" validate:"omitempty,min=1" toml:"success_threshold,omitempty"`
	// BreakerTimeout is how long the breaker stays open before probing
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout" toml:"breaker_timeout,omitempty"`
	// FallbackTTL is how long the fallback snapshot is trusted in memory
	FallbackTTL time.Duration `mapstructure:"fallback_ttl" toml:"fallback_ttl,omitempty"`
}

func (s SecretsConfig) Validate() error {
	return validateConfig(s)
}

func (s SecretsConfig) ToAppConfig() app.SecretsConfig {
	return app.SecretsConfig{
		EnvPrefix:        s.EnvPrefix,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
		BreakerTimeout:   s.BreakerTimeout,
		FallbackTTL:      s.FallbackTTL,
	}
}
