package app

import "time"

// SecretsConfig contains circuit breaker settings for the secret source
type SecretsConfig struct {
	// EnvPrefix selects which environment variables are exposed to
	// pipelines (prefix stripped)
	EnvPrefix string

	// FailureThreshold is the consecutive-failure count that trips the
	// breaker open
	FailureThreshold uint32

	// SuccessThreshold is the half-open probe count that closes it again
	SuccessThreshold uint32

	// BreakerTimeout is how long the breaker stays open before probing
	BreakerTimeout time.Duration

	// FallbackTTL is how long the in-process fallback snapshot is trusted
	FallbackTTL time.Duration
}
