package config

import (
	"time"

	"github.com/sidequest-dev/foreman/pkg/config/app"
)

// TelemetryConfig configures OTLP metric export. Leaving the endpoint
// empty disables export.
type TelemetryConfig struct {
	Endpoint        string            `mapstructure:"endpoint" validate:"omitempty" flag:"telemetry-endpoint" toml:"endpoint,omitempty"`
	Insecure        bool              `mapstructure:"insecure" toml:"insecure,omitempty"`
	Headers         map[string]string `mapstructure:"headers" toml:"headers,omitempty"`
	PublishInterval time.Duration     `mapstructure:"publish_interval" toml:"publish_interval,omitempty"`
	Environment     string            `mapstructure:"environment" toml:"environment,omitempty"`
}

func (t TelemetryConfig) Validate() error {
	return validateConfig(t)
}

func (t TelemetryConfig) ToAppConfig() app.TelemetryConfig {
	return app.TelemetryConfig{
		Endpoint:        t.Endpoint,
		Insecure:        t.Insecure,
		Headers:         t.Headers,
		PublishInterval: t.PublishInterval,
		Environment:     t.Environment,
	}
}
