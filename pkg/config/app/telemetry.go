package app

import "time"

// TelemetryConfig configures OTLP metric export. An empty Endpoint
// disables export entirely.
type TelemetryConfig struct {
	Endpoint        string
	Insecure        bool
	Headers         map[string]string
	PublishInterval time.Duration
	Environment     string
}
