// Package app holds the runtime configuration consumed by fx modules.
// Values here are already parsed and validated; the file/flag-facing
// structs in pkg/config convert into these via ToAppConfig.
package app

import "net/url"

// AppConfig is the root configuration for the entire application
type AppConfig struct {
	// Server configuration
	Server ServerConfig

	// Storage paths and directories
	Storage StorageConfig

	// Engine scheduling and retry configuration
	Engine EngineConfig

	// Secret resilience configuration
	Secrets SecretsConfig

	// Event bus and activity feed configuration
	Events EventsConfig

	// Report retention configuration
	Reports ReportsConfig

	// Telemetry export configuration
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host      string
	Port      uint
	PublicURL *url.URL
}
