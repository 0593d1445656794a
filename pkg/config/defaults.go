package config

import (
	"time"

	"github.com/spf13/viper"
)

// Key is a configuration key path used with Viper.
type Key string

// Server
const (
	ServerHost      Key = "server.host"
	ServerPort      Key = "server.port"
	ServerPublicURL Key = "server.public_url"
)

// Repo
const (
	RepoDataDir Key = "repo.data_dir"
	RepoTempDir Key = "repo.temp_dir"
)

// Engine
const (
	EngineCatalogPath        Key = "engine.catalog_path"
	EngineMaxRetries         Key = "engine.max_retries"
	EngineCancelQueuedOnStop Key = "engine.cancel_queued_on_stop"
)

// Secrets
const (
	SecretsEnvPrefix        Key = "secrets.env_prefix"
	SecretsFailureThreshold Key = "secrets.failure_threshold"
	SecretsSuccessThreshold Key = "secrets.success_threshold"
	SecretsBreakerTimeout   Key = "secrets.breaker_timeout"
	SecretsFallbackTTL      Key = "secrets.fallback_ttl"
)

// Events
const (
	EventsProbeInterval Key = "events.probe_interval"
	EventsBufferSize    Key = "events.buffer_size"
	EventsStatsInterval Key = "events.stats_interval"
	EventsActivityMax   Key = "events.activity_max"
	EventsCacheSize     Key = "events.cache_size"
)

// Reports
const (
	ReportsMaxAge        Key = "reports.max_age"
	ReportsPruneInterval Key = "reports.prune_interval"
)

// Telemetry
const (
	TelemetryPublishInterval Key = "telemetry.publish_interval"
)

var defaultValues = map[Key]any{
	ServerHost: "localhost",
	ServerPort: uint(9000),

	EngineCatalogPath: "pipelines.yaml",
	EngineMaxRetries:  3,

	SecretsEnvPrefix:        "FOREMAN_SECRET_",
	SecretsFailureThreshold: uint32(3),
	SecretsSuccessThreshold: uint32(2),
	SecretsBreakerTimeout:   time.Minute,
	SecretsFallbackTTL:      5 * time.Minute,

	EventsProbeInterval: 30 * time.Second,
	EventsBufferSize:    64,
	EventsStatsInterval: 30 * time.Second,
	EventsActivityMax:   50,
	EventsCacheSize:     128,

	ReportsMaxAge:        30 * 24 * time.Hour,
	ReportsPruneInterval: time.Hour,

	TelemetryPublishInterval: 30 * time.Second,
}

// SetDefaults sets all viper defaults for configuration.
// Called before viper.Unmarshal() to ensure defaults are available.
func SetDefaults() {
	for k, v := range defaultValues {
		viper.SetDefault(string(k), v)
	}
}
