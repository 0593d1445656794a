package config

import (
	"github.com/sidequest-dev/foreman/pkg/config/app"
)

// EngineConfig configures job scheduling and retries.
type EngineConfig struct {
	// CatalogPath locates the pipeline catalog YAML file
	CatalogPath string `mapstructure:"catalog_path" validate:"required" flag:"catalog" toml:"catalog_path"`
	// MaxRetries caps retry chains per job. The engine clamps values
	// above 5.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0,max=5" toml:"max_retries,omitempty"`
	// DisabledPipelines lists pipeline ids refused at submission
	DisabledPipelines []string `mapstructure:"disabled_pipelines" toml:"disabled_pipelines,omitempty"`
	// CancelQueuedOnStop drains still-queued jobs as cancelled on shutdown
	CancelQueuedOnStop bool `mapstructure:"cancel_queued_on_stop" toml:"cancel_queued_on_stop,omitempty"`
}

func (e EngineConfig) Validate() error {
	return validateConfig(e)
}

func (e EngineConfig) ToAppConfig() app.EngineConfig {
	return app.EngineConfig{
		CatalogPath:        e.CatalogPath,
		MaxRetries:         e.MaxRetries,
		DisabledPipelines:  e.DisabledPipelines,
		CancelQueuedOnStop: e.CancelQueuedOnStop,
	}
}
