package config

import (
	"time"

	"github.com/sidequest-dev/foreman/pkg/config/app"
)

// EventsConfig configures the subscriber bus, activity feed and results
// cache.
type EventsConfig struct {
	// ProbeInterval is how often subscriber transports are pinged
	ProbeInterval time.Duration `mapstructure:"probe_interval" toml:"probe_interval,omitempty"`
	// BufferSize is the per-subscriber outgoing queue depth
	BufferSize int `mapstructure:"buffer_size" validate:"omitempty,min=1" toml:"buffer_size,omitempty"`
	// StatsInterval is how often a stats:update broadcast is published
	StatsInterval time.Duration `mapstructure:"stats_interval" toml:"stats_interval,omitempty"`
	// ActivityMax bounds the in-memory activity feed
	ActivityMax int `mapstructure:"activity_max" validate:"omitempty,min=1" toml:"activity_max,omitempty"`
	// CacheSize is the entry capacity of the rendered results LRU
	CacheSize int `mapstructure:"cache_size" validate:"omitempty,min=1" toml:"cache_size,omitempty"`
}

func (e EventsConfig) Validate() error {
	return validateConfig(e)
}

func (e EventsConfig) ToAppConfig() app.EventsConfig {
	return app.EventsConfig{
		ProbeInterval: e.ProbeInterval,
		BufferSize:    e.BufferSize,
		StatsInterval: e.StatsInterval,
		Activity: app.ActivityConfig{
			MaxEntries: e.ActivityMax,
		},
		ResultCache: app.ResultCacheConfig{
			Size: e.CacheSize,
		},
	}
}
