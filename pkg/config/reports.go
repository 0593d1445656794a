package config

import (
	"time"

	"github.com/sidequest-dev/foreman/pkg/config/app"
)

// ReportsConfig configures report artifact retention.
type ReportsConfig struct {
	// MaxAge is the retention window. Zero keeps artifacts forever.
	MaxAge time.Duration `mapstructure:"max_age" toml:"max_age,omitempty"`
	// PruneInterval is how often the prune sweep runs
	PruneInterval time.Duration `mapstructure:"prune_interval" toml:"prune_interval,omitempty"`
}

func (r ReportsConfig) Validate() error {
	return validateConfig(r)
}

func (r ReportsConfig) ToAppConfig() app.ReportsConfig {
	return app.ReportsConfig{
		MaxAge:        r.MaxAge,
		PruneInterval: r.PruneInterval,
	}
}
