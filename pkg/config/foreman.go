package config

import (
	"fmt"

	"github.com/sidequest-dev/foreman/pkg/config/app"
)

// Foreman is the full server configuration as read from file, env and
// flags.
type Foreman struct {
	Server    ServerConfig    `mapstructure:"server" toml:"server"`
	Repo      RepoConfig      `mapstructure:"repo" toml:"repo"`
	Engine    EngineConfig    `mapstructure:"engine" toml:"engine"`
	Secrets   SecretsConfig   `mapstructure:"secrets" toml:"secrets"`
	Events    EventsConfig    `mapstructure:"events" toml:"events,omitempty"`
	Reports   ReportsConfig   `mapstructure:"reports" toml:"reports,omitempty"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" toml:"telemetry,omitempty"`
}

func (f Foreman) Validate() error {
	return validateConfig(f)
}

func (f Foreman) ToAppConfig() (app.AppConfig, error) {
	var (
		err error
		out app.AppConfig
	)

	out.Server, err = f.Server.ToAppConfig()
	if err != nil {
		return app.AppConfig{}, fmt.Errorf("converting server config to app config: %s", err)
	}

	out.Storage, err = f.Repo.ToAppConfig()
	if err != nil {
		return app.AppConfig{}, fmt.Errorf("converting repo to app config: %s", err)
	}

	out.Engine = f.Engine.ToAppConfig()
	out.Secrets = f.Secrets.ToAppConfig()
	out.Events = f.Events.ToAppConfig()
	out.Reports = f.Reports.ToAppConfig()
	out.Telemetry = f.Telemetry.ToAppConfig()

	return out, nil
}
