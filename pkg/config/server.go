package config

import (
	"fmt"

	"github.com/sidequest-dev/foreman/lib"
	"github.com/sidequest-dev/foreman/pkg/config/app"
)

type ServerConfig struct {
	Port      uint   `mapstructure:"port" validate:"required,min=1,max=65535" flag:"port" toml:"port"`
	Host      string `mapstructure:"host" validate:"required" flag:"host" toml:"host"`
	PublicURL string `mapstructure:"public_url" validate:"omitempty,url" flag:"public-url" toml:"public_url,omitempty"`
}

func (s ServerConfig) Validate() error {
	return validateConfig(s)
}

func (s ServerConfig) ToAppConfig() (app.ServerConfig, error) {
	raw := s.PublicURL
	if raw == "" {
		raw = fmt.Sprintf("http://%s:%d", s.Host, s.Port)
		log.Warnf("public URL not set, using %s", raw)
	}
	publicURL, err := lib.ParsePublicURL(raw)
	if err != nil {
		return app.ServerConfig{}, err
	}

	return app.ServerConfig{
		Host:      s.Host,
		Port:      s.Port,
		PublicURL: publicURL,
	}, nil
}
