// Package config defines the file- and flag-facing configuration structs.
// Fields carry mapstructure tags for viper, validate tags for
// go-playground/validator and toml tags for `foreman config init`.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/viper"
)

var log = logging.Logger("config")

// Validatable is any config struct that can validate itself.
type Validatable interface {
	Validate() error
}

// Load unmarshals the accumulated viper state (file, env, flags) into T
// and validates it.
func Load[T Validatable]() (T, error) {
	var out T
	if err := viper.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

var validate = validator.New()

// validateConfig runs struct-tag validation and renders failures into a
// single readable error.
func validateConfig(cfg any) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
