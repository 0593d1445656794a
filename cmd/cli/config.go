package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sidequest-dev/foreman/pkg/config"
)

// configFileHeader explains what the generated file covers. Tuning knobs
// that are omitted (event bus intervals, report retention, telemetry) fall
// back to built-in defaults and can be added under their own sections.
const configFileHeader = `# foreman configuration.
# Omitted keys use built-in defaults; run 'foreman serve --help' for the
# flags that override them. Optional sections: [events], [reports],
# [telemetry].

`

var (
	configOutput string

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage foreman configuration",
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a config file populated with defaults",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
)

func init() {
	configInitCmd.Flags().StringVar(&configOutput, "output", "foreman.toml", "file to write, or - for stdout")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	data, err := toml.Marshal(defaultForeman())
	if err != nil {
		return fmt.Errorf("marshaling configuration: %w", err)
	}
	data = append([]byte(configFileHeader), data...)

	if configOutput == "-" {
		cmd.Print(string(data))
		return nil
	}

	if _, err := os.Stat(configOutput); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", configOutput)
	}
	if err := os.WriteFile(configOutput, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", configOutput, err)
	}
	cmd.Printf("Wrote config to %s\n", configOutput)
	return nil
}

// defaultForeman populates only the required and commonly tuned fields.
// Durations stay zero here so the generated file keeps them implicit.
func defaultForeman() config.Foreman {
	home := lo.Must(os.UserHomeDir())
	return config.Foreman{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 9000,
		},
		Repo: config.RepoConfig{
			DataDir: filepath.Join(home, ".foreman"),
			TempDir: filepath.Join(os.TempDir(), "foreman"),
		},
		Engine: config.EngineConfig{
			CatalogPath: "pipelines.yaml",
			MaxRetries:  3,
		},
		Secrets: config.SecretsConfig{
			EnvPrefix:        "FOREMAN_SECRET_",
			FailureThreshold: 3,
			SuccessThreshold: 2,
		},
	}
}
