package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sidequest-dev/foreman/cmd/cli/serve"
	"github.com/sidequest-dev/foreman/cmd/cli/shutdown"
	"github.com/sidequest-dev/foreman/pkg/build"
	"github.com/sidequest-dev/foreman/pkg/config"
	"github.com/sidequest-dev/foreman/pkg/telemetry"
)

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

var log = logging.Logger("cmd")

const foremanShortDescription = `
Foreman runs long-running analysis pipelines as supervised background jobs
`

const foremanLongDescription = `
Foreman - background analysis job orchestrator
Foreman schedules configured pipelines with bounded concurrency, retries
transient failures with backoff, persists every run, and streams progress to
subscribed dashboards over WebSocket.
`

var (
	cfgFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "foreman",
		Short: foremanShortDescription,
		Long:  foremanLongDescription,
	}
)

func init() {
	cobra.OnInitialize(initLogging, initConfig, initTelemetry)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level")

	rootCmd.PersistentFlags().String("data-dir", filepath.Join(lo.Must(os.UserHomeDir()), ".foreman"), "Orchestrator data directory")
	cobra.CheckErr(viper.BindPFlag("repo.data_dir", rootCmd.PersistentFlags().Lookup("data-dir")))
	cobra.CheckErr(viper.BindEnv("repo.data_dir", "FOREMAN_DATA_DIR"))

	rootCmd.PersistentFlags().String("temp-dir", filepath.Join(os.TempDir(), "foreman"), "Orchestrator temp directory")
	cobra.CheckErr(viper.BindPFlag("repo.temp_dir", rootCmd.PersistentFlags().Lookup("temp-dir")))
	cobra.CheckErr(viper.BindEnv("repo.temp_dir", "FOREMAN_TEMP_DIR"))

	// register all commands and their subcommands
	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(shutdown.Cmd)
}

func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("FOREMAN")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		cobra.CheckErr(viper.ReadInConfig())
	}
}

func initTelemetry() {
	// bail if this has been disabled.
	if os.Getenv("FOREMAN_DISABLE_ANALYTICS") != "" {
		return
	}
	endpoint := viper.GetString("telemetry.endpoint")
	if endpoint == "" {
		return
	}
	telCfg := telemetry.Config{
		ServiceName:     "foreman",
		ServiceVersion:  build.Version,
		Environment:     viper.GetString("telemetry.environment"),
		Endpoint:        endpoint,
		Insecure:        viper.GetBool("telemetry.insecure"),
		Headers:         viper.GetStringMapString("telemetry.headers"),
		PublishInterval: viper.GetDuration("telemetry.publish_interval"),
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := telemetry.Initialize(ctx, telCfg); err != nil {
		log.Warnf("failed to initialize telemetry: %s", err)
	}
}

func initLogging() {
	if logLevel != "" {
		ll, err := logging.LevelFromString(logLevel)
		cobra.CheckErr(err)
		logging.SetAllLoggers(ll)
	} else {
		logging.SetLogLevel("engine", "info")
		logging.SetLogLevel("api", "info")
		logging.SetLogLevel("pipeline", "info")
		logging.SetLogLevel("jobstore", "info")
		logging.SetLogLevel("eventbus", "info")
		logging.SetLogLevel("secrets", "info")
		logging.SetLogLevel("reports", "info")
		logging.SetLogLevel("activity", "warn")
		logging.SetLogLevel("gitinfo", "error")
		logging.SetLogLevel("config", "error")
		logging.SetLogLevel("database", "warn")
		logging.SetLogLevel("telemetry", "info")
		logging.SetLogLevel("server", "info")
		logging.SetLogLevel("fx/echo", "info")
		logging.SetLogLevel("fx/bus", "warn")
		logging.SetLogLevel("fx/admin", "info")
		logging.SetLogLevel("fx/reports", "info")
		logging.SetLogLevel("cmd", "info")
		logging.SetLogLevel("cmd/serve", "info")
		logging.SetLogLevel("cmd/shutdown", "info")
	}
}
