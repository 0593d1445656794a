package serve

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sidequest-dev/foreman/pkg/config"
)

var log = logging.Logger("cmd/serve")

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator server",
	Args:  cobra.NoArgs,
	RunE:  startServer,
}

func init() {
	flags := Cmd.PersistentFlags()
	flags.String("host", "localhost", "Host to listen on")
	flags.Uint("port", 9000, "Port to listen on")
	flags.String("public-url", "", "URL the orchestrator is publicly accessible at and exposed to dashboards")
	flags.String("catalog", "", "Path to the pipeline catalog file")

	for flag, key := range map[string]config.Key{
		"host":       config.ServerHost,
		"port":       config.ServerPort,
		"public-url": config.ServerPublicURL,
		"catalog":    config.EngineCatalogPath,
	} {
		cobra.CheckErr(viper.BindPFlag(string(key), flags.Lookup(flag)))
	}

	cobra.CheckErr(viper.BindEnv(string(config.ServerPublicURL), "FOREMAN_PUBLIC_URL"))
	cobra.CheckErr(viper.BindEnv(string(config.EngineCatalogPath), "FOREMAN_CATALOG"))
}
