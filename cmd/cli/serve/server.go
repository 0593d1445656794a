package serve

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/sidequest-dev/foreman/cmd/cliutil"
	"github.com/sidequest-dev/foreman/pkg/api"
	"github.com/sidequest-dev/foreman/pkg/config"
	"github.com/sidequest-dev/foreman/pkg/fx/app"
	"github.com/sidequest-dev/foreman/pkg/telemetry"
)

func startServer(cmd *cobra.Command, _ []string) error {
	userCfg, err := config.Load[config.Foreman]()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	appCfg, err := userCfg.ToAppConfig()
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	foreman := fx.New(
		// if a panic occurs during operation, recover from it and exit (somewhat) gracefully.
		fx.RecoverFromPanics(),

		// provide fx with our logger for its events logged at debug level.
		// any fx errors will still be logged at the error level.
		fx.WithLogger(func() fxevent.Logger {
			el := &fxevent.ZapLogger{Logger: log.Desugar()}
			el.UseLogLevel(zapcore.DebugLevel)
			return el
		}),

		fx.StopTimeout(cliutil.ServerShutdownTimeout),

		// the whole orchestrator: engine, stores, event bus, secret
		// source, report coordinator and the HTTP surface over them.
		app.CommonModules(appCfg),

		// Post-startup operations: print server info and record telemetry
		fx.Invoke(func(lc fx.Lifecycle) {
			// Host metrics outlive the OnStart hook, whose context dies
			// once startup completes; they get their own, cancelled on stop.
			var stopHostMetrics context.CancelFunc
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					publicURL := appCfg.Server.PublicURL.String()

					cliutil.PrintHero(cmd.OutOrStdout(), publicURL)
					cmd.Println("Foreman running on: " + appCfg.Server.Host + ":" + strconv.Itoa(int(appCfg.Server.Port)))
					cmd.Println("Foreman public endpoint: " + publicURL)
					if wsURL, err := api.DeriveWebSocketURL(publicURL); err == nil {
						cmd.Println("Foreman event stream: " + wsURL)
					}

					telemetry.RecordServerInfo(ctx,
						telemetry.StringAttr("public_url", publicURL),
						telemetry.StringAttr("catalog", appCfg.Engine.CatalogPath),
					)
					// host sampling is pointless when nothing exports it
					if appCfg.Telemetry.Endpoint != "" && appCfg.Storage.DataDir != "" {
						hostCtx, cancel := context.WithCancel(context.Background())
						stopHostMetrics = cancel
						if err := telemetry.StartHostMetrics(hostCtx, appCfg.Storage.DataDir); err != nil {
							log.Warnf("failed to start host metrics: %s", err)
						}
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					log.Infof("Shutting down foreman...this may take up to %s", cliutil.ServerShutdownTimeout)
					if stopHostMetrics != nil {
						stopHostMetrics()
					}
					if err := telemetry.Shutdown(ctx); err != nil {
						log.Warnf("failed to flush telemetry: %s", err)
					}
					return nil
				},
			})
		}),
	)

	// an error here means a missing or miswired dependency, i.e. a developer error
	if err := foreman.Err(); err != nil {
		return fmt.Errorf("building foreman: %w", err)
	}

	// run the app; returns once a shutdown signal arrives or the admin
	// endpoint requests one. shutdown errors surface via logs.
	foreman.Run()

	return nil
}
