// Package reports wires the report artifact coordinator and its retention
// sweep.
package reports

import (
	"context"
	"os"
	"path/filepath"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/pkg/config/app"
	"github.com/sidequest-dev/foreman/pkg/reports"
)

var log = logging.Logger("fx/reports")

var Module = fx.Module("reports",
	fx.Provide(
		NewCoordinator,
	),
	fx.Invoke(
		StartPruneLoop,
	),
)

// NewCoordinator builds the coordinator over the configured artifact
// directory.
func NewCoordinator(storageCfg app.StorageConfig, cfg app.ReportsConfig) (*reports.Coordinator, error) {
	dir := storageCfg.Reports.Dir
	if dir == "" {
		// Memory-mode runs have no data dir; report artifacts still need
		// somewhere to land.
		dir = filepath.Join(os.TempDir(), "foreman-reports")
		log.Warnf("no report directory configured, using %s", dir)
	}

	var opts []reports.Option
	if cfg.MaxAge > 0 {
		opts = append(opts, reports.WithMaxAge(cfg.MaxAge))
	}
	return reports.NewCoordinator(dir, opts...)
}

// StartPruneLoop sweeps expired artifacts on a fixed interval. It does
// nothing unless both a retention window and an interval are configured.
func StartPruneLoop(lc fx.Lifecycle, coord *reports.Coordinator, cfg app.ReportsConfig) {
	if cfg.MaxAge <= 0 || cfg.PruneInterval <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(cfg.PruneInterval)
				defer ticker.Stop()
				for {
					select {
					case <-loopCtx.Done():
						return
					case <-ticker.C:
						removed, err := coord.Prune(loopCtx)
						if err != nil {
							log.Warnw("report prune sweep failed", "error", err)
							continue
						}
						if removed > 0 {
							log.Infow("pruned expired reports", "removed", removed)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
