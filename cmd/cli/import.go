package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sidequest-dev/foreman/pkg/config"
	"github.com/sidequest-dev/foreman/pkg/fx/database"
	"github.com/sidequest-dev/foreman/pkg/store/jobstore"
)

var (
	importReportsDir string
	importLogsDir    string

	importCmd = &cobra.Command{
		Use:   "import",
		Short: "Bulk-load historical scan reports and job logs into the job store",
		Long: `Load report summaries and per-job log files produced by earlier runs
into the job store, so dashboards see history from before this deployment.
Files are keyed by name; re-importing a directory skips records that are
already present.`,
		Args: cobra.NoArgs,
		RunE: runImport,
	}
)

func init() {
	importCmd.Flags().StringVar(&importReportsDir, "reports-dir", "", "directory holding *-summary.json report files")
	importCmd.Flags().StringVar(&importLogsDir, "logs-dir", "", "directory holding per-job log JSON files")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	if importReportsDir == "" && importLogsDir == "" {
		return fmt.Errorf("nothing to import: pass --reports-dir and/or --logs-dir")
	}

	userCfg, err := config.Load[config.Foreman]()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	appCfg, err := userCfg.ToAppConfig()
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	db, err := database.Open(appCfg.Storage)
	if err != nil {
		return fmt.Errorf("opening job store database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	store, err := jobstore.New(db, jobstore.WithDBPath(appCfg.Storage.JobStore.DBPath))
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("initializing job store: %w", err)
	}

	if importReportsDir != "" {
		res, err := importWithProgress(cmd, "report summaries", func(onFile func(string)) (jobstore.ImportResult, error) {
			return store.ImportReports(ctx, importReportsDir, onFile)
		})
		if err != nil {
			return fmt.Errorf("importing reports: %w", err)
		}
		cmd.Printf("Imported %d report summaries (%d skipped)\n", res.Imported, res.Skipped)
	}

	if importLogsDir != "" {
		res, err := importWithProgress(cmd, "job logs", func(onFile func(string)) (jobstore.ImportResult, error) {
			return store.ImportLogs(ctx, importLogsDir, onFile)
		})
		if err != nil {
			return fmt.Errorf("importing logs: %w", err)
		}
		cmd.Printf("Imported %d job logs (%d skipped)\n", res.Imported, res.Skipped)
	}

	return nil
}

func importWithProgress(cmd *cobra.Command, what string, run func(onFile func(string)) (jobstore.ImportResult, error)) (jobstore.ImportResult, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.OutOrStdout()),
		progressbar.OptionSetDescription("Importing "+what),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), "\n")
		}),
	)
	res, err := run(func(string) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	return res, err
}
