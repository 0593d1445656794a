package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/sidequest-dev/foreman/pkg/config/app"
	"github.com/sidequest-dev/foreman/pkg/database"
	"github.com/sidequest-dev/foreman/pkg/database/gormdb"
	"github.com/sidequest-dev/foreman/pkg/database/postgresdb"
)

// Schema groups foreman's tables when running against PostgreSQL.
const Schema = "foreman"

var Module = fx.Module("database",
	fx.Provide(
		fx.Annotate(
			ProvideJobStoreDB,
			fx.ResultTags(`name:"jobstore_db"`),
		),
	),
)

// ProvideJobStoreDB opens the durable job database the storage config
// names: SQLite at the configured path, a shared in-memory database when
// the path is empty, or PostgreSQL.
func ProvideJobStoreDB(lc fx.Lifecycle, cfg app.StorageConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		// No ping on start: gorm verifies the connection when opening.
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("stopping job store db: %w", err)
			}
			if err := sqlDB.Close(); err != nil {
				return fmt.Errorf("stopping job store db: %w", err)
			}
			return nil
		},
	})
	return db, nil
}

// Open opens the job database for the configured backend. Exposed so
// offline commands (bulk import) can reach the same database the server
// uses without assembling the fx graph.
func Open(cfg app.StorageConfig) (*gorm.DB, error) {
	if cfg.Database.Type == app.DatabaseTypePostgres {
		pg := cfg.Database.Postgres
		// Zero pool values mean "use the package defaults", not literal zero.
		var pgOpts []postgresdb.Option
		if pg.MaxOpenConns > 0 {
			pgOpts = append(pgOpts, postgresdb.WithMaxOpenConns(pg.MaxOpenConns))
		}
		if pg.MaxIdleConns > 0 {
			pgOpts = append(pgOpts, postgresdb.WithMaxIdleConns(pg.MaxIdleConns))
		}
		if pg.ConnMaxLifetime > 0 {
			pgOpts = append(pgOpts, postgresdb.WithConnMaxLifetime(pg.ConnMaxLifetime))
		}
		db, err := postgresdb.New(pg.URL.String(), Schema, pgOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating postgres job store db: %w", err)
		}
		return db, nil
	}

	dbPath := cfg.JobStore.DBPath
	dbOpts := []database.Option{
		database.WithForeignKeyConstraintsEnable(true),
		// wait up to 5 seconds before failing a write on a busy database.
		database.WithTimeout(5 * time.Second),
	}
	if dbPath == "" {
		dbPath = "file::memory:?cache=shared"
		dbOpts = append(dbOpts, database.WithJournalMode(database.JournalModeMEMORY))
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating job store database directory: %w", err)
		}
		// use a write ahead log for transactions, good for parallel
		// operations on persisted databases.
		dbOpts = append(dbOpts, database.WithJournalMode(database.JournalModeWAL))
	}

	db, err := gormdb.New(dbPath, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating job store db: %w", err)
	}
	if err := gormdb.Configure(db); err != nil {
		return nil, err
	}
	return db, nil
}
