package app

import (
	"net/url"
	"time"
)

// DatabaseType selects the database backend for the job store.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// StorageConfig contains all storage paths and directories
type StorageConfig struct {
	// Root directories
	DataDir string
	TempDir string

	// Database backend for the job store
	Database DatabaseConfig

	// Component-specific storage locations
	JobStore JobStoreStorageConfig
	Reports  ReportsStorageConfig
	Secrets  SecretsStorageConfig
}

// DatabaseConfig selects and configures the database backend
type DatabaseConfig struct {
	Type     DatabaseType
	Postgres PostgresConfig
}

// PostgresConfig contains connection pool settings for the postgres backend
type PostgresConfig struct {
	URL             url.URL
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JobStoreStorageConfig contains job store-specific storage paths
type JobStoreStorageConfig struct {
	// DBPath is the SQLite file. Empty means in-memory; ignored for
	// postgres.
	DBPath string
}

// ReportsStorageConfig contains report artifact storage paths
type ReportsStorageConfig struct {
	Dir string
}

// SecretsStorageConfig contains secret fallback snapshot paths
type SecretsStorageConfig struct {
	FallbackPath string
}
