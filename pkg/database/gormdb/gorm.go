// Package gormdb opens gorm handles over the SQLite backend.
package gormdb

import (
	"database/sql"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sidequest-dev/foreman/pkg/database"
)

// New opens a gorm handle over the SQLite database at path. The pragma
// options are encoded into the DSN so they apply to the (single)
// underlying connection.
func New(path string, opts ...database.Option) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(database.DSN(path, opts...)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening gorm sqlite database at %s: %w", path, err)
	}
	return db, nil
}

// NewMemory opens a gorm handle over a shared in-memory database.
func NewMemory() (*gorm.DB, error) {
	return New("file::memory:?cache=shared", database.WithJournalMode(database.JournalModeMEMORY))
}

// Configure applies the SQLite connection policy to the pool underlying a
// gorm handle.
func Configure(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	ConfigureConnection(sqlDB)
	return nil
}

// ConfigureConnection pins the pool to a single connection.
func ConfigureConnection(db *sql.DB) {
	// there can only be ONE connection or sqlite throws a massive tantrum
	// about the database being locked...sobs...wipes tears with mouse pad...
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Don't expire the connection
}
