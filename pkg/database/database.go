// Package database builds SQLite connection strings from typed options.
// The pragmas are passed through the DSN so every connection in the pool
// (there is only ever one for SQLite) picks them up.
package database

import (
	"fmt"
	"strings"
	"time"
)

type JournalMode string

const (
	JournalModeWAL    JournalMode = "WAL"
	JournalModeMEMORY JournalMode = "MEMORY"
	JournalModeDELETE JournalMode = "DELETE"
)

type SyncMode string

const (
	SyncModeOFF    SyncMode = "OFF"
	SyncModeNORMAL SyncMode = "NORMAL"
	SyncModeFULL   SyncMode = "FULL"
)

type Options struct {
	JournalMode JournalMode
	SyncMode    SyncMode
	Timeout     time.Duration
	ForeignKeys bool
}

type Option func(*Options)

func WithJournalMode(mode JournalMode) Option {
	return func(o *Options) {
		o.JournalMode = mode
	}
}

func WithSyncMode(mode SyncMode) Option {
	return func(o *Options) {
		o.SyncMode = mode
	}
}

// WithTimeout sets the busy timeout: how long a write waits on a locked
// database before failing.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

func WithForeignKeyConstraintsEnable(enabled bool) Option {
	return func(o *Options) {
		o.ForeignKeys = enabled
	}
}

// DSN renders path plus the configured pragmas into a SQLite connection
// string understood by the glebarez (modernc) driver.
func DSN(path string, opts ...Option) string {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}

	var pragmas []string
	if o.JournalMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=journal_mode(%s)", o.JournalMode))
	}
	if o.Timeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=busy_timeout(%d)", o.Timeout.Milliseconds()))
	}
	if o.SyncMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=synchronous(%s)", o.SyncMode))
	}
	if o.ForeignKeys {
		pragmas = append(pragmas, "_pragma=foreign_keys(1)")
	}
	if len(pragmas) == 0 {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}
