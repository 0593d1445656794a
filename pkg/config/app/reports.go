package app

import "time"

// ReportsConfig contains report retention settings
type ReportsConfig struct {
	// MaxAge is the retention window; artifacts older than this are
	// pruned. Zero disables pruning.
	MaxAge time.Duration

	// PruneInterval is how often the prune sweep runs
	PruneInterval time.Duration
}
