package app

import "time"

// EventsConfig contains event bus and broadcast settings
type EventsConfig struct {
	// ProbeInterval is how often subscriber transports are pinged
	ProbeInterval time.Duration

	// BufferSize is the per-subscriber outgoing queue depth
	BufferSize int

	// StatsInterval is how often a stats:update broadcast is published
	StatsInterval time.Duration

	// Activity feed retention
	Activity ActivityConfig

	// Rendered results cache
	ResultCache ResultCacheConfig
}

// ActivityConfig bounds the in-memory activity feed
type ActivityConfig struct {
	MaxEntries int
}

// ResultCacheConfig sizes the LRU over rendered results responses
type ResultCacheConfig struct {
	Size int
}
