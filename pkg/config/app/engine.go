package app

// EngineConfig contains job engine scheduling and retry settings
type EngineConfig struct {
	// CatalogPath locates the pipeline catalog YAML file
	CatalogPath string

	// MaxRetries caps retry chains; the engine clamps it to 5
	MaxRetries int

	// DisabledPipelines lists pipeline ids refused at submission
	DisabledPipelines []string

	// CancelQueuedOnStop drains still-queued jobs as cancelled on shutdown
	CancelQueuedOnStop bool
}
