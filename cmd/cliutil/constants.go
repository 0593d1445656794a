package cliutil

import "time"

// ServerShutdownTimeout is how long fx waits for lifecycle shutdown hooks
// to finish. Running pipeline jobs get this long to observe cancellation
// and for the engine to persist their final state; anything still running
// afterwards is abandoned.
const ServerShutdownTimeout = time.Minute
