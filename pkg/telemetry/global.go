package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric/noop"
)

var (
	globalMu sync.RWMutex
	global   *Telemetry
)

// Initialize builds an exporting instance from cfg and installs it as the
// process global. Call once at startup, before any package reads Global.
func Initialize(ctx context.Context, cfg Config) error {
	tel, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	globalMu.Lock()
	global = tel
	globalMu.Unlock()
	return nil
}

// Global returns the installed instance. When Initialize has not run it
// installs and returns a no-op instance, so recording sites never check
// for a missing provider.
func Global() *Telemetry {
	globalMu.RLock()
	tel := global
	globalMu.RUnlock()
	if tel != nil {
		return tel
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = NewWithMeter(noop.NewMeterProvider().Meter("foreman-noop"))
	}
	return global
}

// Shutdown flushes and stops the global instance, if one was installed.
func Shutdown(ctx context.Context) error {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return nil
	}
	return global.Shutdown(ctx)
}

// SetGlobalForTesting swaps the global instance. Tests only; pass nil to
// reset to the uninitialized state.
func SetGlobalForTesting(tel *Telemetry) {
	globalMu.Lock()
	global = tel
	globalMu.Unlock()
}
