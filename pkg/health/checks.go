package health

import (
	"context"

	"github.com/sidequest-dev/foreman/pkg/engine"
	"github.com/sidequest-dev/foreman/pkg/secrets"
	"github.com/sidequest-dev/foreman/pkg/store/jobstore"
)

// StoreCheck reports the persistence state machine: healthy writes are ok,
// degraded mode (queued writes, recovery in progress) is degraded, and a
// store that exhausted recovery is failed.
func StoreCheck(store *jobstore.Store) CheckFunc {
	return func(ctx context.Context) Check {
		report := store.Health()
		status := StatusOK
		switch report.Status {
		case jobstore.StatusDegraded:
			status = StatusDegraded
		case jobstore.StatusDown:
			status = StatusFailed
		}
		return Check{Name: "store", Status: status, Detail: report}
	}
}

// SecretsCheck reports the secret-fetch breaker. An open or half-open
// breaker still serves cached or fallback values, so it degrades rather
// than fails the node.
func SecretsCheck(source *secrets.Resilient) CheckFunc {
	return func(ctx context.Context) Check {
		h := source.Health()
		status := StatusOK
		if h.State != "closed" || h.UsingFallback {
			status = StatusDegraded
		}
		return Check{Name: "secrets", Status: status, Detail: h}
	}
}

// EngineCheck exposes engine counters; the readiness flag covers whether
// the engine has started, so the check itself is informational.
func EngineCheck(eng *engine.Engine) CheckFunc {
	return func(ctx context.Context) Check {
		return Check{Name: "engine", Status: StatusOK, Detail: eng.Stats()}
	}
}
