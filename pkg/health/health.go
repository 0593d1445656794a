package health

import (
	"context"
	"sync"
	"time"

	"github.com/sidequest-dev/foreman/pkg/build"
)

// Status grades a component or the service as a whole.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// severity orders statuses so aggregation can keep the worst one.
var severity = map[Status]int{
	StatusOK:       0,
	StatusDegraded: 1,
	StatusFailed:   2,
}

func worst(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Response is the payload served from the health endpoints.
type Response struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Checks    []Check   `json:"checks,omitempty"`
}

// Check represents an individual component check result
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail any    `json:"detail,omitempty"`
}

// CheckFunc produces a point-in-time check for one component. Funcs must be
// safe for concurrent use; they run on every health request.
type CheckFunc func(ctx context.Context) Check

// Checker aggregates a readiness flag with registered component checks.
type Checker struct {
	mu     sync.RWMutex
	ready  bool
	checks []CheckFunc
}

// NewChecker creates a new health checker. It reports not-ready until
// SetReady is called, typically once the engine has started.
func NewChecker() *Checker {
	return &Checker{}
}

// AddCheck registers a component check to include in health responses.
func (c *Checker) AddCheck(fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, fn)
}

// SetReady flips the readiness gate. The serve path opens it once the
// engine and event feed are wired.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady reports whether the readiness gate is open.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Checker) response(status Status) Response {
	return Response{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   build.Version,
	}
}

// LivenessCheck reports whether the process is alive. It never fails: a
// process that can run this code can serve traffic.
func (c *Checker) LivenessCheck() Response {
	return c.response(StatusOK)
}

// ReadinessCheck reports whether the service is ready to take work.
func (c *Checker) ReadinessCheck() Response {
	if !c.IsReady() {
		return c.response(StatusFailed)
	}
	return c.response(StatusOK)
}

// HealthCheck runs every registered component check and folds the results
// into a single response whose status is the worst individual status.
func (c *Checker) HealthCheck(ctx context.Context) Response {
	c.mu.RLock()
	fns := make([]CheckFunc, len(c.checks))
	copy(fns, c.checks)
	ready := c.ready
	c.mu.RUnlock()

	status := StatusOK
	checks := make([]Check, 0, len(fns)+1)

	readiness := Check{Name: "readiness", Status: StatusOK}
	if !ready {
		readiness.Status = StatusFailed
	}
	status = worst(status, readiness.Status)
	checks = append(checks, readiness)

	for _, fn := range fns {
		check := fn(ctx)
		status = worst(status, check.Status)
		checks = append(checks, check)
	}

	resp := c.response(status)
	resp.Checks = checks
	return resp
}
