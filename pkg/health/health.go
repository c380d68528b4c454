// Package health provides Kubernetes-style liveness and readiness probes.
//
// Registered checks run periodically in background goroutines. Thresholds
// keep probes from flapping: a check must fail three consecutive runs before
// it is reported unhealthy, and one success brings it back.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. It returns nil when the component is
// healthy.
type CheckFunc func(ctx context.Context) error

const (
	failureThreshold = 3
	successThreshold = 1
)

// check holds one probe and its runtime state. The consecutive counters are
// touched only by the single runner goroutine; healthy and lastErr are also
// read by HTTP handlers and therefore atomic.
type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func (c *check) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(checkCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.consecutiveFails = 0
	c.consecutiveOK++
	if c.consecutiveOK >= successThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error(), true
	}
	return "check is unhealthy", true
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Health instance. The service starts not ready; call
// SetReady(true) once initialization finishes.
func New() *Health {
	return &Health{}
}

func newCheck(name string, timeout time.Duration, fn CheckFunc) *check {
	c := &check{name: name, timeout: timeout, fn: fn}
	c.healthy.Store(true) // assume healthy until a run proves otherwise
	return c
}

// AddLivenessCheck registers a liveness probe: is the process itself still
// functioning (goroutine leaks, deadlocks).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck(name, timeout, fn))
}

// AddReadinessCheck registers a readiness probe: can the service serve
// traffic right now (database reachable, cache warm).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck(name, timeout, fn))
}

// Start launches one goroutine per registered check, each running at the
// given interval until the context is cancelled or Stop is called. Register
// all checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	all := make([]*check, 0, len(h.liveness)+len(h.readiness))
	all = append(all, h.liveness...)
	all = append(all, h.readiness...)
	h.mu.Unlock()

	for _, c := range all {
		go func(c *check) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}(c)
	}
}

// Stop cancels the background check goroutines. Safe to call repeatedly.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate: true once initialization
// completes, false at the start of graceful shutdown to drain traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is ready: manually marked ready and
// every readiness check passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	checks := h.readiness
	h.mu.RUnlock()

	for _, c := range checks {
		if _, failed := c.failure(); failed {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while all liveness checks pass, 503 with
// per-check failure details otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := append([]*check(nil), h.liveness...)
	h.mu.RUnlock()

	writeResponse(w, collectFailures(checks))
}

// ReadyEndpoint serves /readyz: 200 while the service is marked ready and all
// readiness checks pass, 503 with details otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	checks := append([]*check(nil), h.readiness...)
	h.mu.RUnlock()

	failures := collectFailures(checks)
	if !ready {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

func collectFailures(checks []*check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if msg, failed := c.failure(); failed {
			failures[c.name] = msg
		}
	}
	return failures
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
