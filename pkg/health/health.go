// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A check flips to unhealthy only after FailureThreshold consecutive failures
// and back to healthy after one success, so a single slow ping does not pull
// the instance out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc returns nil if the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects which probe a check contributes to.
type Kind int

const (
	// Liveness checks failing means the process should be restarted.
	Liveness Kind = iota
	// Readiness checks failing means the instance should not receive traffic.
	Readiness
)

// FailureThreshold is the number of consecutive failures that mark a check
// unhealthy.
const FailureThreshold = 3

type check struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// fails is touched only by the goroutine running the check.
	fails int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.fn(ctx); err != nil {
		msg := err.Error()
		c.lastErr.Store(&msg)
		c.fails++
		if c.fails >= FailureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.lastErr.Store(nil)
	c.healthy.Store(true)
}

func (c *check) failure() string {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return "check is unhealthy"
}

// Health tracks the checks of one service.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a check. Checks start healthy. Add must be called before Start.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	c := &check{name: name, kind: kind, timeout: timeout, fn: fn}
	c.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// Start runs every check immediately and then once per interval until ctx is
// done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop cancels the background checks. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady marks the service as initialised (true) or draining (false).
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) Ready() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, c := range h.checks {
		if c.kind == kind && !c.healthy.Load() {
			out[c.name] = c.failure()
		}
	}
	return out
}

// Response is the JSON body of both probe endpoints.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveHandler serves /livez.
func (h *Health) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, h.failures(Liveness))
	})
}

// ReadyHandler serves /readyz.
func (h *Health) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		failures := h.failures(Readiness)
		if !h.ready.Load() {
			failures["_service"] = "not ready"
		}
		writeProbe(w, failures)
	})
}

func writeProbe(w http.ResponseWriter, failures map[string]string) {
	resp := Response{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		resp = Response{Status: "unhealthy", Checks: failures}
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
