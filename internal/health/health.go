// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
)

// Status represents a health check result.
type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timers    bool              `json:"timers"`
	Timestamp string            `json:"timestamp"`
}

// Checker defines a named health check function.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler provides the probe endpoints.
type Handler struct {
	mu       sync.RWMutex
	ready    bool
	timers   bool
	checkers []Checker
	clock    clock.Clock
	timeout  time.Duration
}

// NewHandler creates a new health handler with the given checkers.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk, timeout: 5 * time.Second}
}

// SetReady marks the service as ready to receive traffic.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// SetTimers records whether this replica is driving room timers. It is
// reported on both probes but never affects readiness.
func (h *Handler) SetTimers(driving bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timers = driving
}

// Register mounts /healthz and /readyz on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}

func (h *Handler) state() (ready, timers bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready, h.timers
}

func (h *Handler) now() string {
	return h.clock.Now().UTC().Format(time.RFC3339)
}

// Liveness answers 200 while the process is up.
func (h *Handler) Liveness(c *gin.Context) {
	_, timers := h.state()
	c.JSON(http.StatusOK, Status{Status: "ok", Timers: timers, Timestamp: h.now()})
}

// Readiness answers 200 once SetReady(true) was called and every checker
// passes.
func (h *Handler) Readiness(c *gin.Context) {
	ready, timers := h.state()
	if !ready {
		c.JSON(http.StatusServiceUnavailable, Status{Status: "not_ready", Timers: timers, Timestamp: h.now()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	allOK := true
	for _, chk := range h.checkers {
		if err := chk.Check(ctx); err != nil {
			checks[chk.Name] = err.Error()
			allOK = false
		} else {
			checks[chk.Name] = "ok"
		}
	}

	status := "ready"
	code := http.StatusOK
	if !allOK {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, Status{Status: status, Checks: checks, Timers: timers, Timestamp: h.now()})
}
