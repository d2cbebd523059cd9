package handlers

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Health serves the health, liveness and readiness endpoints.
type Health struct {
	mu     sync.RWMutex
	checks map[string]Check
	ready  func() bool
}

// NewHealth reports ready once ready returns true and every check passes.
// A nil ready func is always ready.
func NewHealth(ready func() bool) *Health {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Health{checks: map[string]Check{}, ready: ready}
}

// AddCheck registers a named dependency probe.
func (h *Health) AddCheck(name string, c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

func (h *Health) Register(r *mux.Router) {
	r.HandleFunc("/api/health", h.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.ReadinessHandler).Methods(http.MethodGet)
}

func (h *Health) run(ctx context.Context) (map[string]any, bool) {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()
	names := slices.Sorted(maps.Keys(checks))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	healthy := true
	out := make(map[string]any, len(names))
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			healthy = false
			out[name] = map[string]any{"status": "unhealthy", "error": err.Error()}
			continue
		}
		out[name] = map[string]any{"status": "healthy"}
	}
	return out, healthy
}

// HealthHandler reports every dependency check
func (h *Health) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.run(r.Context())
	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// LivenessHandler handles Kubernetes liveness probes
// Returns 200 if the application is running (doesn't check dependencies)
func (h *Health) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// ReadinessHandler handles Kubernetes readiness probes
func (h *Health) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "not_ready",
			"reason":    "data_not_loaded",
			"timestamp": time.Now().Unix(),
		})
		return
	}
	if _, healthy := h.run(r.Context()); !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "not_ready",
			"reason":    "dependency_unavailable",
			"timestamp": time.Now().Unix(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().Unix(),
	})
}
