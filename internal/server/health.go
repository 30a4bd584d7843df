package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	statusOK           = "ok"
	statusHealthy      = "healthy"
	statusNotReady     = "not ready"
	statusShuttingDown = "shutting down"
)

// HealthServiceName is reported by the /health endpoint.
const HealthServiceName = "mcp-server"

// HealthChecker serves the container platform and Kubernetes probes.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startTime time.Time
	now       func() time.Time
}

// NewHealthChecker creates a HealthChecker that starts out ready. sc may be
// nil in tests.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		sc:        sc,
		startTime: time.Now(),
		now:       time.Now,
	}
	h.ready.Store(true)
	return h
}

// SetReady flips readiness, typically to false when draining.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServiceHealthResponse is the body of the /health endpoint.
type ServiceHealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// DetailedHealthResponse adds uptime and the storage backends in use.
type DetailedHealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	ExpenseStore string `json:"expense_store,omitempty"`
	KVStore      string `json:"kv_store,omitempty"`
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /health", h.ServiceHandler())
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	mux.Handle("GET /healthz/detailed", h.DetailedHealthHandler())
}

// ServiceHandler answers /health with {"status":"healthy","service":"mcp-server"}.
// It reports 503 once shutdown has begun.
func (h *HealthChecker) ServiceHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := ServiceHealthResponse{Status: statusHealthy, Service: HealthServiceName}
		code := http.StatusOK
		if h.shuttingDown() {
			resp.Status = statusShuttingDown
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// LivenessHandler answers /healthz. It only proves the process is serving.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: statusOK})
	})
}

// ReadinessHandler answers /readyz.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.checks()
		resp := HealthResponse{Status: statusOK, Checks: checks}
		code := http.StatusOK
		if !ok {
			resp.Status = statusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// DetailedHealthHandler answers /healthz/detailed.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status: statusOK,
			Uptime: h.now().Sub(h.startTime).Truncate(time.Second).String(),
		}
		if h.sc != nil {
			if repo := h.sc.Expenses(); repo != nil {
				resp.ExpenseStore = repo.Kind()
			}
			if store := h.sc.KVStore(); store != nil {
				resp.KVStore = store.Backend().Kind()
			}
		}

		code := http.StatusOK
		switch {
		case h.shuttingDown():
			resp.Status = statusShuttingDown
			code = http.StatusServiceUnavailable
		case !h.ready.Load():
			resp.Status = statusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// checks evaluates readiness. The boolean is false if any check failed.
func (h *HealthChecker) checks() (map[string]string, bool) {
	checks := map[string]string{"ready": statusOK, "shutdown": statusOK}
	ok := true
	if !h.ready.Load() {
		checks["ready"] = statusNotReady
		ok = false
	}
	if h.shuttingDown() {
		checks["shutdown"] = statusShuttingDown
		ok = false
	}
	return checks, ok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
