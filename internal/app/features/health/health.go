// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/stratapage/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Check is one dependency probed by the handler. A failing critical check
// makes the service unready; a failing non-critical one only degrades it.
type Check struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

// Mongo returns a critical check that pings the primary.
func Mongo(client *mongo.Client) Check {
	return Check{
		Name:     "mongodb",
		Critical: true,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}

// Pinger is anything with a Ping method, such as a page cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Optional returns a non-critical check backed by p.
func Optional(name string, p Pinger) Check {
	return Check{Name: name, Ping: p.Ping}
}

// Handler provides health check endpoints.
type Handler struct {
	checks []Check
	logger *zap.Logger
}

// NewHandler creates a health handler running checks in order.
func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	return &Handler{checks: checks, logger: logger}
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// Routes returns /health (full check), /health/ready and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds the Kubernetes probe conventions to the root
// router: /ready and /readyz for readiness, /livez for liveness.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// run probes every dependency. ready is false when a critical one failed.
func (h *Handler) run(ctx context.Context) (resp Response, ready bool) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Probe())
	defer cancel()

	resp = Response{Status: "ok", Services: make(map[string]string, len(h.checks))}
	ready = true
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			h.logger.Warn("health check failed",
				zap.String("service", c.Name),
				zap.Bool("critical", c.Critical),
				zap.Error(err))
			resp.Services[c.Name] = "unavailable"
			resp.Status = "degraded"
			if c.Critical {
				ready = false
			}
			continue
		}
		resp.Services[c.Name] = "ok"
	}
	if !ready {
		resp.Status = "unavailable"
	}
	return resp, ready
}

// Check reports every dependency. It answers 503 only when a critical one
// is down; a degraded cache still serves pages from the store.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	resp, ready := h.run(r.Context())
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Ready is the readiness probe.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, ready := h.run(r.Context()); !ready {
		writeJSON(w, http.StatusServiceUnavailable, Response{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ready"})
}

// Live is the liveness probe. It touches no dependency.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "alive"})
}

func writeJSON(w http.ResponseWriter, status int, v Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
