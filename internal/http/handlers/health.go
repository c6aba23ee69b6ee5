package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/brandscope/brandscope-api/internal/browser"
	"github.com/brandscope/brandscope-api/internal/version"
)

// healthProbeTimeout bounds each subsystem check so a wedged dependency
// cannot hang the probe.
const healthProbeTimeout = 2 * time.Second

// DBPinger is the slice of *sql.DB the probes need.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// CachePinger is the slice of the two-tier cache the probes need.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// PoolInspector is the slice of the browser pool the probes need.
type PoolInspector interface {
	Stats() browser.Stats
}

// HealthHandler reports readiness of the service's dependencies.
type HealthHandler struct {
	db            DBPinger
	cache         CachePinger
	pool          PoolInspector
	llmConfigured bool
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db DBPinger, c CachePinger, pool PoolInspector, llmConfigured bool) *HealthHandler {
	return &HealthHandler{db: db, cache: c, pool: pool, llmConfigured: llmConfigured}
}

// HealthOutput is the full health report. Status is 503 when any
// subsystem is down.
type HealthOutput struct {
	Status int
	Body   HealthBody
}

// HealthBody is the health response body.
type HealthBody struct {
	Status     string            `json:"status" enum:"healthy,unhealthy"`
	Version    string            `json:"version"`
	Subsystems map[string]string `json:"subsystems"`
}

// Health checks every dependency: the durable store, the fast cache
// tier, the browser pool, and the LLM configuration.
func (h *HealthHandler) Health(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	subsystems := map[string]string{
		"database":     "ok",
		"redis":        "ok",
		"browser_pool": "ok",
		"llm":          "ok",
	}
	healthy := true

	if err := h.db.PingContext(ctx); err != nil {
		subsystems["database"] = err.Error()
		healthy = false
	}
	if err := h.cache.Ping(ctx); err != nil {
		subsystems["redis"] = err.Error()
		healthy = false
	}
	if stats := h.pool.Stats(); stats.Total == 0 {
		subsystems["browser_pool"] = "no workers"
		healthy = false
	}
	if !h.llmConfigured {
		subsystems["llm"] = "not configured"
		healthy = false
	}

	out := &HealthOutput{
		Status: http.StatusOK,
		Body: HealthBody{
			Status:     "healthy",
			Version:    version.Get().Version,
			Subsystems: subsystems,
		},
	}
	if !healthy {
		out.Status = http.StatusServiceUnavailable
		out.Body.Status = "unhealthy"
	}
	return out, nil
}

// LiveOutput is the liveness probe response.
type LiveOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Live reports that the process is up. It never touches dependencies.
func Live(_ context.Context, _ *struct{}) (*LiveOutput, error) {
	out := &LiveOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// ReadyOutput is the readiness probe response.
type ReadyOutput struct {
	Status int
	Body   struct {
		Status string `json:"status"`
	}
}

// Ready reports whether the durable store is reachable.
func (h *HealthHandler) Ready(ctx context.Context, _ *struct{}) (*ReadyOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	out := &ReadyOutput{Status: http.StatusOK}
	out.Body.Status = "ok"
	if err := h.db.PingContext(ctx); err != nil {
		out.Status = http.StatusServiceUnavailable
		out.Body.Status = "not ready"
	}
	return out, nil
}
