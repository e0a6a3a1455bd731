package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// probeTimeout bounds how long a readiness check may spend on dependencies.
const probeTimeout = 5 * time.Second

// HealthChecker probes the service's dependencies. Postgres is required;
// redis is optional and its outage only degrades readiness.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a health checker. The redis client may be nil.
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// HealthStatus is the aggregate readiness report.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyHealth `json:"dependencies,omitempty"`
}

// DependencyHealth reports one dependency probe.
type DependencyHealth struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Check probes every configured dependency and folds the results into one
// overall status. A database failure makes the service unhealthy; a redis
// failure only degrades it.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	report := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Dependencies: make(map[string]DependencyHealth),
	}

	if h.db != nil {
		dep := h.probeDatabase(ctx)
		report.Dependencies["database"] = dep
		if dep.Status != StatusHealthy {
			report.Status = dep.Status
		}
	}

	if h.redis != nil {
		dep := h.probeRedis(ctx)
		report.Dependencies["redis"] = dep
		if dep.Status == StatusUnhealthy && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	return report
}

func (h *HealthChecker) probeDatabase(ctx context.Context) DependencyHealth {
	start := time.Now()
	var one int
	err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	dep := DependencyHealth{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
		return dep
	}
	if stats := h.db.Stats(); stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		dep.Status = StatusDegraded
		dep.Message = "connection pool saturated"
	}
	return dep
}

func (h *HealthChecker) probeRedis(ctx context.Context) DependencyHealth {
	start := time.Now()
	err := h.redis.Ping(ctx).Err()
	dep := DependencyHealth{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

// Liveness answers 200 whenever the process is serving requests.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness runs the dependency probes. Degraded still answers 200 so a
// redis outage does not pull the service out of rotation.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	report := h.Check(ctx)
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, code, report)
}

func writeHealthJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers the probe endpoints.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
