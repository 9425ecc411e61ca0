package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// Health check status constants
const (
	StatusUp      = "UP"
	StatusDown    = "DOWN"
	StatusWarning = "WARNING"
)

// goroutineWarnThreshold flags runaway goroutine growth; the service
// only spawns short-lived workers per correlation run.
const goroutineWarnThreshold = 1000

// HealthCheckFunc defines a health check function
type HealthCheckFunc func(context.Context) *CheckResult

// CheckResult represents the result of a health check
type CheckResult struct {
	Status      string                 `json:"status"`
	Component   string                 `json:"component"`
	Details     map[string]interface{} `json:"details,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Error       string                 `json:"error,omitempty"`
}

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Components map[string]*CheckResult `json:"components"`
	Timestamp  time.Time               `json:"timestamp"`
}

// HealthChecker runs named component checks on demand.
type HealthChecker struct {
	checks map[string]HealthCheckFunc
	mu     sync.RWMutex
}

// NewHealthChecker creates a checker with the default runtime checks
// registered.
func NewHealthChecker() *HealthChecker {
	hc := &HealthChecker{
		checks: make(map[string]HealthCheckFunc),
	}

	hc.RegisterCheck("goroutines", goroutineCheck)
	hc.RegisterCheck("memory", memoryCheck)

	return hc
}

// RegisterCheck adds a new health check
func (h *HealthChecker) RegisterCheck(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every registered check and aggregates the worst status.
func (h *HealthChecker) Check(ctx context.Context) *SystemHealth {
	h.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	health := &SystemHealth{
		Status:     StatusUp,
		Components: make(map[string]*CheckResult, len(checks)),
		Timestamp:  time.Now().UTC(),
	}

	for name, fn := range checks {
		result := fn(ctx)
		result.Component = name
		health.Components[name] = result

		switch result.Status {
		case StatusDown:
			health.Status = StatusDown
		case StatusWarning:
			if health.Status == StatusUp {
				health.Status = StatusWarning
			}
		}
	}

	return health
}

// Handler serves the aggregated health as JSON. A DOWN system reports
// 503 so load balancers can react.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}

// RedisCheck builds a check for the result cache connection.
func RedisCheck(ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *CheckResult {
		result := &CheckResult{
			Status:      StatusUp,
			LastChecked: time.Now().UTC(),
		}

		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := ping(checkCtx); err != nil {
			// The cache is an optional layer; a dead Redis degrades the
			// service rather than taking it down.
			result.Status = StatusWarning
			result.Error = err.Error()
		}
		return result
	}
}

func goroutineCheck(_ context.Context) *CheckResult {
	count := runtime.NumGoroutine()
	result := &CheckResult{
		Status:      StatusUp,
		LastChecked: time.Now().UTC(),
		Details: map[string]interface{}{
			"count": count,
		},
	}
	if count > goroutineWarnThreshold {
		result.Status = StatusWarning
	}
	return result
}

func memoryCheck(_ context.Context) *CheckResult {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	return &CheckResult{
		Status:      StatusUp,
		LastChecked: time.Now().UTC(),
		Details: map[string]interface{}{
			"heap_alloc_bytes": stats.HeapAlloc,
			"heap_inuse_bytes": stats.HeapInuse,
			"num_gc":           stats.NumGC,
		},
	}
}
