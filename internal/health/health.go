package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gustycube/uptime-probe/internal/logging"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check for a component
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Response represents the overall health response
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    []Check           `json:"checks"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler serves /health, /ready and /live for a probe run. Readiness is
// derived from the run itself through the func installed with ReadyWhen.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	metadata map[string]string
	logger   *logging.Logger
	ready    func() bool
}

func NewHandler(logger *logging.Logger) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		metadata: make(map[string]string),
		logger:   logger,
	}
}

func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) SetMetadata(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metadata[key] = value
}

// ReadyWhen installs the readiness condition. Without one the probe is
// never ready.
func (h *Handler) ReadyWhen(fn func() bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = fn
}

func (h *Handler) IsReady() bool {
	h.mu.RLock()
	fn := h.ready
	h.mu.RUnlock()
	return fn != nil && fn()
}

func (h *Handler) snapshot() ([]string, map[string]Checker, map[string]string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		names = append(names, k)
		checkers[k] = v
	}
	sort.Strings(names)
	metadata := make(map[string]string, len(h.metadata))
	for k, v := range h.metadata {
		metadata[k] = v
	}
	return names, checkers, metadata
}

// HealthHandler runs every checker in name order. Any unhealthy check
// answers 503; degraded still answers 200.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names, checkers, metadata := h.snapshot()
	resp := Response{Status: StatusHealthy, Timestamp: time.Now(), Checks: []Check{}, Metadata: metadata}
	for _, name := range names {
		check := checkers[name].Check(ctx)
		check.Name = name
		resp.Checks = append(resp.Checks, check)
		switch check.Status {
		case StatusUnhealthy:
			resp.Status = StatusUnhealthy
			if h.logger != nil {
				h.logger.Warnw("health check failing", "check", name, "message", check.Message)
			}
		case StatusDegraded:
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
		}
	}

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// ReadinessHandler answers 200 while the poll phase is running.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	_, _, metadata := h.snapshot()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"ready": ready, "timestamp": time.Now(), "metadata": metadata})
}

func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"alive": true, "timestamp": time.Now()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// RedisChecker checks Redis connectivity
type RedisChecker struct {
	addr string
	ping func(ctx context.Context) error
}

// NewRedisChecker creates a Redis health checker calling ping
func NewRedisChecker(addr string, ping func(ctx context.Context) error) *RedisChecker {
	return &RedisChecker{addr: addr, ping: ping}
}

// Check performs the Redis health check
func (c *RedisChecker) Check(ctx context.Context) Check {
	start := time.Now()
	if c.ping == nil {
		return Check{
			Status:      StatusHealthy,
			Message:     "Redis not configured",
			LastChecked: time.Now(),
			Duration:    time.Since(start) / time.Millisecond,
		}
	}
	if err := c.ping(ctx); err != nil {
		return Check{
			Status:      StatusUnhealthy,
			Message:     "Redis " + c.addr + " unreachable: " + err.Error(),
			LastChecked: time.Now(),
			Duration:    time.Since(start) / time.Millisecond,
		}
	}
	return Check{
		Status:      StatusHealthy,
		Message:     "Redis connection OK",
		LastChecked: time.Now(),
		Duration:    time.Since(start) / time.Millisecond,
	}
}

// PollerChecker reports how many endpoint pollers are still running
type PollerChecker struct {
	active func() int
	total  int
}

// NewPollerChecker creates a checker over total configured pollers
func NewPollerChecker(active func() int, total int) *PollerChecker {
	return &PollerChecker{active: active, total: total}
}

// Check performs the poller health check
func (c *PollerChecker) Check(ctx context.Context) Check {
	start := time.Now()
	active := c.active()

	status := StatusHealthy
	message := fmt.Sprintf("%d/%d pollers in progress", active, c.total)
	if c.total > 0 && active == 0 {
		status = StatusDegraded
		message = "No active pollers"
	}

	return Check{
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
		Duration:    time.Since(start) / time.Millisecond,
	}
}
