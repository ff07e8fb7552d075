// Package status serves the process status endpoints: Prometheus metrics,
// health and readiness.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Health is the outcome of a check or of all checks.
type Health string

const (
	Healthy   Health = "healthy"
	Degraded  Health = "degraded"
	Unhealthy Health = "unhealthy"
)

// Check is the cached result of one registered check.
type Check struct {
	Name        string        `json:"name"`
	Status      Health        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	DurationMS  int64         `json:"duration_ms"`
}

// CheckFunc reports a problem by returning an error.
type CheckFunc func(ctx context.Context) error

// Checker runs registered checks, caching each result for ttl.
type Checker struct {
	mu     sync.Mutex
	checks map[string]CheckFunc
	cache  map[string]*Check
	ttl    time.Duration
}

// NewChecker creates a checker. A zero ttl means one second.
func NewChecker(ttl time.Duration) *Checker {
	if ttl == 0 {
		ttl = time.Second
	}
	return &Checker{
		checks: make(map[string]CheckFunc),
		cache:  make(map[string]*Check),
		ttl:    ttl,
	}
}

// Register adds or replaces a check.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	delete(c.cache, name)
}

// Health runs every check whose cached result is stale and returns the
// overall status with the results sorted by name. The status is degraded
// while some checks fail and unhealthy once all of them do.
func (c *Checker) Health(ctx context.Context) (Health, []Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	checks := make([]Check, 0, len(names))
	for _, name := range names {
		cached, ok := c.cache[name]
		if !ok || time.Since(cached.LastChecked) >= c.ttl {
			start := time.Now()
			err := c.checks[name](ctx)

			cached = &Check{
				Name:        name,
				Status:      Healthy,
				LastChecked: time.Now(),
				DurationMS:  time.Since(start).Milliseconds(),
			}
			if err != nil {
				cached.Status = Unhealthy
				cached.Message = err.Error()
			}
			c.cache[name] = cached
		}

		if cached.Status != Healthy {
			failed++
		}
		checks = append(checks, *cached)
	}

	switch {
	case failed == 0:
		return Healthy, checks
	case failed == len(checks):
		return Unhealthy, checks
	default:
		return Degraded, checks
	}
}

// HealthHandler reports every check. It answers 200 while at least one
// check passes and 503 once all of them fail.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return c.handler(func(h Health) bool { return h != Unhealthy })
}

// ReadinessHandler answers 503 unless every check passes.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return c.handler(func(h Health) bool { return h == Healthy })
}

func (c *Checker) handler(ok func(Health) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, checks := c.Health(ctx)

		w.Header().Set("Content-Type", "application/json")
		if ok(status) {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}

// LivenessHandler always answers 200.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}
