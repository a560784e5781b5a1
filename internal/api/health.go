package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/campaignsync/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status   string `json:"status"` // "up", "down", "degraded"
	Latency  string `json:"latency,omitempty"`
	Message  string `json:"message,omitempty"`
	Critical bool   `json:"critical"`
}

// Check probes one dependency.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Probe    func(ctx context.Context) error
}

// HealthChecker runs the registered dependency checks.
type HealthChecker struct {
	checks    []Check
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(checks ...Check) *HealthChecker {
	return &HealthChecker{checks: checks, startTime: time.Now()}
}

// HandleHealth reports every check. The response is always 200; the
// status field carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status: determineOverallStatus(checks),
		Uptime: time.Since(hc.startTime).Round(time.Second).String(),
		Checks: checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, len(hc.checks))
	for _, c := range hc.checks {
		go func(c Check) { ch <- result{c.Name, runCheck(ctx, c)} }(c)
	}
	checks := make(map[string]ComponentCheck, len(hc.checks))
	for range hc.checks {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func runCheck(ctx context.Context, c Check) ComponentCheck {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.Probe(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{
			Status:   "down",
			Latency:  latency.String(),
			Message:  fmt.Sprintf("check failed: %v", err),
			Critical: c.Critical,
		}
	}
	check := ComponentCheck{Status: "up", Latency: latency.String(), Message: "ok", Critical: c.Critical}
	if latency > timeout/2 {
		check.Status = "degraded"
		check.Message = fmt.Sprintf("slow response (%s)", latency)
	}
	return check
}

// determineOverallStatus is unhealthy when a critical check is down and
// degraded when anything else is not up.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	overall := "healthy"
	for _, c := range checks {
		switch {
		case c.Status == "down" && c.Critical:
			return "unhealthy"
		case c.Status != "up":
			overall = "degraded"
		}
	}
	return overall
}
