package handlers

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker is what the /health and /ready endpoints consume.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	AddCheck(name string, check HealthCheckFunc)
}

// HealthCheckFunc returns an error if the dependency is unhealthy.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated result. A failing optional check leaves the
// service healthy and ready but marks it Degraded.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Healthy     bool      `json:"healthy"`
	Optional    bool      `json:"optional,omitempty"`
	Message     string    `json:"message,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

type namedCheck struct {
	name     string
	fn       HealthCheckFunc
	optional bool
}

// CompositeHealthChecker runs its checks concurrently, each under its own
// timeout.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	checks  []namedCheck
	started time.Time
	version string
	timeout time.Duration
}

// NewCompositeHealthChecker creates a checker with a 5s per-check timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{started: time.Now(), version: version, timeout: 5 * time.Second}
}

func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	c.timeout = timeout
	c.mu.Unlock()
}

// AddCheck registers a check the service cannot run without. A check with
// the same name is replaced.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(namedCheck{name: name, fn: check})
}

// AddOptionalCheck registers a dependency the service can run without.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, check HealthCheckFunc) {
	c.add(namedCheck{name: name, fn: check, optional: true})
}

func (c *CompositeHealthChecker) add(nc namedCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = slices.DeleteFunc(c.checks, func(x namedCheck) bool { return x.name == nc.name })
	c.checks = append(c.checks, nc)
}

// Check runs every check and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := slices.Clone(c.checks)
	timeout := c.timeout
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, nc := range checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, nc, timeout)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	var failed, degraded []string
	for i, nc := range checks {
		status.Checks[nc.name] = results[i]
		switch {
		case results[i].Healthy:
		case nc.optional:
			degraded = append(degraded, nc.name)
		default:
			failed = append(failed, nc.name)
		}
	}
	slices.Sort(failed)
	slices.Sort(degraded)

	switch {
	case len(checks) == 0:
		status.Message = "No health checks registered"
	case len(failed) > 0:
		status.Healthy, status.Ready = false, false
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	case len(degraded) > 0:
		status.Degraded = true
		status.Message = "Running without: " + strings.Join(degraded, ", ")
	default:
		status.Message = "All checks passed"
	}
	return status
}

func runCheck(ctx context.Context, nc namedCheck, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := nc.fn(ctx)
	res := CheckResult{
		Healthy:     err == nil,
		Optional:    nc.optional,
		Message:     "OK",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// Pinger is satisfied by the Postgres pool and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck adapts a Pinger.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}
