package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CheckFunc probes one component. It returns nil when the component is
// healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of a single component check.
type CheckResult struct {
	// Status is "ok" or "unhealthy".
	Status string `json:"status"`

	// Message carries the failure detail for unhealthy components.
	Message string `json:"message,omitempty"`

	// DurationMs is how long the check took.
	DurationMs float64 `json:"durationMs"`
}

// Status is the aggregate result across all registered checks.
type Status struct {
	// Status is "ok" when every component passed, "unhealthy" when any
	// failed.
	Status string `json:"status"`

	// Checks holds the per-component results, keyed by name.
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Timestamp is when the checks ran.
	Timestamp time.Time `json:"timestamp"`
}

// Checker runs registered component checks with a per-check timeout.
// An edge node must stay alive even when the control plane is down, so
// checks should probe local resources only: the store, the cache, the
// rule snapshot. Connectivity belongs in the status endpoint, not here.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	checkTimeout time.Duration
}

// New creates a checker. A zero timeout defaults to 5 seconds per
// check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
	}
}

// Register adds a named component check, replacing any existing check
// with the same name.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Liveness reports process liveness. It never touches components.
func (c *Checker) Liveness() Status {
	return Status{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}
}

// Readiness runs every registered check concurrently and aggregates
// the results. With no checks registered the node is ready by
// definition.
func (c *Checker) Readiness(ctx context.Context) Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := Status{
		Status:    "ok",
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now().UTC(),
	}
	if len(checks) == 0 {
		return status
	}

	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			result := c.run(ctx, check)

			resultMu.Lock()
			status.Checks[name] = result
			if result.Status != "ok" {
				status.Status = "unhealthy"
			}
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	return status
}

func (c *Checker) run(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	err := runWithContext(checkCtx, check)
	elapsed := time.Since(start)

	result := CheckResult{
		Status:     "ok",
		DurationMs: float64(elapsed.Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = "unhealthy"
		result.Message = err.Error()
	}
	return result
}

// runWithContext bounds a check that may ignore its context. The
// goroutine is leaked only for the duration of the stuck check.
func runWithContext(ctx context.Context, check CheckFunc) error {
	done := make(chan error, 1)
	go func() { done <- check(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("health check timed out: %w", ctx.Err())
	}
}
