// Package health runs pre-flight checks against the backends a dedup run
// needs. Components register Check functions and the Checker probes them all
// at once, producing a Report whose status is the worst component status.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the health state of a component or of the whole run.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// severity orders statuses from best to worst.
func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check probes a single dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status
	Message string
	Latency time.Duration
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status
	Components map[string]ComponentHealth
	CheckedAt  time.Time
}

// Failing returns the names of components reported down, sorted.
func (r Report) Failing() []string {
	var names []string
	for name, comp := range r.Components {
		if comp.Status == StatusDown {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Err summarises a down report as an error, or returns nil.
func (r Report) Err() error {
	if r.Status != StatusDown {
		return nil
	}
	failing := r.Failing()
	parts := make([]string, 0, len(failing))
	for _, name := range failing {
		parts = append(parts, fmt.Sprintf("%s: %s", name, r.Components[name].Message))
	}
	return fmt.Errorf("pre-flight checks failed: %s", strings.Join(parts, "; "))
}

// PingCheck adapts a ping function into a Check.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Checker holds the registered checks.
type Checker struct {
	mu     sync.Mutex
	checks map[string]Check
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a named check, replacing any check of the same name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run probes every registered component concurrently and waits for all of
// them. ctx bounds the whole round.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	names := make([]string, 0, len(c.checks))
	checks := make([]Check, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		checks = append(checks, c.checks[name])
	}
	c.mu.Unlock()

	results := make([]ComponentHealth, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			start := time.Now()
			res := check(ctx)
			res.Latency = time.Since(start)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		CheckedAt:  time.Now().UTC(),
	}
	for i, name := range names {
		res := results[i]
		if res.Status != StatusUp && res.Status != StatusDegraded {
			res.Status = StatusDown
		}
		report.Components[name] = res
		if res.Status.severity() > report.Status.severity() {
			report.Status = res.Status
		}
		switch res.Status {
		case StatusUp:
			c.logger.Debug("component up", "component_name", name, "latency", res.Latency)
		case StatusDegraded:
			c.logger.Warn("component degraded", "component_name", name, "message", res.Message)
		default:
			c.logger.Error("component down", "component_name", name, "message", res.Message)
		}
	}
	return report
}
