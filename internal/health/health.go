package health

import (
	"fmt"
	"sort"
	"sync"

	"github.com/loykin/pipeflow/internal/common"
)

// Status grades a component or the system as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusError     Status = "error"
	StatusUnknown   Status = "unknown"
)

// CheckFunc probes one component. True means healthy.
type CheckFunc func() bool

// Report is the outcome of checking all registered components.
type Report struct {
	Overall    Status
	Components map[string]Status
}

// Checker is a registry of named component health checks.
type Checker struct {
	mu         sync.Mutex
	checks     map[string]CheckFunc
	lastStatus map[string]Status
	logger     *common.Logger
}

// NewChecker creates an empty Checker.
func NewChecker(logger *common.Logger) *Checker {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Checker{
		checks:     make(map[string]CheckFunc),
		lastStatus: make(map[string]Status),
		logger:     logger.WithComponent("health"),
	}
}

// Register adds a component check under the given name, replacing any
// previous check with that name.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	c.lastStatus[name] = StatusUnknown
}

// Check probes every registered component. A panicking check marks its
// component as errored; any non-healthy component degrades the overall
// status.
func (c *Checker) Check() Report {
	c.mu.Lock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.Unlock()

	report := Report{
		Overall:    StatusHealthy,
		Components: make(map[string]Status, len(names)),
	}

	for _, name := range names {
		status := c.runCheck(name, checks[name])
		report.Components[name] = status
		if status != StatusHealthy {
			report.Overall = StatusDegraded
		}

		c.mu.Lock()
		c.lastStatus[name] = status
		c.mu.Unlock()
	}

	return report
}

func (c *Checker) runCheck(name string, check CheckFunc) (status Status) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("health check panicked", "component", name, "panic", fmt.Sprint(r))
			status = StatusError
		}
	}()
	if check() {
		return StatusHealthy
	}
	return StatusUnhealthy
}

// ComponentStatus returns the last observed status of one component.
func (c *Checker) ComponentStatus(name string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.lastStatus[name]; ok {
		return s
	}
	return StatusUnknown
}
