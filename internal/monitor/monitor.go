package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// MinInterval is the floor for the polling interval. Anything lower is
// clamped so a misconfigured monitor cannot hot-loop against the change
// source.
const MinInterval = 5 * time.Second

// Dispatcher runs one pipeline to its final outcome, including any auto-fix
// cycle. Satisfied by the orchestrator.
type Dispatcher interface {
	Dispatch(ctx context.Context, typ pipeline.Type) (*engine.RunRecord, error)
}

// Config holds the monitor's dependencies and policy.
type Config struct {
	Source     ChangeSource
	Dispatcher Dispatcher
	// Interval between polls; clamped to MinInterval.
	Interval time.Duration
	// Branch handed to Pull when new commits appear.
	Branch string
	// AutoDeploy runs the deploy pipeline after build and test both succeed.
	AutoDeploy bool
	Logger     *common.Logger
}

// Monitor is the single long-lived polling loop: one iteration per
// interval, each iteration isolated so one bad poll can never kill
// monitoring.
type Monitor struct {
	source     ChangeSource
	dispatcher Dispatcher
	interval   time.Duration
	branch     string
	autoDeploy bool
	logger     *common.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a Monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("monitor: change source is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("monitor: dispatcher is required")
	}
	interval := cfg.Interval
	if interval < MinInterval {
		interval = MinInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Monitor{
		source:     cfg.Source,
		dispatcher: cfg.Dispatcher,
		interval:   interval,
		branch:     cfg.Branch,
		autoDeploy: cfg.AutoDeploy,
		logger:     logger.WithComponent("monitor"),
	}, nil
}

// Start launches the polling loop in a background goroutine. It is an
// error to start a monitor twice.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("monitor: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.started = true

	go m.loop(ctx)

	m.logger.Info("change monitor started",
		"interval", m.interval,
		"branch", m.branch,
		"auto_deploy", m.autoDeploy)
	return nil
}

// Stop stops the loop and waits for the current iteration to finish. It is
// idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("change monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Poll(ctx); err != nil && ctx.Err() == nil {
				// Logged and swallowed: the loop always re-arms.
				m.logger.Error("monitor iteration failed", "error", err)
			}
		}
	}
}

// Poll runs one monitor iteration: compare heads, and when remote moved,
// pull and drive the build -> test -> deploy chain. A panic inside the
// iteration is converted to an error.
func (m *Monitor) Poll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor iteration panicked: %v", r)
		}
	}()

	remote, err := m.source.FetchHead(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch remote head: %w", err)
	}
	local, err := m.source.LocalHead(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local head: %w", err)
	}

	if !m.source.HasNewCommits(local, remote) {
		m.logger.Debug("no new commits", "head", local)
		return nil
	}

	m.logger.Info("new commits detected", "local", local, "remote", remote)
	if err := m.source.Pull(ctx, m.branch); err != nil {
		return fmt.Errorf("failed to pull: %w", err)
	}

	return m.runChain(ctx)
}

// runChain drives build, then test only when build succeeded, then deploy
// only when both succeeded and auto-deploy is on. Failures hand off to the
// recovery coordinator inside Dispatch; a chain link only continues on a
// final success.
func (m *Monitor) runChain(ctx context.Context) error {
	buildRec, err := m.dispatcher.Dispatch(ctx, pipeline.TypeBuild)
	if err != nil {
		return fmt.Errorf("build dispatch failed: %w", err)
	}
	if buildRec.Status() != engine.StatusSuccess {
		m.logger.Warn("build did not succeed, stopping chain",
			"run_id", buildRec.ID(),
			"status", buildRec.Status().String())
		return nil
	}

	testRec, err := m.dispatcher.Dispatch(ctx, pipeline.TypeTest)
	if err != nil {
		return fmt.Errorf("test dispatch failed: %w", err)
	}
	if testRec.Status() != engine.StatusSuccess {
		m.logger.Warn("tests did not succeed, stopping chain",
			"run_id", testRec.ID(),
			"status", testRec.Status().String())
		return nil
	}

	if !m.autoDeploy {
		m.logger.Info("build and test succeeded, auto-deploy disabled")
		return nil
	}

	deployRec, err := m.dispatcher.Dispatch(ctx, pipeline.TypeDeploy)
	if err != nil {
		return fmt.Errorf("deploy dispatch failed: %w", err)
	}
	m.logger.Info("deploy finished",
		"run_id", deployRec.ID(),
		"status", deployRec.Status().String())
	return nil
}
