package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/pipeflow/internal/alert"
	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/event"
	"github.com/loykin/pipeflow/internal/executor"
	"github.com/loykin/pipeflow/internal/health"
	"github.com/loykin/pipeflow/internal/metrics"
	"github.com/loykin/pipeflow/internal/monitor"
	"github.com/loykin/pipeflow/internal/pipeline"
	"github.com/loykin/pipeflow/internal/recovery"
	"github.com/loykin/pipeflow/internal/registry"
)

// Config is the already-validated configuration the orchestrator consumes.
type Config struct {
	// RepoURL and Branch identify what gets built.
	RepoURL string
	Branch  string

	// WatchDir is the local working copy the change monitor polls. Empty
	// disables monitoring; pipelines can still be triggered explicitly.
	WatchDir string

	// WorkspaceRoot is where per-run workspaces are created.
	WorkspaceRoot string

	// PollInterval between monitor iterations; clamped to a sane minimum.
	PollInterval time.Duration

	// AutoDeploy runs the deploy pipeline after build and test succeed.
	AutoDeploy bool

	// AutoFix enables the recovery coordinator.
	AutoFix bool

	// MaxFixAttempts bounds the auto-fix cycle. This value is
	// authoritative; per-pipeline retry counters are ignored to avoid
	// double-bounding. Zero means the default of 3.
	MaxFixAttempts int

	// AIFixer enables the generic fallback fixer when set.
	AIFixer *recovery.AIFixerConfig

	// AlertWebhookURL adds a webhook alert channel when set.
	AlertWebhookURL    string
	AlertWebhookSecret string

	// Definitions overrides the built-in pipeline set.
	Definitions map[pipeline.Type]*pipeline.Definition

	// Timeouts overrides the per-action execution ceilings.
	Timeouts *executor.Timeouts

	// Source overrides the default git change source.
	Source monitor.ChangeSource

	Logger *common.Logger
}

// Orchestrator wires the engine, registry, recovery coordinator, change
// monitor, and the alert/metrics/health collaborators into one unit. It is
// the trigger interface consumed by the CLI and the embedded server.
type Orchestrator struct {
	cfg     Config
	logger  *common.Logger
	defs    map[pipeline.Type]*pipeline.Definition
	events  *event.Dispatcher
	engine  *engine.Engine
	runs    *registry.Registry
	coord   *recovery.Coordinator
	monitor *monitor.Monitor
	alerter *alert.Alerter
	tracker *metrics.Tracker
	checker *health.Checker
}

// New builds an Orchestrator from validated configuration. Pipeline
// definitions are validated here; a malformed definition fails construction
// rather than surfacing at run time.
func New(cfg Config) (*Orchestrator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = common.GetLogger()
	}

	defs := cfg.Definitions
	if defs == nil {
		defs = pipeline.BuiltinDefinitions()
	}
	for typ, def := range defs {
		if err := pipeline.Validate(def); err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", typ, err)
		}
	}

	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("orchestrator: workspace root is required")
	}

	events := event.NewDispatcher(logger)

	alerter := alert.NewAlerter(logger, alert.NewConsoleChannel(logger))
	if cfg.AlertWebhookURL != "" {
		webhook, err := alert.NewWebhookChannel(cfg.AlertWebhookURL, cfg.AlertWebhookSecret)
		if err != nil {
			return nil, err
		}
		alerter.AddChannel(webhook)
	}
	events.Subscribe(alerter)

	tracker := metrics.NewTracker()
	events.Subscribe(tracker)

	execOpts := []executor.Option{executor.WithLogger(logger)}
	if cfg.Timeouts != nil {
		execOpts = append(execOpts, executor.WithTimeouts(*cfg.Timeouts))
	}
	exec := executor.New(execOpts...)

	runs := registry.New()
	eng, err := engine.New(engine.Config{
		Executor: exec,
		Registry: runs,
		Events:   events,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger.WithComponent("orchestrator"),
		defs:    defs,
		events:  events,
		engine:  eng,
		runs:    runs,
		alerter: alerter,
		tracker: tracker,
	}

	if cfg.AutoFix {
		maxAttempts := cfg.MaxFixAttempts
		if maxAttempts <= 0 {
			maxAttempts = 3
		}

		var fallback recovery.Fixer
		if cfg.AIFixer != nil {
			fallback, err = recovery.NewAIFixer(*cfg.AIFixer, logger)
			if err != nil {
				return nil, err
			}
		}

		o.coord, err = recovery.New(recovery.Config{
			Engine:         eng,
			MaxFixAttempts: maxAttempts,
			Fixers: map[pipeline.Type]recovery.Fixer{
				pipeline.TypeBuild: recovery.NewBuildFixer(),
				pipeline.TypeTest:  recovery.NewTestFixer(),
			},
			Fallback: fallback,
			Events:   events,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.WatchDir != "" {
		source := cfg.Source
		if source == nil {
			source = monitor.NewGitSource(cfg.WatchDir, cfg.Branch)
		}
		o.monitor, err = monitor.New(monitor.Config{
			Source:     source,
			Dispatcher: o,
			Interval:   cfg.PollInterval,
			Branch:     cfg.Branch,
			AutoDeploy: cfg.AutoDeploy,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	}

	o.checker = newHealthChecker(o, logger)
	return o, nil
}

// Start launches the change monitor. It is a no-op when no watch directory
// was configured.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.monitor == nil {
		o.logger.Info("no watch directory configured, monitor not started")
		return nil
	}
	return o.monitor.Start(ctx)
}

// Stop stops the change monitor.
func (o *Orchestrator) Stop() {
	if o.monitor != nil {
		o.monitor.Stop()
	}
}

// TriggerPipeline runs the named pipeline to its final outcome, including
// the auto-fix cycle when enabled.
func (o *Orchestrator) TriggerPipeline(ctx context.Context, typ pipeline.Type) (*engine.RunRecord, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown pipeline type %q", typ)
	}
	return o.Dispatch(ctx, typ)
}

// Dispatch implements monitor.Dispatcher: execute the pipeline, and on
// failure hand off to the recovery coordinator when policy allows. The
// returned record is the final one (after any successful retry).
func (o *Orchestrator) Dispatch(ctx context.Context, typ pipeline.Type) (*engine.RunRecord, error) {
	def, ok := o.defs[typ]
	if !ok {
		return nil, fmt.Errorf("no definition for pipeline %s", typ)
	}

	ec, err := o.newContext(typ)
	if err != nil {
		return nil, err
	}

	rec := o.engine.Run(ctx, def, ec)
	if rec.Status() != engine.StatusFailed {
		return rec, nil
	}

	if o.coord == nil || !def.OnFailure.Recover {
		return rec, nil
	}
	report := rec.Failure()
	if report == nil {
		return rec, nil
	}

	outcome := o.coord.Recover(ctx, def, ec, report)
	if outcome.FinalRun != nil {
		return outcome.FinalRun, nil
	}
	return rec, nil
}

// CancelRun flags a running pipeline as cancelled.
func (o *Orchestrator) CancelRun(id string) error {
	return o.runs.Cancel(id)
}

// Runs returns the run registry for status queries.
func (o *Orchestrator) Runs() *registry.Registry { return o.runs }

// Metrics returns the metrics tracker.
func (o *Orchestrator) Metrics() *metrics.Tracker { return o.tracker }

// Alerter returns the alerter.
func (o *Orchestrator) Alerter() *alert.Alerter { return o.alerter }

// Health returns the component health checker.
func (o *Orchestrator) Health() *health.Checker { return o.checker }

// Events returns the event dispatcher so additional sinks can subscribe.
func (o *Orchestrator) Events() *event.Dispatcher { return o.events }

// newContext creates a fresh per-dispatch execution context rooted in its
// own workspace directory. The context is owned by that dispatch alone.
func (o *Orchestrator) newContext(typ pipeline.Type) (*pipeline.ExecutionContext, error) {
	workspace := filepath.Join(o.cfg.WorkspaceRoot,
		fmt.Sprintf("%s-%d", typ, time.Now().UnixNano()))
	if err := os.MkdirAll(workspace, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	ec := pipeline.NewExecutionContext(o.cfg.RepoURL, o.cfg.Branch, workspace)
	// Pipelines without a clone stage (test, deploy) run against the
	// monitored working copy; a clone task overrides this per run.
	if o.cfg.WatchDir != "" {
		ec.RepoPath = o.cfg.WatchDir
	}
	return ec, nil
}

// newHealthChecker registers the orchestrator's standard component checks.
func newHealthChecker(o *Orchestrator, logger *common.Logger) *health.Checker {
	checker := health.NewChecker(logger)

	checker.Register("workspace", func() bool {
		info, err := os.Stat(o.cfg.WorkspaceRoot)
		return err == nil && info.IsDir()
	})

	if o.cfg.WatchDir != "" {
		checker.Register("change-source", func() bool {
			_, err := os.Stat(filepath.Join(o.cfg.WatchDir, ".git"))
			return err == nil
		})
	}

	checker.Register("run-registry", func() bool {
		// A growing backlog of non-terminal runs means executions are
		// getting stuck instead of finishing.
		return len(o.runs.Active()) < 100
	})

	return checker
}
