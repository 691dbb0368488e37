package recovery

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/event"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// State is the coordinator's position in one auto-fix cycle.
type State string

const (
	StateIdle       State = "idle"
	StateDiagnosing State = "diagnosing"
	StateFixing     State = "fixing"
	StateRetrying   State = "retrying"
	StateResolved   State = "resolved"
	StateExhausted  State = "exhausted"
)

// PipelineRunner re-executes a pipeline definition. Satisfied by
// *engine.Engine.
type PipelineRunner interface {
	Run(ctx context.Context, def *pipeline.Definition, ec *pipeline.ExecutionContext) *engine.RunRecord
}

// Backoff paces consecutive fix attempts so a flapping failure does not
// burn the retry budget in a tight loop.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultBackoff returns the default attempt pacing.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     time.Minute,
		Factor:       2.0,
	}
}

func (b Backoff) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return b.InitialDelay
	}
	d := time.Duration(float64(b.InitialDelay) * math.Pow(b.Factor, float64(attempt-1)))
	if d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

// Config holds the coordinator's dependencies and policy.
type Config struct {
	// Engine re-runs the pipeline after a fix. Required.
	Engine PipelineRunner
	// MaxFixAttempts bounds the total attempts per originating failure.
	// This value is authoritative; the per-pipeline retry_count is not
	// consulted here.
	MaxFixAttempts int
	// Fixers routes by pipeline type (build and test by default).
	Fixers map[pipeline.Type]Fixer
	// Fallback handles unrouted failures and escalations. Optional.
	Fallback Fixer
	Events   *event.Dispatcher
	Logger   *common.Logger
	Backoff  Backoff
}

// Outcome reports how an auto-fix cycle ended.
type Outcome struct {
	State    State
	Attempts int
	// FinalRun is the last retry's record, nil when no retry ever ran.
	FinalRun *engine.RunRecord
}

// Coordinator drives the bounded diagnose -> fix -> retry cycle around one
// originating pipeline failure.
type Coordinator struct {
	engine      PipelineRunner
	maxAttempts int
	fixers      map[pipeline.Type]Fixer
	fallback    Fixer
	events      *event.Dispatcher
	logger      *common.Logger
	backoff     Backoff
	apply       applier
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("recovery: engine is required")
	}
	if cfg.MaxFixAttempts <= 0 {
		return nil, fmt.Errorf("recovery: max fix attempts must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	events := cfg.Events
	if events == nil {
		events = event.NewDispatcher(logger)
	}
	backoff := cfg.Backoff
	if backoff.InitialDelay == 0 {
		backoff = DefaultBackoff()
	}
	return &Coordinator{
		engine:      cfg.Engine,
		maxAttempts: cfg.MaxFixAttempts,
		fixers:      cfg.Fixers,
		fallback:    cfg.Fallback,
		events:      events,
		logger:      logger.WithComponent("recovery"),
		backoff:     backoff,
		apply:       newFixApplier(logger),
	}, nil
}

// Recover runs the auto-fix cycle for the given failure. Attempts are
// strictly sequential; the cycle ends at the first successful retry
// (Resolved) or after MaxFixAttempts failed attempts (Exhausted), whichever
// comes first. The failure detail of a failed retry feeds the next attempt
// so later attempts see the current error signature.
func (c *Coordinator) Recover(ctx context.Context, def *pipeline.Definition, ec *pipeline.ExecutionContext, report *engine.FailureReport) Outcome {
	logger := c.logger.WithPipeline(string(report.Pipeline))
	logger.Info("starting auto-fix cycle",
		"stage", report.Stage,
		"task", report.Task,
		"max_attempts", c.maxAttempts)

	var lastRun *engine.RunRecord
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			logger.Warn("auto-fix cycle cancelled", "attempt", attempt)
			return Outcome{State: StateIdle, Attempts: attempt - 1, FinalRun: lastRun}
		}

		c.events.Emit(event.Event{
			Type:     event.FixAttemptStarted,
			RunID:    report.RunID,
			Pipeline: string(report.Pipeline),
			Attempt:  attempt,
		})
		attemptLogger := logger.WithAttempt(attempt)

		retryRun, err := c.attempt(ctx, def, ec, report, attemptLogger)
		if retryRun != nil {
			lastRun = retryRun
		}

		if retryRun != nil && retryRun.Status() == engine.StatusSuccess {
			attemptLogger.Info("failure resolved", "run_id", retryRun.ID())
			c.events.Emit(event.Event{
				Type:     event.FixResolved,
				RunID:    retryRun.ID(),
				Pipeline: string(report.Pipeline),
				Attempt:  attempt,
			})
			return Outcome{State: StateResolved, Attempts: attempt, FinalRun: retryRun}
		}

		if err != nil {
			attemptLogger.Warn("fix attempt failed", "error", err)
		} else if retryRun != nil {
			attemptLogger.Warn("retry run failed", "run_id", retryRun.ID())
		}

		// A failed retry's failure detail drives the next attempt.
		if retryRun != nil {
			if f := retryRun.Failure(); f != nil {
				report = f
			}
		}

		if attempt < c.maxAttempts {
			if !c.wait(ctx, c.backoff.delay(attempt)) {
				logger.Warn("auto-fix cycle cancelled while waiting", "attempt", attempt)
				return Outcome{State: StateIdle, Attempts: attempt, FinalRun: lastRun}
			}
		}
	}

	logger.Error("auto-fix attempts exhausted",
		"attempts", c.maxAttempts,
		"error", report.Error)
	c.events.Emit(event.Event{
		Type:     event.FixExhausted,
		RunID:    report.RunID,
		Pipeline: string(report.Pipeline),
		Attempt:  c.maxAttempts,
		Error:    report.Error,
	})
	return Outcome{State: StateExhausted, Attempts: c.maxAttempts, FinalRun: lastRun}
}

// attempt performs one diagnose -> fix -> retry pass. It returns the retry
// run when one happened, and an error when the attempt died before the
// retry (no fixer, unfixable, fix application failed).
func (c *Coordinator) attempt(ctx context.Context, def *pipeline.Definition, ec *pipeline.ExecutionContext, report *engine.FailureReport, logger *common.Logger) (*engine.RunRecord, error) {
	// Diagnosing: route by pipeline type.
	fixer := c.fixers[report.Pipeline]
	if fixer == nil {
		fixer = c.fallback
	}
	if fixer == nil {
		return nil, fmt.Errorf("no fixer available for pipeline %s", report.Pipeline)
	}

	desc, err := c.diagnoseAndFix(ctx, fixer, report, ec, logger)
	if err != nil && c.fallback != nil && fixer != c.fallback {
		// Escalate to the generic fixer within the same attempt.
		logger.Info("escalating to fallback fixer",
			"from", fixer.Name(),
			"to", c.fallback.Name())
		desc, err = c.diagnoseAndFix(ctx, c.fallback, report, ec, logger)
	}
	if err != nil {
		return nil, err
	}

	// Fixing: file writes first, then commands, in order.
	if err := c.apply.Apply(ctx, desc, ec); err != nil {
		return nil, fmt.Errorf("failed to apply fix: %w", err)
	}

	// Retrying: same definition, same (possibly fixer-mutated) context.
	logger.Info("retrying pipeline after fix")
	return c.engine.Run(ctx, def, ec), nil
}

func (c *Coordinator) diagnoseAndFix(ctx context.Context, fixer Fixer, report *engine.FailureReport, ec *pipeline.ExecutionContext, logger *common.Logger) (*FixDescriptor, error) {
	classification := fixer.Diagnose(report)
	logger.Debug("failure diagnosed",
		"fixer", fixer.Name(),
		"category", string(classification.Category))

	desc, err := fixer.Fix(ctx, classification, ec)
	if err != nil {
		return nil, fmt.Errorf("fixer %s: %w", fixer.Name(), err)
	}
	if desc.Empty() {
		return nil, fmt.Errorf("fixer %s: %w", fixer.Name(), ErrUnfixable)
	}
	return desc, nil
}

// wait sleeps for the backoff delay, respecting cancellation.
func (c *Coordinator) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
