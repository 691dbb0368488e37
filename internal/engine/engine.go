package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/event"
	"github.com/loykin/pipeflow/internal/executor"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// TaskRunner executes one task against an execution context. Satisfied by
// *executor.Executor; tests substitute fakes.
type TaskRunner interface {
	Execute(ctx context.Context, t pipeline.Task, ec *pipeline.ExecutionContext) executor.Result
}

// Registrar records new runs. Satisfied by *registry.Registry.
type Registrar interface {
	Register(rec *RunRecord) error
}

// Engine executes pipeline definitions. It never retries internally; retry
// and repair are layered above by the recovery coordinator.
type Engine struct {
	exec     TaskRunner
	registry Registrar
	events   *event.Dispatcher
	logger   *common.Logger
}

// Config holds the engine's dependencies.
type Config struct {
	Executor TaskRunner
	Registry Registrar
	Events   *event.Dispatcher
	Logger   *common.Logger
}

// New creates an Engine. Executor and Registry are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("engine: executor is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	events := cfg.Events
	if events == nil {
		events = event.NewDispatcher(logger)
	}
	return &Engine{
		exec:     cfg.Executor,
		registry: cfg.Registry,
		events:   events,
		logger:   logger.WithComponent("engine"),
	}, nil
}

// Run executes the definition against the context and returns the run's
// record with a terminal status. Stages execute in declaration order; the
// first task failure aborts the stage and the remaining stages. Task
// failures never escape as panics past this boundary.
func (e *Engine) Run(ctx context.Context, def *pipeline.Definition, ec *pipeline.ExecutionContext) *RunRecord {
	rec := NewRunRecord(uuid.NewString(), def.Type())
	now := time.Now().UTC()
	rec.markRunning(now)

	if err := e.registry.Register(rec); err != nil {
		rec.finish(StatusFailed, time.Now().UTC(), &FailureReport{
			RunID:    rec.ID(),
			Pipeline: rec.Pipeline(),
			Error:    fmt.Sprintf("failed to register run: %v", err),
		})
		return rec
	}

	logger := e.logger.WithRun(rec.ID()).WithPipeline(def.Name)
	logger.Info("pipeline started", "stages", len(def.Stages), "version", def.Version)
	e.events.Emit(event.Event{
		Type:     event.PipelineStarted,
		RunID:    rec.ID(),
		Pipeline: def.Name,
	})

	for _, stage := range def.Stages {
		if rec.Cancelled() {
			logger.Warn("run cancelled, stopping before stage", "stage", stage.Name)
			return rec
		}

		sr, failed := e.runStage(ctx, rec, stage, ec, logger)
		rec.appendStage(sr)

		if failed != nil {
			end := time.Now().UTC()
			if rec.finish(StatusFailed, end, failed) {
				logger.Error("pipeline failed",
					"stage", failed.Stage,
					"task", failed.Task,
					"error", failed.Error)
				e.events.Emit(event.Event{
					Type:     event.PipelineFailed,
					RunID:    rec.ID(),
					Pipeline: def.Name,
					Duration: end.Sub(now),
					Error:    failed.Error,
				})
			}
			return rec
		}
	}

	end := time.Now().UTC()
	if rec.finish(StatusSuccess, end, nil) {
		logger.Info("pipeline succeeded", "duration", end.Sub(now))
		e.events.Emit(event.Event{
			Type:     event.PipelineSucceeded,
			RunID:    rec.ID(),
			Pipeline: def.Name,
			Duration: end.Sub(now),
		})
	}
	return rec
}

// runStage executes one stage's tasks in order. It returns the stage result
// and, when a task failed, the failure report for the run.
func (e *Engine) runStage(ctx context.Context, rec *RunRecord, stage pipeline.Stage, ec *pipeline.ExecutionContext, logger *common.Logger) (StageResult, *FailureReport) {
	sr := StageResult{
		Name:      stage.Name,
		Success:   true,
		StartTime: time.Now().UTC(),
	}

	for _, task := range stage.Tasks {
		if rec.Cancelled() {
			sr.Success = false
			sr.EndTime = time.Now().UTC()
			return sr, nil
		}

		taskStart := time.Now()
		res := e.runTask(ctx, task, ec)
		tr := TaskResult{
			Name:     task.Name,
			Action:   task.Action.String(),
			Success:  res.Success,
			Output:   res.Output,
			Duration: time.Since(taskStart),
		}
		if res.Err != nil {
			tr.Error = res.Err.Error()
		}
		sr.Tasks = append(sr.Tasks, tr)

		if !res.Success {
			sr.Success = false
			sr.EndTime = time.Now().UTC()
			return sr, &FailureReport{
				RunID:    rec.ID(),
				Pipeline: rec.Pipeline(),
				Stage:    stage.Name,
				Task:     task.Name,
				Error:    tr.Error,
				Output:   res.Output,
			}
		}

		logger.Debug("task completed", "stage", stage.Name, "task", task.Name, "duration", tr.Duration)
	}

	sr.EndTime = time.Now().UTC()
	return sr, nil
}

// runTask invokes the executor with panic recovery: an uncaught panic from a
// task action is converted into a failure result, identical to a reported
// failure.
func (e *Engine) runTask(ctx context.Context, task pipeline.Task, ec *pipeline.ExecutionContext) (res executor.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked", "task", task.Name, "panic", r)
			res = executor.Result{
				Success: false,
				Err:     fmt.Errorf("task %s panicked: %v", task.Name, r),
			}
		}
	}()
	return e.exec.Execute(ctx, task, ec)
}
