package engine

import (
	"sync"
	"time"

	"github.com/loykin/pipeflow/internal/pipeline"
)

// RunStatus is the lifecycle state of one pipeline run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSuccess   RunStatus = "success"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// String returns the string representation of the status.
func (s RunStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is final. A record is frozen once its
// status leaves running.
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// TaskResult is the recorded outcome of one task execution.
type TaskResult struct {
	Name     string
	Action   string
	Success  bool
	Output   string
	Error    string
	Duration time.Duration
}

// StageResult is the recorded outcome of one stage.
type StageResult struct {
	Name      string
	Success   bool
	Tasks     []TaskResult
	StartTime time.Time
	EndTime   time.Time
}

// FailureReport captures what failed, for the recovery coordinator and for
// alerting.
type FailureReport struct {
	RunID    string
	Pipeline pipeline.Type
	Stage    string
	Task     string
	Error    string
	Output   string
}

// RunRecord tracks one run from trigger to terminal status. Its stage list
// is append-only while running and frozen afterwards; all mutation goes
// through the record's own lock so the registry and the engine can share it.
type RunRecord struct {
	mu       sync.Mutex
	id       string
	pipeline pipeline.Type
	status   RunStatus
	start    time.Time
	end      time.Time
	stages   []StageResult
	failure  *FailureReport
}

// NewRunRecord creates a pending record for the given run id.
func NewRunRecord(id string, typ pipeline.Type) *RunRecord {
	return &RunRecord{
		id:       id,
		pipeline: typ,
		status:   StatusPending,
	}
}

// ID returns the unique run id.
func (r *RunRecord) ID() string { return r.id }

// Pipeline returns the pipeline type of the run.
func (r *RunRecord) Pipeline() pipeline.Type { return r.pipeline }

// Status returns the current status.
func (r *RunRecord) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Cancelled reports whether the run was cancelled. The engine checks this
// between task boundaries and stops launching further tasks.
func (r *RunRecord) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == StatusCancelled
}

// Failure returns the failure report, or nil for non-failed runs.
func (r *RunRecord) Failure() *FailureReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// markRunning transitions pending -> running and records the start time.
func (r *RunRecord) markRunning(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPending {
		return
	}
	r.status = StatusRunning
	r.start = now
}

// appendStage appends a stage result. Appends after the run reached a
// terminal status are dropped; the record is frozen by then.
func (r *RunRecord) appendStage(sr StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	r.stages = append(r.stages, sr)
}

// finish transitions running -> the given terminal status. A record already
// terminal (e.g. cancelled concurrently) is left untouched.
func (r *RunRecord) finish(status RunStatus, now time.Time, failure *FailureReport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return false
	}
	r.status = status
	r.end = now
	r.failure = failure
	return true
}

// Cancel flags a running record as cancelled and records the end time. It
// returns false without touching the record when the run is not running.
func (r *RunRecord) Cancel(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return false
	}
	r.status = StatusCancelled
	r.end = now
	return true
}

// Snapshot is an immutable copy of a record's state for status queries.
type Snapshot struct {
	ID        string
	Pipeline  pipeline.Type
	Status    RunStatus
	StartTime time.Time
	EndTime   time.Time
	Stages    []StageResult
	Failure   *FailureReport
}

// Duration returns the wall time of the run, zero while it has not started.
func (s Snapshot) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Snapshot returns a copy of the record's current state.
func (r *RunRecord) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	stages := make([]StageResult, len(r.stages))
	copy(stages, r.stages)

	var failure *FailureReport
	if r.failure != nil {
		f := *r.failure
		failure = &f
	}

	return Snapshot{
		ID:        r.id,
		Pipeline:  r.pipeline,
		Status:    r.status,
		StartTime: r.start,
		EndTime:   r.end,
		Stages:    stages,
		Failure:   failure,
	}
}
