package event

import (
	"time"
)

// Type enumerates the lifecycle events the core emits.
type Type string

const (
	PipelineStarted   Type = "pipeline-started"
	PipelineSucceeded Type = "pipeline-succeeded"
	PipelineFailed    Type = "pipeline-failed"
	FixAttemptStarted Type = "fix-attempt-started"
	FixResolved       Type = "fix-resolved"
	FixExhausted      Type = "fix-exhausted"
)

// Event is one structured lifecycle notification. Alerting and metrics
// collaborators consume these; the core never depends on what they do with
// them.
type Event struct {
	Type     Type
	RunID    string
	Pipeline string
	Time     time.Time
	Duration time.Duration
	// Attempt is the fix attempt number for fix-* events, zero otherwise.
	Attempt int
	// Error carries the failure text for pipeline-failed and fix-exhausted.
	Error string
}

// Sink consumes events. Implementations must be safe for concurrent use;
// a sink error never propagates into pipeline execution.
type Sink interface {
	HandleEvent(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

// HandleEvent implements Sink.
func (f SinkFunc) HandleEvent(e Event) { f(e) }
