package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/event"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert is one notification sent to the configured channels.
type Alert struct {
	Severity  Severity
	Title     string
	Message   string
	Metadata  map[string]string
	Timestamp time.Time
}

// Channel delivers alerts somewhere. A failing channel is logged and
// skipped; delivery errors never propagate to the caller.
type Channel interface {
	Name() string
	Notify(a Alert) error
}

// Alerter fans alerts out to channels and keeps an in-memory history that
// survives until process restart.
type Alerter struct {
	mu       sync.Mutex
	channels []Channel
	history  []Alert
	logger   *common.Logger

	// recovering tracks pipelines with an active auto-fix cycle so that
	// retry-run failures are downgraded below the final outcome's severity.
	recovering map[string]bool
}

// NewAlerter creates an Alerter with the given channels.
func NewAlerter(logger *common.Logger, channels ...Channel) *Alerter {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Alerter{
		channels:   channels,
		logger:     logger.WithComponent("alerter"),
		recovering: make(map[string]bool),
	}
}

// AddChannel registers an additional delivery channel.
func (a *Alerter) AddChannel(c Channel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels = append(a.channels, c)
}

// Send records the alert and delivers it to every channel.
func (a *Alerter) Send(severity Severity, title, message string, metadata map[string]string) {
	alert := Alert{
		Severity:  severity,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}

	a.mu.Lock()
	a.history = append(a.history, alert)
	channels := make([]Channel, len(a.channels))
	copy(channels, a.channels)
	a.mu.Unlock()

	for _, c := range channels {
		if err := c.Notify(alert); err != nil {
			a.logger.Error("alert delivery failed",
				"channel", c.Name(),
				"title", title,
				"error", err)
		}
	}
}

// History returns recorded alerts, optionally filtered by severity
// (empty string returns everything).
func (a *Alerter) History(severity Severity) []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	if severity == "" {
		out := make([]Alert, len(a.history))
		copy(out, a.history)
		return out
	}
	var out []Alert
	for _, alert := range a.history {
		if alert.Severity == severity {
			out = append(out, alert)
		}
	}
	return out
}

// HandleEvent implements event.Sink. Terminal pipeline outcomes alert once
// each; pipeline failures during an active auto-fix cycle are downgraded to
// warnings so the cycle's single resolved/exhausted alert remains the loud
// one.
func (a *Alerter) HandleEvent(e event.Event) {
	meta := map[string]string{
		"run_id":   e.RunID,
		"pipeline": e.Pipeline,
	}

	switch e.Type {
	case event.PipelineSucceeded:
		a.Send(SeverityInfo,
			fmt.Sprintf("%s pipeline succeeded", e.Pipeline),
			fmt.Sprintf("run %s completed in %v", e.RunID, e.Duration.Round(time.Millisecond)),
			meta)

	case event.PipelineFailed:
		severity := SeverityError
		a.mu.Lock()
		if a.recovering[e.Pipeline] {
			severity = SeverityWarning
		}
		a.mu.Unlock()
		a.Send(severity,
			fmt.Sprintf("%s pipeline failed", e.Pipeline),
			fmt.Sprintf("run %s failed: %s", e.RunID, e.Error),
			meta)

	case event.FixAttemptStarted:
		a.mu.Lock()
		a.recovering[e.Pipeline] = true
		a.mu.Unlock()

	case event.FixResolved:
		a.mu.Lock()
		delete(a.recovering, e.Pipeline)
		a.mu.Unlock()
		a.Send(SeverityInfo,
			fmt.Sprintf("%s pipeline auto-fixed", e.Pipeline),
			fmt.Sprintf("fix attempt %d resolved the failure (run %s)", e.Attempt, e.RunID),
			meta)

	case event.FixExhausted:
		a.mu.Lock()
		delete(a.recovering, e.Pipeline)
		a.mu.Unlock()
		a.Send(SeverityCritical,
			fmt.Sprintf("%s pipeline auto-fix exhausted", e.Pipeline),
			fmt.Sprintf("%d fix attempts failed, operator attention required: %s", e.Attempt, e.Error),
			meta)
	}
}
