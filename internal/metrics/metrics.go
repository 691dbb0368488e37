package metrics

import (
	"sync"
	"time"

	"github.com/loykin/pipeflow/internal/event"
)

// Sample is one tracked pipeline run.
type Sample struct {
	RunID     string
	Pipeline  string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Tracker collects per-run metrics from lifecycle events. It implements
// event.Sink and keeps everything in memory until process restart.
type Tracker struct {
	mu      sync.Mutex
	samples []Sample
	index   map[string]int
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{index: make(map[string]int)}
}

// HandleEvent implements event.Sink.
func (t *Tracker) HandleEvent(e event.Event) {
	switch e.Type {
	case event.PipelineStarted:
		t.trackStart(e)
	case event.PipelineSucceeded:
		t.trackEnd(e, "success")
	case event.PipelineFailed:
		t.trackEnd(e, "failed")
	}
}

func (t *Tracker) trackStart(e event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, Sample{
		RunID:     e.RunID,
		Pipeline:  e.Pipeline,
		Status:    "running",
		StartTime: e.Time,
	})
	t.index[e.RunID] = len(t.samples) - 1
}

func (t *Tracker) trackEnd(e event.Event, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[e.RunID]
	if !ok {
		return
	}
	t.samples[i].Status = status
	t.samples[i].EndTime = e.Time
	t.samples[i].Duration = e.Duration
}

// Samples returns a copy of all tracked runs.
func (t *Tracker) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// SuccessRate returns the percentage of completed runs that succeeded.
// Runs still in flight are excluded; no completed runs yields zero.
func (t *Tracker) SuccessRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var completed, succeeded int
	for _, s := range t.samples {
		switch s.Status {
		case "success":
			completed++
			succeeded++
		case "failed":
			completed++
		}
	}
	if completed == 0 {
		return 0
	}
	return float64(succeeded) / float64(completed) * 100
}

// Summary aggregates per-pipeline counts.
type Summary struct {
	Pipeline  string
	Total     int
	Succeeded int
	Failed    int
	Running   int
}

// ByPipeline returns aggregate counts keyed by pipeline type.
func (t *Tracker) ByPipeline() map[string]Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Summary)
	for _, s := range t.samples {
		sum := out[s.Pipeline]
		sum.Pipeline = s.Pipeline
		sum.Total++
		switch s.Status {
		case "success":
			sum.Succeeded++
		case "failed":
			sum.Failed++
		default:
			sum.Running++
		}
		out[s.Pipeline] = sum
	}
	return out
}
