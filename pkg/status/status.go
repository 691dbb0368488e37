package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/metrics"
	"github.com/loykin/pipeflow/internal/registry"
)

// Default number of runs shown by FormatHuman.
const defaultHistoryLimit = 10

// RunItem is a single run summary for display.
type RunItem struct {
	ID       string
	Pipeline string
	Status   string
	Started  string
	Duration time.Duration
	Stages   int
	Error    string
}

// Info aggregates orchestrator status: runs, per-pipeline counts, and the
// overall success rate.
type Info struct {
	Runs        []RunItem
	Summaries   map[string]metrics.Summary
	SuccessRate float64
}

// Collect builds an Info from the run registry and metrics tracker.
func Collect(runs *registry.Registry, tracker *metrics.Tracker) Info {
	snaps := runs.List()
	items := make([]RunItem, 0, len(snaps))
	for _, s := range snaps {
		item := RunItem{
			ID:       s.ID,
			Pipeline: s.Pipeline.String(),
			Status:   s.Status.String(),
			Duration: s.Duration().Round(time.Millisecond),
			Stages:   len(s.Stages),
		}
		if !s.StartTime.IsZero() {
			item.Started = s.StartTime.UTC().Format(time.RFC3339)
		}
		if s.Failure != nil {
			item.Error = s.Failure.Error
		}
		items = append(items, item)
	}

	info := Info{Runs: items}
	if tracker != nil {
		info.Summaries = tracker.ByPipeline()
		info.SuccessRate = tracker.SuccessRate()
	}
	return info
}

// FormatHuman returns a human-friendly multiline string for CLI output.
// history=false prints only per-pipeline counts; history=true additionally
// appends the most recent runs.
func (i Info) FormatHuman(history bool) string {
	var b strings.Builder

	if len(i.Summaries) == 0 {
		b.WriteString("no runs recorded\n")
	} else {
		fmt.Fprintf(&b, "success rate: %.1f%%\n", i.SuccessRate)
		for _, sum := range i.Summaries {
			fmt.Fprintf(&b, "%s: %d total, %d succeeded, %d failed, %d running\n",
				sum.Pipeline, sum.Total, sum.Succeeded, sum.Failed, sum.Running)
		}
	}

	if !history {
		return b.String()
	}

	b.WriteString("\nrecent runs:\n")
	limit := len(i.Runs)
	if limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	if limit == 0 {
		b.WriteString("  (none)\n")
	}
	for _, r := range i.Runs[:limit] {
		fmt.Fprintf(&b, "  %s  %-7s %-9s %v", r.ID, r.Pipeline, r.Status, r.Duration)
		if r.Error != "" {
			fmt.Fprintf(&b, "  %s", r.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FromSnapshot converts one run snapshot into a display item with stage
// detail, for single-run queries.
func FromSnapshot(s engine.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s): %s\n", s.ID, s.Pipeline, s.Status)
	for _, st := range s.Stages {
		mark := "ok"
		if !st.Success {
			mark = "failed"
		}
		fmt.Fprintf(&b, "  stage %-20s %s\n", st.Name, mark)
		for _, task := range st.Tasks {
			tmark := "ok"
			if !task.Success {
				tmark = "failed: " + task.Error
			}
			fmt.Fprintf(&b, "    task %-20s %v  %s\n", task.Name, task.Duration.Round(time.Millisecond), tmark)
		}
	}
	if s.Failure != nil {
		fmt.Fprintf(&b, "  error: %s\n", s.Failure.Error)
	}
	return b.String()
}
