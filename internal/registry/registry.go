package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loykin/pipeflow/internal/engine"
)

// Registry is the concurrency-safe table of pipeline runs. Records live
// here from trigger until process restart; there is no durable persistence.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*engine.RunRecord
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		runs: make(map[string]*engine.RunRecord),
	}
}

// Register records a new run. Run ids are unique; registering an id twice
// is a programmer error surfaced as an error result.
func (r *Registry) Register(rec *engine.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[rec.ID()]; exists {
		return fmt.Errorf("run id already registered: %s", rec.ID())
	}
	r.runs[rec.ID()] = rec
	return nil
}

// Get returns the record for the given run id.
func (r *Registry) Get(id string) (*engine.RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[id]
	return rec, ok
}

// Cancel flags a running run as cancelled. Cancelling a run that is not
// currently running (or unknown) returns an error and leaves the record
// unchanged. Cancellation is cooperative: the engine observes the flag
// between task boundaries, and an in-flight task is allowed to finish.
func (r *Registry) Cancel(id string) error {
	r.mu.RLock()
	rec, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not found: %s", id)
	}
	if !rec.Cancel(time.Now().UTC()) {
		return fmt.Errorf("run %s is not running (status %s)", id, rec.Status())
	}
	return nil
}

// Snapshot returns a copy of the record's state for the given run id.
func (r *Registry) Snapshot(id string) (engine.Snapshot, bool) {
	rec, ok := r.Get(id)
	if !ok {
		return engine.Snapshot{}, false
	}
	return rec.Snapshot(), true
}

// List returns snapshots of all runs, most recently started first.
func (r *Registry) List() []engine.Snapshot {
	r.mu.RLock()
	recs := make([]*engine.RunRecord, 0, len(r.runs))
	for _, rec := range r.runs {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	snaps := make([]engine.Snapshot, 0, len(recs))
	for _, rec := range recs {
		snaps = append(snaps, rec.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].StartTime.After(snaps[j].StartTime)
	})
	return snaps
}

// Active returns snapshots of runs that have not reached a terminal status.
func (r *Registry) Active() []engine.Snapshot {
	var active []engine.Snapshot
	for _, s := range r.List() {
		if !s.Status.Terminal() {
			active = append(active, s)
		}
	}
	return active
}
