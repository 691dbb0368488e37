package event

import (
	"sync"
	"time"

	"github.com/loykin/pipeflow/internal/common"
)

// Dispatcher fans events out to registered sinks synchronously, in
// registration order. A panicking sink is logged and skipped so that a bad
// collaborator can never take down pipeline execution.
type Dispatcher struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *common.Logger
}

// NewDispatcher creates a dispatcher logging through the given logger.
func NewDispatcher(logger *common.Logger) *Dispatcher {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Dispatcher{logger: logger.WithComponent("events")}
}

// Subscribe registers a sink for all subsequent events.
func (d *Dispatcher) Subscribe(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Emit delivers the event to every sink. The timestamp is filled in when
// the caller left it zero.
func (d *Dispatcher) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	d.mu.RLock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, s := range sinks {
		d.deliver(s, e)
	}
}

func (d *Dispatcher) deliver(s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event sink panicked",
				"event", string(e.Type),
				"run_id", e.RunID,
				"panic", r)
		}
	}()
	s.HandleEvent(e)
}
