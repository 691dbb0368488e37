package recovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/event"
	"github.com/loykin/pipeflow/internal/executor"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// scriptedRunner backs a real engine: run n fails while n < succeedAfter.
type scriptedRunner struct {
	runs         int
	succeedAfter int
}

func (s *scriptedRunner) Execute(_ context.Context, t pipeline.Task, _ *pipeline.ExecutionContext) executor.Result {
	s.runs++
	if s.runs < s.succeedAfter {
		return executor.Result{Success: false, Output: "retry output", Err: fmt.Errorf("still broken (run %d)", s.runs)}
	}
	return executor.Result{Success: true, Output: "ok"}
}

type nopRegistrar struct{}

func (nopRegistrar) Register(*engine.RunRecord) error { return nil }

// fakeFixer returns a scripted descriptor or error and records what it saw.
type fakeFixer struct {
	name     string
	desc     *FixDescriptor
	err      error
	diagErrs []string
	fixes    int
}

func (f *fakeFixer) Name() string { return f.name }

func (f *fakeFixer) Diagnose(report *engine.FailureReport) Classification {
	f.diagErrs = append(f.diagErrs, report.Error)
	return Classification{Category: CategoryDependency, Report: report}
}

func (f *fakeFixer) Fix(_ context.Context, c Classification, _ *pipeline.ExecutionContext) (*FixDescriptor, error) {
	f.fixes++
	if f.err != nil {
		return nil, f.err
	}
	return f.desc, nil
}

// fakeApplier records applied descriptors instead of touching the system.
type fakeApplier struct {
	applied []*FixDescriptor
	err     error
}

func (a *fakeApplier) Apply(_ context.Context, desc *FixDescriptor, _ *pipeline.ExecutionContext) error {
	a.applied = append(a.applied, desc)
	return a.err
}

func coordinatorDefinition() *pipeline.Definition {
	return &pipeline.Definition{
		Name: "build",
		Stages: []pipeline.Stage{
			{Name: "compile", Tasks: []pipeline.Task{{Name: "build_project", Action: pipeline.ActionBuild}}},
		},
	}
}

func originalFailure() *engine.FailureReport {
	return &engine.FailureReport{
		RunID:    "r0",
		Pipeline: pipeline.TypeBuild,
		Stage:    "compile",
		Task:     "build_project",
		Error:    "original failure",
	}
}

type coordFixture struct {
	coord   *Coordinator
	runner  *scriptedRunner
	applier *fakeApplier
	events  *[]event.Event
}

func newCoordinator(t *testing.T, maxAttempts, succeedAfter int, fixers map[pipeline.Type]Fixer, fallback Fixer) coordFixture {
	t.Helper()
	runner := &scriptedRunner{succeedAfter: succeedAfter}
	eng, err := engine.New(engine.Config{Executor: runner, Registry: nopRegistrar{}})
	if err != nil {
		t.Fatal(err)
	}

	events := event.NewDispatcher(nil)
	var got []event.Event
	events.Subscribe(event.SinkFunc(func(e event.Event) { got = append(got, e) }))

	coord, err := New(Config{
		Engine:         eng,
		MaxFixAttempts: maxAttempts,
		Fixers:         fixers,
		Fallback:       fallback,
		Events:         events,
		Backoff:        Backoff{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Factor: 2.0},
	})
	if err != nil {
		t.Fatal(err)
	}
	applier := &fakeApplier{}
	coord.apply = applier

	return coordFixture{coord: coord, runner: runner, applier: applier, events: &got}
}

func countEvents(events []event.Event, typ event.Type) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestCoordinator_ResolvedOnFirstAttempt(t *testing.T) {
	fixer := &fakeFixer{name: "build-fixer", desc: &FixDescriptor{Commands: []string{"go mod tidy"}}}
	fx := newCoordinator(t, 3, 1, map[pipeline.Type]Fixer{pipeline.TypeBuild: fixer}, nil)

	ec := pipeline.NewExecutionContext("", "", t.TempDir())
	outcome := fx.coord.Recover(context.Background(), coordinatorDefinition(), ec, originalFailure())

	if outcome.State != StateResolved {
		t.Fatalf("expected resolved, got %s", outcome.State)
	}
	if outcome.Attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", outcome.Attempts)
	}
	if outcome.FinalRun == nil || outcome.FinalRun.Status() != engine.StatusSuccess {
		t.Error("expected a successful final run")
	}
	if len(fx.applier.applied) != 1 {
		t.Errorf("expected 1 applied fix, got %d", len(fx.applier.applied))
	}
	if countEvents(*fx.events, event.FixAttemptStarted) != 1 {
		t.Error("expected one fix-attempt-started event")
	}
	if countEvents(*fx.events, event.FixResolved) != 1 {
		t.Error("expected one fix-resolved event")
	}
	if countEvents(*fx.events, event.FixExhausted) != 0 {
		t.Error("resolved cycle must not emit fix-exhausted")
	}
}

func TestCoordinator_ResolvedMidCycleStopsEarly(t *testing.T) {
	fixer := &fakeFixer{name: "build-fixer", desc: &FixDescriptor{Commands: []string{"go mod tidy"}}}
	// Retry 1 fails, retry 2 succeeds; budget would allow 5
	fx := newCoordinator(t, 5, 2, map[pipeline.Type]Fixer{pipeline.TypeBuild: fixer}, nil)

	ec := pipeline.NewExecutionContext("", "", t.TempDir())
	outcome := fx.coord.Recover(context.Background(), coordinatorDefinition(), ec, originalFailure())

	if outcome.State != StateResolved {
		t.Fatalf("expected resolved, got %s", outcome.State)
	}
	if outcome.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", outcome.Attempts)
	}
	if fx.runner.runs != 2 {
		t.Errorf("expected 2 retry runs, got %d", fx.runner.runs)
	}
}

func TestCoordinator_ExhaustedAfterMaxAttempts(t *testing.T) {
	fixer := &fakeFixer{name: "build-fixer", desc: &FixDescriptor{Commands: []string{"go mod tidy"}}}
	// Retries never succeed
	fx := newCoordinator(t, 3, 100, map[pipeline.Type]Fixer{pipeline.TypeBuild: fixer}, nil)

	ec := pipeline.NewExecutionContext("", "", t.TempDir())
	outcome := fx.coord.Recover(context.Background(), coordinatorDefinition(), ec, originalFailure())

	if outcome.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", outcome.State)
	}
	if outcome.Attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", outcome.Attempts)
	}
	if outcome.FinalRun == nil || outcome.FinalRun.Status() != engine.StatusFailed {
		t.Error("expected the final failed run in the outcome")
	}
	if countEvents(*fx.events, event.FixAttemptStarted) != 3 {
		t.Errorf("expected 3 fix-attempt-started events, got %d", countEvents(*fx.events, event.FixAttemptStarted))
	}
	if countEvents(*fx.events, event.FixExhausted) != 1 {
		t.Error("expected exactly one fix-exhausted event")
	}
}

func TestCoordinator_FailedRetryFeedsNextAttempt(t *testing.T) {
	fixer := &fakeFixer{name: "build-fixer", desc: &FixDescriptor{Commands: []string{"go mod tidy"}}}
	fx := newCoordinator(t, 2, 100, map[pipeline.Type]Fixer{pipeline.TypeBuild: fixer}, nil)

	ec := pipeline.NewExecutionContext("", "", t.TempDir())
	fx.coord.Recover(context.Background(), coordinatorDefinition(), ec, originalFailure())

	if len(fixer.diagErrs) != 2 {
		t.Fatalf("expected 2 diagnoses, got %d", len(fixer.diagErrs))
	}
	if fixer.diagErrs[0] != "original failure" {
		t.Errorf("first diagnosis should see the original failure, got %q", fixer.diagErrs[0])
	}
	// The second diagnosis sees the first retry's error, not the original
	if fixer.diagErrs[1] == "original failure" {
		t.Error("second diagnosis should see the retry failure")
	}
}

func TestCoordinator_EscalatesToFallback(t *testing.T) {
	routed := &fakeFixer{name: "build-fixer", err: ErrUnfixable}
	fallback := &fakeFixer{name: "ai-fixer", desc: &FixDescriptor{Files: map[string]string{"main.go": "fixed"}}}
	fx := newCoordinator(t, 1, 1, map[pipeline.Type]Fixer{pipeline.TypeBuild: routed}, fallback)

	ec := pipeline.NewExecutionContext("", "", t.TempDir())
	outcome := fx.coord.Recover(context.Background(), coordinatorDefinition(), ec, originalFailure())

	if outcome.State != StateResolved {
		t.Fatalf("expected resolved via fallback, got %s", outcome.State)
	}
	if routed.fixes != 1 || fallback.fixes != 1 {
		t.Errorf("expected routed then fallback within one attempt, got %d/%d", routed.fixes, fallback.fixes)
	}
	if len(fx.applier.applied) != 1 || len(fx.applier.applied[0].Files) != 1 {
		t.Error("expected the fallback's descriptor to be applied")
	}
	if countEvents(*fx.events, event.FixAttemptStarted) != 1 {
		t.Error("escalation must stay within the same attempt")
	}
}

func TestCoordinator_NoFixerConsumesAttempts(t *testing.T) {
	fx := newCoordinator(t, 2, 1, nil, nil)

	ec := pipeline.NewExecutionContext("", "", t.TempDir())
	outcome := fx.coord.Recover(context.Background(), coordinatorDefinition(), ec, originalFailure())

	if outcome.State != StateExhausted {
		t.Fatalf("expected exhausted without fixers, got %s", outcome.State)
	}
	if outcome.FinalRun != nil {
		t.Error("no retry may run without a fix")
	}
	if len(fx.applier.applied) != 0 {
		t.Error("nothing may be applied without a fixer")
	}
	if fx.runner.runs != 0 {
		t.Errorf("engine must not run without an applied fix, ran %d times", fx.runner.runs)
	}
}

func TestCoordinator_ApplyFailureConsumesAttempt(t *testing.T) {
	fixer := &fakeFixer{name: "build-fixer", desc: &FixDescriptor{Commands: []string{"boom"}}}
	fx := newCoordinator(t, 1, 1, map[pipeline.Type]Fixer{pipeline.TypeBuild: fixer}, nil)
	fx.applier.err = fmt.Errorf("command failed")

	ec := pipeline.NewExecutionContext("", "", t.TempDir())
	outcome := fx.coord.Recover(context.Background(), coordinatorDefinition(), ec, originalFailure())

	if outcome.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", outcome.State)
	}
	if fx.runner.runs != 0 {
		t.Error("retry must not run when the fix could not be applied")
	}
}

func TestCoordinator_CancelledContext(t *testing.T) {
	fixer := &fakeFixer{name: "build-fixer", desc: &FixDescriptor{Commands: []string{"go mod tidy"}}}
	fx := newCoordinator(t, 3, 100, map[pipeline.Type]Fixer{pipeline.TypeBuild: fixer}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ec := pipeline.NewExecutionContext("", "", t.TempDir())
	outcome := fx.coord.Recover(ctx, coordinatorDefinition(), ec, originalFailure())

	if outcome.State != StateIdle {
		t.Fatalf("expected idle after cancellation, got %s", outcome.State)
	}
	if countEvents(*fx.events, event.FixExhausted) != 0 {
		t.Error("cancellation must not report exhaustion")
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Factor: 2.0}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // clamped
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := b.delay(tt.attempt); got != tt.expected {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestCoordinator_New_Validation(t *testing.T) {
	eng, err := engine.New(engine.Config{Executor: &scriptedRunner{succeedAfter: 1}, Registry: nopRegistrar{}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(Config{MaxFixAttempts: 3}); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := New(Config{Engine: eng}); err == nil {
		t.Error("expected error without positive max attempts")
	}
	if _, err := New(Config{Engine: eng, MaxFixAttempts: 3}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
