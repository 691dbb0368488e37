package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/httpc"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// ErrUnsupportedAction marks a task whose action the executor does not
// recognize. This is a configuration error, never retried.
var ErrUnsupportedAction = errors.New("unsupported action")

// Result is the uniform outcome of one task execution. Failures are values,
// not panics; nothing escapes the executor as a crash.
type Result struct {
	Success bool
	Output  string
	Err     error
}

func failure(output string, err error) Result {
	return Result{Success: false, Output: output, Err: err}
}

func success(output string) Result {
	return Result{Success: true, Output: output}
}

// Timeouts carries the per-action execution ceilings. Install, build, and
// test are independent by contract; the rest default alongside them.
type Timeouts struct {
	Clone       time.Duration
	Install     time.Duration
	Build       time.Duration
	Test        time.Duration
	Archive     time.Duration
	Deploy      time.Duration
	HealthCheck time.Duration
}

// DefaultTimeouts returns the default per-action ceilings.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Clone:       5 * time.Minute,
		Install:     10 * time.Minute,
		Build:       15 * time.Minute,
		Test:        20 * time.Minute,
		Archive:     5 * time.Minute,
		Deploy:      10 * time.Minute,
		HealthCheck: 30 * time.Second,
	}
}

func (t Timeouts) forAction(a pipeline.Action) time.Duration {
	switch a {
	case pipeline.ActionClone:
		return t.Clone
	case pipeline.ActionInstall:
		return t.Install
	case pipeline.ActionBuild:
		return t.Build
	case pipeline.ActionTest:
		return t.Test
	case pipeline.ActionArchive:
		return t.Archive
	case pipeline.ActionDeploy:
		return t.Deploy
	case pipeline.ActionHealthCheck:
		return t.HealthCheck
	default:
		return time.Minute
	}
}

// commandRunner executes one external command in dir and returns its
// combined output. Swapped out by tests.
type commandRunner func(ctx context.Context, dir, name string, args ...string) (string, error)

func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Executor runs one named action against an execution context. All actions
// run synchronously with respect to the calling stage.
type Executor struct {
	timeouts Timeouts
	client   *resty.Client
	logger   *common.Logger
	run      commandRunner
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeouts overrides the default per-action timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(e *Executor) { e.timeouts = t }
}

// WithClient overrides the HTTP client used by the health-check action.
func WithClient(c *resty.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithLogger overrides the logger.
func WithLogger(l *common.Logger) Option {
	return func(e *Executor) { e.logger = l.WithComponent("executor") }
}

func withCommandRunner(r commandRunner) Option {
	return func(e *Executor) { e.run = r }
}

// New creates an Executor with default timeouts and HTTP client.
func New(opts ...Option) *Executor {
	h := httpc.Httpc{}
	e := &Executor{
		timeouts: DefaultTimeouts(),
		client:   h.New(),
		logger:   common.GetLogger().WithComponent("executor"),
		run:      runCommand,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the task's action against the context. The context may be
// mutated (clone records the repository path, archive the artifact path)
// for use by subsequent tasks in the same run. A timeout yields a failure
// result, not a crash.
func (e *Executor) Execute(ctx context.Context, t pipeline.Task, ec *pipeline.ExecutionContext) Result {
	if !t.Action.Valid() {
		return failure("", fmt.Errorf("%w: %q", ErrUnsupportedAction, t.Action))
	}

	timeout := e.timeouts.forAction(t.Action)
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Render template expressions in the config against the accumulated
	// context before the action sees it.
	if t.Config != nil {
		if rendered, ok := pipeline.RenderConfig(t.Config, ec.Vars()).(map[string]interface{}); ok {
			t.Config = rendered
		}
	}

	e.logger.Debug("executing task",
		"task", t.Name,
		"action", t.Action.String(),
		"timeout", timeout)

	var res Result
	switch t.Action {
	case pipeline.ActionClone:
		res = e.clone(actionCtx, t, ec)
	case pipeline.ActionInstall:
		res = e.install(actionCtx, t, ec)
	case pipeline.ActionBuild:
		res = e.build(actionCtx, t, ec)
	case pipeline.ActionTest:
		res = e.test(actionCtx, t, ec)
	case pipeline.ActionArchive:
		res = e.archive(actionCtx, t, ec)
	case pipeline.ActionDeploy:
		res = e.deploy(actionCtx, t, ec)
	case pipeline.ActionHealthCheck:
		res = e.healthCheck(actionCtx, t, ec)
	}

	if actionCtx.Err() == context.DeadlineExceeded {
		res = failure(res.Output, fmt.Errorf("action %s timed out after %v", t.Action, timeout))
	}

	if res.Success {
		ec.SetOutput(t.Name, res.Output)
	}
	return res
}

// decodeConfig decodes a task's opaque config map into a typed options
// struct.
func decodeConfig(cfg map[string]interface{}, out interface{}) error {
	if cfg == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid task config: %w", err)
	}
	return nil
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(lines[:n], "\n")
}
