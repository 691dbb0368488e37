package pipeline

// Toolchain identifies the build toolchain detected in a working copy.
// Detection runs once per run and the result is cached on the
// ExecutionContext rather than re-sniffed per task.
type Toolchain string

const (
	ToolchainUnknown Toolchain = ""
	ToolchainGo      Toolchain = "go"
	ToolchainNode    Toolchain = "node"
	ToolchainPython  Toolchain = "python"
	ToolchainMaven   Toolchain = "maven"
	ToolchainMake    Toolchain = "make"
)

// ExecutionContext is the mutable per-run state handed to every task of one
// run. It is owned exclusively by the run that created it and is never
// shared across concurrent runs, so it carries no locking.
type ExecutionContext struct {
	// RepoURL and Branch identify the change being built.
	RepoURL string
	Branch  string

	// Workspace is the directory all task side effects are confined to.
	Workspace string

	// RepoPath is set by the clone action and consumed by later tasks.
	RepoPath string

	// ArtifactPath is set by the archive action.
	ArtifactPath string

	// Toolchain is resolved once by the first task that needs it.
	Toolchain Toolchain

	// Outputs accumulates free-form task outputs keyed by task name, so a
	// later task (or a fixer) can inspect what an earlier one produced.
	Outputs map[string]string
}

// NewExecutionContext creates a context rooted at the given workspace.
func NewExecutionContext(repoURL, branch, workspace string) *ExecutionContext {
	return &ExecutionContext{
		RepoURL:   repoURL,
		Branch:    branch,
		Workspace: workspace,
		Outputs:   make(map[string]string),
	}
}

// SetOutput records a task's output under its name.
func (c *ExecutionContext) SetOutput(task, output string) {
	if c.Outputs == nil {
		c.Outputs = make(map[string]string)
	}
	c.Outputs[task] = output
}

// Output returns a previously recorded task output.
func (c *ExecutionContext) Output(task string) (string, bool) {
	v, ok := c.Outputs[task]
	return v, ok
}

// WorkDir returns the directory tasks should run in: the cloned repository
// when one exists, the workspace root otherwise.
func (c *ExecutionContext) WorkDir() string {
	if c.RepoPath != "" {
		return c.RepoPath
	}
	return c.Workspace
}

// Vars exposes the context to task config templates. Run-wide values are
// global; task outputs are local and take precedence on name collisions.
func (c *ExecutionContext) Vars() *Vars {
	return &Vars{
		Global: map[string]string{
			"repo_url":      c.RepoURL,
			"branch":        c.Branch,
			"workspace":     c.Workspace,
			"repo_path":     c.RepoPath,
			"artifact_path": c.ArtifactPath,
			"toolchain":     string(c.Toolchain),
		},
		Local: c.Outputs,
	}
}
