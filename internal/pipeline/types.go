package pipeline

// Type identifies one of the built-in pipeline kinds.
type Type string

const (
	TypeBuild  Type = "build"
	TypeTest   Type = "test"
	TypeDeploy Type = "deploy"
)

// String returns the string representation of the pipeline type.
func (t Type) String() string {
	return string(t)
}

// Valid reports whether the type is one of the known pipeline kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeBuild, TypeTest, TypeDeploy:
		return true
	}
	return false
}

// Action identifies what a task does. The executor recognizes exactly this
// closed set; anything else fails as an unsupported action.
type Action string

const (
	ActionClone       Action = "clone"
	ActionInstall     Action = "install"
	ActionBuild       Action = "build"
	ActionTest        Action = "test"
	ActionArchive     Action = "archive"
	ActionDeploy      Action = "deploy"
	ActionHealthCheck Action = "health-check"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Valid reports whether the action is one the executor recognizes.
func (a Action) Valid() bool {
	switch a {
	case ActionClone, ActionInstall, ActionBuild, ActionTest,
		ActionArchive, ActionDeploy, ActionHealthCheck:
		return true
	}
	return false
}

// Task is a single named action within a stage. Config is an opaque
// key/value map interpreted by the action implementation.
type Task struct {
	Name   string                 `yaml:"name"`
	Action Action                 `yaml:"action"`
	Config map[string]interface{} `yaml:"config"`
}

// Stage is an ordered group of tasks. A stage succeeds iff all its tasks
// succeed in order; the first task failure aborts the stage.
type Stage struct {
	Name  string `yaml:"name"`
	Tasks []Task `yaml:"tasks"`
}

// OnFailure is the failure policy attached to a pipeline definition.
// RetryCount is parsed for compatibility with existing definitions but the
// orchestrator-level max_fix_attempts is authoritative when set.
type OnFailure struct {
	Recover    bool   `yaml:"recover"`
	RetryCount int    `yaml:"retry_count"`
	NotifyTo   string `yaml:"notify_to"`
}

// Definition is an immutable pipeline definition: ordered stages of ordered
// tasks plus a failure policy. Created at startup from static configuration
// and never mutated afterwards.
type Definition struct {
	Name      string    `yaml:"name"`
	Version   string    `yaml:"version"`
	Stages    []Stage   `yaml:"stages"`
	OnFailure OnFailure `yaml:"on_failure"`
}

// Type returns the pipeline type derived from the definition name.
func (d *Definition) Type() Type {
	return Type(d.Name)
}

// StageNames returns the stage names in declaration order.
func (d *Definition) StageNames() []string {
	names := make([]string, 0, len(d.Stages))
	for _, s := range d.Stages {
		names = append(names, s.Name)
	}
	return names
}

// TaskCount returns the total number of tasks across all stages.
func (d *Definition) TaskCount() int {
	n := 0
	for _, s := range d.Stages {
		n += len(s.Tasks)
	}
	return n
}
