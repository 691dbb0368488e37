package recovery

import (
	"context"
	"errors"

	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// ErrUnfixable is returned by a fixer that understood the failure but has
// no repair to offer. It consumes a fix attempt without changing anything.
var ErrUnfixable = errors.New("failure cannot be fixed automatically")

// Category classifies a failure for fix routing.
type Category string

const (
	CategoryDependency    Category = "dependency"
	CategoryCompilation   Category = "compilation"
	CategoryConfiguration Category = "configuration"
	CategoryTest          Category = "test"
	CategoryUnknown       Category = "unknown"
)

// Classification is the outcome of diagnosing a failure report.
type Classification struct {
	Category Category
	Report   *engine.FailureReport
}

// FixDescriptor is a proposed repair: file contents to write, then shell
// commands to run in order. The coordinator applies it before retrying.
type FixDescriptor struct {
	// Files maps a path (relative to the working copy) to its new content.
	Files map[string]string
	// Commands run in the working copy after the file writes, in order.
	// The first failing command aborts the rest and fails the attempt.
	Commands []string
	// Explanation is free text describing the repair.
	Explanation string
}

// Empty reports whether the descriptor proposes nothing at all.
func (d *FixDescriptor) Empty() bool {
	return d == nil || (len(d.Files) == 0 && len(d.Commands) == 0)
}

// Fixer proposes repairs for pipeline failures. Diagnose classifies the
// failure; Fix returns a descriptor or ErrUnfixable.
type Fixer interface {
	Name() string
	Diagnose(report *engine.FailureReport) Classification
	Fix(ctx context.Context, c Classification, ec *pipeline.ExecutionContext) (*FixDescriptor, error)
}
