package recovery

import (
	"context"
	"strings"

	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// BuildFixer repairs common build failures with toolchain-specific
// heuristics: missing dependencies, stale lockfiles, stale caches. Anything
// it cannot classify is ErrUnfixable so the coordinator can escalate.
type BuildFixer struct{}

// NewBuildFixer creates a BuildFixer.
func NewBuildFixer() *BuildFixer {
	return &BuildFixer{}
}

// Name implements Fixer.
func (f *BuildFixer) Name() string { return "build-fixer" }

// Diagnose implements Fixer. Classification is purely textual: the error
// output of the failed task is matched against known failure signatures.
func (f *BuildFixer) Diagnose(report *engine.FailureReport) Classification {
	text := strings.ToLower(report.Error + "\n" + report.Output)

	var category Category
	switch {
	case containsAny(text, "module not found", "cannot find module", "cannot find package",
		"no required module", "modulenotfounderror", "unresolved dependency", "missing go.sum entry"):
		category = CategoryDependency
	case containsAny(text, "syntax error", "undefined:", "undeclared", "compilation failed",
		"cannot use", "type mismatch", "expected ';'"):
		category = CategoryCompilation
	case containsAny(text, "no such file", "config", "invalid flag", "unknown flag", "permission denied"):
		category = CategoryConfiguration
	default:
		category = CategoryUnknown
	}

	return Classification{Category: category, Report: report}
}

// Fix implements Fixer. Dependency and configuration failures get a
// toolchain-appropriate refresh; compilation errors need source changes this
// fixer cannot invent.
func (f *BuildFixer) Fix(_ context.Context, c Classification, ec *pipeline.ExecutionContext) (*FixDescriptor, error) {
	switch c.Category {
	case CategoryDependency:
		return f.dependencyFix(ec), nil
	case CategoryConfiguration:
		return f.configurationFix(ec), nil
	default:
		return nil, ErrUnfixable
	}
}

func (f *BuildFixer) dependencyFix(ec *pipeline.ExecutionContext) *FixDescriptor {
	var cmds []string
	switch ec.Toolchain {
	case pipeline.ToolchainGo:
		cmds = []string{"go mod tidy", "go mod download"}
	case pipeline.ToolchainNode:
		cmds = []string{"rm -rf node_modules", "npm install"}
	case pipeline.ToolchainPython:
		cmds = []string{"pip install --upgrade -r requirements.txt"}
	case pipeline.ToolchainMaven:
		cmds = []string{"mvn -B -U dependency:resolve"}
	default:
		cmds = []string{"make clean"}
	}
	return &FixDescriptor{
		Commands:    cmds,
		Explanation: "refresh dependency state after an unresolved-dependency failure",
	}
}

func (f *BuildFixer) configurationFix(ec *pipeline.ExecutionContext) *FixDescriptor {
	var cmds []string
	switch ec.Toolchain {
	case pipeline.ToolchainGo:
		cmds = []string{"go clean -cache"}
	case pipeline.ToolchainNode:
		cmds = []string{"npm cache clean --force"}
	default:
		cmds = []string{"git checkout -- ."}
	}
	return &FixDescriptor{
		Commands:    cmds,
		Explanation: "reset build configuration and caches",
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
