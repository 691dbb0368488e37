package recovery

import (
	"context"
	"strings"

	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// TestFixer repairs environmental test failures: stale fixtures, leftover
// test state, flaky external services. It never touches test code itself;
// assertion failures escalate to the generic fixer.
type TestFixer struct{}

// NewTestFixer creates a TestFixer.
func NewTestFixer() *TestFixer {
	return &TestFixer{}
}

// Name implements Fixer.
func (f *TestFixer) Name() string { return "test-fixer" }

// Diagnose implements Fixer.
func (f *TestFixer) Diagnose(report *engine.FailureReport) Classification {
	text := strings.ToLower(report.Error + "\n" + report.Output)

	var category Category
	switch {
	case containsAny(text, "connection refused", "timeout", "timed out", "address already in use",
		"database is locked", "temporary failure"):
		category = CategoryConfiguration
	case containsAny(text, "assertion", "expected", "want", "got", "fail:", "--- fail"):
		category = CategoryTest
	default:
		category = CategoryUnknown
	}

	return Classification{Category: category, Report: report}
}

// Fix implements Fixer. Environmental failures get a state reset and the
// retry does the rest; genuine assertion failures are not fixable here.
func (f *TestFixer) Fix(_ context.Context, c Classification, ec *pipeline.ExecutionContext) (*FixDescriptor, error) {
	if c.Category != CategoryConfiguration {
		return nil, ErrUnfixable
	}

	var cmds []string
	switch ec.Toolchain {
	case pipeline.ToolchainGo:
		cmds = []string{"go clean -testcache"}
	case pipeline.ToolchainNode:
		cmds = []string{"npm cache verify"}
	default:
		cmds = []string{"git clean -fdx -e node_modules"}
	}
	return &FixDescriptor{
		Commands:    cmds,
		Explanation: "reset test environment after an environmental failure",
	}, nil
}
