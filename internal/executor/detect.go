package executor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/pipeflow/internal/pipeline"
)

// detectionOrder fixes the precedence when a working copy matches several
// marker files.
var detectionOrder = []struct {
	marker    string
	toolchain pipeline.Toolchain
}{
	{"go.mod", pipeline.ToolchainGo},
	{"package.json", pipeline.ToolchainNode},
	{"requirements.txt", pipeline.ToolchainPython},
	{"pyproject.toml", pipeline.ToolchainPython},
	{"pom.xml", pipeline.ToolchainMaven},
	{"Makefile", pipeline.ToolchainMake},
}

// DetectToolchain sniffs marker files in dir and returns the matching
// toolchain, or ToolchainUnknown when nothing matches.
func DetectToolchain(dir string) pipeline.Toolchain {
	for _, d := range detectionOrder {
		if _, err := os.Stat(filepath.Join(dir, d.marker)); err == nil {
			return d.toolchain
		}
	}
	return pipeline.ToolchainUnknown
}

// parseToolchain maps an explicit config value onto the toolchain enum.
func parseToolchain(s string) (pipeline.Toolchain, bool) {
	switch s {
	case "go":
		return pipeline.ToolchainGo, true
	case "npm", "node", "yarn":
		return pipeline.ToolchainNode, true
	case "pip", "python", "pytest":
		return pipeline.ToolchainPython, true
	case "mvn", "maven":
		return pipeline.ToolchainMaven, true
	case "make":
		return pipeline.ToolchainMake, true
	}
	return pipeline.ToolchainUnknown, false
}

// resolveToolchain returns the toolchain for the run, resolving it at most
// once and caching the result on the execution context. An explicit,
// non-auto config value takes precedence over detection.
func (e *Executor) resolveToolchain(ec *pipeline.ExecutionContext, explicit string) (pipeline.Toolchain, error) {
	if explicit != "" && explicit != "auto_detect" {
		tc, ok := parseToolchain(explicit)
		if !ok {
			return pipeline.ToolchainUnknown, fmt.Errorf("unknown toolchain %q", explicit)
		}
		ec.Toolchain = tc
		return tc, nil
	}

	if ec.Toolchain != pipeline.ToolchainUnknown {
		return ec.Toolchain, nil
	}

	tc := DetectToolchain(ec.WorkDir())
	if tc == pipeline.ToolchainUnknown {
		return tc, fmt.Errorf("could not detect toolchain in %s", ec.WorkDir())
	}

	e.logger.Debug("toolchain detected", "toolchain", string(tc), "dir", ec.WorkDir())
	ec.Toolchain = tc
	return tc, nil
}
