package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/loykin/pipeflow/internal/pipeline"
)

type cloneOptions struct {
	URL    string `mapstructure:"url"`
	Branch string `mapstructure:"branch"`
	Depth  int    `mapstructure:"depth"`
}

// clone checks the repository out under the workspace and records the
// resulting path on the context for later tasks.
func (e *Executor) clone(ctx context.Context, t pipeline.Task, ec *pipeline.ExecutionContext) Result {
	var opts cloneOptions
	if err := decodeConfig(t.Config, &opts); err != nil {
		return failure("", err)
	}
	url := opts.URL
	if url == "" {
		url = ec.RepoURL
	}
	if url == "" {
		return failure("", fmt.Errorf("clone: no repository url configured"))
	}
	branch := opts.Branch
	if branch == "" {
		branch = ec.Branch
	}

	dest := filepath.Join(ec.Workspace, "source")
	args := []string{"clone"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dest)

	out, err := e.run(ctx, ec.Workspace, "git", args...)
	if err != nil {
		return failure(out, fmt.Errorf("clone failed: %w", err))
	}

	ec.RepoPath = dest
	return success(out)
}

type installOptions struct {
	PackageManager string `mapstructure:"package_manager"`
}

func (e *Executor) install(ctx context.Context, t pipeline.Task, ec *pipeline.ExecutionContext) Result {
	var opts installOptions
	if err := decodeConfig(t.Config, &opts); err != nil {
		return failure("", err)
	}

	tc, err := e.resolveToolchain(ec, opts.PackageManager)
	if err != nil {
		return failure("", err)
	}

	var name string
	var args []string
	switch tc {
	case pipeline.ToolchainGo:
		name, args = "go", []string{"mod", "download"}
	case pipeline.ToolchainNode:
		name, args = "npm", []string{"install"}
	case pipeline.ToolchainPython:
		name, args = "pip", []string{"install", "-r", "requirements.txt"}
	case pipeline.ToolchainMaven:
		name, args = "mvn", []string{"-B", "dependency:resolve"}
	case pipeline.ToolchainMake:
		// Make projects declare their own dependency handling in the build.
		return success("no dependency installation required")
	default:
		return failure("", fmt.Errorf("install: no package manager for toolchain %q", tc))
	}

	out, err := e.run(ctx, ec.WorkDir(), name, args...)
	if err != nil {
		return failure(out, fmt.Errorf("install failed: %w", err))
	}
	return success(out)
}

type buildOptions struct {
	BuildTool string `mapstructure:"build_tool"`
	Parallel  bool   `mapstructure:"parallel"`
}

func (e *Executor) build(ctx context.Context, t pipeline.Task, ec *pipeline.ExecutionContext) Result {
	var opts buildOptions
	if err := decodeConfig(t.Config, &opts); err != nil {
		return failure("", err)
	}

	tc, err := e.resolveToolchain(ec, opts.BuildTool)
	if err != nil {
		return failure("", err)
	}

	var name string
	var args []string
	switch tc {
	case pipeline.ToolchainGo:
		name, args = "go", []string{"build", "./..."}
	case pipeline.ToolchainNode:
		name, args = "npm", []string{"run", "build"}
	case pipeline.ToolchainPython:
		name, args = "python", []string{"-m", "compileall", "-q", "."}
	case pipeline.ToolchainMaven:
		name, args = "mvn", []string{"-B", "package", "-DskipTests"}
	case pipeline.ToolchainMake:
		name, args = "make", nil
	default:
		return failure("", fmt.Errorf("build: no build tool for toolchain %q", tc))
	}

	out, err := e.run(ctx, ec.WorkDir(), name, args...)
	if err != nil {
		return failure(out, fmt.Errorf("build failed: %w", err))
	}
	return success(out)
}

type testOptions struct {
	TestType          string `mapstructure:"test_type"`
	Parallel          bool   `mapstructure:"parallel"`
	CoverageThreshold int    `mapstructure:"coverage_threshold"`
}

func (e *Executor) test(ctx context.Context, t pipeline.Task, ec *pipeline.ExecutionContext) Result {
	var opts testOptions
	if err := decodeConfig(t.Config, &opts); err != nil {
		return failure("", err)
	}

	tc, err := e.resolveToolchain(ec, "")
	if err != nil {
		return failure("", err)
	}

	var name string
	var args []string
	switch tc {
	case pipeline.ToolchainGo:
		name = "go"
		args = []string{"test"}
		if opts.TestType == "coverage" {
			args = append(args, "-cover")
		}
		args = append(args, "./...")
	case pipeline.ToolchainNode:
		name, args = "npm", []string{"test"}
	case pipeline.ToolchainPython:
		name, args = "pytest", nil
	case pipeline.ToolchainMaven:
		name, args = "mvn", []string{"-B", "test"}
	case pipeline.ToolchainMake:
		name, args = "make", []string{"test"}
	default:
		return failure("", fmt.Errorf("test: no test runner for toolchain %q", tc))
	}

	out, err := e.run(ctx, ec.WorkDir(), name, args...)
	if err != nil {
		return failure(out, fmt.Errorf("test failed: %w", err))
	}
	return success(out)
}

type archiveOptions struct {
	OutputFormat string `mapstructure:"output_format"`
	OutputName   string `mapstructure:"output_name"`
}

// archive packages the working copy into an artifact under the workspace and
// records the artifact path on the context.
func (e *Executor) archive(ctx context.Context, t pipeline.Task, ec *pipeline.ExecutionContext) Result {
	var opts archiveOptions
	if err := decodeConfig(t.Config, &opts); err != nil {
		return failure("", err)
	}
	format := opts.OutputFormat
	if format == "" {
		format = "tar.gz"
	}
	name := opts.OutputName
	if name == "" {
		name = "artifact"
	}

	dest := filepath.Join(ec.Workspace, name+"."+format)
	src := ec.WorkDir()

	out, err := e.run(ctx, filepath.Dir(src), "tar", "-czf", dest, "-C", filepath.Dir(src), filepath.Base(src))
	if err != nil {
		return failure(out, fmt.Errorf("archive failed: %w", err))
	}

	ec.ArtifactPath = dest
	return success(dest)
}

type deployOptions struct {
	Environment string `mapstructure:"environment"`
	Strategy    string `mapstructure:"strategy"`
	Command     string `mapstructure:"command"`
	Script      string `mapstructure:"script"`
}

// deploy hands the artifact to a deployment command or script. The command
// is a deliberate black box: the core only cares about its exit status.
func (e *Executor) deploy(ctx context.Context, t pipeline.Task, ec *pipeline.ExecutionContext) Result {
	var opts deployOptions
	if err := decodeConfig(t.Config, &opts); err != nil {
		return failure("", err)
	}

	switch {
	case opts.Command != "":
		out, err := e.run(ctx, ec.WorkDir(), "sh", "-c", opts.Command)
		if err != nil {
			return failure(out, fmt.Errorf("deploy to %s failed: %w", opts.Environment, err))
		}
		return success(out)
	case opts.Script != "":
		script := opts.Script
		if !filepath.IsAbs(script) {
			script = filepath.Join(ec.WorkDir(), script)
		}
		if _, err := os.Stat(script); err != nil {
			return failure("", fmt.Errorf("deploy script not found: %w", err))
		}
		out, err := e.run(ctx, ec.WorkDir(), "sh", script, opts.Environment)
		if err != nil {
			return failure(out, fmt.Errorf("deploy to %s failed: %w", opts.Environment, err))
		}
		return success(out)
	default:
		return failure("", fmt.Errorf("deploy: no command or script configured"))
	}
}

type healthCheckOptions struct {
	URL            string `mapstructure:"url"`
	Method         string `mapstructure:"method"`
	ExpectedStatus int    `mapstructure:"expected_status"`
}

// healthCheck probes an HTTP endpoint and succeeds when it answers with the
// expected status code.
func (e *Executor) healthCheck(ctx context.Context, t pipeline.Task, _ *pipeline.ExecutionContext) Result {
	var opts healthCheckOptions
	if err := decodeConfig(t.Config, &opts); err != nil {
		return failure("", err)
	}
	if opts.URL == "" {
		return failure("", fmt.Errorf("health-check: no url configured"))
	}
	method := opts.Method
	if method == "" {
		method = "GET"
	}
	expected := opts.ExpectedStatus
	if expected == 0 {
		expected = 200
	}

	resp, err := e.client.R().SetContext(ctx).Execute(method, opts.URL)
	if err != nil {
		return failure("", fmt.Errorf("health-check request failed: %w", err))
	}
	if resp.StatusCode() != expected {
		return failure(firstLines(resp.String(), 5),
			fmt.Errorf("health-check: %s returned %d, expected %d", opts.URL, resp.StatusCode(), expected))
	}
	return success(fmt.Sprintf("%s %s -> %d", method, opts.URL, resp.StatusCode()))
}
