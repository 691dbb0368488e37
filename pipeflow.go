// Package pipeflow automates a build -> test -> deploy pipeline lifecycle
// and reacts to failures by attempting automated repair before escalating
// to human operators.
package pipeflow

import (
	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/executor"
	"github.com/loykin/pipeflow/internal/pipeline"
	"github.com/loykin/pipeflow/internal/recovery"
	"github.com/loykin/pipeflow/pkg/orchestrator"
)

// Re-export commonly used types for public API

// PipelineType identifies one of the pipeline kinds (build, test, deploy).
type PipelineType = pipeline.Type

// Pipeline type constants.
const (
	PipelineBuild  = pipeline.TypeBuild
	PipelineTest   = pipeline.TypeTest
	PipelineDeploy = pipeline.TypeDeploy
)

// Definition is an immutable pipeline definition.
type Definition = pipeline.Definition

// Stage is an ordered group of tasks within a pipeline.
type Stage = pipeline.Stage

// Task is a single named action within a stage.
type Task = pipeline.Task

// ExecutionContext is the mutable per-run state handed to tasks.
type ExecutionContext = pipeline.ExecutionContext

// RunRecord tracks one pipeline run from trigger to terminal status.
type RunRecord = engine.RunRecord

// RunStatus is the lifecycle state of a run.
type RunStatus = engine.RunStatus

// FailureReport captures what failed in a run.
type FailureReport = engine.FailureReport

// FixDescriptor is a fixer's proposed repair.
type FixDescriptor = recovery.FixDescriptor

// Fixer proposes repairs for pipeline failures.
type Fixer = recovery.Fixer

// AIFixerConfig configures the LLM-backed fallback fixer.
type AIFixerConfig = recovery.AIFixerConfig

// Timeouts carries the per-action execution ceilings.
type Timeouts = executor.Timeouts

// Config configures an Orchestrator.
type Config = orchestrator.Config

// Orchestrator is the top-level pipeline lifecycle coordinator.
type Orchestrator = orchestrator.Orchestrator

// New builds an Orchestrator from validated configuration.
func New(cfg Config) (*Orchestrator, error) {
	return orchestrator.New(cfg)
}

// LoadDefinition loads and validates a pipeline definition from a YAML file.
func LoadDefinition(path string) (*Definition, error) {
	return pipeline.LoadDefinition(path)
}

// LoadDefinitions loads every pipeline definition under dir.
func LoadDefinitions(dir string) (map[PipelineType]*Definition, error) {
	return pipeline.LoadDir(dir)
}

// BuiltinDefinitions returns the default build/test/deploy pipeline set.
func BuiltinDefinitions() map[PipelineType]*Definition {
	return pipeline.BuiltinDefinitions()
}
