package pipeline

// Built-in definitions used when no pipeline directory is configured. They
// mirror the standard build → test → deploy chain the monitor drives.

// BuildPipeline checks out the repository, installs dependencies, compiles,
// and archives the resulting artifacts.
func BuildPipeline() *Definition {
	return &Definition{
		Name:    "build",
		Version: "1.0",
		Stages: []Stage{
			{
				Name: "checkout",
				Tasks: []Task{
					{
						Name:   "clone_repository",
						Action: ActionClone,
						Config: map[string]interface{}{"depth": 1},
					},
				},
			},
			{
				Name: "dependencies",
				Tasks: []Task{
					{
						Name:   "install_dependencies",
						Action: ActionInstall,
						Config: map[string]interface{}{"package_manager": "auto_detect"},
					},
				},
			},
			{
				Name: "compile",
				Tasks: []Task{
					{
						Name:   "build_project",
						Action: ActionBuild,
						Config: map[string]interface{}{"build_tool": "auto_detect", "parallel": true},
					},
				},
			},
			{
				Name: "artifacts",
				Tasks: []Task{
					{
						Name:   "create_artifacts",
						Action: ActionArchive,
						Config: map[string]interface{}{"output_format": "tar.gz"},
					},
				},
			},
		},
		OnFailure: OnFailure{Recover: true, RetryCount: 3},
	}
}

// TestPipeline runs unit tests, integration tests, and a coverage pass.
func TestPipeline() *Definition {
	return &Definition{
		Name:    "test",
		Version: "1.0",
		Stages: []Stage{
			{
				Name: "unit_tests",
				Tasks: []Task{
					{
						Name:   "run_unit_tests",
						Action: ActionTest,
						Config: map[string]interface{}{"test_type": "unit", "parallel": true},
					},
				},
			},
			{
				Name: "integration_tests",
				Tasks: []Task{
					{
						Name:   "run_integration_tests",
						Action: ActionTest,
						Config: map[string]interface{}{"test_type": "integration"},
					},
				},
			},
			{
				Name: "coverage",
				Tasks: []Task{
					{
						Name:   "run_coverage",
						Action: ActionTest,
						Config: map[string]interface{}{"test_type": "coverage", "coverage_threshold": 80},
					},
				},
			},
		},
		OnFailure: OnFailure{Recover: true, RetryCount: 2},
	}
}

// DeployPipeline deploys to staging, smoke-tests it, promotes to
// production, and verifies the deployment with a health check.
func DeployPipeline() *Definition {
	return &Definition{
		Name:    "deploy",
		Version: "1.0",
		Stages: []Stage{
			{
				Name: "staging",
				Tasks: []Task{
					{
						Name:   "deploy_to_staging",
						Action: ActionDeploy,
						Config: map[string]interface{}{"environment": "staging", "strategy": "blue_green"},
					},
					{
						Name:   "run_smoke_tests",
						Action: ActionTest,
						Config: map[string]interface{}{"test_type": "smoke"},
					},
				},
			},
			{
				Name: "production",
				Tasks: []Task{
					{
						Name:   "deploy_to_production",
						Action: ActionDeploy,
						Config: map[string]interface{}{"environment": "production", "strategy": "rolling"},
					},
					{
						Name:   "verify_deployment",
						Action: ActionHealthCheck,
						Config: map[string]interface{}{"expected_status": 200},
					},
				},
			},
		},
		OnFailure: OnFailure{Recover: false, NotifyTo: "oncall"},
	}
}

// BuiltinDefinitions returns the default pipeline set keyed by type.
func BuiltinDefinitions() map[Type]*Definition {
	return map[Type]*Definition{
		TypeBuild:  BuildPipeline(),
		TypeTest:   TestPipeline(),
		TypeDeploy: DeployPipeline(),
	}
}
