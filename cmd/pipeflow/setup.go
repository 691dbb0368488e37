package main

import (
	"fmt"
	"strings"

	"github.com/loykin/pipeflow/cmd/pipeflow/config"
	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/pkg/orchestrator"
	"github.com/spf13/viper"
)

// loadConfigDoc reads the config file named by the --config flag or the
// PIPEFLOW_CONFIG environment variable.
func loadConfigDoc() (*config.ConfigDoc, error) {
	path := strings.TrimSpace(viper.GetViper().GetString("config"))
	if path == "" {
		return nil, fmt.Errorf("no config file specified")
	}
	return config.Load(path)
}

// buildOrchestrator turns a config document into a ready orchestrator and
// the logger it was built with.
func buildOrchestrator(doc *config.ConfigDoc) (*orchestrator.Orchestrator, *common.Logger, error) {
	logger := doc.NewLogger()
	cfg, err := doc.ToOrchestratorConfig(logger)
	if err != nil {
		return nil, nil, err
	}
	orch, err := orchestrator.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return orch, logger, nil
}
