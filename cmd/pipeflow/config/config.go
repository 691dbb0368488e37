package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/executor"
	"github.com/loykin/pipeflow/internal/pipeline"
	"github.com/loykin/pipeflow/internal/recovery"
	"github.com/loykin/pipeflow/pkg/orchestrator"
	"gopkg.in/yaml.v3"
)

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
}

type RepoConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Branch   string `mapstructure:"branch" yaml:"branch"`
	WatchDir string `mapstructure:"watch_dir" yaml:"watch_dir"`
}

type MonitorConfig struct {
	PollInterval string `mapstructure:"poll_interval" yaml:"poll_interval"`
	AutoDeploy   bool   `mapstructure:"auto_deploy" yaml:"auto_deploy"`
}

type AutoFixConfig struct {
	Enabled        bool                   `mapstructure:"enabled" yaml:"enabled"`
	MaxFixAttempts int                    `mapstructure:"max_fix_attempts" yaml:"max_fix_attempts"`
	AI             *recovery.AIFixerConfig `mapstructure:"ai" yaml:"ai"`
}

type AlertConfig struct {
	WebhookURL    string `mapstructure:"webhook_url" yaml:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`
}

type TimeoutsConfig struct {
	Install string `mapstructure:"install" yaml:"install"`
	Build   string `mapstructure:"build" yaml:"build"`
	Test    string `mapstructure:"test" yaml:"test"`
}

type ConfigDoc struct {
	Repo          RepoConfig     `mapstructure:"repo" yaml:"repo"`
	WorkspaceRoot string         `mapstructure:"workspace_root" yaml:"workspace_root"`
	PipelineDir   string         `mapstructure:"pipeline_dir" yaml:"pipeline_dir"`
	Monitor       MonitorConfig  `mapstructure:"monitor" yaml:"monitor"`
	AutoFix       AutoFixConfig  `mapstructure:"auto_fix" yaml:"auto_fix"`
	Alerts        AlertConfig    `mapstructure:"alerts" yaml:"alerts"`
	Timeouts      TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
	Logging       LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// Load reads and parses the YAML config file. ${VAR} references are
// expanded from the process environment before parsing, so secrets can stay
// out of the file itself.
func Load(path string) (*ConfigDoc, error) {
	clean := filepath.Clean(path)
	// #nosec G304 -- path is provided by user configuration
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", clean, err)
	}
	expanded := os.ExpandEnv(string(data))
	var doc ConfigDoc
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &doc, nil
}

// NewLogger builds the process logger from the logging section and installs
// it as the default.
func (d *ConfigDoc) NewLogger() *common.Logger {
	level := common.ParseLogLevel(d.Logging.Level)
	mask := true
	if d.Logging.MaskSensitive != nil {
		mask = *d.Logging.MaskSensitive
	}

	var logger *common.Logger
	switch d.Logging.Format {
	case "json":
		logger = common.NewJSONLogger(level)
	case "color":
		logger = common.NewColorLoggerWithMasking(level, mask)
	default:
		logger = common.NewLogger(level)
	}

	common.SetDefaultLogger(logger)
	return logger
}

// ToOrchestratorConfig converts the document into the validated
// configuration object the core consumes.
func (d *ConfigDoc) ToOrchestratorConfig(logger *common.Logger) (orchestrator.Config, error) {
	cfg := orchestrator.Config{
		RepoURL:            d.Repo.URL,
		Branch:             d.Repo.Branch,
		WatchDir:           d.Repo.WatchDir,
		WorkspaceRoot:      d.WorkspaceRoot,
		AutoDeploy:         d.Monitor.AutoDeploy,
		AutoFix:            d.AutoFix.Enabled,
		MaxFixAttempts:     d.AutoFix.MaxFixAttempts,
		AIFixer:            d.AutoFix.AI,
		AlertWebhookURL:    d.Alerts.WebhookURL,
		AlertWebhookSecret: d.Alerts.WebhookSecret,
		Logger:             logger,
	}

	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = filepath.Join(os.TempDir(), "pipeflow")
	}

	if d.Monitor.PollInterval != "" {
		interval, err := time.ParseDuration(d.Monitor.PollInterval)
		if err != nil {
			return cfg, fmt.Errorf("invalid poll_interval: %w", err)
		}
		cfg.PollInterval = interval
	}

	if d.PipelineDir != "" {
		defs, err := pipeline.LoadDir(d.PipelineDir)
		if err != nil {
			return cfg, err
		}
		cfg.Definitions = defs
	}

	timeouts, err := d.parseTimeouts()
	if err != nil {
		return cfg, err
	}
	cfg.Timeouts = timeouts

	return cfg, nil
}

func (d *ConfigDoc) parseTimeouts() (*executor.Timeouts, error) {
	if d.Timeouts.Install == "" && d.Timeouts.Build == "" && d.Timeouts.Test == "" {
		return nil, nil
	}

	t := executor.DefaultTimeouts()
	set := func(name, value string, dst *time.Duration) error {
		if value == "" {
			return nil
		}
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s timeout: %w", name, err)
		}
		*dst = dur
		return nil
	}
	if err := set("install", d.Timeouts.Install, &t.Install); err != nil {
		return nil, err
	}
	if err := set("build", d.Timeouts.Build, &t.Build); err != nil {
		return nil, err
	}
	if err := set("test", d.Timeouts.Test, &t.Test); err != nil {
		return nil, err
	}
	return &t, nil
}
