package recovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/httpc"
	"github.com/loykin/pipeflow/internal/pipeline"
	"github.com/tidwall/gjson"
)

// AIFixerConfig configures the language-model backend of the AI fixer.
type AIFixerConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// AIFixer is the generic fallback fixer: it sends the failure to a
// chat-completions style HTTP API and expects a JSON repair proposal back.
// The prompt content and model behavior are opaque collaborators; this
// fixer only owns the request/response plumbing.
type AIFixer struct {
	cfg    AIFixerConfig
	client *resty.Client
	logger *common.Logger
}

// NewAIFixer creates an AIFixer. Endpoint and model are required.
func NewAIFixer(cfg AIFixerConfig, logger *common.Logger) (*AIFixer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ai fixer: endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ai fixer: model is required")
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	h := httpc.Httpc{}
	return &AIFixer{
		cfg:    cfg,
		client: h.New(),
		logger: logger.WithComponent("ai-fixer"),
	}, nil
}

// SetClient overrides the HTTP client. Used by tests.
func (f *AIFixer) SetClient(c *resty.Client) { f.client = c }

// Name implements Fixer.
func (f *AIFixer) Name() string { return "ai-fixer" }

// Diagnose implements Fixer. The model does its own analysis, so the local
// classification only distinguishes test failures from the rest.
func (f *AIFixer) Diagnose(report *engine.FailureReport) Classification {
	category := CategoryUnknown
	if report.Pipeline == pipeline.TypeTest {
		category = CategoryTest
	}
	return Classification{Category: category, Report: report}
}

const fixInstruction = `You are repairing a failed CI pipeline task. ` +
	`Respond with a single JSON object: {"files": {"path": "new content"}, ` +
	`"commands": ["shell command"], "explanation": "what the fix does"}. ` +
	`Use an empty object if you cannot propose a fix.`

// Fix implements Fixer. An unreachable backend or unparseable model output
// is an explicit inability to fix, never a crash.
func (f *AIFixer) Fix(ctx context.Context, c Classification, ec *pipeline.ExecutionContext) (*FixDescriptor, error) {
	report := c.Report

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Pipeline %q failed at stage %q, task %q.\n", report.Pipeline, report.Stage, report.Task)
	fmt.Fprintf(&prompt, "Error: %s\n", report.Error)
	if report.Output != "" {
		fmt.Fprintf(&prompt, "Captured output:\n%s\n", report.Output)
	}
	if ec.Toolchain != pipeline.ToolchainUnknown {
		fmt.Fprintf(&prompt, "Toolchain: %s\n", ec.Toolchain)
	}

	body := map[string]interface{}{
		"model": f.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": fixInstruction},
			{"role": "user", "content": prompt.String()},
		},
	}

	req := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if f.cfg.APIKey != "" {
		req.SetAuthToken(f.cfg.APIKey)
	}

	resp, err := req.Post(f.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("ai fixer: request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ai fixer: backend returned %d", resp.StatusCode())
	}

	desc, err := parseFixResponse(resp.String())
	if err != nil {
		f.logger.Warn("unparseable model response", "error", err)
		return nil, ErrUnfixable
	}
	if desc.Empty() {
		return nil, ErrUnfixable
	}

	f.logger.Info("model proposed a fix",
		"files", len(desc.Files),
		"commands", len(desc.Commands),
		"explanation", desc.Explanation)
	return desc, nil
}

// parseFixResponse extracts the repair proposal from a chat-completions
// response body.
func parseFixResponse(body string) (*FixDescriptor, error) {
	content := gjson.Get(body, "choices.0.message.content")
	if !content.Exists() {
		return nil, fmt.Errorf("response has no message content")
	}

	proposal := strings.TrimSpace(content.String())
	// Models wrap JSON in markdown fences often enough to strip them here.
	proposal = strings.TrimPrefix(proposal, "```json")
	proposal = strings.TrimPrefix(proposal, "```")
	proposal = strings.TrimSuffix(proposal, "```")

	if !gjson.Valid(proposal) {
		return nil, fmt.Errorf("model content is not valid JSON")
	}

	desc := &FixDescriptor{
		Files:       make(map[string]string),
		Explanation: gjson.Get(proposal, "explanation").String(),
	}
	gjson.Get(proposal, "files").ForEach(func(key, value gjson.Result) bool {
		desc.Files[key.String()] = value.String()
		return true
	})
	for _, cmd := range gjson.Get(proposal, "commands").Array() {
		if s := cmd.String(); s != "" {
			desc.Commands = append(desc.Commands, s)
		}
	}
	return desc, nil
}
