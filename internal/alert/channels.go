package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/httpc"
)

// ConsoleChannel writes alerts through the structured logger.
type ConsoleChannel struct {
	logger *common.Logger
}

// NewConsoleChannel creates a ConsoleChannel.
func NewConsoleChannel(logger *common.Logger) *ConsoleChannel {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &ConsoleChannel{logger: logger.WithComponent("alert")}
}

// Name implements Channel.
func (c *ConsoleChannel) Name() string { return "console" }

// Notify implements Channel.
func (c *ConsoleChannel) Notify(a Alert) error {
	var level slog.Level
	switch a.Severity {
	case SeverityInfo:
		level = slog.LevelInfo
	case SeverityWarning:
		level = slog.LevelWarn
	default:
		level = slog.LevelError
	}

	args := []any{"severity", string(a.Severity), "message", a.Message}
	for k, v := range a.Metadata {
		args = append(args, k, v)
	}
	c.logger.Log(context.Background(), level, a.Title, args...)
	return nil
}

// WebhookChannel posts alerts as JSON to an HTTP endpoint (chat hooks,
// incident tooling, and the like).
type WebhookChannel struct {
	url    string
	secret string
	client *resty.Client
}

// NewWebhookChannel creates a WebhookChannel for the given endpoint.
func NewWebhookChannel(url, secret string) (*WebhookChannel, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook channel: url is required")
	}
	h := httpc.Httpc{}
	return &WebhookChannel{url: url, secret: secret, client: h.New()}, nil
}

// SetClient overrides the HTTP client. Used by tests.
func (w *WebhookChannel) SetClient(c *resty.Client) { w.client = c }

// Name implements Channel.
func (w *WebhookChannel) Name() string { return "webhook" }

// Notify implements Channel.
func (w *WebhookChannel) Notify(a Alert) error {
	body := map[string]interface{}{
		"severity":  string(a.Severity),
		"title":     a.Title,
		"message":   a.Message,
		"metadata":  a.Metadata,
		"timestamp": a.Timestamp,
	}

	req := w.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if w.secret != "" {
		req.SetHeader("X-Webhook-Secret", w.secret)
	}

	resp, err := req.Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d", resp.StatusCode())
	}
	return nil
}
