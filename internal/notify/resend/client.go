// Package resend implements core.Notifier over the Resend HTTP API.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

const defaultBaseURL = "https://api.resend.com"

// Config carries the email collaborator's settings.
type Config struct {
	APIKey    string
	FromEmail string
	BaseURL   string
}

// Client sends emails one recipient at a time so that a bounced recipient
// never blocks the rest of the subscriber list.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs a Client.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

type sendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// Send dispatches msg to every recipient, returning who succeeded and who
// failed. The error return is reserved for total failure (zero successes).
func (c *Client) Send(ctx context.Context, msg core.EmailMessage, recipients []string) (core.SendResult, error) {
	result := core.SendResult{
		Successful: []string{},
		Failed:     []string{},
	}
	for _, recipient := range recipients {
		if err := c.sendOne(ctx, msg, recipient); err != nil {
			c.logger.Warn("email send failed",
				zap.String("recipient", recipient),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, recipient)
			continue
		}
		result.Successful = append(result.Successful, recipient)
	}
	if len(recipients) > 0 && len(result.Successful) == 0 {
		return result, fmt.Errorf("all %d sends failed", len(recipients))
	}
	return result, nil
}

func (c *Client) sendOne(ctx context.Context, msg core.EmailMessage, recipient string) error {
	payload, err := json.Marshal(sendPayload{
		From:    c.cfg.FromEmail,
		To:      []string{recipient},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("email send returned status %d: %s", resp.StatusCode, body)
	}
	return nil
}
