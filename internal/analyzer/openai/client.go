// Package openai implements the content analyzer against an
// OpenAI-compatible chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

// Config controls the analyzer endpoint and model.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 2 * time.Minute
)

// Client calls the chat completions API with structured JSON outputs.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs an analyzer Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("analyzer api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

const categorizeSystemPrompt = `You compare two versions of a competitor web page and report what changed.
Classify each change into exactly one of: branding, integration, pricing, product, positioning, partnership.
Describe each change in one short sentence. Report only substantive changes; ignore formatting noise.`

const summarizeSystemPrompt = `You write one-paragraph executive summaries of categorized competitor changes.
For each category you are given, summarize the listed changes in two sentences or less, plain prose, no markdown.`

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

var categorizeSchema = json.RawMessage(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["branding", "integration", "pricing", "product", "positioning", "partnership"],
	"properties": {
		"branding":    {"type": "array", "items": {"type": "string"}},
		"integration": {"type": "array", "items": {"type": "string"}},
		"pricing":     {"type": "array", "items": {"type": "string"}},
		"product":     {"type": "array", "items": {"type": "string"}},
		"positioning": {"type": "array", "items": {"type": "string"}},
		"partnership": {"type": "array", "items": {"type": "string"}}
	}
}`)

// Categorize asks the model to classify the differences between two page
// texts. A model refusal surfaces as ErrAnalyzerRefused.
func (c *Client) Categorize(ctx context.Context, before, after string) (core.DiffAnalysis, error) {
	user := fmt.Sprintf("PREVIOUS VERSION:\n%s\n\nCURRENT VERSION:\n%s", before, after)
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: categorizeSystemPrompt},
			{Role: "user", Content: user},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   "content_changes",
				Strict: true,
				Schema: categorizeSchema,
			},
		},
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return core.DiffAnalysis{}, err
	}

	var analysis core.DiffAnalysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return core.DiffAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	return analysis, nil
}

// Summarize produces one summary per category that has changes. Categories
// without changes are omitted from the result.
func (c *Client) Summarize(ctx context.Context, report core.AggregatedReport) (map[string]string, error) {
	names := make([]string, 0, len(core.CategoryNames))
	var b strings.Builder
	for _, name := range core.CategoryNames {
		cat, ok := report.Categories[name]
		if !ok || len(cat.Changes) == 0 {
			continue
		}
		names = append(names, name)
		fmt.Fprintf(&b, "CATEGORY %s:\n", name)
		for _, change := range cat.Changes {
			fmt.Fprintf(&b, "- %s\n", change)
		}
		b.WriteString("\n")
	}
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	schema, err := summarizeSchema(names)
	if err != nil {
		return nil, err
	}
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: summarizeSystemPrompt},
			{Role: "user", Content: b.String()},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   "category_summaries",
				Strict: true,
				Schema: schema,
			},
		},
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]string)
	if err := json.Unmarshal([]byte(content), &summaries); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	return summaries, nil
}

// summarizeSchema builds a strict object schema keyed by the categories that
// actually have changes.
func summarizeSchema(names []string) (json.RawMessage, error) {
	sort.Strings(names)
	props := make(map[string]any, len(names))
	for _, name := range names {
		props[name] = map[string]any{"type": "string"}
	}
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             names,
		"properties":           props,
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("build summary schema: %w", err)
	}
	return data, nil
}

func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call analyzer: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read analyzer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("analyzer returned status %d: %s", resp.StatusCode, truncate(data, 256))
	}

	var chat chatResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return "", fmt.Errorf("decode analyzer response: %w", err)
	}
	if chat.Error != nil {
		return "", fmt.Errorf("analyzer error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("analyzer returned no choices")
	}
	choice := chat.Choices[0]
	if choice.Message.Refusal != "" {
		c.logger.Warn("analyzer refused request", zap.String("refusal", choice.Message.Refusal))
		return "", fmt.Errorf("%w: %s", core.ErrAnalyzerRefused, choice.Message.Refusal)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("analyzer returned empty content")
	}
	return choice.Message.Content, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
