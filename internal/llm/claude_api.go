package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const claudeMessagesURL = "https://api.anthropic.com/v1/messages"

// ClaudeAPIClient is a direct HTTP client for the Claude Messages API.
type ClaudeAPIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClaudeAPIClient creates a new Claude API client.
func NewClaudeAPIClient(apiKey, model string) *ClaudeAPIClient {
	return &ClaudeAPIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: claudeMessagesURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// WithBaseURL points the client at another endpoint (tests, proxies).
func (c *ClaudeAPIClient) WithBaseURL(url string) *ClaudeAPIClient {
	c.baseURL = url
	return c
}

// Name returns the provider name.
func (c *ClaudeAPIClient) Name() string {
	return "claude"
}

// Complete sends a completion request to the Claude API.
func (c *ClaudeAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	payload, err := json.Marshal(c.buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "claude", Code: resp.StatusCode, Message: string(respBody)}
	}

	var result claudeAPIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content:    text.String(),
		StopReason: result.StopReason,
		Usage: Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
		Model:    result.Model,
		Duration: time.Since(start),
	}, nil
}

func (c *ClaudeAPIClient) buildRequestBody(req CompletionRequest) map[string]any {
	model := c.model
	if strings.HasPrefix(req.Model, "claude-") {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	msgs := make([]map[string]string, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = map[string]string{"role": m.Role, "content": m.Content}
	}

	body := map[string]any{
		"model":      model,
		"messages":   msgs,
		"max_tokens": maxTokens,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	return body
}

type claudeAPIResponse struct {
	ID         string               `json:"id"`
	Content    []claudeContentBlock `json:"content"`
	Model      string               `json:"model"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
