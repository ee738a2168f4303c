package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicAPIURL       = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion   = "2023-06-01"
	anthropicDefaultModel = "claude-3-haiku-20240307"
)

// AnthropicClient scores descriptions with the Anthropic Messages API.
type AnthropicClient struct {
	httpBackend
	endpoint string
}

// NewAnthropicClient creates an AnthropicClient. The key falls back to
// ANTHROPIC_API_KEY and the model to claude-3-haiku.
func NewAnthropicClient(config ClientConfig) *AnthropicClient {
	endpoint := anthropicAPIURL
	if config.BaseURL != "" {
		endpoint = strings.TrimRight(config.BaseURL, "/") + "/v1/messages"
	}
	return &AnthropicClient{
		httpBackend: newHTTPBackend("anthropic", config, "ANTHROPIC_API_KEY", anthropicDefaultModel),
		endpoint:    endpoint,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ScoreSleep implements Client.
func (c *AnthropicClient) ScoreSleep(ctx context.Context, description string) (float64, error) {
	if !c.Available() {
		return 0, fmt.Errorf("anthropic client not available: missing API key")
	}
	return c.score(ctx, description, c.complete)
}

// Available returns true if the API key is present.
func (c *AnthropicClient) Available() bool {
	return c.apiKey != ""
}

func (c *AnthropicClient) complete(ctx context.Context, prompt string) (string, error) {
	header := http.Header{}
	header.Set("x-api-key", c.apiKey)
	header.Set("anthropic-version", anthropicAPIVersion)

	var resp anthropicResponse
	err := c.postJSON(ctx, c.endpoint, header, anthropicRequest{
		Model:     c.model,
		MaxTokens: 16,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("anthropic error %s: %s", resp.Error.Type, resp.Error.Message)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}
