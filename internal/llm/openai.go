package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	openAIBaseURL        = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o-mini"
	ollamaDefaultBaseURL = "http://localhost:11434/v1"
	ollamaDefaultModel   = "llama3.2"
)

// OpenAIClient scores descriptions with the chat completions API. Any
// OpenAI-compatible server, ollama included, works through BaseURL.
type OpenAIClient struct {
	httpBackend
	endpoint string
	local    bool
}

// NewOpenAIClient creates an OpenAIClient. Hosted endpoints read the key
// from OPENAI_API_KEY when none is configured; ollama needs none.
func NewOpenAIClient(config ClientConfig) *OpenAIClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	local := baseURL == ollamaDefaultBaseURL || config.Provider == "ollama"

	keyEnv, model := "OPENAI_API_KEY", openAIDefaultModel
	if local {
		keyEnv, model = "", ollamaDefaultModel
	}
	provider := "openai"
	if local {
		provider = "ollama"
	}
	return &OpenAIClient{
		httpBackend: newHTTPBackend(provider, config, keyEnv, model),
		endpoint:    strings.TrimRight(baseURL, "/") + "/chat/completions",
		local:       local,
	}
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ScoreSleep implements Client.
func (c *OpenAIClient) ScoreSleep(ctx context.Context, description string) (float64, error) {
	if !c.Available() {
		return 0, fmt.Errorf("openai client not available: missing API key")
	}
	return c.score(ctx, description, c.complete)
}

// Available returns true if an API key is present, or the endpoint is a
// local server that needs none.
func (c *OpenAIClient) Available() bool {
	return c.apiKey != "" || c.local
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var resp openAIChatResponse
	err := c.postJSON(ctx, c.endpoint, header, openAIChatRequest{
		Model:    c.model,
		Messages: []openAIChatMessage{{Role: "user", Content: prompt}},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s error: %s", c.provider, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in %s response", c.provider)
	}
	return resp.Choices[0].Message.Content, nil
}
