package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-1.5-flash"
)

// GeminiClient scores descriptions with the Gemini generateContent API.
type GeminiClient struct {
	httpBackend
	baseURL string
}

// NewGeminiClient creates a GeminiClient. The key falls back to GEMINI_API_KEY.
func NewGeminiClient(config ClientConfig) *GeminiClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiClient{
		httpBackend: newHTTPBackend("gemini", config, "GEMINI_API_KEY", geminiDefaultModel),
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ScoreSleep implements Client.
func (c *GeminiClient) ScoreSleep(ctx context.Context, description string) (float64, error) {
	if !c.Available() {
		return 0, fmt.Errorf("gemini client not available: missing API key")
	}
	return c.score(ctx, description, c.generate)
}

// Available returns true if the API key is present.
func (c *GeminiClient) Available() bool {
	return c.apiKey != ""
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	header := http.Header{}
	header.Set("x-goog-api-key", c.apiKey)

	var resp geminiResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	err := c.postJSON(ctx, url, header, geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", fmt.Errorf("no text content in gemini response")
}
