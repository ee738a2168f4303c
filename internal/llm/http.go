package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

// APIError is a non-200 answer from a hosted provider.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.Status, e.Body)
}

// Unauthorized reports whether the provider rejected the API key.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// httpBackend holds what every hosted client needs to reach its API.
type httpBackend struct {
	provider string
	apiKey   string
	model    string
	client   *http.Client
}

func newHTTPBackend(provider string, cfg ClientConfig, keyEnv, defaultModel string) httpBackend {
	apiKey := cfg.APIKey
	if apiKey == "" && keyEnv != "" {
		apiKey = os.Getenv(keyEnv)
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return httpBackend{
		provider: provider,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

// postJSON marshals in, POSTs it to url and decodes a 200 answer into out.
func (b httpBackend) postJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Provider: b.provider, Status: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)), maxErrorBody)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", b.provider, err)
	}
	return nil
}

// score runs one prompt through ask and parses the answer.
func (b httpBackend) score(ctx context.Context, description string, ask func(context.Context, string) (string, error)) (float64, error) {
	answer, err := ask(ctx, SleepScorePrompt(description))
	if err != nil {
		return 0, fmt.Errorf("calling %s: %w", b.provider, err)
	}
	return ParseScore(answer)
}
