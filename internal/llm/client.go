// Package llm provides sleep-description scoring backends. A backend reads a
// free-text description of the user's recent sleep and returns a dose
// adjustment score in [-1, 1]. Hosted providers (Anthropic, OpenAI-compatible,
// Gemini), a local embedding model, and a rule-based fallback are supported.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnparsableScore is returned when a backend answered but the answer
// contained no usable number.
var ErrUnparsableScore = errors.New("could not parse sleep score")

// ClientConfig configures an LLM client.
type ClientConfig struct {
	// Provider identifies the backend: "anthropic", "openai", "ollama", "gemini", "local", "fallback".
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the provider (not used for fallback, local or ollama).
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint. Used for ollama or custom OpenAI-compatible endpoints.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the model identifier to use for requests.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Timeout is the maximum duration to wait for a response.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultConfig returns a ClientConfig with sensible defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Provider: "fallback",
		Timeout:  defaultTimeout,
	}
}

// Client scores sleep descriptions.
type Client interface {
	// ScoreSleep returns a score in [-1, 1]. Negative values mean the user
	// slept well (decrease the dose); positive values mean poor sleep
	// (increase the dose). Answers without a number fail with ErrUnparsableScore.
	ScoreSleep(ctx context.Context, description string) (float64, error)

	// Available returns true if the client is configured and ready to handle requests.
	Available() bool
}

// Closer is an optional interface for clients that hold resources requiring cleanup.
// Consumers should type-assert and call Close when done: if c, ok := client.(Closer); ok { c.Close() }
type Closer interface {
	Close() error
}

// NewClient builds the client for cfg.Provider. An empty provider selects
// the rule-based fallback. Local model settings come from local.
func NewClient(cfg ClientConfig, local LocalConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = ollamaDefaultBaseURL
		}
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg), nil
	case "local":
		return NewLocalClient(local), nil
	case "", "fallback":
		return NewFallbackClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}

// LocalConfig configures the local embedding client.
type LocalConfig struct {
	// LibPath is the directory containing yzma shared libraries (.so/.dylib).
	// Falls back to YZMA_LIB env var at runtime.
	LibPath string `yaml:"lib_path,omitempty"`

	// ModelPath is the path to the GGUF embedding model.
	ModelPath string `yaml:"model_path,omitempty"`

	// GPULayers is the number of layers to offload to GPU (0 = CPU only).
	GPULayers int `yaml:"gpu_layers,omitempty"`
}
