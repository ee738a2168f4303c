// Package config provides unified configuration loading for sleepsync.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/sleepsync/internal/actuator"
	"github.com/nvandessel/sleepsync/internal/biometrics"
	"github.com/nvandessel/sleepsync/internal/llm"
	"github.com/nvandessel/sleepsync/internal/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SLEEPSYNC_"

// FileName is the config file inside the data directory.
const FileName = "config.yaml"

// SleepSyncConfig contains all sleepsync configuration settings.
type SleepSyncConfig struct {
	// Actuator locates the pump.
	Actuator actuator.Config `json:"actuator" yaml:"actuator" envPrefix:"ACTUATOR_"`

	// Dose contains dose formula inputs.
	Dose DoseConfig `json:"dose" yaml:"dose" envPrefix:"DOSE_"`

	// Biometrics configures where biometric history comes from.
	Biometrics BiometricsConfig `json:"biometrics" yaml:"biometrics" envPrefix:"BIOMETRICS_"`

	// Feedback configures the sleep description analyzer.
	Feedback FeedbackConfig `json:"feedback" yaml:"feedback" envPrefix:"FEEDBACK_"`

	// Session configures session persistence.
	Session SessionConfig `json:"session" yaml:"session" envPrefix:"SESSION_"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging" envPrefix:"LOG_"`
}

// DoseConfig configures the dose formula.
type DoseConfig struct {
	// BaseDose in mg. Zero uses the biometric dataset's recommendation.
	BaseDose float64 `json:"base_dose" yaml:"base_dose" env:"BASE"`
}

// BiometricsConfig configures the live provider. Without an endpoint and
// token the bundled dataset is used.
type BiometricsConfig struct {
	Endpoint string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty" env:"ENDPOINT"`
	Token    string        `json:"token,omitempty" yaml:"token,omitempty" env:"TOKEN"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`

	// DatasetPath replaces the bundled fallback dataset with a JSON file.
	DatasetPath string `json:"dataset_path,omitempty" yaml:"dataset_path,omitempty" env:"DATASET"`
}

// FeedbackConfig configures the sleep description analyzer.
type FeedbackConfig struct {
	// Provider identifies the backend: "anthropic", "openai", "ollama", "gemini", "local", or "fallback".
	Provider string `json:"provider" yaml:"provider" env:"PROVIDER"`

	// APIKey is the API key for the provider. Supports ${VAR} syntax for env vars.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" env:"API_KEY"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" env:"BASE_URL"`

	Model   string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`

	// Local model settings, used when provider is "local". Requires building with -tags llamacpp.
	LocalLibPath   string `json:"local_lib_path,omitempty" yaml:"local_lib_path,omitempty" env:"LOCAL_LIB_PATH"`
	LocalModelPath string `json:"local_model_path,omitempty" yaml:"local_model_path,omitempty" env:"LOCAL_MODEL_PATH"`
	LocalGPULayers int    `json:"local_gpu_layers,omitempty" yaml:"local_gpu_layers,omitempty" env:"LOCAL_GPU_LAYERS"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Storage is "sqlite" (default) or "file".
	Storage string `json:"storage" yaml:"storage" env:"STORAGE"`
}

// LoggingConfig configures sleepsync's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to ~/.sleepsync/decisions.jsonl.
	Level string `json:"level" yaml:"level" env:"LEVEL"`

	// Format is "text" (default) or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty" env:"FORMAT"`
}

// ClientConfig converts to the analyzer client settings.
func (c FeedbackConfig) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		Model:    c.Model,
		Timeout:  c.Timeout,
	}
}

// LocalConfig converts to the local model settings.
func (c FeedbackConfig) LocalConfig() llm.LocalConfig {
	return llm.LocalConfig{
		LibPath:   c.LocalLibPath,
		ModelPath: c.LocalModelPath,
		GPULayers: c.LocalGPULayers,
	}
}

// RedactedAPIKey returns the API key with most characters masked.
func (c FeedbackConfig) RedactedAPIKey() string {
	return redact(c.APIKey)
}

// String implements fmt.Stringer to prevent accidental API key logging.
func (c FeedbackConfig) String() string {
	return fmt.Sprintf("FeedbackConfig{Provider:%s, APIKey:%s, Model:%s}",
		c.Provider, c.RedactedAPIKey(), c.Model)
}

// HTTPConfig converts to the live provider settings.
func (c BiometricsConfig) HTTPConfig() biometrics.HTTPConfig {
	return biometrics.HTTPConfig{Endpoint: c.Endpoint, Token: c.Token, Timeout: c.Timeout}
}

// String implements fmt.Stringer to prevent accidental token logging.
func (c BiometricsConfig) String() string {
	return fmt.Sprintf("BiometricsConfig{Endpoint:%s, Token:%s}", c.Endpoint, redact(c.Token))
}

// redact shows the first and last 4 characters, e.g. "sk-a...xyz9".
// Returns "" for empty values and "(set)" for values shorter than 12 chars.
func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) < 12 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Redacted returns a copy safe to print.
func (c *SleepSyncConfig) Redacted() SleepSyncConfig {
	out := *c
	out.Feedback.APIKey = c.Feedback.RedactedAPIKey()
	out.Biometrics.Token = redact(c.Biometrics.Token)
	return out
}

// Default returns a SleepSyncConfig with sensible defaults.
func Default() *SleepSyncConfig {
	return &SleepSyncConfig{
		Actuator: actuator.DefaultConfig(),
		Biometrics: BiometricsConfig{
			Timeout: 10 * time.Second,
		},
		Feedback: FeedbackConfig{
			Provider: "fallback",
			Timeout:  30 * time.Second,
		},
		Session: SessionConfig{
			Storage: "sqlite",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the config file path in the data directory.
func Path() (string, error) {
	dir, err := store.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.sleepsync/config.yaml -> SLEEPSYNC_* environment variables.
func Load() (*SleepSyncConfig, error) {
	cfg := Default()

	if path, err := Path(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			fileCfg, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			cfg = fileCfg
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*SleepSyncConfig, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Feedback.APIKey = expandEnvVars(cfg.Feedback.APIKey)
	cfg.Biometrics.Token = expandEnvVars(cfg.Biometrics.Token)
	return cfg, nil
}

// LoadForEdit loads a config file with ${VAR} references left in place, for
// modifying and saving back. A missing file yields the defaults.
func LoadForEdit(path string) (*SleepSyncConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return readFile(path)
}

func readFile(path string) (*SleepSyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(cfg *SleepSyncConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

var (
	validProviders = map[string]bool{"": true, "fallback": true, "anthropic": true, "openai": true, "ollama": true, "gemini": true, "local": true}
	validLevels    = map[string]bool{"info": true, "debug": true, "trace": true}
	validFormats   = map[string]bool{"": true, "text": true, "json": true}
	validStorage   = map[string]bool{"": true, "sqlite": true, "file": true}
)

// Validate checks that the configuration is valid.
func (c *SleepSyncConfig) Validate() error {
	if c.Actuator.Address == "" {
		return fmt.Errorf("actuator.address must be set")
	}
	if c.Actuator.Port < 0 || c.Actuator.Port > 65535 {
		return fmt.Errorf("actuator.port must be between 0 and 65535, got %d", c.Actuator.Port)
	}
	if c.Actuator.Timeout < 0 {
		return fmt.Errorf("actuator.timeout must be non-negative, got %v", c.Actuator.Timeout)
	}
	if c.Dose.BaseDose < 0 {
		return fmt.Errorf("dose.base_dose must be non-negative, got %v", c.Dose.BaseDose)
	}
	if c.Feedback.Timeout < 0 {
		return fmt.Errorf("feedback.timeout must be non-negative, got %v", c.Feedback.Timeout)
	}
	if !validProviders[c.Feedback.Provider] {
		return fmt.Errorf("invalid provider: %s (valid: anthropic, openai, ollama, gemini, local, fallback)", c.Feedback.Provider)
	}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}
	if !validStorage[c.Session.Storage] {
		return fmt.Errorf("invalid session storage: %s (valid: sqlite, file)", c.Session.Storage)
	}
	return nil
}

// applyEnvOverrides applies SLEEPSYNC_* variables, then the provider's
// conventional key variable when no key is configured.
func applyEnvOverrides(cfg *SleepSyncConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if cfg.Feedback.APIKey == "" {
		keyVars := map[string]string{
			"anthropic": "ANTHROPIC_API_KEY",
			"openai":    "OPENAI_API_KEY",
			"gemini":    "GEMINI_API_KEY",
		}
		if name, ok := keyVars[cfg.Feedback.Provider]; ok {
			cfg.Feedback.APIKey = os.Getenv(name)
		}
	}

	if cfg.Feedback.Provider == "ollama" && cfg.Feedback.BaseURL == "" {
		if v := os.Getenv("OLLAMA_HOST"); v != "" {
			cfg.Feedback.BaseURL = strings.TrimRight(v, "/") + "/v1"
		}
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
