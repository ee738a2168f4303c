package config

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// key binds a dot-notation name to a config field.
type key struct {
	get func(*SleepSyncConfig) any
	set func(*SleepSyncConfig, string) error
}

var keys = map[string]key{
	"actuator.address": {
		get: func(c *SleepSyncConfig) any { return c.Actuator.Address },
		set: func(c *SleepSyncConfig, v string) error { c.Actuator.Address = v; return nil },
	},
	"actuator.port": {
		get: func(c *SleepSyncConfig) any { return c.Actuator.Port },
		set: func(c *SleepSyncConfig, v string) error { return setInt(&c.Actuator.Port, v) },
	},
	"actuator.value_path": {
		get: func(c *SleepSyncConfig) any { return c.Actuator.ValuePath },
		set: func(c *SleepSyncConfig, v string) error { c.Actuator.ValuePath = v; return nil },
	},
	"actuator.timeout": {
		get: func(c *SleepSyncConfig) any { return c.Actuator.Timeout.String() },
		set: func(c *SleepSyncConfig, v string) error { return setDuration(&c.Actuator.Timeout, v) },
	},
	"dose.base_dose": {
		get: func(c *SleepSyncConfig) any { return c.Dose.BaseDose },
		set: func(c *SleepSyncConfig, v string) error { return setFloat(&c.Dose.BaseDose, v) },
	},
	"biometrics.endpoint": {
		get: func(c *SleepSyncConfig) any { return c.Biometrics.Endpoint },
		set: func(c *SleepSyncConfig, v string) error { c.Biometrics.Endpoint = v; return nil },
	},
	"biometrics.token": {
		get: func(c *SleepSyncConfig) any { return redact(c.Biometrics.Token) },
		set: func(c *SleepSyncConfig, v string) error { c.Biometrics.Token = v; return nil },
	},
	"biometrics.dataset_path": {
		get: func(c *SleepSyncConfig) any { return c.Biometrics.DatasetPath },
		set: func(c *SleepSyncConfig, v string) error { c.Biometrics.DatasetPath = v; return nil },
	},
	"feedback.provider": {
		get: func(c *SleepSyncConfig) any { return c.Feedback.Provider },
		set: func(c *SleepSyncConfig, v string) error {
			if !validProviders[v] {
				return fmt.Errorf("invalid provider: %s (valid: anthropic, openai, ollama, gemini, local, fallback)", v)
			}
			c.Feedback.Provider = v
			return nil
		},
	},
	"feedback.api_key": {
		get: func(c *SleepSyncConfig) any { return c.Feedback.RedactedAPIKey() },
		set: func(c *SleepSyncConfig, v string) error { c.Feedback.APIKey = v; return nil },
	},
	"feedback.base_url": {
		get: func(c *SleepSyncConfig) any { return c.Feedback.BaseURL },
		set: func(c *SleepSyncConfig, v string) error { c.Feedback.BaseURL = v; return nil },
	},
	"feedback.model": {
		get: func(c *SleepSyncConfig) any { return c.Feedback.Model },
		set: func(c *SleepSyncConfig, v string) error { c.Feedback.Model = v; return nil },
	},
	"feedback.timeout": {
		get: func(c *SleepSyncConfig) any { return c.Feedback.Timeout.String() },
		set: func(c *SleepSyncConfig, v string) error { return setDuration(&c.Feedback.Timeout, v) },
	},
	"feedback.local_lib_path": {
		get: func(c *SleepSyncConfig) any { return c.Feedback.LocalLibPath },
		set: func(c *SleepSyncConfig, v string) error { c.Feedback.LocalLibPath = v; return nil },
	},
	"feedback.local_model_path": {
		get: func(c *SleepSyncConfig) any { return c.Feedback.LocalModelPath },
		set: func(c *SleepSyncConfig, v string) error { c.Feedback.LocalModelPath = v; return nil },
	},
	"session.storage": {
		get: func(c *SleepSyncConfig) any { return c.Session.Storage },
		set: func(c *SleepSyncConfig, v string) error {
			if !validStorage[v] {
				return fmt.Errorf("invalid session storage: %s (valid: sqlite, file)", v)
			}
			c.Session.Storage = v
			return nil
		},
	},
	"logging.level": {
		get: func(c *SleepSyncConfig) any { return c.Logging.Level },
		set: func(c *SleepSyncConfig, v string) error {
			if !validLevels[v] {
				return fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", v)
			}
			c.Logging.Level = v
			return nil
		},
	},
	"logging.format": {
		get: func(c *SleepSyncConfig) any { return c.Logging.Format },
		set: func(c *SleepSyncConfig, v string) error {
			if !validFormats[v] {
				return fmt.Errorf("invalid log format: %s (valid: text, json)", v)
			}
			c.Logging.Format = v
			return nil
		},
	},
}

// Keys returns every settable key, sorted.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Get returns the value of a dot-notation key. Secrets come back redacted.
func (c *SleepSyncConfig) Get(name string) (any, bool) {
	k, ok := keys[name]
	if !ok {
		return nil, false
	}
	return k.get(c), true
}

// Set parses value into the field named by a dot-notation key.
func (c *SleepSyncConfig) Set(name, value string) error {
	k, ok := keys[name]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", name)
	}
	return k.set(c, value)
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer: %s", v)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %s", v)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", v)
	}
	*dst = d
	return nil
}
