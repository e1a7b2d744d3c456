package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates an LLM provider name
func (v *Validator) ValidateProvider(provider string) error {
	validProviders := []string{"anthropic", "openai"}
	for _, valid := range validProviders {
		if provider == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	// Check if it's a known model
	knownModels := []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"claude-3-5-sonnet-20241022",
		"claude-sonnet-4",
		"claude-opus-4",
	}

	for _, known := range knownModels {
		if model == known {
			return nil
		}
	}

	// Allow custom models
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateStoreBackend validates the task store backend
func (v *Validator) ValidateStoreBackend(backend string) error {
	validBackends := []string{"memory", "sqlite"}
	for _, valid := range validBackends {
		if backend == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid store backend: %s (must be one of: %s)", backend, strings.Join(validBackends, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.LLM.Provider); err != nil {
		errors = append(errors, err)
	}
	if cfg.LLM.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.LLM.APIKey, cfg.LLM.Provider); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateModel(cfg.LLM.Model); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errors = append(errors, err)
	}
	if cfg.LLM.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
			errors = append(errors, err)
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateStoreBackend(cfg.Store.Backend); err != nil {
		errors = append(errors, err)
	}

	if cfg.Pool.MaxSessions <= 0 {
		errors = append(errors, fmt.Errorf("pool max_sessions must be positive"))
	}
	if cfg.Pool.MaxIdleSeconds <= 0 {
		errors = append(errors, fmt.Errorf("pool max_idle_seconds must be positive"))
	}
	if cfg.Pool.SweepIntervalSeconds <= 0 {
		errors = append(errors, fmt.Errorf("pool sweep_interval_seconds must be positive"))
	}

	return errors
}
