package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main webagentd configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Browser launch settings
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`

	// Session pool
	Pool PoolConfig `json:"pool" mapstructure:"pool"`

	// LLM provider
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Agent loop
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Task result store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host  string `json:"host" mapstructure:"host"`
	Port  int    `json:"port" mapstructure:"port"`
	Debug bool   `json:"debug" mapstructure:"debug"`
}

// BrowserConfig holds browser launch configuration and the navigation
// policy applied to agent-driven page loads.
type BrowserConfig struct {
	Headless           bool     `json:"headless" mapstructure:"headless"`
	ChromePath         string   `json:"chrome_path" mapstructure:"chrome_path"`
	NoSandbox          bool     `json:"no_sandbox" mapstructure:"no_sandbox"`
	UserAgent          string   `json:"user_agent" mapstructure:"user_agent"`
	WindowWidth        int      `json:"window_width" mapstructure:"window_width"`
	WindowHeight       int      `json:"window_height" mapstructure:"window_height"`
	DataDir            string   `json:"data_dir" mapstructure:"data_dir"`
	AllowFileURLs      bool     `json:"allow_file_urls" mapstructure:"allow_file_urls"`
	AllowLocalhostURLs bool     `json:"allow_localhost_urls" mapstructure:"allow_localhost_urls"`
	AllowedDomains     []string `json:"allowed_domains,omitempty" mapstructure:"allowed_domains"`
	BlockedDomains     []string `json:"blocked_domains,omitempty" mapstructure:"blocked_domains"`
}

// PoolConfig holds session pool configuration. Durations are seconds.
type PoolConfig struct {
	MaxSessions           int `json:"max_sessions" mapstructure:"max_sessions"`
	MaxIdleSeconds        int `json:"max_idle_seconds" mapstructure:"max_idle_seconds"`
	SweepIntervalSeconds  int `json:"sweep_interval_seconds" mapstructure:"sweep_interval_seconds"`
	ProbeTimeoutSeconds   int `json:"probe_timeout_seconds" mapstructure:"probe_timeout_seconds"`
	FactoryTimeoutSeconds int `json:"factory_timeout_seconds" mapstructure:"factory_timeout_seconds"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// AgentConfig holds agent loop configuration
type AgentConfig struct {
	MaxSteps           int `json:"max_steps" mapstructure:"max_steps"`
	ToolTimeoutSeconds int `json:"tool_timeout_seconds" mapstructure:"tool_timeout_seconds"`
}

// StoreConfig holds task result store configuration
type StoreConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // memory, sqlite
	Path    string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	Console    bool   `json:"console" mapstructure:"console"`
	Pretty     bool   `json:"pretty" mapstructure:"pretty"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  "127.0.0.1",
			Port:  5000,
			Debug: false,
		},
		Browser: BrowserConfig{
			Headless:     false,
			WindowWidth:  1280,
			WindowHeight: 720,
		},
		Pool: PoolConfig{
			MaxSessions:           10,
			MaxIdleSeconds:        1800,
			SweepIntervalSeconds:  300,
			ProbeTimeoutSeconds:   3,
			FactoryTimeoutSeconds: 30,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			MaxTokens:   4096,
			Temperature: 0.1,
		},
		Agent: AgentConfig{
			MaxSteps:           25,
			ToolTimeoutSeconds: 30,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			Pretty:     false,
			Redaction:  true,
			MaxSizeMB:  100,
			MaxAgeDays: 7,
			Compress:   true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Pool.MaxSessions <= 0 {
		return fmt.Errorf("pool max_sessions must be positive, got %d", c.Pool.MaxSessions)
	}
	if c.Pool.MaxIdleSeconds <= 0 {
		return fmt.Errorf("pool max_idle_seconds must be positive, got %d", c.Pool.MaxIdleSeconds)
	}
	if c.Pool.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("pool sweep_interval_seconds must be positive, got %d", c.Pool.SweepIntervalSeconds)
	}
	if c.Pool.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("pool probe_timeout_seconds must be positive, got %d", c.Pool.ProbeTimeoutSeconds)
	}
	if c.Pool.FactoryTimeoutSeconds <= 0 {
		return fmt.Errorf("pool factory_timeout_seconds must be positive, got %d", c.Pool.FactoryTimeoutSeconds)
	}

	if c.LLM.Provider != "anthropic" && c.LLM.Provider != "openai" {
		return fmt.Errorf("invalid llm provider %s (must be: anthropic, openai)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api_key is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2, got %f", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}

	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.ToolTimeoutSeconds <= 0 {
		return fmt.Errorf("agent tool_timeout_seconds must be positive, got %d", c.Agent.ToolTimeoutSeconds)
	}

	if c.Store.Backend != "memory" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("invalid store backend %s (must be: memory, sqlite)", c.Store.Backend)
	}

	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window size must be positive, got %dx%d",
			c.Browser.WindowWidth, c.Browser.WindowHeight)
	}

	return nil
}
