package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file. A missing file yields the
// defaults; environment variables with the WEBAGENTD_ prefix override
// both (WEBAGENTD_LLM_API_KEY, WEBAGENTD_SERVER_PORT, ...).
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("WEBAGENTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Register every key so environment overrides apply even when the
	// file omits them.
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Derive paths that were not specified.
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".webagentd")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "webagentd.log")
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "tasks.db")
	}
	if cfg.Browser.DataDir == "" {
		cfg.Browser.DataDir = filepath.Join(cfg.DataDir, "profiles")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.debug", cfg.Server.Debug)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.chrome_path", cfg.Browser.ChromePath)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.window_width", cfg.Browser.WindowWidth)
	v.SetDefault("browser.window_height", cfg.Browser.WindowHeight)
	v.SetDefault("browser.data_dir", cfg.Browser.DataDir)
	v.SetDefault("browser.allow_file_urls", cfg.Browser.AllowFileURLs)
	v.SetDefault("browser.allow_localhost_urls", cfg.Browser.AllowLocalhostURLs)
	v.SetDefault("browser.allowed_domains", cfg.Browser.AllowedDomains)
	v.SetDefault("browser.blocked_domains", cfg.Browser.BlockedDomains)

	v.SetDefault("pool.max_sessions", cfg.Pool.MaxSessions)
	v.SetDefault("pool.max_idle_seconds", cfg.Pool.MaxIdleSeconds)
	v.SetDefault("pool.sweep_interval_seconds", cfg.Pool.SweepIntervalSeconds)
	v.SetDefault("pool.probe_timeout_seconds", cfg.Pool.ProbeTimeoutSeconds)
	v.SetDefault("pool.factory_timeout_seconds", cfg.Pool.FactoryTimeoutSeconds)

	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)

	v.SetDefault("agent.max_steps", cfg.Agent.MaxSteps)
	v.SetDefault("agent.tool_timeout_seconds", cfg.Agent.ToolTimeoutSeconds)

	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.path", cfg.Store.Path)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_age_days", cfg.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", cfg.Logging.Compress)

	v.SetDefault("data_dir", cfg.DataDir)
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("browser", cfg.Browser)
	v.Set("pool", cfg.Pool)
	v.Set("llm", cfg.LLM)
	v.Set("agent", cfg.Agent)
	v.Set("store", cfg.Store)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".webagentd", "webagentd.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
