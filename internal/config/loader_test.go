package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, 10, cfg.Pool.MaxSessions)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"server": {"port": 8088},
			"llm": {"provider": "anthropic", "model": "claude-3-5-sonnet-20241022", "api_key": "sk-ant-test"},
			"pool": {"max_sessions": 3}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, 8088, cfg.Server.Port)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
		assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
		assert.Equal(t, 3, cfg.Pool.MaxSessions)

		// Unset keys keep their defaults.
		assert.Equal(t, 300, cfg.Pool.SweepIntervalSeconds)
		assert.Equal(t, 1800, cfg.Pool.MaxIdleSeconds)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{"llm": {"api_key": "sk-test"}}`), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Logging.File)
		assert.NotEmpty(t, cfg.Browser.DataDir)
	})

	t.Run("derive sqlite path from data dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"data_dir": "/var/lib/webagentd",
			"store": {"backend": "sqlite"}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/var/lib/webagentd", "tasks.db"), cfg.Store.Path)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{"server": {"port": 8088}}`), 0644)
		require.NoError(t, err)

		t.Setenv("WEBAGENTD_SERVER_PORT", "9001")
		t.Setenv("WEBAGENTD_LLM_API_KEY", "sk-from-env")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, 9001, cfg.Server.Port)
		assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.LLM.APIKey = "sk-test-key"
		cfg.Server.Port = 8099

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		// Verify file was created
		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		// Load and verify
		loadedCfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-test-key", loadedCfg.LLM.APIKey)
		assert.Equal(t, 8099, loadedCfg.Server.Port)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		cfg := DefaultConfig()
		cfg.LLM.APIKey = "sk-test-key"

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		path := loader.GetConfigPath()
		assert.Equal(t, "/custom/path/config.json", path)
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, ".webagentd")
	})
}
