package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "auto", cfg.AI.Provider)
	assert.Equal(t, "google", cfg.Search.Provider)
	assert.Equal(t, 50, cfg.Orchestrator.MaxQueriesPerRun)
	assert.Equal(t, 2000, cfg.Orchestrator.RateLimitMS)
	assert.True(t, cfg.Orchestrator.ExtractDishesInline)
	assert.True(t, cfg.Orchestrator.EnableQueryCache)
	assert.Equal(t, 2000, cfg.Orchestrator.BudgetLimit)
	assert.Equal(t, 3, cfg.Orchestrator.BatchCitySize)
	assert.Equal(t, 50, cfg.Orchestrator.MaxDishesPerVenue)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/discovery
log:
  level: debug
  format: console
orchestrator:
  budget_limit: 500
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 500, cfg.Orchestrator.BudgetLimit)
	// Defaults still apply for unset values.
	assert.Equal(t, 3, cfg.Orchestrator.BatchCitySize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DISCOVERY_STORE_DRIVER", "postgres")
	t.Setenv("DISCOVERY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadCredentialEnvVarsUnprefixed(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("GOOGLE_SEARCH_API_KEY", "gs-key")
	t.Setenv("GOOGLE_SEARCH_ENGINE_ID", "engine-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gm-key", cfg.AI.GeminiKey)
	assert.Equal(t, "gs-key", cfg.Search.GoogleAPIKey)
	assert.Equal(t, "engine-1", cfg.Search.GoogleEngineID)
}

func TestLoadCredentialEnvVarsFallback(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("GOOGLE_AI_API_KEY", "primary-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "primary-key", cfg.AI.GeminiKey)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "discovery.db"
	cfg.AI.GeminiKey = "gm-key"
	cfg.Search.Provider = "google"
	cfg.Search.GoogleAPIKey = "gs-key"
	cfg.Orchestrator.BatchCitySize = 3
	cfg.Orchestrator.MaxDishesPerVenue = 50
	return cfg
}

func TestValidate_AllPresent(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_MissingAIKeys(t *testing.T) {
	cfg := validConfig()
	cfg.AI.GeminiKey = ""
	cfg.AI.AnthropicKey = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ai.gemini_key or ai.anthropic_key")
}

func TestValidate_MissingSearchCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Search.GoogleAPIKey = ""
	cfg.Search.GoogleCredentials = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search.google_api_key")
}

func TestValidate_SerpAPIRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Provider = "serpapi"
	cfg.Search.SerpAPIKey = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search.serpapi_key")
}

func TestValidate_BatchCitySizeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Orchestrator.BatchCitySize = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch_city_size")
}
