// Package config loads and validates the discovery pipeline's configuration
// from a YAML file, environment variables, and CLI flag overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	AI           AIConfig           `yaml:"ai" mapstructure:"ai"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Pricing      PricingConfig      `yaml:"pricing" mapstructure:"pricing"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AIConfig holds LLM provider credentials and model selection.
type AIConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // auto, gemini, anthropic
	GeminiKey      string `yaml:"gemini_key" mapstructure:"gemini_key"`
	GeminiModel    string `yaml:"gemini_model" mapstructure:"gemini_model"`
	AnthropicKey   string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
}

// SearchConfig holds search-API credentials and provider selection.
type SearchConfig struct {
	Provider          string `yaml:"provider" mapstructure:"provider"` // google or serpapi
	GoogleAPIKey      string `yaml:"google_api_key" mapstructure:"google_api_key"`
	GoogleEngineID    string `yaml:"google_engine_id" mapstructure:"google_engine_id"`
	GoogleCredentials string `yaml:"google_credentials" mapstructure:"google_credentials"` // JSON array
	SerpAPIKey        string `yaml:"serpapi_key" mapstructure:"serpapi_key"`
}

// OrchestratorConfig holds the run-tuning knobs described in the external
// interface table: budget, pacing, feature toggles.
type OrchestratorConfig struct {
	MaxQueriesPerRun    int  `yaml:"max_queries_per_run" mapstructure:"max_queries_per_run"`
	RateLimitMS         int  `yaml:"rate_limit_ms" mapstructure:"rate_limit_ms"`
	DryRun              bool `yaml:"dry_run" mapstructure:"dry_run"`
	Verbose             bool `yaml:"verbose" mapstructure:"verbose"`
	ExtractDishesInline bool `yaml:"extract_dishes_inline" mapstructure:"extract_dishes_inline"`
	EnableQueryCache    bool `yaml:"enable_query_cache" mapstructure:"enable_query_cache"`
	BudgetLimit         int  `yaml:"budget_limit" mapstructure:"budget_limit"`
	BatchCitySize       int  `yaml:"batch_city_size" mapstructure:"batch_city_size"`
	MaxDishesPerVenue   int  `yaml:"max_dishes_per_venue" mapstructure:"max_dishes_per_venue"`
}

// PricingConfig holds per-provider pricing rates used for cost attribution.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
	SerpAPI   SerpAPIPricing          `yaml:"serpapi" mapstructure:"serpapi"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// SerpAPIPricing holds per-query SerpAPI pricing.
type SerpAPIPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig configures Prometheus collector registration. The module
// never starts an HTTP listener itself; Addr is informational for the
// embedding program to decide whether/where to serve /metrics.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Validate checks required configuration fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.AI.GeminiKey == "" && c.AI.AnthropicKey == "" {
		errs = append(errs, "at least one of ai.gemini_key or ai.anthropic_key is required")
	}
	if c.Search.Provider == "google" && c.Search.GoogleAPIKey == "" && c.Search.GoogleCredentials == "" {
		errs = append(errs, "search.google_api_key (or search.google_credentials) is required when search.provider is \"google\"")
	}
	if c.Search.Provider == "serpapi" && c.Search.SerpAPIKey == "" {
		errs = append(errs, "search.serpapi_key is required when search.provider is \"serpapi\"")
	}
	if c.Orchestrator.BatchCitySize < 1 {
		errs = append(errs, "orchestrator.batch_city_size must be >= 1")
	}
	if c.Orchestrator.MaxDishesPerVenue < 0 {
		errs = append(errs, "orchestrator.max_dishes_per_venue must be >= 0")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: validation failed: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// Load reads configuration from an optional .env file, a config file, and
// the environment, applying defaults for everything else.
func Load() (*Config, error) {
	if envFile := os.Getenv("DISCOVERY_ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, eris.Wrapf(err, "config: load env file %s", envFile)
		}
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider credentials keep their conventional environment-variable
	// names, not the DISCOVERY_ prefix, so they're bound explicitly.
	_ = v.BindEnv("ai.gemini_key", "GOOGLE_AI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("ai.anthropic_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("search.google_api_key", "GOOGLE_SEARCH_API_KEY")
	_ = v.BindEnv("search.google_engine_id", "GOOGLE_SEARCH_ENGINE_ID")
	_ = v.BindEnv("search.google_credentials", "GOOGLE_SEARCH_CREDENTIALS")
	_ = v.BindEnv("search.serpapi_key", "SERPAPI_KEY")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "discovery.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("ai.provider", "auto")
	v.SetDefault("ai.gemini_model", "gemini-2.5-flash")
	v.SetDefault("ai.anthropic_model", "claude-sonnet-4-5")
	v.SetDefault("search.provider", "google")
	v.SetDefault("orchestrator.max_queries_per_run", 50)
	v.SetDefault("orchestrator.rate_limit_ms", 2000)
	v.SetDefault("orchestrator.dry_run", false)
	v.SetDefault("orchestrator.verbose", false)
	v.SetDefault("orchestrator.extract_dishes_inline", true)
	v.SetDefault("orchestrator.enable_query_cache", true)
	v.SetDefault("orchestrator.budget_limit", 2000)
	v.SetDefault("orchestrator.batch_city_size", 3)
	v.SetDefault("orchestrator.max_dishes_per_venue", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.serpapi.per_query", 0.015)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
