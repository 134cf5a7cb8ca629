package main

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plantedfoods/discovery-pipeline/internal/cost"
	"github.com/plantedfoods/discovery-pipeline/internal/dish"
	"github.com/plantedfoods/discovery-pipeline/internal/learner"
	"github.com/plantedfoods/discovery-pipeline/internal/metrics"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
	"github.com/plantedfoods/discovery-pipeline/internal/orchestrator"
	"github.com/plantedfoods/discovery-pipeline/internal/querycache"
	"github.com/plantedfoods/discovery-pipeline/internal/run"
	"github.com/plantedfoods/discovery-pipeline/internal/searchpool"
	"github.com/plantedfoods/discovery-pipeline/internal/strategy"
	"github.com/plantedfoods/discovery-pipeline/internal/venue"
	"github.com/plantedfoods/discovery-pipeline/pkg/aiclient"
	"github.com/plantedfoods/discovery-pipeline/pkg/googlesearch"
	"github.com/plantedfoods/discovery-pipeline/pkg/search"
	"github.com/plantedfoods/discovery-pipeline/pkg/serpapi"
)

// pipelineEnv holds all initialized stores and clients the commands need.
type pipelineEnv struct {
	sqlDB  *sql.DB
	pgPool *pgxpool.Pool

	Stores       orchestrator.Stores
	SearchPool   *searchpool.Pool
	AI           *aiclient.Client
	Calculator   *cost.Calculator
	Orchestrator *orchestrator.Orchestrator
	Learner      *learner.Learner

	gemini *aiclient.GeminiProvider
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.gemini != nil {
		_ = pe.gemini.Close()
	}
	if pe.sqlDB != nil {
		_ = pe.sqlDB.Close()
	}
	if pe.pgPool != nil {
		pe.pgPool.Close()
	}
}

// initPipeline sets up stores, the search provider, the AI client, and the
// orchestrator from the loaded config. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics.InitRegistry()

	env := &pipelineEnv{}

	if err := initStores(ctx, env); err != nil {
		return nil, err
	}

	searchProvider, err := initSearch(env)
	if err != nil {
		env.Close()
		return nil, err
	}

	if err := initAI(ctx, env); err != nil {
		env.Close()
		return nil, err
	}

	extractor := dish.New(env.AI, cfg.Orchestrator.MaxDishesPerVenue)
	env.Learner = learner.New(env.Stores.Feedback, env.Stores.Strategies, env.AI)

	orch, err := orchestrator.New(searchProvider, env.AI, env.Stores, runDefaults(),
		orchestrator.WithDishExtractor(extractor),
		orchestrator.WithLearner(env.Learner),
	)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Orchestrator = orch

	return env, nil
}

func initStores(ctx context.Context, env *pipelineEnv) error {
	switch cfg.Store.Driver {
	case "sqlite", "":
		db, err := sql.Open("sqlite", cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open sqlite store")
		}
		env.sqlDB = db

		if env.Stores.Strategies, err = strategy.NewSQLite(db); err != nil {
			return err
		}
		if env.Stores.Venues, err = venue.NewSQLite(db); err != nil {
			return err
		}
		if env.Stores.Feedback, err = venue.NewFeedbackSQLite(db); err != nil {
			return err
		}
		if env.Stores.Cache, err = querycache.NewSQLite(db); err != nil {
			return err
		}
		if env.Stores.Runs, err = run.NewSQLite(db); err != nil {
			return err
		}
		return nil

	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "parse postgres url")
		}
		if cfg.Store.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Store.MaxConns
		}
		if cfg.Store.MinConns > 0 {
			poolCfg.MinConns = cfg.Store.MinConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return eris.Wrap(err, "open postgres store")
		}
		env.pgPool = pool

		if env.Stores.Strategies, err = strategy.NewPostgres(ctx, pool); err != nil {
			return err
		}
		if env.Stores.Venues, err = venue.NewPostgres(ctx, pool); err != nil {
			return err
		}
		if env.Stores.Feedback, err = venue.NewFeedbackPostgres(ctx, pool); err != nil {
			return err
		}
		if env.Stores.Cache, err = querycache.NewPostgres(ctx, pool); err != nil {
			return err
		}
		if env.Stores.Runs, err = run.NewPostgres(ctx, pool); err != nil {
			return err
		}
		return nil

	default:
		return eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSearch(env *pipelineEnv) (search.Provider, error) {
	switch cfg.Search.Provider {
	case "google", "":
		creds, err := searchpool.LoadCredentials(cfg.Search.GoogleCredentials, cfg.Search.GoogleAPIKey, cfg.Search.GoogleEngineID)
		if err != nil {
			return nil, err
		}
		if len(creds) == 0 {
			return nil, eris.New("no google search credentials configured")
		}
		env.SearchPool = searchpool.New(creds)
		zap.L().Info("google custom search enabled", zap.Int("credentials", len(creds)))
		return googlesearch.NewClient(env.SearchPool), nil

	case "serpapi":
		zap.L().Info("serpapi search enabled")
		return serpapi.NewClient(cfg.Search.SerpAPIKey), nil

	default:
		return nil, eris.Errorf("unsupported search provider: %s", cfg.Search.Provider)
	}
}

func initAI(ctx context.Context, env *pipelineEnv) error {
	env.Calculator = cost.NewCalculator(cost.RatesFromConfig(pricingConfig()))

	var providers []aiclient.Provider

	useGemini := cfg.AI.GeminiKey != "" && cfg.AI.Provider != "anthropic"
	useAnthropic := cfg.AI.AnthropicKey != "" && cfg.AI.Provider != "gemini"

	if useGemini {
		gemini, err := aiclient.NewGemini(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiModel)
		if err != nil {
			return err
		}
		env.gemini = gemini
		providers = append(providers, gemini)
	}
	if useAnthropic {
		providers = append(providers, aiclient.NewAnthropic(cfg.AI.AnthropicKey, cfg.AI.AnthropicModel))
	}
	if len(providers) == 0 {
		return eris.New("no AI provider configured")
	}

	var fallback aiclient.Provider
	if len(providers) > 1 {
		fallback = providers[1]
	}

	client, err := aiclient.New(providers[0], fallback, aiclient.WithCostCalculator(env.Calculator))
	if err != nil {
		return err
	}
	env.AI = client

	// When Anthropic is the active provider its cached system prompt is
	// warmed once up front, so every pipeline call hits the warm cache.
	if anthropicProvider, ok := providers[0].(*aiclient.AnthropicProvider); ok {
		if err := anthropicProvider.WarmCache(ctx); err != nil {
			zap.L().Warn("prompt cache warmup failed", zap.Error(err))
		}
	}

	zap.L().Info("ai client ready", zap.String("provider", client.ActiveProvider()))
	return nil
}

// pricingConfig converts config pricing into the cost package's mirror types.
func pricingConfig() cost.PricingConfig {
	out := cost.PricingConfig{
		Anthropic: make(map[string]cost.ModelPricing, len(cfg.Pricing.Anthropic)),
		Gemini:    make(map[string]cost.ModelPricing, len(cfg.Pricing.Gemini)),
		SerpAPI:   cost.SerpAPIPricing{PerQuery: cfg.Pricing.SerpAPI.PerQuery},
	}
	for k, v := range cfg.Pricing.Anthropic {
		out.Anthropic[k] = cost.ModelPricing{Input: v.Input, Output: v.Output}
	}
	for k, v := range cfg.Pricing.Gemini {
		out.Gemini[k] = cost.ModelPricing{Input: v.Input, Output: v.Output}
	}
	return out
}

// runDefaults maps the orchestrator config section onto run-config defaults.
func runDefaults() model.RunConfig {
	return model.RunConfig{
		MaxQueriesPerRun:    cfg.Orchestrator.MaxQueriesPerRun,
		RateLimitMS:         cfg.Orchestrator.RateLimitMS,
		DryRun:              cfg.Orchestrator.DryRun,
		Verbose:             cfg.Orchestrator.Verbose,
		AIProvider:          cfg.AI.Provider,
		ExtractDishesInline: cfg.Orchestrator.ExtractDishesInline,
		EnableQueryCache:    cfg.Orchestrator.EnableQueryCache,
		BudgetLimit:         cfg.Orchestrator.BudgetLimit,
		BatchCitySize:       cfg.Orchestrator.BatchCitySize,
		MaxDishesPerVenue:   cfg.Orchestrator.MaxDishesPerVenue,
	}
}
