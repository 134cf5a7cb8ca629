package orchestrator

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/plantedfoods/discovery-pipeline/internal/dish"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
	"github.com/plantedfoods/discovery-pipeline/internal/querycache"
	"github.com/plantedfoods/discovery-pipeline/internal/run"
	"github.com/plantedfoods/discovery-pipeline/internal/strategy"
	"github.com/plantedfoods/discovery-pipeline/internal/venue"
	"github.com/plantedfoods/discovery-pipeline/pkg/aiclient"
	"github.com/plantedfoods/discovery-pipeline/pkg/search"
)

// fakeSearch records queries and replays canned results.
type fakeSearch struct {
	queries []string
	results map[string][]search.Result
	err     error
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

// fakeAI replays one parse result for every query and scores every venue
// the same.
type fakeAI struct {
	parsed    aiclient.ParsedSearchResults
	score     aiclient.ConfidenceAssessment
	generated []aiclient.GeneratedQuery
}

func (f *fakeAI) GenerateQueries(context.Context, aiclient.QueryContext) ([]aiclient.GeneratedQuery, error) {
	return f.generated, nil
}

func (f *fakeAI) ParseSearchResults(context.Context, string, string, []search.Result) (aiclient.ParsedSearchResults, error) {
	return f.parsed, nil
}

func (f *fakeAI) ScoreConfidence(context.Context, aiclient.ParsedVenue, string, float64) (aiclient.ConfidenceAssessment, error) {
	return f.score, nil
}

type fakeExtractor struct {
	result dish.Result
	err    error
	calls  int
}

func (f *fakeExtractor) ExtractDishes(context.Context, dish.Request) (dish.Result, error) {
	f.calls++
	return f.result, f.err
}

type testEnv struct {
	stores Stores
	search *fakeSearch
	ai     *fakeAI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	strategies, err := strategy.NewSQLite(db)
	require.NoError(t, err)
	venues, err := venue.NewSQLite(db)
	require.NoError(t, err)
	feedback, err := venue.NewFeedbackSQLite(db)
	require.NoError(t, err)
	cache, err := querycache.NewSQLite(db)
	require.NoError(t, err)
	runs, err := run.NewSQLite(db)
	require.NoError(t, err)

	return &testEnv{
		stores: Stores{
			Strategies: strategies,
			Venues:     venues,
			Feedback:   feedback,
			Cache:      cache,
			Runs:       runs,
		},
		search: &fakeSearch{results: map[string][]search.Result{}},
		ai: &fakeAI{
			score: aiclient.ConfidenceAssessment{OverallScore: 75, Recommendation: aiclient.RecommendAccept},
		},
	}
}

func (e *testEnv) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(e.search, e.ai, e.stores, model.RunConfig{}, opts...)
	require.NoError(t, err)
	return o
}

func baseConfig(mode model.DiscoveryMode) model.RunConfig {
	return model.RunConfig{
		Mode:        mode,
		Platforms:   []string{"lieferando"},
		Countries:   []string{"DE"},
		RateLimitMS: 1,
	}
}

func seedStrategy(t *testing.T, e *testEnv, template string, rate float64) model.Strategy {
	t.Helper()
	s, err := e.stores.Strategies.Create(t.Context(), model.Strategy{
		Platform: "lieferando", Country: "DE", Template: template,
		SuccessRate: rate, Origin: model.StrategyOriginSeed,
	})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresSearchAndAI(t *testing.T) {
	e := newTestEnv(t)

	_, err := New(nil, e.ai, e.stores, model.RunConfig{})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = New(e.search, nil, e.stores, model.RunConfig{})
	require.ErrorAs(t, err, &cfgErr)
}

func TestInitialize_SeedsOnlyEmptyStore(t *testing.T) {
	e := newTestEnv(t)
	o := e.orchestrator(t)
	ctx := t.Context()

	require.NoError(t, o.Initialize(ctx))
	count, err := e.stores.Strategies.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(SeedStrategies()), count)

	require.NoError(t, o.Initialize(ctx))
	again, err := e.stores.Strategies.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, count, again)
}

func TestRun_Explore_BatchedCityQueries(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted.chicken {city}", 80)

	o := e.orchestrator(t)
	cfg := baseConfig(model.ModeExplore)
	cfg.BatchCitySize = 3

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, r.Status)

	assert.Equal(t, []string{
		"site:lieferando.de planted.chicken (Berlin OR München OR Hamburg)",
		"site:lieferando.de planted.chicken (Köln OR Frankfurt)",
	}, e.search.queries)
	assert.Equal(t, 2, r.Stats.QueriesExecuted)
}

func TestRun_Explore_LowRateStrategiesFallBackToGenerated(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 10) // below the floor

	e.ai.generated = []aiclient.GeneratedQuery{
		{Query: "site:lieferando.de planted kebab Berlin", Confidence: 60},
	}

	o := e.orchestrator(t)
	r, err := o.Run(t.Context(), baseConfig(model.ModeExplore))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, r.Status)
	assert.Equal(t, []string{"site:lieferando.de planted kebab Berlin"}, e.search.queries)
}

func TestRun_BudgetEnforcement(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	o := e.orchestrator(t)
	cfg := baseConfig(model.ModeExplore)
	cfg.BatchCitySize = 1 // five cities, five candidate queries
	cfg.BudgetLimit = 3

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, r.Status)
	assert.Equal(t, 3, r.Stats.QueriesExecuted)
	assert.Len(t, e.search.queries, 3)

	// No feedback may be written past the budget stop.
	records, err := e.stores.Feedback.GetForLearning(t.Context(), 1)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRun_MaxQueriesPerRunIsTheStricterBound(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	o := e.orchestrator(t)
	cfg := baseConfig(model.ModeExplore)
	cfg.BatchCitySize = 1
	cfg.MaxQueriesPerRun = 2
	cfg.BudgetLimit = 100

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Stats.QueriesExecuted)
}

func TestRun_BrandMisuseRejection(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	query := "site:lieferando.de planted (Berlin OR München OR Hamburg)"
	e.search.results[query] = []search.Result{{Title: "Goldies Smashburger", URL: "https://wolt.com/de/ber/goldies"}}
	e.ai.parsed = aiclient.ParsedSearchResults{
		Venues: []aiclient.ParsedVenue{{
			Name: "Goldies Smashburger",
			URL:  "https://wolt.com/de/ber/goldies",
			City: "Berlin",
		}},
	}

	o := e.orchestrator(t)
	r, err := o.Run(t.Context(), baseConfig(model.ModeExplore))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, r.Status)
	assert.Equal(t, 0, r.Stats.VenuesDiscovered)
	assert.Equal(t, 1, r.Stats.VenuesRejected)

	stats, err := e.stores.Venues.GetStats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestRun_VerifiedChainPromotion(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	url := "https://wolt.com/de/ber/birdie-birdie-prenzlauer-berg"
	query := "site:lieferando.de planted (Berlin OR München OR Hamburg)"
	e.search.results[query] = []search.Result{{Title: "Birdie Birdie", URL: url}}
	e.ai.parsed = aiclient.ParsedSearchResults{
		Venues: []aiclient.ParsedVenue{{
			Name: "Birdie Birdie Prenzlauer Berg",
			URL:  url,
			City: "Berlin",
		}},
	}

	o := e.orchestrator(t) // no dish extractor configured
	cfg := baseConfig(model.ModeExplore)
	cfg.ExtractDishesInline = false

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.VenuesDiscovered)

	venues, err := e.stores.Venues.GetByStatus(t.Context(), model.VenueStatusDiscovered)
	require.NoError(t, err)
	require.Len(t, venues, 1)

	v := venues[0]
	assert.True(t, v.IsChain)
	assert.Equal(t, float64(95), v.ChainConfidence)
	assert.Equal(t, float64(90), v.ConfidenceScore)
	assert.ElementsMatch(t, []string{"planted.chicken_burger", "planted.chicken_tenders"}, v.PlantedProducts)
}

func TestRun_DedupByDeliveryURL(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	url := "https://wolt.com/de/ber/tasty"
	query := "site:lieferando.de planted (Berlin OR München OR Hamburg)"
	e.search.results[query] = []search.Result{{Title: "Tasty", URL: url}}
	e.ai.parsed = aiclient.ParsedSearchResults{
		Venues: []aiclient.ParsedVenue{
			{Name: "Tasty", URL: url, City: "Berlin", PlantedMentions: []string{"planted chicken"}},
			{Name: "Tasty Again", URL: url, City: "Berlin", PlantedMentions: []string{"planted chicken"}},
		},
	}

	o := e.orchestrator(t)
	cfg := baseConfig(model.ModeExplore)

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.VenuesDiscovered)

	stats, err := e.stores.Venues.GetStats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestRun_InlineDishExtraction(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	url := "https://wolt.com/de/ber/tasty"
	query := "site:lieferando.de planted (Berlin OR München OR Hamburg)"
	e.search.results[query] = []search.Result{{Title: "Tasty", URL: url}}
	e.ai.parsed = aiclient.ParsedSearchResults{
		Venues: []aiclient.ParsedVenue{{Name: "Tasty", URL: url, City: "Berlin"}},
	}

	extractor := &fakeExtractor{result: dish.Result{
		ServesPlanted: true,
		Dishes: []model.DiscoveredDish{
			{Name: "Planted Chicken Bowl", PlantedProduct: "planted.chicken", Confidence: 80},
		},
	}}

	o := e.orchestrator(t, WithDishExtractor(extractor))
	cfg := baseConfig(model.ModeExplore)
	cfg.ExtractDishesInline = true

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, 1, r.Stats.DishesExtracted)

	venues, err := e.stores.Venues.GetByStatus(t.Context(), model.VenueStatusDiscovered)
	require.NoError(t, err)
	require.Len(t, venues, 1)
	// Products were derived from the dish since the parse had no mentions.
	assert.Equal(t, []string{"planted.chicken"}, venues[0].PlantedProducts)
}

func TestRun_DishExtractionFailureIsAbsorbed(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	url := "https://wolt.com/de/ber/tasty"
	query := "site:lieferando.de planted (Berlin OR München OR Hamburg)"
	e.search.results[query] = []search.Result{{Title: "Tasty", URL: url}}
	e.ai.parsed = aiclient.ParsedSearchResults{
		Venues: []aiclient.ParsedVenue{{Name: "Tasty", URL: url, City: "Berlin", PlantedMentions: []string{"planted kebab"}}},
	}

	extractor := &fakeExtractor{err: eris.New("page unreachable twice")}

	o := e.orchestrator(t, WithDishExtractor(extractor))
	cfg := baseConfig(model.ModeExplore)
	cfg.ExtractDishesInline = true

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, r.Status)
	assert.Equal(t, 1, r.Stats.DishExtractionFailures)
	assert.Equal(t, 1, r.Stats.VenuesDiscovered) // the venue still persists

	venues, err := e.stores.Venues.GetByStatus(t.Context(), model.VenueStatusDiscovered)
	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, []string{"planted.kebab"}, venues[0].PlantedProducts)
	assert.Empty(t, venues[0].Dishes)
}

func TestRun_ChainSignalsOnlyCount(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	query := "site:lieferando.de planted (Berlin OR München OR Hamburg)"
	e.search.results[query] = []search.Result{{Title: "Birdie Birdie", URL: "https://wolt.com/x"}}
	e.ai.parsed = aiclient.ParsedSearchResults{
		ChainsDetected: []aiclient.ChainSignal{
			{Name: "Birdie Birdie", ShouldEnumerate: true, EstimatedLocations: 12},
			{Name: "One Off Cafe", ShouldEnumerate: false},
		},
	}

	o := e.orchestrator(t)
	r, err := o.Run(t.Context(), baseConfig(model.ModeExplore))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.ChainsDetected)
}

func TestRun_QueryCacheSkips(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	query := "site:lieferando.de planted (Berlin OR München OR Hamburg)"
	require.NoError(t, e.stores.Cache.RecordQuery(t.Context(), query, 0))

	o := e.orchestrator(t)
	cfg := baseConfig(model.ModeExplore)
	cfg.EnableQueryCache = true

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stats.QueriesSkipped)
	assert.Equal(t, 1, r.Stats.QueriesExecuted) // only the second batch ran
	assert.Len(t, e.search.queries, 1)
}

func TestRun_Enumerate(t *testing.T) {
	e := newTestEnv(t)

	o := e.orchestrator(t)
	cfg := baseConfig(model.ModeEnumerate)
	cfg.TargetChains = []string{"Birdie Birdie"}

	r, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, r.Status)
	assert.Equal(t, []string{`site:lieferando.de "Birdie Birdie" DE`}, e.search.queries)
}

func TestRun_EnumerateWithoutChainsFails(t *testing.T) {
	e := newTestEnv(t)

	o := e.orchestrator(t)
	r, err := o.Run(t.Context(), baseConfig(model.ModeEnumerate))
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, r.Status)

	stored, err := e.stores.Runs.Get(t.Context(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
}

func TestRun_SearchErrorIsAbsorbedIntoErrorLog(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)
	e.search.err = eris.New("status 500")

	o := e.orchestrator(t)
	r, err := o.Run(t.Context(), baseConfig(model.ModeExplore))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, r.Status)
	assert.Equal(t, 2, r.Stats.QueriesFailed)
	require.NotEmpty(t, r.ErrorLog)
	assert.Equal(t, PhaseSearch, r.ErrorLog[0].Phase)
}

func TestRun_DryRunSuppressesFeedback(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	o := e.orchestrator(t)
	cfg := baseConfig(model.ModeExplore)
	cfg.DryRun = true

	_, err := o.Run(t.Context(), cfg)
	require.NoError(t, err)

	records, err := e.stores.Feedback.GetForLearning(t.Context(), 1)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRun_Cancellation(t *testing.T) {
	e := newTestEnv(t)
	seedStrategy(t, e, "site:{platform} planted {city}", 80)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := e.orchestrator(t)
	r, err := o.Run(ctx, baseConfig(model.ModeExplore))
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, r.Status)
	require.NotEmpty(t, r.ErrorLog)
	assert.Equal(t, "cancelled", r.ErrorLog[len(r.ErrorLog)-1].Message)
	assert.Equal(t, 0, r.Stats.QueriesExecuted)
}

func TestRun_Verify_ProbesDeliveryLinks(t *testing.T) {
	e := newTestEnv(t)
	ctx := t.Context()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(alive.Close)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(dead.Close)

	mkVenue := func(name, url string) model.DiscoveredVenue {
		v, err := e.stores.Venues.CreateVenue(ctx, model.DiscoveredVenue{
			DiscoveryRunID: "r1", Name: name,
			Address:           model.Address{City: "Berlin", Country: "DE"},
			DeliveryPlatforms: []model.DeliveryPlatform{{Platform: "wolt", URL: url, Active: true}},
			DiscoveredByQuery: "q",
		})
		require.NoError(t, err)
		return v
	}
	live := mkVenue("Live Venue", alive.URL+"/live")
	gone := mkVenue("Gone Venue", dead.URL+"/gone")

	o := e.orchestrator(t)
	cfg := baseConfig(model.ModeVerify)
	cfg.TargetVenues = []string{live.ID, gone.ID}

	r, err := o.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, r.Status)
	assert.Equal(t, 1, r.Stats.VenuesVerified)
	assert.Equal(t, 0, r.Stats.QueriesExecuted)

	venues, err := e.stores.Venues.GetByIDs(ctx, []string{live.ID, gone.ID})
	require.NoError(t, err)
	byName := map[string]model.DiscoveredVenue{}
	for _, v := range venues {
		byName[v.Name] = v
	}
	assert.True(t, byName["Live Venue"].DeliveryPlatforms[0].Verified)
	assert.False(t, byName["Gone Venue"].DeliveryPlatforms[0].Verified)
	assert.False(t, byName["Gone Venue"].DeliveryPlatforms[0].Active)
}

func TestRun_RecordsStrategyUsage(t *testing.T) {
	e := newTestEnv(t)
	strat := seedStrategy(t, e, "site:{platform} planted {city}", 80)

	url := "https://wolt.com/de/ber/tasty"
	query := "site:lieferando.de planted (Berlin OR München OR Hamburg)"
	e.search.results[query] = []search.Result{{Title: "Tasty", URL: url}}
	e.ai.parsed = aiclient.ParsedSearchResults{
		Venues: []aiclient.ParsedVenue{{Name: "Tasty", URL: url, City: "Berlin", PlantedMentions: []string{"planted chicken"}}},
	}

	o := e.orchestrator(t)
	r, err := o.Run(t.Context(), baseConfig(model.ModeExplore))
	require.NoError(t, err)
	assert.Equal(t, []string{strat.ID}, r.StrategiesUsed)

	all, err := e.stores.Strategies.GetAll(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 1)
	// Only the first batch found anything; the empty second batch records
	// no_results feedback without charging the strategy.
	assert.Equal(t, 1, all[0].TotalUses)
	assert.Equal(t, 1, all[0].SuccessfulDiscoveries)
	assert.Equal(t, 0, all[0].FalsePositives)
}
