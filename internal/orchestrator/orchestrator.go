// Package orchestrator drives discovery runs: it selects strategies,
// composes queries, fans search results through the AI client, processes the
// venues that come back, and records stats and feedback along the way.
package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/plantedfoods/discovery-pipeline/internal/dish"
	"github.com/plantedfoods/discovery-pipeline/internal/metrics"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
	"github.com/plantedfoods/discovery-pipeline/internal/querycache"
	"github.com/plantedfoods/discovery-pipeline/internal/run"
	"github.com/plantedfoods/discovery-pipeline/internal/searchpool"
	"github.com/plantedfoods/discovery-pipeline/internal/strategy"
	"github.com/plantedfoods/discovery-pipeline/internal/venue"
	"github.com/plantedfoods/discovery-pipeline/pkg/aiclient"
	"github.com/plantedfoods/discovery-pipeline/pkg/search"
)

// Defaults for run-config fields left at their zero value.
const (
	DefaultMaxQueriesPerRun  = 50
	DefaultRateLimitMS       = 2000
	DefaultBudgetLimit       = 2000
	DefaultBatchCitySize     = 3
	DefaultMaxDishesPerVenue = 50

	// defaultCitiesPerCountry is how many cities explore mode probes per
	// (strategy, country).
	defaultCitiesPerCountry = 5
	// minStrategySuccessRate filters which stored strategies explore mode
	// considers at all.
	minStrategySuccessRate = 30
	// topStrategiesPerPair caps how many strategies run per (platform, country).
	topStrategiesPerPair = 3
	// defaultStrategyRate is the rate fed to confidence scoring when a venue
	// was found without a stored strategy.
	defaultStrategyRate = 50

	// Verified-chain promotion values.
	chainConfidence      = 95
	chainVenueConfidence = 90
	chainDishBoost       = 20
	chainDishBoostCap    = 95

	probeTimeout = 15 * time.Second
)

// Control-flow sentinels for the per-run query loop.
var (
	errBudgetReached = eris.New("orchestrator: query budget reached")
	errCancelled     = eris.New("orchestrator: run cancelled")
)

// AIClient is the subset of LLM operations the orchestrator invokes directly.
type AIClient interface {
	GenerateQueries(ctx context.Context, qctx aiclient.QueryContext) ([]aiclient.GeneratedQuery, error)
	ParseSearchResults(ctx context.Context, query, platform string, results []search.Result) (aiclient.ParsedSearchResults, error)
	ScoreConfidence(ctx context.Context, v aiclient.ParsedVenue, query string, strategyRate float64) (aiclient.ConfidenceAssessment, error)
}

// DishExtractor is the inline dish-extraction dependency.
type DishExtractor interface {
	ExtractDishes(ctx context.Context, req dish.Request) (dish.Result, error)
}

// Learner runs a learning cycle; the orchestrator delegates to it.
type Learner interface {
	Learn(ctx context.Context) ([]model.LearnedPattern, error)
}

// Stores bundles the persistence dependencies of a discovery run.
type Stores struct {
	Strategies strategy.Store
	Venues     venue.Store
	Feedback   venue.FeedbackStore
	Cache      querycache.Store // optional; nil disables caching outright
	Runs       run.Store
}

// Orchestrator executes discovery runs.
type Orchestrator struct {
	search    search.Provider
	ai        AIClient
	stores    Stores
	extractor DishExtractor
	learner   Learner
	defaults  model.RunConfig

	chains    []VerifiedChain
	blocklist []string
	probe     *http.Client
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithVerifiedChains replaces the built-in verified-chain table.
func WithVerifiedChains(chains []VerifiedChain) Option {
	return func(o *Orchestrator) { o.chains = chains }
}

// WithBrandMisuseBlocklist replaces the built-in brand-misuse block-list.
func WithBrandMisuseBlocklist(fragments []string) Option {
	return func(o *Orchestrator) { o.blocklist = fragments }
}

// WithDishExtractor sets the inline dish extractor.
func WithDishExtractor(e DishExtractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

// WithLearner sets the learning-cycle delegate.
func WithLearner(l Learner) Option {
	return func(o *Orchestrator) { o.learner = l }
}

// WithProbeClient overrides the HTTP client verify mode uses to re-probe
// delivery links.
func WithProbeClient(hc *http.Client) Option {
	return func(o *Orchestrator) { o.probe = hc }
}

// New constructs an Orchestrator. A missing search provider or AI client is
// a ConfigurationError: the pipeline cannot do anything without either.
func New(searchProvider search.Provider, ai AIClient, stores Stores, defaults model.RunConfig, opts ...Option) (*Orchestrator, error) {
	if searchProvider == nil {
		return nil, &ConfigurationError{Reason: "no search provider configured"}
	}
	if ai == nil {
		return nil, &ConfigurationError{Reason: "no AI provider configured"}
	}
	if stores.Strategies == nil || stores.Venues == nil || stores.Feedback == nil || stores.Runs == nil {
		return nil, &ConfigurationError{Reason: "strategy, venue, feedback and run stores are required"}
	}

	o := &Orchestrator{
		search:    searchProvider,
		ai:        ai,
		stores:    stores,
		defaults:  defaults,
		chains:    defaultVerifiedChains,
		blocklist: defaultBrandMisuseBlocklist,
		probe:     &http.Client{Timeout: probeTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Initialize loads the built-in seed strategies into an empty strategy
// store. A store that already holds strategies is left untouched.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	count, err := o.stores.Strategies.Count(ctx)
	if err != nil {
		return &PersistenceError{Op: "count strategies", Err: err}
	}
	if count > 0 {
		return nil
	}
	if err := o.stores.Strategies.Seed(ctx, SeedStrategies()); err != nil {
		return &PersistenceError{Op: "seed strategies", Err: err}
	}
	zap.L().Info("seeded strategy library", zap.Int("strategies", len(SeedStrategies())))
	return nil
}

// LearnPatterns runs the learning cycle.
func (o *Orchestrator) LearnPatterns(ctx context.Context) ([]model.LearnedPattern, error) {
	if o.learner == nil {
		return nil, &ConfigurationError{Reason: "no learner configured"}
	}
	return o.learner.Learn(ctx)
}

// runState carries the mutable state of one run through its query loop.
type runState struct {
	run  *model.DiscoveryRun
	cfg  model.RunConfig
	used map[string]bool
	errs error

	// lastDone is when the previous query finished processing; the
	// inter-query sleep is measured from this instant, not from when the
	// previous query started.
	lastDone time.Time
}

// pace sleeps out whatever remains of the rate_limit_ms window that began
// when the previous query's processing ended. The first query of a run is
// never delayed, and cache-skipped queries neither wait nor reset the window.
func (rs *runState) pace(ctx context.Context) error {
	if rs.lastDone.IsZero() {
		return nil
	}
	wait := time.Duration(rs.cfg.RateLimitMS)*time.Millisecond - time.Since(rs.lastDone)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errCancelled
	case <-timer.C:
		return nil
	}
}

// queryJob is one candidate query with its provenance.
type queryJob struct {
	query        string
	platform     string
	country      string
	strategyID   string
	strategyRate float64
}

// Run executes one discovery run and always returns a persisted run record
// in `completed` or `failed` status (alongside the error that failed it).
func (o *Orchestrator) Run(ctx context.Context, cfg model.RunConfig) (model.DiscoveryRun, error) {
	cfg = o.normalizeConfig(cfg)

	r, err := o.stores.Runs.Create(context.WithoutCancel(ctx), model.DiscoveryRun{
		Config:  cfg,
		Trigger: "manual",
		Status:  model.RunStatusCreated,
	})
	if err != nil {
		return model.DiscoveryRun{}, &PersistenceError{Op: "create run", Err: err}
	}

	r.Status = model.RunStatusRunning
	if err := o.stores.Runs.Update(context.WithoutCancel(ctx), r); err != nil {
		return r, &PersistenceError{Op: "mark run running", Err: err}
	}

	start := time.Now()
	rs := &runState{
		run:  &r,
		cfg:  cfg,
		used: make(map[string]bool),
	}

	var runErr error
	switch cfg.Mode {
	case model.ModeExplore:
		runErr = o.runExplore(ctx, rs)
	case model.ModeEnumerate:
		runErr = o.runEnumerate(ctx, rs)
	case model.ModeVerify:
		runErr = o.runVerify(ctx, rs)
	default:
		runErr = &ConfigurationError{Reason: "unknown mode: " + string(cfg.Mode)}
	}

	// Budget exhaustion is a normal way for a run to finish.
	if errors.Is(runErr, errBudgetReached) {
		zap.L().Info("run stopped at query budget",
			zap.String("run_id", r.ID),
			zap.Int("queries_executed", r.Stats.QueriesExecuted),
		)
		runErr = nil
	}

	now := time.Now().UTC()
	r.EndedAt = &now
	r.StrategiesUsed = sortedKeys(rs.used)

	switch {
	case errors.Is(runErr, errCancelled) || ctx.Err() != nil:
		r.Status = model.RunStatusFailed
		rs.logError(PhaseSearch, "cancelled")
		runErr = errCancelled
	case runErr != nil:
		r.Status = model.RunStatusFailed
		runErr = multierr.Append(runErr, rs.errs)
	default:
		r.Status = model.RunStatusCompleted
	}

	metrics.RunDuration.Observe(time.Since(start).Seconds())

	// The final run write is mandatory; losing it loses the whole record.
	if err := o.stores.Runs.Update(context.WithoutCancel(ctx), r); err != nil {
		return r, multierr.Append(runErr, &PersistenceError{Op: "finalize run", Err: err})
	}
	return r, runErr
}

func (o *Orchestrator) normalizeConfig(cfg model.RunConfig) model.RunConfig {
	d := o.defaults
	if cfg.MaxQueriesPerRun == 0 {
		cfg.MaxQueriesPerRun = pick(d.MaxQueriesPerRun, DefaultMaxQueriesPerRun)
	}
	if cfg.RateLimitMS == 0 {
		cfg.RateLimitMS = pick(d.RateLimitMS, DefaultRateLimitMS)
	}
	if cfg.BudgetLimit == 0 {
		cfg.BudgetLimit = pick(d.BudgetLimit, DefaultBudgetLimit)
	}
	if cfg.BatchCitySize == 0 {
		cfg.BatchCitySize = pick(d.BatchCitySize, DefaultBatchCitySize)
	}
	if cfg.MaxDishesPerVenue == 0 {
		cfg.MaxDishesPerVenue = pick(d.MaxDishesPerVenue, DefaultMaxDishesPerVenue)
	}
	return cfg
}

func pick(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// queryBudget is the effective per-run limit: max_queries_per_run and
// budget_limit are independent upper bounds, so the stricter one wins.
func (rs *runState) queryBudget() int {
	if rs.cfg.MaxQueriesPerRun < rs.cfg.BudgetLimit {
		return rs.cfg.MaxQueriesPerRun
	}
	return rs.cfg.BudgetLimit
}

func (rs *runState) logError(phase, message string) {
	rs.run.ErrorLog = append(rs.run.ErrorLog, model.RunErrorEntry{
		Phase:     phase,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// runExplore walks (platform, country) pairs, running the best stored
// strategies over batched city lists and falling back to model-generated
// queries where the library has nothing usable.
func (o *Orchestrator) runExplore(ctx context.Context, rs *runState) error {
	for _, platform := range rs.cfg.Platforms {
		for _, country := range rs.cfg.Countries {
			strategies, err := o.stores.Strategies.GetActive(ctx, platform, country, strategy.GetActiveOptions{
				MinSuccessRate: minStrategySuccessRate,
			})
			if err != nil {
				return &PersistenceError{Op: "load strategies", Err: err}
			}

			if len(strategies) == 0 {
				if err := o.exploreGenerated(ctx, rs, platform, country); err != nil {
					return err
				}
				continue
			}

			if len(strategies) > topStrategiesPerPair {
				strategies = strategies[:topStrategiesPerPair]
			}
			for _, strat := range strategies {
				metrics.UpdateStrategySuccessRate(strat.ID, platform, strat.SuccessRate)
			}

			cities := CitiesFor(country, defaultCitiesPerCountry)
			domain := PlatformDomain(platform, country)
			for _, strat := range strategies {
				for _, batch := range batchCities(cities, rs.cfg.BatchCitySize) {
					job := queryJob{
						query:        composeQuery(strat.Template, batch, domain),
						platform:     platform,
						country:      country,
						strategyID:   strat.ID,
						strategyRate: strat.SuccessRate,
					}
					if err := o.executeQuery(ctx, rs, job); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// exploreGenerated covers a (platform, country) with model-generated queries
// when no stored strategy clears the success-rate floor.
func (o *Orchestrator) exploreGenerated(ctx context.Context, rs *runState, platform, country string) error {
	cities := CitiesFor(country, defaultCitiesPerCountry)
	generated, err := o.ai.GenerateQueries(ctx, aiclient.QueryContext{
		Platform:       platform,
		PlatformDomain: PlatformDomain(platform, country),
		Country:        country,
		Cities:         cities,
	})
	if err != nil {
		rs.run.Stats.QueriesFailed++
		rs.logError(PhaseParse, err.Error())
		rs.errs = multierr.Append(rs.errs, err)
		return nil
	}

	for _, gq := range generated {
		job := queryJob{
			query:    gq.Query,
			platform: platform,
			country:  country,
		}
		if err := o.executeQuery(ctx, rs, job); err != nil {
			return err
		}
	}
	return nil
}

// runEnumerate probes each target chain on each platform in each country.
func (o *Orchestrator) runEnumerate(ctx context.Context, rs *runState) error {
	if len(rs.cfg.TargetChains) == 0 {
		return &ConfigurationError{Reason: "enumerate mode requires target_chains"}
	}

	for _, chain := range rs.cfg.TargetChains {
		for _, platform := range rs.cfg.Platforms {
			for _, country := range rs.cfg.Countries {
				job := queryJob{
					query:    chainQuery(PlatformDomain(platform, country), chain, country),
					platform: platform,
					country:  country,
				}
				if err := o.executeQuery(ctx, rs, job); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// runVerify re-probes the delivery links of previously discovered venues.
func (o *Orchestrator) runVerify(ctx context.Context, rs *runState) error {
	var venues []model.DiscoveredVenue
	var err error
	if len(rs.cfg.TargetVenues) > 0 {
		venues, err = o.stores.Venues.GetByIDs(ctx, rs.cfg.TargetVenues)
	} else {
		venues, err = o.stores.Venues.GetByStatus(ctx, model.VenueStatusDiscovered)
	}
	if err != nil {
		return &PersistenceError{Op: "load venues for verification", Err: err}
	}

	// Probes are simple GETs with no pool accounting or LLM processing
	// behind them, so plain start-to-start pacing is enough here.
	limiter := rate.NewLimiter(rate.Every(time.Duration(rs.cfg.RateLimitMS)*time.Millisecond), 1)

	for _, v := range venues {
		if ctx.Err() != nil {
			return errCancelled
		}

		anyVerified := false
		for _, dp := range v.DeliveryPlatforms {
			if err := limiter.Wait(ctx); err != nil {
				return errCancelled
			}
			alive := o.probeLink(ctx, dp.URL)
			if err := o.stores.Venues.SetPlatformVerified(ctx, v.ID, dp.URL, alive, alive); err != nil {
				rs.logError(PhasePersist, err.Error())
				rs.errs = multierr.Append(rs.errs, err)
				continue
			}
			if alive {
				anyVerified = true
			}
		}
		if anyVerified {
			rs.run.Stats.VenuesVerified++
			metrics.VenuesVerifiedTotal.Inc()
		}
	}
	return nil
}

// probeLink reports whether a delivery-platform URL still resolves to a live
// listing.
func (o *Orchestrator) probeLink(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := o.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode < 400
}

// executeQuery runs one candidate query through the full contract: budget
// and cancellation check, cache check, paced search, parse, venue
// processing, feedback and stats. Sentinel errors stop the run's query loop;
// persistence and quota failures abort the run; everything else is absorbed
// into the run's error log.
func (o *Orchestrator) executeQuery(ctx context.Context, rs *runState, job queryJob) error {
	if ctx.Err() != nil {
		return errCancelled
	}
	if rs.run.Stats.QueriesExecuted >= rs.queryBudget() {
		return errBudgetReached
	}

	if rs.cfg.EnableQueryCache && o.stores.Cache != nil {
		skip, err := o.stores.Cache.ShouldSkipQuery(ctx, job.query)
		if err != nil {
			// Cache failures degrade to a miss, never to a dead run.
			zap.L().Warn("query cache check failed", zap.String("query", job.query), zap.Error(err))
		} else if skip {
			rs.run.Stats.QueriesSkipped++
			metrics.QueriesSkippedTotal.Inc()
			if rs.cfg.Verbose {
				zap.L().Info("query skipped by cache", zap.String("query", job.query))
			}
			return nil
		}
	}

	if err := rs.pace(ctx); err != nil {
		return err
	}
	defer func() { rs.lastDone = time.Now() }()

	queryStart := time.Now()
	rs.run.Stats.QueriesExecuted++

	results, err := o.search.Search(ctx, job.query)
	if err != nil {
		if errors.Is(err, searchpool.ErrPoolExhausted) {
			rs.run.Stats.QueriesFailed++
			rs.logError(PhaseSearch, err.Error())
			metrics.RecordQuery(false, time.Since(queryStart).Seconds())
			return &QuotaExhaustedError{Err: err}
		}
		return o.absorbQueryError(ctx, rs, job, PhaseSearch, &SearchTransportError{Err: err}, queryStart)
	}

	o.recordCache(ctx, job.query, len(results))

	if len(results) == 0 {
		metrics.RecordQuery(false, time.Since(queryStart).Seconds())
		o.recordFeedback(ctx, rs, job, model.ResultNoResults)
		return nil
	}

	parsed, err := o.ai.ParseSearchResults(ctx, job.query, job.platform, results)
	if err != nil {
		return o.absorbQueryError(ctx, rs, job, PhaseParse, err, queryStart)
	}

	venuesCreated := 0
	for _, pv := range parsed.Venues {
		created, err := o.processVenue(ctx, rs, pv, job)
		if err != nil {
			if IsPersistence(err) {
				rs.logError(PhasePersist, err.Error())
				return err
			}
			return o.absorbQueryError(ctx, rs, job, PhaseParse, err, queryStart)
		}
		if created {
			venuesCreated++
		}
	}

	for _, signal := range parsed.ChainsDetected {
		if signal.ShouldEnumerate {
			rs.run.Stats.ChainsDetected++
			metrics.ChainsDetectedTotal.Inc()
			if rs.cfg.Verbose {
				zap.L().Info("chain detected", zap.String("chain", signal.Name), zap.String("query", job.query))
			}
		}
	}

	rs.run.Stats.QueriesSuccessful++
	metrics.RecordQuery(true, time.Since(queryStart).Seconds())

	if venuesCreated > 0 {
		o.recordFeedback(ctx, rs, job, model.ResultTrue)
		o.recordStrategyUsage(ctx, rs, job, model.UsageOutcome{Success: true})
	} else {
		// Results came back but nothing survived parsing and filtering: the
		// query matched the wrong things.
		o.recordFeedback(ctx, rs, job, model.ResultFalse)
		o.recordStrategyUsage(ctx, rs, job, model.UsageOutcome{WasFalsePositive: true})
	}

	return nil
}

// absorbQueryError counts and logs a per-query failure and keeps the run going.
func (o *Orchestrator) absorbQueryError(ctx context.Context, rs *runState, job queryJob, phase string, err error, start time.Time) error {
	rs.run.Stats.QueriesFailed++
	rs.logError(phase, err.Error())
	rs.errs = multierr.Append(rs.errs, err)
	metrics.RecordQuery(false, time.Since(start).Seconds())
	o.recordFeedback(ctx, rs, job, model.ResultError)
	zap.L().Warn("query failed",
		zap.String("query", job.query),
		zap.String("phase", phase),
		zap.Error(err),
	)
	return nil
}

// recordCache writes a cache entry without blocking the query loop; a lost
// write only means the query may run again after its TTL anyway.
func (o *Orchestrator) recordCache(ctx context.Context, query string, resultsCount int) {
	if o.stores.Cache == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := o.stores.Cache.RecordQuery(bg, query, resultsCount); err != nil {
			zap.L().Warn("query cache write failed", zap.String("query", query), zap.Error(err))
		}
	}()
}

// recordFeedback appends a feedback record unless the run is a dry run.
// Feedback writes are best-effort.
func (o *Orchestrator) recordFeedback(ctx context.Context, rs *runState, job queryJob, rt model.ResultType) {
	if rs.cfg.DryRun {
		return
	}
	err := o.stores.Feedback.RecordSearch(ctx, model.FeedbackRecord{
		Query:      job.query,
		Platform:   job.platform,
		Country:    job.country,
		StrategyID: job.strategyID,
		ResultType: rt,
	})
	if err != nil {
		zap.L().Warn("feedback write failed", zap.String("query", job.query), zap.Error(err))
	}
}

// recordStrategyUsage updates the originating strategy's statistics, if the
// query came from one.
func (o *Orchestrator) recordStrategyUsage(ctx context.Context, rs *runState, job queryJob, outcome model.UsageOutcome) {
	if job.strategyID == "" {
		return
	}
	rs.used[job.strategyID] = true
	if rs.cfg.DryRun {
		return
	}
	if err := o.stores.Strategies.RecordUsage(ctx, job.strategyID, outcome); err != nil {
		zap.L().Warn("strategy usage update failed", zap.String("strategy_id", job.strategyID), zap.Error(err))
	}
}

// processVenue runs one parsed venue through dedup, the brand-misuse filter,
// verified-chain promotion, confidence scoring, product extraction, inline
// dish extraction, and persistence. Returns whether a new venue row was
// created.
func (o *Orchestrator) processVenue(ctx context.Context, rs *runState, pv aiclient.ParsedVenue, job queryJob) (bool, error) {
	if pv.URL == "" {
		return false, nil
	}

	start := time.Now()
	defer func() { metrics.VenueProcessingDuration.Observe(time.Since(start).Seconds()) }()

	existing, err := o.stores.Venues.FindByDeliveryURL(ctx, job.platform, pv.URL)
	if err != nil {
		return false, &PersistenceError{Op: "venue dedup lookup", Err: err}
	}
	if existing != nil {
		return false, nil
	}

	lowerName := strings.ToLower(pv.Name)
	for _, fragment := range o.blocklist {
		if strings.Contains(lowerName, fragment) {
			zap.L().Info("venue suppressed by brand-misuse filter",
				zap.String("venue", pv.Name),
				zap.String("filter", fragment),
			)
			rs.run.Stats.VenuesRejected++
			metrics.VenuesRejectedTotal.Inc()
			return false, nil
		}
	}

	var verifiedChain *VerifiedChain
	for i := range o.chains {
		if strings.Contains(lowerName, o.chains[i].NameFragment) {
			verifiedChain = &o.chains[i]
			break
		}
	}

	strategyRate := job.strategyRate
	if job.strategyID == "" {
		strategyRate = defaultStrategyRate
	}
	assessment, err := o.ai.ScoreConfidence(ctx, pv, job.query, strategyRate)
	if err != nil {
		return false, err
	}

	var products []string
	if verifiedChain != nil {
		products = append(products, verifiedChain.Products...)
	} else {
		products = ExtractProducts(pv.PlantedMentions)
	}

	var dishes []model.DiscoveredDish
	if rs.cfg.ExtractDishesInline && o.extractor != nil {
		result, err := o.extractor.ExtractDishes(ctx, dish.Request{
			URL:       pv.URL,
			Platform:  job.platform,
			Country:   job.country,
			VenueName: pv.Name,
		})
		if err != nil {
			extractErr := &ExtractionError{URL: pv.URL, Err: err}
			rs.run.Stats.DishExtractionFailures++
			metrics.DishExtractionFailuresTotal.Inc()
			rs.logError(PhaseExtract, extractErr.Error())
			zap.L().Warn("dish extraction failed", zap.String("venue", pv.Name), zap.Error(err))
		} else {
			dishes = result.Dishes
			if len(dishes) > rs.cfg.MaxDishesPerVenue {
				dishes = dishes[:rs.cfg.MaxDishesPerVenue]
			}
			if verifiedChain != nil {
				for i := range dishes {
					dishes[i].Confidence += chainDishBoost
					if dishes[i].Confidence > chainDishBoostCap {
						dishes[i].Confidence = chainDishBoostCap
					}
				}
			}
			rs.run.Stats.DishesExtracted += len(dishes)
			metrics.DishesExtractedTotal.Add(float64(len(dishes)))
		}
	}

	// A venue with no recognizable product mention can still reveal its
	// products through the dishes on its page.
	if len(products) == 0 {
		products = productsFromDishes(dishes)
	}

	confidence := assessment.OverallScore
	isChain := false
	var chainScore float64
	if verifiedChain != nil {
		confidence = chainVenueConfidence
		isChain = true
		chainScore = chainConfidence
	}

	created := model.DiscoveredVenue{
		DiscoveryRunID:  rs.run.ID,
		Name:            pv.Name,
		IsChain:         isChain,
		ChainConfidence: chainScore,
		Address: model.Address{
			City:    pv.City,
			Country: firstNonEmpty(pv.Country, job.country),
		},
		DeliveryPlatforms: []model.DeliveryPlatform{
			{Platform: job.platform, URL: pv.URL, Active: true},
		},
		PlantedProducts:        products,
		Dishes:                 dishes,
		ConfidenceScore:        confidence,
		ConfidenceFactors:      assessment.Factors,
		DiscoveredByStrategyID: job.strategyID,
		DiscoveredByQuery:      job.query,
		Status:                 model.VenueStatusDiscovered,
	}

	if _, err := o.stores.Venues.CreateVenue(ctx, created); err != nil {
		return false, &PersistenceError{Op: "create venue", Err: err}
	}

	rs.run.Stats.VenuesDiscovered++
	metrics.RecordVenue(string(model.VenueStatusDiscovered))
	if rs.cfg.Verbose {
		zap.L().Info("venue discovered",
			zap.String("name", pv.Name),
			zap.String("url", pv.URL),
			zap.Float64("confidence", confidence),
			zap.Bool("is_chain", isChain),
		)
	}
	return true, nil
}

// productsFromDishes derives the product set from extracted dishes.
func productsFromDishes(dishes []model.DiscoveredDish) []string {
	seen := make(map[string]bool)
	var products []string
	for _, d := range dishes {
		if d.PlantedProduct != "" && !seen[d.PlantedProduct] {
			seen[d.PlantedProduct] = true
			products = append(products, d.PlantedProduct)
		}
	}
	return products
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
