// Package aiclient wraps the pipeline's LLM operations behind a
// provider-agnostic client. All operations take structured inputs, prompt the
// active provider for JSON, and return parsed structured outputs. Responses
// that fail to parse yield a conservative default, never an error: a
// malformed LLM answer must not kill a discovery run.
package aiclient

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plantedfoods/discovery-pipeline/internal/cost"
	"github.com/plantedfoods/discovery-pipeline/pkg/search"
)

// defaultTimeout bounds each LLM call.
const defaultTimeout = 30 * time.Second

// Client runs the pipeline's LLM operations against a preferred provider,
// permanently switching to the fallback after the preferred one errors.
type Client struct {
	primary  Provider
	fallback Provider
	calc     *cost.Calculator
	timeout  time.Duration

	mu         sync.Mutex
	onFallback bool
}

// Option configures a Client.
type Option func(*Client)

// WithCostCalculator enables per-call cost logging.
func WithCostCalculator(calc *cost.Calculator) Option {
	return func(c *Client) { c.calc = calc }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a Client over a preferred provider and an optional fallback.
func New(primary Provider, fallback Provider, opts ...Option) (*Client, error) {
	if primary == nil {
		return nil, eris.New("aiclient: no provider configured")
	}
	c := &Client{
		primary:  primary,
		fallback: fallback,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ActiveProvider returns the name of the provider that will serve the next call.
func (c *Client) ActiveProvider() string {
	return c.provider().Name()
}

func (c *Client) provider() Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onFallback && c.fallback != nil {
		return c.fallback
	}
	return c.primary
}

// complete sends a prompt through the active provider. If the preferred
// provider errors and a fallback exists, the client switches to the fallback
// for this and all subsequent calls in the process.
func (c *Client) complete(ctx context.Context, operation, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p := c.provider()
	text, usage, err := p.Complete(ctx, systemPrompt, prompt)
	if err == nil {
		c.logUsage(p, operation, usage)
		return text, nil
	}

	c.mu.Lock()
	alreadyFallback := c.onFallback
	if c.fallback != nil {
		c.onFallback = true
	}
	c.mu.Unlock()

	if alreadyFallback || c.fallback == nil {
		return "", eris.Wrapf(err, "aiclient: %s via %s", operation, p.Name())
	}

	zap.L().Warn("provider failed, switching to fallback",
		zap.String("operation", operation),
		zap.String("from", p.Name()),
		zap.String("to", c.fallback.Name()),
		zap.Error(err),
	)

	text, usage, err = c.fallback.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", eris.Wrapf(err, "aiclient: %s via %s", operation, c.fallback.Name())
	}
	c.logUsage(c.fallback, operation, usage)
	return text, nil
}

func (c *Client) logUsage(p Provider, operation string, usage Usage) {
	if c.calc == nil {
		return
	}
	var estimated float64
	switch p.Name() {
	case "anthropic":
		estimated = c.calc.Anthropic(p.Model(), usage.InputTokens, usage.OutputTokens, 0, 0)
	case "gemini":
		estimated = c.calc.Gemini(p.Model(), usage.InputTokens, usage.OutputTokens)
	}
	zap.L().Debug("llm usage",
		zap.String("provider", p.Name()),
		zap.String("model", p.Model()),
		zap.String("operation", operation),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("estimated_cost_usd", estimated),
	)
}

// decode parses an LLM response as T after stripping fences and wrapping.
func decode[T any](text string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(cleanJSON(text)), &v); err != nil {
		return v, eris.Wrap(err, "aiclient: parse response")
	}
	return v, nil
}

// GenerateQueries asks the model to invent search queries for a
// (platform, country) with no usable stored strategy. Unparseable responses
// yield an empty list.
func (c *Client) GenerateQueries(ctx context.Context, qctx QueryContext) ([]GeneratedQuery, error) {
	prompt := render(generateQueriesPrompt, map[string]string{
		"platform":        qctx.Platform,
		"platform_domain": qctx.PlatformDomain,
		"country":         qctx.Country,
		"cities":          strings.Join(qctx.Cities, ", "),
		"known_good":      strings.Join(qctx.KnownGoodQueries, "; "),
	})

	text, err := c.complete(ctx, "generate_queries", prompt)
	if err != nil {
		return nil, err
	}

	queries, perr := decode[[]GeneratedQuery](text)
	if perr != nil {
		zap.L().Warn("unparseable generate_queries response", zap.Error(perr))
		return nil, nil
	}
	return queries, nil
}

// ParseSearchResults extracts venue candidates and chain signals from raw
// search results. Unparseable responses yield an empty result set.
func (c *Client) ParseSearchResults(ctx context.Context, query, platform string, results []search.Result) (ParsedSearchResults, error) {
	var sb strings.Builder
	for i, r := range results {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(r.Title)
		sb.WriteString("\n   ")
		sb.WriteString(r.URL)
		sb.WriteString("\n   ")
		sb.WriteString(r.Snippet)
		sb.WriteString("\n")
	}

	prompt := render(parseSearchResultsPrompt, map[string]string{
		"query":    query,
		"platform": platform,
		"results":  sb.String(),
	})

	text, err := c.complete(ctx, "parse_search_results", prompt)
	if err != nil {
		return ParsedSearchResults{}, err
	}

	parsed, perr := decode[ParsedSearchResults](text)
	if perr != nil {
		zap.L().Warn("unparseable parse_search_results response", zap.Error(perr))
		return ParsedSearchResults{}, nil
	}
	return parsed, nil
}

// AnalyzeVenue reads a venue's own page and extracts planted dishes. Page
// content is capped before it reaches the model. Unparseable responses yield
// an empty analysis.
func (c *Client) AnalyzeVenue(ctx context.Context, name, url, platform, pageContent string) (VenueAnalysis, error) {
	prompt := render(analyzeVenuePrompt, map[string]string{
		"venue_name": name,
		"url":        url,
		"platform":   platform,
		"content":    truncate(pageContent, maxPageContentChars),
	})

	text, err := c.complete(ctx, "analyze_venue", prompt)
	if err != nil {
		return VenueAnalysis{}, err
	}

	analysis, perr := decode[VenueAnalysis](text)
	if perr != nil {
		zap.L().Warn("unparseable analyze_venue response", zap.Error(perr))
		return VenueAnalysis{}, nil
	}
	return analysis, nil
}

// DetectChain judges whether a venue name denotes a multi-location chain.
// Unparseable responses yield a negative detection.
func (c *Client) DetectChain(ctx context.Context, name, platform string, results []search.Result) (ChainDetection, error) {
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString("- ")
		sb.WriteString(r.Title)
		sb.WriteString(" (")
		sb.WriteString(r.URL)
		sb.WriteString(")\n")
	}

	prompt := render(detectChainPrompt, map[string]string{
		"name":     name,
		"platform": platform,
		"results":  sb.String(),
	})

	text, err := c.complete(ctx, "detect_chain", prompt)
	if err != nil {
		return ChainDetection{}, err
	}

	detection, perr := decode[ChainDetection](text)
	if perr != nil {
		zap.L().Warn("unparseable detect_chain response", zap.Error(perr))
		return ChainDetection{}, nil
	}
	return detection, nil
}

// LearnFromFeedback analyzes recent search feedback against the strategy
// library and proposes updates. Inputs are serialized as JSON so the model
// sees exactly what the stores hold. Unparseable responses yield an empty
// result.
func (c *Client) LearnFromFeedback(ctx context.Context, feedback, strategies any) (LearningResult, error) {
	feedbackJSON, err := json.Marshal(feedback)
	if err != nil {
		return LearningResult{}, eris.Wrap(err, "aiclient: marshal feedback")
	}
	strategiesJSON, err := json.Marshal(strategies)
	if err != nil {
		return LearningResult{}, eris.Wrap(err, "aiclient: marshal strategies")
	}

	prompt := render(learnFromFeedbackPrompt, map[string]string{
		"feedback":   string(feedbackJSON),
		"strategies": string(strategiesJSON),
	})

	text, err := c.complete(ctx, "learn_from_feedback", prompt)
	if err != nil {
		return LearningResult{}, err
	}

	result, perr := decode[LearningResult](text)
	if perr != nil {
		zap.L().Warn("unparseable learn_from_feedback response", zap.Error(perr))
		return LearningResult{}, nil
	}
	return result, nil
}

// ScoreConfidence asks the model to score a parsed venue. Unparseable
// responses yield the conservative 50-point "review" assessment.
func (c *Client) ScoreConfidence(ctx context.Context, venue ParsedVenue, query string, strategyRate float64) (ConfidenceAssessment, error) {
	venueJSON, err := json.Marshal(venue)
	if err != nil {
		return ConfidenceAssessment{}, eris.Wrap(err, "aiclient: marshal venue")
	}

	prompt := render(scoreConfidencePrompt, map[string]string{
		"venue":         string(venueJSON),
		"query":         query,
		"strategy_rate": strconv.FormatFloat(strategyRate, 'f', -1, 64),
	})

	text, err := c.complete(ctx, "score_confidence", prompt)
	if err != nil {
		return ConfidenceAssessment{}, err
	}

	assessment, perr := decode[ConfidenceAssessment](text)
	if perr != nil {
		zap.L().Warn("unparseable score_confidence response", zap.Error(perr))
		return defaultConfidence(), nil
	}
	if assessment.Recommendation == "" {
		assessment.Recommendation = RecommendReview
	}
	return assessment, nil
}

func defaultConfidence() ConfidenceAssessment {
	return ConfidenceAssessment{
		OverallScore:   50,
		Recommendation: RecommendReview,
	}
}
