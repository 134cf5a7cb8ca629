// Package dish extracts dish menus from venue pages: fetch the page, hand
// its text to the LLM with the venue-analysis prompt, map the result onto
// DiscoveredDish records.
package dish

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
	"github.com/plantedfoods/discovery-pipeline/internal/resilience"
	"github.com/plantedfoods/discovery-pipeline/pkg/aiclient"
)

const (
	fetchTimeout = 15 * time.Second
	// retryDelay is the fixed pause between the two extraction attempts.
	retryDelay = 2 * time.Second
	// maxBodyBytes bounds the page read; the analyzer caps content again
	// before it reaches the model.
	maxBodyBytes = 1 << 20
)

// Analyzer is the LLM operation the extractor depends on.
type Analyzer interface {
	AnalyzeVenue(ctx context.Context, name, url, platform, pageContent string) (aiclient.VenueAnalysis, error)
}

// Request identifies the venue page to extract from.
type Request struct {
	URL       string
	Platform  string
	Country   string
	VenueName string
}

// Result carries the extracted dishes plus the analysis verdict.
type Result struct {
	Dishes        []model.DiscoveredDish
	ServesPlanted bool
	Notes         string
}

// Extractor fetches venue pages and extracts planted dishes from them.
type Extractor struct {
	ai      Analyzer
	http    *http.Client
	maxDish int
	delay   time.Duration
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the page-fetch client.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Extractor) { e.http = hc }
}

// WithRetryDelay overrides the pause between extraction attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Extractor) { e.delay = d }
}

// New creates an Extractor capped at maxDishesPerVenue dishes per page.
// Page fetches ride on retryablehttp so flaky delivery-platform CDNs get the
// standard transient-retry treatment below the extraction-level retry.
func New(ai Analyzer, maxDishesPerVenue int, opts ...Option) *Extractor {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = fetchTimeout
	rc.Logger = nil

	e := &Extractor{
		ai:      ai,
		http:    rc.StandardClient(),
		maxDish: maxDishesPerVenue,
		delay:   retryDelay,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExtractDishes fetches the venue page and asks the model for its planted
// dishes. The whole fetch+analyze attempt is retried once after a fixed
// delay; two failures return an error the caller counts and absorbs.
func (e *Extractor) ExtractDishes(ctx context.Context, req Request) (Result, error) {
	policy := resilience.FixedDelay(2, e.delay)
	policy.Retryable = func(error) bool { return true }
	policy.OnRetry = resilience.RetryLogger("dish", "extract")

	res, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (Result, error) {
		return e.attempt(ctx, req)
	})
	if err != nil {
		return Result{}, eris.Wrapf(err, "dish: extract %s", req.URL)
	}

	if len(res.Dishes) > e.maxDish {
		zap.L().Debug("truncating dish list",
			zap.String("venue", req.VenueName),
			zap.Int("extracted", len(res.Dishes)),
			zap.Int("cap", e.maxDish),
		)
		res.Dishes = res.Dishes[:e.maxDish]
	}
	return res, nil
}

func (e *Extractor) attempt(ctx context.Context, req Request) (Result, error) {
	content, err := e.fetchPage(ctx, req.URL)
	if err != nil {
		return Result{}, err
	}

	analysis, err := e.ai.AnalyzeVenue(ctx, req.VenueName, req.URL, req.Platform, content)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Dishes:        analysis.Dishes,
		ServesPlanted: analysis.ServesPlanted,
		Notes:         analysis.Notes,
	}, nil
}

func (e *Extractor) fetchPage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "dish: create request")
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "dish: fetch %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("dish: fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "dish: read body")
	}
	return string(body), nil
}
