// Package googlesearch implements search.Provider against the Google Custom
// Search JSON API, rotating across a pool of quota-limited credentials.
package googlesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/metrics"
	"github.com/plantedfoods/discovery-pipeline/internal/resilience"
	"github.com/plantedfoods/discovery-pipeline/internal/searchpool"
	"github.com/plantedfoods/discovery-pipeline/pkg/search"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

const maxResults = 10

// Client implements search.Provider against the Google Custom Search API.
// A circuit breaker sits in front of the HTTP path so a dead API endpoint
// fails runs fast instead of burning the whole retry budget per query.
type Client struct {
	pool    *searchpool.Pool
	baseURL string
	http    *http.Client
	breaker *resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Google Custom Search client rotating across pool.
func NewClient(pool *searchpool.Pool, opts ...Option) *Client {
	c := &Client{
		pool:    pool,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			OnOpen: func() { metrics.RecordCircuitBreakerTrip("googlesearch") },
		}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search implements search.Provider. It obtains a credential from the pool,
// issues the call, and on 429 marks that credential exhausted and retries
// with the next available one until the pool itself is exhausted.
func (c *Client) Search(ctx context.Context, query string) ([]search.Result, error) {
	for {
		cred, ok := c.pool.GetAvailableCredential()
		if !ok {
			return nil, searchpool.ErrPoolExhausted
		}

		results, status, err := c.doRequest(ctx, cred.APIKey, cred.EngineID, query)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusOK:
			c.pool.RecordUsage(cred.ID)
			return results, nil
		case status == http.StatusTooManyRequests:
			c.pool.MarkExhausted(cred.ID)
			continue
		default:
			return nil, eris.Errorf("googlesearch: unexpected status %d", status)
		}
	}
}

// doRequest issues a single HTTP call, retrying once (per
// internal/resilience's transient-error policy) on transport failures that
// are neither a clean 200 nor a 429 — those two outcomes are handled by the
// pool-rotation loop in Search, not by this retry.
func (c *Client) doRequest(ctx context.Context, apiKey, engineID, query string) ([]search.Result, int, error) {
	type attemptResult struct {
		results []search.Result
		status  int
	}

	res, err := resilience.BreakerVal(ctx, c.breaker, func(ctx context.Context) (attemptResult, error) {
		return resilience.DoVal(ctx, resilience.Transport(), func(ctx context.Context) (attemptResult, error) {
			status, body, err := c.rawRequest(ctx, apiKey, engineID, query)
			if err != nil {
				return attemptResult{}, resilience.MarkTransient(err, 0)
			}
			if status != http.StatusOK && status != http.StatusTooManyRequests {
				return attemptResult{status: status}, resilience.MarkTransient(
					eris.Errorf("googlesearch: status %d", status), status)
			}
			if status == http.StatusTooManyRequests {
				return attemptResult{status: status}, nil
			}

			var parsed searchResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				return attemptResult{}, eris.Wrap(err, "googlesearch: unmarshal response")
			}

			results := make([]search.Result, 0, len(parsed.Items))
			for _, item := range parsed.Items {
				if len(results) >= maxResults {
					break
				}
				results = append(results, search.Result{
					Title:   item.Title,
					URL:     item.Link,
					Snippet: item.Snippet,
				})
			}
			return attemptResult{results: results, status: status}, nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return res.results, res.status, nil
}

func (c *Client) rawRequest(ctx context.Context, apiKey, engineID, query string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return 0, nil, eris.Wrap(err, "googlesearch: create request")
	}

	q := req.URL.Query()
	q.Set("key", apiKey)
	q.Set("cx", engineID)
	q.Set("q", query)
	q.Set("num", fmt.Sprintf("%d", maxResults))
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "googlesearch: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, eris.Wrap(err, "googlesearch: read response")
	}

	return resp.StatusCode, body, nil
}
