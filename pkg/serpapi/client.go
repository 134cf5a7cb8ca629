// Package serpapi implements search.Provider against the SerpAPI Google
// Search engine, used as the paid alternative to the free-tier Google
// Custom Search JSON API when search.provider is "serpapi".
package serpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/resilience"
	"github.com/plantedfoods/discovery-pipeline/pkg/search"
)

const defaultBaseURL = "https://serpapi.com/search.json"

const maxResults = 10

// Client implements search.Provider against SerpAPI.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
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

// NewClient creates a SerpAPI client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search implements search.Provider. SerpAPI holds a single credential, so
// there is no pool-rotation retry path; every non-200 status, 429 included,
// is marked transient, retried once under the Transport policy, and then
// reported to the caller.
func (c *Client) Search(ctx context.Context, query string) ([]search.Result, error) {
	return resilience.DoVal(ctx, resilience.Transport(), func(ctx context.Context) ([]search.Result, error) {
		status, body, err := c.rawRequest(ctx, query)
		if err != nil {
			return nil, resilience.MarkTransient(err, 0)
		}
		if status != http.StatusOK {
			return nil, resilience.MarkTransient(eris.Errorf("serpapi: status %d", status), status)
		}

		var parsed searchResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, eris.Wrap(err, "serpapi: unmarshal response")
		}

		results := make([]search.Result, 0, len(parsed.OrganicResults))
		for _, item := range parsed.OrganicResults {
			if len(results) >= maxResults {
				break
			}
			results = append(results, search.Result{
				Title:   item.Title,
				URL:     item.Link,
				Snippet: item.Snippet,
			})
		}
		return results, nil
	})
}

func (c *Client) rawRequest(ctx context.Context, query string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return 0, nil, eris.Wrap(err, "serpapi: create request")
	}

	q := req.URL.Query()
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, eris.Wrap(err, "serpapi: read response")
	}

	return resp.StatusCode, body, nil
}
