// Package search declares the provider-agnostic contract consumed by the
// discovery orchestrator: issue a web search, get back a handful of results.
package search

import "context"

// Result is a single organic search result.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Provider executes a web search query and returns up to ten results.
// Implementations (pkg/googlesearch, pkg/serpapi) own their own credential
// and quota handling; Search itself never returns more than ten results.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}
