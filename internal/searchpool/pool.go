// Package searchpool manages a rotating set of search-API credentials, each
// with its own per-day free quota. State is process-local and never
// persisted, matching the search engine pool described by the discovery
// pipeline's external interface.
package searchpool

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// DefaultDailyQuota is the free-tier daily quota assumed for a credential
// that does not specify one explicitly.
const DefaultDailyQuota = 100

// ErrPoolExhausted is returned when no credential has remaining quota.
var ErrPoolExhausted = eris.New("searchpool: pool exhausted")

// Pool rotates among a set of SearchCredentials, tracking per-credential
// daily usage and exhaustion. All operations are safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	credentials []model.SearchCredential
	now         func() time.Time
}

// New creates a Pool from the given credentials. Credentials with a zero
// DailyQuota are assigned DefaultDailyQuota.
func New(credentials []model.SearchCredential) *Pool {
	creds := make([]model.SearchCredential, len(credentials))
	copy(creds, credentials)
	for i := range creds {
		if creds[i].DailyQuota == 0 {
			creds[i].DailyQuota = DefaultDailyQuota
		}
	}
	return &Pool{credentials: creds, now: time.Now}
}

// HasCredentials reports whether the pool holds any credentials at all
// (independent of current exhaustion).
func (p *Pool) HasCredentials() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.credentials) > 0
}

// GetAvailableCredential returns the non-exhausted credential with the most
// remaining quota, tie-broken by stable id ordering. Returns false if none
// are available.
func (p *Pool) GetAvailableCredential() (model.SearchCredential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rolloverLocked()

	best := -1
	for i := range p.credentials {
		c := &p.credentials[i]
		if c.Exhausted {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		remaining := c.DailyQuota - c.QueriesUsedToday
		bestRemaining := p.credentials[best].DailyQuota - p.credentials[best].QueriesUsedToday
		switch {
		case remaining > bestRemaining:
			best = i
		case remaining == bestRemaining && c.ID < p.credentials[best].ID:
			best = i
		}
	}

	if best == -1 {
		return model.SearchCredential{}, false
	}
	return p.credentials[best], true
}

// RecordUsage atomically increments the credential's usage count, marking it
// exhausted once it reaches its daily quota.
func (p *Pool) RecordUsage(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rolloverLocked()

	for i := range p.credentials {
		if p.credentials[i].ID != id {
			continue
		}
		p.credentials[i].QueriesUsedToday++
		if p.credentials[i].QueriesUsedToday >= p.credentials[i].DailyQuota {
			p.credentials[i].Exhausted = true
		}
		return
	}
}

// MarkExhausted immediately marks a credential exhausted, e.g. on a 429
// response, regardless of its remaining quota.
func (p *Pool) MarkExhausted(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rolloverLocked()

	for i := range p.credentials {
		if p.credentials[i].ID == id {
			p.credentials[i].Exhausted = true
			return
		}
	}
}

// GetStats summarizes pool state for the current day.
func (p *Pool) GetStats(mode string, estimatedCostUSD float64) model.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rolloverLocked()

	stats := model.PoolStats{Mode: mode, EstimatedCostUSD: estimatedCostUSD}
	for _, c := range p.credentials {
		stats.TotalUsedToday += c.QueriesUsedToday
		stats.TotalAvailableToday += c.DailyQuota
		if !c.Exhausted {
			stats.ActiveCredentials++
			stats.QueriesRemaining += c.DailyQuota - c.QueriesUsedToday
		}
	}
	return stats
}

// GetDetailedUsage returns a per-credential usage breakdown, ordered by id.
func (p *Pool) GetDetailedUsage() []model.CredentialUsage {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rolloverLocked()

	usage := make([]model.CredentialUsage, len(p.credentials))
	for i, c := range p.credentials {
		usage[i] = model.CredentialUsage{
			ID:               c.ID,
			Name:             c.Name,
			DailyQuota:       c.DailyQuota,
			QueriesUsedToday: c.QueriesUsedToday,
			Exhausted:        c.Exhausted,
		}
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].ID < usage[j].ID })
	return usage
}

// credential looks up a credential's api key and engine id by id, used by
// the search client after GetAvailableCredential selects one.
func (p *Pool) credential(id string) (apiKey, engineID string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.credentials {
		if c.ID == id {
			return c.APIKey, c.EngineID, true
		}
	}
	return "", "", false
}

// rolloverLocked resets each credential's daily usage at the first access
// after UTC midnight. Callers must hold p.mu.
func (p *Pool) rolloverLocked() {
	today := p.now().UTC().Format("2006-01-02")
	for i := range p.credentials {
		if p.credentials[i].LastResetDate != today {
			p.credentials[i].QueriesUsedToday = 0
			p.credentials[i].Exhausted = false
			p.credentials[i].LastResetDate = today
		}
	}
}
