package googlesearch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
	"github.com/plantedfoods/discovery-pipeline/internal/searchpool"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k1", r.URL.Query().Get("key"))
		assert.Equal(t, "e1", r.URL.Query().Get("cx"))
		assert.Equal(t, "planted chicken berlin", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("num"))
		fmt.Fprint(w, `{"items":[{"title":"Wolt - Planted","link":"https://wolt.com/x","snippet":"order now"}]}`)
	}))
	defer srv.Close()

	pool := searchpool.New([]model.SearchCredential{{ID: "1", APIKey: "k1", EngineID: "e1", DailyQuota: 100}})
	c := NewClient(pool, WithBaseURL(srv.URL))

	results, err := c.Search(t.Context(), "planted chicken berlin")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://wolt.com/x", results[0].URL)

	stats := pool.GetStats("live", 0)
	assert.Equal(t, 1, stats.TotalUsedToday)
}

func TestSearch_429RotatesCredential(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("key") == "k1" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer srv.Close()

	pool := searchpool.New([]model.SearchCredential{
		{ID: "1", APIKey: "k1", EngineID: "e1", DailyQuota: 100},
		{ID: "2", APIKey: "k2", EngineID: "e2", DailyQuota: 100},
	})
	c := NewClient(pool, WithBaseURL(srv.URL))

	results, err := c.Search(t.Context(), "query")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 2, calls)

	detail := pool.GetDetailedUsage()
	for _, d := range detail {
		if d.ID == "1" {
			assert.True(t, d.Exhausted)
		}
	}
}

func TestSearch_PoolExhausted(t *testing.T) {
	pool := searchpool.New(nil)
	c := NewClient(pool)

	_, err := c.Search(t.Context(), "query")
	assert.ErrorIs(t, err, searchpool.ErrPoolExhausted)
}

func TestSearch_UnexpectedStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	pool := searchpool.New([]model.SearchCredential{{ID: "1", APIKey: "k1", EngineID: "e1", DailyQuota: 100}})
	c := NewClient(pool, WithBaseURL(srv.URL))

	_, err := c.Search(t.Context(), "query")
	assert.Error(t, err)
}
