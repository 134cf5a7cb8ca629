package serpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "google", r.URL.Query().Get("engine"))
		fmt.Fprint(w, `{"organic_results":[{"title":"Lieferando - Planted","link":"https://lieferando.de/x","snippet":"order"}]}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	results, err := c.Search(t.Context(), "planted schnitzel munich")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://lieferando.de/x", results[0].URL)
}

func TestSearch_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Search(t.Context(), "query")
	assert.Error(t, err)
}

func TestSearch_TruncatesToMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := ""
		for i := 0; i < 15; i++ {
			if i > 0 {
				results += ","
			}
			results += fmt.Sprintf(`{"title":"r%d","link":"https://x.com/%d","snippet":"s"}`, i, i)
		}
		fmt.Fprintf(w, `{"organic_results":[%s]}`, results)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	results, err := c.Search(t.Context(), "query")
	require.NoError(t, err)
	assert.Len(t, results, 10)
}
