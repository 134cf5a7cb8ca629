package dish

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
	"github.com/plantedfoods/discovery-pipeline/pkg/aiclient"
)

type fakeAnalyzer struct {
	analyses []aiclient.VenueAnalysis
	errs     []error
	calls    int
	content  []string
}

func (f *fakeAnalyzer) AnalyzeVenue(_ context.Context, _, _, _ string, pageContent string) (aiclient.VenueAnalysis, error) {
	i := f.calls
	f.calls++
	f.content = append(f.content, pageContent)
	if i < len(f.errs) && f.errs[i] != nil {
		return aiclient.VenueAnalysis{}, f.errs[i]
	}
	if i < len(f.analyses) {
		return f.analyses[i], nil
	}
	return aiclient.VenueAnalysis{}, nil
}

func pageServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dishes(n int) []model.DiscoveredDish {
	out := make([]model.DiscoveredDish, n)
	for i := range out {
		out[i] = model.DiscoveredDish{Name: "Planted Chicken Bowl", PlantedProduct: "planted.chicken", Confidence: 80}
	}
	return out
}

func TestExtractDishes_Success(t *testing.T) {
	srv := pageServer(t, "<html>Planted Chicken Bowl 14.50</html>")
	ai := &fakeAnalyzer{analyses: []aiclient.VenueAnalysis{
		{ServesPlanted: true, Dishes: dishes(2), Notes: "clear menu"},
	}}

	e := New(ai, 50)
	res, err := e.ExtractDishes(context.Background(), Request{URL: srv.URL, Platform: "wolt", VenueName: "Tasty"})
	require.NoError(t, err)
	assert.True(t, res.ServesPlanted)
	assert.Len(t, res.Dishes, 2)
	require.Len(t, ai.content, 1)
	assert.Contains(t, ai.content[0], "Planted Chicken Bowl")
}

func TestExtractDishes_RetriesOnceThenSucceeds(t *testing.T) {
	srv := pageServer(t, "menu")
	ai := &fakeAnalyzer{
		errs:     []error{eris.New("model hiccup"), nil},
		analyses: []aiclient.VenueAnalysis{{}, {ServesPlanted: true, Dishes: dishes(1)}},
	}

	e := New(ai, 50, WithRetryDelay(time.Millisecond))
	res, err := e.ExtractDishes(context.Background(), Request{URL: srv.URL, Platform: "wolt", VenueName: "Tasty"})
	require.NoError(t, err)
	assert.Equal(t, 2, ai.calls)
	assert.Len(t, res.Dishes, 1)
}

func TestExtractDishes_TwoFailuresReturnError(t *testing.T) {
	srv := pageServer(t, "menu")
	ai := &fakeAnalyzer{errs: []error{eris.New("boom"), eris.New("boom again")}}

	e := New(ai, 50, WithRetryDelay(time.Millisecond))
	_, err := e.ExtractDishes(context.Background(), Request{URL: srv.URL, Platform: "wolt", VenueName: "Tasty"})
	require.Error(t, err)
	assert.Equal(t, 2, ai.calls)
}

func TestExtractDishes_CapsDishCount(t *testing.T) {
	srv := pageServer(t, "menu")
	ai := &fakeAnalyzer{analyses: []aiclient.VenueAnalysis{
		{ServesPlanted: true, Dishes: dishes(7)},
	}}

	e := New(ai, 3)
	res, err := e.ExtractDishes(context.Background(), Request{URL: srv.URL, Platform: "wolt", VenueName: "Tasty"})
	require.NoError(t, err)
	assert.Len(t, res.Dishes, 3)
}

func TestExtractDishes_FetchErrorRetriesAndFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	ai := &fakeAnalyzer{}
	e := New(ai, 50, WithRetryDelay(time.Millisecond))
	_, err := e.ExtractDishes(context.Background(), Request{URL: srv.URL, Platform: "wolt", VenueName: "Tasty"})
	require.Error(t, err)
	assert.Equal(t, 0, ai.calls)
}
