package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchCities(t *testing.T) {
	t.Parallel()

	cities := []string{"Berlin", "München", "Hamburg", "Köln", "Frankfurt"}

	batches := batchCities(cities, 3)
	assert.Equal(t, [][]string{
		{"Berlin", "München", "Hamburg"},
		{"Köln", "Frankfurt"},
	}, batches)

	assert.Len(t, batchCities(cities, 1), 5)
	assert.Len(t, batchCities(cities, 10), 1)
	assert.Len(t, batchCities(cities, 0), 5) // degenerate size clamps to 1
	assert.Empty(t, batchCities(nil, 3))
}

func TestCityExpression(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Berlin", cityExpression([]string{"Berlin"}))
	assert.Equal(t, "(Berlin OR München OR Hamburg)", cityExpression([]string{"Berlin", "München", "Hamburg"}))
}

func TestComposeQuery(t *testing.T) {
	t.Parallel()

	query := composeQuery("site:{platform} planted.chicken {city}", []string{"Berlin", "München", "Hamburg"}, "lieferando.de")
	assert.Equal(t, "site:lieferando.de planted.chicken (Berlin OR München OR Hamburg)", query)

	single := composeQuery("site:{platform} planted.chicken {city}", []string{"Köln"}, "lieferando.de")
	assert.Equal(t, "site:lieferando.de planted.chicken Köln", single)
}

func TestChainQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `site:wolt.com "Birdie Birdie" DE`, chainQuery("wolt.com", "Birdie Birdie", "DE"))
}

func TestPlatformDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lieferando.de", PlatformDomain("lieferando", "DE"))
	assert.Equal(t, "lieferando.at", PlatformDomain("lieferando", "AT"))
	assert.Equal(t, "lieferando.de", PlatformDomain("lieferando", "CH")) // falls back to default
	assert.Equal(t, "wolt.com", PlatformDomain("wolt", "DE"))
	assert.Equal(t, "just-eat.ch", PlatformDomain("justeat", "CH"))
	assert.Equal(t, "unknownapp", PlatformDomain("UnknownApp", "DE"))
}

func TestCitiesFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"Berlin", "München", "Hamburg", "Köln", "Frankfurt"}, CitiesFor("DE", 5))
	assert.Len(t, CitiesFor("AT", 10), 5) // capped at what the table holds
	assert.Empty(t, CitiesFor("XX", 5))
}
