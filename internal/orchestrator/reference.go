package orchestrator

import (
	"strings"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// VerifiedChain associates a lowercase name fragment with the product SKUs
// the chain is known to serve. A fragment match promotes the venue to a
// verified chain with a fixed product list.
type VerifiedChain struct {
	NameFragment string
	Products     []string
}

// defaultVerifiedChains lists restaurant groups known a priori to serve
// specific planted SKUs. Overridable via WithVerifiedChains.
var defaultVerifiedChains = []VerifiedChain{
	{NameFragment: "birdie birdie", Products: []string{"planted.chicken_burger", "planted.chicken_tenders"}},
	{NameFragment: "dean&david", Products: []string{"planted.chicken"}},
	{NameFragment: "dean & david", Products: []string{"planted.chicken"}},
	{NameFragment: "hiltl", Products: []string{"planted.chicken", "planted.kebab"}},
	{NameFragment: "tibits", Products: []string{"planted.chicken"}},
	{NameFragment: "beets&roots", Products: []string{"planted.chicken"}},
}

// defaultBrandMisuseBlocklist holds lowercase name fragments of venues that
// use the brand term loosely without serving the actual product. Matching
// venues are suppressed entirely. Overridable via WithBrandMisuseBlocklist.
var defaultBrandMisuseBlocklist = []string{
	"goldies",
	"plant based island",
	"planted based kitchen",
}

// platformDomains maps a delivery platform to its site-operator domain per
// country. The empty country key is the platform default.
var platformDomains = map[string]map[string]string{
	"lieferando": {
		"":   "lieferando.de",
		"DE": "lieferando.de",
		"AT": "lieferando.at",
	},
	"wolt": {
		"": "wolt.com",
	},
	"ubereats": {
		"": "ubereats.com",
	},
	"deliveroo": {
		"":   "deliveroo.com",
		"FR": "deliveroo.fr",
		"UK": "deliveroo.co.uk",
	},
	"justeat": {
		"":   "just-eat.com",
		"CH": "just-eat.ch",
		"UK": "just-eat.co.uk",
	},
	"smood": {
		"": "smood.ch",
	},
}

// PlatformDomain resolves the site-operator domain for a platform in a
// country, falling back to the platform default, then to the platform name
// itself so an unknown platform still yields a usable site: operator.
func PlatformDomain(platform, country string) string {
	domains, ok := platformDomains[strings.ToLower(platform)]
	if !ok {
		return strings.ToLower(platform)
	}
	if d, ok := domains[strings.ToUpper(country)]; ok {
		return d
	}
	return domains[""]
}

// countryCities lists the cities probed per country, ordered by market size.
// Explore mode takes the first defaultCitiesPerCountry of these.
var countryCities = map[string][]string{
	"DE": {"Berlin", "München", "Hamburg", "Köln", "Frankfurt", "Stuttgart", "Düsseldorf", "Leipzig", "Dortmund", "Essen"},
	"CH": {"Zürich", "Genf", "Basel", "Bern", "Lausanne", "Winterthur", "Luzern", "St. Gallen"},
	"AT": {"Wien", "Graz", "Linz", "Salzburg", "Innsbruck"},
	"FR": {"Paris", "Lyon", "Marseille", "Toulouse", "Bordeaux", "Lille", "Nantes"},
	"UK": {"London", "Manchester", "Birmingham", "Leeds", "Glasgow", "Bristol"},
	"NL": {"Amsterdam", "Rotterdam", "Den Haag", "Utrecht", "Eindhoven"},
}

// CitiesFor returns up to n cities for a country.
func CitiesFor(country string, n int) []string {
	cities := countryCities[strings.ToUpper(country)]
	if n > len(cities) {
		n = len(cities)
	}
	return cities[:n]
}

// SeedStrategies returns the built-in strategy library loaded into an empty
// store on first initialization.
func SeedStrategies() []model.Strategy {
	templates := []string{
		`site:{platform} "planted" {city}`,
		`site:{platform} "planted.chicken" {city}`,
		`site:{platform} "planted chicken" {city}`,
		`site:{platform} "planted kebab" {city}`,
		`site:{platform} planted schnitzel {city}`,
	}
	pairs := []struct{ platform, country string }{
		{"lieferando", "DE"},
		{"wolt", "DE"},
		{"ubereats", "DE"},
		{"justeat", "CH"},
		{"smood", "CH"},
		{"lieferando", "AT"},
		{"deliveroo", "FR"},
		{"deliveroo", "UK"},
	}

	var seeds []model.Strategy
	for _, p := range pairs {
		for _, tmpl := range templates {
			seeds = append(seeds, model.Strategy{
				Platform:    p.platform,
				Country:     p.country,
				Template:    tmpl,
				SuccessRate: 50,
				Tags:        []string{"seed"},
				Origin:      model.StrategyOriginSeed,
				Status:      model.StrategyStatusActive,
			})
		}
	}
	return seeds
}
