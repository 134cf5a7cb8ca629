package searchpool

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// jsonCredential is the wire shape of one entry in GOOGLE_SEARCH_CREDENTIALS.
type jsonCredential struct {
	APIKey         string `json:"apiKey"`
	SearchEngineID string `json:"searchEngineId"`
	Name           string `json:"name"`
}

// LoadCredentials builds the credential set for the Google Custom Search
// provider from, in order of precedence:
//  1. GOOGLE_SEARCH_CREDENTIALS, a JSON array of {apiKey, searchEngineId, name?}
//  2. numbered GOOGLE_SEARCH_API_KEY_<n> / GOOGLE_SEARCH_ENGINE_ID_<n> pairs
//  3. the single googleAPIKey/googleEngineID pair
//
// The first source that yields at least one credential wins; sources are not
// merged.
func LoadCredentials(googleCredentialsJSON, googleAPIKey, googleEngineID string) ([]model.SearchCredential, error) {
	if googleCredentialsJSON != "" {
		var raw []jsonCredential
		if err := json.Unmarshal([]byte(googleCredentialsJSON), &raw); err != nil {
			return nil, eris.Wrap(err, "searchpool: parse GOOGLE_SEARCH_CREDENTIALS")
		}
		creds := make([]model.SearchCredential, 0, len(raw))
		for i, rc := range raw {
			name := rc.Name
			if name == "" {
				name = fmt.Sprintf("credential-%d", i+1)
			}
			creds = append(creds, model.SearchCredential{
				ID:       strconv.Itoa(i + 1),
				Name:     name,
				APIKey:   rc.APIKey,
				EngineID: rc.SearchEngineID,
			})
		}
		return creds, nil
	}

	if numbered := loadNumberedCredentials(); len(numbered) > 0 {
		return numbered, nil
	}

	if googleAPIKey != "" && googleEngineID != "" {
		return []model.SearchCredential{
			{ID: "1", Name: "default", APIKey: googleAPIKey, EngineID: googleEngineID},
		}, nil
	}

	return nil, nil
}

func loadNumberedCredentials() []model.SearchCredential {
	var creds []model.SearchCredential
	for n := 1; ; n++ {
		key := os.Getenv(fmt.Sprintf("GOOGLE_SEARCH_API_KEY_%d", n))
		engine := os.Getenv(fmt.Sprintf("GOOGLE_SEARCH_ENGINE_ID_%d", n))
		if key == "" || engine == "" {
			break
		}
		creds = append(creds, model.SearchCredential{
			ID:       strconv.Itoa(n),
			Name:     fmt.Sprintf("credential-%d", n),
			APIKey:   key,
			EngineID: engine,
		})
	}
	return creds
}
