package orchestrator

import (
	"fmt"
	"strings"
)

// batchCities groups cities into batches of at most size, preserving order.
func batchCities(cities []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for start := 0; start < len(cities); start += size {
		end := start + size
		if end > len(cities) {
			end = len(cities)
		}
		batches = append(batches, cities[start:end])
	}
	return batches
}

// cityExpression renders one city batch for template substitution: the bare
// city for a batch of one, an upper-case OR group otherwise. The search
// provider treats "OR" as an operator only in upper case.
func cityExpression(batch []string) string {
	if len(batch) == 1 {
		return batch[0]
	}
	return fmt.Sprintf("(%s)", strings.Join(batch, " OR "))
}

// composeQuery substitutes {city} and {platform} in a strategy template.
func composeQuery(template string, batch []string, platformDomain string) string {
	query := strings.ReplaceAll(template, "{city}", cityExpression(batch))
	return strings.ReplaceAll(query, "{platform}", platformDomain)
}

// chainQuery renders the enumerate-mode query for one chain on one platform
// in one country.
func chainQuery(platformDomain, chain, country string) string {
	return fmt.Sprintf("site:%s %q %s", platformDomain, chain, country)
}
