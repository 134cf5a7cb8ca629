package aiclient

import "strings"

// maxPageContentChars caps how much venue-page text is fed to the model.
const maxPageContentChars = 10000

// systemPrompt is shared across all providers and all operations. It pins the
// single rule every operation depends on: "planted" is a brand name, not a
// dietary label.
const systemPrompt = `You are a research assistant for Planted Foods AG, a Swiss producer of plant-based meat sold under the brand name "planted" (product lines like planted.chicken, planted.kebab, planted.schnitzel).

Critical rule: "planted" is a BRAND NAME, not a generic label. A restaurant serves planted products only if the literal word "planted" appears in its menu or description. Mentions of "plant-based", "vegan", "vegetarian" or similar WITHOUT the word "planted" must be rejected. A dish called "Vegan Chicken Burger" is NOT a planted dish; a dish called "Planted Chicken Burger" is.

Always respond with valid JSON only. No prose, no markdown fences, no explanations outside the JSON.`

const generateQueriesPrompt = `Propose search queries to find restaurants serving planted products on the delivery platform {platform} (domain {platform_domain}) in {country}.

Cities to cover: {cities}
Queries that worked well before, for reference: {known_good}

Use the site: operator with the platform domain. Always include the word "planted" or a specific planted product name in the query.

Respond with a JSON array of up to 5 objects:
[{"query": "...", "reasoning": "...", "expected_results": "...", "confidence": 0-100}]`

const parseSearchResultsPrompt = `These are web search results for the query below. Identify which results are individual restaurant listings on {platform} that serve planted-brand products.

Query: {query}

Results:
{results}

Rules:
- Only include venues where the title or snippet contains the word "planted" (the brand). Reject results that only say "plant-based" or "vegan".
- For each venue report every phrase mentioning planted products in planted_mentions, verbatim.
- Flag names that appear to be multi-location chains in chains_detected.

Respond with JSON:
{"venues": [{"name": "...", "url": "...", "city": "...", "country": "...", "planted_mentions": ["..."], "confidence": 0-100}],
 "chains_detected": [{"name": "...", "should_enumerate": true, "estimated_locations": 0}],
 "quality_assessment": "..."}`

const analyzeVenuePrompt = `This is the menu page of "{venue_name}" on {platform} ({url}).

Page content:
{content}

Extract every dish that contains a planted-brand product. A dish qualifies only if its name or description contains the word "planted". Map each dish to a product SKU of the form planted.<variant> (e.g. planted.chicken, planted.kebab, planted.schnitzel, planted.pulled, planted.steak, planted.duck, planted.chicken_burger, planted.chicken_tenders, planted.pastrami, planted.burger).

Respond with JSON:
{"serves_planted": true/false,
 "dishes": [{"name": "...", "description": "...", "price": 0.0, "currency": "EUR", "planted_product": "planted....", "is_vegan": true, "confidence": 0-100}],
 "confidence": 0-100,
 "notes": "..."}`

const detectChainPrompt = `Does the restaurant name "{name}" on {platform} denote a multi-location chain?

Search results mentioning it:
{results}

Respond with JSON:
{"is_chain": true/false, "confidence": 0-100, "estimated_locations": 0, "reasoning": "..."}`

const learnFromFeedbackPrompt = `You are refining the search-strategy library for discovering restaurants that serve planted products.

Feedback from recent searches (result_type is one of true_positive, false_positive, no_results, error):
{feedback}

Current strategies with their statistics:
{strategies}

Tasks:
1. Recommend deprecating strategies that consistently produce false positives or no results (action "deprecate" with a reason).
2. Recommend boosting strategies that work (action "boost").
3. Propose new query templates derived from what worked. Templates must use {city} and {platform} placeholders and include the word "planted" or a planted product SKU.

Respond with JSON:
{"strategy_updates": [{"strategy_id": "...", "action": "deprecate|boost", "reason": "..."}],
 "new_strategies": [{"template": "...", "platform": "...", "country": "...", "reasoning": "..."}],
 "insights": ["..."]}`

const scoreConfidencePrompt = `Score how confident we can be that this venue genuinely serves planted-brand products.

Venue:
{venue}

It was found by the query: {query}
The strategy that produced the query has a historical success rate of {strategy_rate}%.

Consider: does the evidence contain the literal word "planted"; is the URL a real venue listing; does the mention name a concrete product.

Respond with JSON:
{"overall_score": 0-100,
 "factors": [{"factor": "...", "score": 0-100, "reason": "..."}],
 "recommendation": "accept|review|reject"}`

// render substitutes {name} placeholders in a prompt template. Placeholders
// with no binding are left intact, so templates that themselves demonstrate
// placeholders (the learner prompt) survive rendering.
func render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// truncate caps s at n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
