package orchestrator

import "strings"

// skuToken is one recognizable product fragment and the SKU it maps to.
type skuToken struct {
	fragment string
	sku      string
}

// chickenTokens resolve in priority order: the specific chicken variants
// first, plain chicken only when neither matched.
var chickenTokens = []skuToken{
	{"chicken tender", "planted.chicken_tenders"},
	{"chicken burger", "planted.chicken_burger"},
}

// independentTokens match regardless of the chicken resolution.
var independentTokens = []skuToken{
	{"kebab", "planted.kebab"},
	{"schnitzel", "planted.schnitzel"},
	{"pulled", "planted.pulled"},
	{"steak", "planted.steak"},
	{"pastrami", "planted.pastrami"},
	{"duck", "planted.duck"},
}

// ExtractProducts maps brand mentions to product SKUs. Only mentions
// containing the literal substring "planted" (case-insensitive) count;
// generic "plant-based" or "vegan" phrasing yields nothing. The result is a
// unique set in stable order.
func ExtractProducts(mentions []string) []string {
	seen := make(map[string]bool)
	var products []string
	add := func(sku string) {
		if !seen[sku] {
			seen[sku] = true
			products = append(products, sku)
		}
	}

	for _, mention := range mentions {
		text := canonicalize(mention)
		if !strings.Contains(text, "planted") {
			continue
		}

		chickenVariant := false
		chickenBurger := false
		for _, tok := range chickenTokens {
			if strings.Contains(text, tok.fragment) {
				add(tok.sku)
				chickenVariant = true
				if tok.sku == "planted.chicken_burger" {
					chickenBurger = true
				}
			}
		}
		if !chickenVariant && strings.Contains(text, "chicken") {
			add("planted.chicken")
		}

		for _, tok := range independentTokens {
			if strings.Contains(text, tok.fragment) {
				add(tok.sku)
			}
		}

		// "burger" resolves to the generic burger SKU only when this mention
		// did not already resolve it to a chicken burger.
		if strings.Contains(text, "burger") && !chickenBurger {
			add("planted.burger")
		}
	}

	return products
}

// canonicalize lowercases a mention and folds underscores and dots into
// spaces so "planted.chicken_tenders" and "Planted Chicken Tenders" match
// the same fragments.
func canonicalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, ".", " ")
	return s
}
