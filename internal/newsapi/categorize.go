package newsapi

import "strings"

// categoryRules are checked in order; the first rule with a matching keyword wins.
var categoryRules = []struct {
	category string
	keywords []string
}{
	{"Bitcoin", []string{"bitcoin", "btc"}},
	{"Ethereum", []string{"ethereum", "eth"}},
	{"DeFi", []string{"defi", "decentralized finance"}},
	{"NFTs", []string{"nft", "non-fungible"}},
	{"Regulation", []string{"regulation", "law", "sec"}},
	{"ICO", []string{"ico", "initial coin offering"}},
}

// Categorize assigns a site category to an article from its title and description.
// Matching is by lower-cased substring, so "eth" also matches inside longer words.
func Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return "General"
}
