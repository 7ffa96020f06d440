package reconcile

// MarketMatcher resolves a catalog protocol name to a market quote.
type MarketMatcher interface {
	Match(name string) (MarketQuote, bool)
}

// MatcherFactory builds a MarketMatcher over one request's quotes.
type MatcherFactory func(quotes []MarketQuote) MarketMatcher

type exactNameMatcher map[string]MarketQuote

// ExactNameMatcher matches on the byte-exact listing name. "Uniswap" and
// "uniswap" are different keys. Later quotes overwrite earlier ones.
func ExactNameMatcher(quotes []MarketQuote) MarketMatcher {
	m := make(exactNameMatcher, len(quotes))
	for _, q := range quotes {
		m[q.Name] = q
	}
	return m
}

func (m exactNameMatcher) Match(name string) (MarketQuote, bool) {
	q, ok := m[name]
	return q, ok
}
