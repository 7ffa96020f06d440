package reconcile

// ProtocolRecord is the unified per-protocol row served by /protocols.
// Numeric fields are always present and default to zero when a join misses.
type ProtocolRecord struct {
	Name         string  `json:"name"`
	Chain        string  `json:"chain"`
	Category     string  `json:"category"`
	DailyFees    float64 `json:"dailyFees"`
	DailyRevenue float64 `json:"dailyRevenue"`
	MarketCap    float64 `json:"marketCap"`
	Price        float64 `json:"price"`
}

// CatalogEntry is a normalized DefiLlama protocol. Empty Chain or Category
// means the upstream row did not carry the field.
type CatalogEntry struct {
	ID       string
	Name     string
	Chain    string
	Category string
}

// FeesEntry is one row of the dailyFees overview.
type FeesEntry struct {
	ProtocolID string
	TotalFees  float64
}

// RevenueEntry is one row of the dailyRevenue overview.
type RevenueEntry struct {
	ProtocolID   string
	TotalRevenue float64
}

// MarketQuote is the USD quote of one CoinMarketCap listing.
type MarketQuote struct {
	Name      string
	Price     float64
	MarketCap float64
}

// Inputs groups the four decoded payloads. Any of them may be empty.
type Inputs struct {
	Catalog []CatalogEntry
	Fees    []FeesEntry
	Revenue []RevenueEntry
	Market  []MarketQuote
}

// Facets lists the distinct filterable values of a catalog.
type Facets struct {
	Chains        []string `json:"chains"`
	ProtocolTypes []string `json:"protocol_types"`
}

// Stats summarises how many catalog rows each join hit.
type Stats struct {
	Records        int
	FeeMatches     int
	RevenueMatches int
	MarketMatches  int
}
