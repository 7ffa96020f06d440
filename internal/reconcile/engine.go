package reconcile

import (
	"log/slog"
	"sort"

	"github.com/web3-frozen/crypto-screener/internal/metrics"
)

// Engine left-joins fees, revenue and market quotes onto the protocol
// catalog. It holds no per-request state and is safe for concurrent use.
type Engine struct {
	logger  *slog.Logger
	matcher MatcherFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithMatcher replaces the market-name join strategy.
func WithMatcher(f MatcherFactory) Option {
	return func(e *Engine) { e.matcher = f }
}

func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{logger: logger, matcher: ExactNameMatcher}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile emits exactly one record per catalog entry, in catalog order.
// Fees and revenue join on protocol id; duplicate ids are last-write-wins.
// Market quotes join on name through the configured matcher. Misses are 0.
func (e *Engine) Reconcile(in Inputs) []ProtocolRecord {
	records, stats := e.reconcile(in)

	metrics.ReconciledRecords.Set(float64(stats.Records))
	metrics.JoinMatches.WithLabelValues(SourceFees).Set(float64(stats.FeeMatches))
	metrics.JoinMatches.WithLabelValues(SourceRevenue).Set(float64(stats.RevenueMatches))
	metrics.JoinMatches.WithLabelValues(SourceMarket).Set(float64(stats.MarketMatches))

	e.logger.Info("reconciled protocols",
		"records", stats.Records,
		"fee_matches", stats.FeeMatches,
		"revenue_matches", stats.RevenueMatches,
		"market_matches", stats.MarketMatches,
	)
	return records
}

func (e *Engine) reconcile(in Inputs) ([]ProtocolRecord, Stats) {
	fees := make(map[string]float64, len(in.Fees))
	for _, f := range in.Fees {
		fees[f.ProtocolID] = f.TotalFees
	}
	revenue := make(map[string]float64, len(in.Revenue))
	for _, r := range in.Revenue {
		revenue[r.ProtocolID] = r.TotalRevenue
	}
	market := e.matcher(in.Market)

	stats := Stats{Records: len(in.Catalog)}
	out := make([]ProtocolRecord, 0, len(in.Catalog))
	for _, p := range in.Catalog {
		rec := ProtocolRecord{
			Name:     p.Name,
			Chain:    p.Chain,
			Category: p.Category,
		}
		if v, ok := fees[p.ID]; ok {
			rec.DailyFees = v
			stats.FeeMatches++
		}
		if v, ok := revenue[p.ID]; ok {
			rec.DailyRevenue = v
			stats.RevenueMatches++
		}
		if q, ok := market.Match(p.Name); ok {
			rec.Price = q.Price
			rec.MarketCap = q.MarketCap
			stats.MarketMatches++
		}
		out = append(out, rec)
	}
	return out, stats
}

// DeriveFacets collects the distinct non-empty chains and categories of a
// catalog, each sorted ascending. The slices are never nil.
func DeriveFacets(catalog []CatalogEntry) Facets {
	chains := make(map[string]struct{})
	categories := make(map[string]struct{})
	for _, p := range catalog {
		if p.Chain != "" {
			chains[p.Chain] = struct{}{}
		}
		if p.Category != "" {
			categories[p.Category] = struct{}{}
		}
	}
	return Facets{
		Chains:        sortedKeys(chains),
		ProtocolTypes: sortedKeys(categories),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
