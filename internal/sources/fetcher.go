package sources

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultFetchTimeout = 10 * time.Second

// Payloads holds one request's raw upstream bodies. A nil body means the
// source failed or timed out (listed in Degraded) or is switched off by
// configuration (listed in Disabled).
type Payloads struct {
	Catalog  []byte
	Fees     []byte
	Revenue  []byte
	Market   []byte
	Degraded []string
	Disabled []string
}

// Fetcher issues the four upstream fetches concurrently under one deadline.
// It never fails: an unavailable source degrades to an empty payload.
type Fetcher struct {
	llama   *DefiLlama
	cmc     *CoinMarketCap
	timeout time.Duration
	logger  *slog.Logger
}

func NewFetcher(llama *DefiLlama, cmc *CoinMarketCap, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{llama: llama, cmc: cmc, timeout: timeout, logger: logger}
}

// FetchAll fetches catalog, fees, revenue and market listings.
func (f *Fetcher) FetchAll(ctx context.Context) Payloads {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var (
		p  Payloads
		mu sync.Mutex
		g  errgroup.Group
	)
	// Failures degrade a single payload and never cancel the siblings, so
	// every goroutine returns nil and the group only bounds the fan-out.
	run := func(name string, dst *[]byte, fn func(context.Context) ([]byte, error)) {
		g.Go(func() error {
			body, err := fn(ctx)
			if err != nil {
				f.degrade(name, err)
				mu.Lock()
				if errors.Is(err, ErrMissingAPIKey) {
					p.Disabled = append(p.Disabled, name)
				} else {
					p.Degraded = append(p.Degraded, name)
				}
				mu.Unlock()
				return nil
			}
			*dst = body
			return nil
		})
	}
	run(NameCatalog, &p.Catalog, f.llama.Protocols)
	run(NameFees, &p.Fees, f.llama.FeesOverview)
	run(NameRevenue, &p.Revenue, f.llama.RevenueOverview)
	run(NameMarket, &p.Market, f.cmc.Listings)
	_ = g.Wait()

	sort.Strings(p.Degraded)
	sort.Strings(p.Disabled)
	return p
}

// FetchCatalog fetches only the protocol catalog. It returns nil on failure.
func (f *Fetcher) FetchCatalog(ctx context.Context) []byte {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := f.llama.Protocols(ctx)
	if err != nil {
		f.degrade(NameCatalog, err)
		return nil
	}
	return body
}

func (f *Fetcher) degrade(name string, err error) {
	if errors.Is(err, ErrMissingAPIKey) {
		f.logger.Info("source disabled, using empty payload", "source", name, "reason", err)
		return
	}
	f.logger.Warn("upstream unavailable, using empty payload", "source", name, "error", err)
}
