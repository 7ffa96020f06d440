package screener

import (
	"context"
	"log/slog"
	"time"

	"github.com/web3-frozen/crypto-screener/internal/sources"
)

// Warmer refetches every upstream payload on a fixed interval, bypassing and
// then overwriting the response cache, so request paths keep hitting fresh
// entries. The interval should be shorter than the cache TTL.
type Warmer struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *slog.Logger
}

func NewWarmer(f Fetcher, interval time.Duration, logger *slog.Logger) *Warmer {
	return &Warmer{fetcher: f, interval: interval, logger: logger}
}

// Run warms once immediately, then on every tick until ctx is cancelled.
func (w *Warmer) Run(ctx context.Context) {
	w.warm(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.warm(ctx)
		}
	}
}

func (w *Warmer) warm(ctx context.Context) {
	start := time.Now()
	p := w.fetcher.FetchAll(sources.WithRefresh(ctx))
	if ctx.Err() != nil {
		return
	}
	if len(p.Degraded) > 0 {
		w.logger.Warn("cache warm incomplete", "degraded", p.Degraded, "duration", time.Since(start).String())
		return
	}
	w.logger.Info("cache warmed", "disabled", p.Disabled, "duration", time.Since(start).String())
}
