package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/web3-frozen/crypto-screener/internal/cache"
	"github.com/web3-frozen/crypto-screener/internal/config"
	"github.com/web3-frozen/crypto-screener/internal/handler"
	"github.com/web3-frozen/crypto-screener/internal/middleware"
	"github.com/web3-frozen/crypto-screener/internal/reconcile"
	"github.com/web3-frozen/crypto-screener/internal/screener"
	"github.com/web3-frozen/crypto-screener/internal/sources"
	"github.com/web3-frozen/crypto-screener/internal/store"
)

const purgeInterval = 10 * time.Minute

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.CoinMarketCapAPIKey == "" {
		logger.Warn("COINMARKETCAP_API_KEY not set, market data will be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	respCache := openCache(ctx, cfg, logger)
	defer respCache.Close()

	maxRetries := cfg.FetchMaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	client := sources.NewClient(logger, sources.ClientOptions{
		Cache:      respCache,
		TTL:        cfg.CacheTTL,
		RatePerSec: cfg.UpstreamRatePerSec,
		MaxRetries: maxRetries,
	})
	fetcher := sources.NewFetcher(
		sources.NewDefiLlama(client, cfg.DefiLlamaBaseURL),
		sources.NewCoinMarketCap(client, cfg.CoinMarketCapBaseURL, cfg.CoinMarketCapAPIKey, cfg.ListingsLimit),
		cfg.FetchTimeout,
		logger,
	)
	svc := screener.NewService(fetcher, reconcile.NewEngine(logger), logger)

	if cfg.WarmInterval > 0 {
		go screener.NewWarmer(fetcher, cfg.WarmInterval, logger).Run(ctx)
	}

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(respCache))

	r.Get("/", handler.Root())
	r.Get("/protocols", handler.Protocols(svc, logger))
	r.Get("/filters", handler.Filters(svc, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FetchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "cache_backend", cfg.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// openCache picks the response cache backend. Redis and Postgres failures
// fall back to the in-process cache so the API still serves.
func openCache(ctx context.Context, cfg config.Config, logger *slog.Logger) cache.Cache {
	switch cfg.CacheBackend {
	case config.CacheRedis:
		// Retry up to 30s for the secret to sync
		var (
			rc  *cache.Redis
			err error
		)
		for i := 0; i < 6; i++ {
			rc, err = cache.NewRedis(cfg.RedisURL, cfg.RedisPassword)
			if err == nil {
				logger.Info("redis connected for response cache")
				return rc
			}
			logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
			time.Sleep(5 * time.Second)
		}
		logger.Error("failed to connect to redis, using memory cache", "error", err)

	case config.CachePostgres:
		if cfg.DatabaseURL == "" {
			logger.Error("DATABASE_URL is required for the postgres cache, using memory cache")
			break
		}
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database, using memory cache", "error", err)
			break
		}
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations, using memory cache", "error", err)
			_ = db.Close()
			break
		}
		logger.Info("database connected and migrated")
		go purgeLoop(ctx, db, logger)
		return db
	}
	return cache.NewMemory()
}

func purgeLoop(ctx context.Context, db *store.Store, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("failed to purge expired cache rows", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired cache rows", "count", n)
			}
		}
	}
}
