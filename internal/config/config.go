package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
	"github.com/joho/godotenv"
)

const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

type Config struct {
	Port           string
	FrontendOrigin string
	LogLevel       slog.Level

	CoinMarketCapAPIKey  string
	DefiLlamaBaseURL     string
	CoinMarketCapBaseURL string
	ListingsLimit        int

	CacheBackend  string
	CacheTTL      time.Duration
	WarmInterval  time.Duration
	RedisURL      string
	RedisPassword string
	DatabaseURL   string

	FetchTimeout       time.Duration
	FetchMaxRetries    int
	UpstreamRatePerSec float64
}

func Load() Config {
	loadDotEnv(".env")

	cfg := Config{
		Port:           envOr("PORT", "8000"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),
		LogLevel:       logLevel("LOG_LEVEL", slog.LevelInfo),

		CoinMarketCapAPIKey:  os.Getenv("COINMARKETCAP_API_KEY"),
		DefiLlamaBaseURL:     envOr("DEFILLAMA_BASE_URL", "https://api.llama.fi"),
		CoinMarketCapBaseURL: envOr("COINMARKETCAP_BASE_URL", "https://pro-api.coinmarketcap.com"),
		ListingsLimit:        envInt("COINMARKETCAP_LISTINGS_LIMIT", 5000),

		CacheBackend:  cacheBackend("CACHE_BACKEND"),
		CacheTTL:      envDuration("CACHE_TTL", time.Hour),
		WarmInterval:  envDuration("CACHE_WARM_INTERVAL", 0),
		RedisURL:      envOr("REDIS_URL", "redis://localhost:6379/0"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		FetchTimeout:       envDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchMaxRetries:    envInt("FETCH_MAX_RETRIES", 3),
		UpstreamRatePerSec: envFloat("UPSTREAM_RATE_PER_SEC", 5),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) {
	err := godotenv.Load(path)
	if err == nil {
		slog.Info("loaded environment file", "path", path)
		return
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load environment file", "path", path, "error", err)
	}
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL", "https://app.infisical.com")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"COINMARKETCAP_API_KEY": &cfg.CoinMarketCapAPIKey,
		"REDIS_PASSWORD":        &cfg.RedisPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		slog.Warn("invalid number, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return d
}

func logLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("invalid log level, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return lvl
}

func cacheBackend(key string) string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return CacheMemory
	case CacheMemory, CacheRedis, CachePostgres:
		return v
	}
	slog.Warn("unknown cache backend, using memory", "key", key, "value", v)
	return CacheMemory
}
