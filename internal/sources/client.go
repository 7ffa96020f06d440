package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/web3-frozen/crypto-screener/internal/cache"
	"github.com/web3-frozen/crypto-screener/internal/metrics"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBaseWait    = 500 * time.Millisecond
	defaultBurst       = 4
	maxBodyBytes       = 64 << 20
	errorBodySnippet   = 512
)

// ErrInvalidJSON is returned when an upstream answers 200 with a body that is not JSON.
var ErrInvalidJSON = errors.New("upstream returned invalid json")

// StatusError is a non-2xx upstream answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ClientOptions configures a Client. Zero values select defaults; a
// negative MaxRetries disables retries.
type ClientOptions struct {
	HTTPClient *http.Client
	Cache      cache.Cache
	TTL        time.Duration
	RatePerSec float64
	MaxRetries int
	BaseWait   time.Duration
}

// Client performs cached, rate-limited GETs against the upstream JSON APIs,
// retrying transport errors, 429 and 5xx with exponential backoff.
type Client struct {
	http       *http.Client
	cache      cache.Cache
	ttl        time.Duration
	limiter    *rate.Limiter
	maxRetries int
	baseWait   time.Duration
	logger     *slog.Logger
	group      singleflight.Group
}

func NewClient(logger *slog.Logger, opts ClientOptions) *Client {
	c := &Client{
		http:       opts.HTTPClient,
		cache:      opts.Cache,
		ttl:        opts.TTL,
		limiter:    rate.NewLimiter(rate.Inf, defaultBurst),
		maxRetries: opts.MaxRetries,
		baseWait:   opts.BaseWait,
		logger:     logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.cache == nil {
		c.cache = cache.NewMemory()
	}
	if opts.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), defaultBurst)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	} else if c.maxRetries == 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.baseWait <= 0 {
		c.baseWait = defaultBaseWait
	}
	return c
}

type refreshKey struct{}

// WithRefresh marks ctx so Client.Get skips the cache lookup and always
// refetches, overwriting the cached entry on success.
func WithRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

func isRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

// Get returns the JSON body at url, served from cache when fresh. Concurrent
// misses for the same url share one upstream call. The cache key is
// source + url; header values (API keys) never reach it.
func (c *Client) Get(ctx context.Context, source, url string, header http.Header) ([]byte, error) {
	key := source + ":" + url

	if !isRefresh(ctx) {
		body, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			metrics.CacheErrorsTotal.WithLabelValues("get").Inc()
			c.logger.Warn("cache read failed", "source", source, "error", err)
		}
		if ok {
			metrics.CacheHitsTotal.WithLabelValues(source).Inc()
			return body, nil
		}
		metrics.CacheMissesTotal.WithLabelValues(source).Inc()
	}

	// The shared fetch must outlive any single caller: it keeps the first
	// caller's values and deadline but not its cancellation.
	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := c.flightContext(ctx)
		defer cancel()

		body, err := c.fetch(fctx, source, url, header)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(fctx, key, body, c.ttl); err != nil {
			metrics.CacheErrorsTotal.WithLabelValues("set").Inc()
			c.logger.Warn("cache write failed", "source", source, "error", err)
		}
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", source, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	perAttempt := c.http.Timeout
	if perAttempt <= 0 {
		perAttempt = defaultHTTPTimeout
	}
	return context.WithTimeout(detached, perAttempt*time.Duration(c.maxRetries+1))
}

func (c *Client) fetch(ctx context.Context, source, url string, header http.Header) ([]byte, error) {
	start := time.Now()
	body, err := c.doWithRetry(ctx, source, url, header)
	metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchTotal.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	metrics.FetchTotal.WithLabelValues(source, "ok").Inc()
	metrics.FetchLastSuccess.WithLabelValues(source).SetToCurrentTime()
	return body, nil
}

func (c *Client) doWithRetry(ctx context.Context, source, url string, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.FetchRetriesTotal.WithLabelValues(source).Inc()
			c.logger.Warn("retrying upstream request", "source", source, "attempt", attempt+1, "error", lastErr)
			if err := c.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.do(ctx, url, header)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *StatusError
		switch {
		case ctx.Err() != nil:
			return nil, err
		case errors.As(err, &statusErr) && !statusErr.retryable():
			return nil, err
		case errors.Is(err, ErrInvalidJSON):
			return nil, err
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippet))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}
	return body, nil
}

// sleep waits baseWait * 2^attempt or until ctx is done.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.baseWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
