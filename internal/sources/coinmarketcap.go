package sources

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultCMCBase  = "https://pro-api.coinmarketcap.com"
	defaultCMCLimit = 5000
)

// ErrMissingAPIKey means the market source is disabled; no request is made.
var ErrMissingAPIKey = errors.New("coinmarketcap api key not configured")

// CoinMarketCap fetches the latest listings with their USD quotes.
type CoinMarketCap struct {
	client  *Client
	baseURL string
	apiKey  string
	limit   int
}

func NewCoinMarketCap(client *Client, baseURL, apiKey string, limit int) *CoinMarketCap {
	if baseURL == "" {
		baseURL = defaultCMCBase
	}
	if limit <= 0 {
		limit = defaultCMCLimit
	}
	return &CoinMarketCap{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limit:   limit,
	}
}

// Listings returns the raw /v1/cryptocurrency/listings/latest body.
func (c *CoinMarketCap) Listings(ctx context.Context) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	q := url.Values{}
	q.Set("start", "1")
	q.Set("limit", strconv.Itoa(c.limit))

	h := http.Header{}
	h.Set("Accepts", "application/json")
	h.Set("X-CMC_PRO_API_KEY", c.apiKey)
	return c.client.Get(ctx, NameMarket, c.baseURL+"/v1/cryptocurrency/listings/latest?"+q.Encode(), h)
}
