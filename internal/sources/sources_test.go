package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefiLlamaProtocols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/protocols", r.URL.Path)
		w.Write([]byte(`[{"id":"1","name":"ProtocolA"}]`))
	}))
	defer srv.Close()

	d := NewDefiLlama(newTestClient(srv, nil), srv.URL+"/")
	body, err := d.Protocols(context.Background())

	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","name":"ProtocolA"}]`, string(body))
}

func TestDefiLlamaOverviewDataType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/overview/fees", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("excludeTotalDataChart"))
		assert.Equal(t, "true", q.Get("excludeTotalDataChartBreakdown"))
		w.Write([]byte(`{"dataType":"` + q.Get("dataType") + `"}`))
	}))
	defer srv.Close()

	d := NewDefiLlama(newTestClient(srv, nil), srv.URL)

	fees, err := d.FeesOverview(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"dataType":"dailyFees"}`, string(fees))

	revenue, err := d.RevenueOverview(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"dataType":"dailyRevenue"}`, string(revenue), "fees and revenue are cached separately")
}

func TestCoinMarketCapListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/cryptocurrency/listings/latest", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-CMC_PRO_API_KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Accepts"))
		assert.Equal(t, "1", r.URL.Query().Get("start"))
		assert.Equal(t, "250", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewCoinMarketCap(newTestClient(srv, nil), srv.URL, "test-key", 250)
	body, err := c.Listings(context.Background())

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
}

func TestCoinMarketCapDefaults(t *testing.T) {
	c := NewCoinMarketCap(nil, "", "k", 0)
	assert.Equal(t, defaultCMCBase, c.baseURL)
	assert.Equal(t, defaultCMCLimit, c.limit)
}

func TestCoinMarketCapMissingKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewCoinMarketCap(newTestClient(srv, nil), srv.URL, "", 0)
	_, err := c.Listings(context.Background())

	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, int32(0), hits.Load())
}

// upstream serves the four upstream endpoints from one test server.
func upstream(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, h := range handlers {
		mux.HandleFunc(pattern, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(srv *httptest.Server, apiKey string, timeout time.Duration) *Fetcher {
	client := NewClient(discardLogger(), ClientOptions{
		HTTPClient: srv.Client(),
		TTL:        time.Hour,
		MaxRetries: -1,
	})
	return NewFetcher(
		NewDefiLlama(client, srv.URL),
		NewCoinMarketCap(client, srv.URL, apiKey, 0),
		timeout,
		discardLogger(),
	)
}

func TestFetcherFetchAll(t *testing.T) {
	srv := upstream(t, map[string]http.HandlerFunc{
		"/protocols": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[1]`)) },
		"/overview/fees": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"t":"` + r.URL.Query().Get("dataType") + `"}`))
		},
		"/v1/cryptocurrency/listings/latest": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"data":[]}`)) },
	})

	p := newTestFetcher(srv, "k", time.Second).FetchAll(context.Background())

	assert.Equal(t, `[1]`, string(p.Catalog))
	assert.Equal(t, `{"t":"dailyFees"}`, string(p.Fees))
	assert.Equal(t, `{"t":"dailyRevenue"}`, string(p.Revenue))
	assert.Equal(t, `{"data":[]}`, string(p.Market))
	assert.Empty(t, p.Degraded)
	assert.Empty(t, p.Disabled)
}

func TestFetcherFetchAll_RefreshBypassesCache(t *testing.T) {
	var hits atomic.Int32
	ok := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte(body))
		}
	}
	srv := upstream(t, map[string]http.HandlerFunc{
		"/protocols":                         ok(`[1]`),
		"/overview/fees":                     ok(`{}`),
		"/v1/cryptocurrency/listings/latest": ok(`{"data":[]}`),
	})
	f := newTestFetcher(srv, "k", time.Second)

	f.FetchAll(context.Background())
	require.Equal(t, int32(4), hits.Load())

	f.FetchAll(context.Background())
	assert.Equal(t, int32(4), hits.Load(), "fresh entries are served from cache")

	f.FetchAll(WithRefresh(context.Background()))
	f.FetchAll(WithRefresh(context.Background()))
	assert.Equal(t, int32(12), hits.Load(), "every refresh reaches the upstream")
}

func TestFetcherFetchAll_DegradesFailedSources(t *testing.T) {
	srv := upstream(t, map[string]http.HandlerFunc{
		"/protocols": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[1]`)) },
		"/overview/fees": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})

	p := newTestFetcher(srv, "", time.Second).FetchAll(context.Background())

	assert.Equal(t, `[1]`, string(p.Catalog))
	assert.Nil(t, p.Fees)
	assert.Nil(t, p.Revenue)
	assert.Nil(t, p.Market)
	assert.Equal(t, []string{NameFees, NameRevenue}, p.Degraded)
	assert.Equal(t, []string{NameMarket}, p.Disabled, "a missing api key disables the source")
}

func TestFetcherFetchAll_TimeoutDegradesSlowSource(t *testing.T) {
	srv := upstream(t, map[string]http.HandlerFunc{
		"/protocols": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[1]`)) },
		"/overview/fees": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
		"/v1/cryptocurrency/listings/latest": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) },
	})

	start := time.Now()
	p := newTestFetcher(srv, "k", 100*time.Millisecond).FetchAll(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, `[1]`, string(p.Catalog))
	assert.Equal(t, `{}`, string(p.Market))
	assert.Equal(t, []string{NameFees, NameRevenue}, p.Degraded)
}

func TestFetcherFetchCatalog(t *testing.T) {
	srv := upstream(t, map[string]http.HandlerFunc{
		"/protocols": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) },
	})
	assert.Equal(t, `[]`, string(newTestFetcher(srv, "", time.Second).FetchCatalog(context.Background())))

	down := upstream(t, map[string]http.HandlerFunc{
		"/protocols": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
	})
	assert.Nil(t, newTestFetcher(down, "", time.Second).FetchCatalog(context.Background()))
}
