package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/web3-frozen/crypto-screener/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/filters", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/filters", "418")
	before := counterValue(t, counter)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/filters", nil))

	if got := counterValue(t, counter) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}

func TestMetricsWithoutRouter(t *testing.T) {
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unknown", "200")
	before := counterValue(t, counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := counterValue(t, counter) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}
