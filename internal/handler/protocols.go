package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/web3-frozen/crypto-screener/internal/reconcile"
	"github.com/web3-frozen/crypto-screener/internal/screener"
)

const welcomeMessage = "Welcome to the Crypto Screener Backend!"

// Screener is the read side consumed by the HTTP API.
type Screener interface {
	Protocols(ctx context.Context) ([]reconcile.ProtocolRecord, error)
	Filters(ctx context.Context) (reconcile.Facets, error)
}

func Root() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
	}
}

func Protocols(s Screener, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.Protocols(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if records == nil {
			records = []reconcile.ProtocolRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func Filters(s Screener, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		facets, err := s.Filters(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if facets.Chains == nil {
			facets.Chains = []string{}
		}
		if facets.ProtocolTypes == nil {
			facets.ProtocolTypes = []string{}
		}
		writeJSON(w, http.StatusOK, facets)
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

// writeError maps a missing catalog to 503 and everything else to 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, screener.ErrNoCatalog) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: err.Error()})
		return
	}
	logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
