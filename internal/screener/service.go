// Package screener serves one request's view of the DeFi protocol screener:
// fetch the upstream payloads, decode them and reconcile them.
package screener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/web3-frozen/crypto-screener/internal/reconcile"
	"github.com/web3-frozen/crypto-screener/internal/sources"
)

// ErrNoCatalog means the protocol catalog was unavailable, malformed or
// empty, so no meaningful result can be built.
var ErrNoCatalog = errors.New("protocol catalog unavailable")

// Fetcher supplies raw upstream payloads.
type Fetcher interface {
	FetchAll(ctx context.Context) sources.Payloads
	FetchCatalog(ctx context.Context) []byte
}

type Service struct {
	fetcher Fetcher
	decoder *reconcile.Decoder
	engine  *reconcile.Engine
	logger  *slog.Logger
}

func NewService(fetcher Fetcher, engine *reconcile.Engine, logger *slog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		decoder: reconcile.NewDecoder(logger),
		engine:  engine,
		logger:  logger,
	}
}

// Protocols returns one reconciled record per catalog protocol.
func (s *Service) Protocols(ctx context.Context) ([]reconcile.ProtocolRecord, error) {
	p := s.fetcher.FetchAll(ctx)

	catalog, err := s.catalog(p.Catalog)
	if err != nil {
		return nil, err
	}

	fees, err := s.decoder.DecodeFees(p.Fees)
	if err != nil {
		s.logger.Warn("discarding payload", "source", reconcile.SourceFees, "error", err)
		fees = nil
	}
	revenue, err := s.decoder.DecodeRevenue(p.Revenue)
	if err != nil {
		s.logger.Warn("discarding payload", "source", reconcile.SourceRevenue, "error", err)
		revenue = nil
	}
	market, err := s.decoder.DecodeMarket(p.Market)
	if err != nil {
		s.logger.Warn("discarding payload", "source", reconcile.SourceMarket, "error", err)
		market = nil
	}
	if len(p.Degraded) > 0 {
		s.logger.Warn("serving partial data", "degraded", p.Degraded)
	}

	return s.engine.Reconcile(reconcile.Inputs{
		Catalog: catalog,
		Fees:    fees,
		Revenue: revenue,
		Market:  market,
	}), nil
}

// Filters returns the chain and category facets of the catalog.
func (s *Service) Filters(ctx context.Context) (reconcile.Facets, error) {
	catalog, err := s.catalog(s.fetcher.FetchCatalog(ctx))
	if err != nil {
		return reconcile.Facets{}, err
	}
	return reconcile.DeriveFacets(catalog), nil
}

func (s *Service) catalog(data []byte) ([]reconcile.CatalogEntry, error) {
	catalog, err := s.decoder.DecodeCatalog(data)
	if err != nil {
		s.logger.Error("catalog payload rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNoCatalog, err)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w: upstream returned no protocols", ErrNoCatalog)
	}
	return catalog, nil
}
