package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/web3-frozen/crypto-screener/internal/metrics"
)

// ErrMalformedPayload is returned when the top level of a payload is not the
// documented list or object. Row-level problems never produce it.
var ErrMalformedPayload = errors.New("malformed payload")

var errMalformedField = errors.New("unexpected field type")

// Source names used in logs and metric labels.
const (
	SourceCatalog = "catalog"
	SourceFees    = "fees"
	SourceRevenue = "revenue"
	SourceMarket  = "market"
)

// Decoder turns raw upstream JSON into typed, defaulted rows. Bad rows are
// logged and coalesced or skipped; only a bad top level is an error.
type Decoder struct {
	logger *slog.Logger
}

func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

type catalogRow struct {
	ID       json.RawMessage `json:"id"`
	Name     json.RawMessage `json:"name"`
	Chain    json.RawMessage `json:"chain"`
	Category json.RawMessage `json:"category"`
}

type overviewPayload struct {
	Protocols []json.RawMessage `json:"protocols"`
}

type listingsPayload struct {
	Data []json.RawMessage `json:"data"`
}

type listingRow struct {
	Name  json.RawMessage `json:"name"`
	Quote map[string]struct {
		Price     json.RawMessage `json:"price"`
		MarketCap json.RawMessage `json:"market_cap"`
	} `json:"quote"`
}

// DecodeCatalog decodes the DefiLlama /protocols array.
func (d *Decoder) DecodeCatalog(data []byte) ([]CatalogEntry, error) {
	if isAbsent(data) {
		return []CatalogEntry{}, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, SourceCatalog, err)
	}

	out := make([]CatalogEntry, 0, len(rows))
	for i, raw := range rows {
		var row catalogRow
		if isAbsent(raw) || json.Unmarshal(raw, &row) != nil {
			d.warnRow(SourceCatalog, i, "", "row is not an object, skipped")
			continue
		}
		out = append(out, CatalogEntry{
			ID:       d.stringField(SourceCatalog, i, "id", row.ID),
			Name:     d.stringField(SourceCatalog, i, "name", row.Name),
			Chain:    d.stringField(SourceCatalog, i, "chain", row.Chain),
			Category: d.stringField(SourceCatalog, i, "category", row.Category),
		})
	}
	return out, nil
}

// DecodeFees decodes the dailyFees overview, reading totalFees per protocolId.
func (d *Decoder) DecodeFees(data []byte) ([]FeesEntry, error) {
	rows, err := d.decodeOverview(data, SourceFees, "totalFees")
	if err != nil {
		return nil, err
	}
	out := make([]FeesEntry, len(rows))
	for i, r := range rows {
		out[i] = FeesEntry{ProtocolID: r.id, TotalFees: r.value}
	}
	return out, nil
}

// DecodeRevenue decodes the dailyRevenue overview, reading totalRevenue per protocolId.
func (d *Decoder) DecodeRevenue(data []byte) ([]RevenueEntry, error) {
	rows, err := d.decodeOverview(data, SourceRevenue, "totalRevenue")
	if err != nil {
		return nil, err
	}
	out := make([]RevenueEntry, len(rows))
	for i, r := range rows {
		out[i] = RevenueEntry{ProtocolID: r.id, TotalRevenue: r.value}
	}
	return out, nil
}

type overviewRow struct {
	id    string
	value float64
}

func (d *Decoder) decodeOverview(data []byte, source, valueKey string) ([]overviewRow, error) {
	if isAbsent(data) {
		return []overviewRow{}, nil
	}
	var payload overviewPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, source, err)
	}

	out := make([]overviewRow, 0, len(payload.Protocols))
	for i, raw := range payload.Protocols {
		var row map[string]json.RawMessage
		if isAbsent(raw) || json.Unmarshal(raw, &row) != nil {
			d.warnRow(source, i, "", "row is not an object, skipped")
			continue
		}
		id := d.stringField(source, i, "protocolId", row["protocolId"])
		if id == "" {
			d.warnRow(source, i, "protocolId", "missing protocol id, skipped")
			continue
		}
		value, err := looseFloat(row[valueKey])
		if err != nil {
			d.warnRow(source, i, valueKey, "non-numeric value, using 0")
			value = 0
		}
		out = append(out, overviewRow{id: id, value: value})
	}
	return out, nil
}

// DecodeMarket decodes CoinMarketCap listings, keeping only the USD quote.
// Listings without a name or with a non-numeric quote are skipped.
func (d *Decoder) DecodeMarket(data []byte) ([]MarketQuote, error) {
	if isAbsent(data) {
		return []MarketQuote{}, nil
	}
	var payload listingsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, SourceMarket, err)
	}

	out := make([]MarketQuote, 0, len(payload.Data))
	for i, raw := range payload.Data {
		var row listingRow
		if isAbsent(raw) || json.Unmarshal(raw, &row) != nil {
			d.warnRow(SourceMarket, i, "", "listing is not an object, skipped")
			continue
		}
		name := d.stringField(SourceMarket, i, "name", row.Name)
		if name == "" {
			d.warnRow(SourceMarket, i, "name", "missing name, skipped")
			continue
		}
		usd := row.Quote["USD"]
		price, err := looseFloat(usd.Price)
		if err != nil {
			d.warnRow(SourceMarket, i, "quote.USD.price", "non-numeric value, skipped")
			continue
		}
		marketCap, err := looseFloat(usd.MarketCap)
		if err != nil {
			d.warnRow(SourceMarket, i, "quote.USD.market_cap", "non-numeric value, skipped")
			continue
		}
		out = append(out, MarketQuote{Name: name, Price: price, MarketCap: marketCap})
	}
	return out, nil
}

func (d *Decoder) stringField(source string, row int, field string, raw json.RawMessage) string {
	s, err := looseString(raw)
	if err != nil {
		d.warnRow(source, row, field, "unexpected type, using empty string")
		return ""
	}
	return s
}

func (d *Decoder) warnRow(source string, row int, field, msg string) {
	metrics.MalformedRowsTotal.WithLabelValues(source).Inc()
	d.logger.Warn(msg, "source", source, "row", row, "field", field)
}

func isAbsent(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// looseString accepts JSON strings and numbers. Missing and null yield "".
func looseString(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return "", errMalformedField
}

// looseFloat accepts JSON numbers and numeric strings. Missing, null and
// blank strings yield 0.
func looseFloat(raw json.RawMessage) (float64, error) {
	if isAbsent(raw) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errMalformedField
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errMalformedField
	}
	return f, nil
}
