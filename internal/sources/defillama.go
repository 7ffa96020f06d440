package sources

import (
	"context"
	"net/url"
	"strings"
)

const defaultDefiLlamaBase = "https://api.llama.fi"

// Source names, shared with the decode step for log and metric labels.
const (
	NameCatalog = "catalog"
	NameFees    = "fees"
	NameRevenue = "revenue"
	NameMarket  = "market"
)

// DefiLlama fetches the protocol catalog and the fees/revenue overviews.
type DefiLlama struct {
	client  *Client
	baseURL string
}

func NewDefiLlama(client *Client, baseURL string) *DefiLlama {
	if baseURL == "" {
		baseURL = defaultDefiLlamaBase
	}
	return &DefiLlama{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Protocols returns the raw /protocols array.
func (d *DefiLlama) Protocols(ctx context.Context) ([]byte, error) {
	return d.client.Get(ctx, NameCatalog, d.baseURL+"/protocols", nil)
}

// FeesOverview returns the raw /overview/fees body for dataType=dailyFees.
func (d *DefiLlama) FeesOverview(ctx context.Context) ([]byte, error) {
	return d.overview(ctx, NameFees, "dailyFees")
}

// RevenueOverview returns the raw /overview/fees body for dataType=dailyRevenue.
func (d *DefiLlama) RevenueOverview(ctx context.Context) ([]byte, error) {
	return d.overview(ctx, NameRevenue, "dailyRevenue")
}

func (d *DefiLlama) overview(ctx context.Context, source, dataType string) ([]byte, error) {
	q := url.Values{}
	q.Set("excludeTotalDataChart", "true")
	q.Set("excludeTotalDataChartBreakdown", "true")
	q.Set("dataType", dataType)
	return d.client.Get(ctx, source, d.baseURL+"/overview/fees?"+q.Encode(), nil)
}
