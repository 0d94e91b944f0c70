// Package warehouse talks to the analytics warehouse used for reporting.
package warehouse

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/adapter/finhttp"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
	"github.com/ledgerline/ledgerline/internal/resilience"
)

// BoardPackRequest asks the warehouse to materialize a board pack dataset.
type BoardPackRequest struct {
	Period   string   `json:"period"`
	Sections []string `json:"sections,omitempty"`
	Audience string   `json:"audience,omitempty"`
}

// BoardPackResponse points at the materialized dataset.
type BoardPackResponse struct {
	PackID      string `json:"pack_id"`
	Status      string `json:"status"`
	ArtifactURL string `json:"artifact_url,omitempty"`
}

// MetricPoint is one metric value from a warehouse query.
type MetricPoint struct {
	Metric string  `json:"metric"`
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

type Client struct {
	caller *finhttp.Caller
}

func NewClient(cfg finclient.Config) *Client {
	return &Client{caller: finhttp.NewCaller(cfg)}
}

func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.caller.SetBreaker(b)
}

// GenerateBoardPack materializes the reporting dataset for a period.
func (c *Client) GenerateBoardPack(ctx context.Context, req BoardPackRequest) (*BoardPackResponse, error) {
	var resp BoardPackResponse
	if err := c.caller.PostJSON(ctx, "/v1/board-packs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryMetrics fetches named metrics for a reporting period.
func (c *Client) QueryMetrics(ctx context.Context, period string, metrics []string) ([]MetricPoint, error) {
	var resp struct {
		Points []MetricPoint `json:"points"`
	}
	req := map[string]any{"period": period, "metrics": metrics}
	if err := c.caller.PostJSON(ctx, "/v1/metrics/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Points, nil
}
