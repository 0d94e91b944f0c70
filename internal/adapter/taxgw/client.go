// Package taxgw talks to a tax authority gateway for indirect tax filings.
package taxgw

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/adapter/finhttp"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
	"github.com/ledgerline/ledgerline/internal/resilience"
)

// FilingRequest describes a tax filing to lodge with the gateway.
type FilingRequest struct {
	Jurisdiction string  `json:"jurisdiction"`
	Period       string  `json:"period"`
	FilingType   string  `json:"filing_type"`
	NetAmount    float64 `json:"net_amount,omitempty"`
	Currency     string  `json:"currency,omitempty"`
}

// FilingResponse is the gateway's acknowledgement of a lodged filing.
type FilingResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	DueDate   string `json:"due_date,omitempty"`
}

// Deadline is one upcoming statutory deadline for a jurisdiction.
type Deadline struct {
	Jurisdiction string `json:"jurisdiction"`
	FilingType   string `json:"filing_type"`
	Period       string `json:"period"`
	DueDate      string `json:"due_date"`
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

// SubmitFiling lodges a prepared filing with the tax authority gateway.
func (c *Client) SubmitFiling(ctx context.Context, req FilingRequest) (*FilingResponse, error) {
	var resp FilingResponse
	if err := c.caller.PostJSON(ctx, "/v1/filings", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeadlines lists upcoming filing deadlines for a jurisdiction.
func (c *Client) GetDeadlines(ctx context.Context, jurisdiction string) ([]Deadline, error) {
	var resp struct {
		Deadlines []Deadline `json:"deadlines"`
	}
	if err := c.caller.GetJSON(ctx, "/v1/deadlines?jurisdiction="+jurisdiction, &resp); err != nil {
		return nil, err
	}
	return resp.Deadlines, nil
}
