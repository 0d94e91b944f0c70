// Package regportal talks to a regulator's electronic filing portal.
package regportal

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/adapter/finhttp"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
	"github.com/ledgerline/ledgerline/internal/resilience"
)

// FilingRequest lodges a regulatory submission with the portal.
type FilingRequest struct {
	Regulator  string   `json:"regulator"`
	FilingType string   `json:"filing_type"`
	Period     string   `json:"period"`
	Documents  []string `json:"documents,omitempty"`
}

// FilingResponse acknowledges a lodged submission.
type FilingResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// CalendarEntry is one upcoming submission window on the filing calendar.
type CalendarEntry struct {
	Regulator  string `json:"regulator"`
	FilingType string `json:"filing_type"`
	Period     string `json:"period"`
	OpensAt    string `json:"opens_at,omitempty"`
	DueDate    string `json:"due_date"`
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

// SubmitFiling lodges a submission with the regulator's portal.
func (c *Client) SubmitFiling(ctx context.Context, req FilingRequest) (*FilingResponse, error) {
	var resp FilingResponse
	if err := c.caller.PostJSON(ctx, "/v1/submissions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetFilingCalendar lists upcoming submission deadlines for a regulator.
func (c *Client) GetFilingCalendar(ctx context.Context, regulator string) ([]CalendarEntry, error) {
	var resp struct {
		Entries []CalendarEntry `json:"entries"`
	}
	if err := c.caller.GetJSON(ctx, "/v1/calendar?regulator="+regulator, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}
