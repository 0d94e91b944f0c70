// Package grc talks to a governance, risk and compliance platform.
package grc

import (
	"context"

	"github.com/ledgerline/ledgerline/internal/adapter/finhttp"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
	"github.com/ledgerline/ledgerline/internal/resilience"
)

// RiskRequest creates or updates one entry in the risk register.
type RiskRequest struct {
	RiskRef    string `json:"risk_ref"`
	Title      string `json:"title"`
	Severity   string `json:"severity,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Mitigation string `json:"mitigation,omitempty"`
	TestResult string `json:"test_result,omitempty"`
}

// RiskResponse acknowledges a risk register change.
type RiskResponse struct {
	RiskRef string `json:"risk_ref"`
	Status  string `json:"status"`
}

// WalkthroughRequest schedules an audit walkthrough for a process.
type WalkthroughRequest struct {
	Engagement string   `json:"engagement"`
	Process    string   `json:"process"`
	Auditor    string   `json:"auditor,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
}

// WalkthroughResponse acknowledges a scheduled walkthrough.
type WalkthroughResponse struct {
	WalkthroughID string `json:"walkthrough_id"`
	Status        string `json:"status"`
}

// ControlDeadline is one upcoming control testing or certification date.
type ControlDeadline struct {
	ControlRef string `json:"control_ref"`
	Activity   string `json:"activity"`
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

// UpsertRisk writes a risk register entry keyed by its reference.
func (c *Client) UpsertRisk(ctx context.Context, req RiskRequest) (*RiskResponse, error) {
	var resp RiskResponse
	if err := c.caller.PostJSON(ctx, "/v1/risks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateWalkthrough schedules a walkthrough within an audit engagement.
func (c *Client) CreateWalkthrough(ctx context.Context, req WalkthroughRequest) (*WalkthroughResponse, error) {
	var resp WalkthroughResponse
	if err := c.caller.PostJSON(ctx, "/v1/walkthroughs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetControlDeadlines lists upcoming control activity deadlines.
func (c *Client) GetControlDeadlines(ctx context.Context) ([]ControlDeadline, error) {
	var resp struct {
		Deadlines []ControlDeadline `json:"deadlines"`
	}
	if err := c.caller.GetJSON(ctx, "/v1/controls/deadlines", &resp); err != nil {
		return nil, err
	}
	return resp.Deadlines, nil
}
