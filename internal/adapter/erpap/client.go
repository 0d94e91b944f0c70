// Package erpap talks to the accounts payable module of an ERP system.
package erpap

import (
	"context"
	"strconv"

	"github.com/ledgerline/ledgerline/internal/adapter/finhttp"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
	"github.com/ledgerline/ledgerline/internal/resilience"
)

// InvoiceRequest registers a vendor invoice for processing.
type InvoiceRequest struct {
	Vendor        string  `json:"vendor"`
	InvoiceNumber string  `json:"invoice_number"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	DueDate       string  `json:"due_date,omitempty"`
	CostCenter    string  `json:"cost_center,omitempty"`
}

// InvoiceResponse is the ERP's acknowledgement of a registered invoice.
type InvoiceResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// DueInvoice is one open invoice approaching its payment date.
type DueInvoice struct {
	Vendor        string  `json:"vendor"`
	InvoiceNumber string  `json:"invoice_number"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	DueDate       string  `json:"due_date"`
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

// CreateInvoice registers an invoice in the ERP payables workflow.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResponse, error) {
	var resp InvoiceResponse
	if err := c.caller.PostJSON(ctx, "/v1/invoices", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDueInvoices lists open invoices due within the given number of days.
func (c *Client) GetDueInvoices(ctx context.Context, withinDays int) ([]DueInvoice, error) {
	var resp struct {
		Invoices []DueInvoice `json:"invoices"`
	}
	path := "/v1/invoices/due"
	if withinDays > 0 {
		path += "?within_days=" + strconv.Itoa(withinDays)
	}
	if err := c.caller.GetJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Invoices, nil
}
