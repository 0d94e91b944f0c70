// Package finhttp provides the shared HTTP plumbing for connector clients.
// Each external financial system gets a thin typed client built on Caller.
package finhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ledgerline/ledgerline/internal/port/finclient"
	"github.com/ledgerline/ledgerline/internal/resilience"
)

// Caller issues JSON requests against one connector endpoint.
type Caller struct {
	cfg        finclient.Config
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewCaller creates a Caller from a connector client config.
func NewCaller(cfg finclient.Config) *Caller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = finclient.DefaultTimeout
	}
	return &Caller{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Caller) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// PostJSON sends body as JSON to path and decodes the response into out.
// Pass a nil out to ignore the response payload.
func (c *Caller) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, data, out)
}

// GetJSON issues a GET against path and decodes the response into out.
func (c *Caller) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Caller) do(ctx context.Context, method, path string, body []byte, out any) error {
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		if c.cfg.TenantID != "" {
			req.Header.Set("X-Tenant-ID", c.cfg.TenantID)
		}
		for k, v := range c.cfg.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() {
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				slog.Warn("connector response drain failed", "error", err)
			}
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("connector API error %d: %s", resp.StatusCode, string(data))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}
