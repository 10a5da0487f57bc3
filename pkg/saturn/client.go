// Package saturn provides a Go SDK for the saturn-server API.
package saturn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"saturn/internal/domain"
)

// Instrument mirrors the server's instrument representation.
type Instrument = domain.Instrument

// Client talks to a saturn-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new saturn API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("saturn: %s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("saturn: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterInstrument starts tracking a symbol. created reports whether
// the symbol was new; re-registering an existing symbol is not an error.
func (c *Client) RegisterInstrument(ctx context.Context, symbol, kind string) (inst *Instrument, created bool, err error) {
	q := url.Values{"symbol": {symbol}}
	if kind != "" {
		q.Set("kind", kind)
	}
	var resp struct {
		Instrument *Instrument `json:"instrument"`
		Created    bool        `json:"created"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/instruments", q, &resp); err != nil {
		return nil, false, err
	}
	return resp.Instrument, resp.Created, nil
}

// ListInstruments returns every tracked instrument.
func (c *Client) ListInstruments(ctx context.Context) ([]Instrument, error) {
	var resp struct {
		Instruments []Instrument `json:"instruments"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/instruments", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Instruments, nil
}

// Status returns the server's status report as raw JSON.
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
