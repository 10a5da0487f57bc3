// Package briefwire is the client for the Briefwire editorial feed, a
// reverse-chronological cursor API with no date filter. It backs the
// missed-item catch-up for the daily-brief, insight, and other feeds.
package briefwire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"saturn/internal/crawl"
	"saturn/internal/domain"
	"saturn/internal/ratelimit"
)

// Feeds are the content streams the API exposes.
var Feeds = []string{"daily_brief", "insight", "other"}

// DefaultWindows returns the limiter windows for the Briefwire API: a
// 30-per-minute burst window and a 1000-per-day quota window.
func DefaultWindows(prefix string) []ratelimit.Window {
	return []ratelimit.Window{
		{Capacity: 30, Period: time.Minute, Retry: time.Second, Key: prefix + ":minute"},
		{Capacity: 1000, Period: 24 * time.Hour, Retry: 30 * time.Minute, Key: prefix + ":day"},
	}
}

// Compile-time interface check.
var _ crawl.FeedSource = (*Client)(nil)

// Config carries the client's credentials and collaborators.
type Config struct {
	Token   string
	BaseURL string
	Limiter *ratelimit.Limiter
	HTTP    *http.Client
}

// Client calls the Briefwire REST API.
type Client struct {
	baseURL string
	token   string
	limiter *ratelimit.Limiter
	http    *http.Client
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		limiter: cfg.Limiter,
		http:    cfg.HTTP,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.briefwire.com"
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("briefwire: acquiring limiter: %w", err)
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("briefwire: building request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("briefwire: requesting %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("briefwire: %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("briefwire: decoding %s response: %w", path, err)
	}
	return nil
}

type listResponse struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// ListPage returns one page of item ids, most recent first, and the
// cursor for the page after it. An empty next cursor means the feed is
// exhausted.
func (c *Client) ListPage(ctx context.Context, feed, cursor string) ([]string, string, error) {
	q := url.Values{"count": {"10"}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp listResponse
	if err := c.get(ctx, "/v1/feeds/"+url.PathEscape(feed)+"/items", q, &resp); err != nil {
		return nil, "", err
	}
	ids := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		ids = append(ids, it.ID)
	}
	return ids, resp.NextCursor, nil
}

type itemResponse struct {
	ID          string         `json:"id"`
	PublishedAt time.Time      `json:"published_at"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Tags        []string       `json:"tags"`
	Extra       map[string]any `json:"extra"`
}

// FetchItem retrieves one feed item by id.
func (c *Client) FetchItem(ctx context.Context, feed, id string) (domain.Record, error) {
	var resp itemResponse
	if err := c.get(ctx, "/v1/items/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	fields := map[string]any{
		"feed":  feed,
		"title": resp.Title,
		"body":  resp.Body,
		"tags":  resp.Tags,
	}
	for k, v := range resp.Extra {
		fields[k] = v
	}
	return domain.Document{
		Time:   resp.PublishedAt.UTC(),
		ID:     resp.ID,
		Fields: fields,
	}, nil
}
