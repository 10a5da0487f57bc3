// Package alpaca adapts the Alpaca market-data API: candles for US
// equities and the curated news series.
package alpaca

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"saturn/internal/crawl"
	"saturn/internal/domain"
	"saturn/internal/fabric"
	"saturn/internal/ratelimit"
)

// DefaultWindows returns the limiter window for the Alpaca free plan:
// 200 requests per minute.
func DefaultWindows(prefix string) []ratelimit.Window {
	return []ratelimit.Window{
		{Capacity: 200, Period: time.Minute, Retry: 3 * time.Second, Key: prefix + ":minute"},
	}
}

// Compile-time interface check.
var _ crawl.SeriesSource = (*Client)(nil)

// Config carries the client's credentials and collaborators.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // market-data endpoint override, empty for production
	Limiter   *ratelimit.Limiter
}

// Client serves candle and news series from Alpaca.
type Client struct {
	md      *marketdata.Client
	limiter *ratelimit.Limiter
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	return &Client{
		md:      marketdata.NewClient(opts),
		limiter: cfg.Limiter,
	}
}

// FetchPage serves candle and news pages; other series are not Alpaca's.
// One admission covers one SDK call, which may page through several HTTP
// requests for a deep window; TotalLimit keeps news to a single page,
// bars can overshoot the per-minute window by the extra pages.
func (c *Client) FetchPage(ctx context.Context, key domain.SeriesKey, w domain.Window) ([]domain.Record, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("alpaca: acquiring limiter: %w", err)
	}
	switch key.Series {
	case domain.SeriesCandles:
		tf, err := timeFrameFor(key.Resolution)
		if err != nil {
			return nil, fabric.Fatal(err)
		}
		bars, err := c.md.GetBars(key.Symbol, marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     w.Start,
			End:       w.End,
		})
		if err != nil {
			return nil, fmt.Errorf("alpaca: fetching bars for %s: %w", key, err)
		}
		return barsToRecords(bars), nil
	case domain.SeriesNews:
		news, err := c.md.GetNews(marketdata.GetNewsRequest{
			Symbols:        []string{key.Symbol},
			Start:          w.Start,
			End:            w.End,
			TotalLimit:     50,
			IncludeContent: true,
			Sort:           marketdata.SortAsc,
		})
		if err != nil {
			return nil, fmt.Errorf("alpaca: fetching news for %s: %w", key, err)
		}
		return newsToRecords(news), nil
	default:
		return nil, fabric.Fatalf("alpaca: unsupported series %q", key.Series)
	}
}

// timeFrameFor maps a candle resolution to the Alpaca timeframe.
func timeFrameFor(resolution string) (marketdata.TimeFrame, error) {
	switch resolution {
	case "1":
		return marketdata.OneMin, nil
	case "5":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "30":
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case "60":
		return marketdata.OneHour, nil
	case "D":
		return marketdata.OneDay, nil
	case "W":
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case "M":
		return marketdata.NewTimeFrame(1, marketdata.Month), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("alpaca: unknown resolution %q", resolution)
	}
}

func barsToRecords(bars []marketdata.Bar) []domain.Record {
	records := make([]domain.Record, 0, len(bars))
	for _, b := range bars {
		records = append(records, domain.Candle{
			Time:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return records
}

func newsToRecords(news []marketdata.News) []domain.Record {
	records := make([]domain.Record, 0, len(news))
	for _, n := range news {
		body := n.Content
		if body == "" {
			body = n.Summary
		}
		records = append(records, domain.Document{
			Time: n.CreatedAt.UTC(),
			ID:   strconv.Itoa(n.ID),
			Fields: map[string]any{
				"headline": n.Headline,
				"author":   n.Author,
				"source":   n.Source,
				"url":      n.URL,
				"content":  body,
			},
		})
	}
	return records
}
