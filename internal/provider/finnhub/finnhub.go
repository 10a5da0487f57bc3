// Package finnhub is the Finnhub REST client. It serves candles, corporate
// actions, fundamentals, and estimate series, with every request admitted
// through the shared rate limiter first.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"saturn/internal/crawl"
	"saturn/internal/domain"
	"saturn/internal/fabric"
	"saturn/internal/ratelimit"
)

const defaultBaseURL = "https://finnhub.io/api/v1"

// DefaultWindows returns the limiter windows for the Finnhub API plan:
// a 30-per-second burst window and a 150-per-minute quota window.
func DefaultWindows(prefix string) []ratelimit.Window {
	return []ratelimit.Window{
		{Capacity: 30, Period: time.Second, Retry: 500 * time.Millisecond, Key: prefix + ":short"},
		{Capacity: 150, Period: time.Minute, Retry: 5 * time.Second, Key: prefix + ":long"},
	}
}

// Compile-time interface check.
var _ crawl.SeriesSource = (*Client)(nil)

// Config carries the client's credentials and collaborators.
type Config struct {
	APIKey  string
	BaseURL string // defaults to the public API when empty
	Limiter *ratelimit.Limiter
	HTTP    *http.Client // defaults to a 30s-timeout client when nil
}

// Client calls the Finnhub REST API.
type Client struct {
	baseURL string
	apiKey  string
	limiter *ratelimit.Limiter
	http    *http.Client
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		limiter: cfg.Limiter,
		http:    cfg.HTTP,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// get acquires the limiter, performs one GET, and decodes the JSON body
// into out. Limiter errors and non-200 statuses propagate to the caller.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("finnhub: acquiring limiter: %w", err)
	}
	q.Set("token", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("finnhub: building request for %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("finnhub: requesting %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("finnhub: %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("finnhub: decoding %s response: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// SeriesSource implementation
// ---------------------------------------------------------------------------

// FetchPage dispatches the key's series to the matching endpoint. Window
// bounds are forwarded for windowed endpoints and ignored for series that
// return their full history in one call.
func (c *Client) FetchPage(ctx context.Context, key domain.SeriesKey, w domain.Window) ([]domain.Record, error) {
	switch key.Series {
	case domain.SeriesCandles:
		candles, err := c.Candles(ctx, key.Symbol, key.Resolution, w.Start, w.End)
		if err != nil {
			return nil, err
		}
		records := make([]domain.Record, len(candles))
		for i, candle := range candles {
			records[i] = candle
		}
		return records, nil
	case domain.SeriesDividends:
		return c.Dividends(ctx, key.Symbol, w.Start, w.End)
	case domain.SeriesSplits:
		return c.Splits(ctx, key.Symbol, w.Start, w.End)
	case domain.SeriesEarnings:
		return c.EarningsCalendar(ctx, key.Symbol, w.Start, w.End)
	case domain.SeriesFilingSentiments:
		return c.FilingSentiments(ctx, key.Symbol, w.Start, w.End)
	case domain.SeriesUpgradesDowngrades:
		return c.UpgradesDowngrades(ctx, key.Symbol, w.Start, w.End)
	case domain.SeriesSimilarities:
		return c.Similarities(ctx, key.Symbol)
	case domain.SeriesBalanceSheets:
		return c.Financials(ctx, key.Symbol, "bs")
	case domain.SeriesIncomeStatements:
		return c.Financials(ctx, key.Symbol, "ic")
	case domain.SeriesCashFlows:
		return c.Financials(ctx, key.Symbol, "cf")
	case domain.SeriesTrends:
		return c.Trends(ctx, key.Symbol)
	case domain.SeriesEPSSurprises:
		return c.EPSSurprises(ctx, key.Symbol)
	case domain.SeriesEPSEstimates:
		return c.Estimates(ctx, key.Symbol, "/stock/eps-estimate")
	case domain.SeriesRevenueEstimates:
		return c.Estimates(ctx, key.Symbol, "/stock/revenue-estimate")
	default:
		return nil, fabric.Fatalf("finnhub: unsupported series %q", key.Series)
	}
}

// ---------------------------------------------------------------------------
// Candles
// ---------------------------------------------------------------------------

type candleResponse struct {
	Status  string    `json:"s"`
	Times   []int64   `json:"t"`
	Opens   []float64 `json:"o"`
	Highs   []float64 `json:"h"`
	Lows    []float64 `json:"l"`
	Closes  []float64 `json:"c"`
	Volumes []float64 `json:"v"`
}

// Candles fetches OHLCV bars for [from, to). Crypto symbols carry an
// exchange prefix ("BINANCE:BTCUSDT") and go through the crypto endpoint.
// A "no_data" status is an empty page, not an error.
func (c *Client) Candles(ctx context.Context, symbol, resolution string, from, to time.Time) ([]domain.Candle, error) {
	path := "/stock/candle"
	if strings.Contains(symbol, ":") {
		path = "/crypto/candle"
	}
	q := url.Values{
		"symbol":     {symbol},
		"resolution": {resolution},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
		"format":     {"json"},
	}
	var resp candleResponse
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" || len(resp.Times) == 0 {
		return nil, nil
	}

	candles := make([]domain.Candle, 0, len(resp.Times))
	for i := range resp.Times {
		candles = append(candles, domain.Candle{
			Time:   time.Unix(resp.Times[i], 0).UTC(),
			Open:   resp.Opens[i],
			High:   resp.Highs[i],
			Low:    resp.Lows[i],
			Close:  resp.Closes[i],
			Volume: int64(resp.Volumes[i]),
		})
	}
	return candles, nil
}

// ---------------------------------------------------------------------------
// Corporate actions
// ---------------------------------------------------------------------------

// Dividends fetches dividend declarations for [from, to).
func (c *Client) Dividends(ctx context.Context, symbol string, from, to time.Time) ([]domain.Record, error) {
	var rows []map[string]any
	if err := c.get(ctx, "/stock/dividend", windowQuery(symbol, from, to), &rows); err != nil {
		return nil, err
	}
	return documentsFromRows(rows, "date", ""), nil
}

// Splits fetches share splits for [from, to).
func (c *Client) Splits(ctx context.Context, symbol string, from, to time.Time) ([]domain.Record, error) {
	var rows []map[string]any
	if err := c.get(ctx, "/stock/split", windowQuery(symbol, from, to), &rows); err != nil {
		return nil, err
	}
	return documentsFromRows(rows, "date", ""), nil
}

// EarningsCalendar fetches earnings announcements for [from, to).
func (c *Client) EarningsCalendar(ctx context.Context, symbol string, from, to time.Time) ([]domain.Record, error) {
	var resp struct {
		EarningsCalendar []map[string]any `json:"earningsCalendar"`
	}
	if err := c.get(ctx, "/calendar/earnings", windowQuery(symbol, from, to), &resp); err != nil {
		return nil, err
	}
	return documentsFromRows(resp.EarningsCalendar, "date", ""), nil
}

type filing struct {
	AccessNumber string `json:"accessNumber"`
	Form         string `json:"form"`
	AcceptedDate string `json:"acceptedDate"`
}

// FilingSentiments lists 10-K and 10-Q filings in [from, to) and fetches
// the sentiment report for each. Filings whose sentiment endpoint errors
// are skipped; the remaining reports are still returned.
func (c *Client) FilingSentiments(ctx context.Context, symbol string, from, to time.Time) ([]domain.Record, error) {
	var filings []filing
	for _, form := range []string{"10-K", "10-Q"} {
		q := windowQuery(symbol, from, to)
		q.Set("form", form)
		var page []filing
		if err := c.get(ctx, "/stock/filings", q, &page); err != nil {
			return nil, err
		}
		filings = append(filings, page...)
	}

	var records []domain.Record
	for _, f := range filings {
		accepted, ok := parseAnyDate(f.AcceptedDate)
		if !ok {
			continue
		}
		var resp struct {
			Sentiment map[string]any `json:"sentiment"`
		}
		q := url.Values{"accessNumber": {f.AccessNumber}}
		if err := c.get(ctx, "/stock/filings-sentiment", q, &resp); err != nil {
			continue
		}
		fields := map[string]any{
			"access_number": f.AccessNumber,
			"form":          f.Form,
		}
		for k, v := range resp.Sentiment {
			fields[strings.ReplaceAll(k, "-", "_")] = v
		}
		records = append(records, domain.Document{
			Time:   accepted,
			ID:     f.AccessNumber,
			Fields: fields,
		})
	}
	return records, nil
}

// UpgradesDowngrades fetches analyst rating changes for [from, to).
// Unlike the date strings elsewhere, the grade time is an epoch; rows
// without one are dropped.
func (c *Client) UpgradesDowngrades(ctx context.Context, symbol string, from, to time.Time) ([]domain.Record, error) {
	var rows []map[string]any
	if err := c.get(ctx, "/stock/upgrade-downgrade", windowQuery(symbol, from, to), &rows); err != nil {
		return nil, err
	}
	var records []domain.Record
	for _, row := range rows {
		epoch, ok := row["gradeTime"].(float64)
		if !ok {
			continue
		}
		ts := time.Unix(int64(epoch), 0).UTC()
		// Several firms can grade on the same day, so the key carries
		// the grading firm alongside the time.
		id := strconv.FormatInt(int64(epoch), 10)
		if company, ok := row["company"].(string); ok && company != "" {
			id += ":" + company
		}
		records = append(records, domain.Document{Time: ts, ID: id, Fields: row})
	}
	return records, nil
}

// ---------------------------------------------------------------------------
// Fundamentals and estimates
// ---------------------------------------------------------------------------

// Financials fetches one statement type ("bs", "ic", or "cf") at both
// annual and quarterly frequency. The exchange returns the full history
// regardless of window.
func (c *Client) Financials(ctx context.Context, symbol, statement string) ([]domain.Record, error) {
	var records []domain.Record
	for _, freq := range []string{"annual", "quarterly"} {
		q := url.Values{"symbol": {symbol}, "statement": {statement}, "freq": {freq}}
		var resp struct {
			Financials []map[string]any `json:"financials"`
		}
		if err := c.get(ctx, "/stock/financials", q, &resp); err != nil {
			return nil, err
		}
		records = append(records, documentsFromRows(resp.Financials, "period", freq)...)
	}
	return records, nil
}

// Similarities fetches the filing similarity index at both annual and
// quarterly frequency. Entries are keyed by filing access number.
func (c *Client) Similarities(ctx context.Context, symbol string) ([]domain.Record, error) {
	var records []domain.Record
	for _, freq := range []string{"annual", "quarterly"} {
		q := url.Values{"symbol": {symbol}, "freq": {freq}}
		var resp struct {
			Similarity []map[string]any `json:"similarity"`
		}
		if err := c.get(ctx, "/stock/similarity-index", q, &resp); err != nil {
			return nil, err
		}
		for _, row := range resp.Similarity {
			raw, _ := row["acceptedDate"].(string)
			date, ok := parseAnyDate(raw)
			if !ok {
				continue
			}
			row["freq"] = freq
			id, _ := row["accessNumber"].(string)
			if id == "" {
				id = freq + ":" + raw
			}
			records = append(records, domain.Document{Time: date, ID: id, Fields: row})
		}
	}
	return records, nil
}

// Trends fetches the full analyst recommendation history.
func (c *Client) Trends(ctx context.Context, symbol string) ([]domain.Record, error) {
	var rows []map[string]any
	if err := c.get(ctx, "/stock/recommendation", url.Values{"symbol": {symbol}}, &rows); err != nil {
		return nil, err
	}
	return documentsFromRows(rows, "period", ""), nil
}

// EPSSurprises fetches the full quarterly EPS surprise history.
func (c *Client) EPSSurprises(ctx context.Context, symbol string) ([]domain.Record, error) {
	var rows []map[string]any
	if err := c.get(ctx, "/stock/earnings", url.Values{"symbol": {symbol}}, &rows); err != nil {
		return nil, err
	}
	return documentsFromRows(rows, "period", ""), nil
}

// Estimates fetches an estimate series (EPS or revenue) at both annual
// and quarterly frequency.
func (c *Client) Estimates(ctx context.Context, symbol, path string) ([]domain.Record, error) {
	var records []domain.Record
	for _, freq := range []string{"annual", "quarterly"} {
		q := url.Values{"symbol": {symbol}, "freq": {freq}}
		var resp struct {
			Data []map[string]any `json:"data"`
		}
		if err := c.get(ctx, path, q, &resp); err != nil {
			return nil, err
		}
		records = append(records, documentsFromRows(resp.Data, "period", freq)...)
	}
	return records, nil
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// Profile is a company profile reduced to the fields registration needs.
type Profile struct {
	Symbol      string
	Name        string
	Exchange    string
	Currency    string
	IPO         time.Time
	Description string
}

type profileResponse struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	Exchange    string `json:"exchange"`
	Currency    string `json:"currency"`
	IPO         string `json:"ipo"`
	Description string `json:"description"`
}

// GetProfile fetches the company profile for a symbol, or nil when the
// symbol is unknown to the exchange.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*Profile, error) {
	var resp profileResponse
	if err := c.get(ctx, "/stock/profile", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return nil, err
	}
	if resp.Ticker == "" {
		return nil, nil
	}
	p := &Profile{
		Symbol:      resp.Ticker,
		Name:        resp.Name,
		Exchange:    resp.Exchange,
		Currency:    resp.Currency,
		Description: resp.Description,
	}
	if ipo, ok := parseAnyDate(resp.IPO); ok {
		p.IPO = ipo
	}
	return p, nil
}

// LookupInstrument shapes the company profile as an instrument, or nil
// when the symbol is unknown to the exchange.
func (c *Client) LookupInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	p, err := c.GetProfile(ctx, symbol)
	if err != nil || p == nil {
		return nil, err
	}
	return &domain.Instrument{
		Symbol:      p.Symbol,
		Name:        p.Name,
		Kind:        domain.KindStock,
		Exchange:    p.Exchange,
		Currency:    p.Currency,
		IPO:         p.IPO,
		Description: p.Description,
	}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func windowQuery(symbol string, from, to time.Time) url.Values {
	return url.Values{
		"symbol": {symbol},
		"from":   {from.UTC().Format("2006-01-02")},
		"to":     {to.UTC().Format("2006-01-02")},
	}
}

// documentsFromRows converts generic JSON rows into documents dated by
// dateField. Rows with a missing or unparseable date are dropped. A
// non-empty freq is folded into the row and its natural key, so annual
// and quarterly entries for the same period stay distinct.
func documentsFromRows(rows []map[string]any, dateField, freq string) []domain.Record {
	var records []domain.Record
	for _, row := range rows {
		raw, _ := row[dateField].(string)
		date, ok := parseAnyDate(raw)
		if !ok {
			continue
		}
		id := raw
		if freq != "" {
			row["freq"] = freq
			id = freq + ":" + raw
		}
		records = append(records, domain.Document{
			Time:   date,
			ID:     id,
			Fields: row,
		})
	}
	return records
}

// parseAnyDate accepts the date shapes Finnhub mixes across endpoints:
// plain dates, date-times, and RFC 3339.
func parseAnyDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
