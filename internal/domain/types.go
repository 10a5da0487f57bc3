// Package domain defines the core value types shared by the crawl engine:
// series identities, fetch windows, record shapes, and the per-series
// crawl policy (catch-up cadence, backfill horizon).
package domain

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Instruments
// ---------------------------------------------------------------------------

// InstrumentKind distinguishes equity and crypto instruments. Crypto
// instruments have no filings or fundamentals series.
type InstrumentKind string

const (
	KindStock  InstrumentKind = "stock"
	KindCrypto InstrumentKind = "crypto"
)

// Instrument is a tracked symbol. IPO is zero when unknown (e.g. crypto).
type Instrument struct {
	ID          int64          `json:"id"`
	Symbol      string         `json:"symbol"`
	Name        string         `json:"name,omitempty"`
	Kind        InstrumentKind `json:"kind"`
	Exchange    string         `json:"exchange,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	IPO         time.Time      `json:"ipo,omitzero"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Series identity
// ---------------------------------------------------------------------------

// SeriesType identifies one data series of an instrument.
type SeriesType string

const (
	SeriesCandles            SeriesType = "candles"
	SeriesDividends          SeriesType = "dividends"
	SeriesSplits             SeriesType = "splits"
	SeriesEarnings           SeriesType = "earnings"
	SeriesFilingSentiments   SeriesType = "filing_sentiments"
	SeriesUpgradesDowngrades SeriesType = "upgrades_downgrades"
	SeriesBalanceSheets      SeriesType = "balance_sheets"
	SeriesIncomeStatements   SeriesType = "income_statements"
	SeriesCashFlows          SeriesType = "cash_flows"
	SeriesSimilarities       SeriesType = "similarities"
	SeriesTrends             SeriesType = "trends"
	SeriesEPSSurprises       SeriesType = "eps_surprises"
	SeriesEPSEstimates       SeriesType = "eps_estimates"
	SeriesRevenueEstimates   SeriesType = "revenue_estimates"
	SeriesNews               SeriesType = "news"
)

// SeriesClass groups series by their pagination semantics.
type SeriesClass string

const (
	// ClassCandle series take a date window and a resolution.
	ClassCandle SeriesClass = "candle"
	// ClassRanged series take a date window but no resolution.
	ClassRanged SeriesClass = "ranged"
	// ClassBatch series return their full history in a single call; the
	// window is accepted but ignored by the provider.
	ClassBatch SeriesClass = "batch"
)

// Cadence is how often a series is caught up by the periodic scheduler.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// SeriesKey is the stable identity of one (instrument, series) pair.
// Resolution is set only for candle series. Immutable once created; it is
// the unit of watermarks, idempotency keys, and backfill chains.
type SeriesKey struct {
	InstrumentID int64      `json:"instrument_id"`
	Symbol       string     `json:"symbol"`
	Series       SeriesType `json:"series"`
	Resolution   string     `json:"resolution,omitempty"`
}

// String renders the key for logs and metric labels.
func (k SeriesKey) String() string {
	if k.Resolution != "" {
		return fmt.Sprintf("%s/%s/%s", k.Symbol, k.Series, k.Resolution)
	}
	return fmt.Sprintf("%s/%s", k.Symbol, k.Series)
}

// Class returns the pagination class of the key's series.
func (k SeriesKey) Class() SeriesClass {
	switch k.Series {
	case SeriesCandles:
		return ClassCandle
	case SeriesDividends, SeriesSplits, SeriesEarnings, SeriesFilingSentiments,
		SeriesUpgradesDowngrades, SeriesNews:
		return ClassRanged
	default:
		return ClassBatch
	}
}

// ---------------------------------------------------------------------------
// Windows
// ---------------------------------------------------------------------------

// Window is a half-open time interval [Start, End) passed to one fetch.
// Windows are created fresh for every controller step and never persisted.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the window is well-formed (Start < End).
func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

// Inverted reports whether Start is strictly after End, which can only
// happen through malformed input, never through window narrowing.
func (w Window) Inverted() bool {
	return w.Start.After(w.End)
}

// Exhausted reports whether the window has been narrowed to the point
// where advancing Start by minStep would meet or pass End. An exhausted
// window means no more work.
func (w Window) Exhausted(minStep time.Duration) bool {
	return !w.Start.Add(minStep).Before(w.End)
}

// ClampStart raises Start to floor if it currently lies before it.
func (w Window) ClampStart(floor time.Time) Window {
	if !floor.IsZero() && w.Start.Before(floor) {
		w.Start = floor
	}
	return w
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Record is a dated item returned by a series source. Records within one
// page are not assumed sorted.
type Record interface {
	// Date returns the record's timestamp, used for windowing, watermark
	// comparison, and min-date progress computation.
	Date() time.Time
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Date implements Record.
func (c Candle) Date() time.Time { return c.Time }

// Document is a dated item with a provider-specific payload, covering
// every non-candle series (dividends, statements, filings, news, ...).
// ID is the provider's natural identifier when one exists; when empty the
// sink derives the idempotency key from the timestamp.
type Document struct {
	Time   time.Time
	ID     string
	Fields map[string]any
}

// Date implements Record.
func (d Document) Date() time.Time { return d.Time }

// NaturalKey returns the idempotency key used by sinks: the provider id
// when present, otherwise the timestamp.
func (d Document) NaturalKey() string {
	if d.ID != "" {
		return d.ID
	}
	return d.Time.UTC().Format(time.RFC3339)
}

// MinDate returns the earliest date over records. The page is not assumed
// sorted or in-window. ok is false for an empty page.
func MinDate(records []Record) (min time.Time, ok bool) {
	for _, r := range records {
		d := r.Date()
		if !ok || d.Before(min) {
			min = d
			ok = true
		}
	}
	return min, ok
}
