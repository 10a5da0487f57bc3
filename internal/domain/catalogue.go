package domain

import "time"

// CandleResolutions are the resolutions gathered for every candle-bearing
// instrument, in provider notation (minutes, then daily/weekly/monthly).
var CandleResolutions = []string{"1", "5", "15", "30", "60", "D", "W", "M"}

// Day is the unit of window narrowing: a window whose remaining span is
// under one day is exhausted.
const Day = 24 * time.Hour

// HorizonYears is the default lookback for full-history backfill when the
// instrument's listing date is older (or unknown).
const HorizonYears = 10

// SeriesSpec describes the crawl policy of one series type.
type SeriesSpec struct {
	Type    SeriesType
	Cadence Cadence
	// StocksOnly series are skipped for crypto instruments.
	StocksOnly bool
}

// Catalogue lists every series gathered per instrument, mirroring the
// fan-out performed at registration and by the periodic triggers.
var Catalogue = []SeriesSpec{
	{Type: SeriesCandles, Cadence: CadenceDaily},
	{Type: SeriesNews, Cadence: CadenceDaily, StocksOnly: true},
	{Type: SeriesDividends, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesSplits, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesEarnings, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesFilingSentiments, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesUpgradesDowngrades, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesBalanceSheets, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesIncomeStatements, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesCashFlows, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesSimilarities, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesTrends, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesEPSSurprises, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesEPSEstimates, Cadence: CadenceMonthly, StocksOnly: true},
	{Type: SeriesRevenueEstimates, Cadence: CadenceMonthly, StocksOnly: true},
}

// CandleResolutionsFor returns the candle resolutions refreshed at a
// cadence: intraday and daily bars every day, weekly and monthly bars on
// their own cycle.
func CandleResolutionsFor(c Cadence) []string {
	switch c {
	case CadenceDaily:
		return []string{"1", "5", "15", "30", "60", "D"}
	case CadenceWeekly:
		return []string{"W"}
	case CadenceMonthly:
		return []string{"M"}
	default:
		return nil
	}
}

// SeriesFor returns the catalogue entries applicable to an instrument kind.
func SeriesFor(kind InstrumentKind) []SeriesSpec {
	if kind == KindStock {
		return Catalogue
	}
	specs := make([]SeriesSpec, 0, len(Catalogue))
	for _, s := range Catalogue {
		if !s.StocksOnly {
			specs = append(specs, s)
		}
	}
	return specs
}

// HorizonFor computes the oldest date backfill must reach for an
// instrument: the later of now minus HorizonYears and the listing date.
func HorizonFor(now, ipo time.Time) time.Time {
	h := now.AddDate(-HorizonYears, 0, 0)
	if !ipo.IsZero() && ipo.After(h) {
		return ipo
	}
	return h
}

// InitialWindow builds the first backfill window for a key: the full
// [horizon, now) span. Providers that cap response depth return only
// their newest rows for a wide window; the backward walk narrows End
// toward the horizon one page at a time.
func (k SeriesKey) InitialWindow(now, horizon time.Time) Window {
	return Window{Start: now.AddDate(-HorizonYears, 0, 0), End: now}.ClampStart(horizon)
}
