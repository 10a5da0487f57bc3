package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"saturn/internal/domain"
)

// CandleArchive stores candles in Parquet files on disk, one file per
// symbol, resolution, and year. It is the long-term cold copy of the
// candles table; the relational rows stay authoritative for watermarks.
type CandleArchive struct {
	DataDir string
}

// NewCandleArchive creates an archive rooted at the given data directory.
func NewCandleArchive(dataDir string) *CandleArchive {
	return &CandleArchive{DataDir: dataDir}
}

// CandleRecord is the Parquet schema for archived candles.
type CandleRecord struct {
	Symbol     string  `parquet:"symbol"`
	Resolution string  `parquet:"resolution"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
}

// Append merges candles into the yearly archive files for a symbol and
// resolution. Candles already present for a timestamp are overwritten, so
// re-delivered pages converge instead of duplicating.
func (a *CandleArchive) Append(symbol, resolution string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	groups := make(map[int][]CandleRecord)
	for _, c := range candles {
		y := c.Time.UTC().Year()
		groups[y] = append(groups[y], CandleRecord{
			Symbol:     strings.ToUpper(symbol),
			Resolution: resolution,
			Timestamp:  c.Time.UnixMilli(),
			Open:       c.Open,
			High:       c.High,
			Low:        c.Low,
			Close:      c.Close,
			Volume:     c.Volume,
		})
	}

	for year, records := range groups {
		path := a.candlePath(symbol, resolution, year)

		// An existing year file that cannot be read must fail the append:
		// rewriting from the incoming page alone would drop its history.
		var existing []CandleRecord
		if _, err := os.Stat(path); err == nil {
			existing, err = readParquetFile[CandleRecord](path)
			if err != nil {
				return fmt.Errorf("reading archive for %s/%s/%d: %w", symbol, resolution, year, err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking archive for %s/%s/%d: %w", symbol, resolution, year, err)
		}
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing archive for %s/%s/%d: %w", symbol, resolution, year, err)
		}
	}
	return nil
}

// Read returns archived candles for a symbol and resolution within
// [start, end), sorted by timestamp. Missing year files are skipped.
func (a *CandleArchive) Read(symbol, resolution string, start, end time.Time) ([]domain.Candle, error) {
	var out []domain.Candle
	for year := start.Year(); year <= end.Year(); year++ {
		path := a.candlePath(symbol, resolution, year)
		records, err := readParquetFile[CandleRecord](path)
		if err != nil {
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if !ts.Before(start) && ts.Before(end) {
				out = append(out, domain.Candle{
					Time:   ts,
					Open:   r.Open,
					High:   r.High,
					Low:    r.Low,
					Close:  r.Close,
					Volume: r.Volume,
				})
			}
		}
	}
	return out, nil
}

// ListSymbols lists all symbols with archived candles.
func (a *CandleArchive) ListSymbols() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(a.DataDir, "candles"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// candlePath returns the filesystem path for an archive file.
// Layout: <dataDir>/candles/<SYMBOL>/<resolution>/<YYYY>.parquet
func (a *CandleArchive) candlePath(symbol, resolution string, year int) string {
	return filepath.Join(a.DataDir, "candles", strings.ToUpper(symbol), resolution,
		fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeCandleRecords deduplicates candle records by timestamp, preferring
// incoming records over existing ones. Results are sorted by timestamp.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	seen := make(map[int64]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
