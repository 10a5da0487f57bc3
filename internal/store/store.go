// Package store persists crawled data: instruments and candles in
// relational tables, document series as JSON rows, feed items by id, and
// a Parquet archive for long-term candle storage. All writes are
// idempotent by natural key; the watermark of a series is derived from
// its most recent persisted row, never stored separately.
package store

import (
	"context"

	"saturn/internal/domain"
)

// InstrumentStore persists and retrieves tracked instruments.
type InstrumentStore interface {
	// InsertInstrument stores a new instrument and returns its id.
	InsertInstrument(ctx context.Context, inst *domain.Instrument) (int64, error)

	// GetInstrument returns the instrument for a symbol, or nil when the
	// symbol is not tracked.
	GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error)

	// ListInstruments returns all tracked instruments.
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)
}
