// Package register tracks new instruments: it verifies the symbol with
// the provider, persists it, and seeds the initial backfill chain for
// every series the instrument carries.
package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"saturn/internal/crawl"
	"saturn/internal/domain"
	"saturn/internal/fabric"
	"saturn/internal/store"
)

// ErrUnknownSymbol is returned when the provider has no profile for the
// requested symbol.
var ErrUnknownSymbol = errors.New("register: unknown symbol")

// ProfileSource resolves a symbol to an instrument, nil when the symbol
// does not exist.
type ProfileSource interface {
	LookupInstrument(ctx context.Context, symbol string) (*domain.Instrument, error)
}

// Registrar registers instruments and seeds their backfill chains.
type Registrar struct {
	profiles ProfileSource
	store    store.InstrumentStore
	queue    fabric.Queue
	now      func() time.Time
	log      *slog.Logger
}

// New creates a Registrar.
func New(profiles ProfileSource, s store.InstrumentStore, queue fabric.Queue) *Registrar {
	return &Registrar{
		profiles: profiles,
		store:    s,
		queue:    queue,
		now:      time.Now,
		log:      slog.Default().With("component", "register"),
	}
}

// Register tracks a symbol. Re-registering an already-tracked symbol
// returns the stored instrument without reseeding; created reports
// whether a new instrument was added.
func (r *Registrar) Register(ctx context.Context, symbol string, kind domain.InstrumentKind) (inst *domain.Instrument, created bool, err error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, false, fmt.Errorf("register: empty symbol")
	}

	existing, err := r.store.GetInstrument(ctx, symbol)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if kind == domain.KindStock {
		inst, err = r.profiles.LookupInstrument(ctx, symbol)
		if err != nil {
			return nil, false, err
		}
		if inst == nil {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
	} else {
		// Crypto symbols carry an exchange prefix and have no profile.
		inst = &domain.Instrument{Symbol: symbol, Kind: kind}
	}
	inst.Symbol = symbol

	if _, err := r.store.InsertInstrument(ctx, inst); err != nil {
		return nil, false, err
	}

	if err := r.seed(ctx, inst); err != nil {
		return nil, false, err
	}

	r.log.Info("instrument registered",
		"symbol", inst.Symbol,
		"kind", inst.Kind,
		"ipo", inst.IPO,
	)
	return inst, true, nil
}

// seed submits the first backfill window for every series of the
// instrument. Candle series fan out across all resolutions.
func (r *Registrar) seed(ctx context.Context, inst *domain.Instrument) error {
	now := r.now().UTC()
	horizon := domain.HorizonFor(now, inst.IPO)

	for _, spec := range domain.SeriesFor(inst.Kind) {
		resolutions := []string{""}
		if spec.Type == domain.SeriesCandles {
			resolutions = domain.CandleResolutions
		}
		for _, res := range resolutions {
			key := domain.SeriesKey{
				InstrumentID: inst.ID,
				Symbol:       inst.Symbol,
				Series:       spec.Type,
				Resolution:   res,
			}
			w := key.InitialWindow(now, horizon)
			if !w.Valid() {
				continue
			}
			if err := crawl.SubmitBackfill(ctx, r.queue, key, w); err != nil {
				return fmt.Errorf("register: seeding %s: %w", key, err)
			}
		}
	}
	return nil
}
