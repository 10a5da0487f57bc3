package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"saturn/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "saturn.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSQLiteInstrumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inst := &domain.Instrument{
		Symbol:   "AAPL",
		Name:     "Apple Inc",
		Kind:     domain.KindStock,
		Exchange: "NASDAQ",
		Currency: "USD",
		IPO:      time.Date(1980, 12, 12, 0, 0, 0, 0, time.UTC),
	}
	id, err := s.InsertInstrument(ctx, inst)
	if err != nil {
		t.Fatalf("InsertInstrument: %v", err)
	}
	if id == 0 {
		t.Fatal("InsertInstrument returned id 0")
	}

	got, err := s.GetInstrument(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetInstrument: %v", err)
	}
	if got == nil {
		t.Fatal("GetInstrument returned nil for stored symbol")
	}
	if got.ID != id || got.Name != "Apple Inc" || got.Kind != domain.KindStock {
		t.Errorf("GetInstrument = %+v", got)
	}
	if !got.IPO.Equal(inst.IPO) {
		t.Errorf("IPO = %v, want %v", got.IPO, inst.IPO)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}
}

func TestSQLiteGetInstrumentAbsent(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetInstrument(context.Background(), "NOPE")
	if err != nil {
		t.Fatalf("GetInstrument: %v", err)
	}
	if got != nil {
		t.Errorf("GetInstrument = %+v, want nil", got)
	}
}

func TestSQLiteListInstruments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, sym := range []string{"MSFT", "AAPL"} {
		if _, err := s.InsertInstrument(ctx, &domain.Instrument{Symbol: sym, Kind: domain.KindStock}); err != nil {
			t.Fatalf("InsertInstrument(%s): %v", sym, err)
		}
	}

	got, err := s.ListInstruments(ctx)
	if err != nil {
		t.Fatalf("ListInstruments: %v", err)
	}
	if len(got) != 2 || got[0].Symbol != "AAPL" || got[1].Symbol != "MSFT" {
		t.Errorf("ListInstruments order = %v", got)
	}
}

func TestSQLiteCandleInsertIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := domain.SeriesKey{InstrumentID: 1, Symbol: "AAPL", Series: domain.SeriesCandles, Resolution: "D"}

	page := []domain.Record{
		domain.Candle{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 185, High: 186.5, Low: 184, Close: 185.5, Volume: 50000000},
		domain.Candle{Time: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: 185.5, High: 187, Low: 185, Close: 186, Volume: 45000000},
	}

	// Insert twice; the second delivery must not duplicate rows.
	if err := s.Insert(ctx, key, page); err != nil {
		t.Fatalf("Insert (first): %v", err)
	}
	if err := s.Insert(ctx, key, page); err != nil {
		t.Fatalf("Insert (second): %v", err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM candles`).Scan(&n); err != nil {
		t.Fatalf("counting candles: %v", err)
	}
	if n != 2 {
		t.Errorf("candle rows = %d, want 2", n)
	}

	wm, ok, err := s.Watermark(ctx, key)
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if !ok {
		t.Fatal("Watermark absent after insert")
	}
	if want := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC); !wm.Equal(want) {
		t.Errorf("Watermark = %v, want %v", wm, want)
	}
}

func TestSQLiteWatermarkAbsent(t *testing.T) {
	s := openTestStore(t)
	key := domain.SeriesKey{InstrumentID: 7, Symbol: "TSLA", Series: domain.SeriesDividends}

	_, ok, err := s.Watermark(context.Background(), key)
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if ok {
		t.Error("Watermark reported present for empty series")
	}
}

func TestSQLiteWatermarkScopedByResolution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	daily := domain.SeriesKey{InstrumentID: 1, Symbol: "AAPL", Series: domain.SeriesCandles, Resolution: "D"}
	hourly := domain.SeriesKey{InstrumentID: 1, Symbol: "AAPL", Series: domain.SeriesCandles, Resolution: "60"}

	if err := s.Insert(ctx, daily, []domain.Record{
		domain.Candle{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Close: 180},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	_, ok, err := s.Watermark(ctx, hourly)
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if ok {
		t.Error("hourly watermark present after daily-only insert")
	}
}

func TestSQLiteDocumentInsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := domain.SeriesKey{InstrumentID: 3, Symbol: "AAPL", Series: domain.SeriesDividends}

	page := []domain.Record{
		domain.Document{
			Time:   time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC),
			ID:     "div-2024-02-09",
			Fields: map[string]any{"amount": 0.24, "currency": "USD"},
		},
	}
	if err := s.Insert(ctx, key, page); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, key, page); err != nil {
		t.Fatalf("Insert (replay): %v", err)
	}

	var n int
	var payload string
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM series_records`).Scan(&n); err != nil {
		t.Fatalf("counting records: %v", err)
	}
	if n != 1 {
		t.Errorf("series_records rows = %d, want 1", n)
	}
	if err := s.db.QueryRow(`SELECT payload FROM series_records`).Scan(&payload); err != nil {
		t.Fatalf("reading payload: %v", err)
	}
	if payload == "" || payload == "null" {
		t.Errorf("payload = %q", payload)
	}
}

func TestSQLiteFeedItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	items := []domain.Document{
		{Time: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), ID: "n1"},
		{Time: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC), ID: "n2"},
		{Time: time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC), ID: "n3"},
	}
	for _, it := range items {
		if err := s.InsertItem(ctx, "briefs", it); err != nil {
			t.Fatalf("InsertItem(%s): %v", it.ID, err)
		}
	}
	// Replay must be a no-op.
	if err := s.InsertItem(ctx, "briefs", items[0]); err != nil {
		t.Fatalf("InsertItem (replay): %v", err)
	}

	ids, err := s.RecentIDs(ctx, "briefs", 2)
	if err != nil {
		t.Fatalf("RecentIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "n3" || ids[1] != "n2" {
		t.Errorf("RecentIDs = %v, want [n3 n2]", ids)
	}

	other, err := s.RecentIDs(ctx, "other-feed", 10)
	if err != nil {
		t.Fatalf("RecentIDs (other): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("RecentIDs for unused feed = %v", other)
	}
}

func TestSQLiteInsertMirrorsArchive(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	s.AttachArchive(NewCandleArchive(dir))
	ctx := context.Background()
	key := domain.SeriesKey{InstrumentID: 1, Symbol: "AAPL", Series: domain.SeriesCandles, Resolution: "D"}

	if err := s.Insert(ctx, key, []domain.Record{
		domain.Candle{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185.5},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := NewCandleArchive(dir).Read("AAPL", "D",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 || got[0].Close != 185.5 {
		t.Errorf("archived candles = %v", got)
	}
}
