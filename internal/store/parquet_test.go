package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"saturn/internal/domain"
)

func TestCandleArchivePath(t *testing.T) {
	a := NewCandleArchive("/data")

	got := a.candlePath("aapl", "D", 2024)
	want := filepath.Join("/data", "candles", "AAPL", "D", "2024.parquet")
	if got != want {
		t.Errorf("candlePath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestCandleArchiveAppendRead(t *testing.T) {
	a := NewCandleArchive(t.TempDir())

	candles := []domain.Candle{
		{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 185, High: 186.5, Low: 184, Close: 185.5, Volume: 50000000},
		{Time: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: 185.5, High: 187, Low: 185, Close: 186, Volume: 45000000},
	}
	if err := a.Append("AAPL", "D", candles); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := a.Read("AAPL", "D",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read returned %d candles, want 2", len(got))
	}
	if got[0].Close != 185.5 || got[1].Close != 186.0 {
		t.Errorf("closes = %v, %v", got[0].Close, got[1].Close)
	}
}

func TestCandleArchiveMerge(t *testing.T) {
	a := NewCandleArchive(t.TempDir())

	first := []domain.Candle{
		{Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Close: 403},
	}
	if err := a.Append("MSFT", "D", first); err != nil {
		t.Fatalf("Append (first): %v", err)
	}

	// Second append for the same year file: one new timestamp, one
	// replacing the existing row.
	second := []domain.Candle{
		{Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Close: 404},
		{Time: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Close: 408},
	}
	if err := a.Append("MSFT", "D", second); err != nil {
		t.Fatalf("Append (second): %v", err)
	}

	got, err := a.Read("MSFT", "D",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read returned %d candles after merge, want 2", len(got))
	}
	if got[0].Close != 404 {
		t.Errorf("merged close = %v, want incoming value 404", got[0].Close)
	}
}

func TestCandleArchiveAppendFailsOnUnreadableFile(t *testing.T) {
	a := NewCandleArchive(t.TempDir())

	path := a.candlePath("AAPL", "D", 2024)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("not a parquet file"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// A year file that exists but cannot be read must abort the append
	// instead of being replaced by the incoming page alone.
	err := a.Append("AAPL", "D", []domain.Candle{
		{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185},
	})
	if err == nil {
		t.Fatal("Append should fail when the existing year file is unreadable")
	}

	got, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("ReadFile: %v", readErr)
	}
	if string(got) != "not a parquet file" {
		t.Error("failed append must leave the existing file untouched")
	}
}

func TestCandleArchiveSpansYears(t *testing.T) {
	a := NewCandleArchive(t.TempDir())

	candles := []domain.Candle{
		{Time: time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), Close: 192},
		{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185},
	}
	if err := a.Append("AAPL", "D", candles); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := a.Read("AAPL", "D",
		time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read across years returned %d candles, want 2", len(got))
	}
}

func TestCandleArchiveListSymbols(t *testing.T) {
	a := NewCandleArchive(t.TempDir())

	for _, sym := range []string{"GOOGL", "AAPL"} {
		if err := a.Append(sym, "D", []domain.Candle{
			{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 1},
		}); err != nil {
			t.Fatalf("Append(%s): %v", sym, err)
		}
	}

	symbols, err := a.ListSymbols()
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}
