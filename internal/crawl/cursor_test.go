package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"saturn/internal/domain"
)

// fakeFeed serves fixed pages of ids, most recent first.
type fakeFeed struct {
	pages     [][]string
	listCalls int
	fetched   []string
}

func (f *fakeFeed) ListPage(_ context.Context, _ string, cursor string) ([]string, string, error) {
	f.listCalls++
	idx := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "page-%d", &idx)
	}
	if idx >= len(f.pages) {
		return nil, "", nil
	}
	next := ""
	if idx+1 < len(f.pages) {
		next = fmt.Sprintf("page-%d", idx+1)
	}
	return f.pages[idx], next, nil
}

func (f *fakeFeed) FetchItem(_ context.Context, _ string, id string) (domain.Record, error) {
	f.fetched = append(f.fetched, id)
	return domain.Document{Time: time.Now(), ID: id}, nil
}

// fakeFeedSink stores feed items and reports recent ids most-recent-first.
type fakeFeedSink struct {
	recent   []string
	inserted []string
}

func (s *fakeFeedSink) RecentIDs(_ context.Context, _ string, limit int) ([]string, error) {
	if len(s.recent) > limit {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func (s *fakeFeedSink) InsertItem(_ context.Context, _ string, item domain.Record) error {
	s.inserted = append(s.inserted, item.(domain.Document).ID)
	return nil
}

func newCursor(feed *fakeFeed, sink *fakeFeedSink) *CursorCatchUp {
	return NewCursorCatchUp(feed, sink, slog.Default())
}

func TestCursorOverlapOnFirstPage(t *testing.T) {
	feed := &fakeFeed{pages: [][]string{
		{"n3", "n2", "n1"},
		{"n0", "m9", "m8"},
	}}
	sink := &fakeFeedSink{recent: []string{"n1", "n0", "m9"}}

	missed, err := newCursor(feed, sink).MissedIDs(context.Background(), "briefs")
	if err != nil {
		t.Fatal(err)
	}
	if len(missed) != 2 || missed[0] != "n3" || missed[1] != "n2" {
		t.Errorf("missed = %v, want [n3 n2]", missed)
	}
	if feed.listCalls != 1 {
		t.Errorf("list calls = %d, want 1: overlap on page 1 must stop the walk", feed.listCalls)
	}
}

// Overlap beyond page one: the detector walks extra pages and returns
// exactly the ids strictly more recent than the overlap position.
func TestCursorOverlapOnSecondPage(t *testing.T) {
	feed := &fakeFeed{pages: [][]string{
		{"n6", "n5", "n4"},
		{"n3", "n2", "n1"},
		{"n0"},
	}}
	sink := &fakeFeedSink{recent: []string{"n2", "n1", "n0"}}

	missed, err := newCursor(feed, sink).MissedIDs(context.Background(), "briefs")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"n6", "n5", "n4", "n3"}
	if len(missed) != len(want) {
		t.Fatalf("missed = %v, want %v", missed, want)
	}
	for i := range want {
		if missed[i] != want[i] {
			t.Fatalf("missed = %v, want %v", missed, want)
		}
	}
	if feed.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", feed.listCalls)
	}
}

// First run: nothing local, the whole feed is walked to cursor
// exhaustion and everything is missed.
func TestCursorExhaustsFeedOnFirstRun(t *testing.T) {
	feed := &fakeFeed{pages: [][]string{
		{"n5", "n4"},
		{"n3", "n2"},
		{"n1"},
	}}
	sink := &fakeFeedSink{}

	missed, err := newCursor(feed, sink).MissedIDs(context.Background(), "briefs")
	if err != nil {
		t.Fatal(err)
	}
	if len(missed) != 5 {
		t.Errorf("missed = %v, want all 5 ids", missed)
	}
	if feed.listCalls != 3 {
		t.Errorf("list calls = %d, want 3", feed.listCalls)
	}
}

func TestCursorEmptyFeed(t *testing.T) {
	feed := &fakeFeed{}
	sink := &fakeFeedSink{}

	missed, err := newCursor(feed, sink).MissedIDs(context.Background(), "briefs")
	if err != nil {
		t.Fatal(err)
	}
	if len(missed) != 0 {
		t.Errorf("missed = %v, want none", missed)
	}
}

func TestCursorNothingNew(t *testing.T) {
	feed := &fakeFeed{pages: [][]string{{"n2", "n1", "n0"}}}
	sink := &fakeFeedSink{recent: []string{"n2", "n1", "n0"}}

	missed, err := newCursor(feed, sink).MissedIDs(context.Background(), "briefs")
	if err != nil {
		t.Fatal(err)
	}
	if len(missed) != 0 {
		t.Errorf("missed = %v, want none", missed)
	}
}

func TestCursorRunPersistsMissedItems(t *testing.T) {
	feed := &fakeFeed{pages: [][]string{{"n4", "n3", "n2"}}}
	sink := &fakeFeedSink{recent: []string{"n2", "n1"}}

	if err := newCursor(feed, sink).Run(context.Background(), "briefs"); err != nil {
		t.Fatal(err)
	}
	if len(sink.inserted) != 2 || sink.inserted[0] != "n4" || sink.inserted[1] != "n3" {
		t.Errorf("inserted = %v, want [n4 n3]", sink.inserted)
	}
	if len(feed.fetched) != 2 {
		t.Errorf("fetched = %v, want per-item fetches for the missed ids", feed.fetched)
	}
}
