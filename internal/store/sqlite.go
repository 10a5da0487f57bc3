package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"saturn/internal/crawl"
	"saturn/internal/domain"
	"saturn/internal/metrics"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ InstrumentStore = (*SQLiteStore)(nil)
var _ crawl.Sink = (*SQLiteStore)(nil)
var _ crawl.FeedSink = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	exchange    TEXT NOT NULL DEFAULT '',
	currency    TEXT NOT NULL DEFAULT '',
	ipo         INTEGER,
	description TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS candles (
	instrument_id INTEGER NOT NULL,
	resolution    TEXT NOT NULL,
	ts            INTEGER NOT NULL,
	open          REAL NOT NULL,
	high          REAL NOT NULL,
	low           REAL NOT NULL,
	close         REAL NOT NULL,
	volume        INTEGER NOT NULL,
	UNIQUE (instrument_id, resolution, ts)
);

CREATE TABLE IF NOT EXISTS series_records (
	instrument_id INTEGER NOT NULL,
	series        TEXT NOT NULL,
	natural_key   TEXT NOT NULL,
	ts            INTEGER NOT NULL,
	payload       TEXT NOT NULL,
	UNIQUE (instrument_id, series, natural_key)
);

CREATE INDEX IF NOT EXISTS idx_series_records_ts
	ON series_records (instrument_id, series, ts);

CREATE TABLE IF NOT EXISTS feed_items (
	feed    TEXT NOT NULL,
	item_id TEXT NOT NULL,
	ts      INTEGER NOT NULL,
	payload TEXT NOT NULL,
	UNIQUE (feed, item_id)
);

CREATE INDEX IF NOT EXISTS idx_feed_items_ts
	ON feed_items (feed, ts);
`

// SQLiteStore implements InstrumentStore and the crawl sink interfaces
// backed by a SQLite database. Optionally mirrors candle inserts into a
// Parquet archive.
type SQLiteStore struct {
	db      *sql.DB
	archive *CandleArchive
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// the schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// The pure-Go driver serializes writers itself, but a single
	// connection avoids SQLITE_BUSY under concurrent task workers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// AttachArchive mirrors subsequent candle inserts into the given Parquet
// archive in addition to the candles table.
func (s *SQLiteStore) AttachArchive(a *CandleArchive) {
	s.archive = a
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// InstrumentStore implementation
// ---------------------------------------------------------------------------

// InsertInstrument stores a new instrument and returns its id.
func (s *SQLiteStore) InsertInstrument(ctx context.Context, inst *domain.Instrument) (int64, error) {
	var ipo any
	if !inst.IPO.IsZero() {
		ipo = inst.IPO.Unix()
	}
	created := inst.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO instruments (symbol, name, kind, exchange, currency, ipo, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.Symbol, inst.Name, string(inst.Kind), inst.Exchange, inst.Currency, ipo, inst.Description, created.Unix())
	if err != nil {
		return 0, fmt.Errorf("inserting instrument %s: %w", inst.Symbol, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading instrument id: %w", err)
	}
	inst.ID = id
	return id, nil
}

// GetInstrument returns the instrument for a symbol, or nil when absent.
func (s *SQLiteStore) GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, name, kind, exchange, currency, ipo, description, created_at
		 FROM instruments WHERE symbol = ?`, symbol)
	inst, err := scanInstrument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying instrument %s: %w", symbol, err)
	}
	return inst, nil
}

// ListInstruments returns all tracked instruments ordered by symbol.
func (s *SQLiteStore) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, name, kind, exchange, currency, ipo, description, created_at
		 FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("listing instruments: %w", err)
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning instrument: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (*domain.Instrument, error) {
	var (
		inst    domain.Instrument
		kind    string
		ipo     sql.NullInt64
		created int64
	)
	err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &kind, &inst.Exchange,
		&inst.Currency, &ipo, &inst.Description, &created)
	if err != nil {
		return nil, err
	}
	inst.Kind = domain.InstrumentKind(kind)
	if ipo.Valid {
		inst.IPO = time.Unix(ipo.Int64, 0).UTC()
	}
	inst.CreatedAt = time.Unix(created, 0).UTC()
	return &inst, nil
}

// ---------------------------------------------------------------------------
// Sink implementation
// ---------------------------------------------------------------------------

// Insert persists a page of records for one series. Candles go into the
// candles table, everything else into series_records as JSON. Rows whose
// natural key already exists are ignored, so re-delivered pages are safe.
func (s *SQLiteStore) Insert(ctx context.Context, key domain.SeriesKey, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if key.Series == domain.SeriesCandles {
		if err := s.insertCandles(ctx, key, records); err != nil {
			return err
		}
	} else if err := s.insertDocuments(ctx, key, records); err != nil {
		return err
	}
	metrics.RecordsInserted.WithLabelValues(string(key.Series)).Add(float64(len(records)))
	return nil
}

func (s *SQLiteStore) insertCandles(ctx context.Context, key domain.SeriesKey, records []domain.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning candle tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO candles (instrument_id, resolution, ts, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing candle insert: %w", err)
	}
	defer stmt.Close()

	candles := make([]domain.Candle, 0, len(records))
	for _, r := range records {
		c, ok := r.(domain.Candle)
		if !ok {
			return fmt.Errorf("unexpected record type %T for %s", r, key)
		}
		if _, err := stmt.ExecContext(ctx, key.InstrumentID, key.Resolution,
			c.Time.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("inserting candle for %s: %w", key, err)
		}
		candles = append(candles, c)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing candles for %s: %w", key, err)
	}

	if s.archive != nil {
		if err := s.archive.Append(key.Symbol, key.Resolution, candles); err != nil {
			return fmt.Errorf("archiving candles for %s: %w", key, err)
		}
	}
	return nil
}

func (s *SQLiteStore) insertDocuments(ctx context.Context, key domain.SeriesKey, records []domain.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning document tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO series_records (instrument_id, series, natural_key, ts, payload)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing document insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		doc, ok := r.(domain.Document)
		if !ok {
			return fmt.Errorf("unexpected record type %T for %s", r, key)
		}
		payload, err := json.Marshal(doc.Fields)
		if err != nil {
			return fmt.Errorf("encoding document for %s: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, key.InstrumentID, string(key.Series),
			doc.NaturalKey(), doc.Time.Unix(), string(payload)); err != nil {
			return fmt.Errorf("inserting document for %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing documents for %s: %w", key, err)
	}
	return nil
}

// Watermark returns the timestamp of the most recent persisted record for
// the series. ok is false when the series has no rows yet.
func (s *SQLiteStore) Watermark(ctx context.Context, key domain.SeriesKey) (time.Time, bool, error) {
	var (
		ts  sql.NullInt64
		err error
	)
	if key.Series == domain.SeriesCandles {
		err = s.db.QueryRowContext(ctx,
			`SELECT MAX(ts) FROM candles WHERE instrument_id = ? AND resolution = ?`,
			key.InstrumentID, key.Resolution).Scan(&ts)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT MAX(ts) FROM series_records WHERE instrument_id = ? AND series = ?`,
			key.InstrumentID, string(key.Series)).Scan(&ts)
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading watermark for %s: %w", key, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

// ---------------------------------------------------------------------------
// FeedSink implementation
// ---------------------------------------------------------------------------

// RecentIDs returns the ids of the most recently dated items stored for a
// feed, newest first, up to limit.
func (s *SQLiteStore) RecentIDs(ctx context.Context, feed string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM feed_items WHERE feed = ? ORDER BY ts DESC, item_id DESC LIMIT ?`,
		feed, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent ids for feed %s: %w", feed, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning feed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertItem persists one feed item; re-inserting an id is a no-op.
func (s *SQLiteStore) InsertItem(ctx context.Context, feed string, item domain.Record) error {
	doc, ok := item.(domain.Document)
	if !ok {
		return fmt.Errorf("unexpected record type %T for feed %s", item, feed)
	}
	payload, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encoding feed item: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feed_items (feed, item_id, ts, payload) VALUES (?, ?, ?, ?)`,
		feed, doc.NaturalKey(), doc.Time.Unix(), string(payload)); err != nil {
		return fmt.Errorf("inserting feed item %s/%s: %w", feed, doc.ID, err)
	}
	metrics.RecordsInserted.WithLabelValues("feed:" + feed).Inc()
	return nil
}
