package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"quotecache/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ QuoteStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	symbol             TEXT PRIMARY KEY,
	observed_at        TEXT NOT NULL,
	price              REAL,
	change_pct         REAL,
	volume             REAL,
	day_low            REAL,
	day_high           REAL,
	market_cap         REAL,
	next_earnings_date TEXT
);`

const upsertSQL = `
INSERT INTO quotes (symbol, observed_at, price, change_pct, volume, day_low, day_high)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
	observed_at = excluded.observed_at,
	price       = excluded.price,
	change_pct  = excluded.change_pct,
	volume      = excluded.volume,
	day_low     = COALESCE(excluded.day_low, quotes.day_low),
	day_high    = COALESCE(excluded.day_high, quotes.day_high)`

const selectCols = `symbol, observed_at, price, change_pct, volume, day_low, day_high, market_cap, next_earnings_date`

// SQLiteStore implements QuoteStore backed by a single-file SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// quotes table exists, so the store is usable before any data has arrived.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertOne inserts or replaces the quote row for q.Symbol.
func (s *SQLiteStore) UpsertOne(ctx context.Context, q domain.Quote) error {
	_, err := s.db.ExecContext(ctx, upsertSQL, upsertArgs(q)...)
	return err
}

// UpsertMany upserts all quotes inside one transaction. Any failure rolls
// the whole batch back.
func (s *SQLiteStore) UpsertMany(ctx context.Context, qs []domain.Quote) error {
	if len(qs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, q := range qs {
		if _, err := stmt.ExecContext(ctx, upsertArgs(q)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// UpdateEnrichment updates only the enrichment columns on an existing row.
func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, symbol string, marketCap *float64, nextEarningsDate *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET
			market_cap = COALESCE(?, market_cap),
			next_earnings_date = COALESCE(?, next_earnings_date)
		WHERE symbol = ?`,
		nullFloat(marketCap), nullStr(nextEarningsDate), symbol)
	return err
}

// GetAll returns every cached quote.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]domain.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectCols+` FROM quotes ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// GetBySymbol returns the quote for symbol, or (nil, nil) if no row
// exists.
func (s *SQLiteStore) GetBySymbol(ctx context.Context, symbol string) (*domain.Quote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM quotes WHERE symbol = ?`, symbol)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ---------------------------------------------------------------------------
// Row conversion
// ---------------------------------------------------------------------------

func upsertArgs(q domain.Quote) []any {
	observed := q.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	return []any{
		q.Symbol,
		observed.UTC().Format(time.RFC3339),
		nullFloat(q.Price),
		nullFloat(q.ChangePct),
		nullFloat(q.Volume),
		nullFloat(q.DayLow),
		nullFloat(q.DayHigh),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuote(row scanner) (domain.Quote, error) {
	var (
		q                                      domain.Quote
		observed                               string
		price, changePct, vol, dayLow, dayHigh sql.NullFloat64
		marketCap                              sql.NullFloat64
		earnings                               sql.NullString
	)
	err := row.Scan(&q.Symbol, &observed, &price, &changePct, &vol, &dayLow, &dayHigh, &marketCap, &earnings)
	if err != nil {
		return q, err
	}
	if ts, perr := time.Parse(time.RFC3339, observed); perr == nil {
		q.ObservedAt = ts
	}
	q.Price = floatPtr(price)
	q.ChangePct = floatPtr(changePct)
	q.Volume = floatPtr(vol)
	q.DayLow = floatPtr(dayLow)
	q.DayHigh = floatPtr(dayHigh)
	q.MarketCap = floatPtr(marketCap)
	if earnings.Valid {
		q.NextEarningsDate = &earnings.String
	}
	return q, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
