// Package store persists the latest known quote per symbol in an embedded
// SQLite database. The orchestrator is the sole writer; readers (the API
// layer of the consuming application) open the same file read-only.
package store

import (
	"context"

	"quotecache/internal/domain"
)

// QuoteStore is the persistence contract for the refresh engine. Upserts
// from batch and streaming writers only touch quote-shaped fields; the
// enrichment fields have their own narrow update path.
type QuoteStore interface {
	// UpsertOne inserts or replaces the row for q.Symbol. Price, change,
	// volume, and observed_at are overwritten unconditionally (including
	// with NULL); day range values are coalesced so a streaming tick does
	// not erase a range established by batch refresh; market cap and the
	// next earnings date are never touched.
	UpsertOne(ctx context.Context, q domain.Quote) error

	// UpsertMany applies UpsertOne semantics to every quote inside a
	// single transaction, so readers never observe a half-written batch.
	UpsertMany(ctx context.Context, qs []domain.Quote) error

	// UpdateEnrichment sets market_cap and next_earnings_date on an
	// existing row, keeping the current value where the input is nil. No
	// row is created for an unknown symbol.
	UpdateEnrichment(ctx context.Context, symbol string, marketCap *float64, nextEarningsDate *string) error

	// GetAll returns every cached quote.
	GetAll(ctx context.Context) ([]domain.Quote, error)

	// GetBySymbol returns the quote for symbol, or (nil, nil) if absent.
	GetBySymbol(ctx context.Context, symbol string) (*domain.Quote, error)

	Close() error
}
