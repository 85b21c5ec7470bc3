package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"quotecache/internal/util"
)

// EnrichDelays paces the fundamentals endpoints, which carry a stricter
// rate budget than quotes.
type EnrichDelays struct {
	PerSymbol  time.Duration // between symbols
	BatchPause time.Duration // extra pause after every batchEvery symbols
}

const enrichBatchEvery = 10

// Enricher retrieves slow-changing fundamentals (market capitalization,
// next scheduled earnings date) one symbol at a time.
type Enricher struct {
	client *Client
	log    *slog.Logger
	Delays EnrichDelays
}

// NewEnricher creates an Enricher with the default pacing schedule.
func NewEnricher(client *Client, log *slog.Logger) *Enricher {
	return &Enricher{
		client: client,
		log:    log,
		Delays: EnrichDelays{PerSymbol: 500 * time.Millisecond, BatchPause: 15 * time.Second},
	}
}

// FetchMarketCap returns the market capitalization for symbol, or nil on
// any failure (missing key, network error, malformed response).
func (e *Enricher) FetchMarketCap(ctx context.Context, symbol string) *float64 {
	params := url.Values{}
	params.Set("symbol", symbol)

	var body []byte
	err := util.Retry(ctx, 2, 500*time.Millisecond, func() error {
		var gerr error
		body, gerr = e.client.get(ctx, "/statistics", params)
		return gerr
	})
	if err != nil {
		e.log.Warn("market cap fetch failed", "symbol", symbol, "error", err)
		return nil
	}

	var resp struct {
		Statistics struct {
			ValuationsMetrics struct {
				MarketCapitalization json.Number `json:"market_capitalization"`
			} `json:"valuations_metrics"`
		} `json:"statistics"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		e.log.Warn("malformed statistics response", "symbol", symbol, "body", snippet(body))
		return nil
	}
	mc, err := resp.Statistics.ValuationsMetrics.MarketCapitalization.Float64()
	if err != nil || mc <= 0 {
		return nil
	}
	return &mc
}

// earningsEvent is one entry in the provider's earnings calendar.
type earningsEvent struct {
	Date      string      `json:"date"`
	EPSActual json.Number `json:"eps_actual"`
}

// FetchNextEarningsDate returns the next scheduled earnings date for
// symbol as an ISO date string, or nil on any failure or when no future
// event without a recorded result exists.
func (e *Enricher) FetchNextEarningsDate(ctx context.Context, symbol string) *string {
	params := url.Values{}
	params.Set("symbol", symbol)

	var body []byte
	err := util.Retry(ctx, 2, 500*time.Millisecond, func() error {
		var gerr error
		body, gerr = e.client.get(ctx, "/earnings", params)
		return gerr
	})
	if err != nil {
		e.log.Warn("earnings fetch failed", "symbol", symbol, "error", err)
		return nil
	}

	var resp struct {
		Earnings []earningsEvent `json:"earnings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		e.log.Warn("malformed earnings response", "symbol", symbol, "body", snippet(body))
		return nil
	}

	today := time.Now().UTC().Format("2006-01-02")
	return nextEarningsDate(resp.Earnings, today)
}

// nextEarningsDate selects the earliest date >= today among events with no
// recorded actual result. ISO date strings compare correctly as strings.
func nextEarningsDate(events []earningsEvent, today string) *string {
	var best string
	for _, ev := range events {
		if ev.Date < today || ev.EPSActual.String() != "" {
			continue
		}
		if best == "" || ev.Date < best {
			best = ev.Date
		}
	}
	if best == "" {
		return nil
	}
	return &best
}

// EnrichAll walks the equity symbols sequentially, fetching both
// fundamentals for each and handing them to apply. Pacing: a short delay
// per symbol plus a longer pause after every ten, to respect the stricter
// fundamentals rate budget.
func (e *Enricher) EnrichAll(ctx context.Context, symbols []string, apply func(symbol string, marketCap *float64, nextEarningsDate *string)) {
	if !e.client.HasKey() {
		e.log.Warn("no provider credential configured, skipping enrichment")
		return
	}
	for i, sym := range symbols {
		if ctx.Err() != nil {
			return
		}
		mc := e.FetchMarketCap(ctx, sym)
		ed := e.FetchNextEarningsDate(ctx, sym)
		if mc != nil || ed != nil {
			apply(sym, mc, ed)
		}

		if i == len(symbols)-1 {
			break
		}
		if util.Sleep(ctx, e.Delays.PerSymbol) != nil {
			return
		}
		if (i+1)%enrichBatchEvery == 0 {
			if util.Sleep(ctx, e.Delays.BatchPause) != nil {
				return
			}
		}
	}
	e.log.Info("enrichment pass complete", "symbols", len(symbols))
}
