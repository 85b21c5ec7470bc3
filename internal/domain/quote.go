// Package domain defines the core data types shared across the quote cache:
// the per-symbol quote record, universe entries, and asset classes.
package domain

import "time"

// AssetClass categorizes a universe entry. Only equity-like classes undergo
// fundamentals enrichment.
type AssetClass string

const (
	AssetEquity    AssetClass = "equity"
	AssetIndex     AssetClass = "index"
	AssetFX        AssetClass = "fx"
	AssetCrypto    AssetClass = "crypto"
	AssetCommodity AssetClass = "commodity"
	AssetBond      AssetClass = "bond"
)

// EquityLike reports whether the asset class requires fundamentals
// enrichment (market cap, earnings calendar).
func (c AssetClass) EquityLike() bool {
	return c == AssetEquity || c == AssetIndex
}

// Quote is the latest known market snapshot for one symbol. Symbol is the
// sole identity; at most one record per symbol exists in the store. Nil
// pointer fields mean "value not known".
//
// DayLow/DayHigh are only populated by batch refresh (streaming ticks do
// not carry a session range). MarketCap and NextEarningsDate are only
// written through the enrichment path and are never touched by quote
// writers.
type Quote struct {
	Symbol           string
	ObservedAt       time.Time
	Price            *float64
	ChangePct        *float64
	Volume           *float64
	DayLow           *float64
	DayHigh          *float64
	MarketCap        *float64
	NextEarningsDate *string // ISO date, e.g. "2025-03-01"
}

// UniverseEntry describes one tradable symbol from the registry file.
// ProviderSymbol, when set, overrides the static symbol map translation.
type UniverseEntry struct {
	Symbol         string     `json:"symbol"`
	AssetClass     AssetClass `json:"asset_class"`
	ProviderSymbol string     `json:"provider_symbol,omitempty"`
}

// Float returns a pointer to v. Convenience for building quotes.
func Float(v float64) *float64 { return &v }

// Str returns a pointer to s.
func Str(s string) *string { return &s }
