// Package symbolmap translates between internal ticker symbols and the
// provider's notation. FX, crypto, and metal pairs use a slash-delimited
// form on the provider side ("EURUSD" ↔ "EUR/USD"); equities and indices
// pass through unchanged.
package symbolmap

import "strings"

// providerSymbols maps internal symbols to the provider's notation.
// Symbols absent from this table are assumed to share notation with the
// provider.
var providerSymbols = map[string]string{
	// FX majors
	"EURUSD": "EUR/USD",
	"GBPUSD": "GBP/USD",
	"USDJPY": "USD/JPY",
	"USDCHF": "USD/CHF",
	"AUDUSD": "AUD/USD",
	"USDCAD": "USD/CAD",
	"NZDUSD": "NZD/USD",
	"EURGBP": "EUR/GBP",
	"EURJPY": "EUR/JPY",
	// Crypto
	"BTCUSD": "BTC/USD",
	"ETHUSD": "ETH/USD",
	"SOLUSD": "SOL/USD",
	"XRPUSD": "XRP/USD",
	// Metals
	"XAUUSD": "XAU/USD",
	"XAGUSD": "XAG/USD",
}

// internalSymbols is the reverse table keyed by normalized provider
// notation (uppercased, delimiter stripped), built once at init.
var internalSymbols = func() map[string]string {
	m := make(map[string]string, len(providerSymbols))
	for internal, provider := range providerSymbols {
		m[normalize(provider)] = internal
	}
	return m
}()

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "/", "")
}

// ToProviderSymbol returns the provider notation for an internal symbol.
// Lookup is case-insensitive. Unmapped symbols are returned uppercased and
// otherwise unchanged.
func ToProviderSymbol(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if p, ok := providerSymbols[sym]; ok {
		return p
	}
	return sym
}

// ToInternalSymbol maps a provider symbol back to internal notation. This
// direction is heuristic: the provider does not always echo back the form
// the caller subscribed with, so the input is normalized (delimiter
// stripped) before the reverse table lookup, and an unmatched input falls
// back to its non-alphanumeric characters being stripped. Prefer a
// per-connection table from ReverseTable when the subscription list is
// known.
func ToInternalSymbol(providerSymbol string) string {
	norm := normalize(providerSymbol)
	if internal, ok := internalSymbols[norm]; ok {
		return internal
	}
	return stripNonAlnum(norm)
}

// ReverseTable builds a provider→internal lookup for a known subscription
// list, honoring explicit per-symbol overrides. Keys are normalized so a
// tick symbol can be resolved whether or not the provider echoes the
// delimiter.
func ReverseTable(symbols []string, overrides map[string]string) map[string]string {
	table := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		provider := overrides[sym]
		if provider == "" {
			provider = ToProviderSymbol(sym)
		}
		table[normalize(provider)] = sym
	}
	return table
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
