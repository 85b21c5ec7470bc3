// Package universe reads the symbol registry and the active-symbols file.
// Both readers degrade to empty results on missing or unreadable input so
// the orchestrator can log and skip instead of crashing.
package universe

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"quotecache/internal/domain"
)

// Universe is the result of loading the symbol registry.
type Universe struct {
	Symbols           []string
	ProviderOverrides map[string]string
	EquitySymbols     []string
}

type registryFile struct {
	Assets []domain.UniverseEntry `json:"assets"`
}

// Load reads the first existing path from the ordered candidate list and
// returns the full symbol list, the per-symbol provider overrides, and the
// equity-like subset needing fundamentals enrichment. If no candidate
// exists or none parses, an empty Universe and nil error are returned.
func Load(paths []string) (*Universe, error) {
	u := &Universe{ProviderOverrides: map[string]string{}}

	var data []byte
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			break
		}
	}
	if data == nil {
		return u, nil
	}

	var reg registryFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return u, fmt.Errorf("parsing universe file: %w", err)
	}

	seen := make(map[string]bool, len(reg.Assets))
	for _, a := range reg.Assets {
		sym := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		u.Symbols = append(u.Symbols, sym)
		if a.ProviderSymbol != "" {
			u.ProviderOverrides[sym] = a.ProviderSymbol
		}
		if a.AssetClass.EquityLike() {
			u.EquitySymbols = append(u.EquitySymbols, sym)
		}
	}
	return u, nil
}

type activeFile struct {
	Symbols   []string `json:"symbols"`
	UpdatedAt string   `json:"updated_at"`
}

// LoadActive reads the externally written active-symbols file, dedupes,
// and truncates to max entries. Missing or corrupt files yield an empty
// set; the engine never writes this file.
func LoadActive(path string, max int) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var af activeFile
	if err := json.Unmarshal(data, &af); err != nil {
		return nil
	}

	seen := make(map[string]bool, len(af.Symbols))
	out := make([]string, 0, len(af.Symbols))
	for _, s := range af.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
