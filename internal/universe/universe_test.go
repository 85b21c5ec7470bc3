package universe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "universe.json", `{
		"assets": [
			{"symbol": "AAPL", "asset_class": "equity"},
			{"symbol": "SPX", "asset_class": "index"},
			{"symbol": "EURUSD", "asset_class": "fx"},
			{"symbol": "GOLD", "asset_class": "commodity", "provider_symbol": "XAU/USD"},
			{"symbol": "aapl", "asset_class": "equity"}
		]
	}`)

	u, err := Load([]string{path})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// Case-normalized dedup: "aapl" collapses into "AAPL".
	if len(u.Symbols) != 4 {
		t.Fatalf("got %d symbols, want 4: %v", len(u.Symbols), u.Symbols)
	}
	if got := u.ProviderOverrides["GOLD"]; got != "XAU/USD" {
		t.Errorf("ProviderOverrides[GOLD] = %q, want XAU/USD", got)
	}
	if len(u.EquitySymbols) != 2 {
		t.Fatalf("got %d equity symbols, want 2: %v", len(u.EquitySymbols), u.EquitySymbols)
	}
	for _, s := range u.EquitySymbols {
		if s != "AAPL" && s != "SPX" {
			t.Errorf("unexpected equity symbol %s", s)
		}
	}
}

func TestLoadFirstExistingPathWins(t *testing.T) {
	dir := t.TempDir()
	second := writeFile(t, dir, "second.json",
		`{"assets": [{"symbol": "MSFT", "asset_class": "equity"}]}`)

	u, err := Load([]string{filepath.Join(dir, "missing.json"), second})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(u.Symbols) != 1 || u.Symbols[0] != "MSFT" {
		t.Errorf("Symbols = %v, want [MSFT]", u.Symbols)
	}
}

func TestLoadNoSourceIsEmptyNotError(t *testing.T) {
	u, err := Load([]string{"/nonexistent/a.json", "/nonexistent/b.json"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(u.Symbols) != 0 || len(u.EquitySymbols) != 0 {
		t.Errorf("expected empty universe, got %+v", u)
	}
}

func TestLoadActiveTruncatesAndDedupes(t *testing.T) {
	dir := t.TempDir()

	symbols := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		symbols = append(symbols, fmt.Sprintf("SYM%03d", i))
	}
	// Inject duplicates; they must not count against the cap.
	symbols = append([]string{"SYM000", "sym000"}, symbols...)

	raw, _ := json.Marshal(map[string]any{"symbols": symbols, "updated_at": "2025-06-01T00:00:00Z"})
	path := writeFile(t, dir, "active.json", string(raw))

	got := LoadActive(path, 200)
	if len(got) != 200 {
		t.Fatalf("got %d active symbols, want 200", len(got))
	}
	seen := map[string]bool{}
	for _, s := range got {
		if seen[s] {
			t.Fatalf("duplicate symbol %s in active set", s)
		}
		seen[s] = true
	}
}

func TestLoadActiveMissingOrCorrupt(t *testing.T) {
	if got := LoadActive("/nonexistent/active.json", 200); got != nil {
		t.Errorf("missing file: got %v, want nil", got)
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", "{not json")
	if got := LoadActive(path, 200); got != nil {
		t.Errorf("corrupt file: got %v, want nil", got)
	}
}
