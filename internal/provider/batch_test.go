package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

// requestLog records the symbol parameter of every /quote request.
type requestLog struct {
	mu   sync.Mutex
	reqs []string
}

func (r *requestLog) add(symbolParam string) {
	r.mu.Lock()
	r.reqs = append(r.reqs, symbolParam)
	r.mu.Unlock()
}

func (r *requestLog) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reqs...)
}

func (r *requestLog) singles(symbol string) int {
	n := 0
	for _, req := range r.all() {
		if req == symbol {
			n++
		}
	}
	return n
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewFetcher(NewClient(srv.URL, "test-key", 0), 3, testLogger())
	f.Delays = Delays{} // no pacing in tests
	return f, srv
}

func quoteJSON(symbol string, price float64) map[string]any {
	return map[string]any{"symbol": symbol, "price": fmt.Sprintf("%.2f", price), "volume": 1000}
}

func TestFetchBatchSingleChunk(t *testing.T) {
	rl := &requestLog{}
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		rl.add(r.URL.Query().Get("symbol"))
		json.NewEncoder(w).Encode([]any{
			quoteJSON("AAPL", 195.5),
			quoteJSON("MSFT", 410),
			quoteJSON("NVDA", 130),
		})
	})

	quotes := f.FetchBatch(context.Background(), []string{"AAPL", "MSFT", "NVDA"}, nil)
	if len(quotes) != 3 {
		t.Fatalf("got %d quotes, want 3", len(quotes))
	}
	if reqs := rl.all(); len(reqs) != 1 {
		t.Errorf("issued %d requests, want 1: %v", len(reqs), reqs)
	}
	for _, q := range quotes {
		if q.Price == nil {
			t.Errorf("quote %s has nil price", q.Symbol)
		}
	}
}

func TestFetchBatchFallbackCompleteness(t *testing.T) {
	rl := &requestLog{}
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		symParam := r.URL.Query().Get("symbol")
		rl.add(symParam)
		if strings.Contains(symParam, ",") {
			// Chunk response missing MSFT and NVDA.
			json.NewEncoder(w).Encode([]any{quoteJSON("AAPL", 195.5)})
			return
		}
		json.NewEncoder(w).Encode(quoteJSON(symParam, 100))
	})

	quotes := f.FetchBatch(context.Background(), []string{"AAPL", "MSFT", "NVDA"}, nil)
	if len(quotes) != 3 {
		t.Fatalf("got %d quotes, want 3 (chunk + fallbacks)", len(quotes))
	}
	// Exactly one dedicated fallback request per missing symbol.
	if n := rl.singles("MSFT"); n != 1 {
		t.Errorf("MSFT fallback requests = %d, want 1", n)
	}
	if n := rl.singles("NVDA"); n != 1 {
		t.Errorf("NVDA fallback requests = %d, want 1", n)
	}
	if n := rl.singles("AAPL"); n != 0 {
		t.Errorf("AAPL got %d fallback requests, want 0", n)
	}
}

func TestFetchBatchRateLimitDegradation(t *testing.T) {
	rl := &requestLog{}
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		symParam := r.URL.Query().Get("symbol")
		rl.add(symParam)
		if strings.Contains(symParam, ",") {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(quoteJSON(symParam, 50))
	})

	symbols := []string{"AAPL", "MSFT", "NVDA", "AMZN", "META"}
	quotes := f.FetchBatch(context.Background(), symbols, nil)

	if len(quotes) != 5 {
		t.Fatalf("got %d quotes, want 5 from degraded single mode", len(quotes))
	}

	// One chunked attempt, one cooldown retry, then single mode only.
	var chunked, single int
	for _, req := range rl.all() {
		if strings.Contains(req, ",") {
			chunked++
		} else {
			single++
		}
	}
	if chunked != 2 {
		t.Errorf("chunked requests = %d, want 2 (original + cooldown retry)", chunked)
	}
	if single != 5 {
		t.Errorf("single requests = %d, want 5", single)
	}
	// No chunked request after the switch.
	reqs := rl.all()
	for i, req := range reqs {
		if strings.Contains(req, ",") && i >= 2 {
			t.Errorf("chunked request at position %d after degradation: %v", i, reqs)
		}
	}
}

func TestFetchBatchRateLimit200Payload(t *testing.T) {
	// Some throttling rejections arrive as HTTP 200 with an error body.
	rl := &requestLog{}
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		symParam := r.URL.Query().Get("symbol")
		rl.add(symParam)
		if strings.Contains(symParam, ",") {
			json.NewEncoder(w).Encode(map[string]any{
				"code": 429, "message": "You have run out of API credits for the current minute", "status": "error",
			})
			return
		}
		json.NewEncoder(w).Encode(quoteJSON(symParam, 50))
	})

	quotes := f.FetchBatch(context.Background(), []string{"AAPL", "MSFT"}, nil)
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
}

func TestFetchBatchSkipsInvalidPrice(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		symParam := r.URL.Query().Get("symbol")
		if strings.Contains(symParam, ",") {
			json.NewEncoder(w).Encode([]any{
				quoteJSON("AAPL", 195.5),
				map[string]any{"symbol": "BAD", "price": "N/A"},
			})
			return
		}
		// Fallback for BAD is just as broken.
		json.NewEncoder(w).Encode(map[string]any{"symbol": symParam, "price": "N/A"})
	})

	quotes := f.FetchBatch(context.Background(), []string{"AAPL", "BAD"}, nil)
	if len(quotes) != 1 {
		t.Fatalf("got %d quotes, want 1 (BAD skipped)", len(quotes))
	}
	if quotes[0].Symbol != "AAPL" {
		t.Errorf("quote symbol = %s, want AAPL", quotes[0].Symbol)
	}
}

func TestFetchBatchNoCredential(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	f := NewFetcher(NewClient(srv.URL, "", 0), 3, testLogger())
	f.Delays = Delays{}

	if quotes := f.FetchBatch(context.Background(), []string{"AAPL"}, nil); quotes != nil {
		t.Errorf("got %v, want nil without credential", quotes)
	}
	if calls != 0 {
		t.Errorf("server saw %d requests, want 0", calls)
	}
}

func TestFetchBatchForceSingle(t *testing.T) {
	rl := &requestLog{}
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		rl.add(r.URL.Query().Get("symbol"))
		json.NewEncoder(w).Encode(quoteJSON(r.URL.Query().Get("symbol"), 10))
	})
	f.ForceSingle = true

	quotes := f.FetchBatch(context.Background(), []string{"AAPL", "MSFT"}, nil)
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
	for _, req := range rl.all() {
		if strings.Contains(req, ",") {
			t.Errorf("chunked request %q issued in forced single mode", req)
		}
	}
}

func TestFetchBatchMaxSymbolsCap(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		var out []any
		for _, s := range strings.Split(r.URL.Query().Get("symbol"), ",") {
			out = append(out, quoteJSON(s, 1))
		}
		json.NewEncoder(w).Encode(out)
	})
	f.MaxSymbols = 2

	quotes := f.FetchBatch(context.Background(), []string{"AAPL", "MSFT", "NVDA", "AMZN"}, nil)
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2 (capped)", len(quotes))
	}
}

func TestFetchBatchProviderOverrides(t *testing.T) {
	var got string
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("symbol")
		json.NewEncoder(w).Encode([]any{quoteJSON("XAU/USD", 2300)})
	})

	quotes := f.FetchBatch(context.Background(), []string{"GOLD"}, map[string]string{"GOLD": "XAU/USD"})
	if got != "XAU/USD" {
		t.Errorf("requested symbol param = %q, want XAU/USD", got)
	}
	if len(quotes) != 1 || quotes[0].Symbol != "GOLD" {
		t.Fatalf("quotes = %+v, want one quote mapped back to GOLD", quotes)
	}
}
