package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNextEarningsDateSelection(t *testing.T) {
	events := []earningsEvent{
		{Date: "2024-01-01", EPSActual: json.Number("1.2")},
		{Date: "2030-06-01"},
		{Date: "2024-03-01"},
	}
	got := nextEarningsDate(events, "2024-02-01")
	if got == nil || *got != "2024-03-01" {
		t.Fatalf("nextEarningsDate = %v, want 2024-03-01", got)
	}
}

func TestNextEarningsDateSkipsReported(t *testing.T) {
	// A future date with a recorded actual result does not qualify.
	events := []earningsEvent{
		{Date: "2024-03-01", EPSActual: json.Number("0.5")},
		{Date: "2024-06-01"},
	}
	got := nextEarningsDate(events, "2024-02-01")
	if got == nil || *got != "2024-06-01" {
		t.Fatalf("nextEarningsDate = %v, want 2024-06-01", got)
	}
}

func TestNextEarningsDateTodayQualifies(t *testing.T) {
	events := []earningsEvent{{Date: "2024-02-01"}}
	got := nextEarningsDate(events, "2024-02-01")
	if got == nil || *got != "2024-02-01" {
		t.Fatalf("nextEarningsDate = %v, want 2024-02-01", got)
	}
}

func TestNextEarningsDateNoneQualify(t *testing.T) {
	events := []earningsEvent{
		{Date: "2023-01-01"},
		{Date: "2023-06-01", EPSActual: json.Number("2.0")},
	}
	if got := nextEarningsDate(events, "2024-02-01"); got != nil {
		t.Fatalf("nextEarningsDate = %v, want nil", got)
	}
}

func newTestEnricher(t *testing.T, handler http.HandlerFunc) *Enricher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e := NewEnricher(NewClient(srv.URL, "test-key", 0), testLogger())
	e.Delays = EnrichDelays{}
	return e
}

func TestFetchMarketCap(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/statistics" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"statistics": map[string]any{
				"valuations_metrics": map[string]any{"market_capitalization": 3.1e12},
			},
		})
	})

	mc := e.FetchMarketCap(context.Background(), "MSFT")
	if mc == nil || *mc != 3.1e12 {
		t.Fatalf("FetchMarketCap = %v, want 3.1e12", mc)
	}
}

func TestFetchMarketCapMalformed(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	})
	if mc := e.FetchMarketCap(context.Background(), "MSFT"); mc != nil {
		t.Fatalf("FetchMarketCap = %v, want nil on malformed response", mc)
	}
}

func TestFetchNextEarningsDateEndToEnd(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/earnings" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"earnings": []map[string]any{
				{"date": "2020-01-01", "eps_actual": 1.1},
				{"date": "2099-06-01", "eps_actual": nil},
			},
		})
	})

	got := e.FetchNextEarningsDate(context.Background(), "AAPL")
	if got == nil || *got != "2099-06-01" {
		t.Fatalf("FetchNextEarningsDate = %v, want 2099-06-01", got)
	}
}

func TestEnrichAllAppliesResults(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/statistics":
			json.NewEncoder(w).Encode(map[string]any{
				"statistics": map[string]any{
					"valuations_metrics": map[string]any{"market_capitalization": 1e9},
				},
			})
		case "/earnings":
			json.NewEncoder(w).Encode(map[string]any{
				"earnings": []map[string]any{{"date": "2099-01-01"}},
			})
		}
	})

	type result struct {
		mc   *float64
		date *string
	}
	got := map[string]result{}
	e.EnrichAll(context.Background(), []string{"AAPL", "MSFT"}, func(sym string, mc *float64, date *string) {
		got[sym] = result{mc, date}
	})

	if len(got) != 2 {
		t.Fatalf("apply called for %d symbols, want 2", len(got))
	}
	for sym, r := range got {
		if r.mc == nil || *r.mc != 1e9 {
			t.Errorf("%s market cap = %v, want 1e9", sym, r.mc)
		}
		if r.date == nil || *r.date != "2099-01-01" {
			t.Errorf("%s earnings date = %v, want 2099-01-01", sym, r.date)
		}
	}
}

func TestEnrichAllNoCredential(t *testing.T) {
	e := NewEnricher(NewClient("http://unused", "", 0), testLogger())
	called := false
	e.EnrichAll(context.Background(), []string{"AAPL"}, func(string, *float64, *string) { called = true })
	if called {
		t.Error("apply called despite missing credential")
	}
}
