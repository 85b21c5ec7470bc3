// One-shot tool: print the cached quotes as a table.
//
// Usage:
//
//	go run cmd/qc-dump/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"quotecache/internal/config"
	"quotecache/internal/store"
)

func main() {
	cfgPath := "config/quotecache.yaml"
	if p := os.Getenv("QUOTECACHE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	quotes, err := st.GetAll(context.Background())
	if err != nil {
		log.Fatalf("failed to read store: %v", err)
	}

	fmt.Printf("%-10s %-22s %10s %8s %14s %14s %12s\n",
		"Symbol", "Observed", "Price", "Chg%", "Volume", "MktCap", "Earnings")
	for _, q := range quotes {
		fmt.Printf("%-10s %-22s %10s %8s %14s %14s %12s\n",
			q.Symbol,
			q.ObservedAt.Format("2006-01-02 15:04:05"),
			fmtFloat(q.Price, "%.4f"),
			fmtFloat(q.ChangePct, "%+.2f"),
			fmtFloat(q.Volume, "%.0f"),
			fmtFloat(q.MarketCap, "%.0f"),
			fmtStr(q.NextEarningsDate),
		)
	}
	fmt.Printf("%d rows\n", len(quotes))
}

func fmtFloat(p *float64, format string) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf(format, *p)
}

func fmtStr(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}
