// One-shot tool: run a single full batch refresh and exit.
//
// Usage:
//
//	go run cmd/qc-refresh/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"quotecache/internal/config"
	"quotecache/internal/provider"
	"quotecache/internal/store"
	"quotecache/internal/universe"
	"quotecache/internal/util"
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

	logger := util.NewLogger(cfg.Logging.Level, "text")
	slog.SetDefault(logger)

	u, err := universe.Load(cfg.Universe.Paths)
	if err != nil {
		log.Fatalf("failed to load universe: %v", err)
	}
	if len(u.Symbols) == 0 {
		log.Fatalf("no universe found in any of %v", cfg.Universe.Paths)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	client := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.CreditsPerMinute)
	fetcher := provider.NewFetcher(client, cfg.Refresh.ChunkSize, logger)
	fetcher.ForceSingle = cfg.Refresh.SingleSymbolMode
	fetcher.MaxSymbols = cfg.Refresh.MaxSymbolsPerRun

	ctx := context.Background()
	quotes := fetcher.FetchBatch(ctx, u.Symbols, u.ProviderOverrides)
	if err := st.UpsertMany(ctx, quotes); err != nil {
		log.Fatalf("failed to persist quotes: %v", err)
	}

	logger.Info("refresh complete", "requested", len(u.Symbols), "persisted", len(quotes))
}
