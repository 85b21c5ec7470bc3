// quotecached is the long-running cache daemon: it refreshes the full
// symbol universe on a schedule, enriches equities with fundamentals, and
// keeps a live push subscription open for the active symbol set.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quotecache/internal/config"
	"quotecache/internal/domain"
	"quotecache/internal/engine"
	"quotecache/internal/provider"
	"quotecache/internal/store"
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

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir %s: %v", cfg.Storage.DataDir, err)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store %s: %v", cfg.Storage.SQLitePath, err)
	}
	defer st.Close()

	client := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.CreditsPerMinute)

	fetcher := provider.NewFetcher(client, cfg.Refresh.ChunkSize, logger)
	fetcher.ForceSingle = cfg.Refresh.SingleSymbolMode
	fetcher.MaxSymbols = cfg.Refresh.MaxSymbolsPerRun
	if ms := cfg.Refresh.SingleSymbolDelayMS; ms > 0 {
		fetcher.Delays.SingleSymbol = time.Duration(ms) * time.Millisecond
	}

	enricher := provider.NewEnricher(client, logger)

	var opener engine.StreamOpener
	if cfg.Provider.StreamURL != "" {
		streamCfg := provider.StreamConfig{
			URL:        cfg.Provider.StreamURL,
			APIKey:     cfg.Provider.APIKey,
			MaxSymbols: cfg.Refresh.MaxStreamSymbols,
		}
		opener = func(ctx context.Context, symbols []string, overrides map[string]string, onQuote func(domain.Quote)) (engine.StreamHandle, error) {
			return provider.OpenStream(ctx, streamCfg, symbols, overrides, onQuote, logger)
		}
	}

	orch := engine.New(cfg, st, fetcher, enricher, opener, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("quotecached starting", "db", cfg.Storage.SQLitePath, "batch_interval_min", cfg.Refresh.BatchIntervalMin)
	if err := orch.Run(ctx); err != nil {
		log.Fatalf("orchestrator error: %v", err)
	}
	logger.Info("quotecached stopped")
}
