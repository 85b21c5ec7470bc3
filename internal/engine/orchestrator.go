// Package engine schedules the cache refresh work: periodic batch
// refresh, slow equity enrichment, and the live-stream reconciliation
// loop. Each timer runs independently; a failing or slow pass is skipped
// or logged, never allowed to halt the process.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quotecache/internal/config"
	"quotecache/internal/domain"
	"quotecache/internal/store"
	"quotecache/internal/universe"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// BatchFetcher retrieves quote snapshots for a symbol list. Implemented by
// provider.Fetcher.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, symbols []string, overrides map[string]string) []domain.Quote
}

// Enricher walks equity symbols fetching fundamentals. Implemented by
// provider.Enricher.
type Enricher interface {
	EnrichAll(ctx context.Context, symbols []string, apply func(symbol string, marketCap *float64, nextEarningsDate *string))
}

// StreamHandle is an open push connection. Implemented by
// provider.Subscriber.
type StreamHandle interface {
	IsOpen() bool
	Close()
}

// StreamOpener dials a new push connection for the given symbols, routing
// inbound ticks to onQuote.
type StreamOpener func(ctx context.Context, symbols []string, overrides map[string]string, onQuote func(domain.Quote)) (StreamHandle, error)

// Orchestrator coordinates the three producers writing into one store.
// It owns the store handle; fetch results are handed to the store here,
// not written by the fetchers themselves.
type Orchestrator struct {
	cfg        *config.Config
	store      store.QuoteStore
	fetcher    BatchFetcher
	enricher   Enricher
	openStream StreamOpener
	log        *slog.Logger

	// Timer periods, initialized from cfg; tests shorten them.
	BatchInterval  time.Duration
	EnrichInterval time.Duration
	ActiveInterval time.Duration
	HealthInterval time.Duration

	batchBusy  atomic.Bool
	enrichBusy atomic.Bool

	mu        sync.Mutex
	state     State
	universe  *universe.Universe
	active    []string
	stream    StreamHandle
}

// New wires an Orchestrator. openStream may be nil when streaming is
// disabled (no stream URL configured).
func New(cfg *config.Config, st store.QuoteStore, fetcher BatchFetcher, enricher Enricher, openStream StreamOpener, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:            cfg,
		store:          st,
		fetcher:        fetcher,
		enricher:       enricher,
		openStream:     openStream,
		log:            log,
		BatchInterval:  time.Duration(cfg.Refresh.BatchIntervalMin) * time.Minute,
		EnrichInterval: time.Duration(cfg.Refresh.EnrichIntervalHours) * time.Hour,
		ActiveInterval: 30 * time.Second,
		HealthInterval: 60 * time.Second,
		state:          StateStarting,
		universe:       &universe.Universe{ProviderOverrides: map[string]string{}},
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.log.Info("orchestrator state", "state", string(s))
}

// Run drives the orchestrator until ctx is cancelled. On entry it performs
// one synchronous batch refresh, one enrichment pass, and opens the stream
// if any active symbols exist; thereafter four independent timers fire for
// the lifetime of the run. Run only returns after teardown is complete.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.setState(StateRunning)

	o.guard("batch", &o.batchBusy, func() { o.batchPass(ctx) })
	o.guard("enrich", &o.enrichBusy, func() { o.enrichPass(ctx) })
	o.activePass()
	o.healthPass(ctx)

	batchTicker := time.NewTicker(o.BatchInterval)
	defer batchTicker.Stop()
	enrichTicker := time.NewTicker(o.EnrichInterval)
	defer enrichTicker.Stop()
	activeTicker := time.NewTicker(o.ActiveInterval)
	defer activeTicker.Stop()
	healthTicker := time.NewTicker(o.HealthInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.setState(StateStopping)
			o.closeStream()
			o.setState(StateStopped)
			return nil
		case <-batchTicker.C:
			go o.guard("batch", &o.batchBusy, func() { o.batchPass(ctx) })
		case <-enrichTicker.C:
			go o.guard("enrich", &o.enrichBusy, func() { o.enrichPass(ctx) })
		case <-activeTicker.C:
			o.activePass()
		case <-healthTicker.C:
			o.healthPass(ctx)
		}
	}
}

// guard runs fn with an in-progress flag and panic recovery. An
// overlapping tick for the same task is skipped, never queued.
func (o *Orchestrator) guard(name string, busy *atomic.Bool, fn func()) {
	if !busy.CompareAndSwap(false, true) {
		o.log.Warn("previous pass still running, skipping tick", "task", name)
		return
	}
	defer busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pass panicked", "task", name, "panic", r)
		}
	}()
	fn()
}

// batchPass re-reads the universe and refreshes every symbol's quote.
func (o *Orchestrator) batchPass(ctx context.Context) {
	u, err := universe.Load(o.cfg.Universe.Paths)
	if err != nil {
		o.log.Error("loading universe", "error", err)
	}
	o.mu.Lock()
	o.universe = u
	o.mu.Unlock()

	if len(u.Symbols) == 0 {
		o.log.Warn("empty universe, nothing to refresh")
		return
	}

	quotes := o.fetcher.FetchBatch(ctx, u.Symbols, u.ProviderOverrides)
	if len(quotes) == 0 {
		o.log.Warn("batch refresh yielded no quotes")
		return
	}
	if err := o.store.UpsertMany(ctx, quotes); err != nil {
		o.log.Error("persisting batch refresh", "error", err, "quotes", len(quotes))
		return
	}
	o.log.Info("batch refresh persisted", "quotes", len(quotes))
}

// enrichPass refreshes fundamentals for the equity-like subset.
func (o *Orchestrator) enrichPass(ctx context.Context) {
	o.mu.Lock()
	equities := append([]string(nil), o.universe.EquitySymbols...)
	o.mu.Unlock()

	if len(equities) == 0 {
		return
	}
	o.enricher.EnrichAll(ctx, equities, func(symbol string, marketCap *float64, nextEarningsDate *string) {
		if err := o.store.UpdateEnrichment(ctx, symbol, marketCap, nextEarningsDate); err != nil {
			o.log.Error("persisting enrichment", "symbol", symbol, "error", err)
		}
	})
}

// activePass re-reads the active-symbols file. No network I/O; the health
// pass consults the result when deciding whether to (re)subscribe.
func (o *Orchestrator) activePass() {
	active := universe.LoadActive(o.cfg.Universe.ActivePath, o.cfg.Refresh.MaxStreamSymbols)
	o.mu.Lock()
	o.active = active
	o.mu.Unlock()
}

// healthPass reopens the push connection when active symbols exist and the
// current connection is absent or dead.
func (o *Orchestrator) healthPass(ctx context.Context) {
	if o.openStream == nil {
		return
	}
	o.mu.Lock()
	active := append([]string(nil), o.active...)
	overrides := o.universe.ProviderOverrides
	stream := o.stream
	o.mu.Unlock()

	if len(active) == 0 {
		return
	}
	if stream != nil && stream.IsOpen() {
		return
	}
	if stream != nil {
		stream.Close()
	}

	s, err := o.openStream(ctx, active, overrides, func(q domain.Quote) {
		if err := o.store.UpsertOne(ctx, q); err != nil {
			o.log.Error("persisting stream tick", "symbol", q.Symbol, "error", err)
		}
	})
	if err != nil {
		o.log.Warn("opening stream failed", "error", err, "symbols", len(active))
		o.mu.Lock()
		o.stream = nil
		o.mu.Unlock()
		return
	}
	o.mu.Lock()
	o.stream = s
	o.mu.Unlock()
	o.log.Info("stream connection established", "symbols", len(active))
}

func (o *Orchestrator) closeStream() {
	o.mu.Lock()
	stream := o.stream
	o.stream = nil
	o.mu.Unlock()
	if stream != nil {
		stream.Close()
	}
}
