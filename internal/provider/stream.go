package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"quotecache/internal/domain"
	"quotecache/internal/symbolmap"
)

// StreamConfig describes the provider's push endpoint.
type StreamConfig struct {
	URL        string // websocket endpoint
	APIKey     string
	MaxSymbols int // subscription cap; larger inputs are truncated
}

// subscribeMessage is the frame sent after dialing to scope the stream.
type subscribeMessage struct {
	Action string `json:"action"`
	Params struct {
		Symbols string `json:"symbols"`
	} `json:"params"`
}

// priceTick is one inbound push message. Only price events are handled.
type priceTick struct {
	Event      string   `json:"event"`
	Symbol     string   `json:"symbol"`
	Price      float64  `json:"price"`
	PercentChg *float64 `json:"percent_change"`
	DayVolume  *float64 `json:"day_volume"`
	Timestamp  int64    `json:"timestamp"`
}

// Subscriber holds one push connection scoped to a bounded symbol set.
// It does not self-heal: a read error flips IsOpen to false and the
// orchestrator is expected to close and reopen.
type Subscriber struct {
	conn    *websocket.Conn
	log     *slog.Logger
	open    atomic.Bool
	closeMu sync.Mutex
	closed  bool
}

// OpenStream dials the provider's push endpoint, subscribes to at most
// cfg.MaxSymbols of the given symbols, and starts a read loop that maps
// each inbound price tick to an internal symbol and hands it to onQuote as
// a partial quote (price, change percent, volume only — ticks carry no
// session range).
func OpenStream(ctx context.Context, cfg StreamConfig, symbols []string, overrides map[string]string, onQuote func(domain.Quote), log *slog.Logger) (*Subscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no api key configured")
	}
	if cfg.MaxSymbols > 0 && len(symbols) > cfg.MaxSymbols {
		symbols = symbols[:cfg.MaxSymbols]
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to subscribe")
	}

	providerSyms := make([]string, len(symbols))
	for i, sym := range symbols {
		providerSyms[i] = translate(sym, overrides)
	}
	// The tick payload does not always echo back the form we subscribed
	// with, so resolve ticks against a table built from the subscription
	// list instead of decoding ad hoc per tick.
	reverse := symbolmap.ReverseTable(symbols, overrides)

	dialURL := cfg.URL
	if strings.Contains(dialURL, "?") {
		dialURL += "&apikey=" + cfg.APIKey
	} else {
		dialURL += "?apikey=" + cfg.APIKey
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	var sub subscribeMessage
	sub.Action = "subscribe"
	sub.Params.Symbols = strings.Join(providerSyms, ",")
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing: %w", err)
	}

	s := &Subscriber{conn: conn, log: log}
	s.open.Store(true)
	go s.readLoop(reverse, onQuote)

	log.Info("stream subscribed", "symbols", len(symbols))
	return s, nil
}

// readLoop consumes inbound messages until the connection dies. Malformed
// messages are dropped silently; the first read error ends the loop.
func (s *Subscriber) readLoop(reverse map[string]string, onQuote func(domain.Quote)) {
	defer s.open.Store(false)
	for {
		var tick priceTick
		if err := s.conn.ReadJSON(&tick); err != nil {
			s.closeMu.Lock()
			wasClosed := s.closed
			s.closeMu.Unlock()
			if !wasClosed {
				s.log.Warn("stream read failed, connection dead", "error", err)
			}
			return
		}
		if tick.Event != "price" || tick.Symbol == "" {
			continue
		}

		internal := reverse[normalizeKey(tick.Symbol)]
		if internal == "" {
			internal = symbolmap.ToInternalSymbol(tick.Symbol)
		}

		observed := time.Now().UTC()
		if tick.Timestamp > 0 {
			observed = time.Unix(tick.Timestamp, 0).UTC()
		}
		price := tick.Price
		onQuote(domain.Quote{
			Symbol:     internal,
			ObservedAt: observed,
			Price:      &price,
			ChangePct:  tick.PercentChg,
			Volume:     tick.DayVolume,
		})
	}
}

// IsOpen reports whether the read loop is still consuming the connection.
func (s *Subscriber) IsOpen() bool {
	return s.open.Load()
}

// Close tears the connection down. Safe to call more than once.
func (s *Subscriber) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
}
