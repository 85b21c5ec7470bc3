package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"quotecache/internal/domain"
	"quotecache/internal/symbolmap"
	"quotecache/internal/util"
)

// Delays groups the pacing knobs of a batch run. Tests zero them.
type Delays struct {
	InterChunk   time.Duration // between successful chunks
	Fallback     time.Duration // after each per-symbol fallback request
	Cooldown     time.Duration // after the first rate-limit event
	SingleSymbol time.Duration // between requests in degraded single mode
}

// DefaultDelays returns the production pacing schedule.
func DefaultDelays() Delays {
	return Delays{
		InterChunk:   2 * time.Second,
		Fallback:     1 * time.Second,
		Cooldown:     30 * time.Second,
		SingleSymbol: 10 * time.Second,
	}
}

// Fetcher retrieves current quote snapshots in chunked batch requests,
// degrading to one-symbol-per-request mode under sustained provider
// throttling.
type Fetcher struct {
	client *Client
	log    *slog.Logger

	// ChunkSize is the number of symbols per multi-symbol request.
	ChunkSize int
	// ForceSingle bypasses chunking entirely (low rate-budget deployments).
	ForceSingle bool
	// MaxSymbols caps the symbols processed per run; 0 means unlimited.
	MaxSymbols int
	// Delays is the pacing schedule.
	Delays Delays
}

// NewFetcher creates a Fetcher with the default pacing schedule.
func NewFetcher(client *Client, chunkSize int, log *slog.Logger) *Fetcher {
	if chunkSize <= 0 {
		chunkSize = 8
	}
	return &Fetcher{
		client:    client,
		log:       log,
		ChunkSize: chunkSize,
		Delays:    DefaultDelays(),
	}
}

// FetchBatch retrieves snapshots for symbols, translating each through the
// override map first and the static symbol map second. Symbols that yield
// no valid response are omitted from the result. The call never fails
// outright: every error path degrades to fewer rows.
//
// Rate-limit strategy: the first throttling event pauses for the cooldown
// and retries the same chunk once; a second event within the same call
// abandons chunked mode and walks every remaining symbol one request at a
// time with a long inter-request delay.
func (f *Fetcher) FetchBatch(ctx context.Context, symbols []string, overrides map[string]string) []domain.Quote {
	if !f.client.HasKey() {
		f.log.Warn("no provider credential configured, skipping batch fetch")
		return nil
	}
	if f.MaxSymbols > 0 && len(symbols) > f.MaxSymbols {
		symbols = symbols[:f.MaxSymbols]
	}
	if len(symbols) == 0 {
		return nil
	}

	var out []domain.Quote
	single := f.ForceSingle
	rateLimitEvents := 0

	i := 0
	for i < len(symbols) {
		if single {
			out = append(out, f.fetchSequential(ctx, symbols[i:], overrides)...)
			break
		}
		if ctx.Err() != nil {
			break
		}

		end := i + f.ChunkSize
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := symbols[i:end]

		found, err := f.fetchChunk(ctx, chunk, overrides)
		if err != nil {
			if IsRateLimited(err) {
				rateLimitEvents++
				if rateLimitEvents == 1 {
					f.log.Warn("provider rate limit hit, cooling down", "cooldown", f.Delays.Cooldown, "chunk", chunk)
					if util.Sleep(ctx, f.Delays.Cooldown) != nil {
						break
					}
					continue // retry the same chunk once
				}
				f.log.Warn("second rate limit event, degrading to single-symbol mode", "remaining", len(symbols)-i)
				single = true
				continue
			}
			f.log.Error("chunk fetch failed, skipping chunk", "chunk", chunk, "error", err)
			i = end
			continue
		}

		for _, sym := range chunk {
			q, ok := found[sym]
			if !ok {
				// Partial chunk responses are usually symbol-specific, so
				// give each missing symbol one dedicated request.
				if fq, fok := f.fetchOne(ctx, sym, overrides); fok {
					q, ok = fq, true
				}
				if util.Sleep(ctx, f.Delays.Fallback) != nil {
					break
				}
			}
			if ok {
				out = append(out, q)
			}
		}

		i = end
		if i < len(symbols) {
			if util.Sleep(ctx, f.Delays.InterChunk) != nil {
				break
			}
		}
	}

	f.log.Info("batch fetch complete", "requested", len(symbols), "fetched", len(out))
	return out
}

// fetchSequential walks symbols one request at a time with the long
// single-mode delay. Used for the degraded path and for ForceSingle.
func (f *Fetcher) fetchSequential(ctx context.Context, symbols []string, overrides map[string]string) []domain.Quote {
	var out []domain.Quote
	for n, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		if q, ok := f.fetchOne(ctx, sym, overrides); ok {
			out = append(out, q)
		}
		if n < len(symbols)-1 {
			if util.Sleep(ctx, f.Delays.SingleSymbol) != nil {
				break
			}
		}
	}
	return out
}

// fetchChunk issues one multi-symbol request and returns the valid quotes
// keyed by internal symbol.
func (f *Fetcher) fetchChunk(ctx context.Context, chunk []string, overrides map[string]string) (map[string]domain.Quote, error) {
	providerSyms := make([]string, len(chunk))
	for i, sym := range chunk {
		providerSyms[i] = translate(sym, overrides)
	}

	params := url.Values{}
	params.Set("symbol", strings.Join(providerSyms, ","))
	body, err := f.client.get(ctx, "/quote", params)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		f.log.Error("undecodable chunk response", "chunk", chunk, "body", snippet(body))
		return map[string]domain.Quote{}, nil
	}
	raws, ok := detectShape(decoded)
	if !ok {
		f.log.Warn("chunk response matched no known shape", "chunk", chunk, "body", snippet(body))
		return map[string]domain.Quote{}, nil
	}

	reverse := symbolmap.ReverseTable(chunk, overrides)
	found := make(map[string]domain.Quote, len(raws))
	for _, r := range raws {
		providerSym, q, valid := parseQuote(r)
		if !valid {
			f.log.Warn("skipping symbol with invalid price", "provider_symbol", providerSym)
			continue
		}
		internal := reverse[normalizeKey(providerSym)]
		if internal == "" {
			internal = symbolmap.ToInternalSymbol(providerSym)
		}
		q.Symbol = internal
		found[internal] = q
	}
	return found, nil
}

// fetchOne issues a dedicated single-symbol request. Failures of any kind
// are logged and reported as a miss.
func (f *Fetcher) fetchOne(ctx context.Context, symbol string, overrides map[string]string) (domain.Quote, bool) {
	params := url.Values{}
	params.Set("symbol", translate(symbol, overrides))
	body, err := f.client.get(ctx, "/quote", params)
	if err != nil {
		f.log.Warn("single-symbol fetch failed", "symbol", symbol, "error", err)
		return domain.Quote{}, false
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		f.log.Warn("undecodable single-symbol response", "symbol", symbol, "body", snippet(body))
		return domain.Quote{}, false
	}
	raws, ok := detectShape(decoded)
	if !ok || len(raws) == 0 {
		f.log.Warn("single-symbol response matched no known shape", "symbol", symbol, "body", snippet(body))
		return domain.Quote{}, false
	}

	_, q, valid := parseQuote(raws[0])
	if !valid {
		f.log.Warn("skipping symbol with invalid price", "symbol", symbol)
		return domain.Quote{}, false
	}
	q.Symbol = symbol
	return q, true
}

func translate(symbol string, overrides map[string]string) string {
	if p := overrides[symbol]; p != "" {
		return p
	}
	return symbolmap.ToProviderSymbol(symbol)
}

func normalizeKey(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "/", "")
}
