package provider

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"quotecache/internal/domain"
)

// The vendor is not consistent about the shape of a multi-symbol quote
// response: usually a list, sometimes a map keyed by symbol, rarely a flat
// object mixing metadata with per-symbol sub-objects. Each shape gets its
// own pure detector, tried in that order; the first match wins.

// rawQuote is one per-symbol object lifted out of a response before field
// parsing. Key is the map key the object was found under, if any.
type rawQuote struct {
	key    string
	fields map[string]any
}

// detectShape returns the per-symbol objects found in a decoded response,
// or false when no known shape matches.
func detectShape(v any) ([]rawQuote, bool) {
	for _, detect := range []func(any) ([]rawQuote, bool){shapeList, shapeMap, shapeFlat} {
		if raws, ok := detect(v); ok {
			return raws, true
		}
	}
	return nil, false
}

// shapeList matches a JSON array of quote objects.
func shapeList(v any) ([]rawQuote, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	var out []rawQuote
	for _, item := range list {
		if m, ok := item.(map[string]any); ok && looksLikeQuote(m) {
			out = append(out, rawQuote{fields: m})
		}
	}
	return out, len(out) > 0
}

// shapeMap matches an object keyed by symbol where every value is a quote
// object.
func shapeMap(v any) ([]rawQuote, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	var out []rawQuote
	for key, item := range m {
		sub, ok := item.(map[string]any)
		if !ok || !looksLikeQuote(sub) {
			return nil, false
		}
		out = append(out, rawQuote{key: key, fields: sub})
	}
	return out, len(out) > 0
}

// shapeFlat matches an object mixing scalar metadata with per-symbol quote
// sub-objects at the top level; non-quote values are ignored. As a special
// case an object that is itself a single quote matches too.
func shapeFlat(v any) ([]rawQuote, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if looksLikeQuote(m) {
		return []rawQuote{{fields: m}}, true
	}
	var out []rawQuote
	for key, item := range m {
		if sub, ok := item.(map[string]any); ok && looksLikeQuote(sub) {
			out = append(out, rawQuote{key: key, fields: sub})
		}
	}
	return out, len(out) > 0
}

// looksLikeQuote reports whether the object carries any price-like field.
func looksLikeQuote(m map[string]any) bool {
	for _, k := range []string{"price", "close", "last"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Field parsing
// ---------------------------------------------------------------------------

// parseQuote converts one raw per-symbol object into a domain quote. The
// returned symbol is the provider's notation (callers translate back to
// internal notation); ok is false when no valid price is present.
func parseQuote(r rawQuote) (providerSymbol string, q domain.Quote, ok bool) {
	providerSymbol = r.key
	if s, found := stringField(r.fields, "symbol"); found && s != "" {
		providerSymbol = s
	}

	price, found := numField(r.fields, "price", "close", "last")
	if !found || math.IsNaN(price) || math.IsInf(price, 0) {
		return providerSymbol, q, false
	}
	q.Price = &price

	if v, found := numField(r.fields, "percent_change", "change_percent", "change_pct"); found {
		q.ChangePct = &v
	}
	if v, found := volumeField(r.fields); found {
		q.Volume = &v
	}
	if v, found := numField(r.fields, "low", "day_low"); found {
		q.DayLow = &v
	}
	if v, found := numField(r.fields, "high", "day_high"); found {
		q.DayHigh = &v
	}
	q.ObservedAt = observedAt(r.fields)
	return providerSymbol, q, true
}

// volumeField reads volume leniently: the field name varies by asset class
// and values may arrive as comma-grouped strings.
func volumeField(m map[string]any) (float64, bool) {
	return numField(m, "volume", "day_volume", "base_volume", "rolling_24h_volume")
}

// numField parses the first present key as a float, accepting JSON numbers
// and strings (commas stripped).
func numField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f, true
			}
		case string:
			s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// observedAt extracts the provider timestamp (unix seconds or a datetime
// string), defaulting to local capture time.
func observedAt(m map[string]any) time.Time {
	if v, found := numField(m, "timestamp"); found && v > 0 {
		return time.Unix(int64(v), 0).UTC()
	}
	if s, found := stringField(m, "datetime"); found {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Now().UTC()
}

// providerError sniffs a body for the vendor's {"code":N,"message":...}
// error envelope.
func providerError(body []byte) (code int, msg string, ok bool) {
	var env struct {
		Status  string `json:"status"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, "", false
	}
	if env.Message == "" && env.Status != "error" {
		return 0, "", false
	}
	return env.Code, env.Message, env.Message != "" || env.Status == "error"
}
