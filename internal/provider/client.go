// Package provider talks to the external market-data vendor: chunked
// quote-batch requests with rate-limit degradation, one-shot fundamentals
// lookups, and the websocket price stream. All entry points are best
// effort; failures are logged and skipped, never propagated past the
// package boundary as fatal.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"quotecache/internal/util"
)

// ratePattern fuzzily matches provider error messages reporting rate or
// credit exhaustion. The vendor is not consistent about wording.
var ratePattern = regexp.MustCompile(`(?i)(rate|credit|limit)`)

// errRateLimited marks a response rejected by provider throttling.
var errRateLimited = errors.New("provider rate limited")

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, errRateLimited)
}

// Client is a thin HTTP client for the vendor's REST endpoints. An empty
// API key turns every call into an immediate no-data error so the engine
// never issues doomed unauthenticated requests.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	limiter *util.RateLimiter
}

// NewClient creates a Client for baseURL. creditsPerMinute > 0 enables a
// client-side token bucket pacing sustained request volume.
func NewClient(baseURL, apiKey string, creditsPerMinute int) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		limiter: util.NewRateLimiter(creditsPerMinute),
	}
}

// HasKey reports whether a credential is configured.
func (c *Client) HasKey() bool { return c.apiKey != "" }

// errNoKey is returned when no credential is configured.
var errNoKey = errors.New("no api key configured")

// get issues one GET against path with query params, returning the raw
// body. 429 responses and provider error payloads whose message matches
// the rate pattern surface as errRateLimited.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errNoKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("apikey", c.apiKey)
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: %w", path, errRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s -> %d: %s", path, resp.StatusCode, snippet(body))
	}

	// Some throttling rejections come back as HTTP 200 with an error
	// payload; sniff the message before handing the body to a parser.
	if code, msg, ok := providerError(body); ok && ratePattern.MatchString(msg) {
		return nil, fmt.Errorf("provider error code=%d msg=%q: %w", code, msg, errRateLimited)
	}

	return body, nil
}

// snippet truncates a raw response for log and error context.
func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
