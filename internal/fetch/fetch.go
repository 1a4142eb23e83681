package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sejmhumor/sejmhumor/internal/cache"
)

// Kind tags the variants of a fetch result.
type Kind int

const (
	KindNil Kind = iota
	KindJSON
	KindHTML
	KindBinary
)

// Result is the tagged union returned by Fetch. KindNil covers permanent
// failures and exhausted retries; the fetcher never returns an error to
// callers outside the transport.
type Result struct {
	Kind  Kind
	JSON  any
	HTML  string
	Bytes []byte
}

// IsNil reports whether the fetch produced nothing usable.
func (r Result) IsNil() bool { return r.Kind == KindNil }

// MinHTMLLength is the minimum accepted transcript HTML payload size.
const MinHTMLLength = 50

// htmlErrorSentinels mark upstream error pages served with status 200.
var htmlErrorSentinels = []string{
	"An error has occurred",
	"Wystąpił błąd przetwarzania",
	"Request processing failed",
}

// Client issues rate-paced, retrying GETs against the parliamentary API and
// writes successful responses through to the memory cache.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts       int
	PerRequestTimeout time.Duration
	MinBackoff        time.Duration
	MaxBackoff        time.Duration
	// Limiter enforces the per-host minimum inter-request delay.
	Limiter *rate.Limiter
	// Memory, when set, receives successful responses with endpoint TTLs.
	Memory *cache.Memory
	// DefaultTTL overrides the generic fallback TTL for endpoints outside
	// the pattern table.
	DefaultTTL time.Duration
	// BypassCache skips the cache probe but still writes through.
	BypassCache bool

	// backoff is overridable in tests; nil uses Backoff with the
	// configured bounds.
	backoff func(attempt int) time.Duration
}

// CacheKey builds the canonical cache key for an endpoint and its params:
// api_<path-with-underscores>#k=v&k=v with keys sorted.
func CacheKey(endpoint string, params map[string]string) string {
	path := strings.Trim(endpoint, "/")
	path = strings.ReplaceAll(path, "/", "_")
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return "api_" + path + "#" + strings.Join(pairs, "&")
}

// DefaultMemoryTTL applies to endpoints with no pattern-specific TTL.
const DefaultMemoryTTL = 30 * time.Minute

// TTLFor derives the write-through TTL from the endpoint pattern.
func TTLFor(endpoint string) time.Duration {
	switch {
	case strings.Contains(endpoint, "/MP"):
		return 12 * time.Hour
	case strings.Contains(endpoint, "/transcripts/"):
		return 24 * time.Hour
	case strings.Contains(endpoint, "/proceedings/"):
		return 6 * time.Hour
	case strings.HasSuffix(endpoint, "/proceedings"):
		return time.Hour
	default:
		return DefaultMemoryTTL
	}
}

// ttlFor applies the client's configured default to endpoints outside the
// pattern table.
func (c *Client) ttlFor(endpoint string) time.Duration {
	d := TTLFor(endpoint)
	if d == DefaultMemoryTTL && c.DefaultTTL > 0 {
		return c.DefaultTTL
	}
	return d
}

// Fetch GETs endpoint (joined to BaseURL) with query params and dispatches
// the response on content type. It blocks on the pacing limiter, retries
// transient failures with bounded backoff, honors Retry-After on 429, and
// returns a nil result on permanent failures or exhausted retries.
func (c *Client) Fetch(ctx context.Context, endpoint string, params map[string]string) Result {
	key := CacheKey(endpoint, params)
	if c.Memory != nil && !c.BypassCache {
		if v, ok := c.Memory.Get(key); ok {
			if r, ok := v.(Result); ok {
				return r
			}
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return Result{}
			}
		}
		res, retryAfter, err := c.tryOnce(ctx, endpoint, params)
		if err == nil {
			if res.Kind != KindNil && c.Memory != nil {
				c.Memory.Set(key, res, c.ttlFor(endpoint))
			}
			return res
		}
		if ctx.Err() != nil {
			return Result{}
		}
		if attempt == attempts-1 {
			log.Warn().Str("endpoint", truncate(endpoint, 80)).Err(err).Msg("fetch retries exhausted")
			return Result{}
		}
		wait := retryAfter
		if wait <= 0 {
			if c.backoff != nil {
				wait = c.backoff(attempt)
			} else {
				wait = Backoff(attempt, c.MinBackoff, c.MaxBackoff)
			}
		}
		log.Debug().Str("endpoint", truncate(endpoint, 80)).Dur("wait", wait).Int("attempt", attempt+1).Msg("fetch backoff")
		if err := sleepCtx(ctx, wait); err != nil {
			return Result{}
		}
	}
	return Result{}
}

// tryOnce performs one request. A nil error with a KindNil result means a
// permanent failure (no retry); a non-nil error is retryable.
func (c *Client) tryOnce(ctx context.Context, endpoint string, params map[string]string) (Result, time.Duration, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return Result{}, 0, nil
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	reqCtx := ctx
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, 0, nil
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "pl,en;q=0.9")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return Result{}, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch ClassifyHTTP(resp.StatusCode) {
	case ClassTransient:
		return Result{}, 0, fmt.Errorf("server error: %d", resp.StatusCode)
	case ClassRateLimited:
		return Result{}, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("rate limited: %d", resp.StatusCode)
	case ClassPermanent:
		if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusNotFound {
			log.Debug().Str("endpoint", truncate(endpoint, 80)).Int("status", resp.StatusCode).Msg("permanent client error")
		}
		return Result{}, 0, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, 0, fmt.Errorf("read body: %w", err)
	}
	log.Debug().Str("endpoint", truncate(endpoint, 80)).Int("bytes", len(body)).Dur("elapsed", time.Since(start)).Msg("fetched")

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(ct, "application/json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			log.Warn().Str("endpoint", truncate(endpoint, 80)).Err(err).Msg("malformed JSON payload")
			return Result{}, 0, nil
		}
		return Result{Kind: KindJSON, JSON: v}, 0, nil
	case strings.HasPrefix(ct, "text/html"):
		s := string(body)
		if !ValidHTML(s) {
			return Result{}, 0, nil
		}
		return Result{Kind: KindHTML, HTML: s}, 0, nil
	default:
		return Result{Kind: KindBinary, Bytes: body}, 0, nil
	}
}

// ValidHTML rejects payloads below the length threshold or containing a
// known upstream error sentinel. Length counts runes, not bytes, so
// multibyte Polish text is not over-counted.
func ValidHTML(s string) bool {
	if utf8.RuneCountInString(s) < MinHTMLLength {
		return false
	}
	for _, sentinel := range htmlErrorSentinels {
		if strings.Contains(s, sentinel) {
			return false
		}
	}
	return true
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
