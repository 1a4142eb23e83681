package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sejmhumor/sejmhumor/internal/cache"
)

func testClient(baseURL string) *Client {
	return &Client{
		BaseURL:     baseURL,
		UserAgent:   "sejmhumor-test/1.0",
		MaxAttempts: 3,
		backoff:     func(int) time.Duration { return time.Millisecond },
	}
}

func TestFetch_JSONDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "sejmhumor-test") {
			t.Errorf("user agent: %s", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"num":1,"current":true}]`))
	}))
	defer srv.Close()

	res := testClient(srv.URL).Fetch(context.Background(), "/sejm/term", nil)
	if res.Kind != KindJSON {
		t.Fatalf("kind: %v", res.Kind)
	}
	arr, ok := res.JSON.([]any)
	if !ok || len(arr) != 1 {
		t.Fatalf("payload: %#v", res.JSON)
	}
}

func TestFetch_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	res := testClient(srv.URL).Fetch(context.Background(), "/sejm/term10", nil)
	if res.Kind != KindJSON {
		t.Fatalf("expected success after retries, got kind %v", res.Kind)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: %d", calls.Load())
	}
}

func TestFetch_NoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := testClient(srv.URL).Fetch(context.Background(), "/sejm/term99", nil)
	if !res.IsNil() {
		t.Fatal("expected nil result")
	}
	if calls.Load() != 1 {
		t.Fatalf("404 must not retry, calls: %d", calls.Load())
	}
}

func TestFetch_HonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var gap time.Duration
	var first time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			first = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			gap = time.Since(first)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	res := testClient(srv.URL).Fetch(context.Background(), "/sejm/term", nil)
	if res.Kind != KindJSON {
		t.Fatalf("kind: %v", res.Kind)
	}
	if gap < time.Second {
		t.Fatalf("Retry-After not honored, gap %v", gap)
	}
}

func TestFetch_HTMLValidation(t *testing.T) {
	short := strings.Repeat("x", MinHTMLLength-1)
	sentinel := "<html>" + strings.Repeat(" ", 60) + "An error has occurred</html>"
	long := "<html><p>" + strings.Repeat("treść ", 20) + "</p></html>"

	body := short
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}))
	defer srv.Close()
	c := testClient(srv.URL)

	if res := c.Fetch(context.Background(), "/a", nil); !res.IsNil() {
		t.Fatal("49-char body must be rejected")
	}
	body = sentinel
	if res := c.Fetch(context.Background(), "/b", nil); !res.IsNil() {
		t.Fatal("sentinel body must be rejected")
	}
	body = long
	if res := c.Fetch(context.Background(), "/c", nil); res.Kind != KindHTML {
		t.Fatal("valid HTML should pass")
	}
}

func TestFetch_BinaryDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer srv.Close()
	res := testClient(srv.URL).Fetch(context.Background(), "/sejm/term10/MP/1/photo", nil)
	if res.Kind != KindBinary || len(res.Bytes) != 3 {
		t.Fatalf("binary dispatch: %#v", res)
	}
}

func TestFetch_MemoryWriteThrough(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cached":true}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.Memory = cache.NewMemory(10)
	ctx := context.Background()
	if res := c.Fetch(ctx, "/sejm/term", nil); res.Kind != KindJSON {
		t.Fatal("first fetch failed")
	}
	if res := c.Fetch(ctx, "/sejm/term", nil); res.Kind != KindJSON {
		t.Fatal("second fetch failed")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", calls.Load())
	}
}

func TestCacheKey_SortedParams(t *testing.T) {
	a := CacheKey("/sejm/term10/proceedings", map[string]string{"b": "2", "a": "1"})
	b := CacheKey("/sejm/term10/proceedings", map[string]string{"a": "1", "b": "2"})
	if a != b {
		t.Fatalf("key order dependent: %s vs %s", a, b)
	}
	if a != "api_sejm_term10_proceedings#a=1&b=2" {
		t.Fatalf("key scheme: %s", a)
	}
}

func TestTTLFor(t *testing.T) {
	cases := []struct {
		endpoint string
		want     time.Duration
	}{
		{"/sejm/term10/MP", 12 * time.Hour},
		{"/sejm/term10/proceedings/12/2025-01-10/transcripts/5", 24 * time.Hour},
		{"/sejm/term10/proceedings/12", 6 * time.Hour},
		{"/sejm/term10/proceedings", time.Hour},
		{"/sejm/term", 30 * time.Minute},
	}
	for _, c := range cases {
		if got := TTLFor(c.endpoint); got != c.want {
			t.Errorf("TTLFor(%s) = %v, want %v", c.endpoint, got, c.want)
		}
	}
}

func TestClassifyHTTP(t *testing.T) {
	cases := map[int]Classification{
		200: ClassOK,
		304: ClassPermanent,
		403: ClassPermanent,
		404: ClassPermanent,
		418: ClassPermanent,
		429: ClassRateLimited,
		500: ClassTransient,
		503: ClassTransient,
	}
	for code, want := range cases {
		if got := ClassifyHTTP(code); got != want {
			t.Errorf("ClassifyHTTP(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestBackoff_Bounded(t *testing.T) {
	min, max := 500*time.Millisecond, 30*time.Second
	for attempt := 0; attempt < 12; attempt++ {
		d := Backoff(attempt, min, max)
		if d < min || d > max+time.Second {
			t.Fatalf("attempt %d: %v out of bounds", attempt, d)
		}
	}
}

func TestValidHTML_CountsRunes(t *testing.T) {
	// Two-byte runes: 49 characters is under the threshold even though the
	// byte length is well past it.
	if ValidHTML(strings.Repeat("ż", MinHTMLLength-1)) {
		t.Fatal("49 runes of two-byte text must be rejected")
	}
	if !ValidHTML(strings.Repeat("ż", MinHTMLLength)) {
		t.Fatal("50 runes should pass")
	}
}

func TestClientTTL_DefaultOverride(t *testing.T) {
	c := &Client{DefaultTTL: 2 * time.Hour}
	if got := c.ttlFor("/sejm/term"); got != 2*time.Hour {
		t.Fatalf("default ttl: %v", got)
	}
	// Pattern TTLs are not overridden.
	if got := c.ttlFor("/sejm/term10/MP"); got != 12*time.Hour {
		t.Fatalf("pattern ttl: %v", got)
	}
	if got := (&Client{}).ttlFor("/sejm/term"); got != DefaultMemoryTTL {
		t.Fatalf("unconfigured ttl: %v", got)
	}
}
