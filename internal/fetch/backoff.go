package fetch

import (
	"math/rand"
	"net/http"
	"time"
)

// Classification buckets HTTP status codes for the retry policy.
type Classification int

const (
	ClassOK Classification = iota
	ClassTransient
	ClassRateLimited
	ClassPermanent
)

// ClassifyHTTP maps a status code onto the retry policy. 403 and 404 are
// permanent; other 4xx are permanent too but callers may log them louder.
func ClassifyHTTP(status int) Classification {
	switch {
	case status >= 200 && status < 300:
		return ClassOK
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= 500:
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// Backoff returns the sleep before retry attempt (0-based): exponential
// doubling of min bounded by max, plus up to one second of jitter.
func Backoff(attempt int, min, max time.Duration) time.Duration {
	if min <= 0 {
		min = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	d := min << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	return d + time.Duration(rand.Int63n(int64(time.Second)))
}
