package aieval

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sejmhumor/sejmhumor/internal/cache"
)

// minEvalLength is the shortest fragment text worth sending to a provider,
// counted in runes.
const minEvalLength = 20

// batchDelay paces uncached evaluations within a batch.
const batchDelay = 500 * time.Millisecond

// BatchItem is one fragment queued for evaluation.
type BatchItem struct {
	Text    string
	Context *Context
}

// BatchStats summarizes one EvaluateBatch run.
type BatchStats struct {
	Total       int `json:"total"`
	FunnyCount  int `json:"funny_count"`
	CachedCount int `json:"cached_count"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
}

// Evaluator drives the provider chain. Providers are tried in order; each
// gets its own rate limiter and linear retry. A failed chain yields a
// non-throwing "none" verdict.
type Evaluator struct {
	Cache      *cache.EvalCache
	MaxRetries int

	adapters []Adapter
	limiters map[string]*rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewEvaluator orders adapters primary-first and builds per-provider rate
// limiters from calls-per-minute capacities.
func NewEvaluator(c *cache.EvalCache, primary string, adapters []Adapter, perMinute map[string]int) *Evaluator {
	ordered := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a.Name() == primary {
			ordered = append(ordered, a)
		}
	}
	for _, a := range adapters {
		if a.Name() != primary {
			ordered = append(ordered, a)
		}
	}

	limiters := make(map[string]*rate.Limiter, len(perMinute))
	for _, a := range ordered {
		if n := perMinute[a.Name()]; n > 0 {
			limiters[a.Name()] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		}
	}

	return &Evaluator{
		Cache:      c,
		MaxRetries: 3,
		adapters:   ordered,
		limiters:   limiters,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// Evaluate classifies one fragment text. The cache is probed first; a hit
// returns the stored verdict with cached=true.
func (e *Evaluator) Evaluate(ctx context.Context, text string, ec *Context) Evaluation {
	key := cache.EvalKey(text)
	if raw, ok := e.Cache.Get(key); ok {
		var ev Evaluation
		if err := json.Unmarshal(raw, &ev); err == nil {
			ev.Cached = true
			return ev
		}
	}

	var lastErr error
	for _, a := range e.adapters {
		if lim := e.limiters[a.Name()]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}
		ev, err := e.callWithRetry(ctx, a, text, ec)
		if err != nil {
			log.Warn().Err(err).Str("provider", a.Name()).Msg("provider failed, trying next")
			lastErr = err
			continue
		}
		ev.Provider = a.Name()
		ev.Cached = false
		ev.EvaluatedAt = e.now()
		if payload, merr := json.Marshal(ev); merr == nil {
			if serr := e.Cache.Save(key, payload); serr != nil {
				log.Warn().Err(serr).Msg("eval cache save failed")
			}
		}
		return ev
	}

	reason := "no providers configured"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	return Evaluation{Provider: "none", Reason: reason, EvaluatedAt: e.now()}
}

// callWithRetry retries transient failures with linear backoff.
func (e *Evaluator) callWithRetry(ctx context.Context, a Adapter, text string, ec *Context) (Evaluation, error) {
	attempts := e.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, time.Duration(attempt+1)*2*time.Second); err != nil {
				return Evaluation{}, err
			}
		}
		ev, err := a.EvaluateHumor(ctx, text, ec)
		if err == nil {
			return ev, nil
		}
		lastErr = err
		var pe *ProviderError
		if errors.As(err, &pe) && !pe.Transient() {
			break
		}
	}
	return Evaluation{}, lastErr
}

// EvaluateBatch classifies a slice of fragments, skipping texts under 20
// characters and pacing uncached provider calls. The cache is flushed at the
// end regardless of outcome.
func (e *Evaluator) EvaluateBatch(ctx context.Context, items []BatchItem) ([]Evaluation, BatchStats) {
	stats := BatchStats{Total: len(items)}
	evals := make([]Evaluation, len(items))

	defer func() {
		if err := e.Cache.Flush(); err != nil {
			log.Warn().Err(err).Msg("eval cache flush failed")
		}
	}()

	for i, item := range items {
		if ctx.Err() != nil {
			stats.Errors += len(items) - i
			break
		}
		if utf8.RuneCountInString(item.Text) < minEvalLength {
			evals[i] = Evaluation{Provider: "skipped", Reason: "text too short"}
			stats.Skipped++
			continue
		}
		ev := e.Evaluate(ctx, item.Text, item.Context)
		evals[i] = ev
		switch {
		case ev.Provider == "none":
			stats.Errors++
		case ev.Cached:
			stats.CachedCount++
		}
		if ev.IsFunny {
			stats.FunnyCount++
		}
		if !ev.Cached && ev.Provider != "none" && i < len(items)-1 {
			if err := e.sleep(ctx, batchDelay); err != nil {
				stats.Errors += len(items) - i - 1
				break
			}
		}
	}
	return evals, stats
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
