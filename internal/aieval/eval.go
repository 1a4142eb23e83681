// Package aieval classifies transcript fragments as humorous through a
// priority-ordered chain of AI providers with rate limiting, retry, and a
// content-addressed cache.
package aieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Evaluation is one provider's verdict on a fragment.
type Evaluation struct {
	IsFunny     bool      `json:"is_funny"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason"`
	Category    string    `json:"category,omitempty"`
	Provider    string    `json:"api_used"`
	Cached      bool      `json:"cached"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Context carries optional fragment metadata into the prompt.
type Context struct {
	Speaker  string
	Club     string
	Keywords []string
}

// Adapter is the provider capability contract.
type Adapter interface {
	Name() string
	EvaluateHumor(ctx context.Context, text string, ec *Context) (Evaluation, error)
}

// ProviderError is a typed transport failure from an adapter. Status 0 means
// the request never completed.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether a retry could plausibly succeed.
func (e *ProviderError) Transient() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == 408 || e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	}
	return false
}

const systemPrompt = `Jesteś ekspertem oceniającym humor w polskich wypowiedziach parlamentarnych. ` +
	`Fragment jest śmieszny, gdy zawiera celowy żart, ironię, absurd, gafę, przesadę lub wywołał reakcję sali. ` +
	`Neutralna wypowiedź merytoryczna ani standardowa procedura sejmowa nie są śmieszne. ` +
	`Odpowiedz wyłącznie obiektem JSON: {"is_funny": true/false, "confidence": liczba 0-1, "reason": "krótkie uzasadnienie"}.`

// userPrompt renders the fragment and optional context into the user message.
func userPrompt(text string, ec *Context) string {
	var b strings.Builder
	b.WriteString("Fragment wypowiedzi sejmowej:\n")
	b.WriteString(text)
	if ec != nil {
		if ec.Speaker != "" {
			b.WriteString("\n\nMówca: ")
			b.WriteString(ec.Speaker)
			if ec.Club != "" {
				b.WriteString(" (")
				b.WriteString(ec.Club)
				b.WriteString(")")
			}
		}
		if len(ec.Keywords) > 0 {
			b.WriteString("\nWykryte słowa kluczowe: ")
			b.WriteString(strings.Join(ec.Keywords, ", "))
		}
	}
	return b.String()
}

// extractJSON cuts the substring between the first '{' and the last '}'.
// Models routinely wrap the object in prose.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// parseEvaluation decodes a model response into an Evaluation.
func parseEvaluation(raw string) (Evaluation, error) {
	body, ok := extractJSON(raw)
	if !ok {
		return Evaluation{}, fmt.Errorf("no JSON object in response %q", truncate(raw, 120))
	}
	var out struct {
		IsFunny    bool    `json:"is_funny"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
		Category   string  `json:"category"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return Evaluation{}, fmt.Errorf("parse response: %w", err)
	}
	conf := out.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return Evaluation{
		IsFunny:    out.IsFunny,
		Confidence: conf,
		Reason:     strings.TrimSpace(out.Reason),
		Category:   strings.TrimSpace(out.Category),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
