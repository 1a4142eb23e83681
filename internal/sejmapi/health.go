package sejmapi

import (
	"context"
	"fmt"
)

// Health is the outcome of a connectivity probe against the upstream API.
type Health struct {
	Score  float64  `json:"score"`
	Checks int      `json:"checks"`
	Passed int      `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

// HealthCheck probes the API surface end to end: the term list, the sitting
// list for the given term, one historical day's statement index, and one
// statement HTML body. Score is the fraction of checks that passed.
func (c *Client) HealthCheck(ctx context.Context, term int) Health {
	h := Health{}
	fail := func(format string, args ...any) {
		h.Errors = append(h.Errors, fmt.Sprintf(format, args...))
	}

	h.Checks++
	terms, err := c.Terms(ctx)
	if err != nil || len(terms) == 0 {
		fail("terms: %v", err)
	} else {
		h.Passed++
	}

	h.Checks++
	sittings, err := c.Sittings(ctx, term)
	if err != nil || len(sittings) == 0 {
		fail("sittings(term %d): %v", term, err)
	} else {
		h.Passed++
	}

	// Find one historical day to probe.
	var sitting int
	var date string
	for _, s := range sittings {
		if s.Number <= 0 || len(s.Dates) == 0 {
			continue
		}
		sitting, date = s.Number, s.Dates[0]
		break
	}
	if sitting > 0 && date != "" {
		h.Checks++
		day, err := c.StatementsDay(ctx, term, sitting, date)
		if err != nil || len(day.Statements) == 0 {
			fail("statements(%d/%d/%s): %v", term, sitting, date, err)
		} else {
			h.Passed++
			h.Checks++
			if _, err := c.StatementHTML(ctx, term, sitting, date, day.Statements[0].Num); err != nil {
				fail("statement html: %v", err)
			} else {
				h.Passed++
			}
		}
	}

	if h.Checks > 0 {
		h.Score = float64(h.Passed) / float64(h.Checks)
	}
	return h
}
