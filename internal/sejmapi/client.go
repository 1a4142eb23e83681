package sejmapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sejmhumor/sejmhumor/internal/fetch"
)

// ErrUnavailable is returned when the upstream resource yielded nothing
// usable (404/403, exhausted retries, or a rejected payload).
var ErrUnavailable = errors.New("resource unavailable")

// Client provides typed access to the parliamentary API. Every operation is
// a thin wrapper over the fetcher.
type Client struct {
	Fetcher *fetch.Client
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	res := c.Fetcher.Fetch(ctx, endpoint, nil)
	if res.Kind != fetch.KindJSON {
		return fmt.Errorf("%s: %w", endpoint, ErrUnavailable)
	}
	// Round-trip through the generic payload into the typed record.
	b, err := json.Marshal(res.JSON)
	if err != nil {
		return fmt.Errorf("%s: remarshal: %w", endpoint, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}

// Terms lists all parliamentary terms.
func (c *Client) Terms(ctx context.Context) ([]Term, error) {
	var out []Term
	err := c.getJSON(ctx, "/sejm/term", &out)
	return out, err
}

// Term returns one term.
func (c *Client) Term(ctx context.Context, n int) (Term, error) {
	var out Term
	err := c.getJSON(ctx, fmt.Sprintf("/sejm/term%d", n), &out)
	return out, err
}

// Sittings lists the proceedings of a term.
func (c *Client) Sittings(ctx context.Context, term int) ([]Sitting, error) {
	var out []Sitting
	err := c.getJSON(ctx, fmt.Sprintf("/sejm/term%d/proceedings", term), &out)
	return out, err
}

// Sitting returns one proceeding.
func (c *Client) Sitting(ctx context.Context, term, id int) (Sitting, error) {
	var out Sitting
	err := c.getJSON(ctx, fmt.Sprintf("/sejm/term%d/proceedings/%d", term, id), &out)
	return out, err
}

// StatementsDay lists the statements of one sitting day.
func (c *Client) StatementsDay(ctx context.Context, term, sitting int, date string) (StatementList, error) {
	var out StatementList
	err := c.getJSON(ctx, fmt.Sprintf("/sejm/term%d/proceedings/%d/%s/transcripts", term, sitting, date), &out)
	return out, err
}

// StatementHTML returns the raw HTML of one statement.
func (c *Client) StatementHTML(ctx context.Context, term, sitting int, date string, num int) (string, error) {
	res := c.Fetcher.Fetch(ctx, fmt.Sprintf("/sejm/term%d/proceedings/%d/%s/transcripts/%d", term, sitting, date, num), nil)
	if res.Kind != fetch.KindHTML {
		return "", ErrUnavailable
	}
	return res.HTML, nil
}

// StatementText returns the plain text of one statement, derived from HTML.
func (c *Client) StatementText(ctx context.Context, term, sitting int, date string, num int) (string, error) {
	raw, err := c.StatementHTML(ctx, term, sitting, date, num)
	if err != nil {
		return "", err
	}
	return HTMLToText(raw), nil
}

// Members lists the MPs of a term.
func (c *Client) Members(ctx context.Context, term int) ([]Member, error) {
	var out []Member
	err := c.getJSON(ctx, fmt.Sprintf("/sejm/term%d/MP", term), &out)
	return out, err
}

// Member returns one MP.
func (c *Client) Member(ctx context.Context, term, id int) (Member, error) {
	var out Member
	err := c.getJSON(ctx, fmt.Sprintf("/sejm/term%d/MP/%d", term, id), &out)
	return out, err
}

// MemberPhoto returns an MP portrait as raw bytes.
func (c *Client) MemberPhoto(ctx context.Context, term, id int) ([]byte, error) {
	res := c.Fetcher.Fetch(ctx, fmt.Sprintf("/sejm/term%d/MP/%d/photo", term, id), nil)
	if res.Kind != fetch.KindBinary {
		return nil, ErrUnavailable
	}
	return res.Bytes, nil
}

// Clubs lists the caucuses of a term.
func (c *Client) Clubs(ctx context.Context, term int) ([]Club, error) {
	var out []Club
	err := c.getJSON(ctx, fmt.Sprintf("/sejm/term%d/clubs", term), &out)
	return out, err
}

// Club returns one caucus.
func (c *Client) Club(ctx context.Context, term int, id string) (Club, error) {
	var out Club
	err := c.getJSON(ctx, fmt.Sprintf("/sejm/term%d/clubs/%s", term, id), &out)
	return out, err
}

// ClubLogo returns a caucus logo as raw bytes.
func (c *Client) ClubLogo(ctx context.Context, term int, id string) ([]byte, error) {
	res := c.Fetcher.Fetch(ctx, fmt.Sprintf("/sejm/term%d/clubs/%s/logo", term, id), nil)
	if res.Kind != fetch.KindBinary {
		return nil, ErrUnavailable
	}
	return res.Bytes, nil
}
