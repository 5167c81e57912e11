package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/samber/lo"
)

// DrawPageSize is the page size of draw listings.
const DrawPageSize = 20

// ActiveTickets lists the tickets of the batch on sale.
func (c *Client) ActiveTickets(ctx context.Context) ([]Ticket, error) {
	var resp []Ticket
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/tickets/active-batch", out: &resp}); err != nil {
		return nil, err
	}
	return resp, nil
}

// TicketByKey looks a ticket up by its number key.
func (c *Client) TicketByKey(ctx context.Context, key string) (*Ticket, error) {
	var resp Ticket
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/tickets/by-key" + pathEscape(key), out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Draws returns page of draws, newest first, keeping only verified results.
// Total is the backend count of all draws, verified or not.
func (c *Client) Draws(ctx context.Context, page int) (*DrawPage, error) {
	var draws []Draw
	header, err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/draws",
		query: url.Values{
			"page": {strconv.Itoa(page)},
			"size": {strconv.Itoa(DrawPageSize)},
			"sort": {"drawDate,desc"},
		},
		out: &draws,
	})
	if err != nil {
		return nil, err
	}

	verified := lo.Filter(draws, func(d Draw, _ int) bool {
		return d.VerificationStatus == DrawStatusVerified
	})
	total, err := strconv.Atoi(header.Get("X-Total-Count"))
	if err != nil {
		total = len(verified)
	}
	return &DrawPage{Draws: verified, Total: total}, nil
}

// HasMore reports whether page is followed by another page.
func (p *DrawPage) HasMore(page int) bool {
	pages := (p.Total + DrawPageSize - 1) / DrawPageSize
	return page+1 < pages
}
