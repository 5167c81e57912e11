package backend

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xenking/lotto-share/internal/domain/withdrawal"
)

func formatID(v int64) string {
	return strconv.FormatInt(v, 10)
}

// UserExtra returns the profile of account userID.
func (c *Client) UserExtra(ctx context.Context, userID int64) (*UserExtra, error) {
	var resp UserExtra
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/user-extras/user" + pathEscape(formatID(userID)), out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateUserExtra replaces the profile.
func (c *Client) UpdateUserExtra(ctx context.Context, ux UserExtra) (*UserExtra, error) {
	var resp UserExtra
	if _, err := c.do(ctx, call{method: http.MethodPut, path: "/api/user-extras" + pathEscape(formatID(ux.ID)), body: ux, out: &resp}); err != nil {
		return nil, err
	}
	if resp.ID == 0 {
		resp = ux
	}
	return &resp, nil
}

// Transactions lists the movements of profile userExtraID.
func (c *Client) Transactions(ctx context.Context, userExtraID int64) ([]Transaction, error) {
	var resp []Transaction
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/transactions/by-user-extra" + pathEscape(formatID(userExtraID)), out: &resp}); err != nil {
		return nil, err
	}
	return resp, nil
}

// Purchases lists the shares bought by account userID.
func (c *Client) Purchases(ctx context.Context, userID int64) ([]Purchase, error) {
	var resp []Purchase
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/purchases/by-user" + pathEscape(formatID(userID)), out: &resp}); err != nil {
		return nil, err
	}
	return resp, nil
}

// Winnings lists the prizes of profile userExtraID.
func (c *Client) Winnings(ctx context.Context, userExtraID int64) ([]Winning, error) {
	var resp []Winning
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/winners/my-winnings" + pathEscape(formatID(userExtraID)), out: &resp}); err != nil {
		return nil, err
	}
	return resp, nil
}

// MyTickets lists the shares of profile userExtraID by draw state.
func (c *Client) MyTickets(ctx context.Context, userExtraID int64) (*MyTickets, error) {
	var resp MyTickets
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/slots/my-tickets" + pathEscape(formatID(userExtraID)), out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateWithdrawal submits a validated withdrawal request.
func (c *Client) CreateWithdrawal(ctx context.Context, req withdrawal.Request) error {
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/api/withdrawals", body: req})
	return err
}
