// Package checkout records payment orders created from session carts.
package checkout

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/xenking/lotto-share/internal/domain/cart"
)

var (
	// ErrNotFound is returned when no record exists for an order id.
	ErrNotFound = errors.New("checkout not found")
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidItem is returned for a cart item whose ticket id is not numeric.
	ErrInvalidItem = errors.New("invalid cart item")
)

// Record is a payment order accepted by the backend for a session cart.
type Record struct {
	OrderID   string          `json:"orderId"`
	SessionID uuid.UUID       `json:"sessionId"`
	Amount    decimal.Decimal `json:"amount"`
	Items     []cart.Item     `json:"items"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Repository stores checkout records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, orderID string) (*Record, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Record, error)
}

// NewRecord builds the record for items. The amount is the sum of item
// prices.
func NewRecord(orderID string, sessionID uuid.UUID, items []cart.Item, now time.Time) (*Record, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	amount := lo.Reduce(items, func(sum decimal.Decimal, it cart.Item, _ int) decimal.Decimal {
		return sum.Add(it.Price)
	}, decimal.Zero)

	return &Record{
		OrderID:   orderID,
		SessionID: sessionID,
		Amount:    amount,
		Items:     items,
		CreatedAt: now.UTC(),
	}, nil
}

// TicketIDs returns the numeric backend ids of the items in cart order.
func TicketIDs(items []cart.Item) ([]int64, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		id, err := strconv.ParseInt(it.TicketID, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.Wrapf(ErrInvalidItem, "ticket id %q", it.TicketID)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
