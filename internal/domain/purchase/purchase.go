// Package purchase observes the payment state of orders after the customer
// returns from the payment gateway. The order state machine is owned by the
// backend; this package only reads it and nudges the backend to reconcile
// with the gateway.
package purchase

import (
	"context"
	"strings"
)

// Status is the backend-owned state of a payment order.
type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
)

// ParseStatus normalises a status string reported by the backend.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Purchase is a ticket share owned by the customer after a successful payment.
type Purchase struct {
	ID           int64  `json:"id"`
	Date         string `json:"date,omitempty"`
	TicketID     int64  `json:"ticketId,omitempty"`
	TicketKey    string `json:"ticketKey,omitempty"`
	TicketNumber string `json:"ticketNumber,omitempty"`
	Batch        string `json:"batch,omitempty"`
}

// Backend is the subset of the backend API the poller needs. It is bound to
// one customer, so ListPurchases needs no user id.
type Backend interface {
	OrderStatus(ctx context.Context, orderID string) (Status, error)
	Reconcile(ctx context.Context, orderID string) error
	ListPurchases(ctx context.Context) ([]Purchase, error)
}
