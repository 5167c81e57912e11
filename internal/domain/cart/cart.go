// Package cart holds the client-side shopping cart of ticket shares. The cart
// lives in session storage until checkout turns it into a payment request.
package cart

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxItems is the maximum number of shares a cart may hold.
const MaxItems = 4

// SessionKey is the session storage key the cart is persisted under.
const SessionKey = "cart-items"

var (
	// ErrCartFull is returned by Add when the cart already holds MaxItems.
	ErrCartFull = errors.New("cart is full")
	// ErrAlreadyInCart is returned by Add when the ticket is already present.
	ErrAlreadyInCart = errors.New("ticket already in cart")
)

// Item is a single ticket share selected by the customer.
type Item struct {
	TicketID      string          `json:"ticketId"`
	TicketOID     string          `json:"ticketOid,omitempty"`
	TicketNumbers []int           `json:"ticketNumbers"`
	Slot          int             `json:"slot"`
	Price         decimal.Decimal `json:"price"`
}

// Storage persists raw cart payloads for one session.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Cart is the state container for one session's cart. It is not safe for
// concurrent use; callers serialise access per session.
type Cart struct {
	storage     Storage
	items       []Item
	showSticker bool
}

// Load restores the cart from storage. A missing or empty entry yields an
// empty cart.
func Load(ctx context.Context, storage Storage) (*Cart, error) {
	raw, err := storage.Get(ctx, SessionKey)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	c := &Cart{storage: storage}
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c.items); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return c, nil
}

// Items returns a copy of the cart contents in insertion order.
func (c *Cart) Items() []Item {
	return slices.Clone(c.items)
}

// Len returns the number of items in the cart.
func (c *Cart) Len() int {
	return len(c.items)
}

// Contains reports whether a ticket is already in the cart.
func (c *Cart) Contains(ticketID string) bool {
	return slices.ContainsFunc(c.items, func(it Item) bool {
		return it.TicketID == ticketID
	})
}

// Subtotal sums the prices of all items.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Price)
	}
	return total
}

// Add appends item and persists the cart. When the cart is full or already
// contains the ticket it is left unchanged and ErrCartFull or
// ErrAlreadyInCart is returned.
func (c *Cart) Add(ctx context.Context, item Item) error {
	if len(c.items) >= MaxItems {
		return ErrCartFull
	}
	if c.Contains(item.TicketID) {
		return ErrAlreadyInCart
	}

	c.items = append(c.items, item)
	c.showSticker = true
	return c.save(ctx)
}

// Remove drops the item with the given ticket id and persists the rest.
func (c *Cart) Remove(ctx context.Context, ticketID string) error {
	c.items = slices.DeleteFunc(c.items, func(it Item) bool {
		return it.TicketID == ticketID
	})
	return c.save(ctx)
}

// Clear empties the cart and persists the empty list.
func (c *Cart) Clear(ctx context.Context) error {
	c.items = nil
	return c.save(ctx)
}

// TakeSticker reports whether an item was just added and resets the flag.
// The flag is a one-shot notification signal and is never persisted.
func (c *Cart) TakeSticker() bool {
	shown := c.showSticker
	c.showSticker = false
	return shown
}

func (c *Cart) save(ctx context.Context) error {
	items := c.items
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := c.storage.Set(ctx, SessionKey, raw); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}
