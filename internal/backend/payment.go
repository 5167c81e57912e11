package backend

import (
	"context"
	"net/http"

	"github.com/samber/lo"

	"github.com/xenking/lotto-share/internal/domain/purchase"
)

// InitiatePayment creates a payment order for the cart.
func (c *Client) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	var resp InitiatePaymentResponse
	if _, err := c.do(ctx, call{method: http.MethodPost, path: "/api/payment/initiate", body: req, out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatusCheck asks the backend to reconcile orderID with the gateway.
func (c *Client) StatusCheck(ctx context.Context, orderID string) error {
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/api/payment/status-check" + pathEscape(orderID)})
	return err
}

// TransactionStatus reads the backend status of orderID.
func (c *Client) TransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	var resp TransactionStatus
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/transactions/status" + pathEscape(orderID), out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

var _ purchase.Backend = (*PurchaseBackend)(nil)

// PurchaseBackend binds the client to one customer for purchase pollers.
// The bearer token is captured so background pollers outlive the request
// that started them.
type PurchaseBackend struct {
	client *Client
	token  string
	userID int64
}

// ForCustomer returns a purchase.Backend acting as the account userID.
func (c *Client) ForCustomer(token string, userID int64) *PurchaseBackend {
	return &PurchaseBackend{client: c, token: token, userID: userID}
}

func (b *PurchaseBackend) OrderStatus(ctx context.Context, orderID string) (purchase.Status, error) {
	resp, err := b.client.TransactionStatus(WithToken(ctx, b.token), orderID)
	if err != nil {
		return "", err
	}
	return purchase.ParseStatus(resp.Status), nil
}

func (b *PurchaseBackend) Reconcile(ctx context.Context, orderID string) error {
	return b.client.StatusCheck(WithToken(ctx, b.token), orderID)
}

func (b *PurchaseBackend) ListPurchases(ctx context.Context) ([]purchase.Purchase, error) {
	list, err := b.client.Purchases(WithToken(ctx, b.token), b.userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(list, func(p Purchase, _ int) purchase.Purchase {
		out := purchase.Purchase{
			ID:           p.ID,
			Date:         p.Date,
			TicketNumber: p.TicketNumber,
			Batch:        p.Batch,
		}
		if p.Ticket != nil {
			out.TicketID = p.Ticket.ID
			out.TicketKey = p.Ticket.TicketKey
		}
		return out
	}), nil
}
