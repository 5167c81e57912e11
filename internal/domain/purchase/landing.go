package purchase

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Landing is what the customer sees after returning from the gateway.
type Landing struct {
	OrderID   string     `json:"orderId,omitempty"`
	Outcome   Outcome    `json:"outcome"`
	Warn      string     `json:"warn,omitempty"`
	Failed    bool       `json:"failed"`
	Pending   bool       `json:"pending"`
	Purchases []Purchase `json:"purchases"`
	Watch     *Snapshot  `json:"watch,omitempty"`
}

// Land resolves a gateway redirect for owner.
//
// A failure redirect is final. A pending redirect starts a background watch
// (which reconciles on entry when configured) unless another owner already
// watches the order, in which case it is reported pending without a watch. Success and unrecognised
// redirects reconcile once when an order id is present and then load the
// purchase list; anonymous visitors get an empty success.
func (t *Tracker) Land(ctx context.Context, owner string, r Redirect, backend Backend, authenticated bool) *Landing {
	res := &Landing{
		OrderID:   r.OrderID,
		Outcome:   r.Outcome,
		Warn:      r.Warn,
		Purchases: []Purchase{},
	}

	switch r.Outcome {
	case OutcomeFailure:
		res.Failed = true
		return res
	case OutcomePending:
		res.Pending = true
		if r.OrderID == "" {
			return res
		}
		// An order watched by another visitor stays pending without a handle.
		if snap, ok := t.Watch(owner, r.OrderID, backend); ok {
			res.Watch = &snap
		}
		return res
	}

	if !authenticated {
		return res
	}

	lg := zctx.From(ctx).With(zap.String("order_id", r.OrderID))
	if r.OrderID != "" {
		if err := backend.Reconcile(ctx, r.OrderID); err != nil {
			lg.Warn("Gateway reconciliation failed", zap.String("reason", "landing"), zap.Error(err))
		}
	}

	purchases, err := backend.ListPurchases(ctx)
	if err != nil {
		lg.Warn("Load purchases", zap.Error(err))
		res.Failed = true
		return res
	}
	res.Purchases = append(res.Purchases, purchases...)
	return res
}
