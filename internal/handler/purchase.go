package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/lotto-share/internal/domain/checkout"
	"github.com/xenking/lotto-share/internal/domain/purchase"
)

const msgNotTracked = "No payment is being tracked for this order."

type landingResponse struct {
	*purchase.Landing
	// Checkout is the order record when it was started from this session.
	Checkout *checkout.Record `json:"checkout,omitempty"`
}

// PurchaseLanding resolves the redirect back from the payment gateway.
// Pending payments keep being watched in the background and can be polled
// with PurchaseStatus.
func (h *Handler) PurchaseLanding(c *gin.Context) {
	ctx := c.Request.Context()
	st := state(c)
	lg := zctx.From(ctx)

	r := purchase.ParseRedirect(c.Request.URL.Query())
	if r.Raw != "" {
		lg.Info("Unrecognised gateway status", zap.String("status", r.Raw))
	}

	token := c.GetString(tokenKey)
	var userID int64
	if token != "" {
		account, err := h.backend.Account(ctx)
		if err != nil {
			lg.Warn("Load account for landing", zap.Error(err))
			token = ""
		} else {
			userID = account.ID
		}
	}

	landing := h.tracker.Land(ctx, st.ID().String(), r, h.backend.ForCustomer(token, userID), token != "")
	resp := landingResponse{Landing: landing}

	if r.OrderID != "" {
		rec, err := h.checkouts.Get(ctx, r.OrderID)
		switch {
		case err == nil && rec.SessionID == st.ID():
			resp.Checkout = rec
		case err != nil && !errors.Is(err, checkout.ErrNotFound):
			lg.Warn("Load checkout record", zap.String("order_id", r.OrderID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, resp)
}

// PurchaseStatus returns the latest snapshot of a watched order.
func (h *Handler) PurchaseStatus(c *gin.Context) {
	snap, ok := h.tracker.Get(state(c).ID().String(), c.Param("orderId"))
	if !ok {
		abort(c, http.StatusNotFound, msgNotTracked)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// StopPurchase cancels the watch of an order, as when the customer leaves
// the result page.
func (h *Handler) StopPurchase(c *gin.Context) {
	if !h.tracker.Stop(state(c).ID().String(), c.Param("orderId")) {
		abort(c, http.StatusNotFound, msgNotTracked)
		return
	}
	c.Status(http.StatusNoContent)
}
