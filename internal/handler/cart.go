package handler

import (
	"cmp"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/cart"
	"github.com/xenking/lotto-share/internal/domain/checkout"
	"github.com/xenking/lotto-share/internal/domain/ticket"
)

type cartResponse struct {
	Items    []cart.Item     `json:"items"`
	Count    int             `json:"count"`
	MaxItems int             `json:"maxItems"`
	Subtotal decimal.Decimal `json:"subtotal"`
	// ShowSticker is set on the response of the request that added an item.
	ShowSticker bool `json:"showSticker"`
}

func newCartResponse(crt *cart.Cart) cartResponse {
	return cartResponse{
		Items:       crt.Items(),
		Count:       crt.Len(),
		MaxItems:    cart.MaxItems,
		Subtotal:    crt.Subtotal(),
		ShowSticker: crt.TakeSticker(),
	}
}

// GetCart returns the session cart.
func (h *Handler) GetCart(c *gin.Context) {
	crt, err := state(c).Cart(c.Request.Context())
	if err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, newCartResponse(crt))
}

type addCartItemRequest struct {
	TicketID int64 `json:"ticketId" binding:"required,gt=0"`
}

// AddCartItem adds one share of an active ticket to the cart. The customer
// needs a complete profile and must not already hold a share of the ticket.
func (h *Handler) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	st := state(c)

	list, err := h.backend.ActiveTickets(ctx)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load tickets."})
		return
	}
	bt, ok := lo.Find(list, func(t backend.Ticket) bool { return t.ID == req.TicketID })
	if !ok {
		abort(c, http.StatusNotFound, "This ticket is no longer available.")
		return
	}
	t := ticket.New(bt.ID, bt.OID, bt.TicketKey, lo.FromPtr(bt.AvailableSlot))

	cust, err := h.customer(ctx)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load profile."})
		return
	}
	purchases, err := h.backend.Purchases(ctx, cust.account.ID)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load your purchases."})
		return
	}
	purchased := lo.FilterMap(purchases, func(p backend.Purchase, _ int) (int64, bool) {
		if p.Ticket == nil {
			return 0, false
		}
		return p.Ticket.ID, true
	})
	if err := ticket.CheckEligibility(cust.owner(), purchased, t); err != nil {
		fail(c, err, flow{})
		return
	}

	unlock := h.locker.Lock(st.ID())
	defer unlock()

	crt, err := st.Cart(ctx)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	if err := crt.Add(ctx, t.CartItem()); err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusCreated, newCartResponse(crt))
}

// RemoveCartItem drops a ticket from the cart. Removing an absent ticket is
// not an error.
func (h *Handler) RemoveCartItem(c *gin.Context) {
	ctx := c.Request.Context()
	st := state(c)

	unlock := h.locker.Lock(st.ID())
	defer unlock()

	crt, err := st.Cart(ctx)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	if err := crt.Remove(ctx, c.Param("ticketId")); err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, newCartResponse(crt))
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(c *gin.Context) {
	ctx := c.Request.Context()
	st := state(c)

	unlock := h.locker.Lock(st.ID())
	defer unlock()

	crt, err := st.Cart(ctx)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	if err := crt.Clear(ctx); err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, newCartResponse(crt))
}

// fallbackMobile is sent when the profile has no phone number.
const fallbackMobile = "0000000000"

// Checkout asks the backend to prepare a gateway payment for the cart and
// returns the form the browser must post to the gateway. The cart is cleared
// once the payment order exists.
func (h *Handler) Checkout(c *gin.Context) {
	ctx := c.Request.Context()
	st := state(c)
	lg := zctx.From(ctx)

	unlock := h.locker.Lock(st.ID())
	defer unlock()

	crt, err := st.Cart(ctx)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	if crt.Len() == 0 {
		fail(c, checkout.ErrEmptyCart, flow{})
		return
	}

	cust, err := h.customer(ctx)
	if err == nil && cust.extra == nil {
		abort(c, http.StatusConflict, "User info not loaded. Please wait a moment and try again.")
		return
	}
	if err != nil {
		fail(c, err, flow{fallback: "User info not loaded. Please wait a moment and try again."})
		return
	}

	items := crt.Items()
	ids, err := checkout.TicketIDs(items)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	amount := crt.Subtotal()
	resp, err := h.backend.InitiatePayment(ctx, backend.InitiatePaymentRequest{
		UserExtraID: cust.extra.ID,
		Email:       cust.owner().Email,
		Mobile:      cmp.Or(cust.extra.PhoneNumber, fallbackMobile),
		Amount:      amount,
		Items: lo.Map(items, func(it cart.Item, i int) backend.PaymentItem {
			return backend.PaymentItem{TicketID: ids[i], Slot: it.Slot, Price: it.Price}
		}),
	})
	if err != nil {
		fail(c, err, flow{fallback: "Payment initiation failed!"})
		return
	}

	lg = lg.With(zap.String("order_id", resp.OrderID))
	if resp.OrderID != "" {
		rec, err := checkout.NewRecord(resp.OrderID, st.ID(), items, h.clock.Now())
		if err == nil {
			err = h.checkouts.Create(ctx, rec)
		}
		if err != nil {
			lg.Warn("Save checkout record", zap.Error(err))
		}
	}
	if err := crt.Clear(ctx); err != nil {
		lg.Warn("Clear cart after checkout", zap.Error(err))
	}
	lg.Info("Payment initiated", zap.Int("items", len(items)), zap.Stringer("amount", amount))

	c.JSON(http.StatusOK, resp)
}

type checkoutsResponse struct {
	Checkouts []checkout.Record `json:"checkouts"`
}

// Checkouts lists the payment orders started from this session, newest
// first.
func (h *Handler) Checkouts(c *gin.Context) {
	list, err := h.checkouts.ListBySession(c.Request.Context(), state(c).ID())
	if err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, checkoutsResponse{Checkouts: lo.Ternary(list == nil, []checkout.Record{}, list)})
}
