package handler

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/ticket"
	"github.com/xenking/lotto-share/internal/domain/withdrawal"
)

const msgProfileMissing = "Failed to load profile."

// customer is the authenticated account with its profile. extra is nil while
// the customer has no profile yet.
type customer struct {
	account *backend.Account
	extra   *backend.UserExtra
}

// owner prefers the profile names over the account ones.
func (cu customer) owner() ticket.Owner {
	o := ticket.Owner{
		FirstName: cu.account.FirstName,
		LastName:  cu.account.LastName,
		Email:     cu.account.Email,
	}
	if cu.extra != nil && cu.extra.User != nil {
		o.FirstName = cmp.Or(cu.extra.User.FirstName, o.FirstName)
		o.LastName = cmp.Or(cu.extra.User.LastName, o.LastName)
		o.Email = cmp.Or(cu.extra.User.Email, o.Email)
	}
	return o
}

func (h *Handler) customer(ctx context.Context) (customer, error) {
	account, err := h.backend.Account(ctx)
	if err != nil {
		return customer{}, err
	}
	extra, err := h.backend.UserExtra(ctx, account.ID)
	if err != nil && !backend.IsKind(err, backend.KindNotFound) {
		return customer{}, err
	}
	return customer{account: account, extra: extra}, nil
}

// profileExtra loads the customer profile, answering 404 when there is none.
func (h *Handler) profileExtra(c *gin.Context) (*backend.UserExtra, bool) {
	cust, err := h.customer(c.Request.Context())
	if err != nil {
		fail(c, err, flow{fallback: msgProfileMissing})
		return nil, false
	}
	if cust.extra == nil {
		abort(c, http.StatusNotFound, msgProfileMissing)
		return nil, false
	}
	return cust.extra, true
}

type profileResponse struct {
	Account  *backend.Account   `json:"account"`
	Profile  *backend.UserExtra `json:"profile"`
	Complete bool               `json:"complete"`
}

func newProfileResponse(cu customer) profileResponse {
	o := cu.owner()
	return profileResponse{
		Account:  cu.account,
		Profile:  cu.extra,
		Complete: o.FirstName != "" && o.LastName != "" && o.Email != "",
	}
}

// GetProfile returns the account and profile of the customer.
func (h *Handler) GetProfile(c *gin.Context) {
	cust, err := h.customer(c.Request.Context())
	if err != nil {
		fail(c, err, flow{fallback: msgProfileMissing})
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(cust))
}

type profileRequest struct {
	FirstName     string `json:"firstName" binding:"required"`
	LastName      string `json:"lastName" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Gender        string `json:"gender"`
	Nationality   string `json:"nationality"`
	Address       string `json:"address"`
	StateProvince string `json:"stateProvince"`
	Country       string `json:"country"`
	CityTown      string `json:"cityTown"`
	ZipPostalCode string `json:"zipPostalCode" binding:"omitempty,numeric"`
}

// UpdateProfile replaces the editable profile fields.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	cust, err := h.customer(ctx)
	if err != nil {
		fail(c, err, flow{fallback: msgProfileMissing})
		return
	}
	if cust.extra == nil {
		abort(c, http.StatusNotFound, msgProfileMissing)
		return
	}

	ux := *cust.extra
	ux.Gender = req.Gender
	ux.Nationality = req.Nationality
	ux.Address = req.Address
	ux.StateProvince = req.StateProvince
	ux.Country = req.Country
	ux.CityTown = req.CityTown
	ux.ZipPostalCode = req.ZipPostalCode
	user := backend.User{ID: cust.account.ID}
	if ux.User != nil {
		user = *ux.User
	}
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.Email = req.Email
	ux.User = &user

	updated, err := h.backend.UpdateUserExtra(ctx, ux)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to update profile. Please try again."})
		return
	}
	cust.extra = updated
	c.JSON(http.StatusOK, newProfileResponse(cust))
}

// Purchases lists the shares the customer bought.
func (h *Handler) Purchases(c *gin.Context) {
	ctx := c.Request.Context()
	account, err := h.backend.Account(ctx)
	if err != nil {
		fail(c, err, flow{fallback: msgProfileMissing})
		return
	}
	list, err := h.backend.Purchases(ctx, account.ID)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load your purchases."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": lo.Ternary(list == nil, []backend.Purchase{}, list)})
}

// Transactions lists the wallet and payment movements of the customer.
func (h *Handler) Transactions(c *gin.Context) {
	ux, ok := h.profileExtra(c)
	if !ok {
		return
	}
	list, err := h.backend.Transactions(c.Request.Context(), ux.ID)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load transactions."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": lo.Ternary(list == nil, []backend.Transaction{}, list)})
}

type winningsResponse struct {
	Winnings []backend.Winning `json:"winnings"`
	Total    decimal.Decimal   `json:"total"`
}

// Winnings lists the prizes of the customer with their sum.
func (h *Handler) Winnings(c *gin.Context) {
	ux, ok := h.profileExtra(c)
	if !ok {
		return
	}
	list, err := h.backend.Winnings(c.Request.Context(), ux.ID)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load winnings."})
		return
	}
	c.JSON(http.StatusOK, winningsResponse{
		Winnings: lo.Ternary(list == nil, []backend.Winning{}, list),
		Total: lo.Reduce(list, func(sum decimal.Decimal, w backend.Winning, _ int) decimal.Decimal {
			return sum.Add(w.PrizeAmount)
		}, decimal.Zero),
	})
}

// unknownOID marks shares whose ticket lookup failed.
const unknownOID = "N/A"

// MyTickets lists the shares of the customer split into upcoming and past
// draws, each annotated with the OID of its ticket.
func (h *Handler) MyTickets(c *gin.Context) {
	ux, ok := h.profileExtra(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	mt, err := h.backend.MyTickets(ctx, ux.ID)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load tickets."})
		return
	}

	slots := slices.Concat(mt.Upcoming, mt.Past)
	oids := h.lookupOIDs(ctx, lo.Uniq(lo.Map(slots, func(s backend.TicketSlot, _ int) string {
		return s.TicketKey
	})))
	for i := range slots {
		slots[i].OID = oids[slots[i].TicketKey]
	}

	now := h.clock.Now()
	upcoming, past := lo.FilterReject(slots, func(s backend.TicketSlot, _ int) bool {
		at, ok := parseDrawDate(s.DrawDate)
		return ok && at.After(now)
	})
	c.JSON(http.StatusOK, backend.MyTickets{
		Upcoming: lo.Ternary(upcoming == nil, []backend.TicketSlot{}, upcoming),
		Past:     lo.Ternary(past == nil, []backend.TicketSlot{}, past),
	})
}

// lookupOIDs resolves ticket keys to OIDs with bounded concurrency. Failed
// lookups map to unknownOID.
func (h *Handler) lookupOIDs(ctx context.Context, keys []string) map[string]string {
	oids := make([]string, len(keys))
	var g errgroup.Group
	g.SetLimit(h.cfg.LookupConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			t, err := h.backend.TicketByKey(ctx, key)
			if err != nil {
				zctx.From(ctx).Debug("Ticket lookup failed", zap.String("ticket_key", key), zap.Error(err))
				oids[i] = unknownOID
				return nil
			}
			oids[i] = t.OID
			return nil
		})
	}
	_ = g.Wait()
	return lo.SliceToMap(lo.Range(len(keys)), func(i int) (string, string) {
		return keys[i], oids[i]
	})
}

var drawDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseDrawDate(s string) (time.Time, bool) {
	for _, layout := range drawDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type withdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	FullName      string          `json:"fullName" binding:"required"`
	Address       string          `json:"address" binding:"required"`
	PanCard       string          `json:"panCard" binding:"required,pan"`
	AccountNumber string          `json:"accountNumber" binding:"required,account"`
	IfscCode      string          `json:"ifscCode" binding:"required,ifsc"`
	SwiftCode     string          `json:"swiftCode" binding:"omitempty,swift"`
}

// CreateWithdrawal submits a prize withdrawal for the customer profile.
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ux, ok := h.profileExtra(c)
	if !ok {
		return
	}

	wr := withdrawal.Request{
		UserExtraID:   ux.ID,
		Amount:        req.Amount,
		FullName:      req.FullName,
		Address:       req.Address,
		PanCard:       req.PanCard,
		AccountNumber: req.AccountNumber,
		IfscCode:      req.IfscCode,
		SwiftCode:     req.SwiftCode,
	}
	wr.Normalize()
	if err := wr.Validate(); err != nil {
		fail(c, err, flow{})
		return
	}

	if err := h.backend.CreateWithdrawal(c.Request.Context(), wr); err != nil {
		fail(c, err, flow{
			fallback: "Your withdrawal request could not be processed. You might already have a pending request.",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"submitted": true})
}
