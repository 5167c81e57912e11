package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/draw"
	"github.com/xenking/lotto-share/internal/domain/ticket"
)

type ticketView struct {
	ticket.Ticket
	InCart bool `json:"inCart"`
}

type ticketsResponse struct {
	Tickets []ticketView `json:"tickets"`
	// SlotsPerTicket is the number of shares each ticket is split into.
	SlotsPerTicket int `json:"slotsPerTicket"`
}

// Tickets lists the active batch sorted by OID, marking tickets that
// are already in the cart.
func (h *Handler) Tickets(c *gin.Context) {
	ctx := c.Request.Context()

	list, err := h.backend.ActiveTickets(ctx)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load tickets."})
		return
	}
	crt, err := state(c).Cart(ctx)
	if err != nil {
		fail(c, err, flow{})
		return
	}

	tickets := lo.Map(list, func(t backend.Ticket, _ int) ticket.Ticket {
		return ticket.New(t.ID, t.OID, t.TicketKey, lo.FromPtr(t.AvailableSlot))
	})
	ticket.Sort(tickets)

	c.JSON(http.StatusOK, ticketsResponse{
		Tickets: lo.Map(tickets, func(t ticket.Ticket, _ int) ticketView {
			return ticketView{Ticket: t, InCart: crt.Contains(strconv.FormatInt(t.ID, 10))}
		}),
		SlotsPerTicket: ticket.SlotsPerTicket,
	})
}

type countdownResponse struct {
	NextDraw    time.Time `json:"nextDraw"`
	SecondsLeft int64     `json:"secondsLeft"`
	draw.Remaining
}

// Countdown reports the time left until the next weekly draw.
func (h *Handler) Countdown(c *gin.Context) {
	now := h.clock.Now()
	left := h.schedule.SecondsUntil(now)
	c.JSON(http.StatusOK, countdownResponse{
		NextDraw:    h.schedule.Next(now),
		SecondsLeft: left,
		Remaining:   draw.Split(left),
	})
}

type drawsQuery struct {
	Page int `form:"page" binding:"min=0"`
}

type drawsResponse struct {
	Draws   []backend.Draw `json:"draws"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	HasMore bool           `json:"hasMore"`
}

// Draws returns one page of verified draw results.
func (h *Handler) Draws(c *gin.Context) {
	var q drawsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	page, err := h.backend.Draws(c.Request.Context(), q.Page)
	if err != nil {
		fail(c, err, flow{fallback: "Failed to load draws."})
		return
	}
	c.JSON(http.StatusOK, drawsResponse{
		Draws:   lo.Ternary(page.Draws == nil, []backend.Draw{}, page.Draws),
		Total:   page.Total,
		Page:    q.Page,
		HasMore: page.HasMore(q.Page),
	})
}
