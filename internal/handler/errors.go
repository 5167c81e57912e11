package handler

import (
	"cmp"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/cart"
	"github.com/xenking/lotto-share/internal/domain/checkout"
	"github.com/xenking/lotto-share/internal/domain/session"
	"github.com/xenking/lotto-share/internal/domain/ticket"
	"github.com/xenking/lotto-share/internal/domain/withdrawal"
)

const (
	msgNetwork      = "Network error. Please try again."
	msgInternal     = "Something went wrong. Please try again."
	msgUnauthorized = "Your session has expired. Please log in again."
)

// apiError is the error body of every /web endpoint.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// Fields maps invalid request fields to a reason.
	Fields map[string]string `json:"fields,omitempty"`
	// RemainingSeconds is the cooldown left on throttled OTP requests.
	RemainingSeconds int `json:"remainingSeconds,omitempty"`
}

func abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, apiError{Code: code, Message: msg})
}

// flow holds the user facing messages of one backend interaction.
type flow struct {
	// fallback is used when the backend error carries no message.
	fallback string
	// byStatus replaces the message for specific backend statuses.
	byStatus map[int]string
}

// fail writes the response for err. Backend errors keep their status unless
// the backend itself failed, domain errors map to fixed statuses, anything
// else is a 500.
func fail(c *gin.Context, err error, f flow) {
	ctx := c.Request.Context()
	lg := zctx.From(ctx)

	if st, ok := backend.AsStatus(err); ok {
		code := st.Code
		msg := cmp.Or(f.byStatus[st.Code], st.Message, f.fallback, msgInternal)
		switch {
		case code == http.StatusUnauthorized && f.byStatus[code] == "":
			msg = msgUnauthorized
		case code >= http.StatusInternalServerError:
			lg.Warn("Backend failed", zap.Error(err))
			code = http.StatusBadGateway
			msg = cmp.Or(f.byStatus[st.Code], f.fallback, msgInternal)
		}
		c.AbortWithStatusJSON(code, apiError{
			Code:             code,
			Message:          msg,
			RemainingSeconds: st.RemainingSeconds,
		})
		return
	}

	var verr *withdrawal.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, apiError{
			Code:    http.StatusUnprocessableEntity,
			Message: "Please correct the highlighted fields.",
			Fields:  verr.Fields,
		})
	case errors.Is(err, cart.ErrCartFull):
		abort(c, http.StatusConflict, "Your cart is full. You can add up to 4 tickets.")
	case errors.Is(err, cart.ErrAlreadyInCart):
		abort(c, http.StatusConflict, "This ticket is already in your cart.")
	case errors.Is(err, ticket.ErrProfileIncomplete):
		abort(c, http.StatusUnprocessableEntity, "Please fill up your profile info")
	case errors.Is(err, ticket.ErrAlreadyPurchased):
		abort(c, http.StatusConflict, "You have already purchased this ticket.")
	case errors.Is(err, checkout.ErrEmptyCart):
		abort(c, http.StatusBadRequest, "Your cart is empty.")
	case errors.Is(err, checkout.ErrInvalidItem):
		lg.Warn("Invalid cart item", zap.Error(err))
		abort(c, http.StatusBadRequest, "Your cart contains an invalid ticket. Please clear it and try again.")
	case errors.Is(err, session.ErrUnsupportedLocale):
		abort(c, http.StatusBadRequest, "Unsupported language.")
	case errors.Is(err, context.Canceled):
		c.Abort()
	case backend.IsUnavailable(err):
		lg.Warn("Backend unavailable", zap.Error(err))
		abort(c, http.StatusBadGateway, msgNetwork)
	default:
		lg.Error("Request failed", zap.Error(err))
		abort(c, http.StatusInternalServerError, msgInternal)
	}
}

// badRequest answers a request whose body or query failed binding.
func badRequest(c *gin.Context, err error) {
	zctx.From(c.Request.Context()).Debug("Bad request", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, apiError{
		Code:    http.StatusBadRequest,
		Message: "Invalid request.",
		Fields:  bindingFields(err),
	})
}
