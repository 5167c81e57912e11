// Package handler serves the /web API consumed by the browser client. It keeps
// per-visitor state in server side sessions and proxies the lottery backend.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/checkout"
	"github.com/xenking/lotto-share/internal/domain/draw"
	"github.com/xenking/lotto-share/internal/domain/purchase"
	"github.com/xenking/lotto-share/internal/domain/session"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// CookieSecure sets the Secure attribute of the session cookie.
	CookieSecure bool
	// CookieMaxAge is the lifetime of the session cookie.
	CookieMaxAge time.Duration
	// LookupConcurrency bounds parallel ticket lookups of the my-tickets view.
	LookupConcurrency int
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Backend   *backend.Client
	Sessions  session.Store
	Locker    *session.Locker
	Checkouts checkout.Repository
	Tracker   *purchase.Tracker
	Schedule  draw.Schedule
	Clock     clockwork.Clock
}

// Handler implements the /web routes.
type Handler struct {
	cfg       Config
	backend   *backend.Client
	sessions  session.Store
	locker    *session.Locker
	checkouts checkout.Repository
	tracker   *purchase.Tracker
	schedule  draw.Schedule
	clock     clockwork.Clock
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = 24 * time.Hour
	}
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = 4
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Locker == nil {
		deps.Locker = session.NewLocker()
	}
	registerValidators()

	return &Handler{
		cfg:       cfg,
		backend:   deps.Backend,
		sessions:  deps.Sessions,
		locker:    deps.Locker,
		checkouts: deps.Checkouts,
		tracker:   deps.Tracker,
		schedule:  deps.Schedule,
		clock:     deps.Clock,
	}
}

// Routes returns the gin engine serving every /web endpoint.
func (h *Handler) Routes() http.Handler {
	r := gin.New()
	r.ContextWithFallback = true
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, "not found")
	})
	r.NoMethod(func(c *gin.Context) {
		abort(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	web := r.Group("/web", h.withSession)
	{
		web.POST("/login", h.Login)
		web.POST("/logout", h.Logout)
		web.POST("/register/otp", h.SendRegistrationOTP)
		web.POST("/register/verify", h.VerifyRegistration)
		web.POST("/register/resend", h.ResendRegistrationOTP)
		web.POST("/password/otp", h.SendPasswordOTP)
		web.POST("/password/verify", h.VerifyPasswordOTP)
		web.POST("/password/reset", h.ResetPassword)
		web.POST("/password/resend", h.ResendPasswordOTP)
		web.GET("/otp/remaining", h.OTPRemaining)
		web.GET("/locale", h.GetLocale)
		web.PUT("/locale", h.SetLocale)

		web.GET("/countdown", h.Countdown)
		web.GET("/draws", h.Draws)
		web.GET("/tickets", h.withOptionalAuth, h.Tickets)

		web.GET("/cart", h.GetCart)
		web.DELETE("/cart/items/:ticketId", h.RemoveCartItem)
		web.DELETE("/cart", h.ClearCart)

		web.GET("/purchase/landing", h.withOptionalAuth, h.PurchaseLanding)
		web.GET("/purchase/:orderId", h.PurchaseStatus)
		web.DELETE("/purchase/:orderId", h.StopPurchase)
	}

	authed := web.Group("", h.requireAuth)
	{
		authed.POST("/cart/items", h.AddCartItem)
		authed.POST("/checkout", h.Checkout)
		authed.GET("/checkouts", h.Checkouts)

		authed.GET("/profile", h.GetProfile)
		authed.PUT("/profile", h.UpdateProfile)
		authed.GET("/purchases", h.Purchases)
		authed.GET("/transactions", h.Transactions)
		authed.GET("/winnings", h.Winnings)
		authed.GET("/my-tickets", h.MyTickets)
		authed.POST("/withdrawals", h.CreateWithdrawal)
	}

	return r
}

// withSession resolves the session cookie, minting a new session id when the
// cookie is missing or malformed, and stores the session state in the
// request context.
func (h *Handler) withSession(c *gin.Context) {
	id, err := uuid.Parse(cookieValue(c))
	if err != nil {
		id = uuid.New()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(session.CookieName, id.String(), int(h.cfg.CookieMaxAge/time.Second), "/", "", h.cfg.CookieSecure, true)
	}

	st := session.New(id, h.sessions, h.clock)
	c.Request = c.Request.WithContext(session.WithState(c.Request.Context(), st))
	c.Next()
}

func cookieValue(c *gin.Context) string {
	v, err := c.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return v
}

// state returns the session of the current request. withSession guarantees
// its presence on every /web route.
func state(c *gin.Context) *session.State {
	st, _ := session.FromContext(c.Request.Context())
	return st
}

// ClearOnUnauthorized is the backend hook for 401 answers: it drops the
// authentication of the session the failed call was made for.
func ClearOnUnauthorized(ctx context.Context) {
	st, ok := session.FromContext(ctx)
	if !ok {
		return
	}
	if err := st.ClearAuth(ctx); err != nil {
		zctx.From(ctx).Warn("Clear session", zap.Error(err))
		return
	}
	zctx.From(ctx).Info("Session cleared after unauthorized backend call")
}
