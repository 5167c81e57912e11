package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/otp"
	"github.com/xenking/lotto-share/internal/domain/session"
)

const (
	msgCaptcha    = "CAPTCHA verification failed. Please try again."
	msgOTPExpired = "Your OTP has expired. Please request a new one."
	msgNoOTP      = "No OTP request found. Please start again."
	msgBadOTP     = "Invalid OTP. Please try again."
)

// tokenKey holds the session token in the gin context of authenticated
// requests.
const tokenKey = "token"

// requireAuth rejects anonymous sessions and attaches the session token to
// the request context for backend calls.
func (h *Handler) requireAuth(c *gin.Context) {
	ctx := c.Request.Context()
	token, err := state(c).Token(ctx)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	if token == "" {
		abort(c, http.StatusUnauthorized, "Please log in to continue.")
		return
	}
	c.Set(tokenKey, token)
	c.Request = c.Request.WithContext(backend.WithToken(ctx, token))
	c.Next()
}

// withOptionalAuth attaches the session token when there is one.
func (h *Handler) withOptionalAuth(c *gin.Context) {
	ctx := c.Request.Context()
	token, err := state(c).Token(ctx)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	if token != "" {
		c.Set(tokenKey, token)
		c.Request = c.Request.WithContext(backend.WithToken(ctx, token))
	}
	c.Next()
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

type authResponse struct {
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message,omitempty"`
}

// Login exchanges phone credentials for a backend token kept in the session.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	token, err := h.backend.Login(ctx, backend.LoginRequest(req))
	if err != nil {
		fail(c, err, flow{
			fallback: "Login failed. Please try again.",
			byStatus: map[int]string{http.StatusUnauthorized: "Invalid phone number or password."},
		})
		return
	}
	if err := state(c).SetToken(ctx, token); err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, authResponse{Authenticated: true})
}

// Logout forgets the session token. The cart is kept.
func (h *Handler) Logout(c *gin.Context) {
	if err := state(c).ClearAuth(c.Request.Context()); err != nil {
		fail(c, err, flow{})
		return
	}
	c.Status(http.StatusNoContent)
}

type sendOTPRequest struct {
	PhoneNumber  string `json:"phoneNumber" binding:"required"`
	CaptchaToken string `json:"captchaToken" binding:"required"`
}

type resendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

// otpResponse describes the OTP window to the client.
type otpResponse struct {
	PhoneNumber string      `json:"phoneNumber"`
	Purpose     otp.Purpose `json:"purpose"`
	ExpiresIn   int         `json:"expiresIn"`
	ExpiresLeft string      `json:"expiresLeft"`
	ResendIn    int         `json:"resendIn"`
	CanResend   bool        `json:"canResend"`
	Message     string      `json:"message,omitempty"`
}

func newOTPResponse(w otp.Window, st *session.State, msg string) otpResponse {
	now := st.Now()
	return otpResponse{
		PhoneNumber: w.Phone,
		Purpose:     w.Purpose,
		ExpiresIn:   w.ExpiresIn(now),
		ExpiresLeft: otp.FormatLeft(w.ExpiresIn(now)),
		ResendIn:    w.ResendIn(now),
		CanResend:   w.CanResend(now),
		Message:     msg,
	}
}

// SendRegistrationOTP starts a registration by texting an OTP.
func (h *Handler) SendRegistrationOTP(c *gin.Context) {
	h.sendOTP(c, otp.PurposeRegister, h.backend.SendRegistrationOTP, flow{
		fallback: "Something went wrong",
	})
}

// SendPasswordOTP starts password recovery by texting an OTP.
func (h *Handler) SendPasswordOTP(c *gin.Context) {
	h.sendOTP(c, otp.PurposePassword, h.backend.SendPasswordOTP, flow{
		fallback: "Could not send OTP. Please try again.",
		byStatus: map[int]string{
			http.StatusNotFound: "No account found for this mobile number. Please register first.",
		},
	})
}

func (h *Handler) sendOTP(
	c *gin.Context,
	purpose otp.Purpose,
	send func(context.Context, backend.SendOTPRequest) error,
	f flow,
) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	st := state(c)

	if err := send(ctx, backend.SendOTPRequest(req)); err != nil {
		if backend.IsKind(err, backend.KindCaptcha) {
			abort(c, http.StatusForbidden, msgCaptcha)
			return
		}
		fail(c, err, f)
		return
	}

	w := otp.Sent(purpose, req.PhoneNumber, st.Now())
	if err := st.SetOTPWindow(ctx, w); err != nil {
		fail(c, err, flow{})
		return
	}
	zctx.From(ctx).Info("OTP sent", zap.String("purpose", string(purpose)))
	c.JSON(http.StatusOK, newOTPResponse(w, st, ""))
}

// ResendRegistrationOTP texts another registration OTP.
func (h *Handler) ResendRegistrationOTP(c *gin.Context) {
	h.resendOTP(c, otp.PurposeRegister, h.backend.ResendRegistrationOTP)
}

// ResendPasswordOTP texts another password recovery OTP.
func (h *Handler) ResendPasswordOTP(c *gin.Context) {
	h.resendOTP(c, otp.PurposePassword, h.backend.ResendPasswordOTP)
}

func (h *Handler) resendOTP(
	c *gin.Context,
	purpose otp.Purpose,
	resend func(context.Context, string) (backend.OTPResponse, error),
) {
	var req resendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	st := state(c)

	w, err := h.window(ctx, st, purpose, req.PhoneNumber)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	if !w.CanResend(st.Now()) {
		throttled(c, w.ResendIn(st.Now()))
		return
	}

	resp, err := resend(ctx, req.PhoneNumber)
	if err != nil {
		if serr, ok := backend.AsStatus(err); ok && serr.Kind() == backend.KindTooManyRequests {
			w = w.Throttled(serr.RemainingSeconds, st.Now())
			if err := st.SetOTPWindow(ctx, w); err != nil {
				fail(c, err, flow{})
				return
			}
			throttled(c, w.ResendIn(st.Now()))
			return
		}
		fail(c, err, flow{fallback: "Failed to resend OTP."})
		return
	}

	w = w.Resent(resp.Created(), resp.ExpiresInSeconds, st.Now())
	if err := st.SetOTPWindow(ctx, w); err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, newOTPResponse(w, st, "A new OTP has been sent."))
}

func throttled(c *gin.Context, remaining int) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, apiError{
		Code:             http.StatusTooManyRequests,
		Message:          otp.CooldownMessage(remaining),
		RemainingSeconds: remaining,
	})
}

// window returns the session OTP window for purpose and phone. A window for
// another flow or number is replaced by an empty one.
func (h *Handler) window(ctx context.Context, st *session.State, purpose otp.Purpose, phone string) (otp.Window, error) {
	w, err := st.OTPWindow(ctx)
	if err != nil {
		return otp.Window{}, err
	}
	if w == nil || w.Purpose != purpose || w.Phone != phone {
		return otp.Window{Purpose: purpose, Phone: phone}, nil
	}
	return *w, nil
}

type otpRemainingQuery struct {
	PhoneNumber string `form:"phoneNumber" binding:"required"`
	Purpose     string `form:"purpose" binding:"omitempty,oneof=register password"`
}

// OTPRemaining restores the OTP window from the cooldown the backend reports,
// for visitors returning to the verification step.
func (h *Handler) OTPRemaining(c *gin.Context) {
	var q otpRemainingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	purpose := otp.PurposeRegister
	if q.Purpose != "" {
		purpose = otp.Purpose(q.Purpose)
	}
	ctx := c.Request.Context()
	st := state(c)

	remaining, err := h.backend.OTPRemaining(ctx, q.PhoneNumber)
	if err != nil {
		fail(c, err, flow{fallback: "Could not check OTP status."})
		return
	}

	w, err := h.window(ctx, st, purpose, q.PhoneNumber)
	if err != nil {
		fail(c, err, flow{})
		return
	}
	restored := otp.Restored(purpose, q.PhoneNumber, remaining, st.Now())
	if !w.ExpiresAt.IsZero() {
		restored.ExpiresAt = w.ExpiresAt
	}
	w = restored
	if err := st.SetOTPWindow(ctx, w); err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, newOTPResponse(w, st, ""))
}

type verifyRegistrationRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	OTP         string `json:"otp" binding:"required"`
	Password    string `json:"password" binding:"required"`
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
}

// VerifyRegistration creates the account and logs the new customer in.
func (h *Handler) VerifyRegistration(c *gin.Context) {
	var req verifyRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	st := state(c)
	if !h.checkOTPFresh(c, st, otp.PurposeRegister, req.PhoneNumber) {
		return
	}

	if err := h.backend.VerifyRegistration(ctx, backend.VerifyRegistrationRequest(req)); err != nil {
		fail(c, err, flow{
			fallback: "Something went wrong.",
			byStatus: map[int]string{
				http.StatusNotFound:     msgNoOTP,
				http.StatusGone:         msgOTPExpired,
				http.StatusConflict:     "This phone number is already registered.",
				http.StatusUnauthorized: msgBadOTP,
			},
		})
		return
	}
	if err := st.ClearOTPWindow(ctx); err != nil {
		zctx.From(ctx).Warn("Clear OTP window", zap.Error(err))
	}

	token, err := h.backend.Login(ctx, backend.LoginRequest{PhoneNumber: req.PhoneNumber, Password: req.Password})
	if err == nil {
		err = st.SetToken(ctx, token)
	}
	if err != nil {
		zctx.From(ctx).Warn("Login after registration", zap.Error(err))
		c.JSON(http.StatusCreated, authResponse{Message: "Login failed. Please try logging in manually."})
		return
	}
	c.JSON(http.StatusCreated, authResponse{Authenticated: true, Message: "Registration successful! Logged in."})
}

type verifyResetRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	OTP         string `json:"otp" binding:"required"`
}

// VerifyPasswordOTP checks a recovery OTP and hands out the reset token.
func (h *Handler) VerifyPasswordOTP(c *gin.Context) {
	var req verifyResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	st := state(c)
	if !h.checkOTPFresh(c, st, otp.PurposePassword, req.PhoneNumber) {
		return
	}

	resetToken, err := h.backend.VerifyPasswordOTP(ctx, backend.VerifyResetRequest(req))
	if err != nil {
		fail(c, err, flow{
			fallback: "Something went wrong.",
			byStatus: map[int]string{
				http.StatusNotFound:     msgNoOTP,
				http.StatusGone:         msgOTPExpired,
				http.StatusUnauthorized: msgBadOTP,
			},
		})
		return
	}
	if resetToken == "" {
		abort(c, http.StatusBadGateway, "Something went wrong.")
		return
	}
	if err := st.ClearOTPWindow(ctx); err != nil {
		zctx.From(ctx).Warn("Clear OTP window", zap.Error(err))
	}
	c.JSON(http.StatusOK, backend.VerifyResetResponse{ResetToken: resetToken})
}

// checkOTPFresh refuses verification of an OTP the session knows is expired.
func (h *Handler) checkOTPFresh(c *gin.Context, st *session.State, purpose otp.Purpose, phone string) bool {
	w, err := h.window(c.Request.Context(), st, purpose, phone)
	if err != nil {
		fail(c, err, flow{})
		return false
	}
	if !w.ExpiresAt.IsZero() && w.Expired(st.Now()) {
		abort(c, http.StatusGone, msgOTPExpired)
		return false
	}
	return true
}

type resetPasswordRequest struct {
	ResetToken  string `json:"resetToken" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=4"`
}

// ResetPassword sets a new password with a verified reset token.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.backend.ResetPassword(c.Request.Context(), backend.ResetPasswordRequest(req)); err != nil {
		fail(c, err, flow{
			fallback: "Failed to reset password. Please try again.",
			byStatus: map[int]string{
				http.StatusGone: "This reset link has expired or was already used. Please request a new one.",
			},
		})
		return
	}
	c.Status(http.StatusNoContent)
}

type localeResponse struct {
	Locale    string   `json:"locale"`
	Supported []string `json:"supported"`
}

type localeRequest struct {
	Locale string `json:"locale" binding:"required"`
}

// GetLocale returns the session language.
func (h *Handler) GetLocale(c *gin.Context) {
	locale, err := state(c).Locale(c.Request.Context())
	if err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, localeResponse{Locale: locale, Supported: session.SupportedLocales})
}

// SetLocale switches the session language.
func (h *Handler) SetLocale(c *gin.Context) {
	var req localeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := state(c).SetLocale(c.Request.Context(), req.Locale); err != nil {
		fail(c, err, flow{})
		return
	}
	c.JSON(http.StatusOK, localeResponse{Locale: req.Locale, Supported: session.SupportedLocales})
}
