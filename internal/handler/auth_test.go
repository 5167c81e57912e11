package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("InvalidCredentials", func(t *testing.T) {
		v := env.visitor(t)
		resp := v.do(http.MethodPost, "/web/login", map[string]string{"phoneNumber": "+919999999999", "password": "nope"})
		require.Equal(t, http.StatusUnauthorized, resp.code)
		assert.Equal(t, "Invalid phone number or password.", resp.apiError(t).Message)
	})

	t.Run("MissingFields", func(t *testing.T) {
		v := env.visitor(t)
		resp := v.do(http.MethodPost, "/web/login", map[string]string{"phoneNumber": "+919999999999"})
		require.Equal(t, http.StatusBadRequest, resp.code)
		assert.Contains(t, resp.apiError(t).Fields, "password")
	})

	t.Run("LoginLogout", func(t *testing.T) {
		v := env.visitor(t)
		resp := v.do(http.MethodGet, "/web/profile", nil)
		require.Equal(t, http.StatusUnauthorized, resp.code)
		assert.Equal(t, "Please log in to continue.", resp.apiError(t).Message)

		v.login()
		resp = v.do(http.MethodGet, "/web/profile", nil)
		require.Equal(t, http.StatusOK, resp.code, string(resp.body))
		var got profileResponse
		resp.decode(t, &got)
		assert.Equal(t, int64(7), got.Account.ID)
		assert.True(t, got.Complete)

		resp = v.do(http.MethodPost, "/web/logout", nil)
		require.Equal(t, http.StatusNoContent, resp.code)
		resp = v.do(http.MethodGet, "/web/profile", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.code)
	})
}

func TestUnauthorizedBackendClearsSession(t *testing.T) {
	env := newTestEnv(t)
	v := env.visitor(t)
	v.login()

	// The backend no longer accepts the token.
	env.be.failWith("GET /api/account", http.StatusUnauthorized, map[string]any{"title": "Unauthorized"})
	resp := v.do(http.MethodGet, "/web/profile", nil)
	require.Equal(t, http.StatusUnauthorized, resp.code)
	assert.Equal(t, msgUnauthorized, resp.apiError(t).Message)

	// The session forgot the token and now fails before reaching the backend.
	calls := env.be.count("GET /api/account")
	resp = v.do(http.MethodGet, "/web/profile", nil)
	require.Equal(t, http.StatusUnauthorized, resp.code)
	assert.Equal(t, "Please log in to continue.", resp.apiError(t).Message)
	assert.Equal(t, calls, env.be.count("GET /api/account"))
}

func TestBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.be.failWith("GET /api/tickets/active-batch", http.StatusInternalServerError, map[string]any{"message": "db down"})

	resp := env.visitor(t).do(http.MethodGet, "/web/tickets", nil)
	require.Equal(t, http.StatusBadGateway, resp.code)
	assert.Equal(t, "Failed to load tickets.", resp.apiError(t).Message)
}

func TestRegistration(t *testing.T) {
	const phone = "+918888888888"
	env := newTestEnv(t)

	t.Run("Captcha", func(t *testing.T) {
		env.be.failWith("POST /api/send-otp-registration", http.StatusForbidden, map[string]any{
			"message": "Captcha verification failed",
		})
		t.Cleanup(func() {
			env.be.with(func(f *fakeBackend) { delete(f.fail, "POST /api/send-otp-registration") })
		})

		resp := env.visitor(t).do(http.MethodPost, "/web/register/otp", map[string]string{
			"phoneNumber": phone, "captchaToken": "bad",
		})
		require.Equal(t, http.StatusForbidden, resp.code)
		assert.Equal(t, msgCaptcha, resp.apiError(t).Message)
	})

	t.Run("SendVerify", func(t *testing.T) {
		v := env.visitor(t)
		resp := v.do(http.MethodPost, "/web/register/otp", map[string]string{
			"phoneNumber": phone, "captchaToken": "ok",
		})
		require.Equal(t, http.StatusOK, resp.code, string(resp.body))
		var sent otpResponse
		resp.decode(t, &sent)
		assert.Equal(t, 180, sent.ExpiresIn)
		assert.Equal(t, "3:00", sent.ExpiresLeft)
		assert.False(t, sent.CanResend)

		resp = v.do(http.MethodPost, "/web/register/verify", map[string]string{
			"phoneNumber": phone,
			"otp":         "123456",
			"password":    "secret",
			"firstName":   "Asha",
			"lastName":    "Rao",
		})
		require.Equal(t, http.StatusCreated, resp.code, string(resp.body))
		var got authResponse
		resp.decode(t, &got)
		assert.True(t, got.Authenticated)
		assert.Equal(t, "Registration successful! Logged in.", got.Message)
		env.be.with(func(f *fakeBackend) {
			require.NotNil(t, f.verified)
			assert.Equal(t, "123456", f.verified.OTP)
		})

		// Auto login put the token in the session.
		resp = v.do(http.MethodGet, "/web/profile", nil)
		assert.Equal(t, http.StatusOK, resp.code)
	})

	t.Run("Expired", func(t *testing.T) {
		v := env.visitor(t)
		resp := v.do(http.MethodPost, "/web/register/otp", map[string]string{
			"phoneNumber": phone, "captchaToken": "ok",
		})
		require.Equal(t, http.StatusOK, resp.code)

		env.clock.Advance(181 * time.Second)
		resp = v.do(http.MethodPost, "/web/register/verify", map[string]string{
			"phoneNumber": phone,
			"otp":         "123456",
			"password":    "secret",
			"firstName":   "Asha",
			"lastName":    "Rao",
		})
		require.Equal(t, http.StatusGone, resp.code)
		assert.Equal(t, msgOTPExpired, resp.apiError(t).Message)
	})

	t.Run("AlreadyRegistered", func(t *testing.T) {
		env.be.failWith("POST /api/verify-otp-registration", http.StatusConflict, map[string]any{"message": "exists"})
		resp := env.visitor(t).do(http.MethodPost, "/web/register/verify", map[string]string{
			"phoneNumber": phone,
			"otp":         "123456",
			"password":    "secret",
			"firstName":   "Asha",
			"lastName":    "Rao",
		})
		require.Equal(t, http.StatusConflict, resp.code)
		assert.Equal(t, "This phone number is already registered.", resp.apiError(t).Message)
	})
}

func TestResendOTP(t *testing.T) {
	const phone = "+918888888888"
	env := newTestEnv(t)
	v := env.visitor(t)

	resp := v.do(http.MethodPost, "/web/password/otp", map[string]string{"phoneNumber": phone, "captchaToken": "ok"})
	require.Equal(t, http.StatusOK, resp.code)

	// The cooldown is enforced locally without asking the backend.
	env.clock.Advance(60 * time.Second)
	resp = v.do(http.MethodPost, "/web/password/resend", map[string]string{"phoneNumber": phone})
	require.Equal(t, http.StatusTooManyRequests, resp.code)
	e := resp.apiError(t)
	assert.Equal(t, 120, e.RemainingSeconds)
	assert.Equal(t, "Please wait 2 minute(s) to resend.", e.Message)
	assert.Zero(t, env.be.count("POST /api/forgot-password/resend-otp"))

	env.clock.Advance(121 * time.Second)
	resp = v.do(http.MethodPost, "/web/password/resend", map[string]string{"phoneNumber": phone})
	require.Equal(t, http.StatusOK, resp.code, string(resp.body))
	var got otpResponse
	resp.decode(t, &got)
	assert.Equal(t, 120, got.ExpiresIn)
	assert.Equal(t, 180, got.ResendIn)
	assert.Equal(t, "A new OTP has been sent.", got.Message)

	// A number without a local window asks the backend, which throttles.
	env.be.failWith("POST /api/resend-otp-registration", http.StatusTooManyRequests, map[string]any{
		"message": "Too many requests", "remainingSeconds": 45,
	})
	resp = v.do(http.MethodPost, "/web/register/resend", map[string]string{"phoneNumber": "+917777777777"})
	require.Equal(t, http.StatusTooManyRequests, resp.code)
	e = resp.apiError(t)
	assert.Equal(t, 45, e.RemainingSeconds)
	assert.Equal(t, "Please wait 1 minute(s) to resend.", e.Message)
}

func TestOTPRemaining(t *testing.T) {
	env := newTestEnv(t)
	v := env.visitor(t)

	var got otpResponse
	resp := v.do(http.MethodGet, "/web/otp/remaining?phoneNumber=%2B918888888888", nil)
	require.Equal(t, http.StatusOK, resp.code, string(resp.body))
	resp.decode(t, &got)
	assert.Equal(t, 60, got.ResendIn)
	assert.Equal(t, 180, got.ExpiresIn)
	assert.False(t, got.CanResend)

	resp = v.do(http.MethodGet, "/web/otp/remaining?phoneNumber=1&purpose=login", nil)
	assert.Equal(t, http.StatusBadRequest, resp.code)
}

func TestPasswordReset(t *testing.T) {
	const phone = "+919999999999"
	env := newTestEnv(t)
	v := env.visitor(t)

	resp := v.do(http.MethodPost, "/web/password/verify", map[string]string{"phoneNumber": phone, "otp": "111111"})
	require.Equal(t, http.StatusOK, resp.code, string(resp.body))
	var got struct {
		ResetToken string `json:"resetToken"`
	}
	resp.decode(t, &got)
	assert.Equal(t, "reset-1", got.ResetToken)

	resp = v.do(http.MethodPost, "/web/password/reset", map[string]string{"resetToken": got.ResetToken, "newPassword": "newsecret"})
	require.Equal(t, http.StatusNoContent, resp.code)

	env.be.failWith("POST /api/forgot-password/reset", http.StatusGone, map[string]any{"message": "gone"})
	resp = v.do(http.MethodPost, "/web/password/reset", map[string]string{"resetToken": got.ResetToken, "newPassword": "newsecret"})
	require.Equal(t, http.StatusGone, resp.code)
	assert.Contains(t, resp.apiError(t).Message, "expired")

	env.be.failWith("POST /api/forgot-password/send-otp", http.StatusNotFound, map[string]any{"message": "no user"})
	resp = v.do(http.MethodPost, "/web/password/otp", map[string]string{"phoneNumber": phone, "captchaToken": "ok"})
	require.Equal(t, http.StatusNotFound, resp.code)
	assert.Equal(t, "No account found for this mobile number. Please register first.", resp.apiError(t).Message)
}
