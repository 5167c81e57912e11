package backend

import (
	"context"
	"net/http"
	"net/url"
)

// Login exchanges phone and password for a JWT.
func (c *Client) Login(ctx context.Context, req LoginRequest) (string, error) {
	var resp LoginResponse
	if _, err := c.do(ctx, call{method: http.MethodPost, path: "/api/login-phone", body: req, out: &resp}); err != nil {
		return "", err
	}
	return resp.IDToken, nil
}

// SendRegistrationOTP sends the first registration OTP.
func (c *Client) SendRegistrationOTP(ctx context.Context, req SendOTPRequest) error {
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/api/send-otp-registration", body: req})
	return err
}

// VerifyRegistration verifies the OTP and creates the account.
func (c *Client) VerifyRegistration(ctx context.Context, req VerifyRegistrationRequest) error {
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/api/verify-otp-registration", body: req})
	return err
}

// ResendRegistrationOTP sends another registration OTP.
func (c *Client) ResendRegistrationOTP(ctx context.Context, phone string) (OTPResponse, error) {
	var resp OTPResponse
	_, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/resend-otp-registration",
		body:   ResendOTPRequest{PhoneNumber: phone},
		out:    &resp,
	})
	return resp, err
}

// SendPasswordOTP starts password recovery.
func (c *Client) SendPasswordOTP(ctx context.Context, req SendOTPRequest) error {
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/api/forgot-password/send-otp", body: req})
	return err
}

// VerifyPasswordOTP exchanges a recovery OTP for a reset token.
func (c *Client) VerifyPasswordOTP(ctx context.Context, req VerifyResetRequest) (string, error) {
	var resp VerifyResetResponse
	if _, err := c.do(ctx, call{method: http.MethodPost, path: "/api/forgot-password/verify-otp", body: req, out: &resp}); err != nil {
		return "", err
	}
	return resp.ResetToken, nil
}

// ResetPassword sets a new password with a reset token.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/api/forgot-password/reset", body: req})
	return err
}

// ResendPasswordOTP sends another recovery OTP.
func (c *Client) ResendPasswordOTP(ctx context.Context, phone string) (OTPResponse, error) {
	var resp OTPResponse
	_, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/forgot-password/resend-otp",
		body:   ResendOTPRequest{PhoneNumber: phone},
		out:    &resp,
	})
	return resp, err
}

// OTPRemaining returns the resend cooldown left for phone.
func (c *Client) OTPRemaining(ctx context.Context, phone string) (int, error) {
	var resp OTPRemaining
	_, err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/otp-remaining",
		query:  url.Values{"phoneNumber": {phone}},
		out:    &resp,
	})
	return resp.RemainingSeconds, err
}

// Account returns the authenticated account.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	var resp Account
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/api/account", out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}
