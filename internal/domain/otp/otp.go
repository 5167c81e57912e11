// Package otp tracks the validity and resend cooldown of one-time passwords
// sent to a customer's phone. The backend enforces both; the window kept here
// lets the client refuse hopeless requests early and show countdowns.
package otp

import (
	"fmt"
	"math"
	"time"
)

const (
	// ValidFor is how long an OTP is accepted when the backend does not say.
	ValidFor = 180 * time.Second
	// Cooldown is the minimum delay between two sends.
	Cooldown = 180 * time.Second
)

// SessionKey is the session storage key of the current Window.
const SessionKey = "otp-window"

// Purpose is the flow an OTP was requested for.
type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposePassword Purpose = "password"
)

// Window is the client view of the latest OTP sent for a flow.
type Window struct {
	Purpose   Purpose   `json:"purpose"`
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expiresAt"`
	ResendAt  time.Time `json:"resendAt"`
}

// Sent returns the window right after an OTP was sent at now.
func Sent(purpose Purpose, phone string, now time.Time) Window {
	return Window{
		Purpose:   purpose,
		Phone:     phone,
		ExpiresAt: now.Add(ValidFor),
		ResendAt:  now.Add(Cooldown),
	}
}

// Resent applies a successful resend. createdAt and expiresIn come from the
// backend and fall back to now and ValidFor when zero.
func (w Window) Resent(createdAt time.Time, expiresIn int, now time.Time) Window {
	if createdAt.IsZero() {
		createdAt = now
	}
	valid := ValidFor
	if expiresIn > 0 {
		valid = time.Duration(expiresIn) * time.Second
	}
	w.ExpiresAt = createdAt.Add(valid)
	w.ResendAt = now.Add(Cooldown)
	return w
}

// Throttled applies a rejected resend carrying the remaining cooldown. A
// missing value assumes a full cooldown.
func (w Window) Throttled(remaining int, now time.Time) Window {
	d := Cooldown
	if remaining > 0 {
		d = time.Duration(remaining) * time.Second
	}
	w.ResendAt = now.Add(d)
	return w
}

// Restored rebuilds a window after the client lost it, from the cooldown the
// backend still reports. The OTP expiry is assumed to start now.
func Restored(purpose Purpose, phone string, remaining int, now time.Time) Window {
	return Window{
		Purpose:   purpose,
		Phone:     phone,
		ExpiresAt: now.Add(ValidFor),
		ResendAt:  now.Add(time.Duration(max(remaining, 0)) * time.Second),
	}
}

// Expired reports whether the OTP can no longer be verified.
func (w Window) Expired(now time.Time) bool {
	return now.After(w.ExpiresAt)
}

// CanResend reports whether the cooldown has passed.
func (w Window) CanResend(now time.Time) bool {
	return now.After(w.ResendAt)
}

// ExpiresIn returns whole seconds until expiry, never negative.
func (w Window) ExpiresIn(now time.Time) int {
	return secondsLeft(w.ExpiresAt, now)
}

// ResendIn returns whole seconds until a resend is allowed, never negative.
func (w Window) ResendIn(now time.Time) int {
	return secondsLeft(w.ResendAt, now)
}

func secondsLeft(at, now time.Time) int {
	return max(0, int(at.Sub(now)/time.Second))
}

// FormatLeft renders seconds as m:ss.
func FormatLeft(seconds int) string {
	seconds = max(0, seconds)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// CooldownMessage is shown when a resend is throttled.
func CooldownMessage(remaining int) string {
	minutes := int(math.Ceil(float64(remaining) / 60))
	return fmt.Sprintf("Please wait %d minute(s) to resend.", minutes)
}
