package backend

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoginRequest is the body of POST /api/login-phone.
type LoginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

// LoginResponse carries the issued JWT.
type LoginResponse struct {
	IDToken string `json:"id_token"`
}

// SendOTPRequest starts registration or password recovery.
type SendOTPRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	CaptchaToken string `json:"captchaToken"`
}

// ResendOTPRequest asks for another OTP. Resends need no captcha.
type ResendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// OTPResponse describes a freshly sent OTP.
type OTPResponse struct {
	CreatedAt        string `json:"createdAt,omitempty"`
	ExpiresInSeconds int    `json:"expiresInSeconds,omitempty"`
}

// Created parses CreatedAt. The zero time is returned when it is missing or
// unparsable.
func (r OTPResponse) Created() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, r.CreatedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

// OTPRemaining is the resend cooldown left for a phone number.
type OTPRemaining struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

// VerifyRegistrationRequest completes registration.
type VerifyRegistrationRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// VerifyResetRequest verifies a password recovery OTP.
type VerifyResetRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

// VerifyResetResponse carries the single-use password reset token.
type VerifyResetResponse struct {
	ResetToken string `json:"resetToken"`
}

// ResetPasswordRequest sets a new password.
type ResetPasswordRequest struct {
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

// Account is the authenticated backend user.
type Account struct {
	ID        int64  `json:"id"`
	Login     string `json:"login,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	LangKey   string `json:"langKey,omitempty"`
}

// User is the account part embedded in a profile.
type User struct {
	ID        int64  `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// UserExtra is the customer profile.
type UserExtra struct {
	ID            int64  `json:"id"`
	PhoneNumber   string `json:"phoneNumber"`
	Gender        string `json:"gender"`
	Nationality   string `json:"nationality"`
	Address       string `json:"address"`
	StateProvince string `json:"stateProvince"`
	Country       string `json:"country"`
	CityTown      string `json:"cityTown"`
	ZipPostalCode string `json:"zipPostalCode"`
	Username      string `json:"username,omitempty"`
	User          *User  `json:"user,omitempty"`
}

// Ticket is a lottery ticket as listed by the backend.
type Ticket struct {
	ID            int64  `json:"id"`
	OID           string `json:"oid"`
	TicketKey     string `json:"ticketKey"`
	AvailableSlot *int   `json:"availableSlot,omitempty"`
}

// Draw is a weekly draw result.
type Draw struct {
	ID                 int64  `json:"id"`
	DrawDate           string `json:"drawDate"`
	WinningTicketKey   string `json:"winningTicketKey"`
	VerificationStatus string `json:"verificationStatus"`
}

// DrawStatusVerified marks published draw results.
const DrawStatusVerified = "VERIFIED"

// DrawPage is one page of draws with the total count reported by the
// X-Total-Count header.
type DrawPage struct {
	Draws []Draw `json:"draws"`
	Total int    `json:"total"`
}

// PaymentItem is one cart share sent for payment.
type PaymentItem struct {
	TicketID int64           `json:"ticketId"`
	Slot     int             `json:"slot"`
	Price    decimal.Decimal `json:"price"`
}

// InitiatePaymentRequest starts a gateway payment for the cart.
type InitiatePaymentRequest struct {
	UserExtraID int64           `json:"userExtraId"`
	Email       string          `json:"email"`
	Mobile      string          `json:"mobile"`
	Amount      decimal.Decimal `json:"amount"`
	Items       []PaymentItem   `json:"items"`
}

// InitiatePaymentResponse is the gateway form the browser must post.
type InitiatePaymentResponse struct {
	EncData string `json:"encData"`
	APIKey  string `json:"apiKey"`
	URL     string `json:"url"`
	OrderID string `json:"orderId"`
}

// TransactionStatus is the backend view of a payment order.
type TransactionStatus struct {
	OrderID string `json:"orderId,omitempty"`
	Status  string `json:"status"`
}

// Transaction is a wallet or payment movement.
type Transaction struct {
	ID       int64           `json:"id,omitempty"`
	OrderID  string          `json:"orderId,omitempty"`
	TxnRefID string          `json:"txnRefId,omitempty"`
	Date     string          `json:"date,omitempty"`
	Type     string          `json:"type,omitempty"`
	Method   string          `json:"method,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Status   string          `json:"status,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
}

// PurchasedTicket is the ticket reference of a purchase.
type PurchasedTicket struct {
	ID        int64  `json:"id"`
	TicketKey string `json:"ticketKey,omitempty"`
}

// Purchase is a share bought by the customer.
type Purchase struct {
	ID           int64            `json:"id"`
	Date         string           `json:"date,omitempty"`
	TicketNumber string           `json:"ticketNumber,omitempty"`
	Batch        string           `json:"batch,omitempty"`
	Ticket       *PurchasedTicket `json:"ticket,omitempty"`
}

// Winning is a prize won by the customer.
type Winning struct {
	ID          int64           `json:"id,omitempty"`
	TicketOID   string          `json:"ticketOid"`
	TicketKey   string          `json:"ticketKey"`
	MatchCount  int             `json:"matchCount"`
	PrizeAmount decimal.Decimal `json:"prizeAmount"`
	DrawDate    string          `json:"drawDate,omitempty"`
}

// TicketSlot is a share held by the customer in a draw.
type TicketSlot struct {
	TicketKey  string `json:"ticketKey"`
	SlotKey    string `json:"slotKey"`
	SlotNumber int    `json:"slotNumber"`
	BatchName  string `json:"batchName"`
	DrawDate   string `json:"drawDate"`
	// OID is filled in by the web server from the ticket lookup.
	OID string `json:"oid,omitempty"`
}

// MyTickets groups the customer's shares by draw state.
type MyTickets struct {
	Upcoming []TicketSlot `json:"upcoming"`
	Past     []TicketSlot `json:"past"`
}
