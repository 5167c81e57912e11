// Package withdrawal validates prize withdrawal requests before they are sent
// to the backend.
package withdrawal

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	accountPattern = regexp.MustCompile(`^[0-9]{9,18}$`)
	ifscPattern    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	swiftPattern   = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
)

// IsPAN reports whether s is a PAN card number. s is upper-cased first.
func IsPAN(s string) bool { return panPattern.MatchString(strings.ToUpper(s)) }

// IsAccountNumber reports whether s is a 9 to 18 digit bank account number.
func IsAccountNumber(s string) bool { return accountPattern.MatchString(s) }

// IsIFSC reports whether s is an Indian bank branch code.
func IsIFSC(s string) bool { return ifscPattern.MatchString(strings.ToUpper(s)) }

// IsSWIFT reports whether s is a BIC/SWIFT code.
func IsSWIFT(s string) bool { return swiftPattern.MatchString(strings.ToUpper(s)) }

// Request is a prize withdrawal request.
type Request struct {
	UserExtraID   int64           `json:"userExtraId"`
	Amount        decimal.Decimal `json:"amount"`
	FullName      string          `json:"fullName"`
	Address       string          `json:"address"`
	PanCard       string          `json:"panCard"`
	AccountNumber string          `json:"accountNumber"`
	IfscCode      string          `json:"ifscCode"`
	SwiftCode     string          `json:"swiftCode,omitempty"`
}

// Normalize trims fields and upper-cases the bank codes in place.
func (r *Request) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Address = strings.TrimSpace(r.Address)
	r.PanCard = strings.ToUpper(strings.TrimSpace(r.PanCard))
	r.AccountNumber = strings.TrimSpace(r.AccountNumber)
	r.IfscCode = strings.ToUpper(strings.TrimSpace(r.IfscCode))
	r.SwiftCode = strings.ToUpper(strings.TrimSpace(r.SwiftCode))
}

// ValidationError lists the invalid fields with a human readable reason each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid withdrawal: " + strings.Join(parts, "; ")
}

// Validate checks a normalized request. It returns a *ValidationError or nil.
func (r *Request) Validate() error {
	fields := make(map[string]string)

	if r.UserExtraID <= 0 {
		fields["userExtraId"] = "User is not identified for this request"
	}
	if !r.Amount.IsPositive() {
		fields["amount"] = "No prize amount found for this withdrawal"
	}

	switch {
	case r.FullName == "":
		fields["fullName"] = "Full name is required"
	case len([]rune(r.FullName)) < 2:
		fields["fullName"] = "Full name must be at least 2 characters"
	}

	switch {
	case r.Address == "":
		fields["address"] = "Address is required"
	case len([]rune(r.Address)) < 10:
		fields["address"] = "Please provide a complete address"
	}

	switch {
	case r.PanCard == "":
		fields["panCard"] = "PAN card is required"
	case !IsPAN(r.PanCard):
		fields["panCard"] = "Invalid PAN format (e.g., ABCDE1234F)"
	}

	switch {
	case r.AccountNumber == "":
		fields["accountNumber"] = "Account number is required"
	case !IsAccountNumber(r.AccountNumber):
		fields["accountNumber"] = "Account number must be 9-18 digits"
	}

	switch {
	case r.IfscCode == "":
		fields["ifscCode"] = "IFSC code is required"
	case !IsIFSC(r.IfscCode):
		fields["ifscCode"] = "Invalid IFSC format (e.g., SBIN0001234)"
	}

	if r.SwiftCode != "" && !IsSWIFT(r.SwiftCode) {
		fields["swiftCode"] = "Invalid SWIFT format (e.g., SBININBB123)"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
