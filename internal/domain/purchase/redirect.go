package purchase

import (
	"net/url"
	"regexp"
	"strings"
)

// Outcome is the payment result as reported by the gateway redirect.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = ""
)

// Redirect is the parsed query of a payment gateway redirect.
type Redirect struct {
	OrderID string
	Outcome Outcome
	// Raw is the lower-cased status text when it matched no known outcome.
	Raw string
	// Warn carries an optional advisory such as "delay".
	Warn string
}

var unsafeOrderChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// ParseRedirect extracts the order id and outcome from redirect parameters.
// Gateways disagree on parameter names, so several aliases are accepted.
func ParseRedirect(q url.Values) Redirect {
	orderID := firstNonEmpty(q.Get("orderId"), q.Get("reference_id"), q.Get("refNo"))
	raw := strings.ToLower(firstNonEmpty(q.Get("status"), q.Get("TxnStatus"), q.Get("message")))

	r := Redirect{
		OrderID: SanitizeOrderID(orderID),
		Outcome: classify(raw),
		Warn:    q.Get("warn"),
	}
	if r.Outcome == OutcomeUnknown {
		r.Raw = raw
	}
	return r
}

// SanitizeOrderID drops every character outside [a-zA-Z0-9._-].
func SanitizeOrderID(id string) string {
	return unsafeOrderChars.ReplaceAllString(id, "")
}

func classify(s string) Outcome {
	switch {
	case strings.Contains(s, "success"), s == "captured", s == "settled":
		return OutcomeSuccess
	case s == "authorized", strings.Contains(s, "pend"):
		return OutcomePending
	case strings.Contains(s, "cancel"), strings.Contains(s, "fail"):
		return OutcomeFailure
	default:
		return OutcomeUnknown
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
