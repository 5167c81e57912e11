// Package ticket maps backend lottery tickets to what the customer browses
// and buys.
package ticket

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/lotto-share/internal/domain/cart"
)

const (
	// ShareSlot is the slot requested for every share added to the cart.
	ShareSlot = 1
	// SlotsPerTicket is the number of shares a ticket is split into.
	SlotsPerTicket = 10
)

// SharePrice is the price of one ticket share.
var SharePrice = decimal.NewFromInt(100)

var (
	// ErrProfileIncomplete is returned when the customer has no name or email
	// on file yet.
	ErrProfileIncomplete = errors.New("profile is incomplete")
	// ErrAlreadyPurchased is returned when the customer already owns a share
	// of the ticket.
	ErrAlreadyPurchased = errors.New("ticket already purchased")
)

// Ticket is a lottery ticket of the active batch.
type Ticket struct {
	ID      int64  `json:"id"`
	OID     string `json:"oid"`
	Numbers []int  `json:"numbers"`
	// Slot is the number of shares already taken.
	Slot int `json:"slot"`
}

// New builds a Ticket from backend fields. ticketKey is the space separated
// list of drawn numbers.
func New(id int64, oid, ticketKey string, availableSlot int) Ticket {
	return Ticket{
		ID:      id,
		OID:     oid,
		Numbers: ParseKey(ticketKey),
		Slot:    availableSlot,
	}
}

// ParseKey splits a ticket key such as "3 14 15 92" into numbers.
// Tokens that are not numbers become zero.
func ParseKey(key string) []int {
	fields := strings.Fields(key)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			n = 0
		}
		out = append(out, n)
	}
	return out
}

var oidPattern = regexp.MustCompile(`^OM\s(\d+)-(\d+)-(\d+)$`)

// ParseOID splits an "OM <date>-<series>-<number>" id into its numeric
// parts. Unrecognised ids yield zeros.
func ParseOID(oid string) [3]int {
	m := oidPattern.FindStringSubmatch(oid)
	if m == nil {
		return [3]int{}
	}
	var out [3]int
	for i := range out {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return [3]int{}
		}
		out[i] = n
	}
	return out
}

// Sort orders tickets by date, series and number of their OID.
func Sort(tickets []Ticket) {
	slices.SortStableFunc(tickets, func(a, b Ticket) int {
		pa, pb := ParseOID(a.OID), ParseOID(b.OID)
		return cmp.Or(
			cmp.Compare(pa[0], pb[0]),
			cmp.Compare(pa[1], pb[1]),
			cmp.Compare(pa[2], pb[2]),
		)
	})
}

// CartItem is the cart entry for one share of t.
func (t Ticket) CartItem() cart.Item {
	return cart.Item{
		TicketID:      strconv.FormatInt(t.ID, 10),
		TicketOID:     t.OID,
		TicketNumbers: slices.Clone(t.Numbers),
		Slot:          ShareSlot,
		Price:         SharePrice,
	}
}

// Owner is the part of the customer profile required to buy.
type Owner struct {
	FirstName string
	LastName  string
	Email     string
}

// CheckEligibility reports whether owner may add t to the cart given the
// ids of tickets they already hold shares of.
func CheckEligibility(owner Owner, purchased []int64, t Ticket) error {
	if owner.FirstName == "" || owner.LastName == "" || owner.Email == "" {
		return ErrProfileIncomplete
	}
	if slices.Contains(purchased, t.ID) {
		return ErrAlreadyPurchased
	}
	return nil
}
