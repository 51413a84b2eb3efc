// Package payment hands a generated itinerary's total to a payment gateway.
package payment

import (
	"context"
	"errors"
	"strings"
)

// ErrDisabled is returned when no gateway is configured.
var ErrDisabled = errors.New("payments are not configured")

// Request describes what the traveller is paying for.
type Request struct {
	ItineraryID string
	UserID      string
	Title       string
	Amount      int64 // whole currency units
	Currency    string
}

// Session is a hosted checkout the traveller is sent to.
type Session struct {
	ID     string
	URL    string
	Status Status
}

// Status of a checkout session.
type Status string

const (
	StatusOpen     Status = "open"
	StatusPaid     Status = "paid"
	StatusExpired  Status = "expired"
	StatusUnpaid   Status = "unpaid"
	StatusComplete Status = "complete"
)

// Checkout creates and inspects hosted checkout sessions.
type Checkout interface {
	CreateCheckout(ctx context.Context, req Request) (Session, error)
	GetCheckout(ctx context.Context, id string) (Session, error)
}

var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// MinorUnits converts a whole-unit amount to the gateway's smallest unit.
func MinorUnits(amount int64, currency string) int64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return amount
	}
	return amount * 100
}
