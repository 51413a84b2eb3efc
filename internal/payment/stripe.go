package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig configures StripeCheckout.
type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
	Backends   *stripe.Backends
	Logger     *zap.Logger

	sessions stripeSessionAPI
}

// StripeCheckout implements Checkout with Stripe Checkout Sessions.
type StripeCheckout struct {
	sessions   stripeSessionAPI
	successURL string
	cancelURL  string
	logger     *zap.Logger
}

// NewStripeCheckout builds a Stripe-backed Checkout.
func NewStripeCheckout(cfg StripeConfig) (*StripeCheckout, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, errors.New("stripe: success and cancel URLs are required")
	}

	sessions := cfg.sessions
	if sessions == nil {
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StripeCheckout{
		sessions:   sessions,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}, nil
}

// CreateCheckout creates a one-line Checkout Session for the itinerary total.
// The itinerary ID doubles as the idempotency key, so repeated /pay requests
// return the same session.
func (s *StripeCheckout) CreateCheckout(ctx context.Context, req Request) (Session, error) {
	if req.ItineraryID == "" {
		return Session{}, errors.New("stripe: itinerary id is required")
	}
	if req.Amount <= 0 {
		return Session{}, fmt.Errorf("stripe: amount must be positive, got %d", req.Amount)
	}

	currency := strings.ToLower(req.Currency)
	name := req.Title
	if name == "" {
		name = "Trip itinerary"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(req.ItineraryID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(MinorUnits(req.Amount, currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}},
		Metadata: map[string]string{
			"itinerary_id": req.ItineraryID,
			"user_id":      req.UserID,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("itinerary-" + req.ItineraryID)

	cs, err := s.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	s.logger.Info("checkout session created",
		zap.String("session_id", cs.ID),
		zap.String("itinerary_id", req.ItineraryID),
		zap.Int64("amount", req.Amount),
		zap.String("currency", currency))

	return toSession(cs), nil
}

// GetCheckout reads the current state of a session.
func (s *StripeCheckout) GetCheckout(ctx context.Context, id string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.sessions.Get(id, params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: get checkout session %s: %w", id, err)
	}
	return toSession(cs), nil
}

func toSession(cs *stripe.CheckoutSession) Session {
	status := StatusOpen
	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		status = StatusPaid
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		status = StatusExpired
	case cs.Status == stripe.CheckoutSessionStatusComplete:
		status = StatusComplete
	}
	return Session{ID: cs.ID, URL: cs.URL, Status: status}
}
