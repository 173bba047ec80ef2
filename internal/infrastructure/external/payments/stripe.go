package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"

	"github.com/campus-enroll/registration-hub/internal/domain/payment"
)

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey string

	// Backend overrides the API backend; nil uses the default.
	Backend stripe.Backend
}

// Stripe creates and confirms a card PaymentIntent. The token is a
// PaymentMethod id produced by Stripe.js.
type Stripe struct {
	intents paymentintent.Client
}

// NewStripe creates the Stripe gateway.
func NewStripe(cfg StripeConfig) *Stripe {
	backend := cfg.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{intents: paymentintent.Client{B: backend, Key: cfg.SecretKey}}
}

// Method implements payment.Gateway.
func (s *Stripe) Method() payment.Method {
	return payment.MethodStripe
}

// Charge implements payment.Gateway. Card errors are declines; everything
// else the API returns is an error.
func (s *Stripe) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Outcome, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Cents()),
		Currency:           stripe.String(currency),
		PaymentMethod:      stripe.String(req.Token),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.AddMetadata("user_id", req.UserID.String())
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			raw, _ := json.Marshal(stripeErr)
			return payment.Outcome{Reason: declineReason(stripeErr), Raw: raw}, nil
		}
		return payment.Outcome{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	var raw json.RawMessage
	if pi.LastResponse != nil {
		raw = pi.LastResponse.RawJSON
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return payment.Outcome{
			TransactionID: pi.ID,
			Reason:        fmt.Sprintf("payment intent status %s", pi.Status),
			Raw:           raw,
		}, nil
	}
	return payment.Outcome{Success: true, TransactionID: pi.ID, Raw: raw}, nil
}

func declineReason(e *stripe.Error) string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.DeclineCode != "" {
		return "card declined: " + string(e.DeclineCode)
	}
	return "card declined"
}
