package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ChargeRequest is what a gateway needs to take money.
type ChargeRequest struct {
	UserID   uuid.UUID
	Email    string
	Method   Method
	Amount   shared.Money
	Currency string

	// Token - gateway-specific payment reference.
	Token string

	// IdempotencyKey - forwarded to gateways that support it.
	IdempotencyKey string
}

// Outcome is a settled charge. Declines are Outcomes with Success false,
// not errors.
type Outcome struct {
	Success       bool
	TransactionID string
	Reason        string
	Raw           json.RawMessage
}

// Gateway charges a payment method. An error means the gateway could not be
// reached or returned something unusable.
type Gateway interface {
	Method() Method
	Charge(ctx context.Context, req ChargeRequest) (Outcome, error)
}

// Gateways routes a method to its gateway.
type Gateways map[Method]Gateway

// NewGateways indexes gateways by their method.
func NewGateways(gs ...Gateway) Gateways {
	out := make(Gateways, len(gs))
	for _, g := range gs {
		out[g.Method()] = g
	}
	return out
}

// For returns the gateway for m.
func (g Gateways) For(m Method) (Gateway, error) {
	gw, ok := g[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedMethod, m)
	}
	return gw, nil
}
