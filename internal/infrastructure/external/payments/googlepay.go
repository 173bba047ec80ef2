package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/campus-enroll/registration-hub/internal/domain/payment"
)

// GooglePay accepts any non-empty token. It stands in for a processor
// integration and derives the transaction id from the token.
type GooglePay struct{}

// NewGooglePay creates the simulated gateway.
func NewGooglePay() *GooglePay {
	return &GooglePay{}
}

// Method implements payment.Gateway.
func (g *GooglePay) Method() payment.Method {
	return payment.MethodGooglePay
}

// Charge implements payment.Gateway.
func (g *GooglePay) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return payment.Outcome{}, err
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return payment.Outcome{Reason: "google pay token is required"}, nil
	}

	txID := "GOOGLEPAY-" + token
	raw, _ := json.Marshal(map[string]any{
		"transaction_id": txID,
		"amount_cents":   req.Amount.Cents(),
		"currency":       req.Currency,
		"status":         "SUCCESS",
	})
	return payment.Outcome{Success: true, TransactionID: txID, Raw: raw}, nil
}
