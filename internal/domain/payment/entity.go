// Package payment records charge attempts and defines the gateway capability
// used to make them.
package payment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Method identifies a payment gateway.
type Method string

const (
	MethodStripe    Method = "stripe"
	MethodPayPal    Method = "paypal"
	MethodGooglePay Method = "googlepay"
)

// ParseMethod normalizes and validates a method name.
func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case MethodStripe, MethodPayPal, MethodGooglePay:
		return m, nil
	}
	return "", shared.ErrUnsupportedMethod
}

// SuccessNote is the progress note written when a charge via m succeeds.
func (m Method) SuccessNote() string {
	return string(m) + "-success"
}

// Status of a payment attempt.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusRefunded  Status = "Refunded"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PAYMENT
// ══════════════════════════════════════════════════════════════════════════════

// Payment is one charge attempt. Attempts are appended, never overwritten.
type Payment struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Method Method
	Amount shared.Money

	// TransactionID - gateway reference, unique when present.
	TransactionID string

	Status        Status
	FailureReason string

	// GatewayResponse - raw gateway payload for audits.
	GatewayResponse json.RawMessage

	PaymentDate time.Time
}

// IsCompleted reports whether the charge succeeded.
func (p *Payment) IsCompleted() bool {
	return p.Status == StatusCompleted
}

// NewCompleted builds a successful attempt.
func NewCompleted(userID uuid.UUID, method Method, amount shared.Money, outcome Outcome, now time.Time) *Payment {
	return &Payment{
		ID:              uuid.New(),
		UserID:          userID,
		Method:          method,
		Amount:          amount,
		TransactionID:   outcome.TransactionID,
		Status:          StatusCompleted,
		GatewayResponse: outcome.Raw,
		PaymentDate:     now,
	}
}

// NewFailed builds a failed attempt.
func NewFailed(userID uuid.UUID, method Method, amount shared.Money, reason string, raw json.RawMessage, now time.Time) *Payment {
	return &Payment{
		ID:              uuid.New(),
		UserID:          userID,
		Method:          method,
		Amount:          amount,
		Status:          StatusFailed,
		FailureReason:   reason,
		GatewayResponse: raw,
		PaymentDate:     now,
	}
}
