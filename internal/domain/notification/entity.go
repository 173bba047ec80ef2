// Package notification describes the emails sent to registrants and the
// delivery capability that sends them.
package notification

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type identifies a notification template.
type Type string

const (
	// TypeEmailVerification - sent after account creation with a verify link.
	TypeEmailVerification Type = "email_verification"

	// TypeRegistrationCompleted - sent once after a successful finalize.
	TypeRegistrationCompleted Type = "registration_completed"

	// TypePaymentFailed - sent when a charge is declined.
	TypePaymentFailed Type = "payment_failed"
)

// IsValid reports whether t has a template.
func (t Type) IsValid() bool {
	switch t {
	case TypeEmailVerification, TypeRegistrationCompleted, TypePaymentFailed:
		return true
	}
	return false
}

// String returns the string representation.
func (t Type) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Recipient is who a message goes to.
type Recipient struct {
	UserID    uuid.UUID
	Email     string
	FirstName string
	LastName  string
}

// FullName joins first and last name.
func (r Recipient) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Message is a rendered email.
type Message struct {
	ID        uuid.UUID
	Type      Type
	To        Recipient
	Subject   string
	Body      string
	CreatedAt time.Time
}

// Errors returned while building messages.
var (
	ErrInvalidType       = errors.New("notification: unknown type")
	ErrMissingRecipient  = errors.New("notification: recipient email is required")
	ErrMissingParameters = errors.New("notification: template parameters are incomplete")
)

// Validate checks that the message can be delivered.
func (m *Message) Validate() error {
	if !m.Type.IsValid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(m.To.Email) == "" {
		return ErrMissingRecipient
	}
	return nil
}
