package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event. Handlers subscribe by type.
type EventType string

const (
	EventAccountCreated  EventType = "account.created"
	EventAccountVerified EventType = "account.verified"
	EventAccountDeleted  EventType = "account.deleted"

	EventStepAdvanced          EventType = "registration.step_advanced"
	EventRegistrationCompleted EventType = "registration.completed"

	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"

	EventGeoImportCompleted EventType = "geo.import_completed"
)

// Event is something that already happened to an aggregate, usually a user.
// Concrete events are plain structs that serialize with encoding/json.
type Event interface {
	EventID() string
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
}

// BaseEvent is embedded by every concrete event.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Aggregate string    `json:"aggregate_id"`
}

func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Aggregate: aggregateID,
	}
}

func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.Aggregate }

// ═══════════════════════════════════════════════════════════════════════════
// Account Events
// ═══════════════════════════════════════════════════════════════════════════

// AccountCreatedEvent is emitted after step 1 creates a user.
type AccountCreatedEvent struct {
	BaseEvent
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	VerificationToken string `json:"-"`
}

func NewAccountCreatedEvent(userID, email, firstName, verificationToken string) AccountCreatedEvent {
	return AccountCreatedEvent{
		BaseEvent:         NewBaseEvent(EventAccountCreated, userID),
		Email:             email,
		FirstName:         firstName,
		VerificationToken: verificationToken,
	}
}

// AccountVerifiedEvent is emitted when a user confirms their email.
type AccountVerifiedEvent struct {
	BaseEvent
	Email string `json:"email"`
}

func NewAccountVerifiedEvent(userID, email string) AccountVerifiedEvent {
	return AccountVerifiedEvent{
		BaseEvent: NewBaseEvent(EventAccountVerified, userID),
		Email:     email,
	}
}

// AccountDeletedEvent is emitted when an admin soft-deletes a user.
type AccountDeletedEvent struct {
	BaseEvent
}

func NewAccountDeletedEvent(userID string) AccountDeletedEvent {
	return AccountDeletedEvent{BaseEvent: NewBaseEvent(EventAccountDeleted, userID)}
}

// ═══════════════════════════════════════════════════════════════════════════
// Registration Events
// ═══════════════════════════════════════════════════════════════════════════

// StepAdvancedEvent is emitted whenever current_step is written.
type StepAdvancedEvent struct {
	BaseEvent
	FromStep int    `json:"from_step"`
	ToStep   int    `json:"to_step"`
	Notes    string `json:"notes,omitempty"`
}

func NewStepAdvancedEvent(userID string, from, to int, notes string) StepAdvancedEvent {
	return StepAdvancedEvent{
		BaseEvent: NewBaseEvent(EventStepAdvanced, userID),
		FromStep:  from,
		ToStep:    to,
		Notes:     notes,
	}
}

// RegistrationCompletedEvent is emitted the first time a registration is finalized.
type RegistrationCompletedEvent struct {
	BaseEvent
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	CompletionDate time.Time `json:"completion_date"`
}

func NewRegistrationCompletedEvent(userID, email, firstName, lastName string, completedAt time.Time) RegistrationCompletedEvent {
	return RegistrationCompletedEvent{
		BaseEvent:      NewBaseEvent(EventRegistrationCompleted, userID),
		Email:          email,
		FirstName:      firstName,
		LastName:       lastName,
		CompletionDate: completedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Payment Events
// ═══════════════════════════════════════════════════════════════════════════

// PaymentEvent is emitted after a reconciliation attempt settles.
type PaymentEvent struct {
	BaseEvent
	PaymentID     string `json:"payment_id"`
	Method        string `json:"method"`
	AmountCents   int64  `json:"amount_cents"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func NewPaymentSucceededEvent(userID, paymentID, method string, amountCents int64, transactionID string) PaymentEvent {
	return PaymentEvent{
		BaseEvent:     NewBaseEvent(EventPaymentSucceeded, userID),
		PaymentID:     paymentID,
		Method:        method,
		AmountCents:   amountCents,
		TransactionID: transactionID,
	}
}

func NewPaymentFailedEvent(userID, paymentID, method string, amountCents int64, reason string) PaymentEvent {
	return PaymentEvent{
		BaseEvent:   NewBaseEvent(EventPaymentFailed, userID),
		PaymentID:   paymentID,
		Method:      method,
		AmountCents: amountCents,
		Reason:      reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reference Data Events
// ═══════════════════════════════════════════════════════════════════════════

// GeoImportCompletedEvent is emitted by the country/city import job.
type GeoImportCompletedEvent struct {
	BaseEvent
	Countries int           `json:"countries"`
	Cities    int           `json:"cities"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

func NewGeoImportCompletedEvent(runID string, countries, cities, skipped, failed int, took time.Duration) GeoImportCompletedEvent {
	return GeoImportCompletedEvent{
		BaseEvent: NewBaseEvent(EventGeoImportCompleted, runID),
		Countries: countries,
		Cities:    cities,
		Skipped:   skipped,
		Failed:    failed,
		Duration:  took,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler reacts to one event. Its error never reaches the publisher.
type EventHandler func(event Event) error

type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber registers handlers for one type, or for every type.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
}
