// Package shared holds what every domain package needs: the error taxonomy,
// domain events and the small value objects.
package shared

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Base domain errors that can be used for error checking with errors.Is().
// The first five form the error taxonomy surfaced to callers.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("entity not found")
	ErrPrecondition = errors.New("precondition failed")
	ErrGateway      = errors.New("payment gateway error")
	ErrConflict     = errors.New("conflict")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError is a failure in one domain operation. Kind is one of the base
// errors above; errors.Is matches both Kind and the wrapped cause.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError is NewDomainError with a cause.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// ═══════════════════════════════════════════════════════════════════════════
// Validation
// ═══════════════════════════════════════════════════════════════════════════

// ValidationError carries per-field reasons for rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates an empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// FieldError is a shortcut for a single-field validation failure.
func FieldError(field, reason string) *ValidationError {
	v := NewValidationError()
	v.Add(field, reason)
	return v
}

// Add records a reason for field. The first reason for a field wins.
func (e *ValidationError) Add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = reason
	}
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// OrNil returns e as an error when it has fields, nil otherwise.
func (e *ValidationError) OrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Error lists the fields in name order.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ═══════════════════════════════════════════════════════════════════════════
// Preconditions
// ═══════════════════════════════════════════════════════════════════════════

// PreconditionReason names which workflow precondition was unmet.
type PreconditionReason string

const (
	ReasonStepsIncomplete PreconditionReason = "steps-incomplete"
	ReasonPaymentMissing  PreconditionReason = "payment-missing"
	ReasonStepOutOfOrder  PreconditionReason = "step-out-of-order"
	ReasonAccountInactive PreconditionReason = "account-inactive"
)

// PreconditionError reports a step or payment ordering violation.
type PreconditionError struct {
	Op      string
	Reason  PreconditionReason
	Message string
}

// NewPreconditionError creates a PreconditionError.
func NewPreconditionError(op string, reason PreconditionReason, message string) *PreconditionError {
	return &PreconditionError{Op: op, Reason: reason, Message: message}
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("registration.%s: %s: %s", e.Op, e.Reason, e.Message)
}

// Is matches ErrPrecondition.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// ═══════════════════════════════════════════════════════════════════════════
// Gateway
// ═══════════════════════════════════════════════════════════════════════════

// GatewayError reports a payment that the gateway declined or could not process.
type GatewayError struct {
	Method string
	Reason string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment.%s: %s: %v", e.Method, e.Reason, e.Err)
	}
	return fmt.Sprintf("payment.%s: %s", e.Method, e.Reason)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is matches ErrGateway.
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// ═══════════════════════════════════════════════════════════════════════════
// Predefined domain errors
// ═══════════════════════════════════════════════════════════════════════════

// Account domain errors
var (
	ErrUserNotFound    = NewDomainError("account", "Find", ErrNotFound, "user not found")
	ErrEmailTaken      = NewDomainError("account", "Create", ErrConflict, "an account with this email already exists")
	ErrInvalidToken    = NewDomainError("account", "VerifyEmail", ErrValidation, "invalid or expired verification token")
	ErrAlreadyVerified = NewDomainError("account", "VerifyEmail", ErrConflict, "email already verified")
	ErrUserDeleted     = NewDomainError("account", "Find", ErrNotFound, "user has been deleted")
)

// Registration domain errors
var (
	ErrProgressNotFound = NewDomainError("registration", "Find", ErrNotFound, "registration has not started")
	ErrEmptyNotes       = FieldError("progress_notes", "progress notes cannot be empty")
	ErrInvalidStep      = FieldError("step", "step must be between 1 and 8")
	ErrUnknownStepName  = FieldError("step_name", "unknown registration step")
)

// Course domain errors
var (
	ErrCourseNotFound   = NewDomainError("course", "Find", ErrNotFound, "course not found")
	ErrCourseNameTaken  = NewDomainError("course", "Create", ErrConflict, "a course with this name already exists")
	ErrSelectionMissing = NewDomainError("course", "FindSelection", ErrNotFound, "no course selection")
)

// Payment domain errors
var (
	ErrDuplicateTransaction = NewDomainError("payment", "Record", ErrConflict, "transaction id already recorded")
	ErrPaymentInProgress    = NewDomainError("payment", "Reconcile", ErrConflict, "another payment for this user is in progress")
	ErrUnsupportedMethod    = FieldError("method", "unsupported payment method")
)

// Geo domain errors
var (
	ErrCountryNotFound = NewDomainError("geo", "FindCountry", ErrNotFound, "country not found")
	ErrCityNotFound    = NewDomainError("geo", "FindCity", ErrNotFound, "city not found")
)

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsPrecondition(err error) bool { return errors.Is(err, ErrPrecondition) }
func IsGateway(err error) bool      { return errors.Is(err, ErrGateway) }

// IsExternalService is true for failures of a dependency outside the
// process: a provider, the cache, a timeout.
func IsExternalService(err error) bool {
	return isAny(err, ErrExternalService, ErrServiceUnavailable, ErrTimeout, ErrRateLimited)
}

// IsRetryable is true for transient failures. Validation and not-found
// errors never are.
func IsRetryable(err error) bool {
	return isAny(err, ErrServiceUnavailable, ErrTimeout, ErrRateLimited, ErrConcurrentModification)
}

// PreconditionReasonOf extracts the reason from a PreconditionError chain.
func PreconditionReasonOf(err error) (PreconditionReason, bool) {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return "", false
}

// ValidationFieldsOf extracts field reasons from a ValidationError chain.
func ValidationFieldsOf(err error) (map[string]string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields, true
	}
	return nil, false
}
