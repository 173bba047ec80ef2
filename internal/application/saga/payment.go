// Package saga contains business processes that span an external call and
// local writes. The payment saga charges once and only then moves the
// registration forward.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/uow"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT SAGA
// Flow: Validate → Lock → Check Selection → Charge (once) →
//
//	Record + Mark Selection + Advance to step 7 (one tx) → Publish
//
// A failed charge records a Failed attempt and leaves current_step alone.
// ══════════════════════════════════════════════════════════════════════════════

// PaymentInput is one reconciliation request.
type PaymentInput struct {
	UserID uuid.UUID
	Email  string
	Method payment.Method
	Amount shared.Money

	// Token - gateway-specific payment reference.
	Token string
}

// Validate checks the input.
func (i PaymentInput) Validate() error {
	v := shared.NewValidationError()
	if i.UserID == uuid.Nil {
		v.Add("user", "user is required")
	}
	if _, err := payment.ParseMethod(string(i.Method)); err != nil {
		v.Add("method", "unsupported payment method")
	}
	if !i.Amount.IsPositive() {
		v.Add("amount", "amount must be greater than zero")
	}
	if i.Token == "" {
		v.Add("token", "payment token is required")
	}
	return v.OrNil()
}

// PaymentResult is a successful reconciliation.
type PaymentResult struct {
	Payment    *payment.Payment
	Transition registration.Transition
	Duration   time.Duration
}

// PaymentStage names where a reconciliation stopped.
type PaymentStage string

const (
	StageValidate  PaymentStage = "validate"
	StageLock      PaymentStage = "lock"
	StagePrecheck  PaymentStage = "precheck"
	StageCharge    PaymentStage = "charge"
	StageRecord    PaymentStage = "record"
	StageCompleted PaymentStage = "completed"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Locker provides a per-key mutual exclusion lease.
type Locker interface {
	// TryLock returns ok=false if the key is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// ProgressInvalidator drops cached progress views.
type ProgressInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// PaymentMetrics observes charge attempts.
type PaymentMetrics interface {
	ObservePayment(method string, outcome string, took time.Duration)
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PaymentSagaConfig configures the saga.
type PaymentSagaConfig struct {
	// Currency - ISO 4217 code sent to gateways.
	Currency string

	// LockTTL - how long the per-user lease lives if never released.
	LockTTL time.Duration
}

// DefaultPaymentSagaConfig returns default configuration.
func DefaultPaymentSagaConfig() PaymentSagaConfig {
	return PaymentSagaConfig{Currency: "usd", LockTTL: time.Minute}
}

// PaymentSaga reconciles gateway outcomes with the registration.
type PaymentSaga struct {
	uow      uow.UnitOfWork
	machine  *registration.Machine
	gateways payment.Gateways
	locker   Locker
	events   shared.EventPublisher
	cache    ProgressInvalidator
	metrics  PaymentMetrics
	log      *logger.Logger
	config   PaymentSagaConfig
}

// NewPaymentSaga creates a PaymentSaga. events, cache and metrics may be nil.
// A nil locker falls back to a process-local lock.
func NewPaymentSaga(
	unit uow.UnitOfWork,
	machine *registration.Machine,
	gateways payment.Gateways,
	locker Locker,
	events shared.EventPublisher,
	cache ProgressInvalidator,
	metrics PaymentMetrics,
	log *logger.Logger,
	config PaymentSagaConfig,
) *PaymentSaga {
	if log == nil {
		log = logger.NewNop()
	}
	if config.Currency == "" {
		config.Currency = DefaultPaymentSagaConfig().Currency
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultPaymentSagaConfig().LockTTL
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &PaymentSaga{
		uow:      unit,
		machine:  machine,
		gateways: gateways,
		locker:   locker,
		events:   events,
		cache:    cache,
		metrics:  metrics,
		log:      log.With(logger.Component("payment_saga")),
		config:   config,
	}
}

// Execute runs one reconciliation. The gateway is called at most once.
func (s *PaymentSaga) Execute(ctx context.Context, input PaymentInput) (*PaymentResult, error) {
	started := time.Now()
	log := s.log.With(logger.UserID(input.UserID), logger.PaymentMethod(string(input.Method)))

	if err := input.Validate(); err != nil {
		return nil, s.fail(StageValidate, err)
	}

	unlock, ok, err := s.locker.TryLock(ctx, lockKey(input.UserID), s.config.LockTTL)
	if err != nil {
		return nil, s.fail(StageLock, fmt.Errorf("acquire lock: %w", err))
	}
	if !ok {
		return nil, s.fail(StageLock, shared.ErrPaymentInProgress)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release payment lock", logger.Err(err))
		}
	}()

	if err := s.precheck(ctx, input); err != nil {
		return nil, s.fail(StagePrecheck, err)
	}

	gateway, err := s.gateways.For(input.Method)
	if err != nil {
		return nil, s.fail(StageCharge, err)
	}

	outcome, chargeErr := gateway.Charge(ctx, payment.ChargeRequest{
		UserID:         input.UserID,
		Email:          input.Email,
		Method:         input.Method,
		Amount:         input.Amount,
		Currency:       s.config.Currency,
		Token:          input.Token,
		IdempotencyKey: uuid.NewString(),
	})
	if chargeErr != nil || !outcome.Success {
		return nil, s.declined(ctx, log, input, outcome, chargeErr, started)
	}

	res, err := s.settle(ctx, input, outcome)
	if err != nil {
		// Money moved but nothing was recorded; operators reconcile by
		// transaction id.
		log.Error("charge succeeded but could not be recorded",
			logger.TransactionID(outcome.TransactionID),
			logger.AmountCents(input.Amount.Cents()),
			logger.Err(err),
		)
		s.observe(input.Method, "unrecorded", started)
		return nil, s.fail(StageRecord, err)
	}
	res.Duration = time.Since(started)

	s.observe(input.Method, "succeeded", started)
	log.Info("payment reconciled",
		logger.TransactionID(outcome.TransactionID),
		logger.AmountCents(input.Amount.Cents()),
		logger.Latency(res.Duration),
	)

	s.invalidate(ctx, input.UserID)
	s.publish(shared.NewPaymentSucceededEvent(
		input.UserID.String(), res.Payment.ID.String(), string(input.Method), input.Amount.Cents(), outcome.TransactionID,
	))
	s.publish(shared.NewStepAdvancedEvent(
		input.UserID.String(), int(res.Transition.From), int(res.Transition.To), res.Transition.Progress.ProgressNotes,
	))
	return res, nil
}

// precheck makes sure there is something to pay for before charging.
func (s *PaymentSaga) precheck(ctx context.Context, input PaymentInput) error {
	return s.uow.Do(ctx, func(tx uow.Repositories) error {
		exists, err := tx.Registration().UserExists(ctx, input.UserID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return shared.ErrUserNotFound
		}

		_, err = tx.Selections().GetByUserID(ctx, input.UserID)
		if errors.Is(err, shared.ErrSelectionMissing) {
			return shared.NewPreconditionError("Reconcile", shared.ReasonStepsIncomplete, "no course selection to pay for")
		}
		return err
	})
}

// settle records the successful attempt and advances to the payment step in
// one transaction.
func (s *PaymentSaga) settle(ctx context.Context, input PaymentInput, outcome payment.Outcome) (*PaymentResult, error) {
	res := &PaymentResult{}
	err := s.uow.Do(ctx, func(tx uow.Repositories) error {
		machine := s.machine.Bind(tx.Registration())

		p := payment.NewCompleted(input.UserID, input.Method, input.Amount, outcome, machine.Now())
		if err := tx.Payments().Record(ctx, p); err != nil {
			return err
		}
		if err := tx.Selections().SetPaymentStatus(ctx, input.UserID, course.PaymentCompleted); err != nil {
			return fmt.Errorf("mark selection paid: %w", err)
		}

		notes := input.Method.SuccessNote()
		tr, err := machine.AdvanceTo(ctx, input.UserID, registration.StepPayment, &notes)
		if err != nil {
			return err
		}

		res.Payment = p
		res.Transition = tr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// declined records a failed attempt and returns the GatewayError.
func (s *PaymentSaga) declined(
	ctx context.Context,
	log *logger.Logger,
	input PaymentInput,
	outcome payment.Outcome,
	chargeErr error,
	started time.Time,
) error {
	reason := outcome.Reason
	if chargeErr != nil {
		reason = chargeErr.Error()
	}
	if reason == "" {
		reason = "payment was not completed"
	}

	failed := payment.NewFailed(input.UserID, input.Method, input.Amount, reason, outcome.Raw, s.machine.Now())
	err := s.uow.Do(ctx, func(tx uow.Repositories) error {
		if err := tx.Payments().Record(ctx, failed); err != nil {
			return err
		}
		return tx.Selections().SetPaymentStatus(ctx, input.UserID, course.PaymentFailed)
	})
	if err != nil {
		log.Error("failed to record declined payment", logger.Err(err))
	}

	s.observe(input.Method, "failed", started)
	log.Warn("payment declined", logger.String("reason", reason), logger.Err(chargeErr))

	s.invalidate(ctx, input.UserID)
	s.publish(shared.NewPaymentFailedEvent(
		input.UserID.String(), failed.ID.String(), string(input.Method), input.Amount.Cents(), reason,
	))

	return s.fail(StageCharge, &shared.GatewayError{Method: string(input.Method), Reason: reason, Err: chargeErr})
}

func (s *PaymentSaga) observe(method payment.Method, outcome string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObservePayment(string(method), outcome, time.Since(started))
	}
}

func (s *PaymentSaga) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("failed to invalidate progress cache", logger.UserID(userID), logger.Err(err))
	}
}

func (s *PaymentSaga) publish(event shared.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(event); err != nil {
		s.log.Warn("failed to publish event", logger.String("event_type", string(event.EventType())), logger.Err(err))
	}
}

func (s *PaymentSaga) fail(stage PaymentStage, err error) error {
	return &PaymentError{Stage: stage, Cause: err}
}

func lockKey(userID uuid.UUID) string {
	return "payment:" + userID.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// PaymentError records the stage a reconciliation failed at.
type PaymentError struct {
	Stage PaymentStage
	Cause error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment saga failed at %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the caller may submit again. Declines and
// input errors need new input; a held lock clears on its own.
func (e *PaymentError) IsRetryable() bool {
	if e.Stage == StageLock {
		return errors.Is(e.Cause, shared.ErrPaymentInProgress)
	}
	return shared.IsRetryable(e.Cause)
}
