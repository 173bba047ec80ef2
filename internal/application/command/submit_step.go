package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/lookup"
	"github.com/campus-enroll/registration-hub/internal/application/saga"
	"github.com/campus-enroll/registration-hub/internal/application/uow"
	"github.com/campus-enroll/registration-hub/internal/application/validation"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT STEP COMMAND
// Routes one workflow step submission: decode, validate, persist the step
// record and move current_step, all in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitStepCommand is either a typed Payload or a raw JSON Body for StepName.
type SubmitStepCommand struct {
	// StepName - "personal_info", "address", ... or the step number.
	StepName string

	// Body - raw JSON, decoded when Payload is nil.
	Body []byte

	// Payload - already decoded submission.
	Payload registration.StepPayload
}

// SubmitStepResult describes what the submission changed.
type SubmitStepResult struct {
	UserID   uuid.UUID
	Step     registration.Step
	Progress *registration.Progress

	// Set by the account step only.
	Account *AccountCreated

	// Set by the course selection step only.
	Selection *course.Selection

	// Set by the payment step only.
	Payment *payment.Payment

	// Set by the confirmation step only.
	Completion *registration.FinalizeResult
}

// AccountCreated is the outcome of step 1.
type AccountCreated struct {
	User              *account.User
	VerificationToken string
}

// TokenIssuer signs email verification tokens.
type TokenIssuer interface {
	Issue(userID uuid.UUID, email string) (string, error)
}

// PaymentReconciler runs the payment step.
type PaymentReconciler interface {
	Execute(ctx context.Context, input saga.PaymentInput) (*saga.PaymentResult, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitStepHandler handles SubmitStepCommand.
type SubmitStepHandler struct {
	uow        uow.UnitOfWork
	accounts   account.Repository
	machine    *registration.Machine
	validator  *validation.Validator
	tokens     TokenIssuer
	payments   PaymentReconciler
	finalizer  *FinalizeHandler
	bcryptCost int
	after      afterCommit
}

// SubmitStepConfig carries the collaborators of SubmitStepHandler.
type SubmitStepConfig struct {
	UnitOfWork uow.UnitOfWork
	Accounts   account.Repository
	Machine    *registration.Machine
	Validator  *validation.Validator
	Tokens     TokenIssuer
	Payments   PaymentReconciler
	Finalizer  *FinalizeHandler
	Events     shared.EventPublisher
	Cache      ProgressInvalidator
	Logger     *logger.Logger

	// BcryptCost - 0 means bcrypt.DefaultCost.
	BcryptCost int
}

// NewSubmitStepHandler creates a SubmitStepHandler.
func NewSubmitStepHandler(cfg SubmitStepConfig) *SubmitStepHandler {
	return &SubmitStepHandler{
		uow:        cfg.UnitOfWork,
		accounts:   cfg.Accounts,
		machine:    cfg.Machine,
		validator:  cfg.Validator,
		tokens:     cfg.Tokens,
		payments:   cfg.Payments,
		finalizer:  cfg.Finalizer,
		bcryptCost: cfg.BcryptCost,
		after:      newAfterCommit(cfg.Events, cfg.Cache, cfg.Logger),
	}
}

// Handle executes the step submission.
func (h *SubmitStepHandler) Handle(ctx context.Context, cmd SubmitStepCommand) (*SubmitStepResult, error) {
	step, err := registration.ParseStepName(cmd.StepName)
	if err != nil {
		return nil, fmt.Errorf("submit_step: %w", err)
	}

	payload := cmd.Payload
	if payload == nil {
		payload, err = registration.DecodePayload(step, cmd.Body)
		if err != nil {
			return nil, fmt.Errorf("submit_step: %w", err)
		}
	}
	if payload.Step() != step {
		return nil, fmt.Errorf("submit_step: %w",
			shared.FieldError("step", fmt.Sprintf("payload is for %q, not %q", payload.Step().Name(), step.Name())))
	}

	payload, err = h.validator.Payload(payload)
	if err != nil {
		return nil, fmt.Errorf("submit_step: %s: %w", step.Name(), err)
	}

	var result *SubmitStepResult
	switch p := payload.(type) {
	case registration.AccountPayload:
		result, err = h.createAccount(ctx, p)
	case registration.PersonalInfoPayload:
		result, err = h.savePersonalInfo(ctx, p)
	case registration.AddressPayload:
		result, err = h.saveAddress(ctx, p)
	case registration.EducationPayload:
		result, err = h.saveEducation(ctx, p)
	case registration.CourseSelectionPayload:
		result, err = h.selectCourses(ctx, p)
	case registration.ReviewPayload:
		result, err = h.review(ctx, p)
	case registration.PaymentPayload:
		result, err = h.pay(ctx, p)
	case registration.ConfirmationPayload:
		result, err = h.confirm(ctx, p)
	default:
		err = shared.ErrInvalidStep
	}
	if err != nil {
		return nil, fmt.Errorf("submit_step: %s: %w", step.Name(), err)
	}
	return result, nil
}

// stepTx runs fn in a transaction with the submitter resolved and the
// ordering guard applied, then advances to the payload's step.
func (h *SubmitStepHandler) stepTx(
	ctx context.Context,
	p registration.StepPayload,
	notes *string,
	fn func(tx uow.Repositories, user *account.User) error,
) (registration.Transition, error) {
	var tr registration.Transition
	err := h.uow.Do(ctx, func(tx uow.Repositories) error {
		user, err := resolveIn(ctx, tx, p.UserReference())
		if err != nil {
			return err
		}

		machine := h.machine.Bind(tx.Registration())
		if err := machine.Guard(ctx, user.ID, p.Step()); err != nil {
			return err
		}

		if fn != nil {
			if err := fn(tx, user); err != nil {
				return err
			}
		}

		tr, err = machine.AdvanceTo(ctx, user.ID, p.Step(), notes)
		return err
	})
	if err != nil {
		return registration.Transition{}, err
	}

	h.after.transition(ctx, tr)
	return tr, nil
}

func resolveIn(ctx context.Context, tx uow.Repositories, ref string) (*account.User, error) {
	return lookup.Resolve(ctx, tx.Accounts(), ref)
}

func resultOf(tr registration.Transition) *SubmitStepResult {
	return &SubmitStepResult{UserID: tr.UserID, Step: tr.To, Progress: tr.Progress}
}

// review acknowledges the summary returned by the review query.
func (h *SubmitStepHandler) review(ctx context.Context, p registration.ReviewPayload) (*SubmitStepResult, error) {
	tr, err := h.stepTx(ctx, p, nil, nil)
	if err != nil {
		return nil, err
	}
	return resultOf(tr), nil
}

func (h *SubmitStepHandler) pay(ctx context.Context, p registration.PaymentPayload) (*SubmitStepResult, error) {
	user, err := lookup.Resolve(ctx, h.accounts, p.User)
	if err != nil {
		return nil, err
	}
	if err := h.machine.Guard(ctx, user.ID, registration.StepPayment); err != nil {
		return nil, err
	}

	method, err := payment.ParseMethod(p.Method)
	if err != nil {
		return nil, err
	}

	res, err := h.payments.Execute(ctx, saga.PaymentInput{
		UserID: user.ID,
		Email:  user.Email.String(),
		Method: method,
		Amount: shared.MoneyFromFloat(p.Amount),
		Token:  p.Token,
	})
	if err != nil {
		return nil, err
	}
	return &SubmitStepResult{
		UserID:   user.ID,
		Step:     registration.StepPayment,
		Progress: res.Transition.Progress,
		Payment:  res.Payment,
	}, nil
}

func (h *SubmitStepHandler) confirm(ctx context.Context, p registration.ConfirmationPayload) (*SubmitStepResult, error) {
	res, err := h.finalizer.Handle(ctx, FinalizeCommand{UserRef: p.User})
	if err != nil {
		return nil, err
	}
	return &SubmitStepResult{
		UserID:     res.UserID,
		Step:       registration.StepConfirmation,
		Progress:   res.Result.Progress,
		Completion: res.Result,
	}, nil
}
