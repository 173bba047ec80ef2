package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/lookup"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FINALIZE COMMAND
// Completes the registration once every step and the payment are in place.
// ══════════════════════════════════════════════════════════════════════════════

// FinalizeCommand identifies the registration to complete.
type FinalizeCommand struct {
	// UserRef - email or user id.
	UserRef string
}

// FinalizeCommandResult wraps the machine result with the resolved user.
type FinalizeCommandResult struct {
	UserID uuid.UUID
	Result *registration.FinalizeResult
}

// FinalizeHandler handles FinalizeCommand.
type FinalizeHandler struct {
	accounts account.Repository
	machine  *registration.Machine
	after    afterCommit
}

// NewFinalizeHandler creates a FinalizeHandler.
func NewFinalizeHandler(
	accounts account.Repository,
	machine *registration.Machine,
	events shared.EventPublisher,
	cache ProgressInvalidator,
	log *logger.Logger,
) *FinalizeHandler {
	return &FinalizeHandler{
		accounts: accounts,
		machine:  machine,
		after:    newAfterCommit(events, cache, log),
	}
}

// Handle finalizes. Only the first successful call announces completion, so
// the confirmation email goes out once.
func (h *FinalizeHandler) Handle(ctx context.Context, cmd FinalizeCommand) (*FinalizeCommandResult, error) {
	user, err := lookup.Resolve(ctx, h.accounts, cmd.UserRef)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	if err := h.machine.Guard(ctx, user.ID, registration.StepConfirmation); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	res, err := h.machine.Finalize(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	h.after.invalidate(ctx, user.ID)
	if res.FirstCompletion {
		h.after.log.Info("registration completed", logger.UserID(user.ID))
		h.after.publish(shared.NewRegistrationCompletedEvent(
			user.ID.String(), user.Email.String(), user.FirstName, user.LastName, *res.Status.CompletionDate,
		))
	}

	return &FinalizeCommandResult{UserID: user.ID, Result: res}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE NOTES COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// UpdateNotesCommand replaces a user's progress notes.
type UpdateNotesCommand struct {
	UserRef string
	Notes   string
}

// UpdateNotesHandler handles UpdateNotesCommand.
type UpdateNotesHandler struct {
	accounts account.Repository
	machine  *registration.Machine
	after    afterCommit
}

// NewUpdateNotesHandler creates an UpdateNotesHandler.
func NewUpdateNotesHandler(accounts account.Repository, machine *registration.Machine, cache ProgressInvalidator, log *logger.Logger) *UpdateNotesHandler {
	return &UpdateNotesHandler{
		accounts: accounts,
		machine:  machine,
		after:    newAfterCommit(nil, cache, log),
	}
}

// Handle executes the command.
func (h *UpdateNotesHandler) Handle(ctx context.Context, cmd UpdateNotesCommand) (*registration.Progress, error) {
	user, err := lookup.Resolve(ctx, h.accounts, cmd.UserRef)
	if err != nil {
		return nil, fmt.Errorf("update_notes: %w", err)
	}

	progress, err := h.machine.UpdateNotes(ctx, user.ID, cmd.Notes)
	if err != nil {
		return nil, fmt.Errorf("update_notes: %w", err)
	}

	h.after.invalidate(ctx, user.ID)
	return progress, nil
}
