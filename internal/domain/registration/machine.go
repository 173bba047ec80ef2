package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// Machine is the only writer of Progress and Status.
//
// AdvanceTo is lenient: it overwrites current_step with whatever
// the caller asks for. Each step handler advances to its own fixed step, so
// ordering is a caller contract unless strict ordering is switched on, in
// which case Guard rejects out-of-order submissions.
type Machine struct {
	repo      Repository
	clock     timeutil.Clock
	strict    bool
	monotonic bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(clock timeutil.Clock) Option {
	return func(m *Machine) { m.clock = clock }
}

// WithStrictOrdering makes Guard enforce the predecessor table.
func WithStrictOrdering(enabled bool) Option {
	return func(m *Machine) { m.strict = enabled }
}

// WithMonotonicProgress makes AdvanceTo ignore moves to a lower step.
// Override still lowers.
func WithMonotonicProgress(enabled bool) Option {
	return func(m *Machine) { m.monotonic = enabled }
}

// NewMachine creates a Machine over repo.
func NewMachine(repo Repository, opts ...Option) *Machine {
	m := &Machine{repo: repo, clock: timeutil.SystemClock}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind returns a copy of m that writes through repo, typically a
// transaction-bound repository handed out by a unit of work.
func (m *Machine) Bind(repo Repository) *Machine {
	clone := *m
	clone.repo = repo
	return &clone
}

// Transition describes a single write to current_step.
type Transition struct {
	UserID   uuid.UUID
	From     Step
	To       Step
	Progress *Progress
}

// Changed reports whether the step actually moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// FinalizeResult is returned by a successful Finalize.
type FinalizeResult struct {
	Progress *Progress
	Status   *Status

	// FirstCompletion is true only for the call that flipped IsCompleted.
	FirstCompletion bool
}

// ──────────────────────────────────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────────────────────────────────

// Initialize creates step-1 progress and a not-completed status for a new user.
func (m *Machine) Initialize(ctx context.Context, userID uuid.UUID) (*Progress, error) {
	now := m.clock()
	progress := NewProgress(userID, now)
	if err := m.repo.SaveProgress(ctx, progress); err != nil {
		return nil, fmt.Errorf("initialize progress: %w", err)
	}
	if err := m.repo.SaveStatus(ctx, NewStatus(userID, now)); err != nil {
		return nil, fmt.Errorf("initialize status: %w", err)
	}
	return progress, nil
}

// AdvanceTo overwrites current_step with step and bumps last_visited. Notes
// are replaced only when non-nil. A user without a progress row gets one.
func (m *Machine) AdvanceTo(ctx context.Context, userID uuid.UUID, step Step, notes *string) (Transition, error) {
	return m.write(ctx, "AdvanceTo", userID, step, notes, m.monotonic)
}

// Override is the admin path. It may lower current_step. Like AdvanceTo it
// cannot move an uncompleted registration to the confirmation step.
func (m *Machine) Override(ctx context.Context, userID uuid.UUID, step Step, notes *string) (Transition, error) {
	return m.write(ctx, "Override", userID, step, notes, false)
}

func (m *Machine) write(ctx context.Context, op string, userID uuid.UUID, step Step, notes *string, monotonic bool) (Transition, error) {
	if !step.IsValid() {
		return Transition{}, shared.ErrInvalidStep
	}

	var tr Transition
	err := m.repo.Atomically(ctx, func(tx Repository) error {
		exists, err := tx.UserExists(ctx, userID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return shared.ErrUserNotFound
		}

		now := m.clock()
		progress, err := tx.GetProgressForUpdate(ctx, userID)
		switch {
		case errors.Is(err, shared.ErrProgressNotFound):
			progress = NewProgress(userID, now)
			progress.CurrentStep = 0
		case err != nil:
			return fmt.Errorf("load progress: %w", err)
		}

		from := progress.CurrentStep
		target := step
		if monotonic && target < from {
			target = from
		}
		if target == StepConfirmation {
			if err := requireCompleted(ctx, tx, userID, op); err != nil {
				return err
			}
		}
		progress.moveTo(target, notes, now)

		if err := tx.SaveProgress(ctx, progress); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		tr = Transition{UserID: userID, From: from, To: target, Progress: progress}
		return nil
	})
	if err != nil {
		return Transition{}, fmt.Errorf("registration.%s: %w", op, err)
	}
	return tr, nil
}

// requireCompleted keeps step 8 reserved for completed registrations.
func requireCompleted(ctx context.Context, tx Repository, userID uuid.UUID, op string) error {
	status, err := tx.GetStatus(ctx, userID)
	switch {
	case errors.Is(err, shared.ErrProgressNotFound):
	case err != nil:
		return fmt.Errorf("load status: %w", err)
	case status.IsCompleted:
		return nil
	}
	return shared.NewPreconditionError(op, shared.ReasonStepsIncomplete,
		"confirmation is only reachable through Finalize")
}

// IsStepReached reports whether current_step >= n. A user without progress
// has reached nothing.
func (m *Machine) IsStepReached(ctx context.Context, userID uuid.UUID, n Step) (bool, error) {
	progress, err := m.repo.GetProgress(ctx, userID)
	if errors.Is(err, shared.ErrProgressNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("registration.IsStepReached: %w", err)
	}
	return progress.IsStepReached(n), nil
}

// Guard returns a step-out-of-order PreconditionError when strict ordering is
// enabled and the user has not reached target's predecessor. It is a no-op
// otherwise.
func (m *Machine) Guard(ctx context.Context, userID uuid.UUID, target Step) error {
	if !m.strict {
		return nil
	}

	var current Step
	progress, err := m.repo.GetProgress(ctx, userID)
	switch {
	case errors.Is(err, shared.ErrProgressNotFound):
	case err != nil:
		return fmt.Errorf("registration.Guard: %w", err)
	default:
		current = progress.CurrentStep
	}

	if CanEnter(current, target) {
		return nil
	}
	prev, _ := RequiredPredecessor(target)
	return shared.NewPreconditionError("Guard", shared.ReasonStepOutOfOrder,
		fmt.Sprintf("step %q requires step %q first", target.Name(), prev.Name()))
}

// Finalize completes the registration. It requires current_step >= 7 and a
// Completed payment, checked in that order; on failure nothing is written.
// Repeated calls succeed without moving CompletionDate.
func (m *Machine) Finalize(ctx context.Context, userID uuid.UUID) (*FinalizeResult, error) {
	var result *FinalizeResult
	err := m.repo.Atomically(ctx, func(tx Repository) error {
		exists, err := tx.UserExists(ctx, userID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return shared.ErrUserNotFound
		}

		progress, err := tx.GetProgressForUpdate(ctx, userID)
		if errors.Is(err, shared.ErrProgressNotFound) {
			return shared.NewPreconditionError("Finalize", shared.ReasonStepsIncomplete, "registration has not started")
		}
		if err != nil {
			return fmt.Errorf("load progress: %w", err)
		}
		if !progress.IsStepReached(StepPayment) {
			return shared.NewPreconditionError("Finalize", shared.ReasonStepsIncomplete,
				fmt.Sprintf("current step is %d, payment step not reached", progress.CurrentStep))
		}

		paid, err := tx.HasCompletedPayment(ctx, userID)
		if err != nil {
			return fmt.Errorf("check payment: %w", err)
		}
		if !paid {
			return shared.NewPreconditionError("Finalize", shared.ReasonPaymentMissing, "no completed payment")
		}

		now := m.clock()
		status, err := tx.GetStatus(ctx, userID)
		switch {
		case errors.Is(err, shared.ErrProgressNotFound):
			status = NewStatus(userID, now)
		case err != nil:
			return fmt.Errorf("load status: %w", err)
		}

		first := status.complete(now, CompletionNotes)
		if err := tx.SaveStatus(ctx, status); err != nil {
			return fmt.Errorf("save status: %w", err)
		}

		notes := CompletionNotes
		progress.moveTo(StepConfirmation, &notes, now)
		if err := tx.SaveProgress(ctx, progress); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}

		result = &FinalizeResult{Progress: progress, Status: status, FirstCompletion: first}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registration.Finalize: %w", err)
	}
	return result, nil
}

// UpdateNotes replaces progress notes and bumps last_visited. A user without
// a progress row gets one at step 1.
func (m *Machine) UpdateNotes(ctx context.Context, userID uuid.UUID, notes string) (*Progress, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, shared.ErrEmptyNotes
	}

	var progress *Progress
	err := m.repo.Atomically(ctx, func(tx Repository) error {
		exists, err := tx.UserExists(ctx, userID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return shared.ErrUserNotFound
		}

		now := m.clock()
		p, err := tx.GetProgressForUpdate(ctx, userID)
		switch {
		case errors.Is(err, shared.ErrProgressNotFound):
			p = NewProgress(userID, now)
		case err != nil:
			return fmt.Errorf("load progress: %w", err)
		}
		p.moveTo(p.CurrentStep, &notes, now)
		if err := tx.SaveProgress(ctx, p); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		progress = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registration.UpdateNotes: %w", err)
	}
	return progress, nil
}

// Now exposes the machine clock to callers that stamp related records.
func (m *Machine) Now() time.Time {
	return m.clock()
}
