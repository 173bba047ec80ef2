package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// RegistrationRepository implements registration.Repository. Both tables are
// upserted with ON CONFLICT (user_id), so concurrent writers for one user
// resolve to the last writer.
type RegistrationRepository struct {
	s scope
}

// UserExists reports whether a non-deleted user exists.
func (r *RegistrationRepository) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

// GetProgress returns the progress row.
func (r *RegistrationRepository) GetProgress(ctx context.Context, userID uuid.UUID) (*registration.Progress, error) {
	return r.progress(ctx, userID, "")
}

// GetProgressForUpdate locks the progress row until the transaction ends.
func (r *RegistrationRepository) GetProgressForUpdate(ctx context.Context, userID uuid.UUID) (*registration.Progress, error) {
	if !r.s.inTx {
		return r.GetProgress(ctx, userID)
	}
	return r.progress(ctx, userID, " FOR UPDATE")
}

func (r *RegistrationRepository) progress(ctx context.Context, userID uuid.UUID, lock string) (*registration.Progress, error) {
	var (
		p    registration.Progress
		step int16
	)
	err := r.s.q.QueryRow(ctx, `
		SELECT user_id, current_step, last_visited, progress_notes
		FROM registration_steps
		WHERE user_id = $1`+lock, userID,
	).Scan(&p.UserID, &step, &p.LastVisited, &p.ProgressNotes)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	p.CurrentStep = registration.Step(step)
	return &p, nil
}

// SaveProgress upserts the progress row.
func (r *RegistrationRepository) SaveProgress(ctx context.Context, p *registration.Progress) error {
	_, err := r.s.q.Exec(ctx, `
		INSERT INTO registration_steps (user_id, current_step, last_visited, progress_notes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			last_visited = EXCLUDED.last_visited,
			progress_notes = EXCLUDED.progress_notes
	`, p.UserID, int16(p.CurrentStep), p.LastVisited, p.ProgressNotes)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// GetStatus returns the status row.
func (r *RegistrationRepository) GetStatus(ctx context.Context, userID uuid.UUID) (*registration.Status, error) {
	var st registration.Status
	err := r.s.q.QueryRow(ctx, `
		SELECT user_id, is_completed, completion_date, progress_notes, last_updated
		FROM registration_status
		WHERE user_id = $1
	`, userID).Scan(&st.UserID, &st.IsCompleted, &st.CompletionDate, &st.ProgressNotes, &st.LastUpdated)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &st, nil
}

// SaveStatus upserts the status row. A stored completion_date always wins, so
// racing finalizers agree on the first one; st is updated to what was stored.
func (r *RegistrationRepository) SaveStatus(ctx context.Context, st *registration.Status) error {
	err := r.s.q.QueryRow(ctx, `
		INSERT INTO registration_status (user_id, is_completed, completion_date, progress_notes, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			is_completed = registration_status.is_completed OR EXCLUDED.is_completed,
			completion_date = COALESCE(registration_status.completion_date, EXCLUDED.completion_date),
			progress_notes = EXCLUDED.progress_notes,
			last_updated = EXCLUDED.last_updated
		RETURNING is_completed, completion_date
	`, st.UserID, st.IsCompleted, st.CompletionDate, st.ProgressNotes, st.LastUpdated,
	).Scan(&st.IsCompleted, &st.CompletionDate)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// HasCompletedPayment reports whether a Completed payment exists.
func (r *RegistrationRepository) HasCompletedPayment(ctx context.Context, userID uuid.UUID) (bool, error) {
	return (&PaymentRepository{r.s}).HasCompleted(ctx, userID)
}

// Atomically runs fn in a transaction, joining the current one if any.
func (r *RegistrationRepository) Atomically(ctx context.Context, fn func(tx registration.Repository) error) error {
	return r.s.atomically(ctx, func(s scope) error {
		return fn(&RegistrationRepository{s})
	})
}

var _ registration.Repository = (*RegistrationRepository)(nil)
