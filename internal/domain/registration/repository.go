package registration

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists Progress and Status. Implementations upsert by user id
// so concurrent writers for the same user resolve to last-writer-wins.
type Repository interface {
	// UserExists reports whether a non-deleted user with id exists.
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)

	// GetProgress returns shared.ErrProgressNotFound if the user has none.
	GetProgress(ctx context.Context, userID uuid.UUID) (*Progress, error)

	// GetProgressForUpdate is GetProgress with the row locked until the
	// surrounding transaction ends. Outside a transaction it behaves like
	// GetProgress.
	GetProgressForUpdate(ctx context.Context, userID uuid.UUID) (*Progress, error)

	// SaveProgress upserts the progress row.
	SaveProgress(ctx context.Context, p *Progress) error

	// GetStatus returns shared.ErrProgressNotFound if the user has none.
	GetStatus(ctx context.Context, userID uuid.UUID) (*Status, error)

	// SaveStatus upserts the status row. An already stored CompletionDate
	// is kept.
	SaveStatus(ctx context.Context, s *Status) error

	// HasCompletedPayment reports whether a Completed payment exists.
	HasCompletedPayment(ctx context.Context, userID uuid.UUID) (bool, error)

	// Atomically runs fn inside one transaction. The Repository passed to fn
	// is bound to it; nested calls reuse the outer transaction.
	Atomically(ctx context.Context, fn func(tx Repository) error) error
}
