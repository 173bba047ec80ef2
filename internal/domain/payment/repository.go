package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// Repository stores payment attempts.
type Repository interface {
	// Record appends an attempt.
	// Returns shared.ErrDuplicateTransaction if TransactionID is already stored.
	Record(ctx context.Context, p *Payment) error

	// Latest returns the user's most recent attempt.
	// Returns an error matching shared.ErrNotFound if there is none.
	Latest(ctx context.Context, userID uuid.UUID) (*Payment, error)

	// HasCompleted reports whether the user has a Completed attempt.
	HasCompleted(ctx context.Context, userID uuid.UUID) (bool, error)

	// List returns attempts newest first.
	List(ctx context.Context, opts ListOptions) (shared.Page[*Payment], error)
}

// ListOptions filters payment listings.
type ListOptions struct {
	Pagination shared.Pagination
	UserID     *uuid.UUID
	Status     Status
	Since      time.Time
}
