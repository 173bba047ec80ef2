package course

import (
	"context"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// Repository stores catalog courses.
type Repository interface {
	// Create returns shared.ErrCourseNameTaken on a duplicate name.
	Create(ctx context.Context, c *Course) error

	// GetByID returns shared.ErrCourseNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Course, error)

	// GetByIDs returns the courses that exist, in no particular order.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Course, error)

	// Update returns shared.ErrCourseNameTaken on a duplicate name.
	Update(ctx context.Context, c *Course) error

	// List returns courses ordered by name.
	List(ctx context.Context, opts ListOptions) (shared.Page[*Course], error)
}

// ListOptions filters catalog listings.
type ListOptions struct {
	Pagination shared.Pagination
	ActiveOnly bool
}

// SelectionRepository stores one Selection per user.
type SelectionRepository interface {
	// Upsert replaces the user's courses and pricing. An existing row keeps
	// its payment status; sel.PaymentStatus is set to the stored value.
	Upsert(ctx context.Context, s *Selection) error

	// GetByUserID returns shared.ErrSelectionMissing if absent.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Selection, error)

	// SetPaymentStatus updates the payment status only.
	// Returns shared.ErrSelectionMissing if the user has no selection.
	SetPaymentStatus(ctx context.Context, userID uuid.UUID, status PaymentStatus) error
}
