package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores users.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create inserts a new user.
	// Returns shared.ErrEmailTaken if the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID returns a user by id, including soft-deleted ones.
	// Returns shared.ErrUserNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByEmail looks a user up case-insensitively.
	// Returns shared.ErrUserNotFound if absent.
	GetByEmail(ctx context.Context, email shared.Email) (*User, error)

	// Update persists mutable fields.
	Update(ctx context.Context, user *User) error

	// ─────────────────────────────────────────────────────────────────────────
	// Queries
	// ─────────────────────────────────────────────────────────────────────────

	// ExistsByEmail is the uniqueness check used by the account step.
	ExistsByEmail(ctx context.Context, email shared.Email) (bool, error)

	// List returns users ordered by creation time, newest first.
	List(ctx context.Context, opts ListOptions) (shared.Page[*User], error)
}

// ListOptions filters user listings.
type ListOptions struct {
	Pagination     shared.Pagination
	IncludeDeleted bool
}

// DefaultListOptions returns default listing options.
func DefaultListOptions() ListOptions {
	return ListOptions{Pagination: shared.DefaultPagination()}
}
