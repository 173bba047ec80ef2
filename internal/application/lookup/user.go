// Package lookup resolves the user references accepted by the public API.
package lookup

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// UserResolver turns a user_ref (email address or UUID) into a live user.
type UserResolver struct {
	accounts account.Repository
}

// NewUserResolver creates a resolver over accounts.
func NewUserResolver(accounts account.Repository) *UserResolver {
	return &UserResolver{accounts: accounts}
}

// Resolve returns the user for ref. Soft-deleted users resolve to
// shared.ErrUserDeleted.
func (r *UserResolver) Resolve(ctx context.Context, ref string) (*account.User, error) {
	return Resolve(ctx, r.accounts, ref)
}

// Resolve is UserResolver.Resolve over an explicit repository, used inside
// transactions.
func Resolve(ctx context.Context, accounts account.Repository, ref string) (*account.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, shared.FieldError("user", "user reference is required")
	}

	var (
		user *account.User
		err  error
	)
	if shared.LooksLikeEmail(ref) {
		user, err = accounts.GetByEmail(ctx, shared.NormalizeEmail(ref))
	} else {
		id, parseErr := uuid.Parse(ref)
		if parseErr != nil {
			return nil, shared.FieldError("user", "must be an email address or a user id")
		}
		user, err = accounts.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, shared.ErrUserDeleted
	}
	return user, nil
}
