// Package account holds the user identity created by the first registration
// step and later mutated by email verification and admin actions.
package account

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of a user record. Users are never hard-deleted.
type Status string

const (
	// StatusActive - the record is live.
	StatusActive Status = "active"
	// StatusDeleted - soft-deleted by an admin.
	StatusDeleted Status = "deleted"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusDeleted
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER
// ══════════════════════════════════════════════════════════════════════════════

// User is the registrant's identity.
type User struct {
	// ID - internal identifier.
	ID uuid.UUID

	// Email - unique, stored normalized.
	Email shared.Email

	FirstName string
	LastName  string

	// PasswordHash - bcrypt hash, never the raw password.
	PasswordHash string

	// IsActive - flipped to true by email verification or by an admin.
	IsActive bool

	// EmailVerified - the user confirmed ownership of Email.
	EmailVerified bool

	// IsStaff - back-office user.
	IsStaff bool

	Status Status

	// DateJoined - reset to the verification time on activation.
	DateJoined time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// DeletedAt - set once on soft delete.
	DeletedAt *time.Time
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsDeleted reports whether the user was soft-deleted.
func (u *User) IsDeleted() bool {
	return u.Status == StatusDeleted
}

// MarkVerified activates the account after a successful email check.
func (u *User) MarkVerified(now time.Time) error {
	if u.EmailVerified {
		return shared.ErrAlreadyVerified
	}
	u.IsActive = true
	u.EmailVerified = true
	u.DateJoined = now
	u.UpdatedAt = now
	return nil
}

// SoftDelete marks the record deleted and deactivates it.
func (u *User) SoftDelete(now time.Time) {
	if u.IsDeleted() {
		return
	}
	u.Status = StatusDeleted
	u.IsActive = false
	u.DeletedAt = &now
	u.UpdatedAt = now
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY
// ══════════════════════════════════════════════════════════════════════════════

// NewUserParams contains parameters for creating a user. Inputs are expected
// to be validated already; NewUser only normalizes.
type NewUserParams struct {
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	Now          time.Time
}

// NewUser creates an inactive, unverified user unless IsActive is requested
// (admin-created users).
func NewUser(params NewUserParams) *User {
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &User{
		ID:            uuid.New(),
		Email:         shared.NormalizeEmail(params.Email),
		FirstName:     strings.TrimSpace(params.FirstName),
		LastName:      strings.TrimSpace(params.LastName),
		PasswordHash:  params.PasswordHash,
		IsActive:      params.IsActive,
		EmailVerified: false,
		IsStaff:       params.IsStaff,
		Status:        StatusActive,
		DateJoined:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
