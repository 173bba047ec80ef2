package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository implements account.Repository for PostgreSQL.
type AccountRepository struct {
	s scope
}

const userColumns = `
	id, email, first_name, last_name, password_hash, is_active, email_verified,
	is_staff, status, date_joined, created_at, updated_at, deleted_at`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new user.
func (r *AccountRepository) Create(ctx context.Context, u *account.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.s.q.Exec(ctx, query,
		u.ID,
		u.Email.String(),
		u.FirstName,
		u.LastName,
		u.PasswordHash,
		u.IsActive,
		u.EmailVerified,
		u.IsStaff,
		string(u.Status),
		u.DateJoined,
		u.CreatedAt,
		u.UpdatedAt,
		u.DeletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by id.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.User, error) {
	row := r.s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns a user by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email shared.Email) (*account.User, error) {
	row := r.s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, email.String())
	return scanUser(row)
}

// Update persists mutable fields.
func (r *AccountRepository) Update(ctx context.Context, u *account.User) error {
	query := `
		UPDATE users SET
			email = $1,
			first_name = $2,
			last_name = $3,
			password_hash = $4,
			is_active = $5,
			email_verified = $6,
			is_staff = $7,
			status = $8,
			date_joined = $9,
			updated_at = $10,
			deleted_at = $11
		WHERE id = $12
	`
	tag, err := r.s.q.Exec(ctx, query,
		u.Email.String(),
		u.FirstName,
		u.LastName,
		u.PasswordHash,
		u.IsActive,
		u.EmailVerified,
		u.IsStaff,
		string(u.Status),
		u.DateJoined,
		u.UpdatedAt,
		u.DeletedAt,
		u.ID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrEmailTaken
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// ExistsByEmail checks the registered emails, deleted users included.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email shared.Email) (bool, error) {
	var exists bool
	err := r.s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = $1)`, email.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// List returns users newest first.
func (r *AccountRepository) List(ctx context.Context, opts account.ListOptions) (shared.Page[*account.User], error) {
	where := `WHERE deleted_at IS NULL`
	if opts.IncludeDeleted {
		where = ``
	}

	page := shared.Page[*account.User]{Pagination: opts.Pagination}
	if err := r.s.q.QueryRow(ctx, `SELECT COUNT(*) FROM users `+where).Scan(&page.TotalCount); err != nil {
		return page, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.s.q.Query(ctx,
		`SELECT `+userColumns+` FROM users `+where+` ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		opts.Pagination.Limit(), opts.Pagination.Offset(),
	)
	if err != nil {
		return page, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, u)
	}
	return page, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper Functions
// ─────────────────────────────────────────────────────────────────────────────

func scanUser(row pgx.Row) (*account.User, error) {
	var (
		u      account.User
		email  string
		status string
	)
	err := row.Scan(
		&u.ID,
		&email,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.IsActive,
		&u.EmailVerified,
		&u.IsStaff,
		&status,
		&u.DateJoined,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.DeletedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Email = shared.Email(email)
	u.Status = account.Status(status)
	return &u, nil
}
