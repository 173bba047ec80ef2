package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSES
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements course.Repository.
type CourseRepository struct {
	s scope
}

const courseColumns = `id, name, description, fee_cents, duration, discount_percentage, is_active, created_at, updated_at`

func (r *CourseRepository) Create(ctx context.Context, c *course.Course) error {
	_, err := r.s.q.Exec(ctx, `
		INSERT INTO courses (`+courseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Name, c.Description, c.Fee.Cents(), c.Duration, c.DiscountPercentage, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrCourseNameTaken
		}
		return fmt.Errorf("failed to create course: %w", err)
	}
	return nil
}

func (r *CourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*course.Course, error) {
	return scanCourse(r.s.q.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
}

func (r *CourseRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]course.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.s.q.Query(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get courses: %w", err)
	}
	defer rows.Close()

	var out []course.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CourseRepository) Update(ctx context.Context, c *course.Course) error {
	tag, err := r.s.q.Exec(ctx, `
		UPDATE courses SET
			name = $1,
			description = $2,
			fee_cents = $3,
			duration = $4,
			discount_percentage = $5,
			is_active = $6,
			updated_at = $7
		WHERE id = $8
	`, c.Name, c.Description, c.Fee.Cents(), c.Duration, c.DiscountPercentage, c.IsActive, c.UpdatedAt, c.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrCourseNameTaken
		}
		return fmt.Errorf("failed to update course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrCourseNotFound
	}
	return nil
}

func (r *CourseRepository) List(ctx context.Context, opts course.ListOptions) (shared.Page[*course.Course], error) {
	where := ``
	if opts.ActiveOnly {
		where = `WHERE is_active`
	}

	page := shared.Page[*course.Course]{Pagination: opts.Pagination}
	if err := r.s.q.QueryRow(ctx, `SELECT COUNT(*) FROM courses `+where).Scan(&page.TotalCount); err != nil {
		return page, fmt.Errorf("failed to count courses: %w", err)
	}

	rows, err := r.s.q.Query(ctx,
		`SELECT `+courseColumns+` FROM courses `+where+` ORDER BY name LIMIT $1 OFFSET $2`,
		opts.Pagination.Limit(), opts.Pagination.Offset(),
	)
	if err != nil {
		return page, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, c)
	}
	return page, rows.Err()
}

func scanCourse(row pgx.Row) (*course.Course, error) {
	var (
		c   course.Course
		fee int64
		pct int16
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &fee, &c.Duration, &pct, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to scan course: %w", err)
	}
	c.Fee = shared.Money(fee)
	c.DiscountPercentage = int(pct)
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SELECTIONS
// ══════════════════════════════════════════════════════════════════════════════

// SelectionRepository implements course.SelectionRepository.
type SelectionRepository struct {
	s scope
}

func (r *SelectionRepository) Upsert(ctx context.Context, sel *course.Selection) error {
	var status string
	err := r.s.q.QueryRow(ctx, `
		INSERT INTO course_selections (
			user_id, course_ids, study_duration, subtotal_cents, discount_percentage,
			discount_cents, total_cents, payment_status, updated_at
		) VALUES ($1, $2::uuid[], $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			course_ids = EXCLUDED.course_ids,
			study_duration = EXCLUDED.study_duration,
			subtotal_cents = EXCLUDED.subtotal_cents,
			discount_percentage = EXCLUDED.discount_percentage,
			discount_cents = EXCLUDED.discount_cents,
			total_cents = EXCLUDED.total_cents,
			updated_at = EXCLUDED.updated_at
		RETURNING payment_status
	`, sel.UserID, uuidStrings(sel.CourseIDs), sel.StudyDuration,
		sel.Price.Subtotal.Cents(), sel.Price.DiscountPercentage, sel.Price.Discount.Cents(), sel.Price.Total.Cents(),
		string(sel.PaymentStatus), sel.UpdatedAt).Scan(&status)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to save course selection: %w", err)
	}
	sel.PaymentStatus = course.PaymentStatus(status)
	return nil
}

func (r *SelectionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*course.Selection, error) {
	var (
		sel                       course.Selection
		ids                       []string
		subtotal, discount, total int64
		pct                       int16
		status                    string
	)
	err := r.s.q.QueryRow(ctx, `
		SELECT user_id, course_ids::text[], study_duration, subtotal_cents, discount_percentage,
		       discount_cents, total_cents, payment_status, updated_at
		FROM course_selections WHERE user_id = $1
	`, userID).Scan(&sel.UserID, &ids, &sel.StudyDuration, &subtotal, &pct, &discount, &total, &status, &sel.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSelectionMissing
		}
		return nil, fmt.Errorf("failed to get course selection: %w", err)
	}

	sel.CourseIDs, err = parseUUIDs(ids)
	if err != nil {
		return nil, err
	}
	sel.Price = course.PriceBreakdown{
		Subtotal:           shared.Money(subtotal),
		DiscountPercentage: int(pct),
		Discount:           shared.Money(discount),
		Total:              shared.Money(total),
	}
	sel.PaymentStatus = course.PaymentStatus(status)
	return &sel, nil
}

func (r *SelectionRepository) SetPaymentStatus(ctx context.Context, userID uuid.UUID, status course.PaymentStatus) error {
	tag, err := r.s.q.Exec(ctx,
		`UPDATE course_selections SET payment_status = $1, updated_at = NOW() WHERE user_id = $2`,
		string(status), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSelectionMissing
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper Functions
// ─────────────────────────────────────────────────────────────────────────────

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse course id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

var (
	_ course.Repository          = (*CourseRepository)(nil)
	_ course.SelectionRepository = (*SelectionRepository)(nil)
)
