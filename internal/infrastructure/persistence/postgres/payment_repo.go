package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// PaymentRepository implements payment.Repository. Rows are append-only.
type PaymentRepository struct {
	s scope
}

const paymentColumns = `id, user_id, method, amount_cents, transaction_id, status, failure_reason, gateway_response, payment_date`

// Record inserts one attempt. An empty TransactionID is stored as NULL so
// failed attempts never collide on the unique constraint.
func (r *PaymentRepository) Record(ctx context.Context, p *payment.Payment) error {
	var txID *string
	if p.TransactionID != "" {
		txID = &p.TransactionID
	}
	var raw []byte
	if len(p.GatewayResponse) > 0 {
		raw = p.GatewayResponse
	}

	_, err := r.s.q.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.UserID, string(p.Method), p.Amount.Cents(), txID, string(p.Status), p.FailureReason, raw, p.PaymentDate)
	if err != nil {
		switch {
		case IsUniqueViolation(err) && constraintOf(err) == "payments_transaction_id_key":
			return shared.ErrDuplicateTransaction
		case IsForeignKeyViolation(err):
			return shared.ErrUserNotFound
		}
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

// Latest returns the newest attempt for a user.
func (r *PaymentRepository) Latest(ctx context.Context, userID uuid.UUID) (*payment.Payment, error) {
	p, err := scanPayment(r.s.q.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE user_id = $1
		ORDER BY payment_date DESC, id
		LIMIT 1
	`, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("payment", "Latest", shared.ErrNotFound, "no payment attempts")
		}
		return nil, err
	}
	return p, nil
}

// HasCompleted reports whether a Completed attempt exists.
func (r *PaymentRepository) HasCompleted(ctx context.Context, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payments WHERE user_id = $1 AND status = $2)`,
		userID, string(payment.StatusCompleted),
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check payments: %w", err)
	}
	return ok, nil
}

// List returns attempts newest first.
func (r *PaymentRepository) List(ctx context.Context, opts payment.ListOptions) (shared.Page[*payment.Payment], error) {
	var (
		conds []string
		args  []any
	)
	if opts.UserID != nil {
		args = append(args, *opts.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !opts.Since.IsZero() {
		args = append(args, opts.Since)
		conds = append(conds, fmt.Sprintf("payment_date >= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	page := shared.Page[*payment.Payment]{Pagination: opts.Pagination}
	if err := r.s.q.QueryRow(ctx, `SELECT COUNT(*) FROM payments `+where, args...).Scan(&page.TotalCount); err != nil {
		return page, fmt.Errorf("failed to count payments: %w", err)
	}

	n := len(args)
	args = append(args, opts.Pagination.Limit(), opts.Pagination.Offset())
	rows, err := r.s.q.Query(ctx, fmt.Sprintf(
		`SELECT `+paymentColumns+` FROM payments %s ORDER BY payment_date DESC, id LIMIT $%d OFFSET $%d`,
		where, n+1, n+2,
	), args...)
	if err != nil {
		return page, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, p)
	}
	return page, rows.Err()
}

// scanPayment leaves pgx.ErrNoRows unwrapped for the caller.
func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var (
		p              payment.Payment
		method, status string
		amount         int64
		txID           *string
		raw            []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &method, &amount, &txID, &status, &p.FailureReason, &raw, &p.PaymentDate)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	p.Amount = shared.Money(amount)
	if txID != nil {
		p.TransactionID = *txID
	}
	if len(raw) > 0 {
		p.GatewayResponse = raw
	}
	return &p, nil
}

var _ payment.Repository = (*PaymentRepository)(nil)
