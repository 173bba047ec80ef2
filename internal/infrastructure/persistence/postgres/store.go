package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/campus-enroll/registration-hub/internal/application/uow"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Store hands out repositories bound either to the pool or to one
// transaction.
type Store struct {
	conn *Connection
}

// NewStore creates a Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Do implements uow.UnitOfWork.
func (s *Store) Do(ctx context.Context, fn func(tx uow.Repositories) error) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(scope{conn: s.conn, q: tx, inTx: true})
	})
}

func (s *Store) pool() scope { return scope{conn: s.conn, q: s.conn.Pool()} }

func (s *Store) Accounts() account.Repository           { return s.pool().Accounts() }
func (s *Store) Registration() registration.Repository  { return s.pool().Registration() }
func (s *Store) Profiles() profile.Repository           { return s.pool().Profiles() }
func (s *Store) Courses() course.Repository             { return s.pool().Courses() }
func (s *Store) Selections() course.SelectionRepository { return s.pool().Selections() }
func (s *Store) Payments() payment.Repository           { return s.pool().Payments() }
func (s *Store) Geo() geo.Repository                    { return s.pool().Geo() }

// scope is what every repository carries: where to send queries and whether
// that is already a transaction.
type scope struct {
	conn *Connection
	q    Querier
	inTx bool
}

func (s scope) Accounts() account.Repository           { return &AccountRepository{s} }
func (s scope) Registration() registration.Repository  { return &RegistrationRepository{s} }
func (s scope) Profiles() profile.Repository           { return &ProfileRepository{s} }
func (s scope) Courses() course.Repository             { return &CourseRepository{s} }
func (s scope) Selections() course.SelectionRepository { return &SelectionRepository{s} }
func (s scope) Payments() payment.Repository           { return &PaymentRepository{s} }
func (s scope) Geo() geo.Repository                    { return &GeoRepository{s} }

// atomically runs fn on a transaction-bound scope, joining the current
// transaction when there is one.
func (s scope) atomically(ctx context.Context, fn func(scope) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(scope{conn: s.conn, q: tx, inTx: true})
	})
}

var (
	_ uow.UnitOfWork   = (*Store)(nil)
	_ uow.Repositories = (*Store)(nil)
)
