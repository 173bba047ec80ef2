// Package memory is an in-process implementation of every repository and of
// the unit of work. It backs local runs without Postgres and the application
// tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/uow"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

type state struct {
	users      map[uuid.UUID]account.User
	progress   map[uuid.UUID]registration.Progress
	status     map[uuid.UUID]registration.Status
	personal   map[uuid.UUID]profile.PersonalInfo
	addresses  map[uuid.UUID]profile.Address
	education  map[uuid.UUID]profile.Education
	courses    map[uuid.UUID]course.Course
	selections map[uuid.UUID]course.Selection
	payments   []payment.Payment
	countries  map[uuid.UUID]geo.Country
	cities     map[uuid.UUID]geo.City
}

func newState() state {
	return state{
		users:      make(map[uuid.UUID]account.User),
		progress:   make(map[uuid.UUID]registration.Progress),
		status:     make(map[uuid.UUID]registration.Status),
		personal:   make(map[uuid.UUID]profile.PersonalInfo),
		addresses:  make(map[uuid.UUID]profile.Address),
		education:  make(map[uuid.UUID]profile.Education),
		courses:    make(map[uuid.UUID]course.Course),
		selections: make(map[uuid.UUID]course.Selection),
		countries:  make(map[uuid.UUID]geo.Country),
		cities:     make(map[uuid.UUID]geo.City),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s state) clone() state {
	return state{
		users:      cloneMap(s.users),
		progress:   cloneMap(s.progress),
		status:     cloneMap(s.status),
		personal:   cloneMap(s.personal),
		addresses:  cloneMap(s.addresses),
		education:  cloneMap(s.education),
		courses:    cloneMap(s.courses),
		selections: cloneMap(s.selections),
		payments:   append([]payment.Payment(nil), s.payments...),
		countries:  cloneMap(s.countries),
		cities:     cloneMap(s.cities),
	}
}

// Store holds all records. Transactions are serialized; a failed Do restores
// the state captured when it started.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// Do implements uow.UnitOfWork. The Repositories passed to fn are bound to
// the transaction; Atomically on them runs inline.
func (s *Store) Do(ctx context.Context, fn func(tx uow.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(view{s: s, tx: true}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Accounts implements uow.Repositories.
func (s *Store) Accounts() account.Repository { return view{s: s}.Accounts() }

// Registration implements uow.Repositories.
func (s *Store) Registration() registration.Repository { return view{s: s}.Registration() }

// Profiles implements uow.Repositories.
func (s *Store) Profiles() profile.Repository { return view{s: s}.Profiles() }

// Courses implements uow.Repositories.
func (s *Store) Courses() course.Repository { return view{s: s}.Courses() }

// Selections implements uow.Repositories.
func (s *Store) Selections() course.SelectionRepository { return view{s: s}.Selections() }

// Payments implements uow.Repositories.
func (s *Store) Payments() payment.Repository { return view{s: s}.Payments() }

// Geo implements uow.Repositories.
func (s *Store) Geo() geo.Repository { return view{s: s}.Geo() }

// view is the set of repositories either outside or inside a transaction.
type view struct {
	s  *Store
	tx bool
}

func (v view) Accounts() account.Repository           { return accountRepo{v.s} }
func (v view) Registration() registration.Repository  { return registrationRepo{v} }
func (v view) Profiles() profile.Repository           { return profileRepo{v.s} }
func (v view) Courses() course.Repository             { return courseRepo{v.s} }
func (v view) Selections() course.SelectionRepository { return selectionRepo{v.s} }
func (v view) Payments() payment.Repository           { return paymentRepo{v.s} }
func (v view) Geo() geo.Repository                    { return geoRepo{v.s} }

func paginate[T any](items []T, p shared.Pagination) shared.Page[T] {
	total := len(items)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit()
	if end > total {
		end = total
	}
	return shared.Page[T]{Items: items[start:end], TotalCount: total, Pagination: p}
}

func sortBy[T any](items []T, less func(a, b T) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}
