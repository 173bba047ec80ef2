package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/uow"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

type accountRepo struct{ s *Store }

func (r accountRepo) Create(_ context.Context, user *account.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.data.users {
		if u.Email == user.Email {
			return shared.ErrEmailTaken
		}
	}
	r.s.data.users[user.ID] = *user
	return nil
}

func (r accountRepo) GetByID(_ context.Context, id uuid.UUID) (*account.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return &u, nil
}

func (r accountRepo) GetByEmail(_ context.Context, email shared.Email) (*account.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, shared.ErrUserNotFound
}

func (r accountRepo) Update(_ context.Context, user *account.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.users[user.ID]; !ok {
		return shared.ErrUserNotFound
	}
	for id, u := range r.s.data.users {
		if id != user.ID && u.Email == user.Email {
			return shared.ErrEmailTaken
		}
	}
	r.s.data.users[user.ID] = *user
	return nil
}

func (r accountRepo) ExistsByEmail(_ context.Context, email shared.Email) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.data.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r accountRepo) List(_ context.Context, opts account.ListOptions) (shared.Page[*account.User], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]*account.User, 0, len(r.s.data.users))
	for _, u := range r.s.data.users {
		if u.IsDeleted() && !opts.IncludeDeleted {
			continue
		}
		u := u
		users = append(users, &u)
	}
	sortBy(users, func(a, b *account.User) bool { return a.CreatedAt.After(b.CreatedAt) })
	return paginate(users, opts.Pagination), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

type registrationRepo struct{ v view }

func (r registrationRepo) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()

	u, ok := r.v.s.data.users[userID]
	return ok && !u.IsDeleted(), nil
}

func (r registrationRepo) GetProgress(_ context.Context, userID uuid.UUID) (*registration.Progress, error) {
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()

	p, ok := r.v.s.data.progress[userID]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return &p, nil
}

// GetProgressForUpdate needs no row lock: transactions are already serialized.
func (r registrationRepo) GetProgressForUpdate(ctx context.Context, userID uuid.UUID) (*registration.Progress, error) {
	return r.GetProgress(ctx, userID)
}

func (r registrationRepo) SaveProgress(_ context.Context, p *registration.Progress) error {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()

	r.v.s.data.progress[p.UserID] = *p
	return nil
}

func (r registrationRepo) GetStatus(_ context.Context, userID uuid.UUID) (*registration.Status, error) {
	r.v.s.mu.RLock()
	defer r.v.s.mu.RUnlock()

	st, ok := r.v.s.data.status[userID]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return &st, nil
}

func (r registrationRepo) SaveStatus(_ context.Context, st *registration.Status) error {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()

	stored := *st
	if prev, ok := r.v.s.data.status[st.UserID]; ok && prev.CompletionDate != nil {
		stored.CompletionDate = prev.CompletionDate
	}
	r.v.s.data.status[st.UserID] = stored
	return nil
}

func (r registrationRepo) HasCompletedPayment(ctx context.Context, userID uuid.UUID) (bool, error) {
	return paymentRepo{r.v.s}.HasCompleted(ctx, userID)
}

func (r registrationRepo) Atomically(ctx context.Context, fn func(tx registration.Repository) error) error {
	if r.v.tx {
		return fn(r)
	}
	return r.v.s.Do(ctx, func(tx uow.Repositories) error {
		return fn(tx.Registration())
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILES
// ══════════════════════════════════════════════════════════════════════════════

type profileRepo struct{ s *Store }

func (r profileRepo) UpsertPersonalInfo(_ context.Context, info *profile.PersonalInfo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.personal[info.UserID] = *info
	return nil
}

func (r profileRepo) GetPersonalInfo(_ context.Context, userID uuid.UUID) (*profile.PersonalInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	info, ok := r.s.data.personal[userID]
	if !ok {
		return nil, shared.NewDomainError("profile", "GetPersonalInfo", shared.ErrNotFound, "personal information not submitted")
	}
	return &info, nil
}

func (r profileRepo) UpsertAddress(_ context.Context, addr *profile.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.addresses[addr.UserID] = *addr
	return nil
}

func (r profileRepo) GetAddress(_ context.Context, userID uuid.UUID) (*profile.Address, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	addr, ok := r.s.data.addresses[userID]
	if !ok {
		return nil, shared.NewDomainError("profile", "GetAddress", shared.ErrNotFound, "address not submitted")
	}
	return &addr, nil
}

func (r profileRepo) UpsertEducation(_ context.Context, edu *profile.Education) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.education[edu.UserID] = *edu
	return nil
}

func (r profileRepo) GetEducation(_ context.Context, userID uuid.UUID) (*profile.Education, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	edu, ok := r.s.data.education[userID]
	if !ok {
		return nil, shared.NewDomainError("profile", "GetEducation", shared.ErrNotFound, "education not submitted")
	}
	return &edu, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSES
// ══════════════════════════════════════════════════════════════════════════════

type courseRepo struct{ s *Store }

func (r courseRepo) nameTaken(c *course.Course) bool {
	for id, other := range r.s.data.courses {
		if id != c.ID && other.Name == c.Name {
			return true
		}
	}
	return false
}

func (r courseRepo) Create(_ context.Context, c *course.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.nameTaken(c) {
		return shared.ErrCourseNameTaken
	}
	r.s.data.courses[c.ID] = *c
	return nil
}

func (r courseRepo) GetByID(_ context.Context, id uuid.UUID) (*course.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.data.courses[id]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return &c, nil
}

func (r courseRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]course.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]course.Course, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c, ok := r.s.data.courses[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r courseRepo) Update(_ context.Context, c *course.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.courses[c.ID]; !ok {
		return shared.ErrCourseNotFound
	}
	if r.nameTaken(c) {
		return shared.ErrCourseNameTaken
	}
	r.s.data.courses[c.ID] = *c
	return nil
}

func (r courseRepo) List(_ context.Context, opts course.ListOptions) (shared.Page[*course.Course], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	courses := make([]*course.Course, 0, len(r.s.data.courses))
	for _, c := range r.s.data.courses {
		if opts.ActiveOnly && !c.IsActive {
			continue
		}
		c := c
		courses = append(courses, &c)
	}
	sortBy(courses, func(a, b *course.Course) bool { return a.Name < b.Name })
	return paginate(courses, opts.Pagination), nil
}

type selectionRepo struct{ s *Store }

func (r selectionRepo) Upsert(_ context.Context, sel *course.Selection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if prev, ok := r.s.data.selections[sel.UserID]; ok {
		sel.PaymentStatus = prev.PaymentStatus
	}
	stored := *sel
	stored.CourseIDs = append([]uuid.UUID(nil), sel.CourseIDs...)
	r.s.data.selections[sel.UserID] = stored
	return nil
}

func (r selectionRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*course.Selection, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sel, ok := r.s.data.selections[userID]
	if !ok {
		return nil, shared.ErrSelectionMissing
	}
	sel.CourseIDs = append([]uuid.UUID(nil), sel.CourseIDs...)
	return &sel, nil
}

func (r selectionRepo) SetPaymentStatus(_ context.Context, userID uuid.UUID, status course.PaymentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sel, ok := r.s.data.selections[userID]
	if !ok {
		return shared.ErrSelectionMissing
	}
	sel.PaymentStatus = status
	r.s.data.selections[userID] = sel
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

type paymentRepo struct{ s *Store }

func (r paymentRepo) Record(_ context.Context, p *payment.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p.TransactionID != "" {
		for _, existing := range r.s.data.payments {
			if existing.TransactionID == p.TransactionID {
				return shared.ErrDuplicateTransaction
			}
		}
	}
	r.s.data.payments = append(r.s.data.payments, *p)
	return nil
}

func (r paymentRepo) Latest(_ context.Context, userID uuid.UUID) (*payment.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *payment.Payment
	for i := range r.s.data.payments {
		p := r.s.data.payments[i]
		if p.UserID != userID {
			continue
		}
		if latest == nil || !p.PaymentDate.Before(latest.PaymentDate) {
			latest = &p
		}
	}
	if latest == nil {
		return nil, shared.NewDomainError("payment", "Latest", shared.ErrNotFound, "no payment attempts")
	}
	return latest, nil
}

func (r paymentRepo) HasCompleted(_ context.Context, userID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.data.payments {
		if p.UserID == userID && p.Status == payment.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r paymentRepo) List(_ context.Context, opts payment.ListOptions) (shared.Page[*payment.Payment], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*payment.Payment, 0)
	for i := range r.s.data.payments {
		p := r.s.data.payments[i]
		if opts.UserID != nil && p.UserID != *opts.UserID {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		if !opts.Since.IsZero() && p.PaymentDate.Before(opts.Since) {
			continue
		}
		out = append(out, &p)
	}
	sortBy(out, func(a, b *payment.Payment) bool { return a.PaymentDate.After(b.PaymentDate) })
	return paginate(out, opts.Pagination), nil
}
