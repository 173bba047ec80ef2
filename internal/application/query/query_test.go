package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/course"
	"github.com/campus-enroll/registration-hub/internal/domain/geo"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/profile"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/persistence/memory"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type mapCache struct {
	progress map[uuid.UUID]*ProgressDTO
	status   map[uuid.UUID]*StatusDTO
	failRead bool
}

func newMapCache() *mapCache {
	return &mapCache{progress: map[uuid.UUID]*ProgressDTO{}, status: map[uuid.UUID]*StatusDTO{}}
}

func (c *mapCache) GetProgress(_ context.Context, id uuid.UUID) (*ProgressDTO, error) {
	if c.failRead {
		return nil, errors.New("cache down")
	}
	return c.progress[id], nil
}

func (c *mapCache) SetProgress(_ context.Context, dto *ProgressDTO) error {
	c.progress[dto.UserID] = dto
	return nil
}

func (c *mapCache) GetStatus(_ context.Context, id uuid.UUID) (*StatusDTO, error) {
	if c.failRead {
		return nil, errors.New("cache down")
	}
	return c.status[id], nil
}

func (c *mapCache) SetStatus(_ context.Context, dto *StatusDTO) error {
	c.status[dto.UserID] = dto
	return nil
}

func seedUser(t *testing.T, store *memory.Store, step registration.Step) *account.User {
	t.Helper()
	ctx := context.Background()

	user := account.NewUser(account.NewUserParams{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe", Now: now})
	require.NoError(t, store.Accounts().Create(ctx, user))

	m := registration.NewMachine(store.Registration(), registration.WithClock(timeutil.FixedClock(now)))
	_, err := m.Initialize(ctx, user.ID)
	require.NoError(t, err)
	if step > registration.StepAccount {
		_, err = m.AdvanceTo(ctx, user.ID, step, nil)
		require.NoError(t, err)
	}
	return user
}

func TestRegistrationQueries_ProgressReadsThrough(t *testing.T) {
	store := memory.NewStore()
	user := seedUser(t, store, registration.StepAddress)
	cache := newMapCache()
	q := NewRegistrationQueries(store.Accounts(), store.Registration(), cache, nil)

	dto, err := q.Progress(context.Background(), "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, dto.CurrentStep)
	assert.Equal(t, "address", dto.StepName)
	assert.Equal(t, 37.5, dto.ProgressPercentage)
	assert.Same(t, dto, cache.progress[user.ID])

	cache.progress[user.ID] = &ProgressDTO{UserID: user.ID, CurrentStep: 5}
	dto, err = q.Progress(context.Background(), user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 5, dto.CurrentStep)
}

func TestRegistrationQueries_CacheFailureFallsBack(t *testing.T) {
	store := memory.NewStore()
	seedUser(t, store, registration.StepAccount)
	cache := newMapCache()
	cache.failRead = true
	q := NewRegistrationQueries(store.Accounts(), store.Registration(), cache, nil)

	st, err := q.Status(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.False(t, st.IsCompleted)
	assert.Nil(t, st.CompletionDate)
}

func TestRegistrationQueries_UnknownUser(t *testing.T) {
	q := NewRegistrationQueries(memory.NewStore().Accounts(), memory.NewStore().Registration(), nil, nil)

	_, err := q.Progress(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = q.Progress(context.Background(), "not a reference")
	assert.True(t, shared.IsValidation(err))
}

func TestSummaryQuery(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	user := seedUser(t, store, registration.StepReview)

	us := &geo.Country{Code: "US", Name: "United States", IsActive: true}
	require.NoError(t, store.Geo().UpsertCountry(ctx, us))
	city, _, err := store.Geo().GetOrCreateCity(ctx, us.ID, "Springfield")
	require.NoError(t, err)

	require.NoError(t, store.Profiles().UpsertPersonalInfo(ctx, &profile.PersonalInfo{
		UserID: user.ID, DateOfBirth: time.Date(1995, 6, 15, 0, 0, 0, 0, time.UTC),
		Gender: profile.GenderFemale, PhoneNumber: "+15551234567", NationalityID: us.ID,
	}))
	require.NoError(t, store.Profiles().UpsertAddress(ctx, &profile.Address{
		UserID: user.ID, StreetAddress: "1 Main St", CityID: city.ID, CountryID: us.ID, PostalCode: "12345",
	}))

	c, err := course.NewCourse(course.Params{Name: "Go", Fee: 20000, IsActive: true}, now)
	require.NoError(t, err)
	require.NoError(t, store.Courses().Create(ctx, c))
	require.NoError(t, store.Selections().Upsert(ctx, course.NewSelection(user.ID, []course.Course{*c}, 6, now)))

	sum, err := NewSummaryQuery(SummaryReader{
		Accounts:     store.Accounts(),
		Registration: store.Registration(),
		Profiles:     store.Profiles(),
		Courses:      store.Courses(),
		Selections:   store.Selections(),
		Payments:     store.Payments(),
		Geo:          store.Geo(),
	}).Handle(ctx, "jane@example.com")
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", sum.User.Email)
	require.NotNil(t, sum.Progress)
	assert.Equal(t, 6, sum.Progress.CurrentStep)

	require.NotNil(t, sum.Personal)
	assert.Equal(t, "1995-06-15", sum.Personal.DateOfBirth)
	assert.Equal(t, "United States", sum.Personal.Nationality)

	require.NotNil(t, sum.Address)
	assert.Equal(t, "Springfield", sum.Address.City)
	assert.Equal(t, "United States", sum.Address.Country)

	assert.Nil(t, sum.Education)
	assert.Nil(t, sum.Payment)

	require.NotNil(t, sum.Selection)
	require.Len(t, sum.Selection.Courses, 1)
	assert.Equal(t, 200.0, sum.Selection.TotalFee)
	assert.Equal(t, "Pending", sum.Selection.PaymentStatus)
}

func TestCatalogQueries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	q := NewCatalogQueries(store.Accounts(), store.Courses(), store.Geo())

	for _, p := range []course.Params{
		{Name: "Rust", Fee: 30000, DiscountPercentage: 50, IsActive: true},
		{Name: "Archived", Fee: 1000},
		{Name: "Go", Fee: 20000, IsActive: true},
	} {
		c, err := course.NewCourse(p, now)
		require.NoError(t, err)
		require.NoError(t, store.Courses().Create(ctx, c))
	}

	t.Run("active courses", func(t *testing.T) {
		page, err := q.Courses(ctx, true, shared.DefaultPagination())
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "Go", page.Items[0].Name)
		assert.Equal(t, 150.0, page.Items[1].DiscountedFee)
		assert.False(t, page.HasMore)
	})

	t.Run("all courses", func(t *testing.T) {
		page, err := q.Courses(ctx, false, shared.NewPagination(1, 2))
		require.NoError(t, err)
		assert.Equal(t, 3, page.TotalCount)
		assert.True(t, page.HasMore)
	})

	t.Run("email availability", func(t *testing.T) {
		seedUser(t, store, registration.StepAccount)

		ok, err := q.EmailAvailable(ctx, "Jane@Example.com")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = q.EmailAvailable(ctx, "john@example.com")
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = q.EmailAvailable(ctx, "nope")
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("cities", func(t *testing.T) {
		kz := &geo.Country{Code: "KZ", Name: "Kazakhstan", IsActive: true}
		require.NoError(t, store.Geo().UpsertCountry(ctx, kz))
		_, _, err := store.Geo().GetOrCreateCity(ctx, kz.ID, "Almaty")
		require.NoError(t, err)

		cities, err := q.Cities(ctx, "kz")
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, "Almaty", cities[0].Name)

		_, err = q.Cities(ctx, "ZZ")
		assert.ErrorIs(t, err, shared.ErrCountryNotFound)

		_, err = q.Cities(ctx, "kaz")
		assert.True(t, shared.IsValidation(err))
	})
}

func TestAdminQueries_Payments(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	user := seedUser(t, store, registration.StepReview)

	require.NoError(t, store.Payments().Record(ctx, payment.NewFailed(user.ID, payment.MethodStripe, 1000, "card_declined", nil, now)))
	require.NoError(t, store.Payments().Record(ctx, payment.NewCompleted(user.ID, payment.MethodStripe, 1000,
		payment.Outcome{Success: true, TransactionID: "pi_1"}, now.Add(time.Minute))))

	q := NewAdminQueries(store.Accounts(), store.Payments())
	page, err := q.Payments(ctx, payment.ListOptions{Pagination: shared.DefaultPagination(), Status: payment.StatusFailed})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "card_declined", page.Items[0].FailureReason)

	users, err := q.Users(ctx, account.DefaultListOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, users.TotalCount)
}
