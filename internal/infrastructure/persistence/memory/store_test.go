package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-enroll/registration-hub/internal/application/uow"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

func TestStore_DoRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	user := account.NewUser(account.NewUserParams{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"})

	boom := errors.New("boom")
	err := store.Do(ctx, func(tx uow.Repositories) error {
		require.NoError(t, tx.Accounts().Create(ctx, user))
		require.NoError(t, tx.Registration().SaveProgress(ctx, registration.NewProgress(user.ID, time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Accounts().GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	_, err = store.Registration().GetProgress(ctx, user.ID)
	assert.ErrorIs(t, err, shared.ErrProgressNotFound)
}

func TestStore_NestedAtomicallyJoins(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	userID := uuid.New()

	err := store.Do(ctx, func(tx uow.Repositories) error {
		return tx.Registration().Atomically(ctx, func(inner registration.Repository) error {
			return inner.SaveProgress(ctx, registration.NewProgress(userID, time.Now()))
		})
	})
	require.NoError(t, err)

	p, err := store.Registration().GetProgress(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, registration.StepAccount, p.CurrentStep)
}

func TestStore_EmailUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Accounts().Create(ctx, account.NewUser(account.NewUserParams{Email: "jane@example.com"})))
	err := store.Accounts().Create(ctx, account.NewUser(account.NewUserParams{Email: " JANE@example.com"}))
	assert.ErrorIs(t, err, shared.ErrEmailTaken)

	ok, err := store.Accounts().ExistsByEmail(ctx, shared.NormalizeEmail("Jane@Example.com"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_SaveStatusKeepsCompletionDate(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Registration()
	userID := uuid.New()

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveStatus(ctx, &registration.Status{UserID: userID, IsCompleted: true, CompletionDate: &first}))

	later := first.Add(time.Hour)
	require.NoError(t, repo.SaveStatus(ctx, &registration.Status{UserID: userID, IsCompleted: true, CompletionDate: &later}))

	st, err := repo.GetStatus(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first, *st.CompletionDate)
}

func TestStore_Payments(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	userID := uuid.New()
	now := time.Now()

	failed := payment.NewFailed(userID, payment.MethodStripe, 1000, "declined", nil, now)
	require.NoError(t, store.Payments().Record(ctx, failed))

	ok, err := store.Registration().HasCompletedPayment(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	done := payment.NewCompleted(userID, payment.MethodStripe, 1000, payment.Outcome{Success: true, TransactionID: "ch_1"}, now.Add(time.Second))
	require.NoError(t, store.Payments().Record(ctx, done))
	assert.ErrorIs(t, store.Payments().Record(ctx, payment.NewCompleted(uuid.New(), payment.MethodStripe, 1, payment.Outcome{Success: true, TransactionID: "ch_1"}, now)), shared.ErrDuplicateTransaction)

	latest, err := store.Payments().Latest(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "ch_1", latest.TransactionID)

	page, err := store.Payments().List(ctx, payment.ListOptions{UserID: &userID, Status: payment.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
}

func TestStore_GetOrCreateCity(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Geo()
	countryID := uuid.New()

	city, created, err := repo.GetOrCreateCity(ctx, countryID, "Almaty")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.GetOrCreateCity(ctx, countryID, "Almaty")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, city.ID, again.ID)
}
