package registration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// memRepo is an in-memory Repository. Atomically snapshots state and restores
// it when fn fails.
type memRepo struct {
	users    map[uuid.UUID]bool
	progress map[uuid.UUID]Progress
	status   map[uuid.UUID]Status
	paid     map[uuid.UUID]bool
	writes   int
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    map[uuid.UUID]bool{},
		progress: map[uuid.UUID]Progress{},
		status:   map[uuid.UUID]Status{},
		paid:     map[uuid.UUID]bool{},
	}
}

func (r *memRepo) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.users[id], nil
}

func (r *memRepo) GetProgress(_ context.Context, id uuid.UUID) (*Progress, error) {
	p, ok := r.progress[id]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return &p, nil
}

func (r *memRepo) GetProgressForUpdate(ctx context.Context, id uuid.UUID) (*Progress, error) {
	return r.GetProgress(ctx, id)
}

func (r *memRepo) SaveProgress(_ context.Context, p *Progress) error {
	r.writes++
	r.progress[p.UserID] = *p
	return nil
}

func (r *memRepo) GetStatus(_ context.Context, id uuid.UUID) (*Status, error) {
	s, ok := r.status[id]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return &s, nil
}

func (r *memRepo) SaveStatus(_ context.Context, s *Status) error {
	r.writes++
	stored := *s
	if prev, ok := r.status[s.UserID]; ok && prev.CompletionDate != nil {
		stored.CompletionDate = prev.CompletionDate
	}
	r.status[s.UserID] = stored
	return nil
}

func (r *memRepo) HasCompletedPayment(_ context.Context, id uuid.UUID) (bool, error) {
	return r.paid[id], nil
}

func (r *memRepo) Atomically(_ context.Context, fn func(tx Repository) error) error {
	progress := make(map[uuid.UUID]Progress, len(r.progress))
	for k, v := range r.progress {
		progress[k] = v
	}
	status := make(map[uuid.UUID]Status, len(r.status))
	for k, v := range r.status {
		status[k] = v
	}
	writes := r.writes

	if err := fn(r); err != nil {
		r.progress, r.status, r.writes = progress, status, writes
		return err
	}
	return nil
}

type clockStub struct{ now time.Time }

func (c *clockStub) Now() time.Time { return c.now }

func newTestMachine(t *testing.T, opts ...Option) (*Machine, *memRepo, *clockStub, uuid.UUID) {
	t.Helper()
	repo := newMemRepo()
	clock := &clockStub{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := NewMachine(repo, append([]Option{WithClock(clock.Now)}, opts...)...)

	userID := uuid.New()
	repo.users[userID] = true
	_, err := m.Initialize(context.Background(), userID)
	require.NoError(t, err)
	return m, repo, clock, userID
}

func strPtr(s string) *string { return &s }

func TestStep_Percentage(t *testing.T) {
	assert.Equal(t, 12.5, StepAccount.Percentage())
	assert.Equal(t, 37.5, StepAddress.Percentage())
	assert.Equal(t, 87.5, StepPayment.Percentage())
	assert.Equal(t, 100.0, StepConfirmation.Percentage())
}

func TestParseStepName(t *testing.T) {
	tests := []struct {
		in      string
		want    Step
		wantErr error
	}{
		{"personal_info", StepPersonalInfo, nil},
		{"Course-Selection", StepCourseSelection, nil},
		{"7", StepPayment, nil},
		{"9", 0, shared.ErrInvalidStep},
		{"shipping", 0, shared.ErrUnknownStepName},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStepName(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMachine_AdvanceTo(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrites step and keeps notes when nil", func(t *testing.T) {
		m, repo, clock, userID := newTestMachine(t)

		_, err := m.AdvanceTo(ctx, userID, StepEducation, strPtr("half way"))
		require.NoError(t, err)

		clock.now = clock.now.Add(time.Hour)
		tr, err := m.AdvanceTo(ctx, userID, StepAddress, nil)
		require.NoError(t, err)

		assert.Equal(t, StepEducation, tr.From)
		assert.Equal(t, StepAddress, tr.To)
		stored := repo.progress[userID]
		assert.Equal(t, StepAddress, stored.CurrentStep)
		assert.Equal(t, "half way", stored.ProgressNotes)
		assert.Equal(t, clock.now, stored.LastVisited)
	})

	t.Run("monotonic option keeps the higher step", func(t *testing.T) {
		m, repo, _, userID := newTestMachine(t, WithMonotonicProgress(true))

		_, err := m.AdvanceTo(ctx, userID, StepCourseSelection, nil)
		require.NoError(t, err)
		tr, err := m.AdvanceTo(ctx, userID, StepPersonalInfo, nil)
		require.NoError(t, err)

		assert.False(t, tr.Changed())
		assert.Equal(t, StepCourseSelection, repo.progress[userID].CurrentStep)

		_, err = m.Override(ctx, userID, StepPersonalInfo, strPtr("reset by admin"))
		require.NoError(t, err)
		assert.Equal(t, StepPersonalInfo, repo.progress[userID].CurrentStep)
	})

	t.Run("unknown user", func(t *testing.T) {
		m, _, _, _ := newTestMachine(t)
		_, err := m.AdvanceTo(ctx, uuid.New(), StepAddress, nil)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("invalid step", func(t *testing.T) {
		m, _, _, userID := newTestMachine(t)
		_, err := m.AdvanceTo(ctx, userID, Step(9), nil)
		assert.True(t, shared.IsValidation(err))
	})
}

func TestMachine_Guard(t *testing.T) {
	ctx := context.Background()

	lenient, _, _, userID := newTestMachine(t)
	assert.NoError(t, lenient.Guard(ctx, userID, StepCourseSelection))

	strict, _, _, userID := newTestMachine(t, WithStrictOrdering(true))
	assert.NoError(t, strict.Guard(ctx, userID, StepPersonalInfo))

	err := strict.Guard(ctx, userID, StepCourseSelection)
	reason, ok := shared.PreconditionReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, shared.ReasonStepOutOfOrder, reason)

	_, err = strict.AdvanceTo(ctx, userID, StepEducation, nil)
	require.NoError(t, err)
	assert.NoError(t, strict.Guard(ctx, userID, StepCourseSelection))
	assert.NoError(t, strict.Guard(ctx, userID, StepAddress))
}

func TestMachine_Finalize(t *testing.T) {
	ctx := context.Background()

	t.Run("steps incomplete is checked before payment", func(t *testing.T) {
		m, repo, _, userID := newTestMachine(t)
		_, err := m.AdvanceTo(ctx, userID, StepReview, nil)
		require.NoError(t, err)
		before := repo.writes

		_, err = m.Finalize(ctx, userID)
		reason, ok := shared.PreconditionReasonOf(err)
		require.True(t, ok)
		assert.Equal(t, shared.ReasonStepsIncomplete, reason)
		assert.Equal(t, before, repo.writes)
		assert.False(t, repo.status[userID].IsCompleted)
		assert.Nil(t, repo.status[userID].CompletionDate)
	})

	t.Run("payment missing", func(t *testing.T) {
		m, repo, _, userID := newTestMachine(t)
		_, err := m.AdvanceTo(ctx, userID, StepPayment, nil)
		require.NoError(t, err)

		_, err = m.Finalize(ctx, userID)
		reason, ok := shared.PreconditionReasonOf(err)
		require.True(t, ok)
		assert.Equal(t, shared.ReasonPaymentMissing, reason)
		assert.Equal(t, StepPayment, repo.progress[userID].CurrentStep)
		assert.False(t, repo.status[userID].IsCompleted)
	})

	t.Run("success is idempotent and sets the date once", func(t *testing.T) {
		m, repo, clock, userID := newTestMachine(t)
		_, err := m.AdvanceTo(ctx, userID, StepPayment, strPtr("stripe-success"))
		require.NoError(t, err)
		repo.paid[userID] = true

		first, err := m.Finalize(ctx, userID)
		require.NoError(t, err)
		assert.True(t, first.FirstCompletion)
		completedAt := clock.now

		clock.now = clock.now.Add(48 * time.Hour)
		second, err := m.Finalize(ctx, userID)
		require.NoError(t, err)
		assert.False(t, second.FirstCompletion)

		status := repo.status[userID]
		assert.True(t, status.IsCompleted)
		require.NotNil(t, status.CompletionDate)
		assert.Equal(t, completedAt, *status.CompletionDate)

		progress := repo.progress[userID]
		assert.Equal(t, StepConfirmation, progress.CurrentStep)
		assert.Equal(t, CompletionNotes, progress.ProgressNotes)
	})

	t.Run("unknown user", func(t *testing.T) {
		m, _, _, _ := newTestMachine(t)
		_, err := m.Finalize(ctx, uuid.New())
		assert.True(t, shared.IsNotFound(err))
	})
}

func TestMachine_CompletionDateIffCompleted(t *testing.T) {
	ctx := context.Background()
	m, repo, _, userID := newTestMachine(t)

	check := func() {
		s := repo.status[userID]
		assert.Equal(t, s.IsCompleted, s.CompletionDate != nil)
	}

	check()
	_, _ = m.Finalize(ctx, userID)
	check()
	_, _ = m.AdvanceTo(ctx, userID, StepPayment, nil)
	_, _ = m.Finalize(ctx, userID)
	check()
	repo.paid[userID] = true
	_, _ = m.Finalize(ctx, userID)
	check()
	assert.True(t, repo.status[userID].IsCompleted)
}

func TestMachine_UpdateNotes(t *testing.T) {
	ctx := context.Background()
	m, repo, _, userID := newTestMachine(t)

	_, err := m.UpdateNotes(ctx, userID, "   ")
	assert.True(t, shared.IsValidation(err))

	p, err := m.UpdateNotes(ctx, userID, " waiting for transcript ")
	require.NoError(t, err)
	assert.Equal(t, "waiting for transcript", p.ProgressNotes)
	assert.Equal(t, StepAccount, repo.progress[userID].CurrentStep)

	_, err = m.UpdateNotes(ctx, uuid.New(), "x")
	assert.True(t, shared.IsNotFound(err))

	t.Run("creates missing progress", func(t *testing.T) {
		userID := uuid.New()
		repo.users[userID] = true

		p, err := m.UpdateNotes(ctx, userID, "started offline")
		require.NoError(t, err)
		assert.Equal(t, StepAccount, p.CurrentStep)
		assert.Equal(t, "started offline", repo.progress[userID].ProgressNotes)
	})
}

func TestMachine_Override(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmation needs a completed registration", func(t *testing.T) {
		m, repo, _, userID := newTestMachine(t)
		_, err := m.AdvanceTo(ctx, userID, StepPayment, nil)
		require.NoError(t, err)

		_, err = m.Override(ctx, userID, StepConfirmation, strPtr("force"))
		reason, ok := shared.PreconditionReasonOf(err)
		require.True(t, ok)
		assert.Equal(t, shared.ReasonStepsIncomplete, reason)
		assert.Equal(t, StepPayment, repo.progress[userID].CurrentStep)
		assert.False(t, repo.status[userID].IsCompleted)

		_, err = m.AdvanceTo(ctx, userID, StepConfirmation, nil)
		assert.True(t, shared.IsPrecondition(err))
	})

	t.Run("completed registration may be moved back and forth", func(t *testing.T) {
		m, repo, _, userID := newTestMachine(t)
		_, err := m.AdvanceTo(ctx, userID, StepPayment, nil)
		require.NoError(t, err)
		repo.paid[userID] = true
		_, err = m.Finalize(ctx, userID)
		require.NoError(t, err)

		_, err = m.Override(ctx, userID, StepReview, nil)
		require.NoError(t, err)
		_, err = m.Override(ctx, userID, StepConfirmation, nil)
		require.NoError(t, err)
		assert.Equal(t, StepConfirmation, repo.progress[userID].CurrentStep)
	})
}

func TestMachine_IsStepReached(t *testing.T) {
	ctx := context.Background()
	m, _, _, userID := newTestMachine(t)

	reached, err := m.IsStepReached(ctx, userID, StepAccount)
	require.NoError(t, err)
	assert.True(t, reached)

	reached, err = m.IsStepReached(ctx, userID, StepAddress)
	require.NoError(t, err)
	assert.False(t, reached)

	reached, err = m.IsStepReached(ctx, uuid.New(), StepAccount)
	require.NoError(t, err)
	assert.False(t, reached)
}
