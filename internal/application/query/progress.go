// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/application/lookup"
	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS & STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressDTO is the get_progress view.
type ProgressDTO struct {
	UserID             uuid.UUID `json:"user_id"`
	CurrentStep        int       `json:"current_step"`
	StepName           string    `json:"step_name"`
	ProgressNotes      string    `json:"progress_notes"`
	LastVisited        time.Time `json:"last_visited"`
	ProgressPercentage float64   `json:"progress_percentage"`
}

// NewProgressDTO maps a progress record.
func NewProgressDTO(p *registration.Progress) *ProgressDTO {
	return &ProgressDTO{
		UserID:             p.UserID,
		CurrentStep:        int(p.CurrentStep),
		StepName:           p.CurrentStep.Name(),
		ProgressNotes:      p.ProgressNotes,
		LastVisited:        p.LastVisited,
		ProgressPercentage: p.Percentage(),
	}
}

// StatusDTO is the get_status view.
type StatusDTO struct {
	UserID         uuid.UUID  `json:"user_id"`
	IsCompleted    bool       `json:"is_completed"`
	CompletionDate *time.Time `json:"completion_date"`
	ProgressNotes  string     `json:"progress_notes"`
	LastUpdated    time.Time  `json:"last_updated"`
}

// NewStatusDTO maps a status record.
func NewStatusDTO(s *registration.Status) *StatusDTO {
	return &StatusDTO{
		UserID:         s.UserID,
		IsCompleted:    s.IsCompleted,
		CompletionDate: s.CompletionDate,
		ProgressNotes:  s.ProgressNotes,
		LastUpdated:    s.LastUpdated,
	}
}

// ProgressCache stores read views. A miss returns (nil, nil).
type ProgressCache interface {
	GetProgress(ctx context.Context, userID uuid.UUID) (*ProgressDTO, error)
	SetProgress(ctx context.Context, dto *ProgressDTO) error
	GetStatus(ctx context.Context, userID uuid.UUID) (*StatusDTO, error)
	SetStatus(ctx context.Context, dto *StatusDTO) error
}

// RegistrationQueries serves get_progress and get_status.
type RegistrationQueries struct {
	users *lookup.UserResolver
	repo  registration.Repository
	cache ProgressCache
	log   *logger.Logger
}

// NewRegistrationQueries creates RegistrationQueries. cache may be nil.
func NewRegistrationQueries(accounts account.Repository, repo registration.Repository, cache ProgressCache, log *logger.Logger) *RegistrationQueries {
	if log == nil {
		log = logger.NewNop()
	}
	return &RegistrationQueries{
		users: lookup.NewUserResolver(accounts),
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Progress returns the user's workflow position.
func (q *RegistrationQueries) Progress(ctx context.Context, userRef string) (*ProgressDTO, error) {
	user, err := q.users.Resolve(ctx, userRef)
	if err != nil {
		return nil, fmt.Errorf("get_progress: %w", err)
	}

	if q.cache != nil {
		if dto, err := q.cache.GetProgress(ctx, user.ID); err != nil {
			q.log.Warn("progress cache read failed", logger.UserID(user.ID), logger.Err(err))
		} else if dto != nil {
			return dto, nil
		}
	}

	p, err := q.repo.GetProgress(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: %w", err)
	}
	dto := NewProgressDTO(p)

	if q.cache != nil {
		if err := q.cache.SetProgress(ctx, dto); err != nil {
			q.log.Warn("progress cache write failed", logger.UserID(user.ID), logger.Err(err))
		}
	}
	return dto, nil
}

// Status returns the completion flag.
func (q *RegistrationQueries) Status(ctx context.Context, userRef string) (*StatusDTO, error) {
	user, err := q.users.Resolve(ctx, userRef)
	if err != nil {
		return nil, fmt.Errorf("get_status: %w", err)
	}

	if q.cache != nil {
		if dto, err := q.cache.GetStatus(ctx, user.ID); err != nil {
			q.log.Warn("status cache read failed", logger.UserID(user.ID), logger.Err(err))
		} else if dto != nil {
			return dto, nil
		}
	}

	s, err := q.repo.GetStatus(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get_status: %w", err)
	}
	dto := NewStatusDTO(s)

	if q.cache != nil {
		if err := q.cache.SetStatus(ctx, dto); err != nil {
			q.log.Warn("status cache write failed", logger.UserID(user.ID), logger.Err(err))
		}
	}
	return dto, nil
}
