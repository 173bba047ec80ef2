// Package command contains write operations (CQRS - Commands).
// Every command that moves a registration forward goes through the
// registration.Machine bound to the command's transaction.
package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/registration"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/logger"
)

// ProgressInvalidator drops cached progress and status views for a user.
type ProgressInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, uuid.UUID) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// POST-COMMIT EFFECTS
// ══════════════════════════════════════════════════════════════════════════════

// afterCommit publishes events and drops cached views once a transaction has
// committed. Failures are logged and never fail the command.
type afterCommit struct {
	events shared.EventPublisher
	cache  ProgressInvalidator
	log    *logger.Logger
}

func newAfterCommit(events shared.EventPublisher, cache ProgressInvalidator, log *logger.Logger) afterCommit {
	if cache == nil {
		cache = noopInvalidator{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return afterCommit{events: events, cache: cache, log: log}
}

func (a afterCommit) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := a.cache.Invalidate(ctx, userID); err != nil {
		a.log.Warn("failed to invalidate progress cache", logger.UserID(userID), logger.Err(err))
	}
}

func (a afterCommit) publish(event shared.Event) {
	if a.events == nil {
		return
	}
	if err := a.events.Publish(event); err != nil {
		a.log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Err(err),
		)
	}
}

// transition invalidates the user's cached views and announces the step
// write.
func (a afterCommit) transition(ctx context.Context, tr registration.Transition) {
	a.invalidate(ctx, tr.UserID)
	notes := ""
	if tr.Progress != nil {
		notes = tr.Progress.ProgressNotes
	}
	a.publish(shared.NewStepAdvancedEvent(tr.UserID.String(), int(tr.From), int(tr.To), notes))
}

func notesPtr(s string) *string {
	return &s
}
