package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/logger"
	"github.com/campus-enroll/registration-hub/pkg/timeutil"
)

// TokenVerifier checks email verification tokens.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, string, error)
}

// VerifyEmailHandler activates the account behind a verification link.
type VerifyEmailHandler struct {
	accounts account.Repository
	tokens   TokenVerifier
	clock    timeutil.Clock
	after    afterCommit
}

// NewVerifyEmailHandler creates a VerifyEmailHandler.
func NewVerifyEmailHandler(
	accounts account.Repository,
	tokens TokenVerifier,
	clock timeutil.Clock,
	events shared.EventPublisher,
	log *logger.Logger,
) *VerifyEmailHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &VerifyEmailHandler{
		accounts: accounts,
		tokens:   tokens,
		clock:    clock,
		after:    newAfterCommit(events, nil, log),
	}
}

// Handle verifies token. A token whose email no longer matches the account
// is rejected.
func (h *VerifyEmailHandler) Handle(ctx context.Context, token string) (*account.User, error) {
	userID, email, err := h.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("verify_email: %w", err)
	}

	user, err := h.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("verify_email: %w", err)
	}
	if user.IsDeleted() {
		return nil, fmt.Errorf("verify_email: %w", shared.ErrUserDeleted)
	}
	if user.Email != shared.NormalizeEmail(email) {
		return nil, fmt.Errorf("verify_email: %w", shared.ErrInvalidToken)
	}

	if err := user.MarkVerified(h.clock()); err != nil {
		return nil, fmt.Errorf("verify_email: %w", err)
	}
	if err := h.accounts.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("verify_email: save: %w", err)
	}

	h.after.log.Info("email verified", logger.UserID(user.ID))
	h.after.publish(shared.NewAccountVerifiedEvent(user.ID.String(), user.Email.String()))
	return user, nil
}
