// Package eventhandler reacts to domain events after the command that raised
// them has committed. Handlers here only send email; a failure is logged and
// never undoes the registration write.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/notification"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLERS
// account.created       → verification email with a signed link
// registration.completed → confirmation email (first completion only)
// payment.failed        → decline notice
// ═══════════════════════════════════════════════════════════════════════════

// NotifyConfig configures the notification handlers.
type NotifyConfig struct {
	// VerifyURL - base of the verification link; the token is appended as
	// the "token" query parameter.
	VerifyURL string

	// VerificationTTL - shown to the user in the verification email.
	VerificationTTL time.Duration

	// SendTimeout bounds one delivery attempt.
	SendTimeout time.Duration

	// MaxAttempts for retryable delivery failures.
	MaxAttempts int
}

// DefaultNotifyConfig returns the default configuration.
func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{
		VerifyURL:       "http://localhost:8080/api/v1/accounts/verify-email",
		VerificationTTL: 24 * time.Hour,
		SendTimeout:     10 * time.Second,
		MaxAttempts:     3,
	}
}

// NotifyHandler sends registration emails.
type NotifyHandler struct {
	accounts account.Repository
	sender   notification.Sender
	logger   *slog.Logger
	config   NotifyConfig
	now      func() time.Time
}

// NewNotifyHandler creates a NotifyHandler.
func NewNotifyHandler(accounts account.Repository, sender notification.Sender, logger *slog.Logger, config NotifyConfig) *NotifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultNotifyConfig().SendTimeout
	}
	return &NotifyHandler{
		accounts: accounts,
		sender:   sender,
		logger:   logger.With("handler", "notify"),
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register subscribes the handler to the events it serves.
func (h *NotifyHandler) Register(bus shared.EventSubscriber) error {
	subs := map[shared.EventType]shared.EventHandler{
		shared.EventAccountCreated:        h.OnAccountCreated,
		shared.EventRegistrationCompleted: h.OnRegistrationCompleted,
		shared.EventPaymentFailed:         h.OnPaymentFailed,
	}
	for t, fn := range subs {
		if err := bus.Subscribe(t, fn); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// OnAccountCreated sends the verification email.
func (h *NotifyHandler) OnAccountCreated(event shared.Event) error {
	e, ok := event.(shared.AccountCreatedEvent)
	if !ok {
		h.logger.Warn("unexpected event", "event_type", event.EventType())
		return nil
	}
	if e.VerificationToken == "" {
		h.logger.Warn("account created without verification token", "user_id", e.AggregateID())
		return nil
	}

	link, err := verifyLink(h.config.VerifyURL, e.VerificationToken)
	if err != nil {
		return fmt.Errorf("build verification link: %w", err)
	}

	return h.deliver(notification.TypeEmailVerification, notification.Params{
		Recipient: notification.Recipient{Email: e.Email, FirstName: e.FirstName},
		Link:      link,
		ExpiresIn: h.config.VerificationTTL,
	}, e.AggregateID())
}

// OnRegistrationCompleted sends the confirmation email.
func (h *NotifyHandler) OnRegistrationCompleted(event shared.Event) error {
	e, ok := event.(shared.RegistrationCompletedEvent)
	if !ok {
		h.logger.Warn("unexpected event", "event_type", event.EventType())
		return nil
	}

	return h.deliver(notification.TypeRegistrationCompleted, notification.Params{
		Recipient: notification.Recipient{Email: e.Email, FirstName: e.FirstName, LastName: e.LastName},
	}, e.AggregateID())
}

// OnPaymentFailed tells the user their payment was declined.
func (h *NotifyHandler) OnPaymentFailed(event shared.Event) error {
	e, ok := event.(shared.PaymentEvent)
	if !ok {
		h.logger.Warn("unexpected event", "event_type", event.EventType())
		return nil
	}

	userID, err := uuid.Parse(e.AggregateID())
	if err != nil {
		return fmt.Errorf("payment event aggregate id: %w", err)
	}
	user, err := h.accounts.GetByID(context.Background(), userID)
	if err != nil {
		h.logger.Warn("payment failed for unknown user", "user_id", userID, "error", err)
		return nil
	}

	return h.deliver(notification.TypePaymentFailed, notification.Params{
		Recipient: notification.Recipient{UserID: user.ID, Email: user.Email.String(), FirstName: user.FirstName, LastName: user.LastName},
		Method:    e.Method,
		Amount:    shared.Money(e.AmountCents).String(),
		Reason:    e.Reason,
	}, e.AggregateID())
}

func (h *NotifyHandler) deliver(t notification.Type, params notification.Params, aggregateID string) error {
	msg, err := notification.Render(t, params, h.now())
	if err != nil {
		h.logger.Error("failed to render email", "type", t, "user_id", aggregateID, "error", err)
		return err
	}

	err = retry.Do(context.Background(), func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, h.config.SendTimeout)
		defer cancel()

		res := h.sender.Send(sendCtx, msg)
		switch err := res.Err(); {
		case err == nil:
			return nil
		case res.Retryable:
			return retry.Retryable(err)
		default:
			return retry.Permanent(err)
		}
	}, retry.WithMaxAttempts(h.config.MaxAttempts), retry.WithInitialDelay(500*time.Millisecond))
	if err != nil {
		h.logger.Error("failed to send email", "type", t, "to", msg.To.Email, "user_id", aggregateID, "error", err)
		return err
	}

	h.logger.Info("email sent", "type", t, "user_id", aggregateID)
	return nil
}

func verifyLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
