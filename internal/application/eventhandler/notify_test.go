package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-enroll/registration-hub/internal/domain/account"
	"github.com/campus-enroll/registration-hub/internal/domain/notification"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/internal/infrastructure/persistence/memory"
)

type captureSender struct {
	sent    []*notification.Message
	results []notification.DeliveryResult
}

func (c *captureSender) Send(_ context.Context, msg *notification.Message) notification.DeliveryResult {
	c.sent = append(c.sent, msg)
	if len(c.results) >= len(c.sent) {
		return c.results[len(c.sent)-1]
	}
	return notification.Delivered("ok")
}

func newHandler(t *testing.T, sender notification.Sender) (*NotifyHandler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	cfg := DefaultNotifyConfig()
	cfg.VerifyURL = "https://hub.example.com/verify"
	return NewNotifyHandler(store.Accounts(), sender, nil, cfg), store
}

func TestOnAccountCreated_SendsVerificationLink(t *testing.T) {
	sender := &captureSender{}
	h, _ := newHandler(t, sender)

	err := h.OnAccountCreated(shared.NewAccountCreatedEvent(uuid.NewString(), "jane@example.com", "Jane", "tok.en.value"))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, notification.TypeEmailVerification, msg.Type)
	assert.Equal(t, "jane@example.com", msg.To.Email)
	assert.Contains(t, msg.Body, "https://hub.example.com/verify?token=tok.en.value")
	assert.Contains(t, msg.Body, "24h0m0s")
}

func TestOnAccountCreated_WithoutTokenIsSkipped(t *testing.T) {
	sender := &captureSender{}
	h, _ := newHandler(t, sender)

	require.NoError(t, h.OnAccountCreated(shared.NewAccountCreatedEvent(uuid.NewString(), "jane@example.com", "Jane", "")))
	assert.Empty(t, sender.sent)
}

func TestOnRegistrationCompleted(t *testing.T) {
	sender := &captureSender{}
	h, _ := newHandler(t, sender)

	err := h.OnRegistrationCompleted(shared.NewRegistrationCompletedEvent(uuid.NewString(), "jane@example.com", "Jane", "Doe", time.Now()))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Registration Completed Successfully!", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "Jane Doe")
}

func TestOnPaymentFailed_LooksUpUser(t *testing.T) {
	sender := &captureSender{}
	h, store := newHandler(t, sender)

	user := account.NewUser(account.NewUserParams{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, store.Accounts().Create(context.Background(), user))

	err := h.OnPaymentFailed(shared.NewPaymentFailedEvent(user.ID.String(), uuid.NewString(), "stripe", 12550, "card_declined"))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "125.50")
	assert.Contains(t, sender.sent[0].Body, "card_declined")
}

func TestDeliver_PermanentFailureIsNotRetried(t *testing.T) {
	sender := &captureSender{results: []notification.DeliveryResult{
		notification.Failed(errors.New("mailbox unavailable"), false),
	}}
	h, _ := newHandler(t, sender)

	err := h.OnRegistrationCompleted(shared.NewRegistrationCompletedEvent(uuid.NewString(), "jane@example.com", "Jane", "Doe", time.Now()))
	assert.Error(t, err)
	assert.Len(t, sender.sent, 1)
}
