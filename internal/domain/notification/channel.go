package notification

import (
	"context"
	"errors"
	"time"
)

var errDeliveryFailed = errors.New("delivery failed")

// DeliveryResult is what a Sender reports for one message.
type DeliveryResult struct {
	Success   bool
	MessageID string
	At        time.Time
	Error     error

	// Retryable marks transient failures: connection errors and 4xx SMTP
	// replies.
	Retryable bool
}

func Delivered(messageID string) DeliveryResult {
	return DeliveryResult{Success: true, MessageID: messageID, At: time.Now().UTC()}
}

func Failed(err error, retryable bool) DeliveryResult {
	return DeliveryResult{Error: err, Retryable: retryable, At: time.Now().UTC()}
}

// Err is nil for a delivered message and non-nil otherwise.
func (r DeliveryResult) Err() error {
	switch {
	case r.Success:
		return nil
	case r.Error != nil:
		return r.Error
	default:
		return errDeliveryFailed
	}
}

// Sender hands a rendered message to a transport.
type Sender interface {
	Send(ctx context.Context, msg *Message) DeliveryResult
}
