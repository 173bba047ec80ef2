package notification

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"
)

type emailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[Type]emailTemplate{
	TypeEmailVerification: {
		subject: "Verify your email address",
		body: template.Must(template.New("verify").Parse(
			`Hi {{.Recipient.FirstName}},

Thanks for creating an account. Please confirm your email address by opening
the link below. The link expires in {{.ExpiresIn}}.

{{.Link}}

If you did not create this account you can ignore this message.
`)),
	},
	TypeRegistrationCompleted: {
		subject: "Registration Completed Successfully!",
		body: template.Must(template.New("completed").Parse(
			`Hi {{.Recipient.FullName}},

Your registration has been successfully completed.
You can now log in and start your journey.

Thank you for registering!
`)),
	},
	TypePaymentFailed: {
		subject: "Your payment could not be processed",
		body: template.Must(template.New("payment_failed").Parse(
			`Hi {{.Recipient.FirstName}},

We could not process your {{.Method}} payment of {{.Amount}}: {{.Reason}}.
Your registration progress has been kept. Please try again with another
payment method.
`)),
	},
}

// Params feeds a template.
type Params struct {
	Recipient Recipient

	// Link and ExpiresIn are used by TypeEmailVerification.
	Link      string
	ExpiresIn time.Duration

	// Method, Amount and Reason are used by TypePaymentFailed.
	Method string
	Amount string
	Reason string
}

// Render builds a message of type t.
func Render(t Type, params Params, now time.Time) (*Message, error) {
	tmpl, ok := templates[t]
	if !ok {
		return nil, ErrInvalidType
	}
	if t == TypeEmailVerification && params.Link == "" {
		return nil, ErrMissingParameters
	}

	var buf bytes.Buffer
	if err := tmpl.body.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("render %s: %w", t, err)
	}

	msg := &Message{
		ID:        uuid.New(),
		Type:      t,
		To:        params.Recipient,
		Subject:   tmpl.subject,
		Body:      buf.String(),
		CreatedAt: now,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}
