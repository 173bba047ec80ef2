// Package mail delivers notification messages over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/campus-enroll/registration-hub/internal/domain/notification"
)

// Config configures the SMTP sender.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string

	// StartTLS upgrades the connection when the server offers it.
	StartTLS bool

	Timeout time.Duration
}

// IsConfigured reports whether a server is set.
func (c Config) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

// SMTPSender implements notification.Sender.
type SMTPSender struct {
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg Config, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPSender{config: cfg, logger: logger.With("component", "smtp"), now: time.Now}
}

// Send implements notification.Sender. 4xx replies and connection failures
// are reported as retryable.
func (s *SMTPSender) Send(ctx context.Context, msg *notification.Message) notification.DeliveryResult {
	if err := msg.Validate(); err != nil {
		return notification.Failed(err, false)
	}

	deadline := s.now().Add(s.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return notification.Failed(fmt.Errorf("connect to smtp server: %w", err), true)
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return s.failure("greeting", err)
	}
	defer c.Close()

	if s.config.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.config.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return s.failure("starttls", err)
			}
		}
	}
	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := c.Auth(auth); err != nil {
			return s.failure("auth", err)
		}
	}

	if err := c.Mail(s.config.From); err != nil {
		return s.failure("mail from", err)
	}
	if err := c.Rcpt(msg.To.Email); err != nil {
		return s.failure("rcpt to", err)
	}
	w, err := c.Data()
	if err != nil {
		return s.failure("data", err)
	}
	if _, err := w.Write(s.build(msg)); err != nil {
		w.Close()
		return s.failure("write body", err)
	}
	if err := w.Close(); err != nil {
		return s.failure("end data", err)
	}
	_ = c.Quit()

	s.logger.Debug("email sent", "type", msg.Type.String(), "message_id", msg.ID.String())
	return notification.Delivered(msg.ID.String())
}

func (s *SMTPSender) failure(stage string, err error) notification.DeliveryResult {
	return notification.Failed(fmt.Errorf("smtp %s: %w", stage, err), isTransient(err))
}

// build renders headers and a plain-text body with CRLF line endings.
func (s *SMTPSender) build(msg *notification.Message) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}
	to := msg.To.Email
	if name := msg.To.FullName(); name != "" {
		to = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), msg.To.Email)
	}

	var b strings.Builder
	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", s.now().UTC().Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", msg.ID, s.config.Host)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
		{"Content-Transfer-Encoding", "8bit"},
	}
	for _, h := range headers {
		b.WriteString(h[0])
		b.WriteString(": ")
		b.WriteString(h[1])
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func isTransient(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// LogSender logs messages instead of sending them. It is used when no SMTP
// server is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "mail")}
}

// Send implements notification.Sender.
func (l *LogSender) Send(_ context.Context, msg *notification.Message) notification.DeliveryResult {
	if err := msg.Validate(); err != nil {
		return notification.Failed(err, false)
	}
	l.logger.Info("smtp not configured, email logged",
		"type", msg.Type.String(),
		"to", msg.To.Email,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return notification.Delivered(msg.ID.String())
}

var (
	_ notification.Sender = (*SMTPSender)(nil)
	_ notification.Sender = (*LogSender)(nil)
)
