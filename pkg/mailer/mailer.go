package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/pkg/config"
)

// ErrDelivery wraps every failure to hand a notification to the transport.
var ErrDelivery = errors.New("notification delivery failed")

const pdfContentType = mail.ContentType("application/pdf")

// Sender transmits a composed message.
type Sender func(ctx context.Context, msg *mail.Msg) error

// SMTPMailer delivers notifications over SMTP.
type SMTPMailer struct {
	cfg    config.MailConfig
	send   Sender
	logger *zap.Logger
}

// Option customises the mailer.
type Option func(*SMTPMailer)

// WithSender replaces the SMTP transport.
func WithSender(send Sender) Option {
	return func(m *SMTPMailer) {
		m.send = send
	}
}

// New constructs an SMTP mailer from configuration.
func New(cfg config.MailConfig, logger *zap.Logger, opts ...Option) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	m := &SMTPMailer{cfg: cfg, logger: logger}
	m.send = m.dial
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deliver composes and sends n.
func (m *SMTPMailer) Deliver(ctx context.Context, n models.Notification) error {
	msg, err := m.compose(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	m.logger.Debug("notification sent", zap.String("to", n.To), zap.String("subject", n.Subject))
	return nil
}

func (m *SMTPMailer) compose(n models.Notification) (*mail.Msg, error) {
	if strings.TrimSpace(n.To) == "" {
		return nil, fmt.Errorf("recipient required")
	}
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("recipient %q: %w", n.To, err)
	}
	msg.Subject(n.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, n.Body)
	if len(n.Attachment) > 0 {
		msg.AttachReadSeeker(n.AttachmentName, bytes.NewReader(n.Attachment), mail.WithFileContentType(pdfContentType))
	}
	return msg, nil
}

func (m *SMTPMailer) dial(ctx context.Context, msg *mail.Msg) error {
	policy := mail.NoTLS
	if m.cfg.TLS {
		policy = mail.TLSMandatory
	}
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Disabled rejects every notification. It is installed when MAIL_ENABLED is false.
type Disabled struct{}

// Deliver implements the dispatcher contract.
func (Disabled) Deliver(context.Context, models.Notification) error {
	return fmt.Errorf("%w: mail transport disabled", ErrDelivery)
}
