// Package mailer relays appeals to the support mailbox over authenticated SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	DefaultHost      = "smtp.gmail.com"
	DefaultPort      = 587
	DefaultRecipient = "support@support.whatsapp.com"
	DefaultTimeout   = 30 * time.Second
)

// ErrNoCredentials is returned when the sender address or password is empty
var ErrNoCredentials = errors.New("sender email or password not configured")

// Credentials are the owner-configured sender account
type Credentials struct {
	From     string
	Password string
}

// Relay sends one appeal per call and never retries
type Relay interface {
	SendAppeal(ctx context.Context, phone string, creds Credentials) error
}

// Options configure the SMTP transport
type Options struct {
	Host      string
	Port      int
	Recipient string
	Timeout   time.Duration
}

// SMTPRelay submits appeals over STARTTLS with PLAIN auth
type SMTPRelay struct {
	opts Options
}

// NewSMTPRelay creates a relay; zero fields take the defaults
func NewSMTPRelay(opts Options) *SMTPRelay {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Recipient == "" {
		opts.Recipient = DefaultRecipient
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &SMTPRelay{opts: opts}
}

// Recipient returns the fixed support address
func (r *SMTPRelay) Recipient() string {
	return r.opts.Recipient
}

// SendAppeal mails "+<phone>" from the configured account
func (r *SMTPRelay) SendAppeal(ctx context.Context, phone string, creds Credentials) error {
	if creds.From == "" || creds.Password == "" {
		return ErrNoCredentials
	}

	msg, err := NewAppealMessage(creds.From, r.opts.Recipient, phone)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(r.opts.Host,
		mail.WithPort(r.opts.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(creds.From),
		mail.WithPassword(creds.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(r.opts.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send appeal: %w", err)
	}
	return nil
}

// NewAppealMessage builds the plain-text appeal with an empty subject
func NewAppealMessage(from, to, phone string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject("")
	msg.SetBodyString(mail.TypeTextPlain, "+"+phone)
	return msg, nil
}
