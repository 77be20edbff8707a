package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/somedsale/quotelist/pkg/source"
)

// sender is the part of *mail.Client the notifier uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPConfig holds the relay settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPNotifier sends notifications through an SMTP relay using STARTTLS and
// PLAIN authentication.
type SMTPNotifier struct {
	client   sender
	envelope Envelope
}

// NewSMTPNotifier creates an SMTPNotifier. No connection is made until the
// first notification.
func NewSMTPNotifier(cfg SMTPConfig, env Envelope) (*SMTPNotifier, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, envelope: env}, nil
}

func (n *SMTPNotifier) Notify(ctx context.Context, rows []source.Row) error {
	if len(rows) == 0 {
		return nil
	}
	msg, err := newMessage(n.envelope, rows)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// newMessage builds the notification email for rows.
func newMessage(env Envelope, rows []source.Row) (*mail.Msg, error) {
	body, err := Body(rows)
	if err != nil {
		return nil, err
	}
	msg := mail.NewMsg()
	if err := msg.From(env.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", env.From, err)
	}
	if err := msg.To(env.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients %v: %w", env.To, err)
	}
	msg.Subject(env.subject())
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
