package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/somedsale/quotelist/pkg/source"
)

// GmailNotifier sends notifications through the Gmail API as the sender
// mailbox, using a service account with domain-wide delegation.
type GmailNotifier struct {
	svc      *gmail.Service
	envelope Envelope
}

// NewGmailNotifier creates a GmailNotifier from a service account key file.
// The service account impersonates env.From.
func NewGmailNotifier(ctx context.Context, credentialsFile string, env Envelope) (*GmailNotifier, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gmail credentials: %w", err)
	}
	conf.Subject = env.From

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(conf.Client(context.Background())))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return newGmailNotifier(svc, env), nil
}

func newGmailNotifier(svc *gmail.Service, env Envelope) *GmailNotifier {
	return &GmailNotifier{svc: svc, envelope: env}
}

func (n *GmailNotifier) Notify(ctx context.Context, rows []source.Row) error {
	if len(rows) == 0 {
		return nil
	}
	msg, err := newMessage(n.envelope, rows)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}

	raw := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(buf.Bytes())}
	if _, err := n.svc.Users.Messages.Send("me", raw).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}
