// Package notify announces newly inserted rows by email and, optionally, as
// Kafka events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/somedsale/quotelist/pkg/source"
)

// DefaultSubject is the subject line used when none is configured.
const DefaultSubject = "New Items Added to MySQL"

const bodyPrefix = "New items detected:\n"

// Notifier delivers one notification per call. Implementations ignore
// empty row sets.
type Notifier interface {
	Notify(ctx context.Context, rows []source.Row) error
}

// Envelope holds the fixed addressing of every notification email.
type Envelope struct {
	From    string
	To      []string
	Subject string
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(list string) []string {
	var out []string
	for _, addr := range strings.Split(list, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func (e Envelope) validate() error {
	if e.From == "" {
		return errors.New("sender address is required")
	}
	if len(e.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	return nil
}

func (e Envelope) subject() string {
	if e.Subject == "" {
		return DefaultSubject
	}
	return e.Subject
}

// Body renders the email text: a fixed first line followed by the rows as
// indented JSON.
func Body(rows []source.Row) (string, error) {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}
	return bodyPrefix + string(data), nil
}

// Fanout sends the email first and then publishes events. Both sinks are
// attempted; their errors are joined.
type Fanout struct {
	Email  Notifier
	Events Notifier
}

func (f Fanout) Notify(ctx context.Context, rows []source.Row) error {
	if len(rows) == 0 {
		return nil
	}
	var errs []error
	if f.Email != nil {
		if err := f.Email.Notify(ctx, rows); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if f.Events != nil {
		if err := f.Events.Notify(ctx, rows); err != nil {
			errs = append(errs, fmt.Errorf("events: %w", err))
		}
	}
	return errors.Join(errs...)
}
