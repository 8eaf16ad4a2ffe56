// Package notify sends the applicant confirmation and the staff batch email.
// Both notifiers build a Message and hand it to a Transport; SMTPTransport is
// the production transport.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/dharsanguruparan/RegiDesk/internal/config"
)

// Attachment is either a file on disk (Path) or in-memory bytes (Data).
type Attachment struct {
	Name string
	Path string
	Data []byte
}

// Message is a transport-neutral HTML email.
type Message struct {
	FromName string
	To       []string
	Subject  string
	HTML     string

	Attachments []Attachment
}

// Transport delivers a message or reports why it could not.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// ErrNoRecipient is returned for messages without a To address.
var ErrNoRecipient = errors.New("message has no recipient")

// SMTPTransport sends through one SMTP relay with a fixed sender address.
type SMTPTransport struct {
	client *mail.Client
	from   string
}

// NewSMTPTransport configures the relay described by cfg. The connection is
// dialled per message.
func NewSMTPTransport(cfg config.SMTPConfig) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
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
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPTransport{client: client, from: cfg.Username}, nil
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch name {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

// Deliver implements Transport.
func (t *SMTPTransport) Deliver(ctx context.Context, m Message) error {
	msg, err := t.build(m)
	if err != nil {
		return err
	}
	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (t *SMTPTransport) build(m Message) (*mail.Msg, error) {
	if len(m.To) == 0 {
		return nil, ErrNoRecipient
	}
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.FromName, t.from); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	for _, a := range m.Attachments {
		if a.Data != nil {
			if err := msg.AttachReader(a.Name, bytes.NewReader(a.Data)); err != nil {
				return nil, fmt.Errorf("attach %s: %w", a.Name, err)
			}
			continue
		}
		msg.AttachFile(a.Path, mail.WithFileName(a.Name))
	}
	return msg, nil
}
