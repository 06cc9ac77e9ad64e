// Package mailer is the outbound mail boundary. The dispatcher builds a
// Message per recipient and hands it to whichever transport is configured.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/phishsim-backend/internal/config"
)

type Attachment struct {
	Filename string
	MimeType string
	Content  []byte
}

// Message carries everything a transport needs, including the SMTP
// credentials of the campaign's sender profile.
type Message struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	From     string
	FromName string
	To       string
	Subject  string

	PlainBody string
	HTMLBody  string

	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// New returns the transport selected by MAILER_DRIVER.
func New(cfg *config.Config) (Mailer, error) {
	switch cfg.MailerDriver {
	case config.MailerDriverAPI:
		return NewAPIMailer(cfg.EmailAPIURL, cfg.MailerTimeout), nil
	case config.MailerDriverSMTP:
		return &SMTPMailer{}, nil
	default:
		return nil, fmt.Errorf("unknown mailer driver %q", cfg.MailerDriver)
	}
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, msg *Message) error

func (f MailerFunc) Send(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// withTimeout bounds ctx unless the caller already set a tighter deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
