package mailer

import (
	"context"
	"fmt"
	"io"

	"github.com/gophish/gomail"
)

// SMTPMailer delivers directly through the sender profile's SMTP server.
type SMTPMailer struct {
	// Dial is swapped in tests; nil means gomail.NewDialer(...).DialAndSend.
	Dial func(host string, port int, username, password string, m *gomail.Message) error
}

var _ Mailer = (*SMTPMailer)(nil)

func buildMessage(msg *Message) *gomail.Message {
	m := gomail.NewMessage()
	if msg.FromName != "" {
		m.SetAddressHeader("From", msg.From, msg.FromName)
	} else {
		m.SetHeader("From", msg.From)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.PlainBody)
	m.AddAlternative("text/html", msg.HTMLBody)

	for _, a := range msg.Attachments {
		content := a.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.MimeType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.MimeType}}))
		}
		m.Attach(a.Filename, settings...)
	}
	return m
}

func (s *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if msg.SMTPHost == "" {
		return fmt.Errorf("sender profile has no smtp host")
	}
	m := buildMessage(msg)

	dial := s.Dial
	if dial == nil {
		dial = func(host string, port int, username, password string, m *gomail.Message) error {
			return gomail.NewDialer(host, port, username, password).DialAndSend(m)
		}
	}

	// gomail has no context support; give up waiting once ctx is done.
	done := make(chan error, 1)
	go func() {
		done <- dial(msg.SMTPHost, msg.SMTPPort, msg.SMTPUsername, msg.SMTPPassword, m)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}
}
