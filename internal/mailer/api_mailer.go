package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type apiAttachment struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	MimeType      string `json:"mime_type"`
}

type apiPayload struct {
	SMTPHost     string          `json:"smtp_host"`
	SMTPPort     int             `json:"smtp_port"`
	SMTPUsername string          `json:"smtp_username"`
	SMTPPassword string          `json:"smtp_password"`
	FromAddress  string          `json:"from_address"`
	FromName     string          `json:"from_name,omitempty"`
	To           string          `json:"to"`
	Subject      string          `json:"subject"`
	PlainBody    string          `json:"plain_body"`
	HTMLBody     string          `json:"html_body"`
	Attachments  []apiAttachment `json:"attachments"`
}

// APIMailer posts each message as JSON to an external mailer service.
// Anything other than 200 is a failed send; requests are never retried.
type APIMailer struct {
	URL     string
	Timeout time.Duration
	client  *resty.Client
}

var _ Mailer = (*APIMailer)(nil)

func NewAPIMailer(url string, timeout time.Duration) *APIMailer {
	return &APIMailer{
		URL:     url,
		Timeout: timeout,
		client:  resty.New().SetRetryCount(0).SetHeader("Content-Type", "application/json"),
	}
}

func (m *APIMailer) Send(ctx context.Context, msg *Message) error {
	ctx, cancel := withTimeout(ctx, m.Timeout)
	defer cancel()

	payload := apiPayload{
		SMTPHost:     msg.SMTPHost,
		SMTPPort:     msg.SMTPPort,
		SMTPUsername: msg.SMTPUsername,
		SMTPPassword: msg.SMTPPassword,
		FromAddress:  msg.From,
		FromName:     msg.FromName,
		To:           msg.To,
		Subject:      msg.Subject,
		PlainBody:    msg.PlainBody,
		HTMLBody:     msg.HTMLBody,
		Attachments:  []apiAttachment{},
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, apiAttachment{
			Filename:      a.Filename,
			ContentBase64: base64.StdEncoding.EncodeToString(a.Content),
			MimeType:      a.MimeType,
		})
	}

	resp, err := m.client.R().SetContext(ctx).SetBody(payload).Post(m.URL)
	if err != nil {
		return fmt.Errorf("mailer request error: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("mailer API error: %d %s", resp.StatusCode(), resp.String())
	}
	return nil
}
