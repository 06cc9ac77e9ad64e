// internal/service/template_service.go
package service

import (
	"html"
	"strings"

	"github.com/unclebandit/phishsim-backend/internal/model"
)

// PhishletURLPlaceholder is replaced by the recipient's tracked serve link.
const PhishletURLPlaceholder = "{{PHISHLET_URL}}"

// RenderTemplate substitutes every {key} in a single pass, so values that
// themselves look like placeholders are left alone.
func RenderTemplate(template string, data map[string]string) string {
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func targetPlaceholders(t *model.Target, escape bool) map[string]string {
	data := map[string]string{
		"first_name": t.FirstName,
		"last_name":  t.LastName,
		"email":      t.Email,
		"position":   t.Position,
	}
	if escape {
		for k, v := range data {
			data[k] = html.EscapeString(v)
		}
	}
	return data
}

// RenderedEmail is one recipient's personalised message.
type RenderedEmail struct {
	Subject string
	HTML    string
	Plain   string
}

// RenderEmail personalises tpl for t. phishletURL is empty for attachment
// campaigns. The open pixel is always appended to the HTML body.
func RenderEmail(tpl *model.EmailTemplate, t *model.Target, phishletURL, pixelURL string) RenderedEmail {
	subject := RenderTemplate(tpl.Subject, targetPlaceholders(t, false))
	if strings.TrimSpace(subject) == "" {
		subject = "No Subject"
	}

	body := strings.ReplaceAll(tpl.HTMLContent, PhishletURLPlaceholder, html.EscapeString(phishletURL))
	body = RenderTemplate(body, targetPlaceholders(t, true))
	pixel := `<img width="1" height="1" alt="" style="display:none" src="` + html.EscapeString(pixelURL) + `">`
	if i := strings.LastIndex(strings.ToLower(body), "</body>"); i >= 0 {
		body = body[:i] + pixel + body[i:]
	} else {
		body += "<br>" + pixel
	}

	plain := strings.ReplaceAll(tpl.TextContent, PhishletURLPlaceholder, phishletURL)
	plain = RenderTemplate(plain, targetPlaceholders(t, false))
	if phishletURL != "" && !strings.Contains(tpl.TextContent, PhishletURLPlaceholder) {
		plain = strings.TrimRight(plain, "\n") + "\n\nClick here: " + phishletURL
	}

	return RenderedEmail{Subject: subject, HTML: body, Plain: plain}
}
