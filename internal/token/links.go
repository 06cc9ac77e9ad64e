package token

import "strings"

// Links builds the public URLs that carry tokens.
type Links struct {
	BaseURL string // e.g. https://track.example.com
	Prefix  string // e.g. /api/v1
}

func (l Links) root() string {
	return strings.TrimRight(l.BaseURL, "/") + l.Prefix
}

func (l Links) ServeURL(tok string) string {
	return l.root() + "/phishlets/serve/" + tok
}

func (l Links) OpenPixelURL(r Recipient) string {
	return l.root() + "/track/f1/" + r.String()
}

func (l Links) SubmitURL(r Recipient) string {
	return l.root() + "/track/f2/" + r.String()
}
