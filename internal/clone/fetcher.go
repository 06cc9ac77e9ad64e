package clone

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/model"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Page is a fetched and rewritten source page.
type Page struct {
	OriginalURL string
	HTML        string
	Fields      []model.FormField
}

type FetcherInterface interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Fetcher downloads source pages. It never retries.
type Fetcher struct {
	client *resty.Client
}

var _ FetcherInterface = (*Fetcher)(nil)

func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	return &Fetcher{client: client}
}

// Fetch downloads rawURL, rewrites it against the final response URL and
// extracts its form fields. Any transport error or non-2xx status is an
// upstream error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, appErrors.NewInvalid("original_url must be an absolute http(s) url")
	}

	resp, err := f.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, appErrors.NewUpstream("fetch "+rawURL, err)
	}
	if !resp.IsSuccess() {
		return nil, appErrors.NewUpstream("fetch "+rawURL, fmt.Errorf("unexpected status %d", resp.StatusCode()))
	}

	base := rawURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		base = raw.Request.URL.String()
	}

	html, err := Rewrite(resp.String(), base)
	if err != nil {
		return nil, err
	}
	fields, err := ExtractFields(html)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"url":    rawURL,
		"bytes":  len(resp.Body()),
		"fields": len(fields),
		"took":   resp.Time().String(),
	}).Info("🌐 cloned source page")

	return &Page{OriginalURL: rawURL, HTML: html, Fields: fields}, nil
}
