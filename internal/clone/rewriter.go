package clone

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
)

var (
	urlAttrs = []string{"src", "href", "action"}

	// url(foo.png), url('foo.png'), url( "foo.png" )
	styleURL = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)
)

// Rewrite resolves every relative src, href and action attribute, and every
// url() inside inline styles, against base and returns the rendered
// document. Values that are empty, fragment-only or already carry a scheme
// are left untouched, so Rewrite(Rewrite(x)) == Rewrite(x).
func Rewrite(html, base string) (string, error) {
	baseURL, err := parseBase(base)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", appErrors.NewInvalid("parse html: %v", err)
	}

	for _, attr := range urlAttrs {
		attr := attr
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(attr)
			if abs, ok := resolve(baseURL, v); ok {
				s.SetAttr(attr, abs)
			}
		})
	}

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		rewritten := styleURL.ReplaceAllStringFunc(style, func(m string) string {
			sub := styleURL.FindStringSubmatch(m)
			abs, ok := resolve(baseURL, sub[1])
			if !ok {
				return m
			}
			return "url('" + abs + "')"
		})
		if rewritten != style {
			s.SetAttr("style", rewritten)
		}
	})

	out, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return "", err
	}
	return out, nil
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, appErrors.NewInvalid("invalid base url %q: %v", base, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, appErrors.NewInvalid("base url %q must be absolute", base)
	}
	return u, nil
}

// resolve returns the absolute form of ref and whether it changed.
func resolve(base *url.URL, ref string) (string, bool) {
	v := strings.TrimSpace(ref)
	if v == "" || strings.HasPrefix(v, "#") {
		return "", false
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme != "" {
		return "", false
	}
	abs := base.ResolveReference(u).String()
	return abs, abs != ref
}
