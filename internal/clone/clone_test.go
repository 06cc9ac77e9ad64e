package clone

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/logger"
)

func init() {
	logger.SetOutput(io.Discard)
}

func attr(t *testing.T, html, selector, name string) string {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, ok := doc.Find(selector).First().Attr(name)
	if !ok {
		t.Fatalf("%s has no %s attribute", selector, name)
	}
	return v
}

func TestRewriteResolvesRelativeURLs(t *testing.T) {
	src := `<html><head><link rel="stylesheet" href="/s.css"></head>
<body><img src="a.png"><form action="/login" method="POST"><input name="u"></form></body></html>`

	out, err := Rewrite(src, "https://ex.com/p/")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if got := attr(t, out, "img", "src"); got != "https://ex.com/p/a.png" {
		t.Errorf("img src = %q", got)
	}
	if got := attr(t, out, "link", "href"); got != "https://ex.com/s.css" {
		t.Errorf("link href = %q", got)
	}
	if got := attr(t, out, "form", "action"); got != "https://ex.com/login" {
		t.Errorf("form action = %q", got)
	}

	fields, err := ExtractFields(out)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}
	f := fields[0]
	if f.Tag != "input" || f.Type != "text" || f.Name != "u" || f.FormMethod != "post" {
		t.Errorf("unexpected field %+v", f)
	}
	if f.FormAction != "https://ex.com/login" {
		t.Errorf("form action on field = %q", f.FormAction)
	}
}

func TestRewriteLeavesExcludedValues(t *testing.T) {
	src := `<body>
<a id="frag" href="#top">x</a>
<a id="mail" href="mailto:a@b.c">x</a>
<a id="tel" href="tel:+100">x</a>
<a id="js" href="javascript:void(0)">x</a>
<img id="data" src="data:image/png;base64,AAAA">
<a id="abs" href="http://other.org/x">x</a>
<a id="empty" href="">x</a>
</body>`

	out, err := Rewrite(src, "https://ex.com/")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	want := map[string][2]string{
		"#frag":  {"href", "#top"},
		"#mail":  {"href", "mailto:a@b.c"},
		"#tel":   {"href", "tel:+100"},
		"#js":    {"href", "javascript:void(0)"},
		"#data":  {"src", "data:image/png;base64,AAAA"},
		"#abs":   {"href", "http://other.org/x"},
		"#empty": {"href", ""},
	}
	for sel, w := range want {
		if got := attr(t, out, sel, w[0]); got != w[1] {
			t.Errorf("%s %s = %q, want %q", sel, w[0], got, w[1])
		}
	}
}

func TestRewriteInlineStyles(t *testing.T) {
	src := `<div id="a" style="background: url(img/bg.png) no-repeat"></div>
<div id="b" style="background-image: url(&quot;/x.jpg&quot;)"></div>
<div id="c" style="background: url('https://cdn.org/y.png')"></div>`

	out, err := Rewrite(src, "https://ex.com/dir/")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if got := attr(t, out, "#a", "style"); got != "background: url('https://ex.com/dir/img/bg.png') no-repeat" {
		t.Errorf("style a = %q", got)
	}
	if got := attr(t, out, "#b", "style"); got != "background-image: url('https://ex.com/x.jpg')" {
		t.Errorf("style b = %q", got)
	}
	if got := attr(t, out, "#c", "style"); got != "background: url('https://cdn.org/y.png')" {
		t.Errorf("style c = %q", got)
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	src := `<!DOCTYPE html><html><head><script src="app.js"></script></head>
<body style="background:url(bg.gif)"><a href="../up">u</a><form action="go"><input type="password" name="p"></form></body></html>`

	once, err := Rewrite(src, "https://ex.com/a/b/")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	twice, err := Rewrite(once, "https://ex.com/a/b/")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if once != twice {
		t.Errorf("rewrite not idempotent:\n%s\n---\n%s", once, twice)
	}
}

func TestRewriteRejectsBadBase(t *testing.T) {
	for _, base := range []string{"", "relative/path", "://nope"} {
		if _, err := Rewrite("<p>x</p>", base); !appErrors.IsInvalid(err) {
			t.Errorf("base %q: expected invalid error, got %v", base, err)
		}
	}
}

func TestExtractFieldsOrderAndDefaults(t *testing.T) {
	src := `<form action="/a">
  <input type="email" name="email" id="e" placeholder="you@x" required>
  <textarea name="note"></textarea>
  <select name="plan"><option>1</option></select>
  <input>
  <button type="submit">Go</button>
</form>
<input name="outside">
<form method="PUT"><input type="hidden" name="csrf"></form>`

	fields, err := ExtractFields(src)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(fields) != 6 {
		t.Fatalf("expected 6 fields, got %d: %+v", len(fields), fields)
	}

	tags := []string{"input", "textarea", "select", "input", "button", "input"}
	for i, tag := range tags {
		if fields[i].Tag != tag {
			t.Errorf("field %d tag = %q, want %q", i, fields[i].Tag, tag)
		}
	}
	if !fields[0].Required || fields[0].Type != "email" || fields[0].ID != "e" || fields[0].Placeholder != "you@x" {
		t.Errorf("unexpected first field %+v", fields[0])
	}
	if fields[1].Required {
		t.Error("textarea should not be required")
	}
	if fields[3].Name != "" || fields[3].Type != "text" {
		t.Errorf("nameless input should be kept with default type, got %+v", fields[3])
	}
	if fields[0].FormMethod != "get" {
		t.Errorf("default method = %q", fields[0].FormMethod)
	}
	if fields[5].FormMethod != "put" || fields[5].Type != "hidden" {
		t.Errorf("unexpected last field %+v", fields[5])
	}
}

func TestFetcherClonesPage(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><img src="logo.png"><form action="/login"><input type="password" name="pw"></form></body></html>`)
	}))
	defer srv.Close()

	f := NewFetcher(2*time.Second, "")
	page, err := f.Fetch(context.Background(), srv.URL+"/signin/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotUA != DefaultUserAgent {
		t.Errorf("user agent = %q", gotUA)
	}
	if got := attr(t, page.HTML, "img", "src"); got != srv.URL+"/signin/logo.png" {
		t.Errorf("img src = %q", got)
	}
	if len(page.Fields) != 1 || page.Fields[0].Type != "password" {
		t.Errorf("unexpected fields %+v", page.Fields)
	}
	if page.OriginalURL != srv.URL+"/signin/" {
		t.Errorf("original url = %q", page.OriginalURL)
	}
}

func TestFetcherNon2xxIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewFetcher(time.Second, "ua").Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if appErrors.StatusCode(err) != http.StatusBadGateway {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestFetcherRejectsNonHTTPURL(t *testing.T) {
	_, err := NewFetcher(time.Second, "").Fetch(context.Background(), "ftp://ex.com/x")
	if !appErrors.IsInvalid(err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}
