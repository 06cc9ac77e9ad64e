package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unclebandit/phishsim-backend/internal/clone"
	"github.com/unclebandit/phishsim-backend/internal/controller"
	"github.com/unclebandit/phishsim-backend/internal/handler"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/mailer"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/queue"
	"github.com/unclebandit/phishsim-backend/internal/repository"
	"github.com/unclebandit/phishsim-backend/internal/repository/bunt"
	"github.com/unclebandit/phishsim-backend/internal/service"
	"github.com/unclebandit/phishsim-backend/internal/token"
)

func init() {
	logger.SetOutput(io.Discard)
}

type outbox struct {
	mu   sync.Mutex
	msgs []*mailer.Message
}

func (o *outbox) Send(ctx context.Context, msg *mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

type env struct {
	srv      *httptest.Server
	stores   *repository.Stores
	outbox   *outbox
	campaign *model.Campaign
	target   *model.Target
	phishlet *model.Phishlet
}

// publicURL is the base the emailed links point at.
const publicURL = "http://phish.test"

func intPtr(v int) *int { return &v }

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := bunt.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	e := &env{stores: db.Stores(), outbox: &outbox{}}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	e.target = &model.Target{FirstName: "Bob", Email: "bob@corp.test", IsActive: true}
	must(e.stores.Targets.Create(e.target))
	sender := &model.SenderProfile{Name: "IT", SMTPHost: "smtp.corp.test", SMTPPort: 25, SMTPUsername: "u", SMTPPassword: "p", FromAddress: "it@corp.test"}
	must(e.stores.Catalog.CreateSenderProfile(sender))
	tpl := &model.EmailTemplate{Name: "t", Subject: "Hi {first_name}", HTMLContent: `<html><body><a href="{{PHISHLET_URL}}">open</a></body></html>`}
	must(e.stores.Catalog.CreateEmailTemplate(tpl))
	e.phishlet = &model.Phishlet{Handle: "c0ffee", Name: "Portal", IsActive: true, CaptureCredentials: true, CaptureOtherData: true,
		HTML: `<html><body><form><input name="user"><button>Go</button></form></body></html>`, FormFields: []model.FormField{}}
	must(e.stores.Phishlets.Create(e.phishlet))
	e.campaign = &model.Campaign{Name: "B", SenderProfileID: sender.ID, EmailTemplateID: tpl.ID, PhishletID: intPtr(e.phishlet.ID),
		TargetType: model.TargetTypeIndividual, TargetIndividuals: []int{e.target.ID}, IsActive: true}
	must(e.stores.Campaigns.Create(e.campaign))

	links := token.Links{BaseURL: publicURL, Prefix: "/api/v1"}

	tracker := &service.TrackerService{ResultRepo: e.stores.Results, EventRepo: e.stores.Events}
	dispatcher := &service.Dispatcher{
		CampaignRepo: e.stores.Campaigns, ResultRepo: e.stores.Results, TargetRepo: e.stores.Targets,
		CatalogRepo: e.stores.Catalog, PhishletRepo: e.stores.Phishlets, EventRepo: e.stores.Events,
		Mailer: e.outbox, Attachments: &mailer.FileStore{}, Links: links,
	}
	q := queue.NewInMemoryQueue()
	service.NewWorker(dispatcher, 0).Start(q, "campaign_dispatch")

	e.srv = httptest.NewServer(handler.NewRouter("/api/v1", handler.Controllers{
		Campaigns: &controller.CampaignController{CampaignService: &service.CampaignService{
			CampaignRepo: e.stores.Campaigns, ResultRepo: e.stores.Results, TargetRepo: e.stores.Targets,
			Dispatcher: dispatcher, Queue: q, Topic: "campaign_dispatch",
		}},
		Phishlets: &controller.PhishletController{PhishletService: &service.PhishletService{
			PhishletRepo: e.stores.Phishlets, Fetcher: clone.NewFetcher(5*time.Second, ""), Tracker: tracker, Links: links,
		}},
		Tracker: &controller.TrackerController{Tracker: tracker},
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func decode(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return m
}

func TestFunnelEndToEnd(t *testing.T) {
	e := newEnv(t)
	rcpt := token.Recipient{CampaignID: e.campaign.ID, TargetID: e.target.ID}.String()

	status, body := e.do(t, "POST", "/api/v1/campaigns/send_email", `{"id":1}`)
	if status != http.StatusOK {
		t.Fatalf("send_email: %d %s", status, body)
	}
	if got := decode(t, body)["count"]; got != float64(1) {
		t.Errorf("count = %v", got)
	}
	res, err := e.stores.Results.Get(e.campaign.ID, e.target.ID)
	if err != nil || !res.EmailSent {
		t.Fatalf("expected sent result: %+v %v", res, err)
	}

	// The recipient follows the emailed link.
	html := e.outbox.msgs[0].HTMLBody
	start := strings.Index(html, `href="`) + len(`href="`)
	link := html[start : start+strings.Index(html[start:], `"`)]
	if !strings.HasPrefix(link, publicURL+"/api/v1/phishlets/serve/c0ffee*") {
		t.Fatalf("unexpected link %q", link)
	}
	status, page := e.do(t, "GET", strings.TrimPrefix(link, publicURL), "")
	if status != http.StatusOK || !strings.Contains(page, "__phishCapture") {
		t.Fatalf("serve: %d %s", status, page)
	}

	status, body = e.do(t, "GET", "/api/v1/track/f1/"+rcpt, "")
	if status != http.StatusOK || decode(t, body)["opened_at"] == nil {
		t.Fatalf("open: %d %s", status, body)
	}

	status, body = e.do(t, "POST", "/api/v1/track/f2/"+rcpt, `{"fields":{"user":{"value":"bob"}}}`)
	if status != http.StatusOK {
		t.Fatalf("submit: %d %s", status, body)
	}
	updates := decode(t, body)["updates"].(map[string]interface{})
	if updates["form_submitted"] != true || updates["form_submitted_at"] == nil {
		t.Errorf("unexpected updates: %v", updates)
	}

	res, _ = e.stores.Results.Get(e.campaign.ID, e.target.ID)
	if !res.EmailOpened || !res.LinkClicked || !res.FormSubmitted || !res.CredentialsCaptured {
		t.Errorf("funnel incomplete: %+v", res)
	}
	if len(res.CapturedData) != 1 || !strings.Contains(string(res.CapturedData[0]), `"bob"`) {
		t.Errorf("captured data = %s", res.CapturedData)
	}
	if res.IPAddress != "127.0.0.1" {
		t.Errorf("ip_address should be stored without a port, got %q", res.IPAddress)
	}

	status, body = e.do(t, "GET", "/api/v1/campaigns/1/results", "")
	if status != http.StatusOK || !strings.Contains(body, `"user: bob"`) || !strings.Contains(body, "bob@corp.test") {
		t.Errorf("results: %d %s", status, body)
	}

	// Already mailed: a second send is a no-op that still succeeds.
	status, body = e.do(t, "POST", "/api/v1/campaigns/send_email", `{"id":1}`)
	if status != http.StatusOK || decode(t, body)["skipped"] != float64(1) || len(e.outbox.msgs) != 1 {
		t.Errorf("resend: %d %s", status, body)
	}
}

func TestServeUnknownHandleAndRecipient(t *testing.T) {
	e := newEnv(t)

	status, _ := e.do(t, "GET", "/api/v1/phishlets/serve/nope*1*1", "")
	if status != http.StatusNotFound {
		t.Errorf("unknown handle: %d", status)
	}

	status, page := e.do(t, "GET", "/api/v1/phishlets/serve/c0ffee*9*9", "")
	if status != http.StatusOK || !strings.Contains(page, "__phishCapture") {
		t.Errorf("unknown recipient should still be served: %d", status)
	}
	if _, err := e.stores.Results.Get(9, 9); err == nil {
		t.Errorf("no result should be created")
	}

	// Percent-encoded delimiters decode the same way.
	status, _ = e.do(t, "GET", "/api/v1/phishlets/serve/c0ffee%2A9%2A9", "")
	if status != http.StatusOK {
		t.Errorf("encoded token: %d", status)
	}

	status, _ = e.do(t, "GET", "/api/v1/phishlets/serve/c0ffee*9", "")
	if status != http.StatusBadRequest {
		t.Errorf("malformed token: %d", status)
	}
}

func TestTrackerErrors(t *testing.T) {
	e := newEnv(t)

	for _, tc := range []struct {
		method, path, body string
		want               int
	}{
		{"GET", "/api/v1/track/f1/1", "", 400},
		{"GET", "/api/v1/track/f1/a*b", "", 400},
		{"GET", "/api/v1/track/f1/1*1", "", 404},
		{"POST", "/api/v1/track/f2/1*1", `[1,2]`, 400},
		{"POST", "/api/v1/track/f2/1*1", `null`, 400},
		{"POST", "/api/v1/track/f2/1*1", `{"fields":`, 400},
		{"POST", "/api/v1/track/f2/1*1", `{"fields":{}}`, 404},
		{"POST", "/api/v1/track/f2/x*1", `{}`, 400},
	} {
		status, body := e.do(t, tc.method, tc.path, tc.body)
		if status != tc.want {
			t.Errorf("%s %s %s: expected %d, got %d %s", tc.method, tc.path, tc.body, tc.want, status, body)
			continue
		}
		if got := decode(t, body)["status"]; got != float64(tc.want) {
			t.Errorf("%s %s: body status %v", tc.method, tc.path, got)
		}
	}

	big := `{"x":"` + strings.Repeat("a", controller.MaxSubmitBody) + `"}`
	if status, _ := e.do(t, "POST", "/api/v1/track/f2/1*1", big); status != http.StatusBadRequest {
		t.Errorf("oversized body: %d", status)
	}
}

func TestCampaignRoutes(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, "POST", "/api/v1/campaigns", `{"name":"bad","sender_profile_id":1,"email_template_id":1,"target_type":"group","target_group_id":1}`)
	if status != http.StatusBadRequest {
		t.Errorf("create without payload: %d %s", status, body)
	}

	status, body = e.do(t, "GET", "/api/v1/campaigns?page=1&page_size=10", "")
	if status != http.StatusOK || decode(t, body)["pagination"].(map[string]interface{})["total_count"] != float64(1) {
		t.Errorf("list: %d %s", status, body)
	}

	if status, _ = e.do(t, "GET", "/api/v1/campaigns/42", ""); status != http.StatusNotFound {
		t.Errorf("unknown campaign: %d", status)
	}
	if status, _ = e.do(t, "GET", "/api/v1/campaigns/abc", ""); status != http.StatusBadRequest {
		t.Errorf("bad id: %d", status)
	}
	if status, _ = e.do(t, "POST", "/api/v1/campaigns/1/run", ""); status != http.StatusBadRequest {
		t.Errorf("run from draft: %d", status)
	}
	if status, _ = e.do(t, "POST", "/api/v1/campaigns/send_email", `{}`); status != http.StatusBadRequest {
		t.Errorf("send without id: %d", status)
	}
	if status, _ = e.do(t, "POST", "/api/v1/campaigns/send_email", `{"id":42}`); status != http.StatusNotFound {
		t.Errorf("send unknown: %d", status)
	}

	status, body = e.do(t, "GET", "/api/v1/campaigns/1", "")
	if status != http.StatusOK || decode(t, body)["stats"] == nil {
		t.Errorf("details: %d %s", status, body)
	}

	status, body = e.do(t, "GET", "/api/v1/phishlets/1", "")
	m := decode(t, body)
	if status != http.StatusOK || m["html_content"] != nil || !strings.HasSuffix(m["clone_url"].(string), "/phishlets/serve/c0ffee") {
		t.Errorf("phishlet metadata: %d %s", status, body)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	e := newEnv(t)
	body := `{"name":%q,"sender_profile_id":1,"email_template_id":1,"phishlet_id":1,"target_type":"individual","target_individuals":[1]}`

	status, resp := e.do(t, "POST", "/api/v1/campaigns", fmt.Sprintf(body, "B"))
	if status != http.StatusBadRequest || !strings.Contains(resp, "already exists") {
		t.Errorf("duplicate name: %d %s", status, resp)
	}
	if status, resp = e.do(t, "POST", "/api/v1/campaigns", fmt.Sprintf(body, "C")); status != http.StatusCreated {
		t.Errorf("fresh name: %d %s", status, resp)
	}
}

func TestDeleteCampaignCascades(t *testing.T) {
	e := newEnv(t)
	rcpt := token.Recipient{CampaignID: e.campaign.ID, TargetID: e.target.ID}.String()

	if status, body := e.do(t, "POST", "/api/v1/campaigns/send_email", `{"id":1}`); status != http.StatusOK {
		t.Fatalf("send_email: %d %s", status, body)
	}
	if status, body := e.do(t, "GET", "/api/v1/track/f1/"+rcpt, ""); status != http.StatusOK {
		t.Fatalf("open: %d %s", status, body)
	}

	// The campaign still uses the phishlet.
	if status, _ := e.do(t, "DELETE", "/api/v1/phishlets/1", ""); status != http.StatusConflict {
		t.Errorf("deleting a phishlet in use: %d", status)
	}

	if status, body := e.do(t, "DELETE", "/api/v1/campaigns/1", ""); status != http.StatusNoContent {
		t.Fatalf("delete: %d %s", status, body)
	}
	if results, _ := e.stores.Results.ListByCampaign(1); len(results) != 0 {
		t.Errorf("results survived the campaign: %+v", results)
	}
	if events, _ := e.stores.Events.ListByCampaign(1); len(events) != 0 {
		t.Errorf("events survived the campaign: %d", len(events))
	}
	if status, _ := e.do(t, "GET", "/api/v1/campaigns/1", ""); status != http.StatusNotFound {
		t.Errorf("deleted campaign still readable: %d", status)
	}
	if status, _ := e.do(t, "DELETE", "/api/v1/campaigns/1", ""); status != http.StatusNotFound {
		t.Errorf("second delete: %d", status)
	}
	if status, _ := e.do(t, "GET", "/api/v1/track/f1/"+rcpt, ""); status != http.StatusNotFound {
		t.Errorf("tracking a deleted campaign: %d", status)
	}

	if status, _ := e.do(t, "DELETE", "/api/v1/phishlets/1", ""); status != http.StatusNoContent {
		t.Errorf("unused phishlet delete: %d", status)
	}
	if status, _ := e.do(t, "GET", "/api/v1/phishlets/serve/c0ffee", ""); status != http.StatusNotFound {
		t.Errorf("deleted phishlet still served: %d", status)
	}
}

func TestPhishletRoutes(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, "GET", "/api/v1/phishlets/", "")
	var list []map[string]interface{}
	if err := json.Unmarshal([]byte(body), &list); err != nil || status != http.StatusOK || len(list) != 1 {
		t.Fatalf("list: %d %s", status, body)
	}
	if list[0]["html_content"] != nil || list[0]["clone_url"] == "" {
		t.Errorf("list entry should be metadata only: %v", list[0])
	}

	status, body = e.do(t, "GET", "/api/v1/phishlets/1/content", "")
	if status != http.StatusOK || !strings.Contains(decode(t, body)["html"].(string), `name="user"`) {
		t.Errorf("content: %d %s", status, body)
	}
	if status, _ = e.do(t, "GET", "/api/v1/phishlets/9/content", ""); status != http.StatusNotFound {
		t.Errorf("content of unknown phishlet: %d", status)
	}

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><img src="/logo.png"><form action="/login"><input type="password" name="pw"></form></body></html>`)
	}))
	defer source.Close()

	status, body = e.do(t, "POST", "/api/v1/phishlets/clone-preview", fmt.Sprintf(`{"url":%q}`, source.URL+"/signin"))
	if status != http.StatusOK {
		t.Fatalf("clone-preview: %d %s", status, body)
	}
	preview := decode(t, body)
	if !strings.Contains(preview["html_content"].(string), source.URL+"/logo.png") || len(preview["form_fields"].([]interface{})) != 1 {
		t.Errorf("unexpected preview: %v", preview)
	}
	if list, _ := e.stores.Phishlets.List(); len(list) != 1 {
		t.Errorf("clone-preview must not persist, have %d phishlets", len(list))
	}

	if status, _ = e.do(t, "POST", "/api/v1/phishlets/clone-preview", `{"url":""}`); status != http.StatusBadRequest {
		t.Errorf("clone-preview without url: %d", status)
	}
}
