package service_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/mailer"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
	"github.com/unclebandit/phishsim-backend/internal/repository/bunt"
	"github.com/unclebandit/phishsim-backend/internal/service"
	"github.com/unclebandit/phishsim-backend/internal/token"
)

func init() {
	logger.SetOutput(io.Discard)
}

var testLinks = token.Links{BaseURL: "http://phish.test", Prefix: "/api/v1"}

var testClient = service.Client{IP: "203.0.113.9", UserAgent: "Mozilla/5.0"}

func intPtr(v int) *int { return &v }

// recordingMailer keeps every message and fails for addresses in failFor.
type recordingMailer struct {
	mu      sync.Mutex
	sent    []*mailer.Message
	failFor map[string]error
}

func (m *recordingMailer) Send(ctx context.Context, msg *mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[msg.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// fixture is a seeded embedded store: one group with two active targets
// and one inactive, a sender, a template, an active phishlet and a draft
// group campaign pointing at all of it.
type fixture struct {
	stores   *repository.Stores
	mail     *recordingMailer
	group    *model.Group
	targets  []*model.Target
	sender   *model.SenderProfile
	tpl      *model.EmailTemplate
	phishlet *model.Phishlet
	campaign *model.Campaign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := bunt.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{stores: db.Stores(), mail: &recordingMailer{}}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	f.group = &model.Group{Name: "Finance", IsActive: true}
	must(f.stores.Targets.CreateGroup(f.group))
	for _, tg := range []*model.Target{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@corp.test", Position: "CFO", IsActive: true},
		{FirstName: "Bob", LastName: "Tables", Email: "bob@corp.test", Position: "Clerk", IsActive: true},
		{FirstName: "Old", LastName: "Timer", Email: "old@corp.test", IsActive: false},
	} {
		tg.GroupID = intPtr(f.group.ID)
		must(f.stores.Targets.Create(tg))
		f.targets = append(f.targets, tg)
	}

	f.sender = &model.SenderProfile{Name: "IT", SMTPHost: "smtp.corp.test", SMTPPort: 587,
		SMTPUsername: "it", SMTPPassword: "secret", FromAddress: "it@corp.test", FromName: "IT Desk", IsActive: true}
	must(f.stores.Catalog.CreateSenderProfile(f.sender))

	f.tpl = &model.EmailTemplate{Name: "Reset", Subject: "Action needed, {first_name}",
		HTMLContent: `<html><body><p>Hi {first_name}</p><a href="{{PHISHLET_URL}}">Reset</a></body></html>`,
		TextContent: "Hi {first_name}, reset at {{PHISHLET_URL}}"}
	must(f.stores.Catalog.CreateEmailTemplate(f.tpl))

	f.phishlet = &model.Phishlet{Handle: "5b0c7c3e-login", Name: "Login", OriginalURL: "https://ex.com/login",
		HTML:       `<html><head></head><body><form><input name="user"><input type="password" name="pw"><button>Sign in</button></form></body></html>`,
		FormFields: []model.FormField{}, CaptureCredentials: true, CaptureOtherData: true, IsActive: true}
	must(f.stores.Phishlets.Create(f.phishlet))

	f.campaign = &model.Campaign{Name: "Q3 reset", SenderProfileID: f.sender.ID, EmailTemplateID: f.tpl.ID,
		PhishletID: intPtr(f.phishlet.ID), TargetType: model.TargetTypeGroup, TargetGroupID: intPtr(f.group.ID),
		Status: model.CampaignStatusDraft, IsActive: true}
	must(f.stores.Campaigns.Create(f.campaign))
	return f
}

func (f *fixture) dispatcher() *service.Dispatcher {
	return &service.Dispatcher{
		CampaignRepo: f.stores.Campaigns,
		ResultRepo:   f.stores.Results,
		TargetRepo:   f.stores.Targets,
		CatalogRepo:  f.stores.Catalog,
		PhishletRepo: f.stores.Phishlets,
		EventRepo:    f.stores.Events,
		Mailer:       f.mail,
		Attachments:  &mailer.FileStore{},
		Links:        testLinks,
		Lease:        30 * time.Minute,
	}
}

func (f *fixture) tracker() *service.TrackerService {
	return &service.TrackerService{ResultRepo: f.stores.Results, EventRepo: f.stores.Events}
}
