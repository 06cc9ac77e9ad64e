package service_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/queue"
	"github.com/unclebandit/phishsim-backend/internal/service"
)

// publishRecorder is a queue that only records what was published.
type publishRecorder struct {
	jobs []queue.DispatchJob
	err  error
}

func (p *publishRecorder) Publish(topic string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	job, err := queue.DecodeDispatch(payload)
	if err != nil {
		return err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *publishRecorder) Subscribe(string, func([]byte) error) error { return nil }

func (f *fixture) campaignService(q queue.Queue) *service.CampaignService {
	return &service.CampaignService{
		CampaignRepo: f.stores.Campaigns,
		ResultRepo:   f.stores.Results,
		TargetRepo:   f.stores.Targets,
		Dispatcher:   f.dispatcher(),
		Queue:        q,
	}
}

func TestCreateCampaignStatus(t *testing.T) {
	f := newFixture(t)
	q := &publishRecorder{}
	svc := f.campaignService(q)

	base := service.CreateCampaignRequest{
		Name: "Phase 2", SenderProfileID: f.sender.ID, EmailTemplateID: f.tpl.ID,
		PhishletID: intPtr(f.phishlet.ID), TargetType: model.TargetTypeGroup, TargetGroupID: intPtr(f.group.ID),
	}

	draft, err := svc.CreateCampaign(base)
	if err != nil || draft.Status != model.CampaignStatusDraft {
		t.Fatalf("expected draft, got %+v %v", draft, err)
	}

	at := time.Date(2026, 12, 1, 8, 0, 0, 0, time.UTC)
	scheduled := base
	scheduled.Name = "Phase 2 scheduled"
	scheduled.ScheduledAt = &at
	c, err := svc.CreateCampaign(scheduled)
	if err != nil || c.Status != model.CampaignStatusScheduled || !c.ScheduledAt.Equal(at) {
		t.Fatalf("expected scheduled, got %+v %v", c, err)
	}

	launch := base
	launch.Name = "Phase 2 launch"
	launch.LaunchNow = true
	c, err = svc.CreateCampaign(launch)
	if err != nil || c.Status != model.CampaignStatusRunning {
		t.Fatalf("expected running, got %+v %v", c, err)
	}
	if len(q.jobs) != 1 || q.jobs[0].CampaignID != c.ID {
		t.Errorf("launch_now should queue exactly one job, got %+v", q.jobs)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.campaignService(&publishRecorder{})

	valid := service.CreateCampaignRequest{
		Name: "x", SenderProfileID: f.sender.ID, EmailTemplateID: f.tpl.ID,
		PhishletID: intPtr(f.phishlet.ID), TargetType: model.TargetTypeIndividual, TargetIndividuals: []int{1},
	}
	for name, mutate := range map[string]func(r *service.CreateCampaignRequest){
		"no name":             func(r *service.CreateCampaignRequest) { r.Name = " " },
		"no sender":           func(r *service.CreateCampaignRequest) { r.SenderProfileID = 0 },
		"phishlet+attachment": func(r *service.CreateCampaignRequest) { r.AttachmentID = intPtr(1) },
		"neither payload":     func(r *service.CreateCampaignRequest) { r.PhishletID = nil },
		"no individuals":      func(r *service.CreateCampaignRequest) { r.TargetIndividuals = nil },
		"group and ids":       func(r *service.CreateCampaignRequest) { r.TargetGroupID = intPtr(1) },
		"unknown target type": func(r *service.CreateCampaignRequest) { r.TargetType = "all" },
	} {
		req := valid
		mutate(&req)
		if _, err := svc.CreateCampaign(req); !appErrors.IsInvalid(err) {
			t.Errorf("%s: expected invalid, got %v", name, err)
		}
	}
}

func TestCreateCampaignRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	svc := f.campaignService(&publishRecorder{})

	req := service.CreateCampaignRequest{
		Name: "  " + f.campaign.Name + " ", SenderProfileID: f.sender.ID, EmailTemplateID: f.tpl.ID,
		PhishletID: intPtr(f.phishlet.ID), TargetType: model.TargetTypeGroup, TargetGroupID: intPtr(f.group.ID),
	}
	if _, err := svc.CreateCampaign(req); !appErrors.IsInvalid(err) {
		t.Fatalf("expected invalid for a taken name, got %v", err)
	}

	if err := svc.DeleteCampaign(f.campaign.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.CreateCampaign(req); err != nil {
		t.Fatalf("name should be free after delete: %v", err)
	}
	if err := svc.DeleteCampaign(f.campaign.ID); !appErrors.IsNotFound(err) {
		t.Errorf("second delete: %v", err)
	}
}

func TestLaunchRunAndPause(t *testing.T) {
	f := newFixture(t)
	q := &publishRecorder{}
	svc := f.campaignService(q)
	id := f.campaign.ID

	if err := svc.Launch(id); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected a queued job")
	}
	if err := svc.Launch(404); !appErrors.IsNotFound(err) {
		t.Errorf("launching unknown campaign: %v", err)
	}

	if err := svc.Run(id); !appErrors.IsInvalid(err) {
		t.Errorf("a draft campaign cannot be run directly, got %v", err)
	}
	f.stores.Campaigns.TransitionStatus(id, []string{model.CampaignStatusDraft}, model.CampaignStatusRunning)
	if err := svc.Pause(id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := svc.Pause(id); !appErrors.IsInvalid(err) {
		t.Errorf("pausing twice should be invalid, got %v", err)
	}
	if err := svc.Launch(id); !appErrors.IsConflict(err) {
		t.Errorf("a paused campaign cannot be launched, got %v", err)
	}
	if _, err := svc.SendNow(context.Background(), id); !appErrors.IsConflict(err) {
		t.Errorf("a paused campaign cannot be sent, got %v", err)
	}
	if err := svc.Run(id); err != nil {
		t.Fatalf("run: %v", err)
	}

	details, err := svc.GetCampaignDetailsWithStats(id)
	if err != nil || details.Status != model.CampaignStatusRunning {
		t.Fatalf("details: %+v %v", details, err)
	}
}

func TestResultsListsFunnelWithCredentials(t *testing.T) {
	f := newFixture(t)
	svc := f.campaignService(&publishRecorder{})

	if _, err := svc.SendNow(context.Background(), f.campaign.ID); err != nil {
		t.Fatalf("send: %v", err)
	}
	bob := f.targets[1]
	payload := json.RawMessage(`{"fields":{"user":{"type":"text","value":"bob"},"pw":{"type":"password","value":"hunter2"},"note":{"value":""},"keep":{"type":"checkbox","value":false}}}`)
	if _, err := f.stores.Results.AtomicMerge(f.campaign.ID, bob.ID, model.Merge{Signal: model.SignalSubmitted, At: service.Clock(), Payload: payload}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	rows, err := svc.Results(f.campaign.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	var bobRow service.TargetResult
	for _, r := range rows {
		if r.TargetID == bob.ID {
			bobRow = r
		}
	}
	if bobRow.TargetEmail != bob.Email || !bobRow.FormSubmitted || !bobRow.LinkClicked {
		t.Errorf("unexpected row: %+v", bobRow)
	}
	want := [][]string{{"user: bob", "pw: hunter2", "keep: false"}}
	if !reflect.DeepEqual(bobRow.Credentials, want) {
		t.Errorf("credentials = %v, want %v", bobRow.Credentials, want)
	}

	details, err := svc.GetCampaignDetailsWithStats(f.campaign.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Stats.Total != 2 || details.Stats.Sent != 2 || details.Stats.Submitted != 1 || details.Stats.Opened != 1 {
		t.Errorf("unexpected stats: %+v", details.Stats)
	}

	if _, err := svc.Results(999); !appErrors.IsNotFound(err) {
		t.Errorf("unknown campaign: %v", err)
	}
}

func TestParseCredentialsToleratesOddPayloads(t *testing.T) {
	got := service.ParseCredentials([]json.RawMessage{
		json.RawMessage(`{"other":1}`),
		json.RawMessage(`{"fields":{"a":{"value":null},"b":{"value":"null"},"c":{"value":3}}}`),
	})
	want := [][]string{{}, {"c: 3"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if service.ParseCredentials(nil) != nil {
		t.Errorf("no payloads should give nil")
	}
}
