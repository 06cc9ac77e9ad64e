package service

import (
	"encoding/json"
	"time"

	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
	"github.com/unclebandit/phishsim-backend/internal/token"
)

// Client identifies the browser that produced a signal.
type Client struct {
	IP        string
	UserAgent string
}

// Clock returns the current time at the precision the stores keep, so a
// merge can tell whether its own timestamp won.
func Clock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// TrackerService merges recipient signals into campaign results and keeps
// the event log.
type TrackerService struct {
	ResultRepo repository.ResultRepositoryInterface
	EventRepo  repository.EventRepositoryInterface
	Now        func() time.Time
}

func (s *TrackerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return Clock()
}

func (s *TrackerService) merge(r token.Recipient, m model.Merge, eventData json.RawMessage) (*model.CampaignResult, error) {
	res, err := s.ResultRepo.AtomicMerge(r.CampaignID, r.TargetID, m)
	if err != nil {
		return nil, err
	}

	event := &model.EmailEvent{
		CampaignID: r.CampaignID,
		TargetID:   r.TargetID,
		EventType:  m.Signal,
		EventData:  eventData,
		IPAddress:  m.IPAddress,
		UserAgent:  m.UserAgent,
		Timestamp:  m.At,
	}
	if err := s.EventRepo.Record(event); err != nil {
		logger.WithFields(logger.Fields{
			"campaign_id": r.CampaignID,
			"target_id":   r.TargetID,
			"event":       m.Signal,
		}).Warnf("failed to record email event: %v", err)
	}
	return res, nil
}

// TrackOpen records a tracking-pixel load.
func (s *TrackerService) TrackOpen(r token.Recipient, c Client) (*model.CampaignResult, error) {
	return s.merge(r, model.Merge{Signal: model.SignalOpened, At: s.now(), IPAddress: c.IP, UserAgent: c.UserAgent}, nil)
}

// TrackClick records a tracked page visit. It also marks the message opened.
func (s *TrackerService) TrackClick(r token.Recipient, c Client) (*model.CampaignResult, error) {
	return s.merge(r, model.Merge{Signal: model.SignalClicked, At: s.now(), IPAddress: c.IP, UserAgent: c.UserAgent}, nil)
}

// SubmitOutcome reports what a submission changed.
type SubmitOutcome struct {
	Result  *model.CampaignResult
	Updates map[string]interface{}
}

// TrackSubmit appends payload to the captured data and marks the funnel
// submitted. form_submitted_at is only reported on the first submission.
func (s *TrackerService) TrackSubmit(r token.Recipient, payload json.RawMessage, c Client) (*SubmitOutcome, error) {
	at := s.now()
	res, err := s.merge(r, model.Merge{
		Signal:    model.SignalSubmitted,
		At:        at,
		Payload:   payload,
		IPAddress: c.IP,
		UserAgent: c.UserAgent,
	}, payload)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"form_submitted":       true,
		"credentials_captured": true,
		"captured_count":       len(res.CapturedData),
	}
	if res.FormSubmittedAt != nil && res.FormSubmittedAt.Equal(at) {
		updates["form_submitted_at"] = at
	}
	return &SubmitOutcome{Result: res, Updates: updates}, nil
}
