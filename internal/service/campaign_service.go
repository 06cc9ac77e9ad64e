// internal/service/campaign_service.go
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/queue"
	"github.com/unclebandit/phishsim-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ResultRepo   repository.ResultRepositoryInterface
	TargetRepo   repository.TargetRepositoryInterface
	Dispatcher   CampaignDispatcher
	Queue        queue.Queue
	Topic        string
}

type CreateCampaignRequest struct {
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	SenderProfileID   int        `json:"sender_profile_id"`
	EmailTemplateID   int        `json:"email_template_id"`
	PhishletID        *int       `json:"phishlet_id"`
	AttachmentID      *int       `json:"attachment_id"`
	TargetType        string     `json:"target_type"`
	TargetGroupID     *int       `json:"target_group_id"`
	TargetIndividuals []int      `json:"target_individuals"`
	LaunchNow         bool       `json:"launch_now"`
	ScheduledAt       *time.Time `json:"scheduled_at"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats model.CampaignStats `json:"stats"`
}

// TargetResult is one row of the results listing. Credentials holds one
// "key: value" list per captured submission.
type TargetResult struct {
	ID            int        `json:"id"`
	TargetID      int        `json:"target_id"`
	TargetEmail   string     `json:"target_email,omitempty"`
	EmailSent     bool       `json:"email_sent"`
	EmailOpened   bool       `json:"email_opened"`
	LinkClicked   bool       `json:"link_clicked"`
	FormSubmitted bool       `json:"form_submitted"`
	Credentials   [][]string `json:"credentials,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

func (s *CampaignService) topic() string {
	if s.Topic == "" {
		return "campaign_dispatch"
	}
	return s.Topic
}

func (s *CampaignService) CreateCampaign(req CreateCampaignRequest) (*model.Campaign, error) {
	c := &model.Campaign{
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		SenderProfileID:   req.SenderProfileID,
		EmailTemplateID:   req.EmailTemplateID,
		PhishletID:        req.PhishletID,
		AttachmentID:      req.AttachmentID,
		TargetType:        req.TargetType,
		TargetGroupID:     req.TargetGroupID,
		TargetIndividuals: req.TargetIndividuals,
		IsActive:          true,
	}
	if c.Name == "" {
		return nil, appErrors.NewInvalid("name is required")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	exists, err := s.CampaignRepo.NameExists(c.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, appErrors.NewInvalid("A campaign with this name already exists")
	}

	switch {
	case req.LaunchNow:
		c.Status = model.CampaignStatusRunning
	case req.ScheduledAt != nil:
		c.Status = model.CampaignStatusScheduled
		at := req.ScheduledAt.UTC()
		c.ScheduledAt = &at
	default:
		c.Status = model.CampaignStatusDraft
	}

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}

	if req.LaunchNow {
		if err := queue.PublishDispatch(s.Queue, s.topic(), c.ID); err != nil {
			logger.Errorf("⚠️ campaign %d created but dispatch was not queued: %v", c.ID, err)
		}
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// DeleteCampaign removes the campaign with its results and events.
func (s *CampaignService) DeleteCampaign(campaignID int) error {
	if err := s.CampaignRepo.Delete(campaignID); err != nil {
		return err
	}
	logger.Infof("🗑️ campaign %d deleted", campaignID)
	return nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.ResultRepo.Stats(campaignID)
	if err != nil {
		return nil, err
	}
	logger.Debugf("campaign %d stats: %+v", campaignID, stats)

	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// Launch queues a dispatch job. The send itself happens on a worker.
func (s *CampaignService) Launch(campaignID int) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if !c.Dispatchable() {
		return appErrors.NewConflict("campaign %d cannot be launched in status %s", c.ID, c.Status)
	}
	if err := queue.PublishDispatch(s.Queue, s.topic(), campaignID); err != nil {
		return err
	}
	logger.Infof("🚀 campaign %d queued for dispatch", campaignID)
	return nil
}

// SendNow dispatches synchronously and returns the per-target report.
func (s *CampaignService) SendNow(ctx context.Context, campaignID int) (*DispatchReport, error) {
	if campaignID <= 0 {
		return nil, appErrors.NewInvalid("campaign id is required")
	}
	return s.Dispatcher.Dispatch(ctx, campaignID)
}

func (s *CampaignService) Run(campaignID int) error {
	return s.CampaignRepo.TransitionStatus(campaignID,
		[]string{model.CampaignStatusScheduled, model.CampaignStatusPaused}, model.CampaignStatusRunning)
}

func (s *CampaignService) Pause(campaignID int) error {
	return s.CampaignRepo.TransitionStatus(campaignID,
		[]string{model.CampaignStatusRunning}, model.CampaignStatusPaused)
}

func (s *CampaignService) Results(campaignID int) ([]TargetResult, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	rows, err := s.ResultRepo.ListByCampaign(campaignID)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.TargetID)
	}
	emails := map[int]string{}
	if len(ids) > 0 {
		targets, err := s.TargetRepo.GetByIDs(ids)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			emails[t.ID] = t.Email
		}
	}

	out := make([]TargetResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, TargetResult{
			ID:            r.ID,
			TargetID:      r.TargetID,
			TargetEmail:   emails[r.TargetID],
			EmailSent:     r.EmailSent,
			EmailOpened:   r.EmailOpened,
			LinkClicked:   r.LinkClicked,
			FormSubmitted: r.FormSubmitted,
			Credentials:   ParseCredentials(r.CapturedData),
			Timestamp:     r.CreatedAt,
		})
	}
	return out, nil
}

// ParseCredentials flattens captured {"fields": {...}} payloads into
// "key: value" lines, skipping empty values.
func ParseCredentials(captured []json.RawMessage) [][]string {
	if len(captured) == 0 {
		return nil
	}
	out := make([][]string, 0, len(captured))
	for _, raw := range captured {
		creds := []string{}
		gjson.GetBytes(raw, "fields").ForEach(func(key, field gjson.Result) bool {
			v := field.Get("value")
			if !v.Exists() || v.Type == gjson.Null {
				return true
			}
			if s := v.String(); s != "" && s != "null" {
				creds = append(creds, key.String()+": "+s)
			}
			return true
		})
		out = append(out, creds)
	}
	return out
}
