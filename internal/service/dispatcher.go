package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/mailer"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
	"github.com/unclebandit/phishsim-backend/internal/token"
)

// TargetError is one recipient the dispatcher could not mail.
type TargetError struct {
	TargetID int    `json:"target_id"`
	Email    string `json:"email"`
	Error    string `json:"error"`
}

// DispatchReport summarises one dispatch run.
type DispatchReport struct {
	CampaignID int           `json:"campaign_id"`
	Targets    int           `json:"targets"`
	Sent       int           `json:"count"`
	Skipped    int           `json:"skipped"`
	Errors     []TargetError `json:"errors,omitempty"`
}

// CampaignDispatcher is what the API and the worker need from Dispatcher.
type CampaignDispatcher interface {
	Dispatch(ctx context.Context, campaignID int) (*DispatchReport, error)
}

// Dispatcher sends a campaign's emails, one target at a time.
type Dispatcher struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ResultRepo   repository.ResultRepositoryInterface
	TargetRepo   repository.TargetRepositoryInterface
	CatalogRepo  repository.CatalogRepositoryInterface
	PhishletRepo repository.PhishletRepositoryInterface
	EventRepo    repository.EventRepositoryInterface

	Mailer      mailer.Mailer
	Attachments mailer.AttachmentStore
	Links       token.Links

	// Limiter paces sends; nil sends as fast as the mailer allows.
	Limiter       *rate.Limiter
	MailerTimeout time.Duration
	Lease         time.Duration
	Now           func() time.Time
}

var _ CampaignDispatcher = (*Dispatcher)(nil)

// NewLimiter turns SEND_RATE (messages per second, 0 = unlimited) into a
// limiter.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return Clock()
}

// dispatchPlan is everything resolved before the first send.
type dispatchPlan struct {
	campaign   *model.Campaign
	sender     *model.SenderProfile
	template   *model.EmailTemplate
	phishlet   *model.Phishlet
	attachment *mailer.Attachment
	targets    []*model.Target
}

func (d *Dispatcher) plan(ctx context.Context, campaignID int) (*dispatchPlan, error) {
	c, err := d.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	p := &dispatchPlan{campaign: c}

	if p.sender, err = d.CatalogRepo.GetSenderProfile(c.SenderProfileID); err != nil {
		return nil, err
	}
	if p.template, err = d.CatalogRepo.GetEmailTemplate(c.EmailTemplateID); err != nil {
		return nil, err
	}

	hasPhishlet := c.PhishletID != nil && *c.PhishletID > 0
	hasAttachment := c.AttachmentID != nil && *c.AttachmentID > 0
	switch {
	case hasPhishlet && hasAttachment, !hasPhishlet && !hasAttachment:
		return nil, appErrors.NewInvalid("campaign %d must have exactly one of phishlet or attachment", c.ID)
	case hasPhishlet:
		if p.phishlet, err = d.PhishletRepo.GetByID(*c.PhishletID); err != nil {
			return nil, err
		}
		if !p.phishlet.Servable() {
			return nil, appErrors.NewInvalid("phishlet %d is inactive or has no content", p.phishlet.ID)
		}
	default:
		a, err := d.CatalogRepo.GetAttachment(*c.AttachmentID)
		if err != nil {
			return nil, err
		}
		if p.attachment, err = d.Attachments.Load(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to read attachment file: %w", err)
		}
	}

	if p.targets, err = d.resolveTargets(c); err != nil {
		return nil, err
	}
	if len(p.targets) == 0 {
		return nil, appErrors.NewInvalid("campaign %d has no active targets", c.ID)
	}

	if !p.sender.HasCredentials() {
		return nil, appErrors.NewInvalid("sender profile %d has no SMTP username or password", p.sender.ID)
	}
	if !c.Dispatchable() {
		return nil, appErrors.NewConflict("campaign %d cannot be sent in status %s", c.ID, c.Status)
	}
	return p, nil
}

func (d *Dispatcher) resolveTargets(c *model.Campaign) ([]*model.Target, error) {
	if err := c.ValidateTargets(); err != nil {
		return nil, err
	}

	var (
		all []*model.Target
		err error
	)
	if c.TargetType == model.TargetTypeGroup {
		if _, err = d.TargetRepo.GetGroup(*c.TargetGroupID); err != nil {
			return nil, err
		}
		all, err = d.TargetRepo.ListByGroup(*c.TargetGroupID)
	} else {
		all, err = d.TargetRepo.GetByIDs(c.TargetIndividuals)
	}
	if err != nil {
		return nil, err
	}

	active := make([]*model.Target, 0, len(all))
	for _, t := range all {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

// Dispatch sends the campaign to every active target that has not been
// mailed yet. Per-target failures are collected in the report and do not
// stop the batch; the returned error is only for failures before sending.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID int) (*DispatchReport, error) {
	p, err := d.plan(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if err := d.CampaignRepo.AcquireDispatch(campaignID, d.now().Add(-d.Lease)); err != nil {
		return nil, err
	}
	defer func() {
		if err := d.CampaignRepo.ReleaseDispatch(campaignID); err != nil {
			logger.Errorf("failed to release dispatch lease for campaign %d: %v", campaignID, err)
		}
	}()

	report := &DispatchReport{CampaignID: campaignID, Targets: len(p.targets)}
	log := logger.WithFields(logger.Fields{"campaign_id": campaignID})
	log.Infof("📨 dispatching to %d targets", len(p.targets))

	for _, t := range p.targets {
		if existing, err := d.ResultRepo.Get(campaignID, t.ID); err == nil && existing.EmailSent {
			report.Skipped++
			continue
		} else if err != nil && !appErrors.IsNotFound(err) {
			report.Errors = append(report.Errors, TargetError{TargetID: t.ID, Email: t.Email, Error: err.Error()})
			continue
		}

		if err := d.sendOne(ctx, p, t); err != nil {
			log.WithField("target_id", t.ID).Warnf("⚠️ send failed: %v", err)
			report.Errors = append(report.Errors, TargetError{TargetID: t.ID, Email: t.Email, Error: err.Error()})
			continue
		}
		report.Sent++
	}

	log.WithFields(logger.Fields{
		"sent":    report.Sent,
		"skipped": report.Skipped,
		"failed":  len(report.Errors),
	}).Info("✅ dispatch finished")
	return report, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, p *dispatchPlan, t *model.Target) error {
	c := p.campaign
	recipient := token.Recipient{CampaignID: c.ID, TargetID: t.ID}

	var phishletURL string
	if p.phishlet != nil {
		tok, err := token.EncodeTracked(p.phishlet.Handle, c.ID, t.ID)
		if err != nil {
			return err
		}
		phishletURL = d.Links.ServeURL(tok)
	}
	email := RenderEmail(p.template, t, phishletURL, d.Links.OpenPixelURL(recipient))

	msg := &mailer.Message{
		SMTPHost:     p.sender.SMTPHost,
		SMTPPort:     p.sender.SMTPPort,
		SMTPUsername: p.sender.SMTPUsername,
		SMTPPassword: p.sender.SMTPPassword,
		From:         p.sender.FromAddress,
		FromName:     p.sender.FromName,
		To:           t.Email,
		Subject:      email.Subject,
		PlainBody:    email.Plain,
		HTMLBody:     email.HTML,
	}
	if p.attachment != nil {
		msg.Attachments = []mailer.Attachment{*p.attachment}
	}

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.mailerTimeout())
	err := d.Mailer.Send(sendCtx, msg)
	cancel()
	if err != nil {
		return err
	}

	at := d.now()
	if _, err := d.ResultRepo.Upsert(c.ID, t.ID, model.Merge{Signal: model.SignalSent, At: at}); err != nil {
		return fmt.Errorf("sent but not recorded: %w", err)
	}

	data, _ := json.Marshal(map[string]string{
		"subject": email.Subject,
		"from":    p.sender.FromAddress,
		"to":      t.Email,
	})
	if err := d.EventRepo.Record(&model.EmailEvent{
		CampaignID: c.ID,
		TargetID:   t.ID,
		EventType:  model.SignalSent,
		EventData:  data,
		Timestamp:  at,
	}); err != nil {
		logger.Warnf("failed to record sent event for target %d: %v", t.ID, err)
	}
	return nil
}

func (d *Dispatcher) mailerTimeout() time.Duration {
	if d.MailerTimeout > 0 {
		return d.MailerTimeout
	}
	return 60 * time.Second
}
