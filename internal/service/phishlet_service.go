package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/unclebandit/phishsim-backend/internal/clone"
	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/instrument"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
	"github.com/unclebandit/phishsim-backend/internal/token"
)

type PhishletService struct {
	PhishletRepo repository.PhishletRepositoryInterface
	Fetcher      clone.FetcherInterface
	Tracker      *TrackerService
	Links        token.Links
}

// PhishletOptions are the instrumentation settings shared by clone and save.
// Nil capture flags default to true.
type PhishletOptions struct {
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	OriginalURL        string              `json:"original_url"`
	CaptureCredentials *bool               `json:"capture_credentials"`
	CaptureOtherData   *bool               `json:"capture_other_data"`
	RedirectURL        string              `json:"redirect_url"`
	TriggerRules       []model.TriggerRule `json:"trigger_rules"`
}

type SavePhishletRequest struct {
	PhishletOptions
	HTML string `json:"html_content"`
}

type PreviewResult struct {
	HTML        string            `json:"html_content"`
	FormFields  []model.FormField `json:"form_fields"`
	OriginalURL string            `json:"original_url,omitempty"`
}

// PhishletContent is the stored page body of one phishlet.
type PhishletContent struct {
	HTML       string            `json:"html"`
	FormFields []model.FormField `json:"form_fields"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (o PhishletOptions) build(html string, fields []model.FormField) (*model.Phishlet, error) {
	name := strings.TrimSpace(o.Name)
	if name == "" {
		return nil, appErrors.NewInvalid("name is required")
	}
	if err := instrument.ValidateTriggers(o.TriggerRules); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []model.FormField{}
	}
	return &model.Phishlet{
		Handle:             uuid.NewString(),
		Name:               name,
		Description:        o.Description,
		OriginalURL:        o.OriginalURL,
		HTML:               html,
		FormFields:         fields,
		CaptureCredentials: boolOr(o.CaptureCredentials, true),
		CaptureOtherData:   boolOr(o.CaptureOtherData, true),
		RedirectURL:        o.RedirectURL,
		TriggerRules:       o.TriggerRules,
		IsActive:           true,
	}, nil
}

// Clone fetches OriginalURL and stores the rewritten page as a new phishlet.
// Nothing is persisted when the fetch fails.
func (s *PhishletService) Clone(ctx context.Context, opts PhishletOptions) (*model.Phishlet, error) {
	if strings.TrimSpace(opts.OriginalURL) == "" {
		return nil, appErrors.NewInvalid("original_url is required")
	}
	if strings.TrimSpace(opts.Name) == "" {
		return nil, appErrors.NewInvalid("name is required")
	}

	page, err := s.Fetcher.Fetch(ctx, opts.OriginalURL)
	if err != nil {
		return nil, err
	}

	p, err := opts.build(page.HTML, page.Fields)
	if err != nil {
		return nil, err
	}
	if err := s.PhishletRepo.Create(p); err != nil {
		return nil, err
	}
	logger.WithFields(logger.Fields{"phishlet_id": p.ID, "handle": p.Handle}).Infof("🧬 cloned %s", opts.OriginalURL)
	return p, nil
}

// ClonePreview fetches rawURL and returns the rewritten page without
// storing anything.
func (s *PhishletService) ClonePreview(ctx context.Context, rawURL string) (*PreviewResult, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, appErrors.NewInvalid("url is required")
	}
	page, err := s.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	fields := page.Fields
	if fields == nil {
		fields = []model.FormField{}
	}
	return &PreviewResult{HTML: page.HTML, FormFields: fields, OriginalURL: page.OriginalURL}, nil
}

// Preview rewrites and inspects html without storing it.
func (s *PhishletService) Preview(html, originalURL string) (*PreviewResult, error) {
	rewritten, err := rewriteIfBased(html, originalURL)
	if err != nil {
		return nil, err
	}
	fields, err := clone.ExtractFields(rewritten)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []model.FormField{}
	}
	return &PreviewResult{HTML: rewritten, FormFields: fields}, nil
}

// Save stores uploaded or hand-edited HTML as a new phishlet.
func (s *PhishletService) Save(req SavePhishletRequest) (*model.Phishlet, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return nil, appErrors.NewInvalid("html_content is required")
	}
	preview, err := s.Preview(req.HTML, req.OriginalURL)
	if err != nil {
		return nil, err
	}
	p, err := req.build(preview.HTML, preview.FormFields)
	if err != nil {
		return nil, err
	}
	if err := s.PhishletRepo.Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

func rewriteIfBased(html, originalURL string) (string, error) {
	if strings.TrimSpace(originalURL) == "" {
		return html, nil
	}
	return clone.Rewrite(html, originalURL)
}

// Get returns phishlet metadata without the page body.
func (s *PhishletService) Get(id int) (*model.Phishlet, error) {
	p, err := s.PhishletRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	meta := *p
	meta.HTML = ""
	return &meta, nil
}

// List returns every phishlet, newest first, without page bodies.
func (s *PhishletService) List() ([]*model.Phishlet, error) {
	phishlets, err := s.PhishletRepo.List()
	if err != nil {
		return nil, err
	}
	for i, p := range phishlets {
		meta := *p
		meta.HTML = ""
		phishlets[i] = &meta
	}
	return phishlets, nil
}

func (s *PhishletService) Content(id int) (*PhishletContent, error) {
	p, err := s.PhishletRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p.HTML == "" {
		return nil, appErrors.NewNotFound("phishlet content", id)
	}
	fields := p.FormFields
	if fields == nil {
		fields = []model.FormField{}
	}
	return &PhishletContent{HTML: p.HTML, FormFields: fields}, nil
}

func (s *PhishletService) Delete(id int) error {
	if err := s.PhishletRepo.Delete(id); err != nil {
		return err
	}
	logger.WithFields(logger.Fields{"phishlet_id": id}).Info("🗑️ phishlet deleted")
	return nil
}

// CloneURL is the untracked public link to p.
func (s *PhishletService) CloneURL(p *model.Phishlet) string {
	tok, err := token.Encode(p.Handle)
	if err != nil {
		return ""
	}
	return s.Links.ServeURL(tok)
}

// Serve resolves a serve token to the HTML to return. Tracked tokens record
// a click (best effort) and get the capture script; bare tokens get the
// stored page as is.
func (s *PhishletService) Serve(raw string, c Client) (string, error) {
	tok, err := token.Decode(raw)
	if err != nil {
		return "", err
	}

	p, err := s.PhishletRepo.GetByHandle(tok.Handle)
	if err != nil {
		return "", err
	}
	if !p.Servable() {
		return "", appErrors.NewNotFound("phishlet", tok.Handle)
	}
	if !tok.Tracked() {
		return p.HTML, nil
	}

	r := tok.Recipient()
	if _, err := s.Tracker.TrackClick(r, c); err != nil {
		entry := logger.WithFields(logger.Fields{"campaign_id": r.CampaignID, "target_id": r.TargetID})
		if appErrors.IsNotFound(err) {
			entry.Debug("click for unknown recipient ignored")
		} else {
			entry.Warnf("failed to record click: %v", err)
		}
	}

	return instrument.Inject(p.HTML, instrument.Options{
		SubmitURL:          s.Links.SubmitURL(r),
		RedirectURL:        p.RedirectURL,
		Triggers:           p.TriggerRules,
		CaptureCredentials: p.CaptureCredentials,
		CaptureOtherData:   p.CaptureOtherData,
	})
}
