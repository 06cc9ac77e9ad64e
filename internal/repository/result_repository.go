package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
)

// ResultRepositoryInterface owns the per (campaign, target) funnel rows.
// All writes are field-level merges; callers never read-modify-write.
type ResultRepositoryInterface interface {
	Get(campaignID, targetID int) (*model.CampaignResult, error)
	ListByCampaign(campaignID int) ([]*model.CampaignResult, error)

	// Upsert creates the row when missing and then applies m.
	Upsert(campaignID, targetID int, m model.Merge) (*model.CampaignResult, error)

	// AtomicMerge applies m to an existing row and returns the merged
	// state. A missing row is a not-found error.
	AtomicMerge(campaignID, targetID int, m model.Merge) (*model.CampaignResult, error)

	Stats(campaignID int) (model.CampaignStats, error)
}

type ResultRepository struct {
	DB *sql.DB
}

var _ ResultRepositoryInterface = (*ResultRepository)(nil)

const resultColumns = `id, campaign_id, target_id, email_sent, email_sent_at, email_opened, email_opened_at,
	link_clicked, link_clicked_at, form_submitted, form_submitted_at, credentials_captured, captured_data,
	ip_address, user_agent, created_at, updated_at`

func scanResult(row rowScanner) (*model.CampaignResult, error) {
	var (
		res      model.CampaignResult
		captured []byte
	)
	err := row.Scan(
		&res.ID, &res.CampaignID, &res.TargetID, &res.EmailSent, &res.EmailSentAt, &res.EmailOpened, &res.EmailOpenedAt,
		&res.LinkClicked, &res.LinkClickedAt, &res.FormSubmitted, &res.FormSubmittedAt, &res.CredentialsCaptured, &captured,
		&res.IPAddress, &res.UserAgent, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.CapturedData = []json.RawMessage{}
	if len(captured) > 0 {
		if err := json.Unmarshal(captured, &res.CapturedData); err != nil {
			return nil, fmt.Errorf("decode captured_data: %w", err)
		}
	}
	return &res, nil
}

func resultNotFound(campaignID, targetID int) error {
	return appErrors.NewNotFound("campaign result", fmt.Sprintf("%d/%d", campaignID, targetID))
}

func (r *ResultRepository) Get(campaignID, targetID int) (*model.CampaignResult, error) {
	res, err := scanResult(r.DB.QueryRow(
		`SELECT `+resultColumns+` FROM campaign_results WHERE campaign_id=$1 AND target_id=$2`,
		campaignID, targetID,
	))
	if err == sql.ErrNoRows {
		return nil, resultNotFound(campaignID, targetID)
	}
	return res, err
}

func (r *ResultRepository) ListByCampaign(campaignID int) ([]*model.CampaignResult, error) {
	rows, err := r.DB.Query(
		`SELECT `+resultColumns+` FROM campaign_results WHERE campaign_id=$1 ORDER BY target_id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*model.CampaignResult{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *ResultRepository) Upsert(campaignID, targetID int, m model.Merge) (*model.CampaignResult, error) {
	_, err := r.DB.Exec(`
		INSERT INTO campaign_results (campaign_id, target_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (campaign_id, target_id) DO NOTHING
	`, campaignID, targetID, m.At)
	if err != nil {
		return nil, err
	}
	return r.AtomicMerge(campaignID, targetID, m)
}

// funnelSets lists, per signal, the flags a merge turns on. Every stage
// keeps the first timestamp it ever received.
var funnelSets = map[model.Signal][]string{
	model.SignalSent:      {"email_sent"},
	model.SignalOpened:    {"email_opened"},
	model.SignalClicked:   {"email_opened", "link_clicked"},
	model.SignalSubmitted: {"email_opened", "link_clicked", "form_submitted"},
}

// mergeQuery builds the single UPDATE that applies m. Placeholders are
// $1 campaign, $2 target, $3 at, $4 ip, $5 user agent and, only when a
// payload is captured, $6.
func mergeQuery(campaignID, targetID int, m model.Merge) (string, []interface{}, error) {
	stages, ok := funnelSets[m.Signal]
	if !ok {
		return "", nil, appErrors.NewInvalid("unknown signal %q", m.Signal)
	}

	sets := []string{}
	for _, col := range stages {
		sets = append(sets, fmt.Sprintf("%[1]s=TRUE, %[1]s_at=COALESCE(%[1]s_at, $3)", col))
	}
	args := []interface{}{campaignID, targetID, m.At, m.IPAddress, m.UserAgent}
	if m.Signal == model.SignalSubmitted {
		sets = append(sets, "credentials_captured=TRUE")
		if len(m.Payload) > 0 {
			args = append(args, string(m.Payload))
			sets = append(sets, "captured_data = captured_data || jsonb_build_array($6::jsonb)")
		}
	}
	sets = append(sets,
		"ip_address=COALESCE(NULLIF(ip_address, ''), $4)",
		"user_agent=COALESCE(NULLIF(user_agent, ''), $5)",
		"updated_at=GREATEST(updated_at, $3)",
	)

	query := `UPDATE campaign_results SET ` + strings.Join(sets, ", ") +
		` WHERE campaign_id=$1 AND target_id=$2 RETURNING ` + resultColumns
	return query, args, nil
}

func (r *ResultRepository) AtomicMerge(campaignID, targetID int, m model.Merge) (*model.CampaignResult, error) {
	query, args, err := mergeQuery(campaignID, targetID, m)
	if err != nil {
		return nil, err
	}

	res, err := scanResult(r.DB.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, resultNotFound(campaignID, targetID)
	}
	return res, err
}

func (r *ResultRepository) Stats(campaignID int) (model.CampaignStats, error) {
	var s model.CampaignStats
	err := r.DB.QueryRow(`
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE email_sent),
			COUNT(*) FILTER (WHERE email_opened),
			COUNT(*) FILTER (WHERE link_clicked),
			COUNT(*) FILTER (WHERE form_submitted),
			COUNT(*) FILTER (WHERE credentials_captured)
		FROM campaign_results WHERE campaign_id=$1
	`, campaignID).Scan(&s.Total, &s.Sent, &s.Opened, &s.Clicked, &s.Submitted, &s.Captured)
	return s, err
}
