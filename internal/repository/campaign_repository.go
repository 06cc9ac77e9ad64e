package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	GetByID(id int) (*model.Campaign, error)
	Create(c *model.Campaign) error

	// Delete removes the campaign together with its results and events.
	Delete(id int) error
	NameExists(name string) (bool, error)

	// TransitionStatus moves the campaign to `to` only when its current
	// status is one of `from`.
	TransitionStatus(campaignID int, from []string, to string) error

	// AcquireDispatch takes the per-campaign send lease and marks the
	// campaign running. A lease older than staleBefore is considered
	// abandoned and may be taken over.
	AcquireDispatch(campaignID int, staleBefore time.Time) error
	ReleaseDispatch(campaignID int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)

const campaignColumns = `id, name, description, sender_profile_id, email_template_id, phishlet_id,
	attachment_id, target_type, target_group_id, target_individuals, status, is_active,
	scheduled_at, dispatch_started_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c   model.Campaign
		ids pq.Int64Array
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.SenderProfileID, &c.EmailTemplateID, &c.PhishletID,
		&c.AttachmentID, &c.TargetType, &c.TargetGroupID, &ids, &c.Status, &c.IsActive,
		&c.ScheduledAt, &c.DispatchStartedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.TargetIndividuals = fromInt64s(ids)
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	query := `
		INSERT INTO campaigns (name, description, sender_profile_id, email_template_id, phishlet_id,
			attachment_id, target_type, target_group_id, target_individuals, status, is_active, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`
	err := r.DB.QueryRow(query,
		c.Name, c.Description, c.SenderProfileID, c.EmailTemplateID, c.PhishletID,
		c.AttachmentID, c.TargetType, c.TargetGroupID, toInt64s(c.TargetIndividuals), c.Status, c.IsActive, c.ScheduledAt,
	).Scan(&c.ID, &c.CreatedAt)
	return missingReference(err, "campaign")
}

// Delete relies on ON DELETE CASCADE for campaign_results and email_events.
func (r *CampaignRepository) Delete(id int) error {
	res, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, appErrors.NewCampaignNotFound(id))
}

func (r *CampaignRepository) NameExists(name string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(`SELECT EXISTS (SELECT 1 FROM campaigns WHERE name=$1)`, name).Scan(&exists)
	return exists, err
}

func (r *CampaignRepository) TransitionStatus(campaignID int, from []string, to string) error {
	res, err := r.DB.Exec(
		`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)`,
		to, campaignID, pq.Array(from),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}

	c, err := r.GetByID(campaignID)
	if err != nil {
		return err
	}
	return appErrors.NewInvalid("campaign %d cannot move from %s to %s", campaignID, c.Status, to)
}

// acquireDispatchQuery takes the lease only when the campaign is
// dispatchable and nobody holds a fresh lease.
const acquireDispatchQuery = `
		UPDATE campaigns
		SET dispatch_started_at=NOW(), status=$2, updated_at=NOW()
		WHERE id=$1
		  AND status = ANY($3)
		  AND (dispatch_started_at IS NULL OR dispatch_started_at < $4)
	`

func (r *CampaignRepository) AcquireDispatch(campaignID int, staleBefore time.Time) error {
	res, err := r.DB.Exec(acquireDispatchQuery, campaignID, model.CampaignStatusRunning, pq.Array(model.DispatchableStatuses), staleBefore)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}

	c, err := r.GetByID(campaignID)
	if err != nil {
		return err
	}
	if !c.Dispatchable() {
		return appErrors.NewConflict("campaign %d cannot be sent in status %s", campaignID, c.Status)
	}
	return appErrors.NewConflict("campaign %d is already being dispatched", campaignID)
}

func (r *CampaignRepository) ReleaseDispatch(campaignID int) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET dispatch_started_at=NULL, updated_at=NOW() WHERE id=$1`, campaignID)
	return err
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	c, err := scanCampaign(r.DB.QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func toInt64s(ids []int) pq.Int64Array {
	if ids == nil {
		return nil
	}
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func fromInt64s(ids pq.Int64Array) []int {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
