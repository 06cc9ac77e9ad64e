package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
)

type PhishletRepositoryInterface interface {
	Create(p *model.Phishlet) error
	GetByID(id int) (*model.Phishlet, error)
	GetByHandle(handle string) (*model.Phishlet, error)
	List() ([]*model.Phishlet, error)

	// Delete refuses with a conflict while a campaign still uses the page.
	Delete(id int) error
}

type PhishletRepository struct {
	DB *sql.DB
}

var _ PhishletRepositoryInterface = (*PhishletRepository)(nil)

const phishletColumns = `id, handle, name, description, original_url, html_content, form_fields,
	capture_credentials, capture_other_data, redirect_url, trigger_rules, is_active, created_at, updated_at`

func scanPhishlet(row rowScanner) (*model.Phishlet, error) {
	var (
		p                   model.Phishlet
		fields, triggerRule []byte
	)
	err := row.Scan(
		&p.ID, &p.Handle, &p.Name, &p.Description, &p.OriginalURL, &p.HTML, &fields,
		&p.CaptureCredentials, &p.CaptureOtherData, &p.RedirectURL, &triggerRule, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &p.FormFields); err != nil {
			return nil, err
		}
	}
	if len(triggerRule) > 0 {
		if err := json.Unmarshal(triggerRule, &p.TriggerRules); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *PhishletRepository) Create(p *model.Phishlet) error {
	fields, err := json.Marshal(nonNilFields(p.FormFields))
	if err != nil {
		return err
	}
	rules, err := json.Marshal(nonNilRules(p.TriggerRules))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO phishlets (handle, name, description, original_url, html_content, form_fields,
			capture_credentials, capture_other_data, redirect_url, trigger_rules, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err = r.DB.QueryRow(query,
		p.Handle, p.Name, p.Description, p.OriginalURL, p.HTML, fields,
		p.CaptureCredentials, p.CaptureOtherData, p.RedirectURL, rules, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return appErrors.NewConflict("phishlet handle %s already exists", p.Handle)
	}
	return err
}

func (r *PhishletRepository) GetByID(id int) (*model.Phishlet, error) {
	p, err := scanPhishlet(r.DB.QueryRow(`SELECT `+phishletColumns+` FROM phishlets WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("phishlet", id)
	}
	return p, err
}

func (r *PhishletRepository) GetByHandle(handle string) (*model.Phishlet, error) {
	p, err := scanPhishlet(r.DB.QueryRow(`SELECT `+phishletColumns+` FROM phishlets WHERE handle=$1`, handle))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("phishlet", handle)
	}
	return p, err
}

func (r *PhishletRepository) List() ([]*model.Phishlet, error) {
	rows, err := r.DB.Query(`SELECT ` + phishletColumns + ` FROM phishlets ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	phishlets := []*model.Phishlet{}
	for rows.Next() {
		p, err := scanPhishlet(rows)
		if err != nil {
			return nil, err
		}
		phishlets = append(phishlets, p)
	}
	return phishlets, rows.Err()
}

func (r *PhishletRepository) Delete(id int) error {
	res, err := r.DB.Exec(`DELETE FROM phishlets WHERE id=$1`, id)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
		return appErrors.NewConflict("phishlet %d is used by a campaign", id)
	}
	if err != nil {
		return err
	}
	return expectRow(res, appErrors.NewNotFound("phishlet", id))
}

func nonNilFields(f []model.FormField) []model.FormField {
	if f == nil {
		return []model.FormField{}
	}
	return f
}

func nonNilRules(r []model.TriggerRule) []model.TriggerRule {
	if r == nil {
		return []model.TriggerRule{}
	}
	return r
}
