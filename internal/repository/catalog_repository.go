package repository

import (
	"database/sql"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
)

// CatalogRepositoryInterface gives read access to sender profiles, email
// templates and attachments.
type CatalogRepositoryInterface interface {
	GetSenderProfile(id int) (*model.SenderProfile, error)
	GetEmailTemplate(id int) (*model.EmailTemplate, error)
	GetAttachment(id int) (*model.Attachment, error)

	CreateSenderProfile(s *model.SenderProfile) error
	CreateEmailTemplate(t *model.EmailTemplate) error
	CreateAttachment(a *model.Attachment) error
}

type CatalogRepository struct {
	DB *sql.DB
}

var _ CatalogRepositoryInterface = (*CatalogRepository)(nil)

func (r *CatalogRepository) GetSenderProfile(id int) (*model.SenderProfile, error) {
	var s model.SenderProfile
	err := r.DB.QueryRow(`
		SELECT id, name, smtp_host, smtp_port, smtp_username, smtp_password, from_address, from_name, is_active
		FROM sender_profiles WHERE id=$1
	`, id).Scan(&s.ID, &s.Name, &s.SMTPHost, &s.SMTPPort, &s.SMTPUsername, &s.SMTPPassword, &s.FromAddress, &s.FromName, &s.IsActive)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("sender profile", id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *CatalogRepository) GetEmailTemplate(id int) (*model.EmailTemplate, error) {
	var t model.EmailTemplate
	err := r.DB.QueryRow(
		`SELECT id, name, subject, html_content, text_content FROM email_templates WHERE id=$1`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.HTMLContent, &t.TextContent)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("email template", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *CatalogRepository) GetAttachment(id int) (*model.Attachment, error) {
	var a model.Attachment
	err := r.DB.QueryRow(
		`SELECT id, name, file_type, file_path FROM attachments WHERE id=$1`, id,
	).Scan(&a.ID, &a.Name, &a.FileType, &a.FilePath)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("attachment", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *CatalogRepository) CreateSenderProfile(s *model.SenderProfile) error {
	return r.DB.QueryRow(`
		INSERT INTO sender_profiles (name, smtp_host, smtp_port, smtp_username, smtp_password, from_address, from_name, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, s.Name, s.SMTPHost, s.SMTPPort, s.SMTPUsername, s.SMTPPassword, s.FromAddress, s.FromName, s.IsActive).Scan(&s.ID)
}

func (r *CatalogRepository) CreateEmailTemplate(t *model.EmailTemplate) error {
	return r.DB.QueryRow(`
		INSERT INTO email_templates (name, subject, html_content, text_content)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, t.Name, t.Subject, t.HTMLContent, t.TextContent).Scan(&t.ID)
}

func (r *CatalogRepository) CreateAttachment(a *model.Attachment) error {
	return r.DB.QueryRow(
		`INSERT INTO attachments (name, file_type, file_path) VALUES ($1, $2, $3) RETURNING id`,
		a.Name, a.FileType, a.FilePath,
	).Scan(&a.ID)
}
