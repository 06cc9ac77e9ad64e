package bunt

import (
	"github.com/tidwall/buntdb"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
)

// senderRecord and attachmentRecord keep the fields the API hides.
type senderRecord struct {
	*model.SenderProfile
	SMTPPassword string `json:"smtp_password"`
}

type attachmentRecord struct {
	*model.Attachment
	FilePath string `json:"file_path"`
}

type CatalogRepository struct {
	d *Database
}

var _ repository.CatalogRepositoryInterface = (*CatalogRepository)(nil)

func (r *CatalogRepository) get(table string, id int, v interface{}, resource string) error {
	return r.d.db.View(func(tx *buntdb.Tx) error {
		found, err := getJSON(tx, genIndex(table, id), v)
		if err != nil {
			return err
		}
		if !found {
			return appErrors.NewNotFound(resource, id)
		}
		return nil
	})
}

func (r *CatalogRepository) create(table string, assign func(id int) interface{}) error {
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextID(tx, table)
		if err != nil {
			return err
		}
		return setJSON(tx, genIndex(table, id), assign(id))
	})
}

func (r *CatalogRepository) GetSenderProfile(id int) (*model.SenderProfile, error) {
	rec := senderRecord{SenderProfile: &model.SenderProfile{}}
	if err := r.get(SenderTable, id, &rec, "sender profile"); err != nil {
		return nil, err
	}
	rec.SenderProfile.SMTPPassword = rec.SMTPPassword
	return rec.SenderProfile, nil
}

func (r *CatalogRepository) GetEmailTemplate(id int) (*model.EmailTemplate, error) {
	t := &model.EmailTemplate{}
	if err := r.get(TemplateTable, id, t, "email template"); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *CatalogRepository) GetAttachment(id int) (*model.Attachment, error) {
	rec := attachmentRecord{Attachment: &model.Attachment{}}
	if err := r.get(AttachmentTable, id, &rec, "attachment"); err != nil {
		return nil, err
	}
	rec.Attachment.FilePath = rec.FilePath
	return rec.Attachment, nil
}

func (r *CatalogRepository) CreateSenderProfile(s *model.SenderProfile) error {
	return r.create(SenderTable, func(id int) interface{} {
		s.ID = id
		return senderRecord{SenderProfile: s, SMTPPassword: s.SMTPPassword}
	})
}

func (r *CatalogRepository) CreateEmailTemplate(t *model.EmailTemplate) error {
	return r.create(TemplateTable, func(id int) interface{} {
		t.ID = id
		return t
	})
}

func (r *CatalogRepository) CreateAttachment(a *model.Attachment) error {
	return r.create(AttachmentTable, func(id int) interface{} {
		a.ID = id
		return attachmentRecord{Attachment: a, FilePath: a.FilePath}
	})
}
