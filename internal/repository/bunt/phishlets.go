package bunt

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/tidwall/buntdb"
	"github.com/tidwall/gjson"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
)

type PhishletRepository struct {
	d *Database
}

var _ repository.PhishletRepositoryInterface = (*PhishletRepository)(nil)

func (r *PhishletRepository) Create(p *model.Phishlet) error {
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		if _, found, err := findPhishletByHandle(tx, p.Handle); err != nil {
			return err
		} else if found {
			return appErrors.NewConflict("phishlet handle %s already exists", p.Handle)
		}

		id, err := nextID(tx, PhishletTable)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		p.ID = id
		p.CreatedAt = now
		p.UpdatedAt = now
		if p.FormFields == nil {
			p.FormFields = []model.FormField{}
		}
		return setJSON(tx, genIndex(PhishletTable, id), p)
	})
}

func (r *PhishletRepository) GetByID(id int) (*model.Phishlet, error) {
	p := &model.Phishlet{}
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		found, err := getJSON(tx, genIndex(PhishletTable, id), p)
		if err != nil {
			return err
		}
		if !found {
			return appErrors.NewNotFound("phishlet", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PhishletRepository) GetByHandle(handle string) (*model.Phishlet, error) {
	var p *model.Phishlet
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		var (
			found bool
			err   error
		)
		p, found, err = findPhishletByHandle(tx, handle)
		if err != nil {
			return err
		}
		if !found {
			return appErrors.NewNotFound("phishlet", handle)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PhishletRepository) List() ([]*model.Phishlet, error) {
	phishlets := []*model.Phishlet{}
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendKeys(PhishletTable+":*", func(key, val string) bool {
			p := &model.Phishlet{}
			if decodeErr = json.Unmarshal([]byte(val), p); decodeErr != nil {
				return false
			}
			phishlets = append(phishlets, p)
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(phishlets, func(i, j int) bool { return phishlets[i].ID > phishlets[j].ID })
	return phishlets, nil
}

// Delete mirrors the Postgres foreign key: a phishlet still referenced by
// a campaign cannot be removed.
func (r *PhishletRepository) Delete(id int) error {
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		key := genIndex(PhishletTable, id)
		if _, err := tx.Get(key); err == buntdb.ErrNotFound {
			return appErrors.NewNotFound("phishlet", id)
		} else if err != nil {
			return err
		}

		inUse := false
		err := tx.Ascend("campaigns_id", func(_, val string) bool {
			inUse = gjson.Get(val, "phishlet_id").Int() == int64(id)
			return !inUse
		})
		if err != nil {
			return err
		}
		if inUse {
			return appErrors.NewConflict("phishlet %d is used by a campaign", id)
		}

		_, err = tx.Delete(key)
		return err
	})
}

func findPhishletByHandle(tx *buntdb.Tx, handle string) (*model.Phishlet, bool, error) {
	var (
		p         *model.Phishlet
		decodeErr error
	)
	err := tx.AscendEqual("phishlets_handle", getPivot(map[string]string{"handle": handle}), func(key, val string) bool {
		candidate := &model.Phishlet{}
		if decodeErr = json.Unmarshal([]byte(val), candidate); decodeErr != nil {
			return false
		}
		if candidate.Handle != handle {
			return true
		}
		p = candidate
		return false
	})
	if err != nil {
		return nil, false, err
	}
	if decodeErr != nil {
		return nil, false, decodeErr
	}
	return p, p != nil, nil
}
