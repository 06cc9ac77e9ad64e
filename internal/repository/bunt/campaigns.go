package bunt

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/tidwall/buntdb"
	"github.com/tidwall/gjson"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
)

// campaignRecord persists the lease column the API representation hides.
type campaignRecord struct {
	*model.Campaign
	DispatchStartedAt *time.Time `json:"dispatch_started_at,omitempty"`
}

type CampaignRepository struct {
	d *Database
}

var _ repository.CampaignRepositoryInterface = (*CampaignRepository)(nil)

func loadCampaign(tx *buntdb.Tx, id int) (*model.Campaign, error) {
	rec := campaignRecord{Campaign: &model.Campaign{}}
	found, err := getJSON(tx, genIndex(CampaignTable, id), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	rec.Campaign.DispatchStartedAt = rec.DispatchStartedAt
	return rec.Campaign, nil
}

func saveCampaign(tx *buntdb.Tx, c *model.Campaign) error {
	return setJSON(tx, genIndex(CampaignTable, c.ID), campaignRecord{Campaign: c, DispatchStartedAt: c.DispatchStartedAt})
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextID(tx, CampaignTable)
		if err != nil {
			return err
		}
		c.ID = id
		c.CreatedAt = time.Now().UTC()
		return saveCampaign(tx, c)
	})
}

// Delete removes the campaign and, in the same transaction, every result
// and event recorded for it.
func (r *CampaignRepository) Delete(id int) error {
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		if _, err := loadCampaign(tx, id); err != nil {
			return err
		}

		prefix := ":" + strconv.Itoa(id) + ":*"
		keys := []string{genIndex(CampaignTable, id)}
		for _, pattern := range []string{ResultTable + prefix, EventTable + prefix} {
			err := tx.AscendKeys(pattern, func(key, _ string) bool {
				keys = append(keys, key)
				return true
			})
			if err != nil {
				return err
			}
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func (r *CampaignRepository) NameExists(name string) (bool, error) {
	exists := false
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("campaigns_id", func(key, val string) bool {
			exists = gjson.Get(val, "name").String() == name
			return !exists
		})
	})
	return exists, err
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	var c *model.Campaign
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		var err error
		c, err = loadCampaign(tx, id)
		return err
	})
	return c, err
}

// update loads the campaign, lets fn mutate it and saves the result, all in
// one transaction.
func (r *CampaignRepository) update(id int, fn func(c *model.Campaign) error) error {
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		c, err := loadCampaign(tx, id)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		now := time.Now().UTC()
		c.UpdatedAt = &now
		return saveCampaign(tx, c)
	})
}

func (r *CampaignRepository) TransitionStatus(campaignID int, from []string, to string) error {
	return r.update(campaignID, func(c *model.Campaign) error {
		for _, s := range from {
			if c.Status == s {
				c.Status = to
				return nil
			}
		}
		return appErrors.NewInvalid("campaign %d cannot move from %s to %s", campaignID, c.Status, to)
	})
}

func (r *CampaignRepository) AcquireDispatch(campaignID int, staleBefore time.Time) error {
	return r.update(campaignID, func(c *model.Campaign) error {
		if !c.Dispatchable() {
			return appErrors.NewConflict("campaign %d cannot be sent in status %s", campaignID, c.Status)
		}
		if c.DispatchStartedAt != nil && !c.DispatchStartedAt.Before(staleBefore) {
			return appErrors.NewConflict("campaign %d is already being dispatched", campaignID)
		}
		now := time.Now().UTC()
		c.DispatchStartedAt = &now
		c.Status = model.CampaignStatusRunning
		return nil
	})
}

func (r *CampaignRepository) ReleaseDispatch(campaignID int) error {
	return r.update(campaignID, func(c *model.Campaign) error {
		c.DispatchStartedAt = nil
		return nil
	})
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	total := 0
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.Descend("campaigns_id", func(key, val string) bool {
			c := &model.Campaign{}
			if decodeErr = json.Unmarshal([]byte(val), c); decodeErr != nil {
				return false
			}
			if status != "" && c.Status != status {
				return true
			}
			if total >= offset && len(campaigns) < limit {
				campaigns = append(campaigns, c)
			}
			total++
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}
