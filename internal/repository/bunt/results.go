package bunt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/tidwall/buntdb"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
)

type ResultRepository struct {
	d *Database
}

var _ repository.ResultRepositoryInterface = (*ResultRepository)(nil)

func resultKey(campaignID, targetID int) string {
	return ResultTable + ":" + strconv.Itoa(campaignID) + ":" + strconv.Itoa(targetID)
}

func resultNotFound(campaignID, targetID int) error {
	return appErrors.NewNotFound("campaign result", fmt.Sprintf("%d/%d", campaignID, targetID))
}

func (r *ResultRepository) Get(campaignID, targetID int) (*model.CampaignResult, error) {
	res := &model.CampaignResult{}
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		found, err := getJSON(tx, resultKey(campaignID, targetID), res)
		if err != nil {
			return err
		}
		if !found {
			return resultNotFound(campaignID, targetID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *ResultRepository) ListByCampaign(campaignID int) ([]*model.CampaignResult, error) {
	results := []*model.CampaignResult{}
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendKeys(ResultTable+":"+strconv.Itoa(campaignID)+":*", func(key, val string) bool {
			res := &model.CampaignResult{}
			if decodeErr = json.Unmarshal([]byte(val), res); decodeErr != nil {
				return false
			}
			results = append(results, res)
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
	sort.Slice(results, func(i, j int) bool { return results[i].TargetID < results[j].TargetID })
	return results, nil
}

func (r *ResultRepository) Upsert(campaignID, targetID int, m model.Merge) (*model.CampaignResult, error) {
	return r.merge(campaignID, targetID, m, true)
}

func (r *ResultRepository) AtomicMerge(campaignID, targetID int, m model.Merge) (*model.CampaignResult, error) {
	return r.merge(campaignID, targetID, m, false)
}

func (r *ResultRepository) merge(campaignID, targetID int, m model.Merge, create bool) (*model.CampaignResult, error) {
	res := &model.CampaignResult{}
	err := r.d.db.Update(func(tx *buntdb.Tx) error {
		key := resultKey(campaignID, targetID)
		found, err := getJSON(tx, key, res)
		if err != nil {
			return err
		}
		if !found {
			if !create {
				return resultNotFound(campaignID, targetID)
			}
			id, err := nextID(tx, ResultTable)
			if err != nil {
				return err
			}
			*res = model.CampaignResult{
				ID:           id,
				CampaignID:   campaignID,
				TargetID:     targetID,
				CapturedData: []json.RawMessage{},
				CreatedAt:    m.At,
				UpdatedAt:    m.At,
			}
		}
		res.Apply(m)
		return setJSON(tx, key, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *ResultRepository) Stats(campaignID int) (model.CampaignStats, error) {
	var stats model.CampaignStats
	results, err := r.ListByCampaign(campaignID)
	if err != nil {
		return stats, err
	}
	for _, res := range results {
		stats.Tally(res)
	}
	return stats, nil
}
