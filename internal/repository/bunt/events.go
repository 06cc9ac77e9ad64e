package bunt

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/tidwall/buntdb"

	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
)

type EventRepository struct {
	d *Database
}

var _ repository.EventRepositoryInterface = (*EventRepository)(nil)

func (r *EventRepository) Record(e *model.EmailEvent) error {
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextID(tx, EventTable)
		if err != nil {
			return err
		}
		e.ID = id
		key := EventTable + ":" + strconv.Itoa(e.CampaignID) + ":" + strconv.Itoa(id)
		return setJSON(tx, key, e)
	})
}

func (r *EventRepository) ListByCampaign(campaignID int) ([]*model.EmailEvent, error) {
	events := []*model.EmailEvent{}
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendKeys(EventTable+":"+strconv.Itoa(campaignID)+":*", func(key, val string) bool {
			e := &model.EmailEvent{}
			if decodeErr = json.Unmarshal([]byte(val), e); decodeErr != nil {
				return false
			}
			events = append(events, e)
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
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}
