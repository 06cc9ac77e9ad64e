package bunt

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/buntdb"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
	"github.com/unclebandit/phishsim-backend/internal/repository"
)

type TargetRepository struct {
	d *Database
}

var _ repository.TargetRepositoryInterface = (*TargetRepository)(nil)

func (r *TargetRepository) GetByIDs(ids []int) ([]*model.Target, error) {
	targets := []*model.Target{}
	seen := map[int]bool{}
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true

			t := &model.Target{}
			found, err := getJSON(tx, genIndex(TargetTable, id), t)
			if err != nil {
				return err
			}
			if found {
				targets = append(targets, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortTargets(targets)
	return targets, nil
}

func (r *TargetRepository) ListByGroup(groupID int) ([]*model.Target, error) {
	targets := []*model.Target{}
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendEqual("targets_group", getPivot(map[string]int{"group_id": groupID}), func(key, val string) bool {
			t := &model.Target{}
			if decodeErr = json.Unmarshal([]byte(val), t); decodeErr != nil {
				return false
			}
			targets = append(targets, t)
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
	sortTargets(targets)
	return targets, nil
}

func (r *TargetRepository) GetGroup(id int) (*model.Group, error) {
	g := &model.Group{}
	err := r.d.db.View(func(tx *buntdb.Tx) error {
		found, err := getJSON(tx, genIndex(GroupTable, id), g)
		if err != nil {
			return err
		}
		if !found {
			return appErrors.NewNotFound("target group", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *TargetRepository) Create(t *model.Target) error {
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextID(tx, TargetTable)
		if err != nil {
			return err
		}
		t.ID = id
		return setJSON(tx, genIndex(TargetTable, id), t)
	})
}

func (r *TargetRepository) CreateGroup(g *model.Group) error {
	return r.d.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextID(tx, GroupTable)
		if err != nil {
			return err
		}
		g.ID = id
		return setJSON(tx, genIndex(GroupTable, id), g)
	})
}

func sortTargets(targets []*model.Target) {
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
}
