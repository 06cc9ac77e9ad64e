// Package bunt implements the repository interfaces on an embedded buntdb
// file. Every write runs inside a single buntdb update transaction, which
// buntdb serialises, so merges are atomic without any extra locking.
package bunt

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/buntdb"

	"github.com/unclebandit/phishsim-backend/internal/repository"
)

const (
	PhishletTable   = "phishlets"
	CampaignTable   = "campaigns"
	ResultTable     = "results"
	TargetTable     = "targets"
	GroupTable      = "groups"
	SenderTable     = "senders"
	TemplateTable   = "templates"
	AttachmentTable = "attachments"
	EventTable      = "events"
)

type Database struct {
	path string
	db   *buntdb.DB
}

// Open opens (or creates) the store at path. ":memory:" keeps everything in
// memory.
func Open(path string) (*Database, error) {
	var err error
	d := &Database{
		path: path,
	}

	d.db, err = buntdb.Open(path)
	if err != nil {
		return nil, err
	}

	// Handles are opaque tokens, so their index must compare exactly.
	indexes := []struct {
		name, pattern string
		less          func(a, b string) bool
	}{
		{"phishlets_handle", PhishletTable + ":*", buntdb.IndexJSONCaseSensitive("handle")},
		{"campaigns_id", CampaignTable + ":*", buntdb.IndexJSON("id")},
		{"targets_group", TargetTable + ":*", buntdb.IndexJSON("group_id")},
	}
	for _, idx := range indexes {
		if err := d.db.CreateIndex(idx.name, idx.pattern, idx.less); err != nil && err != buntdb.ErrIndexExists {
			d.db.Close()
			return nil, err
		}
	}

	if path != ":memory:" {
		d.db.Shrink()
	}
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Stores exposes the database through the repository interfaces.
func (d *Database) Stores() *repository.Stores {
	return &repository.Stores{
		Phishlets: &PhishletRepository{d},
		Campaigns: &CampaignRepository{d},
		Results:   &ResultRepository{d},
		Targets:   &TargetRepository{d},
		Catalog:   &CatalogRepository{d},
		Events:    &EventRepository{d},
	}
}

func genIndex(table string, id int) string {
	return table + ":" + strconv.Itoa(id)
}

func getPivot(t interface{}) string {
	pivot, _ := json.Marshal(t)
	return string(pivot)
}

// nextID must run inside an update transaction.
func nextID(tx *buntdb.Tx, table string) (int, error) {
	id := 1
	if v, err := tx.Get("seq:" + table); err == nil {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, err
		}
		id = n + 1
	} else if err != buntdb.ErrNotFound {
		return 0, err
	}
	if _, _, err := tx.Set("seq:"+table, strconv.Itoa(id), nil); err != nil {
		return 0, err
	}
	return id, nil
}

// getJSON reports false when key does not exist.
func getJSON(tx *buntdb.Tx, key string, v interface{}) (bool, error) {
	val, err := tx.Get(key)
	if err == buntdb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(val), v)
}

func setJSON(tx *buntdb.Tx, key string, v interface{}) error {
	jf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(jf), nil)
	return err
}
