package repository

import (
	"database/sql"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
)

// TargetRepositoryInterface reads recipients. Writes exist only for the
// seeder; the CRUD surface for targets lives elsewhere.
type TargetRepositoryInterface interface {
	GetByIDs(ids []int) ([]*model.Target, error)
	ListByGroup(groupID int) ([]*model.Target, error)
	GetGroup(id int) (*model.Group, error)
	Create(t *model.Target) error
	CreateGroup(g *model.Group) error
}

type TargetRepository struct {
	DB *sql.DB
}

var _ TargetRepositoryInterface = (*TargetRepository)(nil)

const targetColumns = `id, first_name, last_name, email, position, group_id, is_active`

func scanTargets(rows *sql.Rows) ([]*model.Target, error) {
	defer rows.Close()

	targets := []*model.Target{}
	for rows.Next() {
		var t model.Target
		if err := rows.Scan(&t.ID, &t.FirstName, &t.LastName, &t.Email, &t.Position, &t.GroupID, &t.IsActive); err != nil {
			return nil, err
		}
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}

// GetByIDs returns the targets that exist among ids, in id order. Unknown
// ids are silently skipped.
func (r *TargetRepository) GetByIDs(ids []int) ([]*model.Target, error) {
	rows, err := r.DB.Query(`SELECT `+targetColumns+` FROM targets WHERE id = ANY($1) ORDER BY id`, toInt64s(ids))
	if err != nil {
		return nil, err
	}
	return scanTargets(rows)
}

func (r *TargetRepository) ListByGroup(groupID int) ([]*model.Target, error) {
	rows, err := r.DB.Query(`SELECT `+targetColumns+` FROM targets WHERE group_id=$1 ORDER BY id`, groupID)
	if err != nil {
		return nil, err
	}
	return scanTargets(rows)
}

func (r *TargetRepository) GetGroup(id int) (*model.Group, error) {
	var g model.Group
	err := r.DB.QueryRow(`SELECT id, name, is_active FROM groups WHERE id=$1`, id).Scan(&g.ID, &g.Name, &g.IsActive)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("target group", id)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *TargetRepository) Create(t *model.Target) error {
	return r.DB.QueryRow(`
		INSERT INTO targets (first_name, last_name, email, position, group_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, t.FirstName, t.LastName, t.Email, t.Position, t.GroupID, t.IsActive).Scan(&t.ID)
}

func (r *TargetRepository) CreateGroup(g *model.Group) error {
	return r.DB.QueryRow(
		`INSERT INTO groups (name, is_active) VALUES ($1, $2) RETURNING id`,
		g.Name, g.IsActive,
	).Scan(&g.ID)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

// missingReference turns a foreign key violation on insert into a 400
// naming the constraint. Other errors pass through.
func missingReference(err error, resource string) error {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23503" {
		return err
	}
	return appErrors.WrapInvalid(err, "%s references a record that does not exist (%s)", resource, pqErr.Constraint)
}
