// internal/model/target.go
package model

type Target struct {
	ID        int    `db:"id" json:"id" yaml:"id"`
	FirstName string `db:"first_name" json:"first_name" yaml:"first_name"`
	LastName  string `db:"last_name" json:"last_name" yaml:"last_name"`
	Email     string `db:"email" json:"email" yaml:"email"`
	Position  string `db:"position" json:"position" yaml:"position"`
	GroupID   *int   `db:"group_id" json:"group_id,omitempty" yaml:"group_id"`
	IsActive  bool   `db:"is_active" json:"is_active" yaml:"is_active"`
}

type Group struct {
	ID       int    `db:"id" json:"id" yaml:"id"`
	Name     string `db:"name" json:"name" yaml:"name"`
	IsActive bool   `db:"is_active" json:"is_active" yaml:"is_active"`
}
