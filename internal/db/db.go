// internal/db/db.go
package db

import (
	"database/sql"
	_ "embed"

	_ "github.com/lib/pq"

	"github.com/unclebandit/phishsim-backend/internal/config"
	"github.com/unclebandit/phishsim-backend/internal/logger"
)

//go:embed schema.sql
var schema string

// Open connects to Postgres and verifies the connection.
func Open(cfg config.DBConfig) (*sql.DB, error) {
	logger.WithFields(logger.Fields{
		"db_user": cfg.User,
		"db_name": cfg.Name,
		"db_host": cfg.Host,
	}).Debug("opening database")

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("✅ Connected to database")
	return db, nil
}

// Migrate creates any missing tables. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	logger.Info("✅ Schema up to date")
	return nil
}
