package config

import (
	"errors"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ConnectDB opens the Postgres connection for the configured DSN.
func ConnectDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("database DSN not configured (db_url / DB_URL)")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	slog.Info("Connected to the database")
	return db, nil
}
