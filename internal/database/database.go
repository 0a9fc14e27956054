package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"carma/internal/domain"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

var (
	ErrBookingNotFound   = domain.ErrBookingNotFound
	ErrDuplicateBooking  = domain.ErrDuplicateBooking
	ErrInvalidTransition = domain.ErrInvalidTransition
)

// DB is the sqlite booking store.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time. Also keeps :memory: on a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("Database initialized")
	}
	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            car_id TEXT NOT NULL,
            car_name TEXT NOT NULL,
            car_image TEXT NOT NULL DEFAULT '',
            pickup_date TEXT NOT NULL,
            return_date TEXT NOT NULL,
            location TEXT NOT NULL DEFAULT '',
            total_price REAL NOT NULL,
            status TEXT NOT NULL DEFAULT 'confirmed',
            account TEXT NOT NULL,
            tx_hash TEXT NOT NULL DEFAULT '',
            code_source TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            rented_at DATETIME
        )`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_account ON bookings(account)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
