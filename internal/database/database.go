package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// busy_timeout keeps concurrent writers queued instead of failing with
	// SQLITE_BUSY under booking contention.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must stay
	// at one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS treks (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            region TEXT,
            duration_days INTEGER NOT NULL DEFAULT 1,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            partial_enabled BOOLEAN NOT NULL DEFAULT 0,
            partial_type TEXT,
            partial_value INTEGER NOT NULL DEFAULT 0,
            tax_percent INTEGER NOT NULL DEFAULT 0,
            add_ons TEXT,
            coupons TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS batches (
            id INTEGER PRIMARY KEY,
            trek_id INTEGER NOT NULL REFERENCES treks(id),
            start_date DATETIME NOT NULL,
            end_date DATETIME NOT NULL,
            price INTEGER NOT NULL,
            max_participants INTEGER NOT NULL,
            current_participants INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'active',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            CHECK (current_participants >= 0),
            CHECK (current_participants <= max_participants)
        )`,

		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            trek_id INTEGER NOT NULL,
            batch_id INTEGER NOT NULL REFERENCES batches(id),
            participants INTEGER NOT NULL,
            contact_name TEXT NOT NULL,
            contact_email TEXT,
            contact_phone TEXT,
            total_price INTEGER NOT NULL,
            payment_mode TEXT NOT NULL DEFAULT 'full',
            status TEXT NOT NULL DEFAULT 'pending_payment',
            order_ref TEXT,
            payment_ref TEXT,
            initial_amount INTEGER NOT NULL DEFAULT 0,
            remaining_amount INTEGER NOT NULL DEFAULT 0,
            due_date DATETIME,
            session_id TEXT NOT NULL,
            expires_at DATETIME NOT NULL,
            payment_attempts INTEGER NOT NULL DEFAULT 0,
            last_payment_attempt DATETIME,
            refund_status TEXT NOT NULL DEFAULT 'not_applicable',
            refund_amount INTEGER NOT NULL DEFAULT 0,
            refund_date DATETIME,
            cancelled_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE TABLE IF NOT EXISTS booking_participants (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            age INTEGER NOT NULL DEFAULT 0,
            gender TEXT,
            medical_notes TEXT,
            is_cancelled BOOLEAN NOT NULL DEFAULT 0,
            cancelled_at DATETIME,
            refund_status TEXT NOT NULL DEFAULT 'not_applicable',
            refund_amount INTEGER NOT NULL DEFAULT 0,
            refund_date DATETIME
        )`,

		`CREATE TABLE IF NOT EXISTS failed_bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            original_booking_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            trek_id INTEGER NOT NULL,
            batch_id INTEGER NOT NULL,
            participants INTEGER NOT NULL,
            contact_name TEXT NOT NULL,
            contact_email TEXT,
            contact_phone TEXT,
            total_price INTEGER NOT NULL,
            payment_mode TEXT NOT NULL,
            order_ref TEXT,
            payment_ref TEXT,
            initial_amount INTEGER NOT NULL DEFAULT 0,
            remaining_amount INTEGER NOT NULL DEFAULT 0,
            session_id TEXT NOT NULL,
            expires_at DATETIME NOT NULL,
            payment_attempts INTEGER NOT NULL DEFAULT 0,
            failure_reason TEXT NOT NULL,
            original_created_at DATETIME NOT NULL,
            archived_at DATETIME NOT NULL,
            archived_by TEXT NOT NULL DEFAULT 'reconciler',
            details TEXT NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_batches_trek_id ON batches(trek_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_batch_id ON bookings(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_expires_at ON bookings(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_failed_bookings_reason ON failed_bookings(failure_reason)`,
		`CREATE INDEX IF NOT EXISTS idx_failed_bookings_archived_at ON failed_bookings(archived_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
