package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the single owner of the bot's SQLite database. One instance is
// constructed at startup and injected into handlers and background jobs;
// there is no hidden global. Reconnect swaps the underlying handle, so all
// access goes through handle() under a read lock.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open creates the database file if needed, applies the connection pragmas
// and runs the schema migration. WAL journaling plus a bounded busy timeout
// let the request handlers and the background jobs interleave writes without
// immediate SQLITE_BUSY failures.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer connection sidesteps table-lock contention between the
	// update handlers and the reconciliation jobs; readers queue briefly on
	// the busy timeout instead of failing.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, _ = db.Exec("PRAGMA synchronous=NORMAL;")
	return db, nil
}

// Path returns the location of the live database file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Reconnect closes and reopens the database and re-applies the schema
// migration. Migrations are idempotent (create-if-not-exists tables and
// indexes, introspection-guarded column additions), so calling this against
// an already migrated or freshly restored file is safe.
func (s *Store) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.db.Close()
	db, err := openDB(s.path)
	if err != nil {
		return storageErr("reconnect", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return storageErr("reconnect migrate", err)
	}
	s.db = db
	return nil
}

// CheckIntegrity runs SQLite's built-in consistency check and returns an
// error unless it reports "ok".
func (s *Store) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := s.handle().QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&result); err != nil {
		return storageErr("integrity check", err)
	}
	if result != "ok" {
		return storageErr("integrity check", fmt.Errorf("reported %q", result))
	}
	return nil
}

func (s *Store) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// withTx runs fn inside a transaction that commits on success and rolls
// back on any failure. Infrastructure failures come back wrapped in
// *StorageError; business sentinels (ErrSlotFull and friends) pass through
// untouched so callers can match on them.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.handle().BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if isSentinel(err) {
			return err
		}
		return storageErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op, err)
	}
	return nil
}

func isSentinel(err error) bool {
	for _, s := range []error{
		ErrNotFound, ErrSlotExists, ErrSlotFull,
		ErrNoActiveSubscription, ErrAlreadyBooked, ErrPaymentDecided,
	} {
		if err == s {
			return true
		}
	}
	return false
}

// migrate creates the schema and applies additive migrations. All
// statements are safe to re-run.
func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			join_date TIMESTAMP NOT NULL,
			last_activity TIMESTAMP NOT NULL,
			notifications_enabled INTEGER NOT NULL DEFAULT 1,
			is_trainer INTEGER NOT NULL DEFAULT 0,
			reminders_enabled INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS payments (
			payment_id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			plan_name TEXT NOT NULL,
			amount INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending','confirmed','rejected')),
			created_at TIMESTAMP NOT NULL,
			confirmed_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			subscription_id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			plan_name TEXT NOT NULL,
			sessions_total INTEGER NOT NULL,
			sessions_used INTEGER NOT NULL DEFAULT 0,
			price INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
				CHECK (status IN ('active','expired','cancelled')),
			created_at TIMESTAMP NOT NULL,
			activated_at TIMESTAMP,
			expires_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS trainers (
			trainer_id INTEGER PRIMARY KEY REFERENCES users(user_id),
			full_name TEXT NOT NULL,
			specialization TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS schedule_slots (
			schedule_id INTEGER PRIMARY KEY AUTOINCREMENT,
			trainer_id INTEGER REFERENCES trainers(trainer_id),
			location TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			max_participants INTEGER NOT NULL DEFAULT 10,
			current_participants INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS bookings (
			booking_id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			schedule_id INTEGER NOT NULL REFERENCES schedule_slots(schedule_id),
			booking_date TIMESTAMP NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_slots_unique
			ON schedule_slots(location, date, time);`,
		`CREATE INDEX IF NOT EXISTS idx_slots_location_date
			ON schedule_slots(location, date);`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user
			ON bookings(user_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_schedule
			ON bookings(schedule_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user
			ON subscriptions(user_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status
			ON payments(status, created_at);`,
	}
	for _, q := range stmts {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	// Additive migrations for databases created by earlier revisions.
	if err := addColumnIfMissing(db, "users", "reminders_enabled", "INTEGER"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "trainers", "photo_id", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return nil
}

// addColumnIfMissing inspects the table with PRAGMA table_info and adds the
// column only when absent, so upgrades are safe to re-run.
func addColumnIfMissing(db *sql.DB, table, column, decl string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return rows.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, column, decl))
	return err
}

// TableCounts returns per-table row counts for /stats and for verifying
// backups.
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(exportableTables))
	for _, table := range exportableTables {
		var n int
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := s.handle().QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, storageErr("count "+table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
