package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

// BackupTo writes a consistent point-in-time copy of the database to path
// using VACUUM INTO, SQLite's native hot-backup mechanism. A plain file copy
// would race concurrent writers; VACUUM INTO reads through the same
// connection and produces a compacted, standalone database file.
func (s *Store) BackupTo(ctx context.Context, path string) error {
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return storageErr("backup", err)
	}
	q := fmt.Sprintf("VACUUM INTO '%s';", strings.ReplaceAll(path, "'", "''"))
	if _, err := s.handle().ExecContext(ctx, q); err != nil {
		return storageErr("backup", err)
	}
	return nil
}

// Restore validates the candidate database file and atomically swaps it in
// as the live database. The previous file is kept next to it with a .bak
// suffix. On success the store is reconnected and re-migrated against the
// restored file.
func (s *Store) Restore(ctx context.Context, candidate string) error {
	if err := validateDatabaseFile(ctx, candidate); err != nil {
		return storageErr("restore validate", err)
	}

	s.mu.Lock()
	_ = s.db.Close()
	if err := os.Rename(s.path, s.path+".bak"); err != nil && !os.IsNotExist(err) {
		s.mu.Unlock()
		return storageErr("restore", err)
	}
	// WAL sidecars of the old database must not shadow the restored file.
	_ = os.Remove(s.path + "-wal")
	_ = os.Remove(s.path + "-shm")
	if err := os.Rename(candidate, s.path); err != nil {
		// Put the old database back so the bot keeps running.
		_ = os.Rename(s.path+".bak", s.path)
		s.mu.Unlock()
		return storageErr("restore", err)
	}
	s.mu.Unlock()

	return s.Reconnect(ctx)
}

// validateDatabaseFile checks that the file opens as a SQLite database with
// a readable system catalog before it is allowed to replace the live file.
func validateDatabaseFile(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return err
	}
	defer db.Close()
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master;").Scan(&n); err != nil {
		return fmt.Errorf("unreadable system catalog: %w", err)
	}
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported %q", result)
	}
	return nil
}
