package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// User mirrors the users table. ID is the Telegram chat identity.
// RemindersEnabled is a tri-state: a NULL column (nil pointer) is treated as
// enabled, matching databases created before the column existed.
type User struct {
	ID                   int64
	Username             string
	FirstName            string
	LastName             string
	JoinDate             time.Time
	LastActivity         time.Time
	NotificationsEnabled bool
	IsTrainer            bool
	RemindersEnabled     *bool
}

// RemindersOn resolves the tri-state reminder preference.
func (u *User) RemindersOn() bool {
	return u.RemindersEnabled == nil || *u.RemindersEnabled
}

// UpsertUser creates the user on first contact and refreshes the mutable
// profile fields plus last_activity on every subsequent one. Users are
// never deleted.
func (s *Store) UpsertUser(ctx context.Context, id int64, username, firstName, lastName string) error {
	now := time.Now().UTC()
	_, err := s.handle().ExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name, join_date, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			last_activity = excluded.last_activity`,
		id, username, firstName, lastName, now, now)
	return storageErr("upsert user", err)
}

// GetUser fetches a user by chat ID. Returns ErrNotFound when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var (
		u         User
		notif     int
		isTrainer int
		reminders sql.NullInt64
	)
	err := s.handle().QueryRowContext(ctx, `
		SELECT user_id, username, first_name, last_name, join_date, last_activity,
		       notifications_enabled, is_trainer, reminders_enabled
		FROM users WHERE user_id = ?`, id).
		Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.JoinDate, &u.LastActivity,
			&notif, &isTrainer, &reminders)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, storageErr("get user", err)
	}
	u.NotificationsEnabled = notif != 0
	u.IsTrainer = isTrainer != 0
	if reminders.Valid {
		v := reminders.Int64 != 0
		u.RemindersEnabled = &v
	}
	return u, nil
}

// SetNotifications toggles the subscription-expiry notification preference.
func (s *Store) SetNotifications(ctx context.Context, id int64, enabled bool) error {
	return s.setUserFlag(ctx, id, "notifications_enabled", enabled)
}

// SetReminders toggles the next-day session reminder preference.
func (s *Store) SetReminders(ctx context.Context, id int64, enabled bool) error {
	return s.setUserFlag(ctx, id, "reminders_enabled", enabled)
}

// NotifiableUsers returns the chat IDs of everyone who has not opted out of
// announcements. Broadcasts and expiry notices go only to these users.
func (s *Store) NotifiableUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.handle().QueryContext(ctx,
		"SELECT user_id FROM users WHERE notifications_enabled = 1 ORDER BY user_id")
	if err != nil {
		return nil, storageErr("notifiable users", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("notifiable users", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) setUserFlag(ctx context.Context, id int64, column string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	res, err := s.handle().ExecContext(ctx,
		"UPDATE users SET "+column+" = ? WHERE user_id = ?", v, id)
	if err != nil {
		return storageErr("set "+column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
