package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Subscription mirrors the subscriptions table.
type Subscription struct {
	ID            int64
	UserID        int64
	PlanName      string
	SessionsTotal int
	SessionsUsed  int
	Price         int
	Status        string // active | expired | cancelled
	CreatedAt     time.Time
	ActivatedAt   *time.Time
	ExpiresAt     *time.Time
}

// SessionsLeft returns the remaining session budget.
func (s *Subscription) SessionsLeft() int { return s.SessionsTotal - s.SessionsUsed }

const subscriptionColumns = `subscription_id, user_id, plan_name, sessions_total,
	sessions_used, price, status, created_at, activated_at, expires_at`

func scanSubscription(row interface{ Scan(...any) error }) (Subscription, error) {
	var (
		sub       Subscription
		activated sql.NullTime
		expires   sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanName, &sub.SessionsTotal,
		&sub.SessionsUsed, &sub.Price, &sub.Status, &sub.CreatedAt, &activated, &expires)
	if err != nil {
		return Subscription{}, err
	}
	if activated.Valid {
		t := activated.Time
		sub.ActivatedAt = &t
	}
	if expires.Valid {
		t := expires.Time
		sub.ExpiresAt = &t
	}
	return sub, nil
}

// ActiveSubscription returns the user's oldest active, unexpired and
// unspent subscription — the one the next booking will draw on. Returns
// ErrNoActiveSubscription when the user has nothing to book against.
func (s *Store) ActiveSubscription(ctx context.Context, userID int64) (Subscription, error) {
	row := s.handle().QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = ? AND status = 'active'
		  AND sessions_used < sessions_total
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY activated_at LIMIT 1`, userID, time.Now().UTC())
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNoActiveSubscription
	}
	if err != nil {
		return Subscription{}, storageErr("active subscription", err)
	}
	return sub, nil
}

// ListSubscriptions returns all of a user's subscriptions, newest first.
func (s *Store) ListSubscriptions(ctx context.Context, userID int64) ([]Subscription, error) {
	rows, err := s.handle().QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, storageErr("list subscriptions", err)
	}
	defer rows.Close()
	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, storageErr("list subscriptions", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list subscriptions", err)
	}
	return out, nil
}

// ExpireDueSubscriptions flips active subscriptions whose expiry has passed
// to expired and returns how many were affected. Run by the expiry
// reconciliation job before it selects the warning window.
func (s *Store) ExpireDueSubscriptions(ctx context.Context) (int64, error) {
	res, err := s.handle().ExecContext(ctx, `
		UPDATE subscriptions SET status = 'expired'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().UTC())
	if err != nil {
		return 0, storageErr("expire subscriptions", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ExpiringNotice pairs an expiring subscription with the chat to notify.
type ExpiringNotice struct {
	Subscription
	FirstName string
}

// ExpiringWithin returns active subscriptions that expire inside the given
// window and whose owner has expiry notifications enabled.
func (s *Store) ExpiringWithin(ctx context.Context, window time.Duration) ([]ExpiringNotice, error) {
	now := time.Now().UTC()
	rows, err := s.handle().QueryContext(ctx, `
		SELECT sub.subscription_id, sub.user_id, sub.plan_name, sub.sessions_total,
		       sub.sessions_used, sub.price, sub.status, sub.created_at,
		       sub.activated_at, sub.expires_at, u.first_name
		FROM subscriptions sub
		JOIN users u ON u.user_id = sub.user_id
		WHERE sub.status = 'active'
		  AND sub.expires_at IS NOT NULL
		  AND sub.expires_at > ? AND sub.expires_at <= ?
		  AND u.notifications_enabled = 1
		ORDER BY sub.expires_at`, now, now.Add(window))
	if err != nil {
		return nil, storageErr("expiring subscriptions", err)
	}
	defer rows.Close()
	var out []ExpiringNotice
	for rows.Next() {
		var (
			n         ExpiringNotice
			activated sql.NullTime
			expires   sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.PlanName, &n.SessionsTotal,
			&n.SessionsUsed, &n.Price, &n.Status, &n.CreatedAt,
			&activated, &expires, &n.FirstName); err != nil {
			return nil, storageErr("expiring subscriptions", err)
		}
		if activated.Valid {
			t := activated.Time
			n.ActivatedAt = &t
		}
		if expires.Valid {
			t := expires.Time
			n.ExpiresAt = &t
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("expiring subscriptions", err)
	}
	return out, nil
}
