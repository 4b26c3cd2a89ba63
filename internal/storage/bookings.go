package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Booking mirrors the bookings table.
type Booking struct {
	ID          int64
	UserID      int64
	ScheduleID  int64
	BookingDate time.Time
	Status      string // active | cancelled
}

// BookingDetail joins a booking with its slot for listings and reminders.
type BookingDetail struct {
	Booking
	Location  string
	Date      string
	Time      string
	FirstName string
}

// CreateBooking reserves a place on a slot as one atomic transaction:
// capacity is re-checked inside the transaction, the booking row is
// inserted, the slot's participant count is incremented and one session is
// debited from the user's active subscription. When the debit exhausts the
// subscription it flips to expired. Business sentinels: ErrNotFound (no
// such slot), ErrSlotFull, ErrAlreadyBooked, ErrNoActiveSubscription.
func (s *Store) CreateBooking(ctx context.Context, userID, scheduleID int64) (Booking, error) {
	var bk Booking
	err := s.withTx(ctx, "create booking", func(tx *sql.Tx) error {
		var current, max int
		err := tx.QueryRowContext(ctx, `
			SELECT current_participants, max_participants
			FROM schedule_slots WHERE schedule_id = ?`, scheduleID).Scan(&current, &max)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current >= max {
			return ErrSlotFull
		}
		var dup int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM bookings
			WHERE user_id = ? AND schedule_id = ? AND status = 'active'`,
			userID, scheduleID).Scan(&dup)
		if err != nil {
			return err
		}
		if dup > 0 {
			return ErrAlreadyBooked
		}
		if err := debitSessionTx(ctx, tx, userID); err != nil {
			return err
		}
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (user_id, schedule_id, booking_date, status)
			VALUES (?, ?, ?, 'active')`, userID, scheduleID, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE schedule_slots SET current_participants = current_participants + 1
			WHERE schedule_id = ?`, scheduleID); err != nil {
			return err
		}
		bk = Booking{ID: id, UserID: userID, ScheduleID: scheduleID, BookingDate: now, Status: "active"}
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return bk, nil
}

// debitSessionTx spends one session from the user's current active
// subscription, flipping it to expired on exhaustion.
func debitSessionTx(ctx context.Context, tx *sql.Tx, userID int64) error {
	var (
		subID       int64
		used, total int
	)
	err := tx.QueryRowContext(ctx, `
		SELECT subscription_id, sessions_used, sessions_total
		FROM subscriptions
		WHERE user_id = ? AND status = 'active'
		  AND sessions_used < sessions_total
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY activated_at LIMIT 1`, userID, time.Now().UTC()).
		Scan(&subID, &used, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoActiveSubscription
	}
	if err != nil {
		return err
	}
	used++
	status := "active"
	if used >= total {
		status = "expired"
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions SET sessions_used = ?, status = ?
		WHERE subscription_id = ?`, used, status, subID)
	return err
}

// refundSessionTx returns one session to the user's most recently debited
// subscription, reactivating it if exhaustion was the only reason it
// expired.
func refundSessionTx(ctx context.Context, tx *sql.Tx, userID int64) error {
	var (
		subID   int64
		used    int
		status  string
		expires sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `
		SELECT subscription_id, sessions_used, status, expires_at
		FROM subscriptions
		WHERE user_id = ? AND sessions_used > 0 AND status IN ('active', 'expired')
		ORDER BY activated_at DESC LIMIT 1`, userID).
		Scan(&subID, &used, &status, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		// Nothing to refund; the subscription may have been cancelled.
		return nil
	}
	if err != nil {
		return err
	}
	used--
	if status == "expired" && (!expires.Valid || expires.Time.After(time.Now().UTC())) {
		status = "active"
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions SET sessions_used = ?, status = ?
		WHERE subscription_id = ?`, used, status, subID)
	return err
}

// CancelBooking reverses a booking atomically: the booking flips to
// cancelled, the slot frees a place and the session returns to the user's
// subscription. The booking must belong to the given user.
func (s *Store) CancelBooking(ctx context.Context, bookingID, userID int64) error {
	return s.withTx(ctx, "cancel booking", func(tx *sql.Tx) error {
		var scheduleID int64
		err := tx.QueryRowContext(ctx, `
			SELECT schedule_id FROM bookings
			WHERE booking_id = ? AND user_id = ? AND status = 'active'`,
			bookingID, userID).Scan(&scheduleID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE bookings SET status = 'cancelled' WHERE booking_id = ?", bookingID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE schedule_slots
			SET current_participants = MAX(current_participants - 1, 0)
			WHERE schedule_id = ?`, scheduleID); err != nil {
			return err
		}
		return refundSessionTx(ctx, tx, userID)
	})
}

// ListUserBookings returns the user's active bookings on slots dated today
// or later, soonest first.
func (s *Store) ListUserBookings(ctx context.Context, userID int64) ([]BookingDetail, error) {
	today := time.Now().UTC().Format("2006-01-02")
	rows, err := s.handle().QueryContext(ctx, `
		SELECT b.booking_id, b.user_id, b.schedule_id, b.booking_date, b.status,
		       sl.location, sl.date, sl.time
		FROM bookings b
		JOIN schedule_slots sl ON sl.schedule_id = b.schedule_id
		WHERE b.user_id = ? AND b.status = 'active' AND sl.date >= ?
		ORDER BY sl.date, sl.time`, userID, today)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	defer rows.Close()
	var out []BookingDetail
	for rows.Next() {
		var d BookingDetail
		if err := rows.Scan(&d.ID, &d.UserID, &d.ScheduleID, &d.BookingDate, &d.Status,
			&d.Location, &d.Date, &d.Time); err != nil {
			return nil, storageErr("list bookings", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list bookings", err)
	}
	return out, nil
}

// BookingsOnDate returns active bookings whose slot falls on the given
// date, restricted to users whose reminder preference allows a ping. A
// NULL preference counts as enabled.
func (s *Store) BookingsOnDate(ctx context.Context, date string) ([]BookingDetail, error) {
	rows, err := s.handle().QueryContext(ctx, `
		SELECT b.booking_id, b.user_id, b.schedule_id, b.booking_date, b.status,
		       sl.location, sl.date, sl.time, u.first_name
		FROM bookings b
		JOIN schedule_slots sl ON sl.schedule_id = b.schedule_id
		JOIN users u ON u.user_id = b.user_id
		WHERE b.status = 'active' AND sl.date = ?
		  AND (u.reminders_enabled IS NULL OR u.reminders_enabled = 1)
		ORDER BY sl.time`, date)
	if err != nil {
		return nil, storageErr("bookings on date", err)
	}
	defer rows.Close()
	var out []BookingDetail
	for rows.Next() {
		var d BookingDetail
		if err := rows.Scan(&d.ID, &d.UserID, &d.ScheduleID, &d.BookingDate, &d.Status,
			&d.Location, &d.Date, &d.Time, &d.FirstName); err != nil {
			return nil, storageErr("bookings on date", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("bookings on date", err)
	}
	return out, nil
}
