package storage

import (
	"context"
	"database/sql"
	"errors"
)

// Locations is the fixed set of park branches a slot can belong to.
var Locations = []string{"Центр", "Север", "Юг"}

// ValidLocation reports whether the name is one of the configured branches.
func ValidLocation(name string) bool {
	for _, l := range Locations {
		if l == name {
			return true
		}
	}
	return false
}

// Slot mirrors the schedule_slots table. Date is canonical YYYY-MM-DD and
// Time canonical zero-padded HH:MM; both are normalized before they reach
// the store.
type Slot struct {
	ID                  int64
	TrainerID           *int64
	Location            string
	Date                string
	Time                string
	MaxParticipants     int
	CurrentParticipants int
}

const slotColumns = `schedule_id, trainer_id, location, date, time,
	max_participants, current_participants`

func scanSlot(row interface{ Scan(...any) error }) (Slot, error) {
	var (
		sl      Slot
		trainer sql.NullInt64
	)
	err := row.Scan(&sl.ID, &trainer, &sl.Location, &sl.Date, &sl.Time,
		&sl.MaxParticipants, &sl.CurrentParticipants)
	if err != nil {
		return Slot{}, err
	}
	if trainer.Valid {
		id := trainer.Int64
		sl.TrainerID = &id
	}
	return sl, nil
}

// CreateSlot inserts a schedule slot. The (location, date, time) triple is
// unique; a duplicate returns ErrSlotExists.
func (s *Store) CreateSlot(ctx context.Context, sl Slot) (Slot, error) {
	if sl.MaxParticipants <= 0 {
		sl.MaxParticipants = 10
	}
	err := s.withTx(ctx, "create slot", func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM schedule_slots
			WHERE location = ? AND date = ? AND time = ?`,
			sl.Location, sl.Date, sl.Time).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSlotExists
		}
		var trainer any
		if sl.TrainerID != nil {
			trainer = *sl.TrainerID
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_slots
				(trainer_id, location, date, time, max_participants, current_participants)
			VALUES (?, ?, ?, ?, ?, 0)`,
			trainer, sl.Location, sl.Date, sl.Time, sl.MaxParticipants)
		if err != nil {
			return err
		}
		sl.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Slot{}, err
	}
	return sl, nil
}

// UpdateSlotTime moves a slot to a new time, subject to the same
// uniqueness rule.
func (s *Store) UpdateSlotTime(ctx context.Context, scheduleID int64, newTime string) error {
	return s.withTx(ctx, "update slot time", func(tx *sql.Tx) error {
		var location, date string
		err := tx.QueryRowContext(ctx,
			"SELECT location, date FROM schedule_slots WHERE schedule_id = ?",
			scheduleID).Scan(&location, &date)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var n int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM schedule_slots
			WHERE location = ? AND date = ? AND time = ? AND schedule_id != ?`,
			location, date, newTime, scheduleID).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSlotExists
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE schedule_slots SET time = ? WHERE schedule_id = ?", newTime, scheduleID)
		return err
	})
}

// DeleteSlot removes a slot together with its booking rows, refunding each
// active booking's session to its subscription. Bookings reference the slot
// with an enforced foreign key, so cancelled history rows go with it too.
func (s *Store) DeleteSlot(ctx context.Context, scheduleID int64) ([]int64, error) {
	var affected []int64
	err := s.withTx(ctx, "delete slot", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT user_id FROM bookings
			WHERE schedule_id = ? AND status = 'active'`, scheduleID)
		if err != nil {
			return err
		}
		var active []int64
		for rows.Next() {
			var user int64
			if err := rows.Scan(&user); err != nil {
				rows.Close()
				return err
			}
			active = append(active, user)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, user := range active {
			if err := refundSessionTx(ctx, tx, user); err != nil {
				return err
			}
			affected = append(affected, user)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM bookings WHERE schedule_id = ?", scheduleID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM schedule_slots WHERE schedule_id = ?", scheduleID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// GetSlot fetches one slot.
func (s *Store) GetSlot(ctx context.Context, scheduleID int64) (Slot, error) {
	row := s.handle().QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM schedule_slots WHERE schedule_id = ?", scheduleID)
	sl, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Slot{}, ErrNotFound
	}
	if err != nil {
		return Slot{}, storageErr("get slot", err)
	}
	return sl, nil
}

// SlotsBetween returns a location's slots with date in [from, to), ordered
// by date then time. Dates are canonical YYYY-MM-DD strings, so string
// comparison matches chronological order.
func (s *Store) SlotsBetween(ctx context.Context, location, from, to string) ([]Slot, error) {
	rows, err := s.handle().QueryContext(ctx, `
		SELECT `+slotColumns+` FROM schedule_slots
		WHERE location = ? AND date >= ? AND date < ?
		ORDER BY date, time`, location, from, to)
	if err != nil {
		return nil, storageErr("slots between", err)
	}
	defer rows.Close()
	var out []Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, storageErr("slots between", err)
		}
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("slots between", err)
	}
	return out, nil
}

// SlotsForTrainer returns a trainer's slots with date >= from, across all
// locations, ordered by date then time.
func (s *Store) SlotsForTrainer(ctx context.Context, trainerID int64, from string) ([]Slot, error) {
	rows, err := s.handle().QueryContext(ctx, `
		SELECT `+slotColumns+` FROM schedule_slots
		WHERE trainer_id = ? AND date >= ?
		ORDER BY date, time`, trainerID, from)
	if err != nil {
		return nil, storageErr("slots for trainer", err)
	}
	defer rows.Close()
	var out []Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, storageErr("slots for trainer", err)
		}
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("slots for trainer", err)
	}
	return out, nil
}

// SlotsOn returns a location's slots for one date, ordered by time.
func (s *Store) SlotsOn(ctx context.Context, location, date string) ([]Slot, error) {
	rows, err := s.handle().QueryContext(ctx, `
		SELECT `+slotColumns+` FROM schedule_slots
		WHERE location = ? AND date = ? ORDER BY time`, location, date)
	if err != nil {
		return nil, storageErr("slots on date", err)
	}
	defer rows.Close()
	var out []Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, storageErr("slots on date", err)
		}
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("slots on date", err)
	}
	return out, nil
}
