package storage

import (
	"context"
	"database/sql"
	"errors"
)

// Trainer is a 1:1 extension of a User row; TrainerID equals the user's
// chat ID.
type Trainer struct {
	TrainerID      int64
	FullName       string
	Specialization string
	Bio            string
	PhotoID        string
}

// CreateTrainer promotes an existing user to trainer: the trainer row and
// the user's is_trainer flag are written in one transaction. The target
// user must already exist (ErrNotFound otherwise).
func (s *Store) CreateTrainer(ctx context.Context, t Trainer) error {
	return s.withTx(ctx, "create trainer", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM users WHERE user_id = ?", t.TrainerID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trainers (trainer_id, full_name, specialization, bio, photo_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(trainer_id) DO UPDATE SET
				full_name = excluded.full_name,
				specialization = excluded.specialization,
				bio = excluded.bio,
				photo_id = excluded.photo_id`,
			t.TrainerID, t.FullName, t.Specialization, t.Bio, t.PhotoID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET is_trainer = 1 WHERE user_id = ?", t.TrainerID)
		return err
	})
}

// DeleteTrainer removes the trainer row and clears the user flag. Schedule
// slots assigned to the trainer keep running without one.
func (s *Store) DeleteTrainer(ctx context.Context, trainerID int64) error {
	return s.withTx(ctx, "delete trainer", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE schedule_slots SET trainer_id = NULL WHERE trainer_id = ?", trainerID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM trainers WHERE trainer_id = ?", trainerID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET is_trainer = 0 WHERE user_id = ?", trainerID)
		return err
	})
}

// GetTrainer fetches one trainer by ID.
func (s *Store) GetTrainer(ctx context.Context, trainerID int64) (Trainer, error) {
	var t Trainer
	err := s.handle().QueryRowContext(ctx, `
		SELECT trainer_id, full_name, specialization, bio, photo_id
		FROM trainers WHERE trainer_id = ?`, trainerID).
		Scan(&t.TrainerID, &t.FullName, &t.Specialization, &t.Bio, &t.PhotoID)
	if errors.Is(err, sql.ErrNoRows) {
		return Trainer{}, ErrNotFound
	}
	if err != nil {
		return Trainer{}, storageErr("get trainer", err)
	}
	return t, nil
}

// ListTrainers returns all trainers ordered by name.
func (s *Store) ListTrainers(ctx context.Context) ([]Trainer, error) {
	rows, err := s.handle().QueryContext(ctx, `
		SELECT trainer_id, full_name, specialization, bio, photo_id
		FROM trainers ORDER BY full_name`)
	if err != nil {
		return nil, storageErr("list trainers", err)
	}
	defer rows.Close()
	var out []Trainer
	for rows.Next() {
		var t Trainer
		if err := rows.Scan(&t.TrainerID, &t.FullName, &t.Specialization, &t.Bio, &t.PhotoID); err != nil {
			return nil, storageErr("list trainers", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list trainers", err)
	}
	return out, nil
}

// IsTrainer reports whether the user has a trainer row. Used by the access
// guard, so failures surface as a denied check rather than an error reply.
func (s *Store) IsTrainer(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.handle().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trainers WHERE trainer_id = ?", userID).Scan(&n)
	if err != nil {
		return false, storageErr("is trainer", err)
	}
	return n > 0, nil
}
