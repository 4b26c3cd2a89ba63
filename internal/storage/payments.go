package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Payment mirrors the payments table. ID is an opaque token generated at
// creation time and embedded in the admin's confirm/reject buttons.
type Payment struct {
	ID          string
	UserID      int64
	PlanName    string
	Amount      int
	Status      string // pending | confirmed | rejected
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// CreatePayment records a pending payment for the selected plan and returns
// it. The payment stays pending until an administrator decides on it.
func (s *Store) CreatePayment(ctx context.Context, userID int64, plan Plan) (Payment, error) {
	p := Payment{
		ID:        uuid.NewString(),
		UserID:    userID,
		PlanName:  plan.Name,
		Amount:    plan.Price,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.handle().ExecContext(ctx, `
		INSERT INTO payments (payment_id, user_id, plan_name, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.PlanName, p.Amount, p.Status, p.CreatedAt)
	if err != nil {
		return Payment{}, storageErr("create payment", err)
	}
	return p, nil
}

// GetPayment fetches a payment by its token.
func (s *Store) GetPayment(ctx context.Context, id string) (Payment, error) {
	var (
		p         Payment
		confirmed sql.NullTime
	)
	err := s.handle().QueryRowContext(ctx, `
		SELECT payment_id, user_id, plan_name, amount, status, created_at, confirmed_at
		FROM payments WHERE payment_id = ?`, id).
		Scan(&p.ID, &p.UserID, &p.PlanName, &p.Amount, &p.Status, &p.CreatedAt, &confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, storageErr("get payment", err)
	}
	if confirmed.Valid {
		t := confirmed.Time
		p.ConfirmedAt = &t
	}
	return p, nil
}

// ListPendingPayments returns payments awaiting an admin decision, oldest
// first.
func (s *Store) ListPendingPayments(ctx context.Context) ([]Payment, error) {
	rows, err := s.handle().QueryContext(ctx, `
		SELECT payment_id, user_id, plan_name, amount, status, created_at, confirmed_at
		FROM payments WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, storageErr("list pending payments", err)
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var (
			p         Payment
			confirmed sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.PlanName, &p.Amount, &p.Status, &p.CreatedAt, &confirmed); err != nil {
			return nil, storageErr("list pending payments", err)
		}
		if confirmed.Valid {
			t := confirmed.Time
			p.ConfirmedAt = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list pending payments", err)
	}
	return out, nil
}

// ConfirmPayment flips a pending payment to confirmed and materializes the
// active subscription it paid for, in one transaction. Returns the created
// subscription. ErrPaymentDecided is returned if the payment was already
// confirmed or rejected (double-tap on the admin button).
func (s *Store) ConfirmPayment(ctx context.Context, paymentID string) (Subscription, error) {
	var sub Subscription
	err := s.withTx(ctx, "confirm payment", func(tx *sql.Tx) error {
		var (
			p      Payment
			status string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT payment_id, user_id, plan_name, amount, status
			FROM payments WHERE payment_id = ?`, paymentID).
			Scan(&p.ID, &p.UserID, &p.PlanName, &p.Amount, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != "pending" {
			return ErrPaymentDecided
		}
		plan, ok := PlanByName(p.PlanName)
		if !ok {
			// Plan was removed from the catalog after the payment was
			// created; fall back to the recorded amount with one session.
			plan = Plan{Name: p.PlanName, Sessions: 1, Price: p.Amount, Days: 30}
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments SET status = 'confirmed', confirmed_at = ? WHERE payment_id = ?`,
			now, paymentID); err != nil {
			return err
		}
		expires := now.AddDate(0, 0, plan.Days)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO subscriptions
				(user_id, plan_name, sessions_total, sessions_used, price, status,
				 created_at, activated_at, expires_at)
			VALUES (?, ?, ?, 0, ?, 'active', ?, ?, ?)`,
			p.UserID, plan.Name, plan.Sessions, plan.Price, now, now, expires)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		sub = Subscription{
			ID:            id,
			UserID:        p.UserID,
			PlanName:      plan.Name,
			SessionsTotal: plan.Sessions,
			Price:         plan.Price,
			Status:        "active",
			CreatedAt:     now,
			ActivatedAt:   &now,
			ExpiresAt:     &expires,
		}
		return nil
	})
	if err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// RejectPayment marks a pending payment rejected.
func (s *Store) RejectPayment(ctx context.Context, paymentID string) error {
	return s.withTx(ctx, "reject payment", func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			"SELECT status FROM payments WHERE payment_id = ?", paymentID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != "pending" {
			return ErrPaymentDecided
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE payments SET status = 'rejected' WHERE payment_id = ?", paymentID)
		return err
	})
}
