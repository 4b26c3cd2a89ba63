// Package storage owns the SQLite schema and every persistent operation of
// the bot: users, payments, subscriptions, trainers, schedule slots and
// bookings, plus backup/restore and integrity checking. Sentinel errors
// defined here let handlers distinguish business failures (a full slot, a
// spent subscription) from infrastructure failures, which are wrapped in
// *StorageError.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrSlotExists is returned when a schedule slot with the same
// location, date and time already exists.
var ErrSlotExists = errors.New("slot already exists")

// ErrSlotFull is returned when a booking would exceed a slot's
// participant capacity.
var ErrSlotFull = errors.New("slot is full")

// ErrNoActiveSubscription is returned when a booking is attempted by a
// user without an active subscription that still has sessions left.
var ErrNoActiveSubscription = errors.New("no active subscription")

// ErrAlreadyBooked is returned when a user tries to book the same slot twice.
var ErrAlreadyBooked = errors.New("already booked")

// ErrPaymentDecided is returned when a confirm or reject is applied to a
// payment that is no longer pending.
var ErrPaymentDecided = errors.New("payment already decided")

// StorageError wraps a database failure with the operation that caused it.
// The transaction that produced it has been rolled back. Use errors.As to
// detect it and Unwrap to reach the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
