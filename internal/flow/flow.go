// Package flow keeps per-user conversation state for multi-step wizards.
// Instead of registering one-shot next-message continuations, each user has
// at most one explicit State (flow name, step index, accumulated fields)
// keyed by chat ID and bounded by a TTL, so abandoned flows expire instead
// of leaking. Starting a new flow overwrites the previous one — last one
// wins. Two Store implementations exist: an in-process map and a
// Redis-backed store whose state survives process restarts.
package flow

import (
	"context"
	"time"
)

// Flow names used as State.Flow values.
const (
	AddTrainer = "add_trainer"
	AddSlot    = "add_slot"
	EditSlot   = "edit_slot"
	Booking    = "booking"
	Broadcast  = "broadcast"
	Restore    = "restore"
)

// State is one user's position inside a wizard. Fields accumulates the
// collected answers under flow-specific keys.
type State struct {
	Flow      string            `json:"flow"`
	Step      int               `json:"step"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// New starts a state for the named flow.
func New(name string) *State {
	return &State{Flow: name, Fields: make(map[string]string), UpdatedAt: time.Now().UTC()}
}

// Set stores a collected field.
func (s *State) Set(key, value string) { s.Fields[key] = value }

// Get reads a collected field.
func (s *State) Get(key string) string { return s.Fields[key] }

// Advance moves to the next step.
func (s *State) Advance() { s.Step++; s.UpdatedAt = time.Now().UTC() }

// Store persists per-user flow state. Get returns (nil, nil) when the user
// has no active flow. Put replaces the user's state wholesale and resets
// its TTL.
type Store interface {
	Get(ctx context.Context, chatID int64) (*State, error)
	Put(ctx context.Context, chatID int64, st *State) error
	Clear(ctx context.Context, chatID int64) error
}
