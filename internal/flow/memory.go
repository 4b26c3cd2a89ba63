package flow

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps flow state in a process-local map. State is lost on
// restart; deployments that need wizard state to survive restarts configure
// the Redis store instead.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]*State
	ttl    time.Duration
	stop   chan struct{}
	once   sync.Once
}

// NewMemoryStore creates a store whose entries expire after ttl. A janitor
// goroutine sweeps expired entries so abandoned wizards do not accumulate.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	m := &MemoryStore{
		states: make(map[int64]*State),
		ttl:    ttl,
		stop:   make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *MemoryStore) janitor() {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for id, st := range m.states {
				if now.Sub(st.UpdatedAt) > m.ttl {
					delete(m.states, id)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the janitor.
func (m *MemoryStore) Close() { m.once.Do(func() { close(m.stop) }) }

func (m *MemoryStore) Get(_ context.Context, chatID int64) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[chatID]
	if !ok {
		return nil, nil
	}
	if time.Since(st.UpdatedAt) > m.ttl {
		delete(m.states, chatID)
		return nil, nil
	}
	return st, nil
}

func (m *MemoryStore) Put(_ context.Context, chatID int64, st *State) error {
	st.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.states[chatID] = st
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, chatID int64) error {
	m.mu.Lock()
	delete(m.states, chatID)
	m.mu.Unlock()
	return nil
}
