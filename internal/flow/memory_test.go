package flow

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	defer m.Close()
	ctx := context.Background()

	if st, err := m.Get(ctx, 1); err != nil || st != nil {
		t.Fatalf("empty get = %v, %v; want nil, nil", st, err)
	}

	st := New(Booking)
	st.Set("loc", "Центр")
	if err := m.Put(ctx, 1, st); err != nil {
		t.Fatal(err)
	}

	got, err := m.Get(ctx, 1)
	if err != nil || got == nil {
		t.Fatalf("get = %v, %v", got, err)
	}
	if got.Flow != Booking || got.Get("loc") != "Центр" {
		t.Errorf("state = %+v", got)
	}

	// A new flow replaces the old one wholesale.
	if err := m.Put(ctx, 1, New(AddSlot)); err != nil {
		t.Fatal(err)
	}
	got, _ = m.Get(ctx, 1)
	if got.Flow != AddSlot || got.Get("loc") != "" {
		t.Errorf("replaced state = %+v", got)
	}

	if err := m.Clear(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if st, _ := m.Get(ctx, 1); st != nil {
		t.Errorf("state after clear = %+v", st)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	m := NewMemoryStore(10 * time.Millisecond)
	defer m.Close()
	ctx := context.Background()

	if err := m.Put(ctx, 1, New(Booking)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(25 * time.Millisecond)
	if st, _ := m.Get(ctx, 1); st != nil {
		t.Errorf("expired state still present: %+v", st)
	}
}

func TestStateAdvance(t *testing.T) {
	st := New(AddTrainer)
	if st.Step != 0 {
		t.Fatalf("fresh step = %d", st.Step)
	}
	st.Advance()
	st.Advance()
	if st.Step != 2 {
		t.Errorf("step = %d, want 2", st.Step)
	}
}
