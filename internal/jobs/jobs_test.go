package jobs

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

type fakeSender struct {
	notes map[int64][]string
}

func (f *fakeSender) Notify(chatID int64, text string) error {
	if f.notes == nil {
		f.notes = make(map[int64][]string)
	}
	f.notes[chatID] = append(f.notes[chatID], text)
	return nil
}

func setup(t *testing.T) (*Jobs, *fakeSender, *storage.Store) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	sender := &fakeSender{}
	return New(s, sender, zerolog.Nop()), sender, s
}

func buySubscription(t *testing.T, s *storage.Store, userID int64) storage.Subscription {
	t.Helper()
	ctx := context.Background()
	plan, _ := storage.PlanByName("Абонемент на 4 занятия")
	p, err := s.CreatePayment(ctx, userID, plan)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := s.ConfirmPayment(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestSweepExpiryNotifiesExpiring(t *testing.T) {
	j, sender, s := setup(t)
	ctx := context.Background()
	if err := s.UpsertUser(ctx, 1, "anya", "Аня", ""); err != nil {
		t.Fatal(err)
	}
	buySubscription(t, s, 1)
	// Subscription defaults to expiring far outside the notice window; no
	// notice yet.
	if err := j.sweepExpiry(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(sender.notes[1]) != 0 {
		t.Fatalf("unexpected notices: %v", sender.notes[1])
	}
}

func TestRemindSessionsForTomorrow(t *testing.T) {
	j, sender, s := setup(t)
	ctx := context.Background()
	if err := s.UpsertUser(ctx, 1, "anya", "Аня", ""); err != nil {
		t.Fatal(err)
	}
	buySubscription(t, s, 1)

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	sl, err := s.CreateSlot(ctx, storage.Slot{
		Location: "Центр", Date: tomorrow, Time: "18:00", MaxParticipants: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBooking(ctx, 1, sl.ID); err != nil {
		t.Fatal(err)
	}

	if err := j.remindSessions(ctx); err != nil {
		t.Fatalf("remind: %v", err)
	}
	notes := sender.notes[1]
	if len(notes) != 1 {
		t.Fatalf("notes = %v, want one reminder", notes)
	}
	if !strings.Contains(notes[0], "18:00") || !strings.Contains(notes[0], "Центр") {
		t.Errorf("reminder text = %q", notes[0])
	}
}

func TestCycleRecoversStoreBeforeRun(t *testing.T) {
	j, _, s := setup(t)
	ctx := context.Background()
	if err := s.UpsertUser(ctx, 1, "anya", "Аня", ""); err != nil {
		t.Fatal(err)
	}
	buySubscription(t, s, 1)

	// Kill the handle between cycles. The health check at the top of the
	// cycle must reconnect before the sweep queries, so the pass succeeds.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.cycle(ctx, "expiry sweep", j.sweepExpiry); err != nil {
		t.Fatalf("cycle after close: %v", err)
	}
	if _, err := s.ActiveSubscription(ctx, 1); err != nil {
		t.Fatalf("store after recovery: %v", err)
	}
}

func TestRemindSessionsSkipsOptedOut(t *testing.T) {
	j, sender, s := setup(t)
	ctx := context.Background()
	if err := s.UpsertUser(ctx, 1, "anya", "Аня", ""); err != nil {
		t.Fatal(err)
	}
	buySubscription(t, s, 1)

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	sl, err := s.CreateSlot(ctx, storage.Slot{
		Location: "Центр", Date: tomorrow, Time: "18:00", MaxParticipants: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBooking(ctx, 1, sl.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.SetReminders(ctx, 1, false); err != nil {
		t.Fatal(err)
	}

	if err := j.remindSessions(ctx); err != nil {
		t.Fatalf("remind: %v", err)
	}
	if len(sender.notes) != 0 {
		t.Errorf("notes = %v, want none", sender.notes)
	}
}
