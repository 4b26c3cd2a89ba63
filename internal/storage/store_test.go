package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addUser(t *testing.T, s *Store, id int64, name string) {
	t.Helper()
	if err := s.UpsertUser(context.Background(), id, "user"+name, name, ""); err != nil {
		t.Fatalf("upsert user %d: %v", id, err)
	}
}

// activateSubscription runs the real purchase path: pending payment, then
// admin confirmation.
func activateSubscription(t *testing.T, s *Store, userID int64, plan Plan) Subscription {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreatePayment(ctx, userID, plan)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	sub, err := s.ConfirmPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return sub
}

func addSlot(t *testing.T, s *Store, loc, date, tm string, capacity int) Slot {
	t.Helper()
	sl, err := s.CreateSlot(context.Background(), Slot{
		Location: loc, Date: date, Time: tm, MaxParticipants: capacity,
	})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return sl
}

func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func TestUpsertUserIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	if err := s.UpsertUser(ctx, 1, "anya2", "Анна", "Иванова"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	u, err := s.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Username != "anya2" || u.FirstName != "Анна" {
		t.Errorf("profile not refreshed: %+v", u)
	}
	if !u.NotificationsEnabled {
		t.Error("notifications should default to enabled")
	}
	if !u.RemindersOn() {
		t.Error("NULL reminders preference should count as enabled")
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetUser(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSlotUniquePerLocationDateTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := futureDate(1)
	addSlot(t, s, "Центр", date, "18:00", 10)

	_, err := s.CreateSlot(ctx, Slot{Location: "Центр", Date: date, Time: "18:00"})
	if !errors.Is(err, ErrSlotExists) {
		t.Fatalf("duplicate slot: want ErrSlotExists, got %v", err)
	}
	// Same time elsewhere is fine.
	if _, err := s.CreateSlot(ctx, Slot{Location: "Север", Date: date, Time: "18:00"}); err != nil {
		t.Fatalf("other location: %v", err)
	}
}

func TestUpdateSlotTimeCollision(t *testing.T) {
	s := newTestStore(t)
	date := futureDate(2)
	a := addSlot(t, s, "Центр", date, "17:00", 10)
	addSlot(t, s, "Центр", date, "18:00", 10)

	err := s.UpdateSlotTime(context.Background(), a.ID, "18:00")
	if !errors.Is(err, ErrSlotExists) {
		t.Fatalf("want ErrSlotExists, got %v", err)
	}
	if err := s.UpdateSlotTime(context.Background(), a.ID, "19:00"); err != nil {
		t.Fatalf("legit move: %v", err)
	}
	sl, err := s.GetSlot(context.Background(), a.ID)
	if err != nil || sl.Time != "19:00" {
		t.Fatalf("slot after move: %+v, %v", sl, err)
	}
}

func TestCreateBookingDebitsAndFills(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	addUser(t, s, 2, "Боря")
	addUser(t, s, 3, "Вера")
	plan, _ := PlanByName("Абонемент на 4 занятия")
	activateSubscription(t, s, 1, plan)
	activateSubscription(t, s, 2, plan)
	activateSubscription(t, s, 3, plan)

	sl := addSlot(t, s, "Центр", futureDate(1), "18:00", 2)

	if _, err := s.CreateBooking(ctx, 1, sl.ID); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := s.CreateBooking(ctx, 1, sl.ID); !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("duplicate booking: want ErrAlreadyBooked, got %v", err)
	}
	if _, err := s.CreateBooking(ctx, 2, sl.ID); err != nil {
		t.Fatalf("second booking: %v", err)
	}
	if _, err := s.CreateBooking(ctx, 3, sl.ID); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("over capacity: want ErrSlotFull, got %v", err)
	}

	got, err := s.GetSlot(ctx, sl.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if got.CurrentParticipants != 2 {
		t.Errorf("participants = %d, want 2", got.CurrentParticipants)
	}
	sub, err := s.ActiveSubscription(ctx, 1)
	if err != nil {
		t.Fatalf("active subscription: %v", err)
	}
	if sub.SessionsLeft() != plan.Sessions-1 {
		t.Errorf("sessions left = %d, want %d", sub.SessionsLeft(), plan.Sessions-1)
	}
}

func TestBookingRequiresSubscription(t *testing.T) {
	s := newTestStore(t)
	addUser(t, s, 1, "Аня")
	sl := addSlot(t, s, "Центр", futureDate(1), "18:00", 10)
	_, err := s.CreateBooking(context.Background(), 1, sl.ID)
	if !errors.Is(err, ErrNoActiveSubscription) {
		t.Fatalf("want ErrNoActiveSubscription, got %v", err)
	}
}

func TestCancelBookingRefundsSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	plan, _ := PlanByName("Разовое посещение")
	activateSubscription(t, s, 1, plan)
	sl := addSlot(t, s, "Центр", futureDate(1), "18:00", 10)

	bk, err := s.CreateBooking(ctx, 1, sl.ID)
	if err != nil {
		t.Fatalf("booking: %v", err)
	}
	// The single-session plan is now exhausted.
	if _, err := s.ActiveSubscription(ctx, 1); !errors.Is(err, ErrNoActiveSubscription) {
		t.Fatalf("after exhaustion: want ErrNoActiveSubscription, got %v", err)
	}

	if err := s.CancelBooking(ctx, bk.ID, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	sub, err := s.ActiveSubscription(ctx, 1)
	if err != nil {
		t.Fatalf("after refund: %v", err)
	}
	if sub.SessionsLeft() != 1 {
		t.Errorf("sessions left after refund = %d, want 1", sub.SessionsLeft())
	}
	got, _ := s.GetSlot(ctx, sl.ID)
	if got.CurrentParticipants != 0 {
		t.Errorf("participants after cancel = %d, want 0", got.CurrentParticipants)
	}
	// Cancelling twice or someone else's booking is ErrNotFound.
	if err := s.CancelBooking(ctx, bk.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double cancel: want ErrNotFound, got %v", err)
	}
}

func TestCancelBookingOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	addUser(t, s, 2, "Боря")
	plan, _ := PlanByName("Абонемент на 4 занятия")
	activateSubscription(t, s, 1, plan)
	sl := addSlot(t, s, "Центр", futureDate(1), "18:00", 10)
	bk, err := s.CreateBooking(ctx, 1, sl.ID)
	if err != nil {
		t.Fatalf("booking: %v", err)
	}
	if err := s.CancelBooking(ctx, bk.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign cancel: want ErrNotFound, got %v", err)
	}
}

func TestDeleteSlotRefundsBookings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	addUser(t, s, 2, "Боря")
	plan, _ := PlanByName("Абонемент на 4 занятия")
	activateSubscription(t, s, 1, plan)
	activateSubscription(t, s, 2, plan)
	sl := addSlot(t, s, "Центр", futureDate(1), "18:00", 10)
	if _, err := s.CreateBooking(ctx, 1, sl.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBooking(ctx, 2, sl.ID); err != nil {
		t.Fatal(err)
	}

	affected, err := s.DeleteSlot(ctx, sl.ID)
	if err != nil {
		t.Fatalf("delete slot: %v", err)
	}
	if len(affected) != 2 {
		t.Fatalf("affected = %v, want both users", affected)
	}
	for _, id := range []int64{1, 2} {
		sub, err := s.ActiveSubscription(ctx, id)
		if err != nil {
			t.Fatalf("subscription of %d: %v", id, err)
		}
		if sub.SessionsLeft() != plan.Sessions {
			t.Errorf("user %d sessions left = %d, want full refund %d", id, sub.SessionsLeft(), plan.Sessions)
		}
	}
	if _, err := s.GetSlot(ctx, sl.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("slot after delete: want ErrNotFound, got %v", err)
	}
}

func TestDeleteSlotWithCancelledBooking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	plan, _ := PlanByName("Абонемент на 4 занятия")
	activateSubscription(t, s, 1, plan)
	sl := addSlot(t, s, "Центр", futureDate(1), "18:00", 10)
	bk, err := s.CreateBooking(ctx, 1, sl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelBooking(ctx, bk.ID, 1); err != nil {
		t.Fatal(err)
	}

	// The cancelled row still references the slot; the delete must take it
	// along or the bookings foreign key rejects the whole transaction.
	affected, err := s.DeleteSlot(ctx, sl.ID)
	if err != nil {
		t.Fatalf("delete slot: %v", err)
	}
	if len(affected) != 0 {
		t.Fatalf("affected = %v, want none (booking was already cancelled)", affected)
	}
	// The cancel already refunded the session; the delete must not refund it
	// again.
	sub, err := s.ActiveSubscription(ctx, 1)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if sub.SessionsLeft() != plan.Sessions {
		t.Errorf("sessions left = %d, want %d", sub.SessionsLeft(), plan.Sessions)
	}
	if _, err := s.GetSlot(ctx, sl.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("slot after delete: want ErrNotFound, got %v", err)
	}
	books, err := s.ListUserBookings(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 0 {
		t.Errorf("bookings after delete = %v, want none", books)
	}
}

func TestPaymentDecisionIsFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	plan, _ := PlanByName("Разовое посещение")

	p, err := s.CreatePayment(ctx, 1, plan)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if _, err := s.ConfirmPayment(ctx, p.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := s.ConfirmPayment(ctx, p.ID); !errors.Is(err, ErrPaymentDecided) {
		t.Fatalf("double confirm: want ErrPaymentDecided, got %v", err)
	}
	if err := s.RejectPayment(ctx, p.ID); !errors.Is(err, ErrPaymentDecided) {
		t.Fatalf("reject after confirm: want ErrPaymentDecided, got %v", err)
	}

	p2, _ := s.CreatePayment(ctx, 1, plan)
	if err := s.RejectPayment(ctx, p2.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, _ := s.GetPayment(ctx, p2.ID)
	if got.Status != "rejected" {
		t.Errorf("status = %q, want rejected", got.Status)
	}
	pending, err := s.ListPendingPayments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestExpireDueAndExpiringWithin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	addUser(t, s, 2, "Боря")
	addUser(t, s, 3, "Вера")
	plan, _ := PlanByName("Абонемент на 4 занятия")
	a := activateSubscription(t, s, 1, plan)
	b := activateSubscription(t, s, 2, plan)
	c := activateSubscription(t, s, 3, plan)

	// Rewire expiry dates directly: one overdue, two expiring tomorrow.
	now := time.Now().UTC()
	for sub, exp := range map[int64]time.Time{
		a.ID: now.Add(-time.Hour),
		b.ID: now.Add(24 * time.Hour),
		c.ID: now.Add(24 * time.Hour),
	} {
		if _, err := s.handle().ExecContext(ctx,
			"UPDATE subscriptions SET expires_at = ? WHERE subscription_id = ?", exp, sub); err != nil {
			t.Fatal(err)
		}
	}
	// User 3 opted out of notifications.
	if err := s.SetNotifications(ctx, 3, false); err != nil {
		t.Fatal(err)
	}

	n, err := s.ExpireDueSubscriptions(ctx)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}

	notices, err := s.ExpiringWithin(ctx, 3*24*time.Hour)
	if err != nil {
		t.Fatalf("expiring within: %v", err)
	}
	if len(notices) != 1 || notices[0].UserID != 2 {
		t.Fatalf("notices = %+v, want only user 2", notices)
	}
	if notices[0].FirstName != "Боря" {
		t.Errorf("first name = %q", notices[0].FirstName)
	}
}

func TestBookingsOnDateRespectsReminderPreference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	addUser(t, s, 2, "Боря")
	plan, _ := PlanByName("Абонемент на 4 занятия")
	activateSubscription(t, s, 1, plan)
	activateSubscription(t, s, 2, plan)
	date := futureDate(1)
	sl := addSlot(t, s, "Центр", date, "18:00", 10)
	if _, err := s.CreateBooking(ctx, 1, sl.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBooking(ctx, 2, sl.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.SetReminders(ctx, 2, false); err != nil {
		t.Fatal(err)
	}

	// User 1 still has the pre-migration NULL preference and must be
	// included; user 2 opted out.
	books, err := s.BookingsOnDate(ctx, date)
	if err != nil {
		t.Fatalf("bookings on date: %v", err)
	}
	if len(books) != 1 || books[0].UserID != 1 {
		t.Fatalf("books = %+v, want only user 1", books)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	plan, _ := PlanByName("Абонемент на 4 занятия")
	activateSubscription(t, s, 1, plan)
	addSlot(t, s, "Центр", futureDate(1), "18:00", 10)

	backup := filepath.Join(t.TempDir(), "snapshot.db")
	if err := s.BackupTo(ctx, backup); err != nil {
		t.Fatalf("backup: %v", err)
	}

	// Mutate after the snapshot, then restore: the mutation must be gone.
	addUser(t, s, 2, "Боря")
	if err := s.Restore(ctx, backup); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := s.GetUser(ctx, 1); err != nil {
		t.Errorf("user 1 lost after restore: %v", err)
	}
	if _, err := s.GetUser(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("user 2 should be gone after restore, got %v", err)
	}
	if err := s.CheckIntegrity(ctx); err != nil {
		t.Errorf("integrity after restore: %v", err)
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")

	garbage := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(garbage, []byte("this is not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Restore(ctx, garbage); err == nil {
		t.Fatal("restore of garbage must fail")
	}
	// Live database is untouched.
	if _, err := s.GetUser(ctx, 1); err != nil {
		t.Errorf("live data lost after failed restore: %v", err)
	}
}

func TestReconnectKeepsData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")
	if err := s.Reconnect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if _, err := s.GetUser(ctx, 1); err != nil {
		t.Errorf("user lost after reconnect: %v", err)
	}
}

func TestExportCSV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 1, "Аня")

	var sb strings.Builder
	if err := s.ExportCSV(ctx, &sb, "users"); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "user_id,") {
		t.Errorf("header = %q", lines[0])
	}

	if err := s.ExportCSV(ctx, &sb, "sqlite_master"); err == nil {
		t.Fatal("non-whitelisted table must be rejected")
	}
}

func TestSlotsForTrainer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 7, "Тренер")
	if err := s.CreateTrainer(ctx, Trainer{TrainerID: 7, FullName: "Иван Петров"}); err != nil {
		t.Fatalf("create trainer: %v", err)
	}
	id := int64(7)
	if _, err := s.CreateSlot(ctx, Slot{
		TrainerID: &id, Location: "Центр", Date: futureDate(1), Time: "18:00",
	}); err != nil {
		t.Fatal(err)
	}
	addSlot(t, s, "Центр", futureDate(1), "19:00", 10) // no trainer

	slots, err := s.SlotsForTrainer(ctx, 7, futureDate(0))
	if err != nil {
		t.Fatalf("slots for trainer: %v", err)
	}
	if len(slots) != 1 || slots[0].Time != "18:00" {
		t.Fatalf("slots = %+v", slots)
	}
}

func TestDeleteTrainerKeepsSlots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addUser(t, s, 7, "Тренер")
	if err := s.CreateTrainer(ctx, Trainer{TrainerID: 7, FullName: "Иван Петров"}); err != nil {
		t.Fatal(err)
	}
	id := int64(7)
	sl, err := s.CreateSlot(ctx, Slot{
		TrainerID: &id, Location: "Центр", Date: futureDate(1), Time: "18:00",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteTrainer(ctx, 7); err != nil {
		t.Fatalf("delete trainer: %v", err)
	}
	got, err := s.GetSlot(ctx, sl.ID)
	if err != nil {
		t.Fatalf("slot after trainer delete: %v", err)
	}
	if got.TrainerID != nil {
		t.Error("slot should be orphaned, not deleted")
	}
	u, err := s.GetUser(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if u.IsTrainer {
		t.Error("is_trainer flag should be cleared")
	}
}
