package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crazyjump/crazyjump-bot/internal/flow"
	"github.com/crazyjump/crazyjump-bot/internal/queue"
	"github.com/crazyjump/crazyjump-bot/internal/schedule"
	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

func today() string { return time.Now().UTC().Format("2006-01-02") }

func (b *Bot) showPlans(ctx context.Context, chatID int64) {
	var sb strings.Builder
	sb.WriteString("🛒 Абонементы CrazyJump:\n")
	for _, p := range storage.Plans {
		fmt.Fprintf(&sb, "\n%s — %d ₽\n%d занятий, действует %d дней\n", p.Name, p.Price, p.Sessions, p.Days)
	}
	sb.WriteString("\nВыберите абонемент:")
	b.replyMarkup(chatID, sb.String(), plansKeyboard())
}

// buyPlan records a pending payment and asks the admin to confirm it. The
// subscription activates only after the admin's decision.
func (b *Bot) buyPlan(ctx context.Context, chatID int64, planIdx int) {
	if planIdx < 0 || planIdx >= len(storage.Plans) {
		return
	}
	plan := storage.Plans[planIdx]
	p, err := b.store.CreatePayment(ctx, chatID, plan)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("create payment failed")
		b.reply(chatID, "Не получилось оформить заявку, попробуйте позже.")
		return
	}
	b.reply(chatID, fmt.Sprintf(
		"Заявка на «%s» принята!\n\nПереведите %d ₽ по реквизитам парка и ожидайте подтверждения — мы пришлём сообщение, когда абонемент станет активным.",
		plan.Name, plan.Price))

	u, _ := b.store.GetUser(ctx, chatID)
	adminText := fmt.Sprintf("💳 Новая заявка на оплату\n%s (@%s, id %d)\n%s — %d ₽",
		u.FirstName, u.Username, chatID, plan.Name, plan.Price)
	b.replyMarkup(b.adminID, adminText, paymentDecisionKeyboard(p.ID))
}

// decidePayment handles the admin's confirm/reject tap.
func (b *Bot) decidePayment(ctx context.Context, cq *tgbotapi.CallbackQuery, paymentID string, approve bool) {
	p, err := b.store.GetPayment(ctx, paymentID)
	if err != nil {
		b.log.Error().Err(err).Str("payment_id", paymentID).Msg("get payment failed")
		b.reply(b.adminID, "Платёж не найден.")
		return
	}
	if approve {
		sub, err := b.store.ConfirmPayment(ctx, paymentID)
		if errors.Is(err, storage.ErrPaymentDecided) {
			b.reply(b.adminID, "По этому платежу решение уже принято.")
			return
		}
		if err != nil {
			b.log.Error().Err(err).Str("payment_id", paymentID).Msg("confirm payment failed")
			b.reply(b.adminID, "Не получилось подтвердить платёж.")
			return
		}
		b.editText(cq.Message.Chat.ID, cq.Message.MessageID,
			cq.Message.Text+"\n\n✅ Подтверждено", nil)
		expires := ""
		if sub.ExpiresAt != nil {
			expires = sub.ExpiresAt.Format("02.01.2006")
		}
		b.reply(p.UserID, fmt.Sprintf(
			"✅ Оплата подтверждена! Абонемент «%s» активен: %d занятий до %s.\nЖдём вас на батутах! 🤸",
			sub.PlanName, sub.SessionsTotal, expires))
		if b.publisher != nil {
			ev := queue.PaymentConfirmedEvent{
				PaymentID:   p.ID,
				UserID:      p.UserID,
				PlanName:    p.PlanName,
				Amount:      p.Amount,
				ConfirmedAt: time.Now().UTC().Format(time.RFC3339),
			}
			if err := b.publisher.PublishPaymentConfirmed(ctx, ev); err != nil {
				b.log.Warn().Err(err).Msg("publish payment event failed")
			}
		}
		return
	}
	if err := b.store.RejectPayment(ctx, paymentID); err != nil {
		if errors.Is(err, storage.ErrPaymentDecided) {
			b.reply(b.adminID, "По этому платежу решение уже принято.")
			return
		}
		b.log.Error().Err(err).Str("payment_id", paymentID).Msg("reject payment failed")
		return
	}
	b.editText(cq.Message.Chat.ID, cq.Message.MessageID,
		cq.Message.Text+"\n\n❌ Отклонено", nil)
	b.reply(p.UserID, "❌ Оплата не подтверждена. Если вы уверены, что оплатили — напишите администратору.")
}

func (b *Bot) showSubscription(ctx context.Context, chatID int64) {
	sub, err := b.store.ActiveSubscription(ctx, chatID)
	if errors.Is(err, storage.ErrNoActiveSubscription) {
		b.reply(chatID, "У вас нет активного абонемента. Купить: 🛒 Абонементы")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("active subscription failed")
		b.reply(chatID, "Не получилось загрузить абонемент, попробуйте позже.")
		return
	}
	expires := "—"
	if sub.ExpiresAt != nil {
		expires = sub.ExpiresAt.Format("02.01.2006")
	}
	b.reply(chatID, fmt.Sprintf("🎫 %s\nОсталось занятий: %d из %d\nДействует до: %s",
		sub.PlanName, sub.SessionsLeft(), sub.SessionsTotal, expires))
}

func (b *Bot) showBookings(ctx context.Context, chatID int64) {
	books, err := b.store.ListUserBookings(ctx, chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("list bookings failed")
		b.reply(chatID, "Не получилось загрузить записи, попробуйте позже.")
		return
	}
	if len(books) == 0 {
		b.reply(chatID, "У вас нет предстоящих записей. Записаться: 📅 Записаться")
		return
	}
	for _, bk := range books {
		text := fmt.Sprintf("📋 %s %s — %s", bk.Date, bk.Time, bk.Location)
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить запись",
				fmt.Sprintf("cancelbk:%d", bk.ID)),
		))
		b.replyMarkup(chatID, text, kb)
	}
}

// startBookingFlow begins the book-a-session wizard. A session budget is
// required up front so users without an active subscription fail fast, but
// the authoritative debit still happens inside the booking transaction.
func (b *Bot) startBookingFlow(ctx context.Context, chatID int64) {
	_, err := b.store.ActiveSubscription(ctx, chatID)
	if errors.Is(err, storage.ErrNoActiveSubscription) {
		b.clearFlow(ctx, chatID)
		b.reply(chatID, "Для записи нужен активный абонемент. Купить: 🛒 Абонементы")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("active subscription failed")
		b.reply(chatID, "Попробуйте позже.")
		return
	}
	b.putFlow(ctx, chatID, flow.New(flow.Booking))
	b.replyMarkup(chatID, "Выберите площадку:", locationsKeyboard())
}

func (b *Bot) bookingPickLocation(ctx context.Context, cq *tgbotapi.CallbackQuery, st *flow.State, loc string) {
	st.Set("loc", loc)
	st.Advance()
	b.putFlow(ctx, cq.Message.Chat.ID, st)
	now := time.Now().UTC()
	b.sendCalendar(ctx, cq.Message.Chat.ID, cq.Message.MessageID, loc, now.Year(), now.Month(), false)
}

// sendCalendar edits the wizard message in place with the month view for
// the location. anyDay selects admin (any date) vs customer (slot days
// only) behavior.
func (b *Bot) sendCalendar(ctx context.Context, chatID int64, messageID int, loc string, year int, month time.Month, anyDay bool) {
	from, to := schedule.MonthBounds(year, month)
	slots, err := b.store.SlotsBetween(ctx, loc, from, to)
	if err != nil {
		b.log.Error().Err(err).Str("location", loc).Msg("load month slots failed")
		b.reply(chatID, "Не получилось загрузить расписание.")
		return
	}
	m := schedule.BuildMonth(year, month, slots)
	kb := calendarKeyboard(m, anyDay)
	b.editText(chatID, messageID, fmt.Sprintf("📍 %s\nВыберите дату:", loc), &kb)
}

func (b *Bot) bookingPickDay(ctx context.Context, cq *tgbotapi.CallbackQuery, st *flow.State, date string) {
	loc := st.Get("loc")
	slots, err := b.store.SlotsOn(ctx, loc, date)
	if err != nil {
		b.log.Error().Err(err).Msg("load day slots failed")
		return
	}
	if len(slots) == 0 {
		b.reply(cq.Message.Chat.ID, "На этот день занятий нет, выберите другую дату.")
		return
	}
	st.Set("date", date)
	st.Advance()
	b.putFlow(ctx, cq.Message.Chat.ID, st)
	kb := slotsKeyboard(slots)
	b.editText(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("📍 %s, %s\nВыберите время:", loc, date), &kb)
}

func (b *Bot) bookingPickSlot(ctx context.Context, cq *tgbotapi.CallbackQuery, st *flow.State, scheduleID int64) {
	sl, err := b.store.GetSlot(ctx, scheduleID)
	if err != nil {
		b.log.Error().Err(err).Int64("schedule_id", scheduleID).Msg("get slot failed")
		b.reply(cq.Message.Chat.ID, "Это занятие уже недоступно, выберите другое.")
		return
	}
	if sl.CurrentParticipants >= sl.MaxParticipants {
		b.reply(cq.Message.Chat.ID, "На это время мест уже нет 😔 Выберите другое.")
		return
	}
	st.Set("slot", fmt.Sprintf("%d", scheduleID))
	st.Advance()
	b.putFlow(ctx, cq.Message.Chat.ID, st)

	trainer := "без тренера"
	if sl.TrainerID != nil {
		if t, err := b.store.GetTrainer(ctx, *sl.TrainerID); err == nil {
			trainer = "тренер " + t.FullName
		}
	}
	kb := confirmBookingKeyboard()
	b.editText(cq.Message.Chat.ID, cq.Message.MessageID, fmt.Sprintf(
		"Проверьте запись:\n📍 %s\n📅 %s в %s\n👨‍🏫 %s\n\nСписать одно занятие с абонемента?",
		sl.Location, sl.Date, sl.Time, trainer), &kb)
}

func (b *Bot) bookingConfirm(ctx context.Context, cq *tgbotapi.CallbackQuery, st *flow.State) {
	chatID := cq.Message.Chat.ID
	defer b.clearFlow(ctx, chatID)

	var scheduleID int64
	if _, err := fmt.Sscanf(st.Get("slot"), "%d", &scheduleID); err != nil {
		b.reply(chatID, "Что-то пошло не так, начните запись заново.")
		return
	}
	bk, err := b.store.CreateBooking(ctx, chatID, scheduleID)
	switch {
	case errors.Is(err, storage.ErrSlotFull):
		b.reply(chatID, "Увы, места только что закончились 😔")
		return
	case errors.Is(err, storage.ErrAlreadyBooked):
		b.reply(chatID, "Вы уже записаны на это занятие.")
		return
	case errors.Is(err, storage.ErrNoActiveSubscription):
		b.reply(chatID, "На абонементе не осталось занятий. Купить новый: 🛒 Абонементы")
		return
	case err != nil:
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("create booking failed")
		b.reply(chatID, "Не получилось записаться, попробуйте позже.")
		return
	}

	sl, _ := b.store.GetSlot(ctx, scheduleID)
	b.editText(chatID, cq.Message.MessageID,
		fmt.Sprintf("✅ Вы записаны!\n📍 %s\n📅 %s в %s\n\nЖдём вас! 🤸", sl.Location, sl.Date, sl.Time), nil)

	if b.publisher != nil {
		u, _ := b.store.GetUser(ctx, chatID)
		ev := queue.BookingConfirmedEvent{
			BookingID: bk.ID,
			UserID:    chatID,
			FirstName: u.FirstName,
			Location:  sl.Location,
			Date:      sl.Date,
			Time:      sl.Time,
			BookedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		if err := b.publisher.PublishBookingConfirmed(ctx, ev); err != nil {
			b.log.Warn().Err(err).Msg("publish booking event failed")
		}
	}
}

func (b *Bot) cancelBooking(ctx context.Context, cq *tgbotapi.CallbackQuery, bookingID int64) {
	chatID := cq.Message.Chat.ID
	err := b.store.CancelBooking(ctx, bookingID, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "Эта запись уже отменена.")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("booking_id", bookingID).Msg("cancel booking failed")
		b.reply(chatID, "Не получилось отменить запись, попробуйте позже.")
		return
	}
	b.editText(chatID, cq.Message.MessageID, "❌ Запись отменена, занятие возвращено на абонемент.", nil)
}
