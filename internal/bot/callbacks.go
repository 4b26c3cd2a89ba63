package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crazyjump/crazyjump-bot/internal/flow"
	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

// handleCallback routes inline-keyboard taps by data prefix. Several
// prefixes (loc, cal) are shared between the customer booking wizard and
// the admin add-slot wizard; the active flow decides which one runs.
func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	defer b.answerCallback(cq.ID)
	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	data := cq.Data

	switch {
	case strings.HasPrefix(data, "plan:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "plan:"))
		if err != nil {
			return
		}
		b.buyPlan(ctx, chatID, idx)

	case strings.HasPrefix(data, "payok:"), strings.HasPrefix(data, "payno:"):
		if !b.isAdmin(chatID) {
			return
		}
		approve := strings.HasPrefix(data, "payok:")
		b.decidePayment(ctx, cq, data[len("payok:"):], approve)

	case strings.HasPrefix(data, "cancelbk:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "cancelbk:"), 10, 64)
		if err != nil {
			return
		}
		b.cancelBooking(ctx, cq, id)

	case strings.HasPrefix(data, "set:"):
		b.toggleSetting(ctx, cq, strings.TrimPrefix(data, "set:"))

	case strings.HasPrefix(data, "trdel:"):
		if !b.isAdmin(chatID) {
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "trdel:"), 10, 64)
		if err != nil {
			return
		}
		b.deleteTrainer(ctx, cq, id)

	case strings.HasPrefix(data, "sldel:"):
		if !b.isAdmin(chatID) {
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "sldel:"), 10, 64)
		if err != nil {
			return
		}
		b.deleteSlot(ctx, cq, id)

	case strings.HasPrefix(data, "sledit:"):
		if !b.isAdmin(chatID) {
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "sledit:"), 10, 64)
		if err != nil {
			return
		}
		b.startEditSlot(ctx, cq, id)

	default:
		b.handleFlowCallback(ctx, cq, data)
	}
}

func (b *Bot) isAdmin(chatID int64) bool {
	if chatID != b.adminID {
		b.log.Warn().Int64("chat_id", chatID).Msg("admin callback denied")
		return false
	}
	return true
}

// handleFlowCallback handles the taps that only mean something inside an
// active wizard.
func (b *Bot) handleFlowCallback(ctx context.Context, cq *tgbotapi.CallbackQuery, data string) {
	chatID := cq.Message.Chat.ID
	st, err := b.flows.Get(ctx, chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("load flow failed")
		return
	}
	if st == nil {
		if data != "cal:noop" {
			b.reply(chatID, "Эта кнопка устарела. Начните заново: /start")
		}
		return
	}

	switch {
	case data == "cal:noop":
		return

	case strings.HasPrefix(data, "loc:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "loc:"))
		if err != nil || idx < 0 || idx >= len(storage.Locations) {
			return
		}
		loc := storage.Locations[idx]
		switch st.Flow {
		case flow.Booking:
			b.bookingPickLocation(ctx, cq, st, loc)
		case flow.AddSlot:
			b.slotPickLocation(ctx, cq, st, loc)
		}

	case strings.HasPrefix(data, "cal:nav:"):
		parts := strings.Split(strings.TrimPrefix(data, "cal:nav:"), ":")
		if len(parts) != 2 {
			return
		}
		year, err1 := strconv.Atoi(parts[0])
		monthNum, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || monthNum < 1 || monthNum > 12 {
			return
		}
		loc := st.Get("loc")
		if loc == "" {
			return
		}
		anyDay := st.Flow == flow.AddSlot
		b.sendCalendar(ctx, chatID, cq.Message.MessageID, loc, year, time.Month(monthNum), anyDay)

	case strings.HasPrefix(data, "cal:day:"):
		date := strings.TrimPrefix(data, "cal:day:")
		switch st.Flow {
		case flow.Booking:
			b.bookingPickDay(ctx, cq, st, date)
		case flow.AddSlot:
			b.slotPickDay(ctx, cq, st, date)
		}

	case strings.HasPrefix(data, "slot:"):
		if st.Flow != flow.Booking {
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "slot:"), 10, 64)
		if err != nil {
			return
		}
		b.bookingPickSlot(ctx, cq, st, id)

	case data == "bookok":
		if st.Flow != flow.Booking {
			return
		}
		b.bookingConfirm(ctx, cq, st)

	case data == "bookno":
		b.clearFlow(ctx, chatID)
		b.editText(chatID, cq.Message.MessageID, "Запись отменена.", nil)

	case strings.HasPrefix(data, "slottr:"):
		if st.Flow != flow.AddSlot || !b.isAdmin(chatID) {
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "slottr:"), 10, 64)
		if err != nil {
			return
		}
		b.slotPickTrainer(ctx, cq, st, id)

	case data == "bcok":
		if st.Flow != flow.Broadcast || !b.isAdmin(chatID) {
			return
		}
		b.broadcastSend(ctx, cq, st)

	case data == "bcno":
		if !b.isAdmin(chatID) {
			return
		}
		b.clearFlow(ctx, chatID)
		b.editText(chatID, cq.Message.MessageID, "Рассылка отменена.", nil)
	}
}

func (b *Bot) toggleSetting(ctx context.Context, cq *tgbotapi.CallbackQuery, key string) {
	chatID := cq.Message.Chat.ID
	u, err := b.store.GetUser(ctx, chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("get user failed")
		return
	}
	switch key {
	case "notif":
		err = b.store.SetNotifications(ctx, chatID, !u.NotificationsEnabled)
	case "rem":
		err = b.store.SetReminders(ctx, chatID, !u.RemindersOn())
	default:
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Str("setting", key).Msg("toggle failed")
		return
	}
	u, err = b.store.GetUser(ctx, chatID)
	if err != nil {
		return
	}
	kb := settingsKeyboard(u)
	b.editText(chatID, cq.Message.MessageID, "⚙️ Настройки. Нажмите, чтобы переключить:", &kb)
}
