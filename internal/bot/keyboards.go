package bot

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crazyjump/crazyjump-bot/internal/schedule"
	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

// Main menu button labels. The message dispatcher matches on these, so they
// live in one place.
const (
	btnPlans    = "🛒 Абонементы"
	btnBook     = "📅 Записаться"
	btnMySub    = "🎫 Мой абонемент"
	btnMyBooks  = "📋 Мои записи"
	btnTrainers = "👨‍🏫 Тренеры"
	btnSettings = "⚙️ Настройки"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnPlans),
			tgbotapi.NewKeyboardButton(btnBook),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnMySub),
			tgbotapi.NewKeyboardButton(btnMyBooks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnTrainers),
			tgbotapi.NewKeyboardButton(btnSettings),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func plansKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(storage.Plans))
	for i, p := range storage.Plans {
		label := fmt.Sprintf("%s — %d ₽", p.Name, p.Price)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "plan:"+strconv.Itoa(i)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func locationsKeyboard() tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(storage.Locations))
	for i, loc := range storage.Locations {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(loc, "loc:"+strconv.Itoa(i)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// calendarKeyboard renders a month grid. Days carrying sessions are marked
// with a dot; when anyDay is false only those days are tappable (customer
// booking), when true every day is (admins creating new slots).
func calendarKeyboard(m schedule.Month, anyDay bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	header := make([]tgbotapi.InlineKeyboardButton, 0, 7)
	for _, wd := range schedule.Weekdays {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(wd, "cal:noop"))
	}
	rows = append(rows, header)

	for _, week := range m.Weeks {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for _, cell := range week {
			switch {
			case cell.Day == 0:
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "cal:noop"))
			case len(cell.Times) > 0 || anyDay:
				label := strconv.Itoa(cell.Day)
				if len(cell.Times) > 0 {
					label += "•"
				}
				date := fmt.Sprintf("%04d-%02d-%02d", m.Year, int(m.Month), cell.Day)
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "cal:day:"+date))
			default:
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(cell.Day), "cal:noop"))
			}
		}
		rows = append(rows, row)
	}

	py, pm := schedule.PrevMonth(m.Year, m.Month)
	ny, nm := schedule.NextMonth(m.Year, m.Month)
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("«", fmt.Sprintf("cal:nav:%d:%d", py, int(pm))),
		tgbotapi.NewInlineKeyboardButtonData(m.Title(), "cal:noop"),
		tgbotapi.NewInlineKeyboardButtonData("»", fmt.Sprintf("cal:nav:%d:%d", ny, int(nm))),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// slotsKeyboard lists the bookable sessions on one day.
func slotsKeyboard(slots []storage.Slot) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, sl := range slots {
		label := fmt.Sprintf("%s (%d/%d)", sl.Time, sl.CurrentParticipants, sl.MaxParticipants)
		if sl.CurrentParticipants >= sl.MaxParticipants {
			label = sl.Time + " (мест нет)"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "slot:"+strconv.FormatInt(sl.ID, 10)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmBookingKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", "bookok"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "bookno"),
		),
	)
}

func paymentDecisionKeyboard(paymentID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", "payok:"+paymentID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", "payno:"+paymentID),
		),
	)
}

func settingsKeyboard(u storage.User) tgbotapi.InlineKeyboardMarkup {
	notif := "🔔 Уведомления: вкл"
	if !u.NotificationsEnabled {
		notif = "🔕 Уведомления: выкл"
	}
	rem := "⏰ Напоминания: вкл"
	if !u.RemindersOn() {
		rem = "⏰ Напоминания: выкл"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(notif, "set:notif")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(rem, "set:rem")),
	)
}

// trainerPickKeyboard is used in the add-slot wizard; 0 means "no trainer".
func trainerPickKeyboard(trainers []storage.Trainer) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range trainers {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.FullName, "slottr:"+strconv.FormatInt(t.TrainerID, 10)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Без тренера", "slottr:0"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func broadcastConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Отправить", "bcok"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "bcno"),
		),
	)
}
