package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crazyjump/crazyjump-bot/internal/flow"
	"github.com/crazyjump/crazyjump-bot/internal/schedule"
	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

// --- trainers ---

func (b *Bot) handleAddTrainer(ctx context.Context, msg *tgbotapi.Message) {
	b.putFlow(ctx, msg.Chat.ID, flow.New(flow.AddTrainer))
	b.reply(msg.Chat.ID, "Добавление тренера.\nПришлите Telegram ID пользователя (он должен уже написать боту).")
}

func (b *Bot) stepAddTrainer(ctx context.Context, msg *tgbotapi.Message, st *flow.State) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	switch st.Step {
	case 0:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			b.reply(chatID, "Нужен числовой ID, попробуйте ещё раз.")
			return
		}
		if _, err := b.store.GetUser(ctx, id); errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, "Такой пользователь боту не писал. Пусть сначала нажмёт /start.")
			return
		} else if err != nil {
			b.log.Error().Err(err).Msg("get user failed")
			b.reply(chatID, "Ошибка, попробуйте позже.")
			return
		}
		st.Set("id", text)
		st.Advance()
		b.putFlow(ctx, chatID, st)
		b.reply(chatID, "Имя и фамилия тренера?")
	case 1:
		st.Set("name", text)
		st.Advance()
		b.putFlow(ctx, chatID, st)
		b.reply(chatID, "Специализация? (например «Акробатика»)")
	case 2:
		st.Set("spec", text)
		st.Advance()
		b.putFlow(ctx, chatID, st)
		b.reply(chatID, "Короткое описание для карточки тренера?")
	case 3:
		st.Set("bio", text)
		st.Advance()
		b.putFlow(ctx, chatID, st)
		b.reply(chatID, "Пришлите фото тренера, или «-» чтобы пропустить.")
	case 4:
		photoID := ""
		if len(msg.Photo) > 0 {
			// Last size is the largest.
			photoID = msg.Photo[len(msg.Photo)-1].FileID
		} else if text != "-" {
			b.reply(chatID, "Пришлите фото или «-».")
			return
		}
		id, _ := strconv.ParseInt(st.Get("id"), 10, 64)
		t := storage.Trainer{
			TrainerID:      id,
			FullName:       st.Get("name"),
			Specialization: st.Get("spec"),
			Bio:            st.Get("bio"),
			PhotoID:        photoID,
		}
		b.clearFlow(ctx, chatID)
		if err := b.store.CreateTrainer(ctx, t); err != nil {
			b.log.Error().Err(err).Int64("trainer_id", id).Msg("create trainer failed")
			b.reply(chatID, "Не получилось сохранить тренера.")
			return
		}
		b.reply(chatID, fmt.Sprintf("✅ Тренер %s добавлен.", t.FullName))
	}
}

func (b *Bot) handleDelTrainer(ctx context.Context, msg *tgbotapi.Message) {
	trainers, err := b.store.ListTrainers(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("list trainers failed")
		return
	}
	if len(trainers) == 0 {
		b.reply(msg.Chat.ID, "Тренеров нет.")
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range trainers {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 "+t.FullName,
				"trdel:"+strconv.FormatInt(t.TrainerID, 10)),
		))
	}
	b.replyMarkup(msg.Chat.ID, "Кого удалить? Занятия тренера останутся в расписании без тренера.",
		tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) deleteTrainer(ctx context.Context, cq *tgbotapi.CallbackQuery, trainerID int64) {
	if err := b.store.DeleteTrainer(ctx, trainerID); err != nil {
		b.log.Error().Err(err).Int64("trainer_id", trainerID).Msg("delete trainer failed")
		b.reply(cq.Message.Chat.ID, "Не получилось удалить тренера.")
		return
	}
	b.editText(cq.Message.Chat.ID, cq.Message.MessageID, "✅ Тренер удалён.", nil)
}

// --- schedule slots ---

func (b *Bot) handleAddSlot(ctx context.Context, msg *tgbotapi.Message) {
	b.putFlow(ctx, msg.Chat.ID, flow.New(flow.AddSlot))
	b.replyMarkup(msg.Chat.ID, "Новое занятие. Выберите площадку:", locationsKeyboard())
}

func (b *Bot) slotPickLocation(ctx context.Context, cq *tgbotapi.CallbackQuery, st *flow.State, loc string) {
	st.Set("loc", loc)
	st.Advance()
	b.putFlow(ctx, cq.Message.Chat.ID, st)
	now := time.Now().UTC()
	b.sendCalendar(ctx, cq.Message.Chat.ID, cq.Message.MessageID, loc, now.Year(), now.Month(), true)
}

func (b *Bot) slotPickDay(ctx context.Context, cq *tgbotapi.CallbackQuery, st *flow.State, date string) {
	st.Set("date", date)
	st.Advance()
	b.putFlow(ctx, cq.Message.Chat.ID, st)
	b.reply(cq.Message.Chat.ID, fmt.Sprintf("Дата %s. Введите время занятия, например 18:00.", date))
}

// stepAddSlotMessage handles the text steps of the add-slot wizard; the
// location, date and trainer steps arrive as callbacks.
func (b *Bot) stepAddSlotMessage(ctx context.Context, msg *tgbotapi.Message, st *flow.State) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	switch st.Step {
	case 2:
		hhmm, err := schedule.ParseTime(text)
		if err != nil {
			b.reply(chatID, "Не понял время. Формат: ЧЧ:ММ, например 18:00.")
			return
		}
		st.Set("time", hhmm)
		st.Advance()
		b.putFlow(ctx, chatID, st)
		trainers, err := b.store.ListTrainers(ctx)
		if err != nil {
			b.log.Error().Err(err).Msg("list trainers failed")
			trainers = nil
		}
		b.replyMarkup(chatID, "Кто ведёт занятие?", trainerPickKeyboard(trainers))
	case 4:
		capacity := 10
		if text != "-" {
			n, err := strconv.Atoi(text)
			if err != nil || n < 1 {
				b.reply(chatID, "Введите число мест (минимум 1) или «-» для 10.")
				return
			}
			capacity = n
		}
		b.clearFlow(ctx, chatID)
		sl := storage.Slot{
			Location:        st.Get("loc"),
			Date:            st.Get("date"),
			Time:            st.Get("time"),
			MaxParticipants: capacity,
		}
		if id, _ := strconv.ParseInt(st.Get("trainer"), 10, 64); id != 0 {
			sl.TrainerID = &id
		}
		created, err := b.store.CreateSlot(ctx, sl)
		if errors.Is(err, storage.ErrSlotExists) {
			b.reply(chatID, "На этой площадке уже есть занятие в это время.")
			return
		}
		if err != nil {
			b.log.Error().Err(err).Msg("create slot failed")
			b.reply(chatID, "Не получилось создать занятие.")
			return
		}
		b.reply(chatID, fmt.Sprintf("✅ Занятие создано: %s, %s %s, мест: %d.",
			created.Location, created.Date, created.Time, created.MaxParticipants))
	default:
		b.reply(chatID, "Выберите вариант кнопками выше 👆")
	}
}

func (b *Bot) slotPickTrainer(ctx context.Context, cq *tgbotapi.CallbackQuery, st *flow.State, trainerID int64) {
	st.Set("trainer", strconv.FormatInt(trainerID, 10))
	st.Advance()
	b.putFlow(ctx, cq.Message.Chat.ID, st)
	b.reply(cq.Message.Chat.ID, "Сколько мест? Введите число или «-» для 10.")
}

func (b *Bot) handleAdminSchedule(ctx context.Context, msg *tgbotapi.Message) {
	from := today()
	to := time.Now().UTC().AddDate(0, 0, 14).Format("2006-01-02")
	total := 0
	for _, loc := range storage.Locations {
		slots, err := b.store.SlotsBetween(ctx, loc, from, to)
		if err != nil {
			b.log.Error().Err(err).Str("location", loc).Msg("load slots failed")
			continue
		}
		for _, sl := range slots {
			total++
			text := fmt.Sprintf("📍 %s — %s %s (%d/%d)",
				sl.Location, sl.Date, sl.Time, sl.CurrentParticipants, sl.MaxParticipants)
			kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✏️ Время",
					"sledit:"+strconv.FormatInt(sl.ID, 10)),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить",
					"sldel:"+strconv.FormatInt(sl.ID, 10)),
			))
			b.replyMarkup(msg.Chat.ID, text, kb)
		}
	}
	if total == 0 {
		b.reply(msg.Chat.ID, "Занятий на ближайшие две недели нет. Создать: /addslot")
	}
}

func (b *Bot) startEditSlot(ctx context.Context, cq *tgbotapi.CallbackQuery, scheduleID int64) {
	st := flow.New(flow.EditSlot)
	st.Set("slot", strconv.FormatInt(scheduleID, 10))
	b.putFlow(ctx, cq.Message.Chat.ID, st)
	b.reply(cq.Message.Chat.ID, "Введите новое время, например 19:30.")
}

func (b *Bot) stepEditSlot(ctx context.Context, msg *tgbotapi.Message, st *flow.State) {
	chatID := msg.Chat.ID
	hhmm, err := schedule.ParseTime(strings.TrimSpace(msg.Text))
	if err != nil {
		b.reply(chatID, "Не понял время. Формат: ЧЧ:ММ.")
		return
	}
	scheduleID, _ := strconv.ParseInt(st.Get("slot"), 10, 64)
	b.clearFlow(ctx, chatID)
	err = b.store.UpdateSlotTime(ctx, scheduleID, hhmm)
	if errors.Is(err, storage.ErrSlotExists) {
		b.reply(chatID, "На это время уже есть занятие.")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("schedule_id", scheduleID).Msg("update slot failed")
		b.reply(chatID, "Не получилось изменить время.")
		return
	}
	b.reply(chatID, "✅ Время изменено на "+hhmm+".")
}

// deleteSlot removes the slot, refunds every active booking on it and
// tells the affected users.
func (b *Bot) deleteSlot(ctx context.Context, cq *tgbotapi.CallbackQuery, scheduleID int64) {
	sl, err := b.store.GetSlot(ctx, scheduleID)
	if err != nil {
		b.reply(cq.Message.Chat.ID, "Занятие не найдено.")
		return
	}
	affected, err := b.store.DeleteSlot(ctx, scheduleID)
	if err != nil {
		b.log.Error().Err(err).Int64("schedule_id", scheduleID).Msg("delete slot failed")
		b.reply(cq.Message.Chat.ID, "Не получилось удалить занятие.")
		return
	}
	b.editText(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("✅ Занятие %s %s удалено, записей возвращено: %d.", sl.Date, sl.Time, len(affected)), nil)
	notice := fmt.Sprintf("К сожалению, занятие %s в %s (%s) отменено. Занятие возвращено на ваш абонемент.",
		sl.Date, sl.Time, sl.Location)
	for _, userID := range affected {
		if err := b.Notify(userID, notice); err != nil {
			b.log.Warn().Err(err).Int64("user_id", userID).Msg("cancellation notice failed")
		}
	}
}

// --- payments, stats, broadcast ---

func (b *Bot) handlePendingPayments(ctx context.Context, msg *tgbotapi.Message) {
	pending, err := b.store.ListPendingPayments(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("list pending payments failed")
		return
	}
	if len(pending) == 0 {
		b.reply(msg.Chat.ID, "Неподтверждённых платежей нет.")
		return
	}
	for _, p := range pending {
		text := fmt.Sprintf("💳 %s — %d ₽\nПользователь %d, %s",
			p.PlanName, p.Amount, p.UserID, p.CreatedAt.Format("02.01 15:04"))
		b.replyMarkup(msg.Chat.ID, text, paymentDecisionKeyboard(p.ID))
	}
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	counts, err := b.store.TableCounts(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("table counts failed")
		b.reply(msg.Chat.ID, "Не получилось собрать статистику.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"📊 Статистика\nПользователи: %d\nТренеры: %d\nЗанятия: %d\nЗаписи: %d\nАбонементы: %d\nПлатежи: %d",
		counts["users"], counts["trainers"], counts["schedule_slots"],
		counts["bookings"], counts["subscriptions"], counts["payments"]))
}

func (b *Bot) handleBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	b.putFlow(ctx, msg.Chat.ID, flow.New(flow.Broadcast))
	b.reply(msg.Chat.ID, "Введите текст рассылки. Её получат все, кто не отключил уведомления.")
}

func (b *Bot) stepBroadcast(ctx context.Context, msg *tgbotapi.Message, st *flow.State) {
	if st.Step != 0 {
		return
	}
	st.Set("text", msg.Text)
	st.Advance()
	b.putFlow(ctx, msg.Chat.ID, st)
	b.replyMarkup(msg.Chat.ID, "Отправляем?\n\n"+msg.Text, broadcastConfirmKeyboard())
}

func (b *Bot) broadcastSend(ctx context.Context, cq *tgbotapi.CallbackQuery, st *flow.State) {
	chatID := cq.Message.Chat.ID
	text := st.Get("text")
	b.clearFlow(ctx, chatID)
	ids, err := b.store.NotifiableUsers(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("notifiable users failed")
		b.reply(chatID, "Не получилось собрать список получателей.")
		return
	}
	sent := 0
	for _, id := range ids {
		if err := b.Notify(id, text); err != nil {
			b.log.Warn().Err(err).Int64("user_id", id).Msg("broadcast delivery failed")
			continue
		}
		sent++
	}
	b.editText(chatID, cq.Message.MessageID,
		fmt.Sprintf("📣 Рассылка отправлена: %d из %d.", sent, len(ids)), nil)
}

// --- backup / restore / export ---

func (b *Bot) handleBackup(ctx context.Context, msg *tgbotapi.Message) {
	if err := os.MkdirAll(b.backupDir, 0o755); err != nil {
		b.log.Error().Err(err).Msg("create backup dir failed")
		b.reply(msg.Chat.ID, "Не получилось создать каталог бэкапов.")
		return
	}
	name := "crazyjump-" + time.Now().UTC().Format("20060102-150405") + ".db"
	path := filepath.Join(b.backupDir, name)
	if err := b.store.BackupTo(ctx, path); err != nil {
		b.log.Error().Err(err).Msg("backup failed")
		b.reply(msg.Chat.ID, "Бэкап не удался: "+err.Error())
		return
	}
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FilePath(path))
	doc.Caption = "💾 Снимок базы " + time.Now().UTC().Format("02.01.2006 15:04")
	if _, err := b.tg.Send(doc); err != nil {
		b.log.Error().Err(err).Msg("send backup failed")
		b.reply(msg.Chat.ID, "Бэкап создан ("+path+"), но отправить файл не получилось.")
	}
}

func (b *Bot) handleRestoreStart(ctx context.Context, msg *tgbotapi.Message) {
	b.putFlow(ctx, msg.Chat.ID, flow.New(flow.Restore))
	b.reply(msg.Chat.ID, "⚠️ Восстановление заменит текущую базу. Пришлите файл бэкапа (.db) документом.")
}

func (b *Bot) stepRestore(ctx context.Context, msg *tgbotapi.Message, st *flow.State) {
	chatID := msg.Chat.ID
	if msg.Document == nil {
		b.reply(chatID, "Нужен файл документом, или /start для отмены.")
		return
	}
	b.clearFlow(ctx, chatID)

	url, err := b.tg.GetFileDirectURL(msg.Document.FileID)
	if err != nil {
		b.log.Error().Err(err).Msg("get file url failed")
		b.reply(chatID, "Не получилось скачать файл.")
		return
	}
	tmp, err := b.downloadTemp(url)
	if err != nil {
		b.log.Error().Err(err).Msg("download backup failed")
		b.reply(chatID, "Не получилось скачать файл.")
		return
	}
	defer os.Remove(tmp)

	if err := b.store.Restore(ctx, tmp); err != nil {
		b.log.Error().Err(err).Msg("restore failed")
		b.reply(chatID, "❌ Восстановление не удалось, база не изменена: "+err.Error())
		return
	}
	b.reply(chatID, "✅ База восстановлена из бэкапа.")
}

func (b *Bot) downloadTemp(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: status %d", resp.StatusCode)
	}
	f, err := os.CreateTemp("", "restore-*.db")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) {
	table := strings.TrimSpace(msg.CommandArguments())
	if table == "" {
		b.reply(msg.Chat.ID, "Укажите таблицу: /export <"+strings.Join(storage.ExportableTables(), "|")+">")
		return
	}
	var buf bytes.Buffer
	if err := b.store.ExportCSV(ctx, &buf, table); err != nil {
		b.log.Error().Err(err).Str("table", table).Msg("export failed")
		b.reply(msg.Chat.ID, "Экспорт не удался: "+err.Error())
		return
	}
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  table + ".csv",
		Bytes: buf.Bytes(),
	})
	if _, err := b.tg.Send(doc); err != nil {
		b.log.Error().Err(err).Msg("send export failed")
	}
}
