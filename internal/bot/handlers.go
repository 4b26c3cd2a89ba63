package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crazyjump/crazyjump-bot/internal/flow"
)

const welcomeText = `Привет! Это бот батутного парка CrazyJump 🤸

Здесь можно купить абонемент, записаться на занятие и посмотреть расписание. Выбирайте действие в меню ниже.`

const helpText = `Команды:
/start — главное меню
/help — эта справка

Кнопки меню:
🛒 Абонементы — купить абонемент
📅 Записаться — запись на занятие
🎫 Мой абонемент — остаток занятий
📋 Мои записи — предстоящие занятия
👨‍🏫 Тренеры — наша команда
⚙️ Настройки — уведомления и напоминания`

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From
	if from == nil || from.IsBot {
		return
	}
	if err := b.store.UpsertUser(ctx, msg.Chat.ID, from.UserName, from.FirstName, from.LastName); err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("upsert user failed")
	}

	// Commands and menu buttons always win over an in-progress wizard:
	// starting something new implicitly abandons the old flow.
	if msg.IsCommand() {
		b.clearFlow(ctx, msg.Chat.ID)
		b.handleCommand(ctx, msg)
		return
	}
	if b.handleMenuButton(ctx, msg) {
		return
	}

	st, err := b.flows.Get(ctx, msg.Chat.ID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("load flow failed")
		return
	}
	if st == nil {
		b.reply(msg.Chat.ID, "Не понял 🤔 Нажмите /start, чтобы открыть меню.")
		return
	}
	b.handleFlowMessage(ctx, msg, st)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "menu":
		b.replyMarkup(msg.Chat.ID, welcomeText, mainMenuKeyboard())
	case "help":
		b.reply(msg.Chat.ID, helpText)
	case "ping":
		b.reply(msg.Chat.ID, "pong")
	case "mysessions":
		b.trainerOnly(b.handleMySessions)(ctx, msg)
	case "addtrainer":
		b.adminOnly(b.handleAddTrainer)(ctx, msg)
	case "deltrainer":
		b.adminOnly(b.handleDelTrainer)(ctx, msg)
	case "addslot":
		b.adminOnly(b.handleAddSlot)(ctx, msg)
	case "schedule":
		b.adminOnly(b.handleAdminSchedule)(ctx, msg)
	case "payments":
		b.adminOnly(b.handlePendingPayments)(ctx, msg)
	case "stats":
		b.adminOnly(b.handleStats)(ctx, msg)
	case "broadcast":
		b.adminOnly(b.handleBroadcast)(ctx, msg)
	case "backup":
		b.adminOnly(b.handleBackup)(ctx, msg)
	case "restore":
		b.adminOnly(b.handleRestoreStart)(ctx, msg)
	case "export":
		b.adminOnly(b.handleExport)(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "Неизвестная команда. /help")
	}
}

// handleMenuButton matches the reply-keyboard labels. Returns true when the
// message was a menu action. Menu taps abandon any in-progress wizard
// except the ones they themselves start.
func (b *Bot) handleMenuButton(ctx context.Context, msg *tgbotapi.Message) bool {
	switch strings.TrimSpace(msg.Text) {
	case btnPlans:
		b.clearFlow(ctx, msg.Chat.ID)
		b.showPlans(ctx, msg.Chat.ID)
	case btnBook:
		b.startBookingFlow(ctx, msg.Chat.ID)
	case btnMySub:
		b.clearFlow(ctx, msg.Chat.ID)
		b.showSubscription(ctx, msg.Chat.ID)
	case btnMyBooks:
		b.clearFlow(ctx, msg.Chat.ID)
		b.showBookings(ctx, msg.Chat.ID)
	case btnTrainers:
		b.clearFlow(ctx, msg.Chat.ID)
		b.showTrainers(ctx, msg.Chat.ID)
	case btnSettings:
		b.clearFlow(ctx, msg.Chat.ID)
		b.showSettings(ctx, msg.Chat.ID)
	default:
		return false
	}
	return true
}

// handleFlowMessage feeds a plain message into the user's active wizard.
func (b *Bot) handleFlowMessage(ctx context.Context, msg *tgbotapi.Message, st *flow.State) {
	switch st.Flow {
	case flow.AddTrainer:
		b.stepAddTrainer(ctx, msg, st)
	case flow.AddSlot:
		b.stepAddSlotMessage(ctx, msg, st)
	case flow.EditSlot:
		b.stepEditSlot(ctx, msg, st)
	case flow.Broadcast:
		b.stepBroadcast(ctx, msg, st)
	case flow.Restore:
		b.stepRestore(ctx, msg, st)
	case flow.Booking:
		// Booking advances through inline buttons only.
		b.reply(msg.Chat.ID, "Выберите вариант кнопками выше 👆")
	default:
		b.clearFlow(ctx, msg.Chat.ID)
		b.reply(msg.Chat.ID, "Начнём сначала: /start")
	}
}

func (b *Bot) showTrainers(ctx context.Context, chatID int64) {
	trainers, err := b.store.ListTrainers(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("list trainers failed")
		b.reply(chatID, "Не получилось загрузить список тренеров, попробуйте позже.")
		return
	}
	if len(trainers) == 0 {
		b.reply(chatID, "Список тренеров пока пуст.")
		return
	}
	for _, t := range trainers {
		text := fmt.Sprintf("👨‍🏫 %s\n%s\n\n%s", t.FullName, t.Specialization, t.Bio)
		if t.PhotoID != "" {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(t.PhotoID))
			photo.Caption = text
			if _, err := b.tg.Send(photo); err != nil {
				b.log.Error().Err(err).Msg("send trainer photo failed")
			}
			continue
		}
		b.reply(chatID, text)
	}
}

func (b *Bot) showSettings(ctx context.Context, chatID int64) {
	u, err := b.store.GetUser(ctx, chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("get user failed")
		b.reply(chatID, "Не получилось загрузить настройки, попробуйте позже.")
		return
	}
	b.replyMarkup(chatID, "⚙️ Настройки. Нажмите, чтобы переключить:", settingsKeyboard(u))
}

func (b *Bot) handleMySessions(ctx context.Context, msg *tgbotapi.Message) {
	slots, err := b.store.SlotsForTrainer(ctx, msg.Chat.ID, today())
	if err != nil {
		b.log.Error().Err(err).Msg("trainer slots failed")
		b.reply(msg.Chat.ID, "Не получилось загрузить расписание.")
		return
	}
	if len(slots) == 0 {
		b.reply(msg.Chat.ID, "У вас нет предстоящих занятий.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Ваши занятия:\n")
	for _, sl := range slots {
		fmt.Fprintf(&sb, "\n%s %s — %s (%d/%d)",
			sl.Date, sl.Time, sl.Location, sl.CurrentParticipants, sl.MaxParticipants)
	}
	b.reply(msg.Chat.ID, sb.String())
}
