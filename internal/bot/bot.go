// Package bot implements the Telegram front of the CrazyJump trampoline
// park: customer menus (plans, bookings, settings) and the admin command
// surface (trainers, schedule, payments, backups). All persistent state
// lives in the injected storage.Store; in-progress wizard state lives in
// the injected flow.Store.
package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/crazyjump/crazyjump-bot/internal/flow"
	"github.com/crazyjump/crazyjump-bot/internal/queue"
	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetFileDirectURL(fileID string) (string, error)
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) GetFileDirectURL(fileID string) (string, error) {
	return c.api.GetFileDirectURL(fileID)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Bot wires the Telegram transport to the store, the wizard state and the
// optional event publisher.
type Bot struct {
	tg        telegramClient
	store     *storage.Store
	flows     flow.Store
	publisher *queue.Publisher // nil when no broker is configured
	adminID   int64
	backupDir string
	log       zerolog.Logger
}

// New authorizes against the Telegram API and builds the bot.
func New(token string, store *storage.Store, flows flow.Store, publisher *queue.Publisher,
	adminID int64, backupDir string, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newBot(&realTelegramClient{api: api}, store, flows, publisher, adminID, backupDir, log), nil
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, store *storage.Store, flows flow.Store,
	publisher *queue.Publisher, adminID int64, backupDir string, log zerolog.Logger) *Bot {
	return newBot(tg, store, flows, publisher, adminID, backupDir, log)
}

func newBot(tg telegramClient, store *storage.Store, flows flow.Store, publisher *queue.Publisher,
	adminID int64, backupDir string, log zerolog.Logger) *Bot {
	return &Bot{
		tg:        tg,
		store:     store,
		flows:     flows,
		publisher: publisher,
		adminID:   adminID,
		backupDir: backupDir,
		log:       log,
	}
}

// ConfigureWebhook registers url with Telegram so updates arrive over
// HTTP instead of polling.
func (b *Bot) ConfigureWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	_, err = b.tg.Request(wh)
	return err
}

// Start runs the long-polling loop until ctx is cancelled. Webhook
// deployments skip Start and feed updates through HandleUpdate instead.
func (b *Bot) Start(ctx context.Context) {
	// A leftover webhook blocks getUpdates.
	if _, err := b.tg.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.log.Warn().Err(err).Msg("delete webhook failed")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.log.Info().Str("username", b.tg.SelfUser().UserName).Msg("bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. Exported so the webhook endpoint can
// feed updates through the same path as polling.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// Notify sends a plain text message; it satisfies the queue consumer's
// Notifier and the jobs' Sender.
func (b *Bot) Notify(chatID int64, text string) error {
	_, err := b.tg.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) replyMarkup(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	if _, err := b.tg.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) answerCallback(id string) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(id, "")); err != nil {
		b.log.Debug().Err(err).Msg("answer callback failed")
	}
}

// editText replaces the text and keyboard of an inline-keyboard message,
// used for calendar paging so the chat does not fill with stale calendars.
func (b *Bot) editText(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = markup
	if _, err := b.tg.Send(edit); err != nil {
		b.log.Debug().Err(err).Msg("edit message failed")
	}
}

func (b *Bot) clearFlow(ctx context.Context, chatID int64) {
	if err := b.flows.Clear(ctx, chatID); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("clear flow failed")
	}
}

func (b *Bot) putFlow(ctx context.Context, chatID int64, st *flow.State) {
	if err := b.flows.Put(ctx, chatID, st); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("save flow failed")
	}
}
