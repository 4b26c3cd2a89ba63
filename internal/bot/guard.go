package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type messageHandler func(ctx context.Context, msg *tgbotapi.Message)

const deniedText = "⛔ Эта команда вам недоступна."

// adminOnly wraps a handler so only the configured admin chat can run it.
// Everyone else gets a fixed denial; the attempt is logged, never returned
// as an error.
func (b *Bot) adminOnly(h messageHandler) messageHandler {
	return func(ctx context.Context, msg *tgbotapi.Message) {
		if msg.Chat.ID != b.adminID {
			b.log.Warn().Int64("chat_id", msg.Chat.ID).Str("command", msg.Command()).
				Msg("admin command denied")
			b.reply(msg.Chat.ID, deniedText)
			return
		}
		h(ctx, msg)
	}
}

// trainerOnly wraps a handler so only users flagged as trainers (or the
// admin) can run it. A store error fails closed.
func (b *Bot) trainerOnly(h messageHandler) messageHandler {
	return func(ctx context.Context, msg *tgbotapi.Message) {
		if msg.Chat.ID != b.adminID {
			ok, err := b.store.IsTrainer(ctx, msg.Chat.ID)
			if err != nil {
				b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("trainer check failed")
			}
			if err != nil || !ok {
				b.log.Warn().Int64("chat_id", msg.Chat.ID).Str("command", msg.Command()).
					Msg("trainer command denied")
				b.reply(msg.Chat.ID, deniedText)
				return
			}
		}
		h(ctx, msg)
	}
}
