package bot

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// send delivers a message through the outbound throttle
func (b *Bot) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.api == nil {
		return tgbotapi.Message{}, nil // For testing
	}

	b.throttle.Take()
	msg, err := b.api.Send(c)
	if err != nil {
		b.logger.Warn("Failed to send message", zap.Error(err))
	}
	return msg, err
}

// request calls a Telegram method that does not return a message
func (b *Bot) request(c tgbotapi.Chattable) error {
	if b.api == nil {
		return nil // For testing
	}

	b.throttle.Take()
	_, err := b.api.Request(c)
	if err != nil {
		b.logger.Warn("Telegram request failed", zap.Error(err))
	}
	return err
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	b.send(msg)
}

// edit replaces the text of a message, optionally with a new keyboard
func (b *Bot) edit(chatID int64, messageID int, text, parseMode string, markup *tgbotapi.InlineKeyboardMarkup) error {
	var cfg tgbotapi.EditMessageTextConfig
	if markup != nil {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		cfg = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	cfg.ParseMode = parseMode
	return b.request(cfg)
}

// text renders a message for the user's language
func (b *Bot) text(user *tgbotapi.User, msgID string, data map[string]any) string {
	lang := ""
	if user != nil {
		lang = user.LanguageCode
	}
	return b.catalog.Text(lang, msgID, data)
}

// reportError logs err and forwards it to Sentry
func (b *Bot) reportError(msg string, err error, fields ...zap.Field) {
	b.logger.Error(msg, append(fields, zap.Error(err))...)
	sentry.CaptureException(fmt.Errorf("%s: %w", msg, err))
}

// splitWait returns whole minutes and remaining seconds
func splitWait(d time.Duration) (int, int) {
	total := int(d.Round(time.Second) / time.Second)
	return total / 60, total % 60
}
