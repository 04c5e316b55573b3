package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"appealbot/internal/locales"
	"appealbot/internal/models"
)

// pendingActionTTL is how long an armed owner prompt waits for its input
const pendingActionTTL = 10 * time.Minute

// handleConversation consumes the pending owner action with the next text message.
// The action is cleared even when the input is rejected.
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message) {
	state, ok := b.takeState(message.From.ID)
	if !ok || state.Action == ActionNone {
		return
	}
	if time.Since(state.StartedAt) > pendingActionTTL {
		b.logger.Debug("Pending action expired",
			zap.Int64("user_id", message.From.ID),
			zap.Stringer("action", state.Action),
			zap.Time("started_at", state.StartedAt),
		)
		return
	}

	text := strings.TrimSpace(message.Text)
	chatID := message.Chat.ID
	user := message.From

	b.logger.Debug("Consuming pending action",
		zap.Int64("user_id", user.ID),
		zap.Stringer("action", state.Action),
	)

	switch state.Action {
	case ActionSetEmail:
		if !strings.Contains(text, "@") {
			b.reply(chatID, b.text(user, locales.MsgEmailInvalid, nil))
			return
		}
		if err := b.db.SetConfig(ctx, models.KeyEmailFrom, text); err != nil {
			b.reportError("Failed to save sender email", err)
			b.reply(chatID, b.text(user, locales.MsgErrorGeneral, nil))
			return
		}
		b.reply(chatID, b.text(user, locales.MsgEmailSet, map[string]any{"Email": text}))

	case ActionSetPassword:
		if err := b.db.SetConfig(ctx, models.KeyEmailPassword, text); err != nil {
			b.reportError("Failed to save email password", err)
			b.reply(chatID, b.text(user, locales.MsgErrorGeneral, nil))
			return
		}
		b.reply(chatID, b.text(user, locales.MsgPasswordSet, nil))

	case ActionAddAdmin, ActionAddPremium:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			b.reply(chatID, b.text(user, locales.MsgInvalidID, nil))
			return
		}

		add, doneID := b.access.AddAdmin, locales.MsgAdminAdded
		if state.Action == ActionAddPremium {
			add, doneID = b.access.AddPremium, locales.MsgPremiumAdded
		}
		if err := add(ctx, id); err != nil {
			b.reportError("Failed to add member", err, zap.Int64("member_id", id), zap.Stringer("action", state.Action))
			b.reply(chatID, b.text(user, locales.MsgErrorGeneral, nil))
			return
		}
		b.logger.Info("Member added", zap.Int64("member_id", id), zap.Stringer("action", state.Action))
		b.reply(chatID, b.text(user, doneID, map[string]any{"ID": id}))

	case ActionBroadcast:
		sent, err := b.broadcast(ctx, user, text)
		if err != nil {
			b.reportError("Failed to broadcast", err)
			b.reply(chatID, b.text(user, locales.MsgErrorGeneral, nil))
			return
		}
		b.reply(chatID, b.text(user, locales.MsgBroadcastDone, map[string]any{"Count": sent}))
	}
}

// broadcast sends text to every admin, premium user and the owner, one at a time.
// Failed deliveries are logged and skipped.
func (b *Bot) broadcast(ctx context.Context, user *tgbotapi.User, text string) (int, error) {
	recipients, err := b.access.BroadcastRecipients(ctx)
	if err != nil {
		return 0, err
	}

	body := b.text(user, locales.MsgBroadcastHeader, nil) + text
	sent := 0
	for _, id := range recipients {
		if ctx.Err() != nil {
			break
		}
		msg := tgbotapi.NewMessage(id, body)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.send(msg); err != nil {
			b.logger.Warn("Broadcast delivery failed", zap.Int64("recipient", id), zap.Error(err))
			continue
		}
		sent++
	}

	b.logger.Info("Broadcast finished",
		zap.Int("recipients", len(recipients)),
		zap.Int("delivered", sent),
	)
	return sent, nil
}
