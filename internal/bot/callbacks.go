package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"appealbot/internal/locales"
	"appealbot/internal/models"
)

// requireOwner re-checks ownership at press time and edits in a denial otherwise
func (b *Bot) requireOwner(ctx context.Context, query *tgbotapi.CallbackQuery) bool {
	ok, err := b.access.IsOwner(ctx, query.From.ID)
	return b.checkGate(query, ok, err)
}

// requireAdmin re-checks admin rights at press time
func (b *Bot) requireAdmin(ctx context.Context, query *tgbotapi.CallbackQuery) bool {
	ok, err := b.access.IsAdmin(ctx, query.From.ID)
	return b.checkGate(query, ok, err)
}

func (b *Bot) checkGate(query *tgbotapi.CallbackQuery, ok bool, err error) bool {
	chatID, messageID := query.Message.Chat.ID, query.Message.MessageID
	if err != nil {
		b.reportError("Failed to check role", err, zap.Int64("user_id", query.From.ID))
		b.edit(chatID, messageID, b.text(query.From, locales.MsgErrorGeneral, nil), "", nil)
		return false
	}
	if !ok {
		b.logger.Warn("Unauthorized button press",
			zap.Int64("user_id", query.From.ID),
			zap.String("username", query.From.UserName),
			zap.String("callback_data", query.Data),
		)
		b.edit(chatID, messageID, b.text(query.From, locales.MsgAccessDenied, nil), "", nil)
		return false
	}
	return true
}

func (b *Bot) button(user *tgbotapi.User, msgID, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(b.text(user, msgID, nil), data)
}

// handleMenuOwner shows the owner panel
func (b *Bot) handleMenuOwner(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.requireOwner(ctx, query) {
		return
	}

	user := query.From
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnSetEmail, cbOwnerSetEmail)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnSetPassword, cbOwnerSetPass)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnAddAdmin, cbOwnerAddAdmin)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnAddPremium, cbOwnerAddPrem)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnStats, cbOwnerStats)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnBroadcast, cbOwnerBroadcast)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnExport, cbOwnerExport)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnBack, cbBackToStart)),
	)
	b.editScreen(query.Message.Chat.ID, query.Message.MessageID, screen{
		text:      b.text(user, locales.MsgOwnerPanel, nil),
		parseMode: tgbotapi.ModeMarkdown,
		markup:    &keyboard,
	})
}

// handleMenuAdmin shows the admin panel
func (b *Bot) handleMenuAdmin(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.requireAdmin(ctx, query) {
		return
	}

	user := query.From
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnSetMode, cbAdminSetMode)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnAddGroup, cbAdminAddGroup)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnBack, cbBackToStart)),
	)
	b.editScreen(query.Message.Chat.ID, query.Message.MessageID, screen{
		text:      b.text(user, locales.MsgAdminPanel, nil),
		parseMode: tgbotapi.ModeMarkdown,
		markup:    &keyboard,
	})
}

// handleBackToStart redraws the welcome screen in place
func (b *Bot) handleBackToStart(ctx context.Context, query *tgbotapi.CallbackQuery) {
	s, _, err := b.startScreen(ctx, query.From)
	if err != nil {
		b.reportError("Failed to render start screen", err, zap.Int64("user_id", query.From.ID))
		return
	}
	b.editScreen(query.Message.Chat.ID, query.Message.MessageID, s)
}

// handleOwnerPrompt arms a pending action and asks for its input
func (b *Bot) handleOwnerPrompt(ctx context.Context, query *tgbotapi.CallbackQuery, action PendingAction, promptID string) {
	if !b.requireOwner(ctx, query) {
		return
	}

	b.setState(query.From.ID, &ConversationState{
		Action:    action,
		StartedAt: time.Now(),
	})
	b.logger.Debug("Pending action set",
		zap.Int64("user_id", query.From.ID),
		zap.Stringer("action", action),
	)
	b.edit(query.Message.Chat.ID, query.Message.MessageID, b.text(query.From, promptID, nil), "", nil)
}

// handleOwnerStats shows store counters
func (b *Bot) handleOwnerStats(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.requireOwner(ctx, query) {
		return
	}

	stats, err := b.access.Stats(ctx)
	if err != nil {
		b.reportError("Failed to collect stats", err, zap.Int64("user_id", query.From.ID))
		b.edit(query.Message.Chat.ID, query.Message.MessageID, b.text(query.From, locales.MsgErrorGeneral, nil), "", nil)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(b.button(query.From, locales.MsgBtnBack, cbMenuOwner)),
	)
	b.editScreen(query.Message.Chat.ID, query.Message.MessageID, screen{
		text: b.text(query.From, locales.MsgStats, map[string]any{
			"Appeals": stats.Appeals,
			"Premium": stats.Premium,
			"Admins":  stats.Admins,
			"Groups":  stats.Groups,
		}),
		parseMode: tgbotapi.ModeMarkdown,
		markup:    &keyboard,
	})
}

// handleAdminSetMode shows the group-mode status and the two choices
func (b *Bot) handleAdminSetMode(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.requireAdmin(ctx, query) {
		return
	}

	enabled, err := b.access.GroupModeEnabled(ctx)
	if err != nil {
		b.reportError("Failed to read group mode", err, zap.Int64("user_id", query.From.ID))
		return
	}

	status := locales.MsgStatusOff
	if enabled {
		status = locales.MsgStatusOn
	}

	user := query.From
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnEnable, cbSetModeEnable)),
		tgbotapi.NewInlineKeyboardRow(b.button(user, locales.MsgBtnDisable, cbSetModeDisable)),
	)
	b.editScreen(query.Message.Chat.ID, query.Message.MessageID, screen{
		text: b.text(user, locales.MsgGroupModeStatus, map[string]any{
			"Status": b.text(user, status, nil),
		}),
		markup: &keyboard,
	})
}

// handleAdminAddGroup allow-lists the chat the button was pressed in
func (b *Bot) handleAdminAddGroup(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.requireAdmin(ctx, query) {
		return
	}

	chat := query.Message.Chat
	if chat.IsPrivate() {
		b.edit(chat.ID, query.Message.MessageID, b.text(query.From, locales.MsgGroupOnly, nil), "", nil)
		return
	}

	if err := b.access.AllowGroup(ctx, chat.ID); err != nil {
		b.reportError("Failed to allow group", err, zap.Int64("chat_id", chat.ID))
		b.edit(chat.ID, query.Message.MessageID, b.text(query.From, locales.MsgErrorGeneral, nil), "", nil)
		return
	}

	b.logger.Info("Group allowed",
		zap.Int64("chat_id", chat.ID),
		zap.String("title", chat.Title),
		zap.Int64("by", query.From.ID),
	)
	b.edit(chat.ID, query.Message.MessageID, b.text(query.From, locales.MsgGroupAllowed, nil), "", nil)
}

// handleSetModeButton stores the chosen group mode
func (b *Bot) handleSetModeButton(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.requireAdmin(ctx, query) {
		return
	}

	mode, msgID := models.GroupModeEnable, locales.MsgModeEnabled
	if query.Data == cbSetModeDisable {
		mode, msgID = models.GroupModeDisable, locales.MsgModeDisabled
	}

	if err := b.access.SetGroupMode(ctx, mode); err != nil {
		b.reportError("Failed to set group mode", err, zap.String("mode", mode))
		b.edit(query.Message.Chat.ID, query.Message.MessageID, b.text(query.From, locales.MsgErrorGeneral, nil), "", nil)
		return
	}

	b.logger.Info("Group mode changed", zap.String("mode", mode), zap.Int64("by", query.From.ID))
	b.edit(query.Message.Chat.ID, query.Message.MessageID, b.text(query.From, msgID, nil), "", nil)
}
