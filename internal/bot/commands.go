package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"appealbot/internal/access"
	"appealbot/internal/locales"
	"appealbot/internal/mailer"
	"appealbot/internal/models"
	"appealbot/internal/phone"
	"appealbot/internal/quota"
)

// screen is a rendered message that can be sent fresh or edited in place
type screen struct {
	text      string
	parseMode string
	markup    *tgbotapi.InlineKeyboardMarkup
}

func (b *Bot) sendScreen(chatID int64, s screen) {
	msg := tgbotapi.NewMessage(chatID, s.text)
	msg.ParseMode = s.parseMode
	if s.markup != nil {
		msg.ReplyMarkup = *s.markup
	}
	b.send(msg)
}

func (b *Bot) editScreen(chatID int64, messageID int, s screen) {
	b.edit(chatID, messageID, s.text, s.parseMode, s.markup)
}

// handleSetOwner claims ownership while no owner is configured
func (b *Bot) handleSetOwner(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	current, err := b.access.Owner(ctx)
	if err != nil {
		b.reportError("Failed to read owner", err, zap.Int64("user_id", message.From.ID))
		b.reply(chatID, b.text(message.From, locales.MsgErrorGeneral, nil))
		return
	}
	if current != "" {
		b.reply(chatID, b.text(message.From, locales.MsgOwnerAlreadySet, map[string]any{"Owner": current}))
		return
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) == 0 {
		b.reply(chatID, b.text(message.From, locales.MsgSetOwnerUsage, map[string]any{"ID": message.From.ID}))
		return
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(chatID, b.text(message.From, locales.MsgInvalidID, nil))
		return
	}

	owner, err := b.access.BootstrapOwner(ctx, id)
	switch {
	case errors.Is(err, access.ErrOwnerAlreadySet):
		b.reply(chatID, b.text(message.From, locales.MsgOwnerAlreadySet, map[string]any{"Owner": owner}))
	case err != nil:
		b.reportError("Failed to set owner", err, zap.Int64("user_id", message.From.ID))
		b.reply(chatID, b.text(message.From, locales.MsgErrorGeneral, nil))
	default:
		b.logger.Info("Owner configured",
			zap.String("owner_id", owner),
			zap.Int64("set_by", message.From.ID),
		)
		b.reply(chatID, b.text(message.From, locales.MsgOwnerSet, map[string]any{"Owner": owner}))
	}
}

// handleStart shows the role-specific welcome
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	s, configured, err := b.startScreen(ctx, message.From)
	if err != nil {
		b.reportError("Failed to render start screen", err, zap.Int64("user_id", message.From.ID))
		b.reply(message.Chat.ID, b.text(message.From, locales.MsgErrorGeneral, nil))
		return
	}
	if configured {
		b.saveChat(ctx, message.Chat)
	}
	b.sendScreen(message.Chat.ID, s)
}

// startScreen renders the welcome for user; configured is false while no owner exists
func (b *Bot) startScreen(ctx context.Context, user *tgbotapi.User) (screen, bool, error) {
	ownerID, ok, err := b.access.OwnerID(ctx)
	if err != nil {
		return screen{}, false, err
	}
	if !ok {
		return screen{text: b.text(user, locales.MsgNotConfigured, nil)}, false, nil
	}

	role, err := b.access.Role(ctx, user.ID)
	if err != nil {
		return screen{}, true, err
	}

	developer := tgbotapi.NewInlineKeyboardButtonURL(
		b.text(user, locales.MsgBtnDeveloper, nil),
		fmt.Sprintf("tg://user?id=%d", ownerID),
	)

	switch role {
	case models.RoleOwner:
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.text(user, locales.MsgBtnOwner, nil), cbMenuOwner)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.text(user, locales.MsgBtnAdmin, nil), cbMenuAdmin)),
			tgbotapi.NewInlineKeyboardRow(developer),
		)
		return screen{text: b.text(user, locales.MsgOwnerWelcome, nil), markup: &keyboard}, true, nil
	case models.RoleAdmin:
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.text(user, locales.MsgBtnAdmin, nil), cbMenuAdmin)),
		)
		return screen{text: b.text(user, locales.MsgAdminWelcome, nil), markup: &keyboard}, true, nil
	default:
		keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(developer))
		return screen{
			text:      b.text(user, locales.MsgUserHelp, nil),
			parseMode: tgbotapi.ModeHTML,
			markup:    &keyboard,
		}, true, nil
	}
}

// handleHelp shows command help to admins
func (b *Bot) handleHelp(ctx context.Context, message *tgbotapi.Message) {
	ok, err := b.access.IsAdmin(ctx, message.From.ID)
	if err != nil {
		b.reportError("Failed to check admin", err, zap.Int64("user_id", message.From.ID))
		b.reply(message.Chat.ID, b.text(message.From, locales.MsgErrorGeneral, nil))
		return
	}
	if !ok {
		b.reply(message.Chat.ID, b.text(message.From, locales.MsgHelpDenied, nil))
		return
	}
	b.reply(message.Chat.ID, b.text(message.From, locales.MsgHelpText, nil))
}

// handleAppeal relays a phone number to the support mailbox
func (b *Bot) handleAppeal(ctx context.Context, message *tgbotapi.Message) {
	user := message.From
	chat := message.Chat
	log := b.logger.With(zap.Int64("user_id", user.ID), zap.Int64("chat_id", chat.ID))

	b.saveChat(ctx, chat)

	fail := func(msg string, err error) {
		b.reportError(msg, err, zap.Int64("user_id", user.ID))
		b.reply(chat.ID, b.text(user, locales.MsgErrorGeneral, nil))
	}

	isAdmin, err := b.access.IsAdmin(ctx, user.ID)
	if err != nil {
		fail("Failed to check admin", err)
		return
	}
	if !isAdmin {
		b.reply(chat.ID, b.text(user, locales.MsgAppealDenied, nil))
		return
	}

	allowed, err := b.access.GroupAllowed(ctx, chat.ID, chat.IsPrivate())
	if err != nil {
		fail("Failed to check group", err)
		return
	}
	if !allowed {
		b.reply(chat.ID, b.text(user, locales.MsgGroupInactive, nil))
		return
	}

	creds, err := b.credentials(ctx)
	if err != nil {
		fail("Failed to read email credentials", err)
		return
	}
	if creds.From == "" || creds.Password == "" {
		b.reply(chat.ID, b.text(user, locales.MsgEmailNotSet, nil))
		return
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) == 0 {
		b.reply(chat.ID, b.text(user, locales.MsgAppealUsage, nil))
		return
	}

	release, err := b.lockAppeals(ctx, user.ID)
	if err != nil {
		log.Info("Appeal aborted while waiting for a previous one", zap.Error(err))
		return
	}
	defer release()

	decision, err := b.waitForQuota(ctx, user, chat.ID)
	if err != nil {
		log.Info("Appeal aborted while rate limited", zap.Error(err))
		return
	}

	number, err := phone.Normalize(args[0])
	if err != nil {
		b.reply(chat.ID, b.text(user, locales.MsgPhoneInvalid, nil))
		return
	}

	if err := b.relay.SendAppeal(ctx, number, creds); err != nil {
		b.reportError("Failed to relay appeal", err, zap.Int64("user_id", user.ID))
		b.reply(chat.ID, b.text(user, locales.MsgAppealFailed, map[string]any{"Error": err.Error()}))
		return
	}

	if decision.Premium {
		log.Info("Appeal relayed", zap.Bool("premium", true))
		b.replyMarkdown(chat.ID, b.text(user, locales.MsgAppealSentPremium, map[string]any{"Phone": number}))
		return
	}

	used, err := b.limiter.RecordSuccess(ctx, user.ID)
	if err != nil {
		b.reportError("Failed to record usage", err, zap.Int64("user_id", user.ID))
	}
	log.Info("Appeal relayed", zap.Int("used", used), zap.Int("quota", b.limiter.Quota()))
	b.replyMarkdown(chat.ID, b.text(user, locales.MsgAppealSent, map[string]any{
		"Phone": number,
		"Used":  used,
		"Quota": b.limiter.Quota(),
	}))
}

// lockAppeals serializes the appeals of one user from the quota check to the usage record
func (b *Bot) lockAppeals(ctx context.Context, userID int64) (func(), error) {
	b.appealMu.Lock()
	lock, ok := b.appealLocks[userID]
	if !ok {
		lock = make(chan struct{}, 1)
		b.appealLocks[userID] = lock
	}
	b.appealMu.Unlock()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// waitForQuota returns once the user may relay.
// While blocked it shows a live countdown; a failed redraw aborts the appeal.
func (b *Bot) waitForQuota(ctx context.Context, user *tgbotapi.User, chatID int64) (quota.Decision, error) {
	for {
		decision, err := b.limiter.Check(ctx, user.ID)
		if err != nil {
			b.reportError("Failed to check rate limit", err, zap.Int64("user_id", user.ID))
			b.reply(chatID, b.text(user, locales.MsgErrorGeneral, nil))
			return decision, err
		}
		if decision.Allowed {
			return decision, nil
		}

		b.logger.Info("Appeal rate limited",
			zap.Int64("user_id", user.ID),
			zap.Int("used", decision.Used),
			zap.Duration("wait", decision.Wait),
		)

		msg := tgbotapi.NewMessage(chatID, b.waitText(user, decision.Wait))
		msg.ParseMode = tgbotapi.ModeMarkdown
		sent, err := b.send(msg)
		if err != nil {
			return decision, err
		}

		err = b.countdown.Run(ctx, decision.Wait, func(ctx context.Context, remaining time.Duration) error {
			if remaining <= 0 {
				return nil
			}
			return b.edit(chatID, sent.MessageID, b.waitText(user, remaining), tgbotapi.ModeMarkdown, nil)
		})
		if err != nil {
			return decision, err
		}
	}
}

func (b *Bot) waitText(user *tgbotapi.User, wait time.Duration) string {
	minutes, seconds := splitWait(wait)
	return b.text(user, locales.MsgRateLimited, map[string]any{
		"Minutes": minutes,
		"Seconds": seconds,
	})
}

// credentials reads the owner-configured sender account
func (b *Bot) credentials(ctx context.Context) (mailer.Credentials, error) {
	from, _, err := b.db.GetConfig(ctx, models.KeyEmailFrom)
	if err != nil {
		return mailer.Credentials{}, err
	}
	password, _, err := b.db.GetConfig(ctx, models.KeyEmailPassword)
	if err != nil {
		return mailer.Credentials{}, err
	}
	return mailer.Credentials{From: from, Password: password}, nil
}

// saveChat upserts the chat directory entry; failures are only logged
func (b *Bot) saveChat(ctx context.Context, chat *tgbotapi.Chat) {
	entry := models.Chat{ID: chat.ID, Type: chat.Type, Title: chat.Title}
	if err := b.db.UpsertChat(ctx, entry); err != nil {
		b.logger.Warn("Failed to save chat", zap.Int64("chat_id", chat.ID), zap.Error(err))
	}
}
