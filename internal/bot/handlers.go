package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"appealbot/internal/locales"
)

// Callback data of every inline button
const (
	cbMenuOwner      = "menu_owner"
	cbMenuAdmin      = "menu_admin"
	cbBackToStart    = "back_to_start"
	cbOwnerSetEmail  = "owner_setemail"
	cbOwnerSetPass   = "owner_setpass"
	cbOwnerAddAdmin  = "owner_addadmin"
	cbOwnerAddPrem   = "owner_addpremium"
	cbOwnerStats     = "owner_stats"
	cbOwnerBroadcast = "owner_broadcast"
	cbOwnerExport    = "owner_export"
	cbAdminSetMode   = "admin_setmode"
	cbAdminAddGroup  = "admin_addgrup"
	cbSetModeEnable  = "setmode_enable"
	cbSetModeDisable = "setmode_disable"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			sentry.CurrentHub().Recover(r)
			if message.Chat != nil {
				b.reply(message.Chat.ID, b.text(message.From, locales.MsgErrorGeneral, nil))
			}
		}
	}()

	if message.From == nil || message.Chat == nil {
		return
	}

	// Commands leave a pending owner action in place; only plain text consumes it
	if message.IsCommand() {
		switch message.Command() {
		case "setowner":
			b.handleSetOwner(ctx, message)
		case "start":
			b.handleStart(ctx, message)
		case "help":
			b.handleHelp(ctx, message)
		case "banding", "appeal":
			b.handleAppeal(ctx, message)
		default:
			if message.Chat.IsPrivate() {
				b.reply(message.Chat.ID, b.text(message.From, locales.MsgUnknownCommand, nil))
			}
		}
		return
	}

	if message.Text != "" {
		b.handleConversation(ctx, message)
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
			sentry.CurrentHub().Recover(r)
		}
	}()

	// Answer the callback query to remove loading state
	b.request(tgbotapi.NewCallback(query.ID, ""))

	if query.From == nil || query.Message == nil || query.Message.Chat == nil {
		return
	}

	switch query.Data {
	case cbMenuOwner:
		b.handleMenuOwner(ctx, query)
	case cbMenuAdmin:
		b.handleMenuAdmin(ctx, query)
	case cbBackToStart:
		b.handleBackToStart(ctx, query)
	case cbOwnerSetEmail:
		b.handleOwnerPrompt(ctx, query, ActionSetEmail, locales.MsgPromptEmail)
	case cbOwnerSetPass:
		b.handleOwnerPrompt(ctx, query, ActionSetPassword, locales.MsgPromptPassword)
	case cbOwnerAddAdmin:
		b.handleOwnerPrompt(ctx, query, ActionAddAdmin, locales.MsgPromptAdmin)
	case cbOwnerAddPrem:
		b.handleOwnerPrompt(ctx, query, ActionAddPremium, locales.MsgPromptPremium)
	case cbOwnerBroadcast:
		b.handleOwnerPrompt(ctx, query, ActionBroadcast, locales.MsgPromptBroadcast)
	case cbOwnerStats:
		b.handleOwnerStats(ctx, query)
	case cbOwnerExport:
		b.handleOwnerExport(ctx, query)
	case cbAdminSetMode:
		b.handleAdminSetMode(ctx, query)
	case cbAdminAddGroup:
		b.handleAdminAddGroup(ctx, query)
	case cbSetModeEnable, cbSetModeDisable:
		b.handleSetModeButton(ctx, query)
	}
}

// HandleUpdate processes one update to completion
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	ctx := b.ctx

	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	}

	// Handle callback queries (inline keyboard button clicks)
	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// Dispatch handles an update on its own goroutine so a running
// countdown never blocks other users
func (b *Bot) Dispatch(update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.HandleUpdate(update)
	}()
}

// Stop cancels running handlers and waits for them up to timeout
func (b *Bot) Stop(timeout time.Duration) error {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("handlers still running after %s", timeout)
	}
}

// setState records a pending action for userID
func (b *Bot) setState(userID int64, state *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = state
}

// takeState removes and returns the pending action of userID
func (b *Bot) takeState(userID int64) (*ConversationState, bool) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	state, ok := b.states[userID]
	if ok {
		delete(b.states, userID)
	}
	return state, ok
}
