package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appealbot/internal/locales"
	"appealbot/internal/models"
)

func TestSetOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bot.HandleUpdate(privateCommand(100, "/setowner"))
	assert.Equal(t, env.text(locales.MsgSetOwnerUsage, map[string]any{"ID": int64(100)}), env.api.lastMessage(t, 100).Text)

	env.bot.HandleUpdate(privateCommand(100, "/setowner abc"))
	assert.Equal(t, env.text(locales.MsgInvalidID, nil), env.api.lastMessage(t, 100).Text)

	env.bot.HandleUpdate(privateCommand(100, "/setowner 100"))
	assert.Equal(t, env.text(locales.MsgOwnerSet, map[string]any{"Owner": "100"}), env.api.lastMessage(t, 100).Text)

	// second bootstrap leaves the owner unchanged
	env.bot.HandleUpdate(privateCommand(999, "/setowner 999"))
	assert.Equal(t, env.text(locales.MsgOwnerAlreadySet, map[string]any{"Owner": "100"}), env.api.lastMessage(t, 999).Text)

	owner, err := env.bot.access.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", owner)
}

func TestStartBeforeOwnerIsSet(t *testing.T) {
	env := newTestEnv(t)

	env.bot.HandleUpdate(privateCommand(100, "/start"))
	assert.Equal(t, env.text(locales.MsgNotConfigured, nil), env.api.lastMessage(t, 100).Text)

	chats, err := env.db.ListChats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestStartOwnerGetsOwnerMenu(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t, 100)

	env.bot.HandleUpdate(privateCommand(100, "/start"))

	msg := env.api.lastMessage(t, 100)
	assert.Equal(t, env.text(locales.MsgOwnerWelcome, nil), msg.Text)
	assert.NotEqual(t, env.text(locales.MsgUserHelp, nil), msg.Text)
	assert.True(t, hasButton(msg.ReplyMarkup, cbMenuOwner))
	assert.True(t, hasButton(msg.ReplyMarkup, cbMenuAdmin))

	chats, err := env.db.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, int64(100), chats[0].ID)
}

func TestStartByRole(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t, 100)
	require.NoError(t, env.bot.access.AddAdmin(context.Background(), 200))

	env.bot.HandleUpdate(privateCommand(200, "/start"))
	admin := env.api.lastMessage(t, 200)
	assert.Equal(t, env.text(locales.MsgAdminWelcome, nil), admin.Text)
	assert.True(t, hasButton(admin.ReplyMarkup, cbMenuAdmin))
	assert.False(t, hasButton(admin.ReplyMarkup, cbMenuOwner))

	env.bot.HandleUpdate(privateCommand(500, "/start"))
	user := env.api.lastMessage(t, 500)
	assert.Equal(t, env.text(locales.MsgUserHelp, nil), user.Text)
	assert.Equal(t, tgbotapi.ModeHTML, user.ParseMode)
	assert.False(t, hasButton(user.ReplyMarkup, cbMenuAdmin))
}

func TestHelpRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t, 100)

	env.bot.HandleUpdate(privateCommand(500, "/help"))
	assert.Equal(t, env.text(locales.MsgHelpDenied, nil), env.api.lastMessage(t, 500).Text)

	env.bot.HandleUpdate(privateCommand(100, "/help"))
	assert.Equal(t, env.text(locales.MsgHelpText, nil), env.api.lastMessage(t, 100).Text)
}

func TestUnknownCommandRepliesOnlyInPrivate(t *testing.T) {
	env := newTestEnv(t)

	env.bot.HandleUpdate(privateCommand(500, "/nope"))
	assert.Equal(t, env.text(locales.MsgUnknownCommand, nil), env.api.lastMessage(t, 500).Text)

	env.bot.HandleUpdate(commandUpdate(500, -1001, "group", "/nope"))
	assert.Empty(t, env.api.messages(-1001))
}

func TestAppealDeniedForPlainUser(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t, 100)
	env.configureEmail(t)

	env.bot.HandleUpdate(privateCommand(500, "/banding 6281234567890"))
	assert.Equal(t, env.text(locales.MsgAppealDenied, nil), env.api.lastMessage(t, 500).Text)
	assert.Zero(t, env.relay.count())
}

func TestAppealAdminWithoutEmail(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t, 100)
	require.NoError(t, env.bot.access.AddAdmin(context.Background(), 200))

	env.bot.HandleUpdate(privateCommand(200, "/banding 6281234567890"))
	assert.Equal(t, env.text(locales.MsgEmailNotSet, nil), env.api.lastMessage(t, 200).Text)
	assert.Zero(t, env.relay.count())
}

func TestAppealGroupGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t, 100)
	env.configureEmail(t)
	require.NoError(t, env.bot.access.AddAdmin(ctx, 200))

	env.bot.HandleUpdate(commandUpdate(200, -1001, "supergroup", "/banding 6281234567890"))
	assert.Equal(t, env.text(locales.MsgGroupInactive, nil), env.api.lastMessage(t, -1001).Text)
	assert.Zero(t, env.relay.count())

	require.NoError(t, env.bot.access.AllowGroup(ctx, -1001))
	env.bot.HandleUpdate(commandUpdate(200, -1001, "supergroup", "/banding@appeal_bot 6281234567890"))
	assert.Equal(t, 1, env.relay.count())

	// group mode opens every group
	require.NoError(t, env.bot.access.SetGroupMode(ctx, models.GroupModeEnable))
	env.bot.HandleUpdate(commandUpdate(200, -2002, "group", "/banding 6281234567890"))
	assert.Equal(t, 2, env.relay.count())
}

func TestAppealUsageAndPhoneValidation(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t, 100)
	env.configureEmail(t)

	env.bot.HandleUpdate(privateCommand(100, "/banding"))
	assert.Equal(t, env.text(locales.MsgAppealUsage, nil), env.api.lastMessage(t, 100).Text)

	env.bot.HandleUpdate(privateCommand(100, "/banding 12-34"))
	assert.Equal(t, env.text(locales.MsgPhoneInvalid, nil), env.api.lastMessage(t, 100).Text)
	assert.Zero(t, env.relay.count())
}

func TestAppealNormalizesAndRelays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t, 100)
	env.configureEmail(t)
	require.NoError(t, env.bot.access.AddAdmin(ctx, 200))

	env.bot.HandleUpdate(privateCommand(200, "/appeal 081234567890"))

	require.Equal(t, 1, env.relay.count())
	assert.Equal(t, "6281234567890", env.relay.calls[0])
	assert.Equal(t, "cs@example.com", env.relay.creds[0].From)

	msg := env.api.lastMessage(t, 200)
	assert.Equal(t, env.text(locales.MsgAppealSent, map[string]any{"Phone": "6281234567890", "Used": 1, "Quota": 5}), msg.Text)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
}

func TestAppealPremiumIsNotRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t, 100)
	env.configureEmail(t)

	for i := 0; i < 7; i++ {
		env.bot.HandleUpdate(privateCommand(100, "/banding 6281234567890"))
	}

	assert.Equal(t, 7, env.relay.count())
	assert.Equal(t, env.text(locales.MsgAppealSentPremium, map[string]any{"Phone": "6281234567890"}), env.api.lastMessage(t, 100).Text)

	total, err := env.db.CountUsage(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAppealRelayFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t, 100)
	env.configureEmail(t)
	require.NoError(t, env.bot.access.AddAdmin(ctx, 200))
	env.relay.err = errors.New("535 5.7.8 Username and Password not accepted")

	env.bot.HandleUpdate(privateCommand(200, "/banding 6281234567890"))

	assert.Equal(t, env.text(locales.MsgAppealFailed, map[string]any{"Error": env.relay.err.Error()}), env.api.lastMessage(t, 200).Text)
	total, err := env.db.CountUsage(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAppealRateLimitScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t, 100)
	env.configureEmail(t)
	require.NoError(t, env.bot.access.AddAdmin(ctx, 200))

	for i := 1; i <= 5; i++ {
		env.bot.HandleUpdate(privateCommand(200, "/banding 6281234567890"))
		assert.Equal(t,
			env.text(locales.MsgAppealSent, map[string]any{"Phone": "6281234567890", "Used": i, "Quota": 5}),
			env.api.lastMessage(t, 200).Text)
	}
	require.Equal(t, 5, env.relay.count())

	// The countdown message can no longer be edited, so the sixth appeal is dropped
	env.api.failEdits = true
	env.bot.HandleUpdate(privateCommand(200, "/banding 6281234567890"))

	blocked := env.api.lastMessage(t, 200)
	assert.Equal(t, env.text(locales.MsgRateLimited, map[string]any{"Minutes": 60, "Seconds": 0}), blocked.Text)
	assert.Equal(t, 5, env.relay.count())

	env.api.failEdits = false
	env.clock.Advance(time.Hour)

	env.bot.HandleUpdate(privateCommand(200, "/banding 6281234567890"))
	assert.Equal(t, 6, env.relay.count())
	assert.Equal(t,
		env.text(locales.MsgAppealSent, map[string]any{"Phone": "6281234567890", "Used": 1, "Quota": 5}),
		env.api.lastMessage(t, 200).Text)
}

func TestAppealProceedsAfterCountdown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t, 100)
	env.configureEmail(t)
	require.NoError(t, env.bot.access.AddAdmin(ctx, 200))

	start := env.clock.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, env.db.AppendUsage(ctx, 200, start.Add(-50*time.Minute)))
	}

	env.bot.HandleUpdate(privateCommand(200, "/banding 6281234567890"))

	// ten minutes of one-second redraws, the final zero is not drawn
	edits := env.api.edits()
	require.Len(t, edits, 599)
	assert.Equal(t, env.text(locales.MsgRateLimited, map[string]any{"Minutes": 9, "Seconds": 59}), edits[0].Text)
	assert.Equal(t, env.text(locales.MsgRateLimited, map[string]any{"Minutes": 0, "Seconds": 1}), edits[598].Text)
	assert.True(t, strings.HasPrefix(edits[0].Text, "⏳"))

	assert.Equal(t, 1, env.relay.count())
	assert.Equal(t, 10*time.Minute, env.clock.Now().Sub(start))
}

func TestConcurrentAppealsRespectQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t, 100)
	env.configureEmail(t)
	require.NoError(t, env.bot.access.AddAdmin(ctx, 200))

	env.relay.delay = 50 * time.Millisecond
	// blocked appeals give up on the first countdown redraw
	env.api.failEdits = true

	for i := 0; i < 8; i++ {
		env.bot.Dispatch(privateCommand(200, "/banding 6281234567890"))
	}
	env.bot.wg.Wait()

	assert.Equal(t, 5, env.relay.count())

	used, err := env.db.CountUsageSince(ctx, 200, env.clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, used)

	var limited int
	for _, msg := range env.api.messages(200) {
		if strings.Contains(msg.Text, "menit") {
			limited++
		}
	}
	assert.Equal(t, 3, limited)
}

func TestCommandKeepsPendingAction(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t, 100)

	env.bot.HandleUpdate(callbackUpdate(100, 100, "private", cbOwnerSetEmail))
	_, pending := env.bot.states[100]
	require.True(t, pending)

	env.bot.HandleUpdate(privateCommand(100, "/start"))
	_, pending = env.bot.states[100]
	assert.True(t, pending)

	env.bot.HandleUpdate(textUpdate(100, "late@example.com"))
	email, found, err := env.db.GetConfig(context.Background(), models.KeyEmailFrom)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "late@example.com", email)
	assert.Empty(t, env.bot.states)
}

func TestExpiredPendingActionIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t, 100)

	env.bot.setState(100, &ConversationState{
		Action:    ActionSetEmail,
		StartedAt: time.Now().Add(-pendingActionTTL - time.Minute),
	})

	env.bot.HandleUpdate(textUpdate(100, "stale@example.com"))

	_, found, err := env.db.GetConfig(context.Background(), models.KeyEmailFrom)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, env.api.messages(100))
	assert.Empty(t, env.bot.states)
}

func TestSplitWait(t *testing.T) {
	minutes, seconds := splitWait(59*time.Minute + 59*time.Second)
	assert.Equal(t, 59, minutes)
	assert.Equal(t, 59, seconds)

	minutes, seconds = splitWait(time.Hour)
	assert.Equal(t, 60, minutes)
	assert.Equal(t, 0, seconds)
}
