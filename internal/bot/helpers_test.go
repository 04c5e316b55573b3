package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"appealbot/internal/access"
	"appealbot/internal/locales"
	"appealbot/internal/mailer"
	"appealbot/internal/models"
	"appealbot/internal/quota"
	"appealbot/internal/storage/stubs"
)

const testToken = "123456:TEST-TOKEN"

var errEditFailed = errors.New("Bad Request: message to edit not found")

// fakeAPI records every outbound call instead of talking to Telegram
type fakeAPI struct {
	mu         sync.Mutex
	sent       []tgbotapi.Chattable
	requests   []tgbotapi.Chattable
	failSendTo map[int64]bool
	failEdits  bool
	nextID     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{failSendTo: make(map[int64]bool), nextID: 1000}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var chatID int64
	switch cfg := c.(type) {
	case tgbotapi.MessageConfig:
		chatID = cfg.ChatID
	case tgbotapi.DocumentConfig:
		chatID = cfg.ChatID
	}
	if f.failSendTo[chatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}

	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID, Chat: &tgbotapi.Chat{ID: chatID}}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.failEdits {
		return nil, errEditFailed
	}
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return tgbotapi.WebhookInfo{}, nil
}

func (f *fakeAPI) StopReceivingUpdates() {}

// messages returns sent text messages addressed to chatID
func (f *fakeAPI) messages(chatID int64) []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok && msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeAPI) lastMessage(t *testing.T, chatID int64) tgbotapi.MessageConfig {
	t.Helper()
	msgs := f.messages(chatID)
	require.NotEmpty(t, msgs, "no message sent to chat %d", chatID)
	return msgs[len(msgs)-1]
}

// edits returns every successful message edit
func (f *fakeAPI) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.requests {
		if edit, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, edit)
		}
	}
	return out
}

func (f *fakeAPI) lastEdit(t *testing.T) tgbotapi.EditMessageTextConfig {
	t.Helper()
	edits := f.edits()
	require.NotEmpty(t, edits, "no message edited")
	return edits[len(edits)-1]
}

func (f *fakeAPI) documents() []tgbotapi.DocumentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tgbotapi.DocumentConfig
	for _, c := range f.sent {
		if doc, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, doc)
		}
	}
	return out
}

// fakeRelay records appeals instead of sending mail
type fakeRelay struct {
	mu    sync.Mutex
	calls []string
	creds []mailer.Credentials
	err   error
	delay time.Duration // simulates a slow SMTP round trip
}

func (r *fakeRelay) SendAppeal(ctx context.Context, phone string, creds mailer.Credentials) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, phone)
	r.creds = append(r.creds, creds)
	return nil
}

func (r *fakeRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	bot     *Bot
	api     *fakeAPI
	relay   *fakeRelay
	db      *stubs.MockDB
	clock   *testClock
	catalog *locales.Catalog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := stubs.NewMockDB()
	require.NoError(t, db.Initialize(context.Background()))

	catalog, err := locales.NewCatalog("id", zap.NewNop())
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)}
	svc := access.NewService(db)

	// Each tick advances the fake clock instead of sleeping
	countdown := &quota.Countdown{
		Step: time.Second,
		After: func(d time.Duration) <-chan time.Time {
			clock.Advance(d)
			ch := make(chan time.Time, 1)
			ch <- clock.Now()
			return ch
		},
	}

	api := newFakeAPI()
	relay := &fakeRelay{}
	b := newBot(api, testToken, db, Dependencies{
		Access:    svc,
		Limiter:   quota.NewLimiter(db, svc, 5, time.Hour, quota.WithClock(clock.Now)),
		Countdown: countdown,
		Relay:     relay,
		Catalog:   catalog,
	}, zap.NewNop())
	t.Cleanup(func() { b.Stop(time.Second) })

	return &testEnv{bot: b, api: api, relay: relay, db: db, clock: clock, catalog: catalog}
}

// text renders a message the way the bot does for users without a language code
func (e *testEnv) text(msgID string, data map[string]any) string {
	return e.catalog.Text("", msgID, data)
}

func (e *testEnv) bootstrap(t *testing.T, ownerID int64) {
	t.Helper()
	_, err := e.bot.access.BootstrapOwner(context.Background(), ownerID)
	require.NoError(t, err)
}

func (e *testEnv) configureEmail(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.db.SetConfig(ctx, models.KeyEmailFrom, "cs@example.com"))
	require.NoError(t, e.db.SetConfig(ctx, models.KeyEmailPassword, "app-password"))
}

func commandUpdate(userID, chatID int64, chatType, text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmdLen = i
	}
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: userID},
			Chat:      &tgbotapi.Chat{ID: chatID, Type: chatType, Title: "chat"},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
		},
	}
}

// privateCommand is a command sent in the user's own chat
func privateCommand(userID int64, text string) tgbotapi.Update {
	return commandUpdate(userID, userID, "private", text)
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 2,
			From:      &tgbotapi.User{ID: userID},
			Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
			Text:      text,
		},
	}
}

func callbackUpdate(userID, chatID int64, chatType, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			From: &tgbotapi.User{ID: userID},
			Message: &tgbotapi.Message{
				MessageID: 77,
				Chat:      &tgbotapi.Chat{ID: chatID, Type: chatType},
			},
			Data: data,
		},
	}
}

// hasButton reports whether markup contains a button with callback data
func hasButton(markup any, data string) bool {
	var keyboard tgbotapi.InlineKeyboardMarkup
	switch m := markup.(type) {
	case tgbotapi.InlineKeyboardMarkup:
		keyboard = m
	case *tgbotapi.InlineKeyboardMarkup:
		if m == nil {
			return false
		}
		keyboard = *m
	default:
		return false
	}
	for _, row := range keyboard.InlineKeyboard {
		for _, button := range row {
			if button.CallbackData != nil && *button.CallbackData == data {
				return true
			}
		}
	}
	return false
}
