package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"appealbot/internal/access"
	"appealbot/internal/locales"
	"appealbot/internal/mailer"
	"appealbot/internal/quota"
	"appealbot/internal/storage"
)

// BotAPI is the subset of *tgbotapi.BotAPI the bot uses
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
	StopReceivingUpdates()
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api       BotAPI
	token     string
	db        storage.Storage
	access    *access.Service
	limiter   *quota.Limiter
	countdown *quota.Countdown
	relay     mailer.Relay
	catalog   *locales.Catalog
	throttle  ratelimit.Limiter
	states    map[int64]*ConversationState
	statesMu  sync.Mutex
	logger    *zap.Logger

	// one slot per user, held from the quota check until usage is recorded
	appealLocks map[int64]chan struct{}
	appealMu    sync.Mutex

	// ctx is the parent of every handler context; cancel stops running countdowns
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PendingAction is the owner input the bot is waiting for
type PendingAction int

const (
	ActionNone PendingAction = iota
	ActionSetEmail
	ActionSetPassword
	ActionAddAdmin
	ActionAddPremium
	ActionBroadcast
)

func (a PendingAction) String() string {
	switch a {
	case ActionSetEmail:
		return "set_email"
	case ActionSetPassword:
		return "set_password"
	case ActionAddAdmin:
		return "add_admin"
	case ActionAddPremium:
		return "add_premium"
	case ActionBroadcast:
		return "broadcast"
	default:
		return "none"
	}
}

// ConversationState is the pending action of one owner session
type ConversationState struct {
	Action    PendingAction
	StartedAt time.Time
}
