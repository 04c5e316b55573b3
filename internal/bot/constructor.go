package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"appealbot/internal/access"
	"appealbot/internal/locales"
	"appealbot/internal/mailer"
	"appealbot/internal/quota"
	"appealbot/internal/storage"
)

// Dependencies are the services the handlers call into
type Dependencies struct {
	Access    *access.Service
	Limiter   *quota.Limiter
	Countdown *quota.Countdown
	Relay     mailer.Relay
	Catalog   *locales.Catalog

	// RequestsPerSecond caps outbound Telegram calls; 0 disables the cap
	RequestsPerSecond int
}

// NewBot creates a new Telegram bot
func NewBot(token string, db storage.Storage, deps Dependencies, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	return newBot(api, token, db, deps, logger), nil
}

func newBot(api BotAPI, token string, db storage.Storage, deps Dependencies, logger *zap.Logger) *Bot {
	throttle := ratelimit.NewUnlimited()
	if deps.RequestsPerSecond > 0 {
		throttle = ratelimit.New(deps.RequestsPerSecond)
	}

	accessSvc := deps.Access
	if accessSvc == nil {
		accessSvc = access.NewService(db)
	}
	countdown := deps.Countdown
	if countdown == nil {
		countdown = quota.NewCountdown()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bot{
		api:       api,
		token:     token,
		db:        db,
		access:    accessSvc,
		limiter:   deps.Limiter,
		countdown: countdown,
		relay:     deps.Relay,
		catalog:   deps.Catalog,
		throttle:  throttle,
		states:    make(map[int64]*ConversationState),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,

		appealLocks: make(map[int64]chan struct{}),
	}
}

// Access returns the access service shared with the HTTP layer
func (b *Bot) Access() *access.Service {
	return b.access
}
