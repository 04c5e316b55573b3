package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"appealbot/internal/access"
	"appealbot/internal/bot"
	"appealbot/internal/config"
	"appealbot/internal/locales"
	"appealbot/internal/mailer"
	"appealbot/internal/quota"
	"appealbot/internal/storage"
	"appealbot/internal/storage/ch"
	"appealbot/internal/storage/mongodb"
	"appealbot/internal/storage/sqlite"
	"appealbot/internal/storage/stubs"
)

// App represents the application
type App struct {
	config *config.Config
	logger *zap.Logger
	db     storage.Storage
	bot    *bot.Bot
	server *http.Server

	// stops the retention worker
	cancel context.CancelFunc
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	if err := initSentry(cfg); err != nil {
		logger.Warn("Sentry disabled", zap.Error(err))
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting appeal bot",
		zap.String("env", cfg.AppEnv),
		zap.String("version", cfg.Version),
		zap.String("storage", cfg.StorageDriver),
	)

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	// Initialize bot
	if err := app.initBot(); err != nil {
		return nil, err
	}

	// Initialize HTTP server
	app.initHTTPServer()

	return app, nil
}

// newLogger builds a production logger, or a development one when DEBUG is set
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func initSentry(cfg *config.Config) error {
	if cfg.SentryDSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
		Release:     cfg.Version,
		Debug:       cfg.Debug,
	})
}

// newStorage opens the backend selected by STORAGE_DRIVER
func newStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Info("Using in-memory database")
		return stubs.NewMockDB(), nil

	case config.DriverClickHouse:
		logger.Info("Connecting to ClickHouse",
			zap.String("host", cfg.ClickHouseHost),
			zap.Int("port", cfg.ClickHousePort),
			zap.String("database", cfg.ClickHouseDatabase),
			zap.String("user", cfg.ClickHouseUser),
			zap.Bool("tls", cfg.ClickHouseUseTLS),
		)
		db, err := ch.NewClickHouseDB(
			cfg.ClickHouseHost,
			cfg.ClickHousePort,
			cfg.ClickHouseDatabase,
			cfg.ClickHouseUser,
			cfg.ClickHousePassword,
			cfg.ClickHouseUseTLS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		return db, nil

	case config.DriverMongo:
		logger.Info("Connecting to MongoDB", zap.String("database", cfg.MongoDatabase))
		db, err := mongodb.NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		return db, nil

	case config.DriverSQLite:
		logger.Info("Opening SQLite database", zap.String("path", cfg.SQLitePath))
		db, err := sqlite.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

// initDatabase initializes the database connection
func (a *App) initDatabase() error {
	ctx := context.Background()

	db, err := newStorage(ctx, a.config, a.logger)
	if err != nil {
		return err
	}

	// Initialize database schema and default data
	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initBot initializes the Telegram bot
func (a *App) initBot() error {
	catalog, err := locales.NewCatalog(a.config.DefaultLanguage, a.logger)
	if err != nil {
		return fmt.Errorf("failed to load translations: %w", err)
	}

	accessSvc := access.NewService(a.db)
	relay := mailer.NewSMTPRelay(mailer.Options{
		Host:      a.config.SMTPHost,
		Port:      a.config.SMTPPort,
		Recipient: a.config.AppealRecipient,
		Timeout:   a.config.SMTPTimeout,
	})

	limiter := quota.NewLimiter(a.db, accessSvc, a.config.RateLimitQuota, a.config.RateLimitWindow)

	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.db, bot.Dependencies{
		Access:            accessSvc,
		Limiter:           limiter,
		Countdown:         quota.NewCountdown(),
		Relay:             relay,
		Catalog:           catalog,
		RequestsPerSecond: a.config.TelegramRPS,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	a.logger.Info("Bot created successfully",
		zap.Int("quota", limiter.Quota()),
		zap.Duration("window", limiter.Window()),
		zap.String("recipient", relay.Recipient()),
	)

	a.bot = telegramBot
	return nil
}

// newRouter wires health checks, the webhook endpoint and the owner API
func (a *App) newRouter() *gin.Engine {
	if !a.config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		mode := "polling"
		if a.config.WebhookMode {
			mode = "webhook"
		}
		c.String(http.StatusOK, "Appeal bot is running (mode: %s)", mode)
	})

	// Webhook endpoint (only used in webhook mode)
	r.POST("/telegram-webhook", func(c *gin.Context) {
		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			a.logger.Warn("Error decoding webhook update", zap.Error(err))
			c.Status(http.StatusBadRequest)
			return
		}

		// Process update in background to respond quickly to Telegram
		a.bot.Dispatch(update)
		c.Status(http.StatusOK)
	})

	bot.NewHTTPServer(a.bot, a.config.WebhookMode, a.config.Debug).RegisterRoutes(r)
	return r
}

// initHTTPServer initializes the HTTP server for health checks and webhook
func (a *App) initHTTPServer() {
	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.newRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.config.UsageRetention > 0 {
		go a.runRetention(ctx, a.config.UsageRetention)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in appropriate mode
	if a.config.WebhookMode {
		// Webhook mode: configure webhook and wait for HTTP requests
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
			a.Shutdown()
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
		a.logger.Info("Webhook configured. Bot will receive updates via HTTP endpoint /telegram-webhook")
	} else {
		// Polling mode: actively poll Telegram servers
		go func() {
			a.logger.Info("Starting bot in POLLING mode...")
			if err := a.bot.Start(); err != nil {
				a.logger.Error("Failed to start bot", zap.Error(err))
				sigChan <- syscall.SIGTERM
			}
		}()
	}

	// Wait for interrupt signal
	sig := <-sigChan

	a.logger.Info("Shutting down...", zap.String("signal", sig.String()))
	return a.Shutdown()
}

// runRetention prunes usage entries older than retention once per tick
func (a *App) runRetention(ctx context.Context, retention time.Duration) {
	interval := retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.pruneOnce(ctx, retention, time.Now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pruneOnce never deletes entries still inside the rate-limit window
func (a *App) pruneOnce(ctx context.Context, retention time.Duration, now time.Time) {
	if retention < a.config.RateLimitWindow {
		retention = a.config.RateLimitWindow
	}
	removed, err := a.db.PruneUsage(ctx, now.Add(-retention))
	if err != nil {
		a.logger.Error("Failed to prune usage log", zap.Error(err))
		sentry.CaptureException(err)
		return
	}
	if removed > 0 {
		a.logger.Info("Pruned usage log", zap.Int64("removed", removed))
	}
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	if a.cancel != nil {
		a.cancel()
	}

	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Running countdowns are cancelled here
	if err := a.bot.Stop(10 * time.Second); err != nil {
		a.logger.Warn("Bot shutdown incomplete", zap.Error(err))
	}

	sentry.Flush(2 * time.Second)

	// Close database
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	return nil
}
