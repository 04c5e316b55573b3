package bot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// initDataMaxAge bounds how old a Mini App login may be
const initDataMaxAge = 24 * time.Hour

// HTTPServer serves the owner API next to the webhook endpoint
type HTTPServer struct {
	bot *Bot
	// skipAuth is only set for local development: polling mode with DEBUG on
	skipAuth bool
}

// NewHTTPServer creates a new HTTP API for the owner.
// Authentication is skipped only when both webhookMode is off and debug is on.
func NewHTTPServer(bot *Bot, webhookMode, debug bool) *HTTPServer {
	return &HTTPServer{
		bot:      bot,
		skipAuth: !webhookMode && debug,
	}
}

// RegisterRoutes registers the owner API on r
func (hs *HTTPServer) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.Use(hs.authMiddleware())
	{
		api.GET("/stats", hs.handleStats)
		api.GET("/export", hs.handleExport)
	}
}

// validateTelegramInitData validates the Telegram Mini App initData and returns the user id
func (hs *HTTPServer) validateTelegramInitData(initData string, now time.Time) (int64, error) {
	if initData == "" {
		return 0, fmt.Errorf("missing initData")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("missing hash in initData")
	}
	values.Del("hash")

	// Create data-check-string
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dataCheckString strings.Builder
	for i, k := range keys {
		if i > 0 {
			dataCheckString.WriteByte('\n')
		}
		dataCheckString.WriteString(k)
		dataCheckString.WriteByte('=')
		dataCheckString.WriteString(values.Get(k))
	}

	if !hmac.Equal([]byte(signInitData(hs.bot.token, dataCheckString.String())), []byte(hash)) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("missing or invalid auth_date")
	}
	if now.Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, fmt.Errorf("initData is too old")
	}

	userStr := values.Get("user")
	if userStr == "" {
		return 0, fmt.Errorf("missing user data")
	}

	var userData struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userStr), &userData); err != nil {
		return 0, fmt.Errorf("invalid user data: %w", err)
	}
	return userData.ID, nil
}

// signInitData computes the Mini App hash of a data-check-string
func signInitData(token, dataCheckString string) string {
	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(token))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(dataCheckString))
	return hex.EncodeToString(h.Sum(nil))
}

// authMiddleware admits only the owner, authenticated with Mini App initData
func (hs *HTTPServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := hs.bot.logger

		if hs.skipAuth {
			log.Debug("Skipping authentication (debug polling mode)",
				zap.String("path", c.Request.URL.Path),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "tma ") {
			log.Warn("Missing or invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		userID, err := hs.validateTelegramInitData(strings.TrimPrefix(authHeader, "tma "), time.Now())
		if err != nil {
			log.Warn("Failed to validate initData",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		owner, err := hs.bot.access.IsOwner(c.Request.Context(), userID)
		if err != nil {
			hs.bot.reportError("Failed to check owner", err, zap.Int64("user_id", userID))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}
		if !owner {
			log.Warn("Non-owner API access", zap.Int64("user_id", userID))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}

		log.Debug("Authenticated request",
			zap.Int64("user_id", userID),
			zap.String("path", c.Request.URL.Path),
		)
		c.Set("user_id", userID)
		c.Next()
	}
}

// handleStats returns the owner panel counters and the group mode
func (hs *HTTPServer) handleStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := hs.bot.access.Stats(ctx)
	if err != nil {
		hs.bot.reportError("Failed to collect stats", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	mode, err := hs.bot.access.GroupMode(ctx)
	if err != nil {
		hs.bot.reportError("Failed to read group mode", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"appeals":    stats.Appeals,
		"premium":    stats.Premium,
		"admins":     stats.Admins,
		"groups":     stats.Groups,
		"group_mode": mode,
	})
}

// handleExport streams the same workbook the export button sends
func (hs *HTTPServer) handleExport(c *gin.Context) {
	buf, err := hs.bot.buildExport(c.Request.Context())
	if err != nil {
		hs.bot.reportError("Failed to build export", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build export"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", exportFileName(time.Now())))
	c.Data(http.StatusOK, exportContentType, buf.Bytes())
}
