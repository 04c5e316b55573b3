// Package locales holds the bot's user-facing text.
package locales

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

// DefaultLanguage is used when no language is configured
const DefaultLanguage = "id"

// Message IDs
const (
	MsgNotConfigured     = "NotConfigured"
	MsgOwnerWelcome      = "OwnerWelcome"
	MsgAdminWelcome      = "AdminWelcome"
	MsgUserHelp          = "UserHelp"
	MsgOwnerAlreadySet   = "OwnerAlreadySet"
	MsgSetOwnerUsage     = "SetOwnerUsage"
	MsgOwnerSet          = "OwnerSet"
	MsgHelpDenied        = "HelpDenied"
	MsgHelpText          = "HelpText"
	MsgAccessDenied      = "AccessDenied"
	MsgUnknownCommand    = "UnknownCommand"
	MsgErrorGeneral      = "ErrorGeneral"
	MsgOwnerPanel        = "OwnerPanel"
	MsgAdminPanel        = "AdminPanel"
	MsgBtnOwner          = "BtnOwner"
	MsgBtnAdmin          = "BtnAdmin"
	MsgBtnDeveloper      = "BtnDeveloper"
	MsgBtnSetEmail       = "BtnSetEmail"
	MsgBtnSetPassword    = "BtnSetPassword"
	MsgBtnAddAdmin       = "BtnAddAdmin"
	MsgBtnAddPremium     = "BtnAddPremium"
	MsgBtnStats          = "BtnStats"
	MsgBtnBroadcast      = "BtnBroadcast"
	MsgBtnExport         = "BtnExport"
	MsgBtnBack           = "BtnBack"
	MsgBtnSetMode        = "BtnSetMode"
	MsgBtnAddGroup       = "BtnAddGroup"
	MsgBtnEnable         = "BtnEnable"
	MsgBtnDisable        = "BtnDisable"
	MsgPromptEmail       = "PromptEmail"
	MsgPromptPassword    = "PromptPassword"
	MsgPromptAdmin       = "PromptAdmin"
	MsgPromptPremium     = "PromptPremium"
	MsgPromptBroadcast   = "PromptBroadcast"
	MsgStats             = "Stats"
	MsgGroupModeStatus   = "GroupModeStatus"
	MsgStatusOn          = "StatusOn"
	MsgStatusOff         = "StatusOff"
	MsgGroupOnly         = "GroupOnly"
	MsgGroupAllowed      = "GroupAllowed"
	MsgModeEnabled       = "ModeEnabled"
	MsgModeDisabled      = "ModeDisabled"
	MsgEmailInvalid      = "EmailInvalid"
	MsgEmailSet          = "EmailSet"
	MsgPasswordSet       = "PasswordSet"
	MsgAdminAdded        = "AdminAdded"
	MsgPremiumAdded      = "PremiumAdded"
	MsgInvalidID         = "InvalidID"
	MsgBroadcastHeader   = "BroadcastHeader"
	MsgBroadcastDone     = "BroadcastDone"
	MsgAppealDenied      = "AppealDenied"
	MsgGroupInactive     = "GroupInactive"
	MsgEmailNotSet       = "EmailNotSet"
	MsgAppealUsage       = "AppealUsage"
	MsgRateLimited       = "RateLimited"
	MsgPhoneInvalid      = "PhoneInvalid"
	MsgAppealSent        = "AppealSent"
	MsgAppealSentPremium = "AppealSentPremium"
	MsgAppealFailed      = "AppealFailed"
	MsgExportCaption     = "ExportCaption"
	MsgExportFailed      = "ExportFailed"
)

// Catalog resolves message IDs against the embedded bundle
type Catalog struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	logger          *zap.Logger
}

// NewCatalog loads every embedded message file.
// An unparsable defaultLang falls back to DefaultLanguage.
func NewCatalog(defaultLang string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tag, err := language.Parse(defaultLang)
	if err != nil {
		logger.Warn("Failed to parse default language, using fallback",
			zap.String("language", defaultLang),
			zap.String("fallback", DefaultLanguage),
			zap.Error(err))
		tag = language.Make(DefaultLanguage)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded locales: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localeFS, entry.Name()); err != nil {
			return nil, fmt.Errorf("failed to load message file %s: %w", entry.Name(), err)
		}
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no message files found")
	}

	logger.Debug("Locale catalog loaded",
		zap.Int("files", loaded),
		zap.String("default_language", tag.String()))

	return &Catalog{
		bundle:          bundle,
		defaultLanguage: tag,
		logger:          logger,
	}, nil
}

// DefaultLanguage returns the configured default language tag
func (c *Catalog) DefaultLanguage() language.Tag {
	return c.defaultLanguage
}

// Localizer returns a localizer preferring langs, then the default language
func (c *Catalog) Localizer(langs ...string) *i18n.Localizer {
	prefs := append(append([]string{}, langs...), c.defaultLanguage.String())
	return i18n.NewLocalizer(c.bundle, prefs...)
}

// Message renders msgID with data.
// On failure it retries in English and finally returns the ID itself.
func (c *Catalog) Message(loc *i18n.Localizer, msgID string, data map[string]any) string {
	cfg := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	}

	msg, err := loc.Localize(cfg)
	if err == nil {
		return msg
	}
	c.logger.Error("Failed to localize message", zap.String("message_id", msgID), zap.Error(err))

	english := i18n.NewLocalizer(c.bundle, language.English.String())
	if msg, err := english.Localize(cfg); err == nil {
		return msg
	}
	return msgID
}

// Text is Message with a fresh localizer for lang
func (c *Catalog) Text(lang, msgID string, data map[string]any) string {
	return c.Message(c.Localizer(lang), msgID, data)
}
