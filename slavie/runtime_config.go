package slavie

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"
	"log/slog"
)

var (
	columnRuntimeConfigAdminUsername = "admin_username"
	columnRuntimeConfigAdminPassword = "admin_password"
)

// RuntimeConfig holds settings that can be changed while the bot is
// running, and are persisted across restarts. There's a single row.
//
//nolint:lll // struct tags can't be split
type RuntimeConfig struct {
	ModelUintID

	// Paused stops the bot from handling commands. Button presses on
	// existing proposals are still handled, so nothing is left half-done.
	Paused bool `json:"paused" gorm:"not null;default:false"`

	// Opens a discord gateway websocket connection.
	// If the bot receives slash commands via gateway, this is required.
	// If the bot receives commands via webhook, enabling this allows the
	// bot to appear online and set its status.
	DiscordGatewayEnabled bool `json:"discord_gateway_enabled" gorm:"not null;default:true"`

	// DiscordCustomStatus is the custom status message displayed for the bot on Discord.
	DiscordCustomStatus string `json:"discord_custom_status"`

	// DiscordErrorMessage is shown to users when a command fails for a
	// reason other than a rule denial (ex: a database error)
	DiscordErrorMessage string `json:"discord_error_message" binding:"min=1,max=2000"`

	// DiscordNotificationChannelID is the channel the startup message
	// is sent to, if set
	DiscordNotificationChannelID string `json:"discord_notification_channel_id"`

	// RecoverPanic recovers and logs panics in command handlers
	RecoverPanic bool `json:"recover_panic" gorm:"not null;default:false"`

	// TenorEnabled toggles GIF lookups for embeds
	TenorEnabled bool `json:"tenor_enabled" gorm:"not null;default:true"`

	// AdminUsername for the web UI
	AdminUsername string `json:"admin_username" log:"[redacted]"`

	// AdminPassword stores the hashed password for the admin user
	AdminPassword string `json:"-" log:"[redacted]"`

	LogLevel               DBLogLevel `gorm:"default:INFO;check:log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"log_level" binding:"oneof=INFO WARN ERROR DEBUG"`
	DiscordLogLevel        DBLogLevel `gorm:"default:INFO;check:discord_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"discord_log_level" binding:"oneof=INFO WARN ERROR DEBUG"`
	DiscordGoLogLevel      DBLogLevel `gorm:"default:WARN;column:discordgo_log_level;check:discordgo_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"discordgo_log_level" binding:"oneof=INFO WARN ERROR DEBUG"`
	DatabaseLogLevel       DBLogLevel `gorm:"default:WARN;check:database_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"database_log_level" binding:"oneof=INFO WARN ERROR DEBUG"`
	DiscordWebhookLogLevel DBLogLevel `gorm:"default:INFO;check:discord_webhook_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"discord_webhook_log_level" binding:"oneof=INFO WARN ERROR DEBUG"`
	APILogLevel            DBLogLevel `gorm:"default:INFO;check:api_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"api_log_level" binding:"oneof=INFO WARN ERROR DEBUG"`
	TenorLogLevel          DBLogLevel `gorm:"default:INFO;check:tenor_log_level in ('INFO', 'WARN', 'ERROR', 'DEBUG')" json:"tenor_log_level" binding:"oneof=INFO WARN ERROR DEBUG"`

	CreatedAt int64 `json:"created_at" gorm:"autoCreateTime:milli"`
	UpdatedAt int64 `json:"updated_at" gorm:"autoUpdateTime:milli"`
}

func (RuntimeConfig) TableName() string {
	return "config"
}

func (r RuntimeConfig) LogValue() slog.Value {
	return structToSlogValue(r)
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		DiscordGatewayEnabled:  true,
		DiscordCustomStatus:    DefaultDiscordCustomStatus,
		DiscordErrorMessage:    DefaultDiscordErrorMessage,
		TenorEnabled:           true,
		LogLevel:               DBLogLevelInfo,
		DiscordLogLevel:        DBLogLevelInfo,
		DiscordGoLogLevel:      DBLogLevelWarn,
		DatabaseLogLevel:       DBLogLevelWarn,
		DiscordWebhookLogLevel: DBLogLevelInfo,
		APILogLevel:            DBLogLevelInfo,
		TenorLogLevel:          DBLogLevelInfo,
	}
}

// loadRuntimeConfig returns the stored RuntimeConfig, creating it with
// defaults if it doesn't exist yet. created is true if a new record
// was written.
func loadRuntimeConfig(ctx context.Context, db DBI) (cfg *RuntimeConfig, created bool, err error) {
	var rc RuntimeConfig
	err = db.DB().WithContext(ctx).Last(&rc).Error
	switch {
	case err == nil:
		return &rc, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, fmt.Errorf("error getting runtime config: %w", err)
	}

	rc = DefaultRuntimeConfig()
	if _, err = db.Create(ctx, &rc); err != nil {
		return nil, false, fmt.Errorf("error creating runtime config: %w", err)
	}
	return &rc, true, nil
}

// RuntimeConfigUpdate is a partial update to [RuntimeConfig]. Nil
// fields are left unchanged.
//
//nolint:lll // can't break tags
type RuntimeConfigUpdate struct {
	Paused       *bool `json:"paused,omitempty"`
	RecoverPanic *bool `json:"recover_panic,omitempty"`
	TenorEnabled *bool `json:"tenor_enabled,omitempty"`

	DiscordGatewayEnabled        *bool   `json:"discord_gateway_enabled,omitempty"`
	DiscordCustomStatus          *string `json:"discord_custom_status,omitempty" binding:"omitnil,max=128"`
	DiscordErrorMessage          *string `json:"discord_error_message,omitempty" binding:"omitnil,min=1,max=2000"`
	DiscordNotificationChannelID *string `json:"discord_notification_channel_id,omitempty"`

	LogLevel               *DBLogLevel `json:"log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	DiscordLogLevel        *DBLogLevel `json:"discord_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	DiscordGoLogLevel      *DBLogLevel `json:"discordgo_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	DatabaseLogLevel       *DBLogLevel `json:"database_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	DiscordWebhookLogLevel *DBLogLevel `json:"discord_webhook_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	APILogLevel            *DBLogLevel `json:"api_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
	TenorLogLevel          *DBLogLevel `json:"tenor_log_level,omitempty" binding:"omitnil,oneof=INFO WARN ERROR DEBUG"`
}

func (b RuntimeConfigUpdate) validate() error {
	return structValidator.Struct(b)
}

// setRuntimeLevels applies the log levels in state to the live
// configuration's level vars
func setRuntimeLevels(config *Config, state RuntimeConfig) {
	config.LogLevel.Set(state.LogLevel.Level())
	config.Discord.LogLevel.Set(state.DiscordLogLevel.Level())
	config.Discord.DiscordGoLogLevel.Set(state.DiscordGoLogLevel.Level())
	config.Discord.WebhookServer.LogLevel.Set(state.DiscordWebhookLogLevel.Level())
	config.DatabaseLogLevel.Set(state.DatabaseLogLevel.Level())
	config.API.LogLevel.Set(state.APILogLevel.Level())
	config.Tenor.LogLevel.Set(state.TenorLogLevel.Level())
}

func getDiscordPresenceStatusUpdate(config RuntimeConfig) discordgo.GatewayStatusUpdate {
	if config.Paused {
		return discordgo.GatewayStatusUpdate{
			AFK:    true,
			Status: string(discordgo.StatusDoNotDisturb),
		}
	}
	return discordgo.GatewayStatusUpdate{
		Status: string(discordgo.StatusOnline),
		Game: discordgo.Activity{
			Name:  "Custom Status",
			Type:  discordgo.ActivityTypeCustom,
			State: config.DiscordCustomStatus,
		},
	}
}
