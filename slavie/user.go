package slavie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"log/slog"
	"time"
)

var (
	columnUserID         = "id"
	columnUserIgnored    = "ignored"
	columnUserContent    = "content"
	columnUserUsername   = "username"
	columnUserGlobalName = "global_name"
	columnUserLastSeen   = "last_seen"
	columnUserUpdatedAt  = "updated_at"
)

// User is a record of a Discord user seen by the bot.
// See: https://discord.com/developers/docs/resources/user
//
//nolint:lll // struct tags can't be split
type User struct {
	// ID is the Discord user ID
	ID string `json:"id" gorm:"primaryKey"`

	// Username, not unique
	Username string `json:"username"`

	// User's display name - for bots, the application name
	GlobalName string `json:"global_name"`

	// Indicates this user is a Discord bot user. Bots can't marry,
	// propose, or be adopted.
	Bot bool `json:"bot"`

	// JSON content of the discord user object
	Content string `json:"content"`

	// If true, interactions from this user are ignored
	Ignored bool `json:"ignored" gorm:"default:false"`

	// LastSeen is the last time this user was seen in a Discord interaction
	LastSeen int64 `json:"last_seen" gorm:"column:last_seen"`

	CreatedAt int64 `json:"created_at,omitempty" gorm:"autoCreateTime:milli"`
	UpdatedAt int64 `json:"updated_at,omitempty" gorm:"autoUpdateTime:milli"`
}

func NewUser(u discordgo.User) (*User, error) {
	content, err := json.Marshal(u)
	return &User{
		ID:         u.ID,
		Username:   u.Username,
		GlobalName: u.GlobalName,
		Bot:        u.Bot,
		Content:    string(content),
		LastSeen:   time.Now().UTC().UnixMilli(),
	}, err
}

func (u *User) String() string {
	return fmt.Sprintf("%s [%s]", u.Username, u.ID)
}

func (u *User) LogValue() slog.Value {
	if u == nil {
		return slog.Value{}
	}
	attrs := []slog.Attr{
		slog.String(columnUserID, u.ID),
		slog.String(columnUserUsername, u.Username),
		slog.String(columnUserGlobalName, u.GlobalName),
	}
	if u.Bot {
		attrs = append(attrs, slog.Bool("bot", u.Bot))
	}
	if u.Ignored {
		attrs = append(attrs, slog.Bool(columnUserIgnored, u.Ignored))
	}
	return slog.GroupValue(attrs...)
}

// userChangedDiscordUsername returns true if the given discordgo.User has
// a different username or global name than what was last recorded.
func (u *User) userChangedDiscordUsername(d discordgo.User) bool {
	return (d.Username != u.Username) || (d.GlobalName != u.GlobalName)
}

// upsertUser records the given Discord user, updating their name and
// last-seen time if they already exist. The stored record is
// returned, so [User.Ignored] reflects any admin changes.
func upsertUser(ctx context.Context, db DBI, du discordgo.User) (*User, error) {
	user, err := NewUser(du)
	if err != nil {
		return nil, fmt.Errorf("error marshaling user: %w", err)
	}

	db.Lock()
	defer db.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err = db.DB().WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: columnUserID}},
			DoUpdates: clause.AssignmentColumns(
				[]string{
					columnUserUsername,
					columnUserGlobalName,
					columnUserContent,
					columnUserLastSeen,
					columnUserUpdatedAt,
				},
			),
		},
	).Create(user).Error
	if err != nil {
		return nil, fmt.Errorf("error saving user: %w", err)
	}

	var stored User
	if err = db.DB().WithContext(ctx).Where(
		columnUserID+" = ?",
		du.ID,
	).First(&stored).Error; err != nil {
		return user, fmt.Errorf("error reloading user: %w", err)
	}
	return &stored, nil
}

// UserStats summarizes a user's relationships and moderation history
type UserStats struct {
	Family       *Family `json:"family"`
	Warnings     int64   `json:"warnings"`
	Interactions int64   `json:"interactions"`
}

// getStats collects relationship and moderation stats for the user.
// Partial results are returned alongside any errors.
func (u *User) getStats(ctx context.Context, engine *Engine, db *gorm.DB) (UserStats, error) {
	var s UserStats
	var errs []error

	family, err := engine.Family(ctx, u.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("error getting family: %w", err))
	}
	s.Family = family

	if err = db.WithContext(ctx).Model(&Warning{}).Where(
		"user_id = ?",
		u.ID,
	).Count(&s.Warnings).Error; err != nil {
		errs = append(errs, fmt.Errorf("error counting warnings: %w", err))
	}

	if err = db.WithContext(ctx).Model(&InteractionLog{}).Where(
		"user_id = ?",
		u.ID,
	).Count(&s.Interactions).Error; err != nil {
		errs = append(errs, fmt.Errorf("error counting interactions: %w", err))
	}

	return s, errors.Join(errs...)
}
