package slavie

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

const (
	columnWarningGuildID = "guild_id"
	columnWarningUserID  = "user_id"

	defaultWarnReason = "No reason provided"
	colorYellow       = 0xfee75c
)

// Warning is a moderator's warning to a guild member. Warnings are
// deleted when the member is auto-kicked, or by /removewarns.
//
//nolint:lll // struct tags can't be split
type Warning struct {
	ModelUintID
	GuildID     string `json:"guild_id" gorm:"not null;index:idx_warnings_guild_user,priority:1"`
	UserID      string `json:"user_id" gorm:"not null;index:idx_warnings_guild_user,priority:2"`
	ModeratorID string `json:"moderator_id" gorm:"not null"`
	Reason      string `json:"reason"`
	CreatedAt   int64  `json:"created_at" gorm:"autoCreateTime:milli"`
}

// addWarning records a warning and returns the member's warning count
// in the guild, including the new one
func addWarning(ctx context.Context, db DBI, w *Warning) (int64, error) {
	var count int64
	err := db.Transaction(
		ctx,
		func(tx *gorm.DB) error {
			if err := tx.Create(w).Error; err != nil {
				return fmt.Errorf("error creating warning: %w", err)
			}
			return tx.Model(&Warning{}).Where(
				columnWarningGuildID+" = ? AND "+columnWarningUserID+" = ?",
				w.GuildID,
				w.UserID,
			).Count(&count).Error
		},
	)
	return count, err
}

func clearWarnings(ctx context.Context, db DBI, guildID, userID string) (int64, error) {
	return db.Delete(
		ctx,
		&Warning{},
		columnWarningGuildID+" = ? AND "+columnWarningUserID+" = ?",
		guildID,
		userID,
	)
}

// topRolePosition returns the highest position among roleIDs
func topRolePosition(roles []*discordgo.Role, roleIDs []string) int {
	top := 0
	for _, r := range roles {
		for _, id := range roleIDs {
			if r.ID == id && r.Position > top {
				top = r.Position
			}
		}
	}
	return top
}

func (s *Slavie) commandWarn(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	target, ok := c.userOption(optionMember)
	if !ok {
		return nil, fmt.Errorf("missing required option %q", optionMember)
	}
	switch {
	case target.ID == c.user.ID:
		return ephemeralResponse("You cannot warn yourself! 🌟"), nil
	case target.Bot:
		return ephemeralResponse("You cannot warn bots! 🌟"), nil
	}

	guildID := c.interaction.GuildID
	guild, err := s.discord.session.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("error fetching guild: %w", err)
	}
	if !c.outranksTarget(guild) {
		return ephemeralResponse(
			"You can't warn someone with a higher or equal role than yours! 🌟",
		), nil
	}

	reason := c.stringOption(optionReason)
	if reason == "" {
		reason = defaultWarnReason
	}
	count, err := addWarning(
		ctx,
		s.store.DB(),
		&Warning{
			GuildID:     guildID,
			UserID:      target.ID,
			ModeratorID: c.user.ID,
			Reason:      reason,
		},
	)
	if err != nil {
		return nil, err
	}

	limit := s.config.Discord.WarnLimit
	countText := fmt.Sprintf("%d/%d", count, limit)
	c.logger.InfoContext(
		ctx,
		"member warned",
		"target_id", target.ID,
		"warnings", count,
		"limit", limit,
	)

	c.afterResponse(
		func(ctx context.Context) {
			dm := &discordgo.MessageEmbed{
				Title: "🌸 You've Been Warned 🌸",
				Description: fmt.Sprintf(
					"Hi %s! You've been warned in **%s**. 😔",
					target.Username,
					guild.Name,
				),
				Color: colorYellow,
				Fields: []*discordgo.MessageEmbedField{
					{Name: "💬 Reason", Value: reason},
					{Name: "🚨 Warning Count", Value: countText},
				},
				Footer: &discordgo.MessageEmbedFooter{Text: "Please be mindful of the server rules. 💖"},
			}
			if dmErr := s.discord.sendDirectEmbed(target.ID, dm); dmErr != nil {
				c.logger.WarnContext(ctx, "couldn't DM warned member", tint.Err(dmErr))
			}
			if count >= int64(limit) {
				s.autoKick(ctx, c, guild, target, limit)
			}
		},
	)

	return embedResponse(
		&discordgo.MessageEmbed{
			Title:       "⚠️ Warning Notice ⚠️",
			Description: fmt.Sprintf("**%s** has been warned. 😔", target.Username),
			Color:       colorYellow,
			Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: target.AvatarURL("")},
			Fields: []*discordgo.MessageEmbedField{
				{Name: "💬 Reason", Value: reason},
				{Name: "🚨 Warning Count", Value: countText},
			},
			Footer: &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Requested by %s 💕", c.user.Username),
			},
		},
	), nil
}

// autoKick kicks a member who reached the warning limit, announces it
// in the channel and clears their warnings
func (s *Slavie) autoKick(
	ctx context.Context,
	c *commandContext,
	guild *discordgo.Guild,
	target *discordgo.User,
	limit int,
) {
	logger := c.logger.With("target_id", target.ID)

	dm := &discordgo.MessageEmbed{
		Title: "🌸 You've Been Kicked 🌸",
		Description: fmt.Sprintf(
			"Hi %s! You've been kicked from **%s** for receiving %d warnings. 😔",
			target.Username,
			guild.Name,
			limit,
		),
		Color: colorOrange,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "If you have any questions, please reach out to the server admins. 💖",
		},
	}
	if err := s.discord.sendDirectEmbed(target.ID, dm); err != nil {
		logger.WarnContext(ctx, "couldn't DM kicked member", tint.Err(err))
	}

	if err := s.discord.session.GuildMemberDeleteWithReason(
		guild.ID,
		target.ID,
		fmt.Sprintf("Received %d warnings", limit),
	); err != nil {
		logger.ErrorContext(ctx, "error kicking member", tint.Err(err))
		_, _ = s.discord.session.ChannelMessageSend(
			c.interaction.ChannelID,
			fmt.Sprintf("Could not kick %s. ❌", target.Username),
		)
		return
	}

	if _, err := s.discord.session.ChannelMessageSendEmbed(
		c.interaction.ChannelID,
		&discordgo.MessageEmbed{
			Title: "🚪 Auto-Kick 🚪",
			Description: fmt.Sprintf(
				"**%s** has been kicked from the server after receiving %d warnings. 😔",
				target.Username,
				limit,
			),
			Color:     colorOrange,
			Thumbnail: &discordgo.MessageEmbedThumbnail{URL: target.AvatarURL("")},
			Footer: &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Requested by %s 💕", c.user.Username),
			},
		},
	); err != nil {
		logger.ErrorContext(ctx, "error announcing kick", tint.Err(err))
	}

	if _, err := clearWarnings(ctx, s.store.DB(), guild.ID, target.ID); err != nil {
		logger.ErrorContext(ctx, "error clearing warnings", tint.Err(err))
	}
}

func (s *Slavie) commandRemoveWarns(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	target, ok := c.userOption(optionMember)
	if !ok {
		return nil, fmt.Errorf("missing required option %q", optionMember)
	}
	n, err := clearWarnings(ctx, s.store.DB(), c.interaction.GuildID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("error removing warnings: %w", err)
	}
	if n == 0 {
		return ephemeralResponse(
			fmt.Sprintf("**%s** has no warnings to remove. 🌟", target.Username),
		), nil
	}
	return ephemeralResponse(
		fmt.Sprintf("All warnings for **%s** have been removed. 🌟", target.Username),
	), nil
}
