package slavie

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const maxDeleteDays = 7

var minDeleteDays float64

// memberRemoval describes one way of removing a member from a guild
type memberRemoval struct {
	// verb is used in refusals, "You can't <verb> me"
	verb        string
	// past is used in notices, "has been <past>"
	past        string
	title       string
	targetField string
	dmText      string
	color       int

	remove func(s *Slavie, c *commandContext, guildID, userID, reason string) error
}

var kickRemoval = memberRemoval{
	verb:        "kick",
	past:        "kicked",
	title:       "🚪 Kick Notice 🚪",
	targetField: "👤 Kicked User",
	dmText:      "🌸 You've Been Kicked 🌸",
	color:       colorOrange,
	remove: func(s *Slavie, _ *commandContext, guildID, userID, reason string) error {
		return s.discord.session.GuildMemberDeleteWithReason(guildID, userID, reason)
	},
}

var banRemoval = memberRemoval{
	verb:        "ban",
	past:        "banned",
	title:       "⛔ Ban Notice ⛔",
	targetField: "👤 Banned User",
	dmText:      "🌸 You've Been Banned 🌸",
	color:       colorRed,
	remove: func(s *Slavie, c *commandContext, guildID, userID, reason string) error {
		days := int(c.intOption(optionDeleteDays))
		days = max(0, min(days, maxDeleteDays))
		return s.discord.session.GuildBanCreateWithReason(guildID, userID, reason, days)
	},
}

func (c *commandContext) intOption(name string) int64 {
	opt, ok := c.options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionInteger {
		return 0
	}
	switch v := opt.Value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// outranksTarget returns true if the invoking member's top role is
// above the top role of the member option. The guild owner outranks
// everyone.
func (c *commandContext) outranksTarget(guild *discordgo.Guild) bool {
	if c.user.ID == guild.OwnerID {
		return true
	}
	var targetRoles []string
	if m, found := c.memberOption(optionMember); found {
		targetRoles = m.Roles
	}
	var ownRoles []string
	if c.interaction.Member != nil {
		ownRoles = c.interaction.Member.Roles
	}
	return topRolePosition(guild.Roles, ownRoles) > topRolePosition(guild.Roles, targetRoles)
}

// commandRemoveMember returns the handler for /kick or /ban. The
// member is DMed and removed before responding, so a failure can be
// reported instead of a notice.
func (s *Slavie) commandRemoveMember(r memberRemoval) commandFunc {
	return func(ctx context.Context, c *commandContext) (*discordgo.InteractionResponse, error) {
		target, ok := c.userOption(optionMember)
		if !ok {
			return nil, fmt.Errorf("missing required option %q", optionMember)
		}

		guildID := c.interaction.GuildID
		guild, err := s.discord.session.Guild(guildID)
		if err != nil {
			return nil, fmt.Errorf("error fetching guild: %w", err)
		}

		botUser := s.discord.botUser.Load()
		switch {
		case botUser != nil && target.ID == botUser.ID:
			return ephemeralResponse(fmt.Sprintf("You can't %s me, dumahh. 😔", r.verb)), nil
		case target.ID == c.user.ID:
			return ephemeralResponse(fmt.Sprintf("You can't %s yourself, dumahh. 😔", r.verb)), nil
		case target.ID == guild.OwnerID:
			return ephemeralResponse(
				fmt.Sprintf("You can't %s the server owner, dumahh. 😔", r.verb),
			), nil
		case !c.outranksTarget(guild):
			return ephemeralResponse(
				fmt.Sprintf("You can't %s someone with a higher or equal role than yours! 🌟", r.verb),
			), nil
		}

		reason := c.stringOption(optionReason)
		if reason == "" {
			reason = defaultWarnReason
		}
		logger := c.logger.With("target_id", target.ID, "action", r.verb)

		// the bot can't DM a user who no longer shares a guild with it
		dm := &discordgo.MessageEmbed{
			Title: r.dmText,
			Description: fmt.Sprintf(
				"Hi %s! You've been %s from **%s**. 😔",
				target.Username,
				r.past,
				guild.Name,
			),
			Color:  r.color,
			Fields: []*discordgo.MessageEmbedField{{Name: "💬 Reason", Value: reason}},
			Footer: &discordgo.MessageEmbedFooter{
				Text: "If you have any questions, please reach out to the server admins. 💖",
			},
		}
		if dmErr := s.discord.sendDirectEmbed(target.ID, dm); dmErr != nil {
			logger.WarnContext(ctx, "couldn't DM removed member", tint.Err(dmErr))
		}

		if err = r.remove(s, c, guildID, target.ID, reason); err != nil {
			logger.ErrorContext(ctx, "error removing member", tint.Err(err))
			return ephemeralResponse(
				fmt.Sprintf("Oh no, I couldn't %s this user. 🚫", r.verb),
			), nil
		}
		logger.InfoContext(ctx, "member removed", "reason", reason)

		return embedResponse(
			&discordgo.MessageEmbed{
				Title:       r.title,
				Description: fmt.Sprintf("**%s** has been %s from the server. 😔", target.Username, r.past),
				Color:       r.color,
				Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: target.AvatarURL("")},
				Fields: []*discordgo.MessageEmbedField{
					{Name: "💬 Reason", Value: reason},
					{
						Name:  r.targetField,
						Value: fmt.Sprintf("%s (ID: %s)", userMention(target.ID), target.ID),
					},
				},
				Footer: &discordgo.MessageEmbedFooter{
					Text: fmt.Sprintf("Requested by %s 💕", c.user.Username),
				},
			},
		), nil
	}
}
