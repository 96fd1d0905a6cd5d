package slavie

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"strings"
	"time"
)

const (
	colorLavender = 0xe6e6fa

	// maxEmbedFields is the number of fields Discord allows per embed
	maxEmbedFields = 25
	dateLayout     = "2006-01-02"
)

func requestedByFooter(u *User) *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("Requested by %s 💞", u.Username),
	}
}

func (s *Slavie) commandPing(
	_ context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	botName := "Slavie"
	var thumbnail *discordgo.MessageEmbedThumbnail
	if u := s.discord.botUser.Load(); u != nil {
		botName = u.Username
		thumbnail = &discordgo.MessageEmbedThumbnail{URL: u.AvatarURL("")}
	}

	latency := "n/a"
	if s.discord.session != nil && s.discord.connected.Load() {
		latency = fmt.Sprintf("%dms", s.discord.session.HeartbeatLatency().Milliseconds())
	}

	return embedResponse(
		&discordgo.MessageEmbed{
			Title:       "Ping",
			Description: "Latency in ms",
			Color:       colorLavender,
			Thumbnail:   thumbnail,
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:  fmt.Sprintf("%s's latency (ms):", botName),
					Value: latency,
				},
			},
			Footer: requestedByFooter(c.user),
		},
	), nil
}

var helpCategories = []struct {
	name     string
	category string
}{
	{"Interactions", categoryInteractions},
	{"Moderation", categoryModeration},
	{"Other", categoryOther},
	{"Server Settings", ""},
}

// commandHelp lists the commands the user can run, one embed per
// category
func (s *Slavie) commandHelp(
	_ context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	var embeds []*discordgo.MessageEmbed
	for _, hc := range helpCategories {
		var fields []*discordgo.MessageEmbedField
		for _, def := range s.applicationCommands() {
			cmd := s.commands[def.Name]
			if cmd.category != hc.category || cmd.ownerOnly {
				continue
			}
			if cmd.permission != 0 && !c.hasPermission(cmd.permission) {
				continue
			}
			fields = append(
				fields,
				&discordgo.MessageEmbedField{
					Name:   "/" + def.Name,
					Value:  def.Description,
					Inline: true,
				},
			)
		}
		for page, chunk := range chunkItems(maxEmbedFields, fields...) {
			title := hc.name
			if page > 0 {
				title = fmt.Sprintf("%s (continued)", hc.name)
			}
			embeds = append(
				embeds,
				&discordgo.MessageEmbed{
					Title:       title,
					Description: fmt.Sprintf("Commands available, %s:", userMention(c.user.ID)),
					Color:       colorBlue,
					Fields:      chunk,
				},
			)
		}
	}
	if len(embeds) > 0 {
		embeds[len(embeds)-1].Footer = requestedByFooter(c.user)
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: embeds,
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	}, nil
}

// lookupMember returns the member selected in the member option, or
// the invoking member if the option wasn't given
func (c *commandContext) lookupMember() (*discordgo.Member, *discordgo.User) {
	if m, ok := c.memberOption(optionMember); ok {
		return m, m.User
	}
	if u, ok := c.userOption(optionMember); ok {
		return nil, u
	}
	return c.interaction.Member, getDiscordUser(c.interaction)
}

func (s *Slavie) commandUserInfo(
	_ context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	member, u := c.lookupMember()
	if u == nil {
		return ephemeralResponse("User not found."), nil
	}

	nickname := "None"
	joined := "Unknown"
	roles := "No roles"
	if member != nil {
		if member.Nick != "" {
			nickname = member.Nick
		}
		if !member.JoinedAt.IsZero() {
			joined = "🌼 " + member.JoinedAt.Format(dateLayout)
		}
		if len(member.Roles) > 0 {
			mentions := make([]string, 0, len(member.Roles))
			for _, r := range member.Roles {
				mentions = append(mentions, "<@&"+r+">")
			}
			roles = strings.Join(mentions, ", ")
		}
	}

	created := "Unknown"
	if ts, err := discordgo.SnowflakeTimestamp(u.ID); err == nil {
		created = "🌟 " + ts.UTC().Format(dateLayout)
	}

	return embedResponse(
		&discordgo.MessageEmbed{
			Title:     "✨ User Information ✨",
			Color:     colorPurple,
			Thumbnail: &discordgo.MessageEmbedThumbnail{URL: u.AvatarURL("")},
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Username:", Value: fmt.Sprintf("**%s**", u.Username)},
				{Name: "Nickname:", Value: nickname},
				{Name: "User ID:", Value: fmt.Sprintf("**%s**", u.ID)},
				{Name: "Account Created On:", Value: created},
				{Name: "Joined Server On:", Value: joined},
				{Name: "Roles:", Value: roles},
			},
			Footer:    requestedByFooter(c.user),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	), nil
}

func (s *Slavie) commandGuildInfo(
	_ context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	guildID := c.interaction.GuildID
	guild, err := s.discord.session.GuildWithCounts(guildID)
	if err != nil {
		return nil, fmt.Errorf("error fetching guild: %w", err)
	}
	channels, err := s.discord.session.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("error fetching channels: %w", err)
	}

	var text, voice int
	for _, ch := range channels {
		switch ch.Type {
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
			text++
		case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
			voice++
		}
	}

	members := guild.ApproximateMemberCount
	if members == 0 {
		members = guild.MemberCount
	}
	created := "Unknown"
	if ts, tsErr := discordgo.SnowflakeTimestamp(guild.ID); tsErr == nil {
		created = "🎉 " + ts.UTC().Format(dateLayout)
	}

	embed := &discordgo.MessageEmbed{
		Title: "🌟 Guild Information 🌟",
		Color: colorLavender,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Server Name:", Value: fmt.Sprintf("**%s**", guild.Name)},
			{Name: "Server ID:", Value: "📜 " + guild.ID},
			{Name: "Total Members:", Value: fmt.Sprintf("%d members", members)},
			{Name: "Online Members:", Value: fmt.Sprintf("🌼 %d online", guild.ApproximatePresenceCount)},
			{Name: "Created On:", Value: created},
			{Name: "Text Channels:", Value: fmt.Sprintf("📚 %d channels", text)},
			{Name: "Voice Channels:", Value: fmt.Sprintf("🔊 %d channels", voice)},
		},
		Footer: requestedByFooter(c.user),
	}
	if guild.Icon != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: guild.IconURL("")}
	}
	return embedResponse(embed), nil
}

func (s *Slavie) commandFamilyInfo(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	_, u := c.lookupMember()
	if u == nil {
		return ephemeralResponse("User not found."), nil
	}

	family, err := s.engine.Family(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("error looking up family: %w", err)
	}

	spouse := "Not married"
	if family.SpouseID != "" {
		spouse = userMention(family.SpouseID) + " 💍"
	}
	children := "No children adopted"
	if len(family.Children) > 0 {
		children = mentionList(family.Children) + " 👶"
	}
	parents := "Not adopted"
	if len(family.Parents) > 0 {
		parents = mentionList(family.Parents) + " 👪"
	}

	return embedResponse(
		&discordgo.MessageEmbed{
			Title:     "👨‍👩‍👦 Family Information 👨‍👩‍👦",
			Color:     colorPink,
			Thumbnail: &discordgo.MessageEmbedThumbnail{URL: u.AvatarURL("")},
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Spouse:", Value: spouse},
				{Name: "Children:", Value: children},
				{Name: "Parents:", Value: parents},
			},
			Footer: requestedByFooter(c.user),
		},
	), nil
}
