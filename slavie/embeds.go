package slavie

import (
	"github.com/bwmarrin/discordgo"
	"strings"
)

const (
	colorPink   = 0xff69b4
	colorRed    = 0xed4245
	colorOrange = 0xffa500
	colorGreen  = 0x57f287
	colorBlue   = 0x5865f2
	colorPurple = 0x9b59b6
)

const (
	pausedMessage           = "I'm taking a short break, try again later!"
	ownerOnlyMessage        = "Only the bot author can use this command!"
	noPermissionMessage     = "You do not have permission to use this command!"
	guildOnlyMessage        = "This command can only be used in a server."
	componentExpiredMessage = "This button no longer does anything."
	notAllowedMessage       = "You do not have permission to do that!"
)

// ephemeralResponse is a plain message only the invoking user can see.
// Denials and failures are always sent this way.
func ephemeralResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	}
}

// messageResponse is a plain message visible to the whole channel
func messageResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	}
}

func embedResponse(
	embed *discordgo.MessageEmbed,
	components ...discordgo.MessageComponent,
) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	}
}

// updateMessageResponse edits the message a button is attached to:
// content replaces the old content, embeds are appended to the ones
// already on the message, and the buttons are removed.
func updateMessageResponse(
	i *discordgo.InteractionCreate,
	content string,
	embeds ...*discordgo.MessageEmbed,
) *discordgo.InteractionResponse {
	var merged []*discordgo.MessageEmbed
	if i.Message != nil {
		merged = append(merged, i.Message.Embeds...)
	}
	merged = append(merged, embeds...)
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Embeds:     merged,
			Components: []discordgo.MessageComponent{},
		},
	}
}

// customID joins a component action and its data into a button custom
// ID, ex: "marry_accept:<proposal id>"
func customID(action string, data ...string) string {
	return strings.Join(append([]string{action}, data...), customIDSeparator)
}

// confirmButtons are the Accept/Decline buttons attached to proposals
// and adoption offers
func confirmButtons(acceptAction, declineAction, id string) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Accept",
				Style:    discordgo.SuccessButton,
				CustomID: customID(acceptAction, id),
			},
			discordgo.Button{
				Label:    "Decline",
				Style:    discordgo.DangerButton,
				CustomID: customID(declineAction, id),
			},
		},
	}
}

func slapBackButton(slapperID, targetID string) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Slap Back",
				Style:    discordgo.DangerButton,
				CustomID: customID(componentSlapBack, slapperID, targetID),
			},
		},
	}
}

// gifEmbed builds an embed, with an image if gifURL is set
func gifEmbed(title, description string, color int, gifURL string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
	}
	if gifURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: gifURL}
	}
	return embed
}
