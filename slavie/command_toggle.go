package slavie

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"strings"
)

func commandNameOptionDef() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionString,
		Name: optionCommandName,
		Description: fmt.Sprintf(
			"A command name, or a category (%s)",
			strings.Join(toggleCategories, ", "),
		),
		Required:  true,
		MaxLength: 100,
	}
}

// commandToggle returns the handler for /disable (disable=true) or
// /enable
func (s *Slavie) commandToggle(disable bool) commandFunc {
	return func(ctx context.Context, c *commandContext) (*discordgo.InteractionResponse, error) {
		raw := c.stringOption(optionCommandName)
		name := strings.ToLower(strings.TrimSpace(raw))
		guildID := c.interaction.GuildID

		commands, isCategory, ok := s.toggleTarget(name)
		if !disable {
			return s.enableCommands(ctx, guildID, raw, name, commands, isCategory, ok)
		}

		if !ok {
			return ephemeralResponse(
				fmt.Sprintf("The command `%s` doesn't exist or can't be disabled.", raw),
			), nil
		}
		added, err := s.toggles.Disable(ctx, guildID, commands...)
		if err != nil {
			return nil, err
		}
		switch {
		case len(added) == 0:
			return messageResponse(
				fmt.Sprintf("The command(s) `%s` are already disabled.", raw),
			), nil
		case isCategory:
			return messageResponse(
				fmt.Sprintf("All `%s` commands have been disabled.", name),
			), nil
		default:
			return messageResponse(
				fmt.Sprintf("The command `%s` has been disabled.", name),
			), nil
		}
	}
}

func (s *Slavie) enableCommands(
	ctx context.Context,
	guildID string,
	raw string,
	name string,
	commands []string,
	isCategory bool,
	ok bool,
) (*discordgo.InteractionResponse, error) {
	disabled, err := s.toggles.Disabled(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if len(disabled) == 0 {
		return messageResponse("No commands are disabled in this server."), nil
	}
	if !ok {
		return messageResponse(
			fmt.Sprintf("The command(s) `%s` are not disabled or don't exist.", raw),
		), nil
	}

	n, err := s.toggles.Enable(ctx, guildID, commands...)
	if err != nil {
		return nil, err
	}
	switch {
	case n == 0:
		return messageResponse(
			fmt.Sprintf("The command(s) `%s` are not disabled or don't exist.", raw),
		), nil
	case isCategory:
		return messageResponse(
			fmt.Sprintf("All `%s` commands have been enabled.", name),
		), nil
	default:
		return messageResponse(
			fmt.Sprintf("The command `%s` has been enabled.", name),
		), nil
	}
}
