package slavie

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"strings"
	"sync"
)

// InteractionLog is a record of every interaction the bot receives,
// regardless of whether it was handled.
//
//nolint:lll // struct tags can't be split
type InteractionLog struct {
	ModelUintID
	Method        DiscordInteractionReceiveMethod `json:"method"` // webhook or gateway
	InteractionID string                          `json:"interaction_id" gorm:"not null"`
	Type          string                          `json:"type"`
	UserID        string                          `json:"user_id" gorm:"not null;index:idx_interaction_logs_user_id"`
	Username      string                          `json:"username"`
	GuildID       string                          `json:"guild_id"`
	ChannelID     string                          `json:"channel_id"`

	// Command is the slash command name, or the action prefix of a
	// button's custom ID
	Command   string `json:"command"`
	Payload   string `json:"payload"`
	CreatedAt int64  `json:"created_at,omitempty" gorm:"autoCreateTime:milli"`
}

func newInteractionLog(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
	method DiscordInteractionReceiveMethod,
) (*InteractionLog, error) {
	p, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("error marshaling interaction: %w", err)
	}

	return &InteractionLog{
		InteractionID: i.ID,
		Type:          i.Type.String(),
		UserID:        u.ID,
		Username:      u.String(),
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Command:       interactionCommandName(i),
		Payload:       string(p),
		Method:        method,
	}, nil
}

// interactionCommandName returns the slash command name, or the action
// of a message component's custom ID
func interactionCommandName(i *discordgo.InteractionCreate) string {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		return i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		action, _, _ := strings.Cut(i.MessageComponentData().CustomID, customIDSeparator)
		return action
	default:
		return ""
	}
}

// InteractionHandler responds to a single Discord interaction, however
// it was received.
type InteractionHandler interface {
	// Respond sends the initial (and only) response to the interaction
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// InteractionReceiveMethod returns the method used to receive the
	// interaction (webhook or gateway).
	InteractionReceiveMethod() DiscordInteractionReceiveMethod

	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] when receiving interactions
// via the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (GatewayHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodGateway
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	} else {
		w.logger.InfoContext(ctx, "responded to interaction")
	}
	return err
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// handleInteraction logs the interaction, records the user, and
// dispatches slash commands and button presses to their handlers.
// Anything scheduled with [commandContext.afterResponse] runs after the
// response has been sent, before this returns.
func (s *Slavie) handleInteraction(ctx context.Context, handler InteractionHandler) {
	i := handler.GetInteraction()
	logger := handler.Logger()

	if i.Type == discordgo.InteractionPing {
		_ = handler.Respond(
			ctx,
			&discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong},
		)
		return
	}

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(
			ctx,
			"no user found in interaction",
			"interaction", structToSlogValue(i),
		)
		return
	}

	s.interactionsInProgress.Add(1)
	defer s.interactionsInProgress.Add(-1)

	logger = logger.With(slog.Group("interaction", interactionLogAttrs(*i)...))
	ctx = WithLogger(ctx, logger)
	logger.InfoContext(ctx, "received new interaction", "user", structToSlogValue(discordUser))

	wg := &sync.WaitGroup{}
	defer wg.Wait()

	if interactionLog, err := newInteractionLog(
		i,
		discordUser,
		handler.InteractionReceiveMethod(),
	); err != nil {
		logger.ErrorContext(ctx, "error marshaling interaction", tint.Err(err))
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, createErr := s.store.DB().Create(
				context.WithoutCancel(ctx),
				interactionLog,
			); createErr != nil {
				logger.ErrorContext(ctx, "error logging interaction", tint.Err(createErr))
			}
		}()
	}

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring", "user", discordUser)
		return
	}

	config := s.RuntimeConfig()
	if config.RecoverPanic {
		defer func() {
			if rc := recover(); rc != nil {
				s.handleRecover(ctx, rc)
				_ = handler.Respond(ctx, ephemeralResponse(config.DiscordErrorMessage))
			}
		}()
	}

	u, err := upsertUser(ctx, s.store.DB(), *discordUser)
	if err != nil {
		logger.ErrorContext(ctx, "error saving user", tint.Err(err))
		_ = handler.Respond(ctx, ephemeralResponse(config.DiscordErrorMessage))
		return
	}
	logger = logger.With(slog.Group("user", userLogAttrs(*u)...))
	ctx = WithLogger(ctx, logger)

	if u.Ignored {
		logger.InfoContext(ctx, "ignoring interaction from ignored user")
		return
	}

	c := &commandContext{
		interaction: i,
		user:        u,
		logger:      logger,
		config:      config,
	}

	var response *discordgo.InteractionResponse
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		response = s.handleSlashCommand(ctx, c)
	case discordgo.InteractionMessageComponent:
		response = s.handleComponent(ctx, c)
	default:
		logger.WarnContext(ctx, "unhandled interaction type")
		return
	}

	if response != nil {
		if respondErr := handler.Respond(ctx, response); respondErr != nil {
			logger.ErrorContext(ctx, "error responding to interaction", tint.Err(respondErr))
			return
		}
	}

	for _, fn := range c.after {
		wg.Add(1)
		go func(f func(context.Context)) {
			defer wg.Done()
			f(context.WithoutCancel(ctx))
		}(fn)
	}
}

// handleSlashCommand checks whether the command may run, runs it,
// and renders denials and failures as ephemeral messages.
func (s *Slavie) handleSlashCommand(
	ctx context.Context,
	c *commandContext,
) *discordgo.InteractionResponse {
	name := c.interaction.ApplicationCommandData().Name
	logger := c.logger.With("command", name)
	ctx = WithLogger(ctx, logger)

	cmd, ok := s.commands[name]
	if !ok {
		logger.WarnContext(ctx, "unknown command")
		return ephemeralResponse(fmt.Sprintf("I don't know the command `%s`.", name))
	}

	if c.config.Paused && !s.isOwner(c.user.ID) {
		return ephemeralResponse(pausedMessage)
	}

	if cmd.ownerOnly && !s.isOwner(c.user.ID) {
		return ephemeralResponse(ownerOnlyMessage)
	}

	if c.interaction.GuildID == "" {
		return ephemeralResponse(guildOnlyMessage)
	}

	if cmd.category != "" {
		disabled, err := s.toggles.IsDisabled(ctx, c.interaction.GuildID, name)
		if err != nil {
			logger.ErrorContext(ctx, "error checking disabled commands", tint.Err(err))
			return ephemeralResponse(c.config.DiscordErrorMessage)
		}
		if disabled {
			return ephemeralResponse(
				fmt.Sprintf("The command `%s` is disabled in this server.", name),
			)
		}
	}

	if cmd.permission != 0 && !c.hasPermission(cmd.permission) {
		return ephemeralResponse(noPermissionMessage)
	}

	c.options = discordInteractionOptions(c.interaction)
	resp, err := cmd.run(ctx, c)
	if err != nil {
		logger.ErrorContext(ctx, "error running command", tint.Err(err))
		return ephemeralResponse(c.config.DiscordErrorMessage)
	}
	return resp
}

// handleComponent handles button presses. The custom ID is
// "<action>:<data>".
func (s *Slavie) handleComponent(
	ctx context.Context,
	c *commandContext,
) *discordgo.InteractionResponse {
	customID := c.interaction.MessageComponentData().CustomID
	action, data, _ := strings.Cut(customID, customIDSeparator)
	logger := c.logger.With("custom_id", customID)
	ctx = WithLogger(ctx, logger)

	run, ok := s.components[action]
	if !ok {
		logger.WarnContext(ctx, "unknown component action")
		return ephemeralResponse(componentExpiredMessage)
	}
	resp, err := run(ctx, c, data)
	if err != nil {
		logger.ErrorContext(ctx, "error handling component", tint.Err(err))
		return ephemeralResponse(c.config.DiscordErrorMessage)
	}
	return resp
}
