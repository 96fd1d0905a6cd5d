package slavie

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"slices"
	"sort"
)

const customIDSeparator = ":"

// Slash command names
const (
	commandMarry          = "marry"
	commandAccept         = "accept"
	commandDecline        = "decline"
	commandDivorce        = "divorce"
	commandCancelProposal = "cancel_proposal"
	commandForceMarry     = "force_marry"
	commandAdopt          = "adopt"
	commandCancelAdoption = "cancel_adoption"
	commandAbandon        = "abandon"
	commandRunaway        = "runaway"
	commandHug            = "hug"
	commandKiss           = "kiss"
	commandSlap           = "slap"
	commandPing           = "ping"
	commandHelp           = "help"
	commandUserInfo       = "userinfo"
	commandFamilyInfo     = "familyinfo"
	commandWarn           = "warn"
	commandRemoveWarns    = "removewarns"
	commandKick           = "kick"
	commandBan            = "ban"
	commandGuildInfo      = "guildinfo"
	commandDisable        = "disable"
	commandEnable         = "enable"
)

// Button actions, the prefix of a component's custom ID
const (
	componentMarryAccept  = "marry_accept"
	componentMarryDecline = "marry_decline"
	componentAdoptAccept  = "adopt_accept"
	componentAdoptDecline = "adopt_decline"
	componentSlapBack     = "slap_back"
)

const (
	optionMember      = "member"
	optionMember1     = "member1"
	optionMember2     = "member2"
	optionReason      = "reason"
	optionCommandName = "command_name"
	optionDeleteDays  = "delete_days"
)

// commandContext carries a single interaction through its handler
type commandContext struct {
	interaction *discordgo.InteractionCreate

	// user is the stored record of the user who triggered the interaction
	user    *User
	options map[string]*discordgo.ApplicationCommandInteractionDataOption
	logger  *slog.Logger
	config  RuntimeConfig

	after []func(ctx context.Context)
}

// afterResponse schedules fn to run once the interaction response has
// been sent. Used for follow-up REST calls like DMs and kicks, which
// would otherwise hold up the response.
func (c *commandContext) afterResponse(fn func(ctx context.Context)) {
	c.after = append(c.after, fn)
}

// actor is the engine-facing view of the invoking user
func (c *commandContext) actor() User {
	return *c.user
}

// userOption returns the user selected for a USER option, using the
// interaction's resolved data when available.
func (c *commandContext) userOption(name string) (*discordgo.User, bool) {
	opt, ok := c.options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionUser {
		return nil, false
	}
	id, ok := opt.Value.(string)
	if !ok || id == "" {
		return nil, false
	}
	data := c.interaction.ApplicationCommandData()
	if data.Resolved != nil {
		if u, found := data.Resolved.Users[id]; found && u != nil {
			return u, true
		}
	}
	return &discordgo.User{ID: id}, true
}

// memberOption returns the guild member for a USER option, if the
// user is a member of the guild
func (c *commandContext) memberOption(name string) (*discordgo.Member, bool) {
	u, ok := c.userOption(name)
	if !ok {
		return nil, false
	}
	data := c.interaction.ApplicationCommandData()
	if data.Resolved == nil {
		return nil, false
	}
	m, found := data.Resolved.Members[u.ID]
	if !found || m == nil {
		return nil, false
	}
	member := *m
	member.User = u
	return &member, true
}

func (c *commandContext) stringOption(name string) string {
	opt, ok := c.options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return opt.StringValue()
}

// hasPermission returns true if the invoking member has every bit in
// perm, or is an administrator
func (c *commandContext) hasPermission(perm int64) bool {
	m := c.interaction.Member
	if m == nil {
		return false
	}
	if m.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return m.Permissions&perm == perm
}

type commandFunc func(ctx context.Context, c *commandContext) (*discordgo.InteractionResponse, error)

// componentHandler handles a button press. data is the part of the
// custom ID following the action.
type componentHandler func(
	ctx context.Context,
	c *commandContext,
	data string,
) (*discordgo.InteractionResponse, error)

type slashCommand struct {
	definition *discordgo.ApplicationCommand

	// category is the toggle category, if the command can be disabled
	// per guild
	category  string
	ownerOnly bool

	// permission, if set, is required of the invoking member
	permission int64
	run        commandFunc
}

// denied renders a rule denial as an ephemeral message. Any other
// error is passed through, to be logged and reported as a failure.
func denied(err error, message func(err error) string) (*discordgo.InteractionResponse, error) {
	if !IsDenial(err) {
		return nil, err
	}
	return ephemeralResponse(message(err)), nil
}

func (s *Slavie) isOwner(userID string) bool {
	return slices.Contains(s.config.Discord.OwnerIDs, userID)
}

func userFromDiscord(du *discordgo.User) User {
	return User{
		ID:         du.ID,
		Username:   du.Username,
		GlobalName: du.GlobalName,
		Bot:        du.Bot,
	}
}

// targetUser returns the user selected for the given option, recording
// them so their name is available later. If the user can't be saved,
// the interaction's copy is used.
func (s *Slavie) targetUser(ctx context.Context, c *commandContext, option string) (*User, error) {
	du, ok := c.userOption(option)
	if !ok {
		return nil, fmt.Errorf("missing required option %q", option)
	}
	if du.Username == "" {
		u := userFromDiscord(du)
		return &u, nil
	}
	u, err := upsertUser(ctx, s.store.DB(), *du)
	if err != nil {
		c.logger.WarnContext(ctx, "error saving target user", tint.Err(err))
		fallback := userFromDiscord(du)
		return &fallback, nil
	}
	return u, nil
}

// displayNames returns the stored display name for each ID, in order.
// Users the bot hasn't seen are shown as "Someone".
func (s *Slavie) displayNames(ctx context.Context, ids ...string) []string {
	names := make([]string, len(ids))
	for idx := range names {
		names[idx] = "Someone"
	}
	if len(ids) == 0 {
		return names
	}

	var users []User
	if err := s.store.DB().DB().WithContext(ctx).Where(
		columnUserID+" IN ?",
		ids,
	).Find(&users).Error; err != nil {
		contextLoggerOr(ctx, s.logger).WarnContext(ctx, "error looking up names", tint.Err(err))
		return names
	}
	byID := make(map[string]User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for idx, id := range ids {
		u, ok := byID[id]
		switch {
		case !ok:
		case u.GlobalName != "":
			names[idx] = u.GlobalName
		case u.Username != "":
			names[idx] = u.Username
		}
	}
	return names
}

func memberOptionDef(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func reasonOptionDef(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optionReason,
		Description: description,
		MaxLength:   1000,
	}
}

func newCommandDefinition(
	name string,
	description string,
	permission int64,
	options ...*discordgo.ApplicationCommandOption,
) *discordgo.ApplicationCommand {
	dmPerm := false
	cmd := &discordgo.ApplicationCommand{
		Name:         name,
		Description:  description,
		Type:         discordgo.ChatApplicationCommand,
		DMPermission: &dmPerm,
		Options:      options,
	}
	if permission != 0 {
		cmd.DefaultMemberPermissions = &permission
	}
	return cmd
}

// slashCommands builds the command registry, keyed by command name
func (s *Slavie) slashCommands() map[string]*slashCommand {
	var (
		permKick  int64 = discordgo.PermissionKickMembers
		permBan   int64 = discordgo.PermissionBanMembers
		permAdmin int64 = discordgo.PermissionAdministrator
	)
	commands := []*slashCommand{
		{
			definition: newCommandDefinition(
				commandMarry, "Propose to someone", 0,
				memberOptionDef(optionMember, "The member to propose to", true),
			),
			category: categoryInteractions,
			run:      s.commandMarry,
		},
		{
			definition: newCommandDefinition(commandAccept, "Accept a marriage proposal", 0),
			category:   categoryInteractions,
			run:        s.commandAccept,
		},
		{
			definition: newCommandDefinition(commandDecline, "Decline a marriage proposal", 0),
			category:   categoryInteractions,
			run:        s.commandDecline,
		},
		{
			definition: newCommandDefinition(commandDivorce, "Divorce your spouse", 0),
			category:   categoryInteractions,
			run:        s.commandDivorce,
		},
		{
			definition: newCommandDefinition(
				commandCancelProposal,
				"Cancel your pending marriage proposal",
				0,
			),
			category: categoryInteractions,
			run:      s.commandCancelProposal,
		},
		{
			definition: newCommandDefinition(
				commandForceMarry, "Marry two members without a proposal", 0,
				memberOptionDef(optionMember1, "The first member", true),
				memberOptionDef(optionMember2, "The second member", true),
			),
			ownerOnly: true,
			run:       s.commandForceMarry,
		},
		{
			definition: newCommandDefinition(
				commandAdopt, "Offer to adopt someone", 0,
				memberOptionDef(optionMember, "The member to adopt", true),
			),
			category: categoryInteractions,
			run:      s.commandAdopt,
		},
		{
			definition: newCommandDefinition(
				commandCancelAdoption,
				"Cancel your pending adoption offers",
				0,
			),
			category: categoryInteractions,
			run:      s.commandCancelAdoption,
		},
		{
			definition: newCommandDefinition(
				commandAbandon, "Disown one of your adopted children", 0,
				memberOptionDef(optionMember, "The child to disown", true),
			),
			category: categoryInteractions,
			run:      s.commandAbandon,
		},
		{
			definition: newCommandDefinition(commandRunaway, "Run away from your parents", 0),
			category:   categoryInteractions,
			run:        s.commandRunaway,
		},
		{
			definition: newCommandDefinition(
				commandHug, "Hug someone", 0,
				memberOptionDef(optionMember, "The member to hug", true),
			),
			category: categoryInteractions,
			run:      s.commandAffection(hugAffection),
		},
		{
			definition: newCommandDefinition(
				commandKiss, "Kiss someone", 0,
				memberOptionDef(optionMember, "The member to kiss", true),
			),
			category: categoryInteractions,
			run:      s.commandAffection(kissAffection),
		},
		{
			definition: newCommandDefinition(
				commandSlap, "Slap someone", 0,
				memberOptionDef(optionMember, "The member to slap", true),
			),
			category: categoryInteractions,
			run:      s.commandSlap,
		},
		{
			definition: newCommandDefinition(commandPing, "Check the bot's latency", 0),
			category:   categoryOther,
			run:        s.commandPing,
		},
		{
			definition: newCommandDefinition(commandHelp, "List the available commands", 0),
			category:   categoryOther,
			run:        s.commandHelp,
		},
		{
			definition: newCommandDefinition(
				commandUserInfo, "Show information about a member", 0,
				memberOptionDef(optionMember, "The member to look up", false),
			),
			category: categoryOther,
			run:      s.commandUserInfo,
		},
		{
			definition: newCommandDefinition(commandGuildInfo, "Show information about this server", 0),
			category:   categoryOther,
			run:        s.commandGuildInfo,
		},
		{
			definition: newCommandDefinition(
				commandFamilyInfo, "Show a member's family", 0,
				memberOptionDef(optionMember, "The member to look up", false),
			),
			category: categoryOther,
			run:      s.commandFamilyInfo,
		},
		{
			definition: newCommandDefinition(
				commandWarn, "Warn a member", permKick,
				memberOptionDef(optionMember, "The member to warn", true),
				reasonOptionDef("Why the member is being warned"),
			),
			category:   categoryModeration,
			permission: permKick,
			run:        s.commandWarn,
		},
		{
			definition: newCommandDefinition(
				commandRemoveWarns, "Remove all of a member's warnings", permKick,
				memberOptionDef(optionMember, "The member to clear", true),
			),
			category:   categoryModeration,
			permission: permKick,
			run:        s.commandRemoveWarns,
		},
		{
			definition: newCommandDefinition(
				commandKick, "Kick a member from the server", permKick,
				memberOptionDef(optionMember, "The member to kick", true),
				reasonOptionDef("Why the member is being kicked"),
			),
			category:   categoryModeration,
			permission: permKick,
			run:        s.commandRemoveMember(kickRemoval),
		},
		{
			definition: newCommandDefinition(
				commandBan, "Ban a member from the server", permBan,
				memberOptionDef(optionMember, "The member to ban", true),
				reasonOptionDef("Why the member is being banned"),
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optionDeleteDays,
					Description: "Days of the member's messages to delete",
					MinValue:    &minDeleteDays,
					MaxValue:    maxDeleteDays,
				},
			),
			category:   categoryModeration,
			permission: permBan,
			run:        s.commandRemoveMember(banRemoval),
		},
		{
			definition: newCommandDefinition(
				commandDisable, "Disable a command or category in this server", permAdmin,
				commandNameOptionDef(),
			),
			permission: permAdmin,
			run:        s.commandToggle(true),
		},
		{
			definition: newCommandDefinition(
				commandEnable, "Enable a command or category in this server", permAdmin,
				commandNameOptionDef(),
			),
			permission: permAdmin,
			run:        s.commandToggle(false),
		},
	}

	registry := make(map[string]*slashCommand, len(commands))
	for _, cmd := range commands {
		registry[cmd.definition.Name] = cmd
	}
	return registry
}

func (s *Slavie) componentHandlers() map[string]componentHandler {
	return map[string]componentHandler{
		componentMarryAccept:  s.componentMarryAccept,
		componentMarryDecline: s.componentMarryDecline,
		componentAdoptAccept:  s.componentAdoptAccept,
		componentAdoptDecline: s.componentAdoptDecline,
		componentSlapBack:     s.componentSlapBack,
	}
}

// applicationCommands returns the definitions to register with
// Discord, sorted by name
func (s *Slavie) applicationCommands() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(s.commands))
	for _, cmd := range s.commands {
		defs = append(defs, cmd.definition)
	}
	sort.Slice(
		defs, func(i, j int) bool {
			return defs[i].Name < defs[j].Name
		},
	)
	return defs
}
