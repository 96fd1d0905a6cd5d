package slavie

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testGuildID   = "guild"
	testChannelID = "channel"
)

// stubSession is a DiscordSessionHandler that records what the bot
// sends instead of calling Discord
type stubSession struct {
	mu sync.Mutex

	guild     *discordgo.Guild
	channels  []*discordgo.Channel
	dms       map[string][]*discordgo.MessageEmbed
	messages  []string
	embeds    []*discordgo.MessageEmbed
	kicked    []string
	banned    map[string]int
	responses []*discordgo.InteractionResponse
	statuses  []discordgo.UpdateStatusData
	commands  []*discordgo.ApplicationCommand

	kickErr error
}

func newStubSession() *stubSession {
	return &stubSession{
		guild:  &discordgo.Guild{ID: testGuildID, Name: "Test Guild", OwnerID: "owner"},
		dms:    map[string][]*discordgo.MessageEmbed{},
		banned: map[string]int{},
	}
}

func (s *stubSession) Open() error  { return nil }
func (s *stubSession) Close() error { return nil }

func (s *stubSession) ChannelMessageSend(
	channelID string,
	message string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return &discordgo.Message{ChannelID: channelID, Content: message}, nil
}

func (s *stubSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID, ok := strings.CutPrefix(channelID, "dm-"); ok {
		s.dms[userID] = append(s.dms[userID], embed)
	} else {
		s.embeds = append(s.embeds, embed)
	}
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (s *stubSession) UserChannelCreate(
	recipientID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (s *stubSession) GuildMemberDeleteWithReason(
	_ string,
	userID string,
	_ string,
	_ ...discordgo.RequestOption,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kickErr != nil {
		return s.kickErr
	}
	s.kicked = append(s.kicked, userID)
	return nil
}

func (s *stubSession) Guild(string, ...discordgo.RequestOption) (*discordgo.Guild, error) {
	return s.guild, nil
}

func (s *stubSession) GuildWithCounts(string, ...discordgo.RequestOption) (*discordgo.Guild, error) {
	return s.guild, nil
}

func (s *stubSession) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return s.channels, nil
}

func (s *stubSession) GuildBanCreateWithReason(
	_ string,
	userID string,
	_ string,
	days int,
	_ ...discordgo.RequestOption,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kickErr != nil {
		return s.kickErr
	}
	s.banned[userID] = days
	return nil
}

func (s *stubSession) ApplicationCommandBulkOverwrite(
	_ string,
	_ string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = commands
	return commands, nil
}

func (s *stubSession) UpdateStatusComplex(data discordgo.UpdateStatusData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, data)
	return nil
}

func (s *stubSession) AddHandler(any) func() {
	return func() {}
}

func (s *stubSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return nil
}

func (s *stubSession) HeartbeatLatency() time.Duration {
	return 42 * time.Millisecond
}

func (s *stubSession) SetHTTPClient(*http.Client)    {}
func (s *stubSession) SetIdentify(discordgo.Identify) {}
func (s *stubSession) SetLogLevel(slog.Level) error   { return nil }

// testInteractionHandler records the responses to a single interaction
type testInteractionHandler struct {
	interaction *discordgo.InteractionCreate
	mu          sync.Mutex
	responses   []*discordgo.InteractionResponse
}

func (h *testInteractionHandler) Respond(
	_ context.Context,
	resp *discordgo.InteractionResponse,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, resp)
	return nil
}

func (h *testInteractionHandler) GetInteraction() *discordgo.InteractionCreate {
	return h.interaction
}

func (*testInteractionHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodGateway
}

func (*testInteractionHandler) Logger() *slog.Logger {
	return slog.Default()
}

// newTestSlavie returns a Slavie with a connected sqlite store and a
// stubbed discord session. Nothing is served.
func newTestSlavie(t testing.TB) (*Slavie, *stubSession) {
	t.Helper()
	s, err := New(DefaultTestConfig(t))
	require.NoError(t, err)

	session := newStubSession()
	s.discord.session = session

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.initRun(ctx))

	notifier, err := newDBNotifier(s)
	require.NoError(t, err)
	s.notifier = notifier

	t.Cleanup(
		func() {
			_ = s.store.Close()
		},
	)
	return s, session
}

var interactionSeq atomic.Int64

func testMember(userID string, permissions int64) *discordgo.Member {
	return &discordgo.Member{
		User:        &discordgo.User{ID: userID, Username: userID, GlobalName: userID},
		Permissions: permissions,
	}
}

func userOpt(name, userID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionUser,
		Value: userID,
	}
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

// slashInteraction builds a guild slash command interaction. USER
// options are added to the resolved data, as Discord does.
func slashInteraction(
	member *discordgo.Member,
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	resolved := &discordgo.ApplicationCommandInteractionDataResolved{
		Users:   map[string]*discordgo.User{},
		Members: map[string]*discordgo.Member{},
	}
	for _, opt := range options {
		if opt.Type != discordgo.ApplicationCommandOptionUser {
			continue
		}
		id := opt.Value.(string)
		resolved.Users[id] = &discordgo.User{
			ID:         id,
			Username:   id,
			GlobalName: id,
			Bot:        strings.HasPrefix(id, "bot"),
		}
		resolved.Members[id] = &discordgo.Member{}
	}

	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        fmt.Sprintf("interaction-%d", interactionSeq.Add(1)),
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Member:    member,
			Data: discordgo.ApplicationCommandInteractionData{
				Name:     name,
				Options:  options,
				Resolved: resolved,
			},
		},
	}
}

func buttonInteraction(member *discordgo.Member, customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        fmt.Sprintf("interaction-%d", interactionSeq.Add(1)),
			Type:      discordgo.InteractionMessageComponent,
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Member:    member,
			Message:   &discordgo.Message{ID: "message"},
			Data: discordgo.MessageComponentInteractionData{
				CustomID:      customID,
				ComponentType: discordgo.ButtonComponent,
			},
		},
	}
}

// interact runs the interaction to completion and returns its response
func interact(
	t testing.TB,
	s *Slavie,
	i *discordgo.InteractionCreate,
) *discordgo.InteractionResponse {
	t.Helper()
	handler := &testInteractionHandler{interaction: i}
	s.handleInteraction(context.Background(), handler)
	require.Len(t, handler.responses, 1)
	return handler.responses[0]
}

func isEphemeral(resp *discordgo.InteractionResponse) bool {
	return resp.Data != nil && resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0
}

func buttonCustomIDs(t testing.TB, resp *discordgo.InteractionResponse) []string {
	t.Helper()
	require.NotNil(t, resp.Data)
	var ids []string
	for _, c := range resp.Data.Components {
		row, ok := c.(discordgo.ActionsRow)
		require.True(t, ok, "expected an actions row, got %T", c)
		for _, rc := range row.Components {
			button, isButton := rc.(discordgo.Button)
			require.True(t, isButton)
			ids = append(ids, button.CustomID)
		}
	}
	return ids
}

func TestMarryAndAccept(t *testing.T) {
	s, _ := newTestSlavie(t)

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandMarry, userOpt(optionMember, "bob")))
	require.False(t, isEphemeral(resp))
	require.Len(t, resp.Data.Embeds, 1)
	assert.Contains(t, resp.Data.Embeds[0].Description, "<@alice> has proposed to <@bob>")
	ids := buttonCustomIDs(t, resp)
	require.Len(t, ids, 2)
	assert.True(t, strings.HasPrefix(ids[0], componentMarryAccept+customIDSeparator))
	assert.True(t, strings.HasPrefix(ids[1], componentMarryDecline+customIDSeparator))

	resp = interact(t, s, slashInteraction(testMember("bob", 0), commandAccept))
	assert.False(t, isEphemeral(resp))
	assert.Equal(t, "<@bob> and <@alice> are now married! 💍", resp.Data.Content)

	m, err := s.store.FindMarriage(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "bob", m.MarriedTo)

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandDivorce))
	assert.Equal(t, "<@alice> has divorced their spouse.", resp.Data.Content)

	resp = interact(t, s, slashInteraction(testMember("bob", 0), commandDivorce))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, "You are not married.", resp.Data.Content)
}

func TestMarryDenials(t *testing.T) {
	s, _ := newTestSlavie(t)

	tests := []struct {
		name    string
		target  string
		message string
	}{
		{name: "self", target: "alice", message: "You can't propose to yourself!"},
		{name: "bot", target: "botty", message: "You cannot propose to a bot!"},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				resp := interact(
					t,
					s,
					slashInteraction(testMember("alice", 0), commandMarry, userOpt(optionMember, tc.target)),
				)
				assert.True(t, isEphemeral(resp))
				assert.Equal(t, tc.message, resp.Data.Content)
			},
		)
	}

	t.Run(
		"accept without proposal", func(t *testing.T) {
			resp := interact(t, s, slashInteraction(testMember("carol", 0), commandAccept))
			assert.True(t, isEphemeral(resp))
			assert.Equal(t, "No one has proposed to you!", resp.Data.Content)
		},
	)
}

func TestMarryAcceptButton(t *testing.T) {
	s, _ := newTestSlavie(t)

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandMarry, userOpt(optionMember, "bob")))
	ids := buttonCustomIDs(t, resp)
	require.Len(t, ids, 2)

	resp = interact(t, s, buttonInteraction(testMember("mallory", 0), ids[0]))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, "This proposal was not meant for you!", resp.Data.Content)

	resp = interact(t, s, buttonInteraction(testMember("bob", 0), ids[0]))
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	assert.Equal(t, "<@bob> has accepted the proposal from <@alice>! 💍", resp.Data.Content)
	assert.Empty(t, resp.Data.Components)

	resp = interact(t, s, buttonInteraction(testMember("bob", 0), ids[1]))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, "This proposal is no longer pending.", resp.Data.Content)
}

func TestUnknownButton(t *testing.T) {
	s, _ := newTestSlavie(t)
	resp := interact(t, s, buttonInteraction(testMember("alice", 0), "nonsense:1234"))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, componentExpiredMessage, resp.Data.Content)
}

func TestSlashCommandGuildOnly(t *testing.T) {
	s, _ := newTestSlavie(t)
	i := slashInteraction(testMember("alice", 0), commandPing)
	i.GuildID = ""

	resp := interact(t, s, i)
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, guildOnlyMessage, resp.Data.Content)
}

func TestPausedBlocksNonOwners(t *testing.T) {
	s, _ := newTestSlavie(t)

	cfg := s.RuntimeConfig()
	cfg.Paused = true
	s.cfgMu.Lock()
	s.setRuntimeConfig(&cfg)
	s.cfgMu.Unlock()

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandPing))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, pausedMessage, resp.Data.Content)

	resp = interact(t, s, slashInteraction(testMember("owner", 0), commandPing))
	assert.NotEqual(t, pausedMessage, resp.Data.Content)
}

func TestOwnerOnlyCommand(t *testing.T) {
	s, _ := newTestSlavie(t)

	resp := interact(
		t,
		s,
		slashInteraction(
			testMember("alice", 0),
			commandForceMarry,
			userOpt(optionMember1, "bob"),
			userOpt(optionMember2, "carol"),
		),
	)
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, ownerOnlyMessage, resp.Data.Content)

	resp = interact(
		t,
		s,
		slashInteraction(
			testMember("owner", 0),
			commandForceMarry,
			userOpt(optionMember1, "bob"),
			userOpt(optionMember2, "carol"),
		),
	)
	assert.False(t, isEphemeral(resp))
	assert.Contains(t, resp.Data.Content, "are now married!")
}

func TestDisableAndEnableCommand(t *testing.T) {
	s, _ := newTestSlavie(t)
	admin := testMember("admin", discordgo.PermissionAdministrator)

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandDisable, stringOpt(optionCommandName, "hug")))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, noPermissionMessage, resp.Data.Content)

	resp = interact(t, s, slashInteraction(admin, commandDisable, stringOpt(optionCommandName, "hug")))
	assert.Equal(t, "The command `hug` has been disabled.", resp.Data.Content)

	resp = interact(t, s, slashInteraction(admin, commandDisable, stringOpt(optionCommandName, "hug")))
	assert.Equal(t, "The command(s) `hug` are already disabled.", resp.Data.Content)

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandHug, userOpt(optionMember, "bob")))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, "The command `hug` is disabled in this server.", resp.Data.Content)

	resp = interact(t, s, slashInteraction(admin, commandDisable, stringOpt(optionCommandName, "nope")))
	assert.Equal(t, "The command `nope` doesn't exist or can't be disabled.", resp.Data.Content)

	resp = interact(t, s, slashInteraction(admin, commandEnable, stringOpt(optionCommandName, "hug")))
	assert.Equal(t, "The command `hug` has been enabled.", resp.Data.Content)

	resp = interact(t, s, slashInteraction(admin, commandEnable, stringOpt(optionCommandName, "hug")))
	assert.Equal(t, "No commands are disabled in this server.", resp.Data.Content)
}

func TestDisableCategory(t *testing.T) {
	s, _ := newTestSlavie(t)
	admin := testMember("admin", discordgo.PermissionAdministrator)

	resp := interact(t, s, slashInteraction(admin, commandDisable, stringOpt(optionCommandName, categoryInteractions)))
	assert.Equal(t, "All `interactions` commands have been disabled.", resp.Data.Content)

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandMarry, userOpt(optionMember, "bob")))
	assert.Equal(t, "The command `marry` is disabled in this server.", resp.Data.Content)

	resp = interact(t, s, slashInteraction(admin, commandEnable, stringOpt(optionCommandName, categoryInteractions)))
	assert.Equal(t, "All `interactions` commands have been enabled.", resp.Data.Content)
}

func TestWarnKicksAtLimit(t *testing.T) {
	s, session := newTestSlavie(t)
	s.config.Discord.WarnLimit = 2
	mod := testMember("owner", discordgo.PermissionKickMembers)

	warn := func() *discordgo.InteractionResponse {
		return interact(
			t,
			s,
			slashInteraction(mod, commandWarn, userOpt(optionMember, "troll"), stringOpt(optionReason, "spam")),
		)
	}

	resp := warn()
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "**troll** has been warned. 😔", resp.Data.Embeds[0].Description)
	assert.Equal(t, "1/2", resp.Data.Embeds[0].Fields[1].Value)
	assert.Empty(t, session.kicked)
	assert.Len(t, session.dms["troll"], 1)

	resp = warn()
	assert.Equal(t, "2/2", resp.Data.Embeds[0].Fields[1].Value)
	assert.Equal(t, []string{"troll"}, session.kicked)
	require.Len(t, session.dms["troll"], 3)
	assert.Equal(t, "🌸 You've Been Kicked 🌸", session.dms["troll"][2].Title)
	require.Len(t, session.embeds, 1)
	assert.Equal(t, "🚪 Auto-Kick 🚪", session.embeds[0].Title)

	var n int64
	require.NoError(
		t,
		s.store.DB().DB().Model(&Warning{}).Where(
			"guild_id = ? AND user_id = ?",
			testGuildID,
			"troll",
		).Count(&n).Error,
	)
	assert.Zero(t, n)
}

func TestWarnKickFailure(t *testing.T) {
	s, session := newTestSlavie(t)
	s.config.Discord.WarnLimit = 1
	session.kickErr = errors.New("missing permissions")

	interact(
		t,
		s,
		slashInteraction(
			testMember("owner", discordgo.PermissionKickMembers),
			commandWarn,
			userOpt(optionMember, "troll"),
		),
	)
	assert.Empty(t, session.kicked)
	assert.Equal(t, []string{"Could not kick troll. ❌"}, session.messages)
}

func TestWarnRequiresPermission(t *testing.T) {
	s, _ := newTestSlavie(t)
	resp := interact(
		t,
		s,
		slashInteraction(testMember("alice", 0), commandWarn, userOpt(optionMember, "bob")),
	)
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, noPermissionMessage, resp.Data.Content)
}

func TestKickAndBan(t *testing.T) {
	s, session := newTestSlavie(t)
	mod := testMember("owner", discordgo.PermissionKickMembers|discordgo.PermissionBanMembers)

	resp := interact(
		t,
		s,
		slashInteraction(mod, commandKick, userOpt(optionMember, "troll"), stringOpt(optionReason, "spam")),
	)
	require.Equal(t, []string{"🚪 Kick Notice 🚪"}, embedTitles(resp))
	assert.Equal(t, "spam", resp.Data.Embeds[0].Fields[0].Value)
	assert.Equal(t, []string{"troll"}, session.kicked)
	require.Len(t, session.dms["troll"], 1)
	assert.Equal(t, "🌸 You've Been Kicked 🌸", session.dms["troll"][0].Title)

	resp = interact(
		t,
		s,
		slashInteraction(
			mod,
			commandBan,
			userOpt(optionMember, "raider"),
			&discordgo.ApplicationCommandInteractionDataOption{
				Name:  optionDeleteDays,
				Type:  discordgo.ApplicationCommandOptionInteger,
				Value: float64(3),
			},
		),
	)
	require.Equal(t, []string{"⛔ Ban Notice ⛔"}, embedTitles(resp))
	assert.Equal(t, defaultWarnReason, resp.Data.Embeds[0].Fields[0].Value)
	assert.Equal(t, map[string]int{"raider": 3}, session.banned)
	require.Len(t, session.dms["raider"], 1)
	assert.Equal(t, "🌸 You've Been Banned 🌸", session.dms["raider"][0].Title)
}

func TestKickAndBanRefusals(t *testing.T) {
	s, session := newTestSlavie(t)
	s.discord.botUser.Store(&discordgo.User{ID: "slavie", Bot: true})
	session.guild.Roles = []*discordgo.Role{
		{ID: "mod", Position: 2},
		{ID: "admin", Position: 5},
	}
	mod := testMember("alice", discordgo.PermissionKickMembers|discordgo.PermissionBanMembers)
	mod.Roles = []string{"mod"}

	tests := []struct {
		name     string
		command  string
		target   string
		roles    []string
		expected string
	}{
		{"bot", commandKick, "slavie", nil, "You can't kick me, dumahh. 😔"},
		{"self", commandBan, "alice", nil, "You can't ban yourself, dumahh. 😔"},
		{"owner", commandKick, "owner", nil, "You can't kick the server owner, dumahh. 😔"},
		{
			"higher role",
			commandBan,
			"boss",
			[]string{"admin"},
			"You can't ban someone with a higher or equal role than yours! 🌟",
		},
		{
			"equal role",
			commandKick,
			"peer",
			[]string{"mod"},
			"You can't kick someone with a higher or equal role than yours! 🌟",
		},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				i := slashInteraction(mod, tc.command, userOpt(optionMember, tc.target))
				i.ApplicationCommandData().Resolved.Members[tc.target].Roles = tc.roles
				resp := interact(t, s, i)
				assert.True(t, isEphemeral(resp))
				assert.Equal(t, tc.expected, resp.Data.Content)
			},
		)
	}
	assert.Empty(t, session.kicked)
	assert.Empty(t, session.banned)
	assert.Empty(t, session.dms)

	// a member with no roles is below the moderator
	resp := interact(t, s, slashInteraction(mod, commandKick, userOpt(optionMember, "newbie")))
	require.Equal(t, []string{"🚪 Kick Notice 🚪"}, embedTitles(resp))
	assert.Equal(t, []string{"newbie"}, session.kicked)
}

func TestKickAndBanFailures(t *testing.T) {
	s, session := newTestSlavie(t)
	session.kickErr = errors.New("missing permissions")
	mod := testMember("owner", discordgo.PermissionKickMembers|discordgo.PermissionBanMembers)

	resp := interact(t, s, slashInteraction(mod, commandBan, userOpt(optionMember, "troll")))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, "Oh no, I couldn't ban this user. 🚫", resp.Data.Content)
	assert.Empty(t, session.banned)
	assert.Empty(t, session.embeds)

	resp = interact(
		t,
		s,
		slashInteraction(
			testMember("alice", discordgo.PermissionKickMembers),
			commandBan,
			userOpt(optionMember, "troll"),
		),
	)
	assert.Equal(t, noPermissionMessage, resp.Data.Content)

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandKick, userOpt(optionMember, "troll")))
	assert.Equal(t, noPermissionMessage, resp.Data.Content)
}

func TestGuildInfo(t *testing.T) {
	s, session := newTestSlavie(t)
	session.guild.ApproximateMemberCount = 42
	session.guild.ApproximatePresenceCount = 7
	session.channels = []*discordgo.Channel{
		{ID: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "news", Type: discordgo.ChannelTypeGuildNews},
		{ID: "lounge", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "category", Type: discordgo.ChannelTypeGuildCategory},
	}

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandGuildInfo))
	require.Equal(t, []string{"🌟 Guild Information 🌟"}, embedTitles(resp))
	embed := resp.Data.Embeds[0]
	assert.Nil(t, embed.Thumbnail)

	values := make(map[string]string, len(embed.Fields))
	for _, f := range embed.Fields {
		values[f.Name] = f.Value
	}
	assert.Equal(t, "**Test Guild**", values["Server Name:"])
	assert.Equal(t, "42 members", values["Total Members:"])
	assert.Equal(t, "🌼 7 online", values["Online Members:"])
	assert.Equal(t, "📚 2 channels", values["Text Channels:"])
	assert.Equal(t, "🔊 1 channels", values["Voice Channels:"])
}

func TestIgnoredUser(t *testing.T) {
	s, _ := newTestSlavie(t)
	ctx := context.Background()

	_, err := upsertUser(ctx, s.store.DB(), discordgo.User{ID: "alice", Username: "alice"})
	require.NoError(t, err)
	n, err := s.store.DB().UpdatesWhere(
		ctx,
		&User{},
		map[string]any{columnUserIgnored: true},
		columnUserID+" = ?",
		"alice",
	)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	handler := &testInteractionHandler{
		interaction: slashInteraction(testMember("alice", 0), commandPing),
	}
	s.handleInteraction(ctx, handler)
	assert.Empty(t, handler.responses)
}

func TestInteractionsAreLogged(t *testing.T) {
	s, _ := newTestSlavie(t)
	interact(t, s, slashInteraction(testMember("alice", 0), commandPing))

	var logs []InteractionLog
	require.NoError(t, s.store.DB().DB().Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, commandPing, logs[0].Command)
	assert.Equal(t, "alice", logs[0].UserID)
	assert.Equal(t, testGuildID, logs[0].GuildID)
}

func embedTitles(resp *discordgo.InteractionResponse) []string {
	var titles []string
	for _, e := range resp.Data.Embeds {
		titles = append(titles, e.Title)
	}
	return titles
}

func TestHugAndKiss(t *testing.T) {
	s, _ := newTestSlavie(t)

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandHug, userOpt(optionMember, "bob")))
	assert.False(t, isEphemeral(resp))
	assert.Equal(t, []string{"🤗 Friendly Hug!"}, embedTitles(resp))
	assert.Nil(t, resp.Data.Embeds[0].Image)

	marry(t, s.engine, "alice", "bob")

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandHug, userOpt(optionMember, "bob")))
	assert.Equal(t, []string{"🤗 Warm Hug!"}, embedTitles(resp))
	assert.Equal(t, "<@alice> gives a warm hug to their beloved <@bob>!", resp.Data.Embeds[0].Description)

	resp = interact(t, s, slashInteraction(testMember("carol", 0), commandKiss, userOpt(optionMember, "bob")))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, "<@bob> is married and can only be kissed by their spouse!", resp.Data.Content)

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandKiss, userOpt(optionMember, "carol")))
	assert.False(t, isEphemeral(resp))
	assert.Contains(t, cheatingResponses, resp.Data.Content)

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandHug, userOpt(optionMember, "alice")))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, "You can't hug yourself! Hug someone else!", resp.Data.Content)
}

func TestSlapAndSlapBack(t *testing.T) {
	s, _ := newTestSlavie(t)
	marry(t, s.engine, "alice", "bob")

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandSlap, userOpt(optionMember, "bob")))
	assert.Equal(t, "Don't you dare lay a finger on your spouse!", resp.Data.Content)

	resp = interact(t, s, slashInteraction(testMember("carol", 0), commandSlap, userOpt(optionMember, "bob")))
	require.False(t, isEphemeral(resp))
	assert.Equal(t, []string{"💥 Slap!"}, embedTitles(resp))
	require.NotNil(t, resp.Data.Embeds[0].Footer)
	assert.Contains(t, resp.Data.Embeds[0].Footer.Text, "is coming for you!")

	ids := buttonCustomIDs(t, resp)
	require.Equal(t, []string{"slap_back:carol:bob"}, ids)

	resp = interact(t, s, buttonInteraction(testMember("mallory", 0), ids[0]))
	assert.True(t, isEphemeral(resp))
	assert.Equal(t, notAllowedMessage, resp.Data.Content)

	// the target's spouse can slap back on their behalf
	resp = interact(t, s, buttonInteraction(testMember("alice", 0), ids[0]))
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	assert.Equal(t, []string{"💥 Slap Back!"}, embedTitles(resp))
	assert.Equal(t, "<@alice> just slapped back <@carol>!", resp.Data.Embeds[0].Description)
}

func TestInfoCommands(t *testing.T) {
	s, _ := newTestSlavie(t)
	marry(t, s.engine, "alice", "bob")
	adopt(t, s.engine, "alice", "carol")

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandPing))
	require.Equal(t, []string{"Ping"}, embedTitles(resp))
	assert.Equal(t, "n/a", resp.Data.Embeds[0].Fields[0].Value)

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandFamilyInfo))
	require.Len(t, resp.Data.Embeds, 1)
	fields := resp.Data.Embeds[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "<@bob> 💍", fields[0].Value)
	assert.Equal(t, "<@carol> 👶", fields[1].Value)
	assert.Equal(t, "Not adopted", fields[2].Value)

	resp = interact(
		t,
		s,
		slashInteraction(testMember("alice", 0), commandFamilyInfo, userOpt(optionMember, "carol")),
	)
	fields = resp.Data.Embeds[0].Fields
	assert.Equal(t, "Not married", fields[0].Value)
	assert.Contains(t, fields[2].Value, "<@alice>")
	assert.Contains(t, fields[2].Value, "<@bob>")

	resp = interact(t, s, slashInteraction(testMember("alice", 0), commandUserInfo))
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "**alice**", resp.Data.Embeds[0].Fields[0].Value)
}

func TestHelpHidesCommandsWithoutPermission(t *testing.T) {
	s, _ := newTestSlavie(t)

	resp := interact(t, s, slashInteraction(testMember("alice", 0), commandHelp))
	assert.True(t, isEphemeral(resp))
	titles := embedTitles(resp)
	assert.Contains(t, titles, "Interactions")
	assert.Contains(t, titles, "Other")
	assert.NotContains(t, titles, "Moderation")
	assert.NotContains(t, titles, "Server Settings")

	resp = interact(t, s, slashInteraction(testMember("admin", discordgo.PermissionAdministrator), commandHelp))
	titles = embedTitles(resp)
	assert.Contains(t, titles, "Moderation")
	assert.Contains(t, titles, "Server Settings")
}
