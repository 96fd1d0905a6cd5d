package slavie

import (
	"context"
	"fmt"
	"github.com/thoas/go-funk"
	"gorm.io/gorm/clause"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Toggle categories. /disable and /enable accept one of these in place
// of a command name to act on every command in the category.
const (
	categoryInteractions = "interactions"
	categoryOther        = "other"
	categoryModeration   = "moderation"
)

var toggleCategories = []string{categoryInteractions, categoryOther, categoryModeration}

const (
	columnDisabledCommandGuildID = "guild_id"
	columnDisabledCommandCommand = "command"
)

// DisabledCommand records a command that's been disabled in a guild
//
//nolint:lll // struct tags can't be split
type DisabledCommand struct {
	ModelUintID
	GuildID   string `json:"guild_id" gorm:"not null;uniqueIndex:idx_disabled_commands_guild_command,priority:1"`
	Command   string `json:"command" gorm:"not null;uniqueIndex:idx_disabled_commands_guild_command,priority:2"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime:milli"`
}

type toggleCacheEntry struct {
	commands []string
	expires  time.Time
}

// commandToggles reads and writes per-guild disabled commands. Lookups
// are cached per guild for ttl, and the cache entry is dropped
// whenever this instance changes the guild's toggles, or another
// instance announces that it did.
type commandToggles struct {
	store  *Store
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]toggleCacheEntry

	// onChange is called after a guild's toggles are written
	onChange func(ctx context.Context, guildID string)
}

func newCommandToggles(store *Store, ttl time.Duration, logger *slog.Logger) *commandToggles {
	return &commandToggles{
		store:  store,
		ttl:    ttl,
		logger: logger,
		cache:  map[string]toggleCacheEntry{},
	}
}

// Disabled returns the sorted names of the commands disabled in guildID
func (t *commandToggles) Disabled(ctx context.Context, guildID string) ([]string, error) {
	t.mu.RLock()
	entry, ok := t.cache[guildID]
	t.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.commands, nil
	}

	db, err := t.store.reader(ctx)
	if err != nil {
		return nil, err
	}
	var commands []string
	if err = db.Model(&DisabledCommand{}).Where(
		columnDisabledCommandGuildID+" = ?",
		guildID,
	).Order(columnDisabledCommandCommand+" asc").Pluck(
		columnDisabledCommandCommand,
		&commands,
	).Error; err != nil {
		return nil, fmt.Errorf("error loading disabled commands: %w", err)
	}

	if t.ttl > 0 {
		t.mu.Lock()
		t.cache[guildID] = toggleCacheEntry{
			commands: commands,
			expires:  time.Now().Add(t.ttl),
		}
		t.mu.Unlock()
	}
	return commands, nil
}

func (t *commandToggles) IsDisabled(ctx context.Context, guildID, command string) (bool, error) {
	disabled, err := t.Disabled(ctx, guildID)
	if err != nil {
		return false, err
	}
	return funk.ContainsString(disabled, command), nil
}

// Disable disables the given commands in guildID, returning the ones
// that weren't already disabled
func (t *commandToggles) Disable(
	ctx context.Context,
	guildID string,
	commands ...string,
) ([]string, error) {
	db, err := t.store.conn()
	if err != nil {
		return nil, err
	}

	var added []string
	db.Lock()
	for _, cmd := range funk.UniqString(commands) {
		dc := &DisabledCommand{GuildID: guildID, Command: cmd}
		rv := db.DB().WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(dc)
		if rv.Error != nil {
			err = fmt.Errorf("error disabling command %q: %w", cmd, rv.Error)
			break
		}
		if rv.RowsAffected > 0 {
			added = append(added, cmd)
		}
	}
	db.Unlock()

	if len(added) > 0 {
		t.changed(ctx, guildID)
		t.logger.InfoContext(ctx, "disabled commands", "guild_id", guildID, "commands", added)
	}
	return added, err
}

// Enable re-enables the given commands in guildID, returning how many
// were disabled
func (t *commandToggles) Enable(
	ctx context.Context,
	guildID string,
	commands ...string,
) (int64, error) {
	db, err := t.store.conn()
	if err != nil {
		return 0, err
	}
	n, err := db.Delete(
		ctx,
		&DisabledCommand{},
		columnDisabledCommandGuildID+" = ? AND "+columnDisabledCommandCommand+" IN ?",
		guildID,
		commands,
	)
	if err != nil {
		return 0, fmt.Errorf("error enabling commands: %w", err)
	}
	if n > 0 {
		t.changed(ctx, guildID)
		t.logger.InfoContext(ctx, "enabled commands", "guild_id", guildID, "commands", commands)
	}
	return n, nil
}

func (t *commandToggles) changed(ctx context.Context, guildID string) {
	t.invalidate(guildID)
	if t.onChange != nil {
		t.onChange(ctx, guildID)
	}
}

// invalidate drops the cached toggles for guildID. An empty guildID
// drops every guild.
func (t *commandToggles) invalidate(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if guildID == "" {
		t.cache = map[string]toggleCacheEntry{}
		return
	}
	delete(t.cache, guildID)
}

// toggleTarget resolves a /disable or /enable argument to the commands
// it names. A category expands to its commands. ok is false if name
// isn't a category or a command that can be toggled.
func (s *Slavie) toggleTarget(name string) (commands []string, isCategory bool, ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	names := make([]string, 0, len(s.commands))
	for n := range s.commands {
		names = append(names, n)
	}
	sort.Strings(names)

	if funk.ContainsString(toggleCategories, name) {
		commands = funk.FilterString(
			names, func(n string) bool {
				return s.commands[n].category == name
			},
		)
		return commands, true, len(commands) > 0
	}

	cmd, found := s.commands[name]
	if !found || cmd.category == "" {
		return nil, false, false
	}
	return []string{name}, false, true
}
