package slavie

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

func TestNewInvalidDatabaseType(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.DatabaseType = "mysql"
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid database type")
}

func TestRuntimeConfigUpdateKeys(t *testing.T) {
	t.Parallel()
	configFields := map[string]bool{}
	configType := reflect.TypeOf(RuntimeConfig{})
	for i := 0; i < configType.NumField(); i++ {
		tag, _, _ := strings.Cut(configType.Field(i).Tag.Get("json"), ",")
		if tag != "" && tag != "-" {
			configFields[tag] = true
		}
	}

	updateType := reflect.TypeOf(RuntimeConfigUpdate{})
	for i := 0; i < updateType.NumField(); i++ {
		tag, _, _ := strings.Cut(updateType.Field(i).Tag.Get("json"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		assert.True(
			t,
			configFields[tag],
			"field %s in RuntimeConfigUpdate is not present in RuntimeConfig",
			tag,
		)
	}
}

func TestLoggerCtx(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := context.Background()

	found, ok := ContextLogger(ctx)
	assert.Nil(t, found)
	assert.False(t, ok)

	found, ok = ContextLogger(WithLogger(ctx, logger))
	assert.True(t, ok)
	assert.Equal(t, logger, found)
}

func TestUpsertUser(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	du := discordgo.User{ID: "alice", Username: "alice", GlobalName: "Alice"}
	u, err := upsertUser(ctx, store.DB(), du)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, "Alice", u.GlobalName)
	assert.False(t, u.Ignored)

	require.NoError(
		t,
		store.DB().DB().Model(&User{}).Where("id = ?", "alice").Update("ignored", true).Error,
	)

	du.GlobalName = "Alice B."
	u, err = upsertUser(ctx, store.DB(), du)
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", u.GlobalName)
	assert.True(t, u.Ignored, "an update shouldn't clear the ignored flag")

	var n int64
	require.NoError(t, store.DB().DB().Model(&User{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestInteractionCommandName(t *testing.T) {
	t.Parallel()
	member := testMember("alice", 0)

	assert.Equal(
		t,
		commandMarry,
		interactionCommandName(slashInteraction(member, commandMarry, userOpt(optionMember, "bob"))),
	)
	assert.Equal(
		t,
		componentMarryAccept,
		interactionCommandName(buttonInteraction(member, componentMarryAccept+":abc")),
	)
}

func TestHandleRecover(t *testing.T) {
	s, _ := newTestSlavie(t)
	ctx := WithLogger(context.Background(), slog.Default())
	assert.NotPanics(
		t, func() {
			s.handleRecover(ctx, errors.New("boom"))
			s.handleRecover(ctx, "boom")
			s.handleRecover(context.Background(), 42)
		},
	)
}
