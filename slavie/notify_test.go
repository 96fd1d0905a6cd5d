package slavie

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestTogglesUpdatedPayload(t *testing.T) {
	payload := newTogglesUpdatedPayload("abc123", "987654321")
	notifierID, guildID := parseTogglesUpdatedPayload(payload)
	assert.Equal(t, "abc123", notifierID)
	assert.Equal(t, "987654321", guildID)

	notifierID, guildID = parseTogglesUpdatedPayload("abc123")
	assert.Equal(t, "abc123", notifierID)
	assert.Empty(t, guildID)
}

func TestSQLiteNotifierStop(t *testing.T) {
	s, _ := newTestSlavie(t)
	require.IsType(t, &sqliteNotifier{}, s.notifier)
	assert.Len(t, s.notifier.ID(), 32)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, s.notifier.Stop(ctx))

	select {
	case <-s.signalStop:
	default:
		t.Fatal("expected stop signal")
	}
}

func TestPostgresNotifierDispatch(t *testing.T) {
	s, _ := newTestSlavie(t)
	p := &postgresNotifier{s: s, logger: s.logger, id: "self"}
	ctx := context.Background()

	t.Run(
		"own config update is ignored", func(t *testing.T) {
			p.dispatch(ctx, postgresNotifyChannelRuntimeConfigUpdated, "self")
			select {
			case <-s.triggerRuntimeConfigRefreshCh:
				t.Fatal("unexpected refresh")
			default:
			}
		},
	)
	t.Run(
		"config update from another instance", func(t *testing.T) {
			p.dispatch(ctx, postgresNotifyChannelRuntimeConfigUpdated, "other")
			select {
			case <-s.triggerRuntimeConfigRefreshCh:
			default:
				t.Fatal("expected refresh")
			}
		},
	)
	t.Run(
		"toggle update drops cached toggles", func(t *testing.T) {
			_, err := s.toggles.Disabled(ctx, testGuildID)
			require.NoError(t, err)
			s.toggles.mu.RLock()
			_, cached := s.toggles.cache[testGuildID]
			s.toggles.mu.RUnlock()
			require.True(t, cached)

			p.dispatch(ctx, postgresNotifyChannelTogglesUpdated, newTogglesUpdatedPayload("other", testGuildID))
			s.toggles.mu.RLock()
			_, cached = s.toggles.cache[testGuildID]
			s.toggles.mu.RUnlock()
			assert.False(t, cached)
		},
	)
	t.Run(
		"stop", func(t *testing.T) {
			p.dispatch(ctx, postgresNotifyChannelStop, "self")
			select {
			case <-s.signalStop:
			default:
				t.Fatal("expected stop signal")
			}
		},
	)
}
