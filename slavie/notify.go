package slavie

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"log/slog"
	"strings"
	"time"
)

const (
	postgresNotifyChannelRuntimeConfigUpdated = "slavie_reload_runtime_config"
	postgresNotifyChannelTogglesUpdated       = "slavie_toggles_updated"
	postgresNotifyChannelStop                 = "slavie_stop"

	recordSeparator       = "\x1e"
	dbNotifierSendTimeout = 15 * time.Second
	dbNotifierRetryDelay  = 5 * time.Second
)

// DBNotifier tells every bot instance sharing the database about
// changes made by one of them. With sqlite there's only ever one
// instance, so notifications are delivered in-process.
type DBNotifier interface {
	// ReloadRuntimeConfig tells other instances to reload their
	// runtime configuration from the DB
	ReloadRuntimeConfig(ctx context.Context) bool

	// TogglesUpdated tells other instances to drop their cached
	// disabled commands for guildID
	TogglesUpdated(ctx context.Context, guildID string) bool

	// Stop sends a shutdown signal to every instance, including this one
	Stop(ctx context.Context) bool

	// ID identifies this notifier, so it can ignore its own notifications
	ID() string

	// Listen receives notifications until ctx is done
	Listen(ctx context.Context) error
}

func newDBNotifier(s *Slavie) (DBNotifier, error) {
	notifyID, err := generateRandomHexString(16)
	if err != nil {
		return nil, err
	}
	logger := newComponentLogger(logComponentNotifier, s.config.LogLevel)
	switch s.config.DatabaseType {
	case dbTypeSQLite:
		return &sqliteNotifier{s: s, logger: logger, id: notifyID}, nil
	case dbTypePostgres:
		return &postgresNotifier{s: s, logger: logger, id: notifyID}, nil
	default:
		return nil, errors.New("invalid database type")
	}
}

type sqliteNotifier struct {
	s      *Slavie
	logger *slog.Logger
	id     string
}

func (n *sqliteNotifier) ID() string {
	return n.id
}

func (n *sqliteNotifier) Listen(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// ReloadRuntimeConfig is a no-op, the caller has already applied its
// own change
func (n *sqliteNotifier) ReloadRuntimeConfig(context.Context) bool {
	return true
}

func (n *sqliteNotifier) TogglesUpdated(context.Context, string) bool {
	return true
}

func (n *sqliteNotifier) Stop(ctx context.Context) bool {
	n.logger.InfoContext(ctx, "sending stop signal")
	select {
	case n.s.signalStop <- struct{}{}:
		return true
	case <-ctx.Done():
		n.logger.WarnContext(ctx, "timeout sending stop signal")
		return false
	}
}

type postgresNotifier struct {
	s      *Slavie
	logger *slog.Logger
	id     string
}

func (p *postgresNotifier) ID() string {
	return p.id
}

func (p *postgresNotifier) notify(ctx context.Context, channel, payload string) bool {
	err := p.s.store.DB().DB().WithContext(ctx).Exec(
		"SELECT pg_notify(?, ?)",
		channel,
		payload,
	).Error
	if err != nil {
		p.logger.ErrorContext(ctx, "error sending NOTIFY", "channel", channel, tint.Err(err))
		return false
	}
	p.logger.InfoContext(ctx, "sent notification", "channel", channel, "notify_id", p.id)
	return true
}

func (p *postgresNotifier) ReloadRuntimeConfig(ctx context.Context) bool {
	return p.notify(ctx, postgresNotifyChannelRuntimeConfigUpdated, p.id)
}

func (p *postgresNotifier) TogglesUpdated(ctx context.Context, guildID string) bool {
	return p.notify(
		ctx,
		postgresNotifyChannelTogglesUpdated,
		newTogglesUpdatedPayload(p.id, guildID),
	)
}

// Stop notifies every instance. This instance receives its own stop
// notification like any other.
func (p *postgresNotifier) Stop(ctx context.Context) bool {
	return p.notify(ctx, postgresNotifyChannelStop, p.id)
}

func newTogglesUpdatedPayload(notifierID, guildID string) string {
	return strings.Join([]string{notifierID, guildID}, recordSeparator)
}

func parseTogglesUpdatedPayload(s string) (notifierID, guildID string) {
	notifierID, guildID, _ = strings.Cut(s, recordSeparator)
	return notifierID, guildID
}

// Listen opens a dedicated connection, subscribes to every notifier
// channel and dispatches notifications until ctx is done.
func (p *postgresNotifier) Listen(ctx context.Context) error {
	config, err := pgxpool.ParseConfig(p.s.config.Database)
	if err != nil {
		return fmt.Errorf("error parsing database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("error creating connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("error acquiring connection: %w", err)
	}
	defer conn.Release()

	for _, channel := range []string{
		postgresNotifyChannelRuntimeConfigUpdated,
		postgresNotifyChannelTogglesUpdated,
		postgresNotifyChannelStop,
	} {
		if _, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return fmt.Errorf("error listening on %s: %w", channel, err)
		}
	}
	p.logger.InfoContext(ctx, "listening for notifications")

	for ctx.Err() == nil {
		notification, e := conn.Conn().WaitForNotification(ctx)
		if e != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.ErrorContext(ctx, "error waiting for notification", tint.Err(e))
			select {
			case <-ctx.Done():
			case <-time.After(dbNotifierRetryDelay):
			}
			continue
		}
		p.dispatch(ctx, notification.Channel, notification.Payload)
	}
	return nil
}

func (p *postgresNotifier) dispatch(ctx context.Context, channel, payload string) {
	logger := p.logger.With("channel", channel)

	switch channel {
	case postgresNotifyChannelRuntimeConfigUpdated:
		if payload == p.id {
			return
		}
		logger.InfoContext(ctx, "received runtime config update")
		select {
		case p.s.triggerRuntimeConfigRefreshCh <- true:
		case <-time.After(dbNotifierSendTimeout):
			logger.WarnContext(ctx, "timed out sending config refresh signal")
		}
	case postgresNotifyChannelTogglesUpdated:
		notifierID, guildID := parseTogglesUpdatedPayload(payload)
		if notifierID == p.id {
			return
		}
		logger.InfoContext(ctx, "received command toggle update", "guild_id", guildID)
		p.s.toggles.invalidate(guildID)
	case postgresNotifyChannelStop:
		logger.InfoContext(ctx, "received stop signal via NOTIFY", "from", payload)
		select {
		case p.s.signalStop <- struct{}{}:
		case <-time.After(dbNotifierSendTimeout):
			logger.WarnContext(ctx, "timed out forwarding stop signal")
		}
	default:
		logger.WarnContext(ctx, "received unknown notification")
	}
}
