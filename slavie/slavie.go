package slavie

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Set at build time:
// -ldflags "-X github.com/FrostKing4567/Slavie/slavie.Version=$$(git describe --tags)"
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

const (
	runtimeConfigRefreshTimeout = 30 * time.Second
	shutdownAnnounceInterval    = 10 * time.Second
)

// Slavie is the relationship bot: it receives Discord interactions over
// the gateway and/or the webhook server, applies them through the
// [Engine], and serves the admin API.
type Slavie struct {
	config *Config
	logger *slog.Logger

	store   *Store
	engine  *Engine
	discord *Discord
	tenor   *Tenor
	toggles *commandToggles

	api                       *API
	webhookServer             *DiscordWebhookServer
	webhookInteractionHandler func(c *gin.Context)

	notifier DBNotifier

	commands   map[string]*slashCommand
	components map[string]componentHandler

	// runtimeConfig is replaced, never modified in place. Readers take a
	// copy via RuntimeConfig.
	runtimeConfig *RuntimeConfig
	cfgMu         sync.RWMutex

	// pendingSetup is true until admin credentials are set
	pendingSetup atomic.Bool

	interactionsInProgress atomic.Int64
	interactionWG          sync.WaitGroup

	runMu                         sync.Mutex
	signalStop                    chan struct{}
	signalReady                   chan struct{}
	triggerRuntimeConfigRefreshCh chan bool
}

// New creates a Slavie instance from config. Nothing is connected
// until [Slavie.Run] is called.
func New(config *Config) (*Slavie, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	s := &Slavie{
		config:                        config,
		signalStop:                    make(chan struct{}, 1),
		signalReady:                   make(chan struct{}, 1),
		triggerRuntimeConfigRefreshCh: make(chan bool, 1),
	}
	s.logger = slog.New(newLogHandler(config.LogLevel))
	slog.SetDefault(s.logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newLogHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
			[]slog.Attr{slog.String(loggerNameKey, logComponentDiscordgo)},
		),
	)

	config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(
		config.Discord,
		newComponentLogger(logComponentDiscord, config.Discord.LogLevel),
	)
	if err != nil {
		return s, errors.Join(append(errs, err)...)
	}
	disc.s = s
	s.discord = disc

	session, err := disc.newSession()
	errs = append(errs, err)
	disc.session = session

	s.tenor = newTenor(config.Tenor, config.HTTPClient)
	s.store = NewStore(config, s.logger)
	s.engine = NewEngine(s.store, s.logger)

	toggleTTL := config.CommandToggleTTL
	if toggleTTL == 0 {
		toggleTTL = DefaultCommandToggleTTL
	}
	s.toggles = newCommandToggles(s.store, toggleTTL, s.logger.With(loggerNameKey, "toggles"))
	s.toggles.onChange = func(ctx context.Context, guildID string) {
		if s.notifier != nil && !s.notifier.TogglesUpdated(ctx, guildID) {
			s.logger.WarnContext(ctx, "error announcing toggle change", "guild_id", guildID)
		}
	}

	s.commands = s.slashCommands()
	s.components = s.componentHandlers()

	api, err := newAPI(s, config.API)
	errs = append(errs, err)
	s.api = api

	if config.Discord.WebhookServer.Enabled {
		webhookServer, e := newWebhookServer(s, config.Discord.WebhookServer)
		errs = append(errs, e)
		s.webhookServer = webhookServer
	}

	return s, errors.Join(errs...)
}

func (s *Slavie) ValidateConfig() error {
	return structValidator.Struct(s.config)
}

// RuntimeConfig returns a copy of the current runtime configuration
func (s *Slavie) RuntimeConfig() RuntimeConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if s.runtimeConfig == nil {
		return DefaultRuntimeConfig()
	}
	return *s.runtimeConfig
}

// setRuntimeConfig replaces the runtime config and applies its log
// levels. The caller must hold cfgMu.
func (s *Slavie) setRuntimeConfig(cfg *RuntimeConfig) {
	s.runtimeConfig = cfg
	setRuntimeLevels(s.config, *cfg)
}

// Run connects to the database and Discord, and serves interactions and
// the admin API until ctx is canceled or a stop signal is received.
func (s *Slavie) Run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	logger := s.logger
	if err := s.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	notifier, err := newDBNotifier(s)
	if err != nil {
		return fmt.Errorf("error creating db notifier: %w", err)
	}
	s.notifier = notifier

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", s.config))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, s.config.StartupTimeout)
	defer startCancel()
	if err = s.initRun(startCtx); err != nil {
		logger.ErrorContext(ctx, "init error", tint.Err(err))
		_ = s.store.Close()
		return err
	}

	s.webhookInteractionHandler = webhookReceiveHandler(ctx, s)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.api.Serve(gctx) })
	if s.webhookServer != nil {
		g.Go(func() error { return s.webhookServer.Serve(gctx) })
	} else if !s.RuntimeConfig().DiscordGatewayEnabled {
		logger.WarnContext(ctx, "discord gateway and webhook server disabled")
	}
	g.Go(
		func() error {
			if e := s.notifier.Listen(gctx); e != nil {
				logger.ErrorContext(gctx, "notifier stopped", tint.Err(e))
			}
			return nil
		},
	)
	g.Go(
		func() error {
			s.watchRuntimeConfig(gctx)
			return nil
		},
	)

	s.initDiscordSession(gctx)
	if err = s.discordInit(gctx); err != nil {
		cancel()
		return errors.Join(err, s.shutdown(ctx, g))
	}

	select {
	case s.signalReady <- struct{}{}:
	default:
	}
	logger.InfoContext(ctx, "ready")

	<-gctx.Done()
	return s.shutdown(ctx, g)
}

// initRun connects the store and loads the runtime config, creating it
// on first run.
func (s *Slavie) initRun(ctx context.Context) error {
	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}

	cfg, created, err := loadRuntimeConfig(ctx, s.store.DB())
	if err != nil {
		return err
	}
	if created {
		s.logger.InfoContext(ctx, "created default runtime config")
	}
	if err = structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid runtime config: %w", err)
	}

	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		s.pendingSetup.Store(true)
		s.logger.WarnContext(
			ctx,
			fmt.Sprintf("pending admin setup at: %s%s", s.config.API.Listen, apiPathSetup),
		)
	}

	s.cfgMu.Lock()
	s.setRuntimeConfig(cfg)
	s.cfgMu.Unlock()
	return nil
}

// initDiscordSession sets the gateway identify payload and registers the
// gateway event handlers. Each interaction is handled in its own
// goroutine.
func (s *Slavie) initDiscordSession(ctx context.Context) {
	d := s.discord
	for _, remove := range d.discordgoRemoveHandlerFuncs {
		remove()
	}

	d.session.SetIdentify(
		discordgo.Identify{
			Intents:  s.config.Discord.GatewayIntents,
			Presence: getDiscordPresenceStatusUpdate(s.RuntimeConfig()),
		},
	)

	d.discordgoRemoveHandlerFuncs = []func(){
		d.session.AddHandler(d.handlerConnect()),
		d.session.AddHandler(d.handlerDisconnect()),
		d.session.AddHandler(d.handlerReady()),
		d.session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				handler := GatewayHandler{
					session:     d.session,
					interaction: i,
					logger:      d.logger.With(slog.Group("interaction", interactionLogAttrs(*i)...)),
				}
				s.interactionWG.Add(1)
				go func() {
					defer s.interactionWG.Done()
					s.handleInteraction(ctx, handler)
				}()
			},
		),
	}
}

// discordInit registers the slash commands and, if the gateway is
// enabled, opens the websocket connection
func (s *Slavie) discordInit(ctx context.Context) error {
	logger := s.discord.logger
	if _, err := s.discord.registerCommands(s.applicationCommands()); err != nil {
		logger.ErrorContext(ctx, "error registering commands", tint.Err(err))
	}

	if !s.RuntimeConfig().DiscordGatewayEnabled {
		return nil
	}
	logger.InfoContext(ctx, "connecting to discord")
	if err := s.discord.session.Open(); err != nil {
		return fmt.Errorf("error connecting to discord: %w", err)
	}
	return nil
}

// watchRuntimeConfig reloads the runtime config when another instance
// announces a change, and every RuntimeConfigTTL.
func (s *Slavie) watchRuntimeConfig(ctx context.Context) {
	var tick <-chan time.Time
	if ttl := s.config.RuntimeConfigTTL; ttl > 0 {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.refreshRuntimeConfig(ctx)
		case <-s.triggerRuntimeConfigRefreshCh:
			s.refreshRuntimeConfig(ctx)
		}
	}
}

func (s *Slavie) refreshRuntimeConfig(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, runtimeConfigRefreshTimeout)
	defer cancel()

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	db, err := s.store.reader(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "error getting runtime config", tint.Err(err))
		return
	}
	var refreshed RuntimeConfig
	if err = db.Last(&refreshed).Error; err != nil {
		s.logger.ErrorContext(ctx, "error getting runtime config", tint.Err(err))
		return
	}
	if s.runtimeConfig != nil && refreshed.UpdatedAt == s.runtimeConfig.UpdatedAt {
		s.logger.DebugContext(ctx, "runtime config is up to date")
		return
	}

	previous := DefaultRuntimeConfig()
	if s.runtimeConfig != nil {
		previous = *s.runtimeConfig
	}
	s.setRuntimeConfig(&refreshed)
	s.pendingSetup.Store(refreshed.AdminUsername == "" || refreshed.AdminPassword == "")
	s.applyRuntimeConfigChange(ctx, s.logger, previous, refreshed)
	s.logger.InfoContext(ctx, "refreshed runtime config")
}

// applyRuntimeConfigChange updates the gateway connection and presence
// after the runtime config changes. The caller must hold cfgMu.
func (s *Slavie) applyRuntimeConfigChange(
	ctx context.Context,
	logger *slog.Logger,
	previous RuntimeConfig,
	current RuntimeConfig,
) {
	switch {
	case previous.Paused != current.Paused && current.Paused:
		logger.WarnContext(ctx, "paused bot")
	case previous.Paused != current.Paused:
		logger.InfoContext(ctx, "unpaused bot")
	}

	session := s.discord.session
	switch {
	case previous.DiscordGatewayEnabled && !current.DiscordGatewayEnabled:
		if err := session.Close(); err != nil {
			logger.ErrorContext(ctx, "error closing discord connection", tint.Err(err))
		}
	case !previous.DiscordGatewayEnabled && current.DiscordGatewayEnabled:
		session.SetIdentify(
			discordgo.Identify{
				Intents:  s.config.Discord.GatewayIntents,
				Presence: getDiscordPresenceStatusUpdate(current),
			},
		)
		if err := session.Open(); err != nil {
			logger.ErrorContext(ctx, "error opening discord connection", tint.Err(err))
		}
	case current.DiscordGatewayEnabled &&
		(previous.Paused != current.Paused ||
			previous.DiscordCustomStatus != current.DiscordCustomStatus):
		if !s.discord.connected.Load() {
			return
		}
		if err := session.UpdateStatusComplex(
			updateStatusData(getDiscordPresenceStatusUpdate(current)),
		); err != nil {
			logger.ErrorContext(ctx, "error updating discord status", tint.Err(err))
		}
	}
}

// updateStatusData converts the presence sent with the gateway identify
// payload to a presence update
func updateStatusData(p discordgo.GatewayStatusUpdate) discordgo.UpdateStatusData {
	data := discordgo.UpdateStatusData{
		AFK:    p.AFK,
		Status: p.Status,
	}
	if p.Game.Name != "" {
		game := p.Game
		data.Activities = []*discordgo.Activity{&game}
	}
	return data
}

// shutdown stops accepting interactions, waits for in-flight ones to
// finish (up to ShutdownTimeout) and closes the store.
func (s *Slavie) shutdown(ctx context.Context, g *errgroup.Group) error {
	logger := s.logger
	shutdownStart := time.Now()
	deadline := shutdownStart.Add(s.config.ShutdownTimeout)
	logger.WarnContext(
		ctx,
		"shutting down",
		"shutdown_timeout", s.config.ShutdownTimeout,
		"shutdown_deadline", deadline,
	)

	closeCtx, closeCancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer closeCancel()

	if s.discord.connected.Load() {
		if err := s.discord.session.Close(); err != nil {
			logger.ErrorContext(ctx, "error closing discord connection", tint.Err(err))
		}
	}
	if s.webhookServer != nil {
		if err := s.webhookServer.Shutdown(closeCtx); err != nil {
			logger.ErrorContext(ctx, "error shutting down webhook server", tint.Err(err))
		}
	}
	if err := s.api.Shutdown(closeCtx); err != nil {
		logger.ErrorContext(ctx, "error shutting down api", tint.Err(err))
	}

	done := make(chan struct{})
	go func() {
		s.interactionWG.Wait()
		close(done)
	}()

	ticker := time.NewTicker(shutdownAnnounceInterval)
	defer ticker.Stop()

	var errs []error
wait:
	for {
		select {
		case <-done:
			logger.InfoContext(ctx, "interactions finished", "elapsed", time.Since(shutdownStart))
			break wait
		case <-ticker.C:
			logger.InfoContext(
				ctx,
				"waiting on interactions",
				"in_progress", s.interactionsInProgress.Load(),
				"remaining", time.Until(deadline),
			)
		case <-closeCtx.Done():
			logger.ErrorContext(
				ctx,
				"interactions did not finish in time",
				"in_progress", s.interactionsInProgress.Load(),
			)
			errs = append(errs, errors.New("shutdown timed out"))
			break wait
		}
	}

	errs = append(errs, g.Wait())
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing database: %w", err))
	}
	logger.InfoContext(ctx, "stopped", "shutdown_duration", time.Since(shutdownStart))
	return errors.Join(errs...)
}

// handleRecover logs a panic recovered from an interaction handler, with
// its stack trace. Only used when [RuntimeConfig.RecoverPanic] is set.
func (*Slavie) handleRecover(ctx context.Context, rc any) {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())

	var err error
	switch v := rc.(type) {
	case error:
		err = v
	case string:
		err = errors.New(v)
	default:
		logger.ErrorContext(ctx, "recovered from panic", "panic_arg", rc, "stack_trace", stackTrace)
		return
	}
	logger.ErrorContext(ctx, "recovered from panic", tint.Err(err), "stack_trace", stackTrace)
}
