package slavie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	pprofPrefix             = "/debug"
	apiPrefix               = "/api"
	apiPathQuit             = "/quit"
	apiPathLogin            = "/login"
	apiPathLogout           = "/logout"
	apiPathLoggedIn         = "/logged_in"
	apiHealthCheck          = "/healthz"
	apiDiscordInteractions  = "/discord/interactions"
	apiPathConfig           = "/config"
	apiPathSetup            = "/setup"
	apiPathSetupStatus      = "/setup/status"
	apiPathUsers            = "/users"
	apiPathUser             = "/user/:id"
	apiPathUserStats        = "/user/:id/stats"
	apiPathFamily           = "/family/:id"
	apiPathMarriages        = "/marriages"
	apiPathMarriage         = "/marriage/:id"
	apiPathProposals        = "/proposals"
	apiPathAdoptions        = "/adoptions"
	apiPathPendingAdoptions = "/pending_adoptions"
	apiPathGuildToggles     = "/guild/:id/disabled_commands"
	apiPathRegisterCommands = "/discord/register_commands"

	apiRequestTimeout = 10 * time.Second
)

const (
	xRequestIDHeader = "X-Request-ID"
	sessionVarName   = "user"
	sessionVarField  = "username"
)

var structValidator = validator.New()

// API is the admin HTTP server. Everything under /api requires a
// session cookie, obtained from the login endpoint after the admin
// credentials have been set up.
type API struct {
	config              *APIConfig
	httpServer          *http.Server
	listener            net.Listener
	engine              *gin.Engine
	store               CookieStore
	loginRequestLimiter *rate.Limiter
	requestMetrics      map[string]int
	requestMetricsMu    sync.Mutex
	logger              *slog.Logger

	handlers *APIHandlers
}

func newAPI(s *Slavie, config *APIConfig) (*API, error) {
	r := gin.New()

	api := &API{
		config:              config,
		engine:              r,
		requestMetrics:      map[string]int{},
		loginRequestLimiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:              newComponentLogger(logComponentAPI, config.LogLevel),
	}
	handlers := newAPIHandlers(s, api)
	api.handlers = handlers
	api.store = handlers.store

	httpServer := &http.Server{
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	if config.SSL.enabled() {
		tlsCfg, err := tlsConfig(config.SSL.Cert, config.SSL.Key, config.SSL.TLSMinVersion)
		if err != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", err)
		}
		httpServer.TLSConfig = tlsCfg
	}
	api.httpServer = httpServer

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 && config.Development {
		corsConfig.AllowOrigins = []string{"*"}
		corsConfig.AllowCredentials = false
	}

	if !config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(api.logger),
		metricMiddleware(api),
		sessions.Sessions(sessionVarName, handlers.store),
	)
	if len(corsConfig.AllowOrigins) > 0 {
		r.Use(cors.New(corsConfig))
	}

	r.POST(apiPathLogin, handlers.loginHandler)
	r.POST(apiPathLogout, handlers.logoutHandler)
	r.GET(apiHealthCheck, handlers.healthCheck)
	r.POST(apiPathSetup, handlers.adminSetup)
	r.GET(apiPathSetupStatus, handlers.setupStatus)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	protected := r.Group(apiPrefix)
	protected.Use(authMiddleware(s, api))

	protected.GET(apiPathLoggedIn, handlers.loggedIn)
	protected.GET(apiPathConfig, handlers.getConfig)
	protected.PATCH(apiPathConfig, handlers.updateRuntimeConfig)
	protected.POST(apiPathQuit, handlers.botQuit)
	protected.POST(apiPathRegisterCommands, handlers.registerCommands)

	protected.GET(apiPathUsers, handlers.getUsers)
	protected.PATCH(apiPathUser, handlers.updateUser)
	protected.GET(apiPathUserStats, handlers.getUserStats)

	protected.GET(apiPathFamily, handlers.getFamily)
	protected.GET(apiPathMarriages, handlers.getMarriages)
	protected.DELETE(apiPathMarriage, handlers.forceDivorce)
	protected.GET(apiPathProposals, handlers.getProposals)
	protected.GET(apiPathAdoptions, handlers.getAdoptions)
	protected.GET(apiPathPendingAdoptions, handlers.getPendingAdoptions)

	protected.GET(apiPathGuildToggles, handlers.getDisabledCommands)
	protected.POST(apiPathGuildToggles, handlers.disableCommands)
	protected.DELETE(apiPathGuildToggles, handlers.enableCommands)

	return api, nil
}

// Serve listens on the configured address until the server is shut down
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		a.listener = ln
	}
	a.logger.InfoContext(ctx, "api listening", "addr", a.listener.Addr().String())

	var err error
	if a.httpServer.TLSConfig == nil {
		a.logger.WarnContext(ctx, "starting api without TLS")
		err = a.httpServer.Serve(a.listener)
	} else {
		err = a.httpServer.ServeTLS(a.listener, "", "")
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *API) getSessionUsername(c *gin.Context) (string, error) {
	session, err := a.store.Get(c.Request, sessionVarName)
	if err != nil {
		return "", err
	}
	username, ok := session.Values[sessionVarField].(string)
	if !ok || username == "" {
		return "", errors.New("username not found in session")
	}
	return username, nil
}

type CookieStore interface {
	sessions.Store
}

func NewCookieStore(keyPairs ...[]byte) CookieStore {
	return &cookieStore{gsessions.NewCookieStore(keyPairs...)}
}

type cookieStore struct {
	*gsessions.CookieStore
}

func (c *cookieStore) Options(options sessions.Options) {
	c.CookieStore.Options = options.ToGorillaOptions()
}

// APIHandlers contains the handlers for the admin API endpoints
type APIHandlers struct {
	s      *Slavie
	api    *API
	logger *slog.Logger
	store  CookieStore
}

func newAPIHandlers(s *Slavie, api *API) *APIHandlers {
	var secretKey []byte
	switch sk := s.config.API.Secret; {
	case sk == "":
		api.logger.Warn(
			"api secret not set, generating random secret " +
				"(sessions will not persist across restarts)",
		)
		secretKey = securecookie.GenerateRandomKey(64)
	default:
		secretKey = derive64ByteKey(sk)
	}

	store := NewCookieStore(secretKey)
	store.Options(sessionOptions(s.config.API))
	return &APIHandlers{s: s, api: api, logger: api.logger, store: store}
}

func sessionOptions(config *APIConfig) sessions.Options {
	sameSite := http.SameSiteStrictMode
	if config.Development {
		sameSite = http.SameSiteNoneMode
	}
	return sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		SameSite: sameSite,
	}
}

func (h *APIHandlers) setupStatus(c *gin.Context) {
	c.JSON(http.StatusOK, setupResponse{Required: h.s.pendingSetup.Load()})
}

// adminSetup sets the admin credentials. It's only allowed once, while
// no credentials exist.
//
// Responses:
//   - 201 Created: If the admin credentials were set.
//   - 400 Bad Request: If the request payload is invalid.
//   - 403 Forbidden: If the credentials have already been set.
//   - 500 Internal Server Error: If the credentials couldn't be saved.
func (h *APIHandlers) adminSetup(c *gin.Context) {
	h.s.cfgMu.Lock()
	defer h.s.cfgMu.Unlock()

	if !h.s.pendingSetup.Load() {
		c.JSON(http.StatusForbidden, httpError{Error: "Forbidden"})
		return
	}

	logger := ginContextLogger(c)
	logger.InfoContext(c, "first time admin setup")

	var payload adminSetupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.WarnContext(c, "bad payload", tint.Err(err))
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}

	password, err := HashPassword(payload.Password)
	if err != nil {
		logger.ErrorContext(c, "error hashing password", tint.Err(err))
		ginReplyError(c, "error setting admin credentials")
		return
	}

	updated := *h.s.runtimeConfig
	if _, err = h.s.store.DB().Updates(
		c,
		&updated,
		map[string]any{
			columnRuntimeConfigAdminUsername: payload.Username,
			columnRuntimeConfigAdminPassword: password,
		},
	); err != nil {
		logger.ErrorContext(c, "error updating admin credentials", tint.Err(err))
		ginReplyError(c, "error updating admin credentials")
		return
	}
	updated.AdminUsername = payload.Username
	updated.AdminPassword = password
	h.s.setRuntimeConfig(&updated)
	h.s.pendingSetup.Store(false)
	c.JSON(http.StatusCreated, httpReply{Message: "admin credentials set"})
}

// loginHandler checks the given credentials against the stored admin
// credentials, and starts a session if they match.
//
// Responses:
//   - 200 OK: If the user was logged in.
//   - 400 Bad Request: If the request payload is invalid.
//   - 401 Unauthorized: If the credentials are incorrect or not set.
//   - 429 Too Many Requests: If login attempts are rate limited.
//   - 500 Internal Server Error: If the session couldn't be saved.
func (h *APIHandlers) loginHandler(c *gin.Context) {
	logger := ginContextLogger(c)
	if !h.api.loginRequestLimiter.Allow() {
		logger.WarnContext(c, "login rate limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, httpError{Error: "too many requests"})
		return
	}

	var login userLogin
	if err := c.ShouldBindJSON(&login); err != nil {
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}

	config := h.s.RuntimeConfig()
	if config.AdminUsername == "" || config.AdminPassword == "" {
		logger.WarnContext(c, "admin username and password not set")
		c.JSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
		return
	}
	if login.Username != config.AdminUsername {
		logger.WarnContext(c, "admin username incorrect")
		c.JSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
		return
	}
	valid, err := VerifyPassword(config.AdminPassword, login.Password)
	if err != nil {
		logger.ErrorContext(c, "error verifying password", tint.Err(err))
		ginReplyError(c, "internal server error")
		return
	}
	if !valid {
		logger.WarnContext(c, "invalid login attempt", "username", login.Username)
		c.JSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionVarField, login.Username)
	if err = session.Save(); err != nil {
		logger.ErrorContext(c, "error saving session", tint.Err(err))
		ginReplyError(c, "internal server error")
		return
	}
	logger.InfoContext(c, "saved user session", "username", login.Username)
	c.JSON(http.StatusOK, loggedInResponse{Username: login.Username})
}

func (h *APIHandlers) logoutHandler(c *gin.Context) {
	logger := ginContextLogger(c)
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		logger.ErrorContext(c, "error saving cookie", tint.Err(err))
	}
	ginReplyMessage(c, "logged out")
}

func (h *APIHandlers) loggedIn(c *gin.Context) {
	username, err := h.api.getSessionUsername(c)
	if err != nil {
		ginContextLogger(c).WarnContext(c, "error getting session username", tint.Err(err))
		c.JSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, loggedInResponse{Username: username})
}

func (h *APIHandlers) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK,
		healthCheckResponse{
			Paused:                  h.s.RuntimeConfig().Paused,
			InteractionsInProgress:  h.s.interactionsInProgress.Load(),
			DiscordGatewayConnected: h.s.discord.connected.Load(),
		},
	)
}

func (h *APIHandlers) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.s.RuntimeConfig())
}

// updateRuntimeConfig applies a partial [RuntimeConfigUpdate]. The
// updated config is validated before the transaction commits, so an
// invalid combination is rolled back rather than stored.
//
// Responses:
//   - 202 Accepted: Returns the updated runtime configuration.
//   - 400 Bad Request: If the payload or the resulting config is invalid.
//   - 500 Internal Server Error: If the config couldn't be saved.
func (h *APIHandlers) updateRuntimeConfig(c *gin.Context) {
	s := h.s
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	logger := ginContextLogger(c)

	var update RuntimeConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		logger.WarnContext(c, "bad payload", tint.Err(err))
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if err := update.validate(); err != nil {
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}

	updates, err := structToUpdateMap(update)
	if err != nil {
		logger.ErrorContext(c, "error building update", tint.Err(err))
		ginReplyError(c, "error building update")
		return
	}
	if len(updates) == 0 {
		c.JSON(http.StatusAccepted, s.runtimeConfig)
		return
	}
	logger.InfoContext(c, "applying updates", "updates", updates)

	previous := *s.runtimeConfig
	updated := *s.runtimeConfig
	statusCode := http.StatusInternalServerError

	err = s.store.DB().Transaction(
		c,
		func(tx *gorm.DB) error {
			if e := tx.Model(&updated).Updates(updates).Error; e != nil {
				return e
			}
			if e := tx.First(&updated, updated.ID).Error; e != nil {
				return e
			}
			if e := structValidator.Struct(updated); e != nil {
				statusCode = http.StatusBadRequest
				return e
			}
			return nil
		},
	)
	if err != nil {
		logger.ErrorContext(c, "error updating config", tint.Err(err))
		c.JSON(statusCode, httpError{Error: "error updating config"})
		return
	}

	s.setRuntimeConfig(&updated)
	s.applyRuntimeConfigChange(c, logger, previous, updated)
	c.JSON(http.StatusAccepted, updated)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c), apiRequestTimeout)
	defer cancel()
	if !s.notifier.ReloadRuntimeConfig(ctx) {
		logger.ErrorContext(ctx, "error sending config update notification")
	}
}

// structToUpdateMap converts a struct of optional fields into a map
// of its non-nil fields, keyed by their JSON names
func structToUpdateMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var updates map[string]any
	if err = json.Unmarshal(data, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// botQuit sends a stop signal to every running instance
func (h *APIHandlers) botQuit(c *gin.Context) {
	logger := ginContextLogger(c)
	logger.WarnContext(c, "sending stop signal")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c), 30*time.Second)
	defer cancel()

	if !h.s.notifier.Stop(ctx) {
		c.JSON(http.StatusGatewayTimeout, httpError{Error: "timeout sending stop signal"})
		return
	}
	ginReplyMessage(c, "quitting")
}

func (h *APIHandlers) registerCommands(c *gin.Context) {
	created, err := h.s.discord.registerCommands(h.s.applicationCommands())
	if err != nil {
		ginContextLogger(c).ErrorContext(c, "error registering commands", tint.Err(err))
		ginReplyError(c, "error registering commands")
		return
	}
	c.JSON(http.StatusOK, created)
}

// getUsers lists the users the bot has seen. With include_stats, each
// user's family, warning count and interaction count are included.
//
// Responses:
//   - 200 OK: Returns the list of users, optionally including stats.
//   - 400 Bad Request: If the query parameters are invalid.
//   - 500 Internal Server Error: If the users couldn't be read.
func (h *APIHandlers) getUsers(c *gin.Context) {
	var query GetUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	logger := ginContextLogger(c)

	db, err := h.s.store.reader(c)
	if err != nil {
		ginReplyError(c, err.Error())
		return
	}
	var users []User
	if err = query.apply(db).Find(&users).Error; err != nil {
		logger.ErrorContext(c, "error getting users", tint.Err(err))
		ginReplyError(c, "error getting users")
		return
	}

	if !query.IncludeStats {
		c.JSON(http.StatusOK, users)
		return
	}

	withStats := make([]userWithStats, len(users))
	g, gctx := errgroup.WithContext(c)
	g.SetLimit(8)
	for ind, u := range users {
		g.Go(
			func() error {
				stats, e := u.getStats(gctx, h.s.engine, db)
				withStats[ind] = userWithStats{User: u, UserStats: &stats}
				return e
			},
		)
	}
	if err = g.Wait(); err != nil {
		logger.ErrorContext(c, "error getting user stats", tint.Err(err))
		ginReplyError(c, "error getting user stats")
		return
	}
	c.JSON(http.StatusOK, withStats)
}

func (h *APIHandlers) getUserStats(c *gin.Context) {
	logger := ginContextLogger(c)
	db, err := h.s.store.reader(c)
	if err != nil {
		ginReplyError(c, err.Error())
		return
	}
	u, err := first[User](db, columnUserID+" = ?", c.Param("id"))
	switch {
	case err != nil:
		logger.ErrorContext(c, "error getting user", tint.Err(err))
		ginReplyError(c, "error getting user")
		return
	case u == nil:
		c.JSON(http.StatusNotFound, httpError{Error: "user not found"})
		return
	}
	stats, err := u.getStats(c, h.s.engine, db)
	if err != nil {
		logger.ErrorContext(c, "error getting user stats", tint.Err(err))
		ginReplyError(c, "error getting user stats")
		return
	}
	c.JSON(http.StatusOK, userWithStats{User: *u, UserStats: &stats})
}

// updateUser sets fields an admin controls on a user record. Setting
// ignored makes the bot drop the user's interactions.
func (h *APIHandlers) updateUser(c *gin.Context) {
	logger := ginContextLogger(c)

	var update apiPatchUser
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	userID := c.Param("id")
	db, err := h.s.store.reader(c)
	if err != nil {
		ginReplyError(c, err.Error())
		return
	}
	u, err := first[User](db, columnUserID+" = ?", userID)
	switch {
	case err != nil:
		logger.ErrorContext(c, "error getting user", tint.Err(err))
		ginReplyError(c, "error getting user")
		return
	case u == nil:
		c.JSON(http.StatusNotFound, httpError{Error: "user not found"})
		return
	}

	if update.Ignored != nil {
		if _, err = h.s.store.DB().UpdatesWhere(
			c,
			&User{},
			map[string]any{columnUserIgnored: *update.Ignored},
			columnUserID+" = ?",
			userID,
		); err != nil {
			logger.ErrorContext(c, "error updating user", columnUserID, userID, tint.Err(err))
			ginReplyError(c, "error updating user")
			return
		}
		u.Ignored = *update.Ignored
		logger.InfoContext(c, "updated user", columnUserID, userID, "ignored", *update.Ignored)
	}
	c.JSON(http.StatusAccepted, u)
}

func (h *APIHandlers) getFamily(c *gin.Context) {
	family, err := h.s.engine.Family(c, c.Param("id"))
	if err != nil {
		ginContextLogger(c).ErrorContext(c, "error getting family", tint.Err(err))
		ginReplyError(c, "error getting family")
		return
	}
	c.JSON(http.StatusOK, family)
}

// listHandler returns a handler binding [Pagination] from the query
// string and responding with whatever list returns
func listHandler[T any](
	name string,
	list func(ctx context.Context, page Pagination) ([]T, error),
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var page Pagination
		if err := c.ShouldBindQuery(&page); err != nil {
			c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
			return
		}
		items, err := list(c, page)
		if err != nil {
			ginContextLogger(c).ErrorContext(c, "error listing "+name, tint.Err(err))
			ginReplyError(c, "error listing "+name)
			return
		}
		if items == nil {
			items = []T{}
		}
		c.JSON(http.StatusOK, items)
	}
}

func (h *APIHandlers) getMarriages(c *gin.Context) {
	listHandler("marriages", h.s.store.Marriages)(c)
}

func (h *APIHandlers) getProposals(c *gin.Context) {
	listHandler("proposals", h.s.store.Proposals)(c)
}

func (h *APIHandlers) getAdoptions(c *gin.Context) {
	listHandler("adoptions", h.s.store.Adoptions)(c)
}

func (h *APIHandlers) getPendingAdoptions(c *gin.Context) {
	listHandler("pending adoptions", h.s.store.PendingAdoptions)(c)
}

// forceDivorce ends the marriage of the given user, as if they had
// used /divorce
//
// Responses:
//   - 200 OK: Returns the deleted marriage record.
//   - 404 Not Found: If the user isn't married.
//   - 500 Internal Server Error: If the marriage couldn't be deleted.
func (h *APIHandlers) forceDivorce(c *gin.Context) {
	logger := ginContextLogger(c)
	userID := c.Param("id")
	m, err := h.s.engine.Divorce(c, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, httpError{Error: "not married"})
		return
	case err != nil:
		logger.ErrorContext(c, "error deleting marriage", tint.Err(err))
		ginReplyError(c, "error deleting marriage")
		return
	}
	logger.WarnContext(c, "forced divorce", "marriage", m)
	c.JSON(http.StatusOK, m)
}

func (h *APIHandlers) getDisabledCommands(c *gin.Context) {
	disabled, err := h.s.toggles.Disabled(c, c.Param("id"))
	if err != nil {
		ginContextLogger(c).ErrorContext(c, "error getting disabled commands", tint.Err(err))
		ginReplyError(c, "error getting disabled commands")
		return
	}
	c.JSON(http.StatusOK, guildCommandsPayload{Commands: disabled})
}

func (h *APIHandlers) disableCommands(c *gin.Context) {
	h.toggleCommands(c, true)
}

func (h *APIHandlers) enableCommands(c *gin.Context) {
	h.toggleCommands(c, false)
}

// toggleCommands disables or enables the commands (or categories) in
// the payload for the guild. Unknown names are rejected before anything
// is written.
func (h *APIHandlers) toggleCommands(c *gin.Context, disable bool) {
	logger := ginContextLogger(c)
	guildID := c.Param("id")

	var payload guildCommandsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}

	var commands []string
	for _, name := range payload.Commands {
		resolved, _, ok := h.s.toggleTarget(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			c.JSON(
				http.StatusBadRequest,
				httpError{Error: fmt.Sprintf("unknown command or category: %q", name)},
			)
			return
		}
		commands = append(commands, resolved...)
	}

	var err error
	if disable {
		_, err = h.s.toggles.Disable(c, guildID, commands...)
	} else {
		_, err = h.s.toggles.Enable(c, guildID, commands...)
	}
	if err != nil {
		logger.ErrorContext(c, "error updating disabled commands", tint.Err(err))
		ginReplyError(c, "error updating disabled commands")
		return
	}

	disabled, err := h.s.toggles.Disabled(c, guildID)
	if err != nil {
		logger.ErrorContext(c, "error getting disabled commands", tint.Err(err))
		ginReplyError(c, "error getting disabled commands")
		return
	}
	c.JSON(http.StatusOK, guildCommandsPayload{Commands: disabled})
}

// GetUsersQuery represents the query parameters for listing users.
type GetUsersQuery struct {
	Pagination
	IncludeStats bool `form:"include_stats" json:"include_stats"`
}

type apiPatchUser struct {
	Ignored *bool `json:"ignored,omitempty" binding:"omitnil"`
}

type guildCommandsPayload struct {
	Commands []string `json:"commands" binding:"required,min=1,dive,min=1,max=100"`
}

// userWithStats is a User along with their relationship and moderation
// stats
type userWithStats struct {
	User
	UserStats *UserStats `json:"stats,omitempty"`
}

type loggedInResponse struct {
	Username string `json:"username"`
}

type healthCheckResponse struct {
	Paused                  bool  `json:"paused"`
	InteractionsInProgress  int64 `json:"interactions_in_progress"`
	DiscordGatewayConnected bool  `json:"discord_gateway_connected"`
}

// httpReply represents a standard HTTP response message.
type httpReply struct {
	Message string `json:"message"`
}

// httpError represents an error message returned to the client
type httpError struct {
	Error string `json:"error"`
}

type userLogin struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// adminSetupPayload is the payload for the initial admin setup.
type adminSetupPayload struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required,min=8,eqfield=ConfirmPassword"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// setupResponse reports whether the admin credentials still need to be
// set.
type setupResponse struct {
	Required bool `json:"required"`
}

// authMiddleware rejects requests without a logged-in session. Until
// admin credentials are set, every request is rejected.
func authMiddleware(s *Slavie, api *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := ginContextLogger(c)
		if s.pendingSetup.Load() {
			logger.WarnContext(c, "admin username and password not set")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}

		username, err := api.getSessionUsername(c)
		if err != nil {
			logger.WarnContext(c, "no session", tint.Err(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}
		logger.DebugContext(c, "got session", sessionVarField, username)
		c.Next()
	}
}

// requestIDMiddleware assigns a request ID to each request, and returns
// it in the response headers.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(string(loggerContextKey)); ok {
		if requestLogger, isLogger := v.(*slog.Logger); isLogger {
			return requestLogger
		}
	}
	return setGinContextLogger(c, slog.Default())
}

func setGinContextLogger(c *gin.Context, base *slog.Logger) *slog.Logger {
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path = path + "?" + raw
	}

	requestLogger := base.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request when it finishes, with its
// duration and response status.
func ginLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestLogger := setGinContextLogger(c, logger)
		c.Next()

		attrs := []any{
			"duration", time.Since(start),
			slog.Group(
				"response",
				"status_code", c.Writer.Status(),
				"body_size", c.Writer.Size(),
			),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			requestLogger.ErrorContext(
				c,
				fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL.Path),
				append(attrs, "errors", errs.Errors())...,
			)
			return
		}
		requestLogger.InfoContext(
			c,
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL.Path),
			attrs...,
		)
	}
}

// metricMiddleware counts requests per method and route
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Request.Method + " " + c.FullPath()
		a.requestMetricsMu.Lock()
		a.requestMetrics[key]++
		a.requestMetricsMu.Unlock()
		c.Next()
	}
}

// ginReplyMessage sends a JSON response with a message, with HTTP
// status code 200.
func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

// ginReplyError aborts with HTTP status code 500 and the given message
func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}

//nolint:gochecknoinits // validator tags match gin's
func init() {
	structValidator.SetTagName("binding")
}
