package slavie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	gsessions "github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	testAdminUsername = "admin"
	testAdminPassword = "correct horse battery staple"
)

func apiRequest(
	t testing.TB,
	a *API,
	method string,
	path string,
	body any,
	cookies ...*http.Cookie,
) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t testing.TB, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// setupAndLogin sets the admin credentials and returns the session
// cookies of a logged-in admin
func setupAndLogin(t testing.TB, s *Slavie) []*http.Cookie {
	t.Helper()
	w := apiRequest(
		t,
		s.api,
		http.MethodPost,
		apiPathSetup,
		adminSetupPayload{
			Username:        testAdminUsername,
			Password:        testAdminPassword,
			ConfirmPassword: testAdminPassword,
		},
	)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = apiRequest(
		t,
		s.api,
		http.MethodPost,
		apiPathLogin,
		userLogin{Username: testAdminUsername, Password: testAdminPassword},
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func TestAdminSetup(t *testing.T) {
	s, _ := newTestSlavie(t)

	w := apiRequest(t, s.api, http.MethodGet, apiPathSetupStatus, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeJSON[setupResponse](t, w).Required)

	w = apiRequest(t, s.api, http.MethodGet, apiPrefix+apiPathConfig, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = apiRequest(
		t,
		s.api,
		http.MethodPost,
		apiPathSetup,
		adminSetupPayload{
			Username:        testAdminUsername,
			Password:        testAdminPassword,
			ConfirmPassword: "something else",
		},
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, s.pendingSetup.Load())

	setupAndLogin(t, s)
	assert.False(t, s.pendingSetup.Load())

	w = apiRequest(t, s.api, http.MethodGet, apiPathSetupStatus, nil)
	assert.False(t, decodeJSON[setupResponse](t, w).Required)

	w = apiRequest(
		t,
		s.api,
		http.MethodPost,
		apiPathSetup,
		adminSetupPayload{
			Username:        "intruder",
			Password:        testAdminPassword,
			ConfirmPassword: testAdminPassword,
		},
	)
	assert.Equal(t, http.StatusForbidden, w.Code)

	cfg, _, err := loadRuntimeConfig(context.Background(), s.store.DB())
	require.NoError(t, err)
	assert.Equal(t, testAdminUsername, cfg.AdminUsername)
	assert.NotEqual(t, testAdminPassword, cfg.AdminPassword)
}

func TestLogin(t *testing.T) {
	s, _ := newTestSlavie(t)
	cookies := setupAndLogin(t, s)

	w := apiRequest(t, s.api, http.MethodGet, apiPrefix+apiPathLoggedIn, nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testAdminUsername, decodeJSON[loggedInResponse](t, w).Username)

	// the limiter allows one attempt per second
	w = apiRequest(
		t,
		s.api,
		http.MethodPost,
		apiPathLogin,
		userLogin{Username: testAdminUsername, Password: "wrong"},
	)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	s, _ := newTestSlavie(t)
	w := apiRequest(
		t,
		s.api,
		http.MethodPost,
		apiPathSetup,
		adminSetupPayload{
			Username:        testAdminUsername,
			Password:        testAdminPassword,
			ConfirmPassword: testAdminPassword,
		},
	)
	require.Equal(t, http.StatusCreated, w.Code)

	w = apiRequest(
		t,
		s.api,
		http.MethodPost,
		apiPathLogin,
		userLogin{Username: testAdminUsername, Password: "wrong password"},
	)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestSlavie(t)
	w := apiRequest(t, s.api, http.MethodGet, apiHealthCheck, nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decodeJSON[healthCheckResponse](t, w)
	assert.False(t, health.Paused)
	assert.False(t, health.DiscordGatewayConnected)
	assert.NotEmpty(t, w.Header().Get(xRequestIDHeader))
}

func TestUpdateRuntimeConfig(t *testing.T) {
	s, _ := newTestSlavie(t)
	cookies := setupAndLogin(t, s)

	paused := true
	status := "getting married"
	w := apiRequest(
		t,
		s.api,
		http.MethodPatch,
		apiPrefix+apiPathConfig,
		RuntimeConfigUpdate{Paused: &paused, DiscordCustomStatus: &status},
		cookies...,
	)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	updated := decodeJSON[RuntimeConfig](t, w)
	assert.True(t, updated.Paused)
	assert.Equal(t, status, updated.DiscordCustomStatus)

	current := s.RuntimeConfig()
	assert.True(t, current.Paused)
	assert.Equal(t, status, current.DiscordCustomStatus)
	assert.Equal(t, testAdminUsername, current.AdminUsername)

	w = apiRequest(t, s.api, http.MethodGet, apiPrefix+apiPathConfig, nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeJSON[RuntimeConfig](t, w).Paused)

	empty := ""
	w = apiRequest(
		t,
		s.api,
		http.MethodPatch,
		apiPrefix+apiPathConfig,
		RuntimeConfigUpdate{DiscordErrorMessage: &empty},
		cookies...,
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, s.RuntimeConfig().DiscordErrorMessage)
}

func TestFamilyEndpoints(t *testing.T) {
	s, _ := newTestSlavie(t)
	cookies := setupAndLogin(t, s)

	marry(t, s.engine, "alice", "bob")
	adopt(t, s.engine, "alice", "carol")

	w := apiRequest(t, s.api, http.MethodGet, apiPrefix+"/family/carol", nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	family := decodeJSON[Family](t, w)
	assert.ElementsMatch(t, []string{"alice", "bob"}, family.Parents)
	assert.Empty(t, family.SpouseID)

	w = apiRequest(t, s.api, http.MethodGet, apiPrefix+apiPathMarriages, nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeJSON[[]Marriage](t, w), 2)

	w = apiRequest(t, s.api, http.MethodGet, apiPrefix+apiPathAdoptions, nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeJSON[[]Adoption](t, w), 1)

	w = apiRequest(t, s.api, http.MethodGet, apiPrefix+apiPathProposals, nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeJSON[[]Proposal](t, w))

	w = apiRequest(t, s.api, http.MethodDelete, apiPrefix+"/marriage/alice", nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = apiRequest(t, s.api, http.MethodDelete, apiPrefix+"/marriage/alice", nil, cookies...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	m, err := s.store.FindMarriage(context.Background(), "bob")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestGuildToggleEndpoints(t *testing.T) {
	s, _ := newTestSlavie(t)
	cookies := setupAndLogin(t, s)
	path := apiPrefix + "/guild/" + testGuildID + "/disabled_commands"

	w := apiRequest(
		t,
		s.api,
		http.MethodPost,
		path,
		guildCommandsPayload{Commands: []string{"hug", "kiss"}},
		cookies...,
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"hug", "kiss"}, decodeJSON[guildCommandsPayload](t, w).Commands)

	w = apiRequest(
		t,
		s.api,
		http.MethodPost,
		path,
		guildCommandsPayload{Commands: []string{"not_a_command"}},
		cookies...,
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = apiRequest(
		t,
		s.api,
		http.MethodDelete,
		path,
		guildCommandsPayload{Commands: []string{"hug"}},
		cookies...,
	)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"kiss"}, decodeJSON[guildCommandsPayload](t, w).Commands)

	w = apiRequest(t, s.api, http.MethodGet, path, nil, cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"kiss"}, decodeJSON[guildCommandsPayload](t, w).Commands)
}

func TestIgnoreUser(t *testing.T) {
	s, _ := newTestSlavie(t)
	cookies := setupAndLogin(t, s)
	interact(t, s, slashInteraction(testMember("alice", 0), commandPing))
	interact(t, s, slashInteraction(testMember("bob", 0), commandPing))

	ignored := true
	w := apiRequest(
		t,
		s.api,
		http.MethodPatch,
		apiPrefix+"/user/alice",
		apiPatchUser{Ignored: &ignored},
		cookies...,
	)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.True(t, decodeJSON[User](t, w).Ignored)

	handler := &testInteractionHandler{
		interaction: slashInteraction(testMember("alice", 0), commandPing),
	}
	s.handleInteraction(context.Background(), handler)
	assert.Empty(t, handler.responses)

	// only alice's row is updated
	interact(t, s, slashInteraction(testMember("bob", 0), commandPing))

	w = apiRequest(t, s.api, http.MethodPatch, apiPrefix+"/user/nobody", apiPatchUser{Ignored: &ignored}, cookies...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type mockCookieStore struct {
	mock.Mock
}

func (m *mockCookieStore) Options(sessions.Options) {}

func (m *mockCookieStore) Get(r *http.Request, name string) (*gsessions.Session, error) {
	args := m.Called(r, name)
	if sess := args.Get(0); sess != nil {
		return sess.(*gsessions.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCookieStore) New(r *http.Request, name string) (*gsessions.Session, error) {
	args := m.Called(r, name)
	return args.Get(0).(*gsessions.Session), args.Error(1)
}

func (m *mockCookieStore) Save(
	r *http.Request,
	w http.ResponseWriter,
	s *gsessions.Session,
) error {
	return m.Called(r, w, s).Error(0)
}

func TestGetSessionUsername(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		setup       func(*mockCookieStore)
		expected    string
		expectedErr string
	}{
		{
			name: "username set",
			setup: func(m *mockCookieStore) {
				session := gsessions.NewSession(m, sessionVarName)
				session.Values[sessionVarField] = "admin"
				m.On("Get", mock.Anything, sessionVarName).Return(session, nil)
			},
			expected: "admin",
		},
		{
			name: "no username",
			setup: func(m *mockCookieStore) {
				session := gsessions.NewSession(m, sessionVarName)
				m.On("Get", mock.Anything, sessionVarName).Return(session, nil)
			},
			expectedErr: "username not found in session",
		},
		{
			name: "username not a string",
			setup: func(m *mockCookieStore) {
				session := gsessions.NewSession(m, sessionVarName)
				session.Values[sessionVarField] = 123
				m.On("Get", mock.Anything, sessionVarName).Return(session, nil)
			},
			expectedErr: "username not found in session",
		},
		{
			name: "store error",
			setup: func(m *mockCookieStore) {
				m.On("Get", mock.Anything, sessionVarName).Return(nil, errors.New("bad cookie"))
			},
			expectedErr: "bad cookie",
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				store := &mockCookieStore{}
				tt.setup(store)
				a := &API{store: store}

				c, _ := gin.CreateTestContext(httptest.NewRecorder())
				c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

				username, err := a.getSessionUsername(c)
				assert.Equal(t, tt.expected, username)
				if tt.expectedErr != "" {
					assert.EqualError(t, err, tt.expectedErr)
				} else {
					assert.NoError(t, err)
				}
				store.AssertExpectations(t)
			},
		)
	}
}
