package controller

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/questbot/questbot/app/questbot/types"
	"github.com/questbot/questbot/pkg/command"
	"github.com/questbot/questbot/pkg/layout"
	"github.com/questbot/questbot/pkg/ledger"
)

type fixture struct {
	store  *ledger.MemoryStore
	app    *types.App
	ctler  *Controller
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("ADMIN_TOKEN", "secret-token")
	t.Setenv("ADMIN_USER", "admin")
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	t.Setenv("SESSION_SECRET", "test-secret")
	return buildFixture(t)
}

func buildFixture(t *testing.T) *fixture {
	t.Helper()
	lay := layout.Default()
	store := ledger.NewMemoryStore(lay.Header())
	updater := ledger.NewUpdater(store, lay.Schema(), zap.NewNop())
	d, err := command.NewDispatcher(command.Config{Ledger: updater, Layout: lay, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	app := &types.App{
		Layout:     lay,
		Store:      store,
		Updater:    updater,
		Dispatcher: d,
		Logger:     zap.NewNop(),
	}
	ctler := NewController(app)
	router, err := ctler.NewRouter()
	require.NoError(t, err)
	return &fixture{store: store, app: app, ctler: ctler, router: WithCORS(router)}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestReadyz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "errored", decode(t, rec)["status"])

	f.app.SetTemplateStatus(nil)
	rec = f.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "checkedAt")
	assert.Equal(t, float64(0), body["feedClients"])

	f.app.SetTemplateStatus(errors.New("column not found: Points (Total)"))
	rec = f.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "column not found: Points (Total)", decode(t, rec)["error"])
}

func TestMetricsExposed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCommandRequiresAuth(t *testing.T) {
	f := newFixture(t)
	body := CommandRequest{Command: "quest", Participants: []ledger.Identity{{Nickname: "Ann"}}}

	rec := f.do(t, http.MethodPost, "/commands", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/commands", body, bearer("wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, f.store.Submits())
}

func TestAuthDisabledWithoutCredentials(t *testing.T) {
	for _, key := range []string{"ADMIN_TOKEN", "ADMIN_USER", "ADMIN_PASSWORD", "SESSION_SECRET"} {
		t.Setenv(key, "")
	}
	f := buildFixture(t)
	assert.Empty(t, f.ctler.AdminToken)
	assert.Empty(t, f.ctler.JWTSecret)
	assert.Empty(t, f.ctler.AuthHash)

	body := CommandRequest{Command: "quest", Args: []string{"50"}, Participants: []ledger.Identity{{Nickname: "Mallory"}}}
	cases := []struct {
		name   string
		mutate func(*http.Request)
	}{
		{name: "no credentials"},
		{name: "empty bearer", mutate: bearer("")},
		{name: "old default token", mutate: bearer("devtoken")},
		{name: "forged session", mutate: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "e30.e30."})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/commands", body, tc.mutate)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	for _, pw := range []string{"admin", ""} {
		rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": pw}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
	}

	assert.Equal(t, 0, f.store.Submits())
}

func TestCommandWithToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/commands", CommandRequest{
		Command:      "quest",
		Args:         []string{"2", "@Ann"},
		Participants: []ledger.Identity{{Nickname: "Ann", Username: "ann_01"}},
	}, bearer("secret-token"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Quest", body["column"])
	assert.Equal(t, float64(2), body["delta"])
	assert.Equal(t, "Added 2 Quest points for **Ann**.", body["summary"])
	assert.Equal(t, 1, f.store.Submits())

	rec = f.do(t, http.MethodPost, "/commands", CommandRequest{
		Command:      "points",
		Participants: []ledger.Identity{{Nickname: "Ann"}},
	}, bearer("secret-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	standings := decode(t, rec)["standings"].([]interface{})
	require.Len(t, standings, 1)
	assert.Equal(t, true, standings[0].(map[string]interface{})["found"])
}

func TestCommandStatusCodes(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  CommandRequest
		code int
	}{
		{name: "unknown command", req: CommandRequest{Command: "dance", Participants: []ledger.Identity{{Nickname: "Ann"}}}, code: http.StatusNotFound},
		{name: "no targets", req: CommandRequest{Command: "bonus", Args: []string{"3"}}, code: http.StatusBadRequest},
		{name: "missing command", req: CommandRequest{}, code: http.StatusBadRequest},
		{name: "zero amount", req: CommandRequest{Command: "quest", Args: []string{"0"}, Participants: []ledger.Identity{{Nickname: "Ann"}}}, code: http.StatusBadRequest},
		{name: "amount too large", req: CommandRequest{Command: "quest", Args: []string{"99999999999999999999"}, Participants: []ledger.Identity{{Nickname: "Ann"}}}, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/commands", tt.req, bearer("secret-token"))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
	assert.Equal(t, 0, f.store.Submits())
}

func TestCommandTemplateMisconfigured(t *testing.T) {
	f := newFixture(t)
	// Replace the ledger with one whose header lacks the total column.
	store := ledger.NewMemoryStore([]string{"Discord Nickname", "Discord Username", "Quest"})
	updater := ledger.NewUpdater(store, f.app.Layout.Schema(), zap.NewNop())
	d, err := command.NewDispatcher(command.Config{Ledger: updater, Layout: f.app.Layout})
	require.NoError(t, err)
	t.Cleanup(d.Stop)
	f.app.Dispatcher = d

	rec := f.do(t, http.MethodPost, "/commands", CommandRequest{
		Command:      "quest",
		Participants: []ledger.Identity{{Nickname: "Ann"}},
	}, bearer("secret-token"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["summary"], "misconfigured")
	assert.Equal(t, 0, store.Submits())
}

func TestLoginIssuesSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "hunter2"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	rec = f.do(t, http.MethodPost, "/commands", CommandRequest{
		Command:      "bonus",
		Participants: []ledger.Identity{{Nickname: "Bob"}},
	}, func(r *http.Request) { r.AddCookie(cookies[0]) })
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, "admin", f.ctler.currentUser(req))
}

func TestLoginBadJSON(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionWithOtherSecretRejected(t *testing.T) {
	f := newFixture(t)
	other := &Controller{JWTSecret: []byte("other")}
	rec := httptest.NewRecorder()
	other.IssueSession(rec, "admin")
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	assert.False(t, f.ctler.ValidateSessionCookie(req))
	assert.Equal(t, "unknown", f.ctler.currentUser(req))
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestLayoutEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/layout", nil, bearer("secret-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["commands"], "quest")
	assert.Contains(t, body["header"], "Points (Total)")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodOptions, "/commands", nil, func(r *http.Request) { r.Header.Set("Origin", "https://example.org") })
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketWithoutRedis(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/ws", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCommandStatusForExpiredContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()
	out := f.app.Dispatcher.Handle(ctx, command.Event{
		IssuerPrivileged: true,
		Command:          "quest",
		Participants:     []ledger.Identity{{Nickname: "Ann"}},
	})
	assert.Error(t, out.Err)
	assert.Equal(t, http.StatusBadGateway, commandStatus(out.Err))
}
