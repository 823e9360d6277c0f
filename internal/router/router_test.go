package router

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap/zaptest"

	apiHandler "github.com/fastygo/sessions/api/handler"
	"github.com/fastygo/sessions/api/transport"
	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/internal/infrastructure/metrics"
	"github.com/fastygo/sessions/internal/infrastructure/monitor"
	"github.com/fastygo/sessions/internal/middleware"
	"github.com/fastygo/sessions/pkg/httpcontext"
	"github.com/fastygo/sessions/pkg/token"
	authUC "github.com/fastygo/sessions/usecase/auth"
)

type users map[string]*domain.User

func (u users) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

type memorySessions struct {
	mu      sync.Mutex
	seq     int
	byToken map[string]*domain.Session
}

func (m *memorySessions) Create(_ context.Context, in domain.NewSession) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s := &domain.Session{ID: "s" + strconv.Itoa(m.seq), UserID: in.UserID, Token: in.Token, ExpiresAt: in.ExpiresAt, IPAddress: in.IPAddress, UserAgent: in.UserAgent}
	m.byToken[s.Token] = s
	return s.Clone(), nil
}

func (m *memorySessions) FindByToken(_ context.Context, raw string) *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byToken[raw].Clone()
}

func (m *memorySessions) FindByUserID(_ context.Context, userID string) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Session, 0)
	for _, s := range m.byToken {
		if s.UserID == userID {
			out = append(out, s.Clone())
		}
	}
	return out
}

func (m *memorySessions) Update(_ context.Context, id string, patch domain.SessionPatch) *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	for raw, s := range m.byToken {
		if s.ID == id {
			s.Apply(patch)
			delete(m.byToken, raw)
			m.byToken[s.Token] = s
			return s.Clone()
		}
	}
	return nil
}

func (m *memorySessions) Delete(_ context.Context, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byToken, raw)
}

func (m *memorySessions) DeleteByUserID(_ context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for raw, s := range m.byToken {
		if s.UserID == userID {
			delete(m.byToken, raw)
		}
	}
}

type staticStatus monitor.Status

func (s staticStatus) GetStatus() monitor.Status { return monitor.Status(s) }

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
}

type api struct {
	handler fasthttp.RequestHandler
	status  *staticStatus
}

func newAPI(t *testing.T) *api {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	metrics.NewSessions(reg)

	uc := authUC.New(users{
		"alice": {ID: "alice", Role: domain.RoleUser, Status: domain.UserStatusActive},
		"root":  {ID: "root", Role: domain.RoleAdmin, Status: domain.UserStatusActive},
	}, &memorySessions{byToken: map[string]*domain.Session{}}, token.NewIssuer("secret", "test"), time.Hour, log)

	adapter := httpcontext.NewAdapter(time.Second, false)
	status := &staticStatus{PostgreSQL: true, Redis: true}
	r := New(Handlers{
		Auth:    apiHandler.NewAuthHandler(uc, adapter, log),
		Session: apiHandler.NewSessionHandler(uc, adapter, log),
		Health:  apiHandler.NewHealthHandler(status, adapter, log),
		Metrics: apiHandler.NewMetricsHandler(reg),
	}, middleware.SessionAuth(uc, adapter, log), middleware.RequireRole(domain.RoleAdmin))
	return &api{handler: r.Handler, status: status}
}

func (a *api) do(t *testing.T, method, uri, bearer, body string) (int, envelope) {
	t.Helper()
	req := &fasthttp.Request{}
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	req.Header.SetUserAgent("router-test")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(req, &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 1234}, nil)

	a.handler(ctx)

	var env envelope
	if len(ctx.Response.Body()) > 0 && string(ctx.Response.Header.ContentType()) == "application/json" {
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	}
	return ctx.Response.StatusCode(), env
}

func (a *api) login(t *testing.T, userID string) transport.SessionResponse {
	t.Helper()
	status, env := a.do(t, "POST", "/api/v1/auth/login", "", `{"user_id":"`+userID+`"}`)
	require.Equal(t, fasthttp.StatusCreated, status)
	var session transport.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.Token)
	return session
}

func TestRouter_SessionLifecycle(t *testing.T) {
	a := newAPI(t)
	first := a.login(t, "alice")
	second := a.login(t, "alice")
	require.NotNil(t, first.IPAddress)
	assert.Equal(t, "192.0.2.1", *first.IPAddress)
	require.NotNil(t, first.UserAgent)
	assert.Equal(t, "router-test", *first.UserAgent)

	status, env := a.do(t, "GET", "/api/v1/sessions", first.Token, "")
	require.Equal(t, fasthttp.StatusOK, status)
	var list []transport.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	for _, s := range list {
		assert.Empty(t, s.Token, "tokens must not be listed")
		assert.Equal(t, s.ID == first.ID, s.Current)
	}

	status, env = a.do(t, "POST", "/api/v1/auth/refresh", first.Token, `{"ttl_seconds":7200}`)
	require.Equal(t, fasthttp.StatusOK, status)
	var refreshed transport.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	assert.Equal(t, first.ID, refreshed.ID)
	assert.NotEqual(t, first.Token, refreshed.Token)

	status, _ = a.do(t, "GET", "/api/v1/sessions", first.Token, "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)

	status, _ = a.do(t, "POST", "/api/v1/auth/logout", refreshed.Token, "")
	assert.Equal(t, fasthttp.StatusNoContent, status)
	status, _ = a.do(t, "GET", "/api/v1/sessions", refreshed.Token, "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)

	status, _ = a.do(t, "POST", "/api/v1/auth/logout-all", second.Token, "")
	assert.Equal(t, fasthttp.StatusNoContent, status)
	status, _ = a.do(t, "GET", "/api/v1/sessions", second.Token, "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)
}

func TestRouter_LoginRejections(t *testing.T) {
	a := newAPI(t)

	status, env := a.do(t, "POST", "/api/v1/auth/login", "", `{`)
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, string(domain.ErrCodeInvalid), env.Code)

	status, env = a.do(t, "POST", "/api/v1/auth/login", "", `{"user_id":"mallory"}`)
	assert.Equal(t, fasthttp.StatusNotFound, status)
	assert.Equal(t, string(domain.ErrCodeNotFound), env.Code)
}

func TestRouter_RequiresBearer(t *testing.T) {
	a := newAPI(t)

	status, env := a.do(t, "GET", "/api/v1/sessions", "", "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)
	assert.Equal(t, string(domain.ErrCodeUnauthorized), env.Code)

	status, _ = a.do(t, "GET", "/api/v1/sessions", "not-a-token", "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)
}

func TestRouter_AdminRoutes(t *testing.T) {
	a := newAPI(t)
	alice := a.login(t, "alice")
	root := a.login(t, "root")

	status, _ := a.do(t, "GET", "/api/v1/admin/users/alice/sessions", alice.Token, "")
	assert.Equal(t, fasthttp.StatusForbidden, status)

	status, env := a.do(t, "GET", "/api/v1/admin/users/alice/sessions", root.Token, "")
	require.Equal(t, fasthttp.StatusOK, status)
	var list []transport.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Token)

	status, _ = a.do(t, "DELETE", "/api/v1/admin/users/alice/sessions", root.Token, "")
	assert.Equal(t, fasthttp.StatusNoContent, status)
	status, _ = a.do(t, "GET", "/api/v1/sessions", alice.Token, "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)
}

func TestRouter_Health(t *testing.T) {
	a := newAPI(t)

	status, env := a.do(t, "GET", "/health", "", "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "success", env.Status)

	a.status.Redis = false
	status, _ = a.do(t, "GET", "/health", "", "")
	assert.Equal(t, fasthttp.StatusOK, status)

	a.status.PostgreSQL = false
	status, env = a.do(t, "GET", "/health", "", "")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, status)
	assert.Equal(t, "DOWN", env.Code)
}

func TestRouter_Metrics(t *testing.T) {
	a := newAPI(t)

	status, _ := a.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, fasthttp.StatusOK, status)
}
